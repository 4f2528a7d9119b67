package planner

import (
	"context"
	"errors"
	"time"

	"github.com/techxpo/clinic-kiosk/internal/catalog"
	"github.com/techxpo/clinic-kiosk/internal/observability/metrics"
	"github.com/techxpo/clinic-kiosk/internal/schedule"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// ErrNoDepartments is returned when no department codes could be selected,
// not even by the deterministic fallback.
var ErrNoDepartments = errors.New("planner: no_departments_selected")

// Config wires a Planner.
type Config struct {
	LLM       LLMClient
	Catalog   *catalog.Catalog
	Scheduler *schedule.Scheduler

	// Index returns the current departments index. Called once per Plan so
	// a regenerated index file is picked up without a restart.
	Index func() catalog.DepartmentsIndex

	Stage1Model string
	Stage2Model string

	Metrics *metrics.BookingMetrics
	Logger  *logging.Logger
}

// Planner turns a conversation transcript into a validated set of booking
// options via two reasoner stages.
type Planner struct {
	llm         LLMClient
	catalog     *catalog.Catalog
	scheduler   *schedule.Scheduler
	index       func() catalog.DepartmentsIndex
	stage1Model string
	stage2Model string
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func New(cfg Config) *Planner {
	if cfg.LLM == nil {
		panic("planner: llm client required")
	}
	if cfg.Catalog == nil {
		panic("planner: catalog required")
	}
	if cfg.Scheduler == nil {
		panic("planner: scheduler required")
	}
	if cfg.Index == nil {
		panic("planner: index loader required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Planner{
		llm:         cfg.LLM,
		catalog:     cfg.Catalog,
		scheduler:   cfg.Scheduler,
		index:       cfg.Index,
		stage1Model: cfg.Stage1Model,
		stage2Model: cfg.Stage2Model,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Plan runs both stages for the given transcript and target date and returns
// a sanitized result. targetDate defaults to today when empty.
func (p *Planner) Plan(ctx context.Context, historyText, targetDate string) (*Result, error) {
	if targetDate == "" {
		targetDate = p.now().Format("2006-01-02")
	}

	index := p.index()

	start := p.now()
	codes := p.selectCodes(ctx, historyText, index)
	p.metrics.ObservePlannerStage("stage1", p.now().Sub(start).Seconds())
	if len(codes) == 0 {
		codes = fallbackCodes(index, 3)
		if len(codes) > 0 {
			p.logger.Info("stage1 empty, using fallback codes", "codes", codes)
		}
	}
	if len(codes) == 0 {
		return nil, ErrNoDepartments
	}

	doc, err := p.GatherSchedule(ctx, codes, index, targetDate)
	if err != nil {
		return nil, err
	}

	start = p.now()
	res, err := p.buildOptions(ctx, historyText, doc)
	p.metrics.ObservePlannerStage("stage2", p.now().Sub(start).Seconds())
	if err != nil {
		return nil, err
	}

	SanitizeOptions(doc, res, index.CanonicalNames())
	p.logger.Info("planner run complete",
		"codes", codes,
		"hospitals", len(doc.Hospitals),
		"options", len(res.Options),
		"chosen", res.Chosen != nil)
	return res, nil
}
