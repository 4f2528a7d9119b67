package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/techxpo/clinic-kiosk/internal/observability/metrics"
	"github.com/techxpo/clinic-kiosk/internal/planner"
	"github.com/techxpo/clinic-kiosk/internal/schedule"
	"github.com/techxpo/clinic-kiosk/internal/visits"
	"github.com/techxpo/clinic-kiosk/internal/wrapup"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

// Event names published to the UI data plane.
const (
	EventIdentityCaptured    = "identity_captured"
	EventBookingPending      = "booking_pending"
	EventBookingResult       = "booking_result"
	EventBookingError        = "booking_error"
	EventBookingOptionChosen = "booking_option_chosen"
	EventWrapupDone          = "wrapup_done"
)

// Tool surface after identity confirmation.
var confirmedTools = []string{"schedule_appointment", "choose_booking_option", "finalize_visit"}

const (
	bookingGuardLine = "HỆ THỐNG ĐANG TÌM LỊCH. TUYỆT ĐỐI KHÔNG tự nêu giờ khám, tên bác sĩ hay bệnh viện cụ thể cho tới khi có kết quả."

	holdMessageInstr = "Nói ngắn gọn bằng tiếng Việt: hệ thống đang tìm lịch khám phù hợp, xin khách chờ trong giây lát."

	apologyInstr = "Xin lỗi khách bằng tiếng Việt: hiện chưa tìm được lịch khám, đề nghị thử lại hoặc đổi yêu cầu."

	presentInstr = "Dựa vào các dòng BOOKING_OPT trong hội thoại, đọc cho khách tối đa 3 lựa chọn lịch khám (bệnh viện, khoa, bác sĩ, giờ) và hỏi khách chọn số mấy."

	silentAckInstr = "Khách là khách quen, hồ sơ đã được nạp. Chào lại thật ngắn gọn, không đọc lại hồ sơ."
)

// Publisher delivers session events to the UI data plane.
type Publisher interface {
	Publish(ctx context.Context, sessionID, event string, payload map[string]any) error
}

// Agent mutates the live reasoner session: extra instructions and the exposed
// tool set.
type Agent interface {
	AppendInstructions(ctx context.Context, text string) error
	SetTools(ctx context.Context, names []string) error
}

// Retriever answers medical-guideline queries for symptom text.
type Retriever interface {
	Query(ctx context.Context, symptoms string, k, maxChars int) (string, error)
}

// Closer tears down the realtime transport for a finished session.
type Closer interface {
	Teardown(ctx context.Context, sessionID string) error
}

// Config wires one Session.
type Config struct {
	SessionID string

	Scheduler  *schedule.Scheduler
	Visits     visits.Store
	Dispatcher *Dispatcher
	Clerk      *wrapup.Clerk
	Extractor  *wrapup.Extractor
	Gate       *ReplyGate
	Publisher  Publisher
	Agent      Agent

	Retriever       Retriever              // optional
	Closer          Closer                 // optional
	Sidecar         *visits.SidecarWriter  // optional
	TranscriptStore *CallTranscriptStore   // optional, nil-safe
	Metrics         *metrics.BookingMetrics // optional, nil-safe
	Logger          *logging.Logger

	HoldTTL       time.Duration
	TeardownDelay time.Duration
}

// Session is the per-call orchestrator: identity state, tool handlers, the
// transcript buffer and the finalize pipeline.
type Session struct {
	id string

	scheduler  *schedule.Scheduler
	visits     visits.Store
	dispatcher *Dispatcher
	clerk      *wrapup.Clerk
	extractor  *wrapup.Extractor
	gate       *ReplyGate
	publisher  Publisher
	agent      Agent
	retriever  Retriever
	closer     Closer
	sidecar    *visits.SidecarWriter
	store      *CallTranscriptStore
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger

	holdTTL       time.Duration
	teardownDelay time.Duration
	targetDate    func() string

	mu                      sync.Mutex
	identity                Identity
	latestBooking           *planner.Result
	allowFinalize           bool
	bookingInProgress       bool
	closing                 bool
	personalContextInjected bool
	guardID                 string

	transcript *TranscriptBuffer
	bg         sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Scheduler == nil {
		panic("session: scheduler required")
	}
	if cfg.Visits == nil {
		panic("session: visits store required")
	}
	if cfg.Dispatcher == nil {
		panic("session: dispatcher required")
	}
	if cfg.Clerk == nil || cfg.Extractor == nil {
		panic("session: wrapup clients required")
	}
	if cfg.Gate == nil {
		panic("session: reply gate required")
	}
	if cfg.Publisher == nil {
		panic("session: publisher required")
	}
	if cfg.Agent == nil {
		panic("session: agent required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = schedule.DefaultHoldTTL
	}
	if cfg.TeardownDelay <= 0 {
		cfg.TeardownDelay = 5 * time.Second
	}

	s := &Session{
		id:            cfg.SessionID,
		scheduler:     cfg.Scheduler,
		visits:        cfg.Visits,
		dispatcher:    cfg.Dispatcher,
		clerk:         cfg.Clerk,
		extractor:     cfg.Extractor,
		gate:          cfg.Gate,
		publisher:     cfg.Publisher,
		agent:         cfg.Agent,
		retriever:     cfg.Retriever,
		closer:        cfg.Closer,
		sidecar:       cfg.Sidecar,
		store:         cfg.TranscriptStore,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.Named("session"),
		holdTTL:       cfg.HoldTTL,
		teardownDelay: cfg.TeardownDelay,
		targetDate:    func() string { return time.Now().Format("2006-01-02") },
		transcript:    NewTranscriptBuffer(),
	}
	s.metrics.SessionStarted()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ObserveLine records a transcript line from the realtime transport. Duplicate
// ids (reconnect replays) are dropped.
func (s *Session) ObserveLine(ctx context.Context, id, role, text string) {
	if !s.transcript.Append(id, role, text) {
		return
	}
	if err := s.store.Append(ctx, s.id, CallTranscriptMessage{ID: id, Role: role, Body: text}); err != nil {
		s.logger.Warn("transcript persist failed", "error", err)
	}
}

func okResult(extra map[string]any) map[string]any {
	out := map[string]any{"ok": true}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func errResult(kind, message string) map[string]any {
	return map[string]any{"ok": false, "error": kind, "message": message}
}

func (s *Session) publish(ctx context.Context, event string, payload map[string]any) {
	if err := s.publisher.Publish(ctx, s.id, event, payload); err != nil {
		s.logger.Warn("event publish failed", "event", event, "error", err)
	}
}

// ProposeIdentity updates the identity draft. Confidence-gated; ignored once
// the identity is confirmed.
func (s *Session) ProposeIdentity(ctx context.Context, name, phone string, confidence float64) map[string]any {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errResult("closing", "phiên đang kết thúc")
	}
	applied := s.identity.Propose(name, phone, confidence)
	draftName, draftPhone := s.identity.DraftName, s.identity.DraftPhone
	confirmed := s.identity.Confirmed
	s.mu.Unlock()

	if applied {
		s.publish(ctx, EventIdentityCaptured, map[string]any{
			"name":       draftName,
			"phone":      draftPhone,
			"confidence": confidence,
			"confirmed":  false,
		})
	}
	return okResult(map[string]any{"applied": applied, "already_confirmed": confirmed})
}

// ConfirmIdentity promotes the draft (or explicit overrides) to a confirmed
// identity. A change after confirmation invalidates any planner result, so
// the caller must re-schedule.
func (s *Session) ConfirmIdentity(ctx context.Context, name, phone string) map[string]any {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errResult("closing", "phiên đang kết thúc")
	}

	if s.identity.Confirmed {
		if !s.identity.Changed(name, phone) {
			res := okResult(map[string]any{"name": s.identity.ConfirmedName, "phone": s.identity.ConfirmedPhone, "already_confirmed": true})
			s.mu.Unlock()
			return res
		}
		if phone != "" && !visits.ValidPhone(phone) {
			s.mu.Unlock()
			return errResult("invalid_phone", "số điện thoại không hợp lệ")
		}
		if name != "" {
			s.identity.ConfirmedName = name
		}
		if phone != "" {
			s.identity.ConfirmedPhone = phone
		}
		s.latestBooking = nil
		s.allowFinalize = false
		confName, confPhone := s.identity.ConfirmedName, s.identity.ConfirmedPhone
		s.mu.Unlock()

		s.publish(ctx, EventIdentityCaptured, map[string]any{
			"name": confName, "phone": confPhone, "confirmed": true, "updated": true,
		})
		return okResult(map[string]any{"name": confName, "phone": confPhone, "rebook_required": true})
	}

	ok, reason := s.identity.Confirm(name, phone)
	if !ok {
		s.mu.Unlock()
		return errResult(reason, "cần tên và số điện thoại hợp lệ để xác nhận")
	}
	confName, confPhone := s.identity.ConfirmedName, s.identity.ConfirmedPhone
	firstInjection := !s.personalContextInjected
	s.personalContextInjected = true
	s.mu.Unlock()

	s.publish(ctx, EventIdentityCaptured, map[string]any{
		"name": confName, "phone": confPhone, "confirmed": true,
	})
	if err := s.agent.SetTools(ctx, confirmedTools); err != nil {
		s.logger.Warn("tool surface update failed", "error", err)
	}
	if firstInjection {
		s.injectPersonalContext(ctx, confPhone)
	}
	return okResult(map[string]any{"name": confName, "phone": confPhone})
}

// injectPersonalContext looks up a returning customer by phone and, when a
// profile exists, appends it to the reasoner instructions. One-shot.
func (s *Session) injectPersonalContext(ctx context.Context, phone string) {
	customerID, err := s.visits.CustomerIDByPhone(ctx, phone)
	if err != nil {
		s.logger.Warn("customer lookup failed", "error", err)
		return
	}
	if customerID == "" {
		return
	}
	fs, err := s.visits.FactsSummary(ctx, customerID)
	if err != nil {
		s.logger.Warn("facts lookup failed", "error", err)
		return
	}
	recent, err := s.visits.RecentVisits(ctx, customerID, 3)
	if err != nil {
		s.logger.Warn("recent visits lookup failed", "error", err)
	}
	personal := visits.BuildPersonalContext(fs, recent)
	if personal == "" {
		return
	}
	if err := s.agent.AppendInstructions(ctx, "Khách quen, hồ sơ trước đây:\n"+personal); err != nil {
		s.logger.Warn("personal context injection failed", "error", err)
		return
	}
	s.logger.Info("personal context injected", "customer_id", customerID)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.gate.Reply(context.Background(), silentAckInstr); err != nil {
			s.logger.Warn("silent ack reply failed", "error", err)
		}
	}()
}

// ScheduleAppointment launches the two-stage planner in the background. The
// caller hears a hold message; a transcript guard line keeps the reasoner
// from improvising times until the result lands.
func (s *Session) ScheduleAppointment(ctx context.Context, patientName, phone, preferredTime, symptoms string) map[string]any {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errResult("closing", "phiên đang kết thúc")
	}
	if !s.identity.Confirmed {
		s.mu.Unlock()
		return errResult("identity_not_confirmed", "cần xác nhận tên và số điện thoại trước khi đặt lịch")
	}
	if s.bookingInProgress {
		s.mu.Unlock()
		return errResult("booking_in_progress", "đang tìm lịch, vui lòng chờ")
	}
	s.bookingInProgress = true
	s.guardID = uuid.NewString()
	s.transcript.Append(s.guardID, "system", bookingGuardLine)
	s.mu.Unlock()

	s.publish(ctx, EventBookingPending, map[string]any{
		"patient_name":   patientName,
		"phone":          phone,
		"preferred_time": preferredTime,
		"symptoms":       symptoms,
	})

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.gate.Reply(context.Background(), holdMessageInstr); err != nil {
			s.logger.Warn("hold message reply failed", "error", err)
		}
	}()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		bctx := context.Background()
		s.appendGuidelines(bctx, symptoms)
		job := BookingJob{
			SessionID:  s.id,
			Transcript: s.transcript.Text(),
			TargetDate: s.targetDate(),
		}
		if err := s.dispatcher.Submit(bctx, job, s.onBookingResult); err != nil {
			s.logger.Error("booking job submit failed", "error", err)
			s.onBookingResult(nil, err)
		}
	}()

	return okResult(map[string]any{"status": "booking_pending"})
}

// appendGuidelines queries the medical retriever, when configured, and adds
// a guidelines block to the transcript the planner will see.
func (s *Session) appendGuidelines(ctx context.Context, symptoms string) {
	if s.retriever == nil || strings.TrimSpace(symptoms) == "" {
		return
	}
	guidelines, err := s.retriever.Query(ctx, symptoms, 4, 1200)
	if err != nil {
		s.logger.Warn("guideline retrieval failed", "error", err)
		return
	}
	if guidelines = strings.TrimSpace(guidelines); guidelines != "" {
		s.transcript.Append("", "system", "[MEDICAL_GUIDELINES]\n"+guidelines+"\n[/MEDICAL_GUIDELINES]")
	}
}

// onBookingResult runs on a dispatcher worker when the planner finishes.
func (s *Session) onBookingResult(res *planner.Result, err error) {
	ctx := context.Background()

	s.mu.Lock()
	s.bookingInProgress = false
	if s.guardID != "" {
		s.transcript.RemoveByID(s.guardID)
		s.guardID = ""
	}
	if s.closing {
		s.mu.Unlock()
		return
	}
	if err != nil || res == nil {
		s.mu.Unlock()
		msg := "planner failed"
		if err != nil {
			msg = err.Error()
		}
		s.logger.Error("booking pipeline failed", "error", msg)
		s.publish(ctx, EventBookingError, map[string]any{"message": msg})
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if rerr := s.gate.Reply(context.Background(), apologyInstr); rerr != nil {
				s.logger.Warn("apology reply failed", "error", rerr)
			}
		}()
		return
	}

	s.latestBooking = res
	s.allowFinalize = res.Chosen != nil
	if raw, merr := json.Marshal(res); merr == nil {
		s.transcript.Append("", "system", "BOOKING_JSON "+string(raw))
	}
	for i, opt := range res.Options {
		s.transcript.Append("", "system", fmt.Sprintf("BOOKING_OPT[%d] %s | %s | %s | %s",
			i, opt.Hospital, opt.Department, opt.DoctorName, opt.SlotTime))
	}
	s.mu.Unlock()

	s.publish(ctx, EventBookingResult, map[string]any{
		"options": res.Options,
		"chosen":  res.Chosen,
	})
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if rerr := s.gate.Reply(context.Background(), presentInstr); rerr != nil {
			s.logger.Warn("presentation reply failed", "error", rerr)
		}
	}()
}

// ChooseBookingOption selects one planner option and soft-holds its slot.
// Prior holds owned by this session are released first.
func (s *Session) ChooseBookingOption(ctx context.Context, index int, reason string) map[string]any {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errResult("closing", "phiên đang kết thúc")
	}
	if s.latestBooking == nil || len(s.latestBooking.Options) == 0 {
		s.mu.Unlock()
		return errResult("no_booking_options", "chưa có lựa chọn lịch khám")
	}
	if index < 0 || index >= len(s.latestBooking.Options) {
		s.mu.Unlock()
		return errResult("invalid_index", fmt.Sprintf("chỉ số %d nằm ngoài danh sách", index))
	}
	opt := s.latestBooking.Options[index]
	s.latestBooking.Chosen = &opt
	s.allowFinalize = true
	s.mu.Unlock()

	date, slot := splitSlotTime(opt.SlotTime)
	req := schedule.BookRequest{
		HospitalCode:   opt.HospitalCode,
		Department:     opt.Department,
		DoctorName:     opt.DoctorName,
		Date:           date,
		SlotTime:       slot,
		DepartmentCode: opt.DepartmentCode,
	}

	s.scheduler.CancelSession(ctx, s.id)
	ok, holdReason := s.scheduler.CreateHold(ctx, req, s.id, s.holdTTL)
	if !ok {
		return errResult(holdReason, "không giữ được khung giờ này")
	}

	s.publish(ctx, EventBookingOptionChosen, map[string]any{
		"index":  index,
		"option": opt,
		"reason": reason,
	})
	return okResult(map[string]any{"chosen": opt})
}

// FinalizeVisit promotes the held slot to a booking (direct booking is the
// fallback when the hold is gone), then runs the wrap-up pipeline in the
// background and schedules session teardown.
func (s *Session) FinalizeVisit(ctx context.Context) map[string]any {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errResult("closing", "phiên đang kết thúc")
	}
	if !s.allowFinalize || s.latestBooking == nil || s.latestBooking.Chosen == nil {
		s.mu.Unlock()
		return errResult("no_booking_options", "chưa chốt được lịch khám")
	}
	chosen := *s.latestBooking.Chosen
	name, phone := s.identity.ConfirmedName, s.identity.ConfirmedPhone
	s.mu.Unlock()

	date, slot := splitSlotTime(chosen.SlotTime)
	req := schedule.BookRequest{
		HospitalCode:   chosen.HospitalCode,
		Department:     chosen.Department,
		DoctorName:     chosen.DoctorName,
		Date:           date,
		SlotTime:       slot,
		DepartmentCode: chosen.DepartmentCode,
	}

	ok, reason := s.scheduler.PromoteHold(ctx, s.id, req)
	if !ok {
		s.logger.Warn("hold promotion failed, trying direct booking", "reason", reason)
		ok, reason = s.scheduler.BookSlot(ctx, req)
	}
	if !ok {
		return errResult(reason, "không chốt được lịch khám")
	}

	s.mu.Lock()
	s.closing = true
	s.latestBooking = nil
	s.allowFinalize = false
	s.mu.Unlock()

	s.publish(ctx, EventWrapupDone, map[string]any{
		"hospital_code":   chosen.HospitalCode,
		"department_code": chosen.DepartmentCode,
		"doctor_name":     chosen.DoctorName,
		"date":            date,
		"slot_time":       slot,
	})

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.runFinalizer(chosen, name, phone)
	}()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.teardown()
	}()

	return okResult(map[string]any{"booked": true, "option": chosen})
}

// runFinalizer produces the visit sheet, merges long-term facts and persists
// the visit. Failures degrade to a minimal payload; they never block teardown.
func (s *Session) runFinalizer(chosen planner.Option, name, phone string) {
	ctx := context.Background()
	transcript := s.transcript.Text()
	date, slot := splitSlotTime(chosen.SlotTime)

	bookingMap := map[string]any{
		"hospital":        chosen.Hospital,
		"hospital_code":   chosen.HospitalCode,
		"department":      chosen.Department,
		"department_code": chosen.DepartmentCode,
		"doctor_name":     chosen.DoctorName,
		"slot_time":       chosen.SlotTime,
		"patient_name":    name,
		"phone":           phone,
	}
	bookingIndex := map[string]any{
		"hospital_code":   chosen.HospitalCode,
		"department_code": chosen.DepartmentCode,
		"doctor_name":     chosen.DoctorName,
		"date":            date,
		"slot_time":       slot,
	}

	customerID, _, err := s.visits.GetOrCreateCustomer(ctx, name, phone)
	if err != nil {
		s.logger.Error("customer upsert failed", "error", err)
		customerID = visits.CustomerIDFromPhone(phone)
	}

	payload := s.clerk.SummarizeVisit(ctx, transcript, nil, bookingMap)
	payload["customer_id"] = customerID
	payload["booking"] = bookingMap
	payload["booking_index"] = bookingIndex

	fs, err := s.visits.FactsSummary(ctx, customerID)
	if err != nil {
		s.logger.Warn("facts lookup failed", "error", err)
	}
	facts, summary := s.extractor.Extract(ctx, transcript, fs.Facts, fs.LastSummary)

	visitID, err := s.visits.SaveVisit(ctx, customerID, payload, summary, facts)
	if err != nil {
		s.logger.Error("visit save failed, writing minimal record", "error", err)
		minimal := map[string]any{
			"customer_id":   customerID,
			"booking_index": bookingIndex,
			"patient_name":  name,
			"phone":         phone,
		}
		if visitID, err = s.visits.SaveVisit(ctx, customerID, minimal, summary, facts); err != nil {
			s.logger.Error("minimal visit save failed", "error", err)
			return
		}
		payload = minimal
	}
	s.sidecar.Write(visitID, payload, true)

	if err := s.visits.UpdateFactsSummary(ctx, customerID, facts, summary); err != nil {
		s.logger.Warn("facts update failed", "error", err)
	}
	s.logger.Info("visit finalized", "visit_id", visitID, "customer_id", customerID)
}

// teardown waits the grace period, releases holds and closes the transport.
func (s *Session) teardown() {
	time.Sleep(s.teardownDelay)
	ctx := context.Background()
	s.scheduler.CancelSession(ctx, s.id)
	if s.closer != nil {
		if err := s.closer.Teardown(ctx, s.id); err != nil {
			s.logger.Warn("session teardown failed", "error", err)
		}
	}
	s.metrics.SessionEnded()
}

// Cancel releases this session's holds after a disconnect. Safe to call more
// than once; a closing session already tears itself down.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()

	s.scheduler.CancelSession(ctx, s.id)
	s.metrics.SessionEnded()
}

// splitSlotTime splits "YYYY-MM-DD HH:MM" into date and slot. A bare "HH:MM"
// yields an empty date.
func splitSlotTime(slotTime string) (date, slot string) {
	fields := strings.Fields(slotTime)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	default:
		return fields[0], fields[len(fields)-1]
	}
}
