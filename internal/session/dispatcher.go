package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/techxpo/clinic-kiosk/internal/planner"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

const (
	defaultDispatchWorkers   = 2
	defaultReceiveWaitSecs   = 2
	defaultReceiveBatchSize  = 5
	dispatchDeleteTimeoutSec = 5
)

// ResultFunc receives a finished planner run for a submitted job.
type ResultFunc func(res *planner.Result, err error)

// Dispatcher runs booking-planner jobs through a queue and a worker pool.
// Sessions register a callback per job; the worker that picks the job up
// resolves it through the pending map.
type Dispatcher struct {
	queue   queueClient
	planner *planner.Planner
	logger  *logging.Logger

	workers   int
	waitSecs  int
	batchSize int

	pending sync.Map // job id -> ResultFunc
	wg      sync.WaitGroup
}

// DispatcherOption customizes dispatcher behavior.
type DispatcherOption func(*Dispatcher)

// WithDispatchWorkers sets the number of concurrent consumer goroutines.
func WithDispatchWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func NewDispatcher(queue queueClient, pl *planner.Planner, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if queue == nil {
		panic("session: queue cannot be nil")
	}
	if pl == nil {
		panic("session: planner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		queue:     queue,
		planner:   pl,
		logger:    logger,
		workers:   defaultDispatchWorkers,
		waitSecs:  defaultReceiveWaitSecs,
		batchSize: defaultReceiveBatchSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues a planner job. fn runs exactly once, on a worker goroutine,
// when the job completes.
func (d *Dispatcher) Submit(ctx context.Context, job BookingJob, fn ResultFunc) error {
	if fn == nil {
		panic("session: result callback required")
	}
	job, body, err := encodeJob(job)
	if err != nil {
		return err
	}
	d.pending.Store(job.ID, fn)
	if err := d.queue.Send(ctx, body); err != nil {
		d.pending.Delete(job.ID)
		return fmt.Errorf("session: failed to enqueue booking job: %w", err)
	}
	d.logger.Debug("booking job enqueued", "job_id", job.ID, "session_id", job.SessionID)
	return nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Stop
// waits for them.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.runWorker(ctx, id)
		}(i)
	}
}

// Stop blocks until every worker has returned.
func (d *Dispatcher) Stop() {
	d.wg.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := d.queue.Receive(ctx, d.batchSize, d.waitSecs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("queue receive failed", "worker", id, "error", err)
			continue
		}
		for _, msg := range messages {
			d.handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg queueMessage) {
	var job BookingJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		d.logger.Error("dropping undecodable booking job", "message_id", msg.ID, "error", err)
		d.deleteMessage(msg)
		return
	}

	fn, ok := d.pending.LoadAndDelete(job.ID)
	if !ok {
		// job belongs to another process; leave it for that consumer
		d.logger.Warn("booking job has no local callback", "job_id", job.ID)
		d.deleteMessage(msg)
		return
	}

	res, err := d.planner.Plan(ctx, job.Transcript, job.TargetDate)
	fn.(ResultFunc)(res, err)
	d.deleteMessage(msg)
}

func (d *Dispatcher) deleteMessage(msg queueMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchDeleteTimeoutSec*time.Second)
	defer cancel()
	if err := d.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		d.logger.Warn("failed to delete queue message", "message_id", msg.ID, "error", err)
	}
}
