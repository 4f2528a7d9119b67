package session

import (
	"context"
	"testing"
	"time"

	"github.com/techxpo/clinic-kiosk/internal/planner"
)

func TestDispatcherRunsSubmittedJob(t *testing.T) {
	st := newStack(t)

	done := make(chan struct{})
	var got *planner.Result
	var gotErr error
	job := BookingJob{
		SessionID:  "sess-1",
		Transcript: "[user] tôi bị sốt và ho",
		TargetDate: "2025-01-15",
	}
	err := st.dispatcher.Submit(context.Background(), job, func(res *planner.Result, err error) {
		got, gotErr = res, err
		close(done)
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job never completed")
	}
	if gotErr != nil {
		t.Fatalf("planner: %v", gotErr)
	}
	if got == nil || len(got.Options) == 0 {
		t.Fatalf("result = %+v", got)
	}
	if got.Options[0].HospitalCode != "H1" {
		t.Fatalf("option = %+v", got.Options[0])
	}
}

func TestDispatcherDropsForeignJob(t *testing.T) {
	st := newStack(t)

	queue := st.dispatcher.queue
	// a job enqueued by another process has no callback registered here
	if err := queue.Send(context.Background(), `{"id":"foreign-job","session_id":"sess-x","transcript":"","target_date":"2025-01-15"}`); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan struct{})
	if err := st.dispatcher.Submit(context.Background(), BookingJob{SessionID: "sess-1", Transcript: "[user] ho"}, func(*planner.Result, error) {
		close(done)
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("local job never completed")
	}
}

func TestDispatcherSubmitRequiresCallback(t *testing.T) {
	st := newStack(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil callback")
		}
	}()
	_ = st.dispatcher.Submit(context.Background(), BookingJob{}, nil)
}
