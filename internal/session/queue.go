package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// BookingJob is one planner run requested by a session.
type BookingJob struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
	TargetDate string `json:"target_date,omitempty"`
}

func encodeJob(job BookingJob) (BookingJob, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return BookingJob{}, "", fmt.Errorf("session: failed to encode booking job: %w", err)
	}
	return job, string(body), nil
}
