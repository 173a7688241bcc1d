package workerproc

import (
	"context"
	"errors"
	"testing"

	"takeoff-backend/internal/queue"
)

type processorFunc func(ctx context.Context, jobID string) error

func (f processorFunc) Process(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func TestParseMessageErrors(t *testing.T) {
	if _, _, err := ParseMessage("  "); !errors.As(err, &ErrEmptyBody{}) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if _, meta, err := ParseMessage("{"); !errors.As(err, &ErrDecode{}) || meta.BodyLen != 1 {
		t.Fatalf("expected ErrDecode with meta, got %v %+v", err, meta)
	}
	if _, _, err := ParseMessage(`{"requestId":"r1"}`); !errors.As(err, &ErrMissingJobID{}) {
		t.Fatalf("expected ErrMissingJobID, got %v", err)
	}
	msg, _, err := ParseMessage(`{"jobId":"job-1"}`)
	if err != nil || msg.JobID != "job-1" {
		t.Fatalf("expected job-1, got %+v %v", msg, err)
	}
}

func TestHandleMessageWrapsProcessError(t *testing.T) {
	boom := errors.New("boom")
	var got string
	err := HandleMessage(context.Background(), processorFunc(func(ctx context.Context, jobID string) error {
		got = jobID
		return boom
	}), queue.Message{JobID: "job-1", RequestID: "r1"})

	var procErr ErrProcess
	if !errors.As(err, &procErr) || procErr.JobID != "job-1" || !errors.Is(err, boom) {
		t.Fatalf("expected ErrProcess wrapping boom, got %v", err)
	}
	if got != "job-1" {
		t.Fatalf("expected processor to receive job-1, got %q", got)
	}
}
