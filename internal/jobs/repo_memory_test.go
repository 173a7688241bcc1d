package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"takeoff-backend/internal/files"
)

func submitParams(fileID, key string) SubmitParams {
	return SubmitParams{ProjectID: "p1", FileID: fileID, FileKind: files.KindBOQ, IdempotencyKey: key}
}

func TestSubmitSameKeyReturnsExistingJob(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	first, created, err := repo.Submit(ctx, submitParams("f1", "k1"))
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}
	second, created, err := repo.Submit(ctx, submitParams("f1", "k1"))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created {
		t.Fatalf("expected replay, got a new job")
	}
	if second.ID != first.ID || second.UpdatedAt != first.UpdatedAt {
		t.Fatalf("expected unchanged job %s, got %s", first.ID, second.ID)
	}
}

func TestSubmitConcurrentSameKeyCreatesOneJob(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, _, err := repo.Submit(ctx, submitParams("f1", "k1"))
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			ids[i] = job.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single job id, got %v", ids)
		}
	}
	list, _ := repo.ListByProject(ctx, "p1")
	if len(list) != 1 {
		t.Fatalf("expected 1 job, got %d", len(list))
	}
}

func TestSubmitInFlightPolicies(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	first, _, _ := repo.Submit(ctx, submitParams("f1", "k1"))

	reused, created, err := repo.Submit(ctx, submitParams("f1", "k2"))
	if err != nil || created || reused.ID != first.ID {
		t.Fatalf("expected in-flight reuse, got id=%s created=%v err=%v", reused.ID, created, err)
	}

	p := submitParams("f1", "k3")
	p.OnInFlight = InFlightReject
	if _, _, err := repo.Submit(ctx, p); !errors.Is(err, ErrJobInFlight) {
		t.Fatalf("expected ErrJobInFlight, got %v", err)
	}
}

func TestSubmitAfterFailureCreatesNewJob(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	first, _, _ := repo.Submit(ctx, submitParams("f1", "k1"))
	if _, err := repo.Transition(ctx, first.ID, StatusFailed, Patch{Error: &JobError{Kind: ErrorKindFatal, Message: "boom"}}); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	again, created, err := repo.Submit(ctx, submitParams("f1", "k1"))
	if err != nil || !created {
		t.Fatalf("expected new job after failure, created=%v err=%v", created, err)
	}
	if again.ID == first.ID {
		t.Fatalf("expected a distinct job")
	}
	latest, _ := repo.LatestForFile(ctx, "f1")
	if latest.ID != again.ID {
		t.Fatalf("expected latest %s, got %s", again.ID, latest.ID)
	}
}

func TestSubmitAfterDoneReplays(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	first, _, _ := repo.Submit(ctx, submitParams("f1", "k1"))
	repo.Transition(ctx, first.ID, StatusProcessing, Patch{})
	repo.Transition(ctx, first.ID, StatusDone, Patch{Result: &ResultSummary{ItemCount: 2}})

	again, created, err := repo.Submit(ctx, submitParams("f1", "k1"))
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("expected replay of done job, created=%v err=%v", created, err)
	}
	if again.Status != StatusDone {
		t.Fatalf("expected done, got %s", again.Status)
	}
}

func TestSubmitRequiresKey(t *testing.T) {
	repo := NewMemoryRepo()
	if _, _, err := repo.Submit(context.Background(), submitParams("f1", " ")); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestTransitionStateMachine(t *testing.T) {
	tests := []struct {
		name  string
		path  []Status
		next  Status
		valid bool
	}{
		{name: "queued to processing", next: StatusProcessing, valid: true},
		{name: "queued to failed", next: StatusFailed, valid: true},
		{name: "queued to done", next: StatusDone, valid: false},
		{name: "processing to done", path: []Status{StatusProcessing}, next: StatusDone, valid: true},
		{name: "processing to queued", path: []Status{StatusProcessing}, next: StatusQueued, valid: false},
		{name: "done to processing", path: []Status{StatusProcessing, StatusDone}, next: StatusProcessing, valid: false},
		{name: "failed to processing", path: []Status{StatusFailed}, next: StatusProcessing, valid: false},
		{name: "failed to done", path: []Status{StatusProcessing, StatusFailed}, next: StatusDone, valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepo()
			ctx := context.Background()
			job, _, _ := repo.Submit(ctx, submitParams("f1", "k1"))
			for _, s := range tt.path {
				if _, err := repo.Transition(ctx, job.ID, s, Patch{}); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}
			before, _ := repo.Get(ctx, job.ID)
			_, err := repo.Transition(ctx, job.ID, tt.next, Patch{})
			if tt.valid && err != nil {
				t.Fatalf("expected valid transition, got %v", err)
			}
			if !tt.valid {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				after, _ := repo.Get(ctx, job.ID)
				if after.Status != before.Status || after.UpdatedAt != before.UpdatedAt {
					t.Fatalf("rejected transition mutated the job")
				}
			}
		})
	}
}

func TestTransitionStampsTimestamps(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	job, _, _ := repo.Submit(ctx, submitParams("f1", "k1"))

	job, _ = repo.Transition(ctx, job.ID, StatusProcessing, StagePatch("uploading"))
	if job.StartedAt == nil || job.FinishedAt != nil {
		t.Fatalf("expected startedAt only, got %+v", job)
	}
	if job.Stage != "uploading" {
		t.Fatalf("expected stage uploading, got %q", job.Stage)
	}
	job, _ = repo.Transition(ctx, job.ID, StatusDone, Patch{Result: &ResultSummary{ItemCount: 4}})
	if job.FinishedAt == nil || job.Result == nil || job.Result.ItemCount != 4 {
		t.Fatalf("expected finished job with result, got %+v", job)
	}
	if job.Error != nil {
		t.Fatalf("done job must not carry an error")
	}
}

func TestUpdateRejectsTerminalJob(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	job, _, _ := repo.Submit(ctx, submitParams("f1", "k1"))
	attempt := 2
	updated, err := repo.Update(ctx, job.ID, Patch{Attempt: &attempt})
	if err != nil || updated.Attempt != 2 {
		t.Fatalf("update: attempt=%d err=%v", updated.Attempt, err)
	}
	repo.Transition(ctx, job.ID, StatusFailed, Patch{})
	if _, err := repo.Update(ctx, job.ID, StagePatch("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestGetUnknownJob(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.LatestForFile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
