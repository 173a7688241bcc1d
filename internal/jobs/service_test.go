package jobs

import (
	"context"
	"strings"
	"sync"
	"testing"

	"takeoff-backend/internal/projectlog"
)

type recordingNotifier struct {
	mu       sync.Mutex
	projects []string
}

func (n *recordingNotifier) Notify(_ context.Context, projectID string) {
	n.mu.Lock()
	n.projects = append(n.projects, projectID)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.projects)
}

func newTestService() (*Service, *projectlog.MemoryRepo, *recordingNotifier) {
	logs := projectlog.NewMemoryRepo()
	notifier := &recordingNotifier{}
	return &Service{
		Repo:     NewMemoryRepo(),
		Logs:     &projectlog.Writer{Repo: logs},
		Notifier: notifier,
	}, logs, notifier
}

func TestServiceTransitionsAppendLogs(t *testing.T) {
	svc, logs, notifier := newTestService()
	ctx := context.Background()

	job, created, err := svc.Submit(ctx, submitParams("f1", "k1"))
	if err != nil || !created {
		t.Fatalf("submit: created=%v err=%v", created, err)
	}
	if _, err := svc.Transition(ctx, job.ID, StatusProcessing, Patch{}); err != nil {
		t.Fatalf("processing: %v", err)
	}
	if _, err := svc.SetStage(ctx, job.ID, "extracting"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := svc.Transition(ctx, job.ID, StatusDone, Patch{Result: &ResultSummary{ItemCount: 3}}); err != nil {
		t.Fatalf("done: %v", err)
	}

	entries, _ := logs.ListRecent(ctx, "p1", "", 50)
	if len(entries) != 4 {
		t.Fatalf("expected 4 log entries, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Message, "finished with 3 items") {
		t.Fatalf("expected newest entry to describe completion, got %q", entries[0].Message)
	}
	if entries[0].JobID != job.ID || entries[0].FileID != "f1" {
		t.Fatalf("expected entry scoped to job and file, got %+v", entries[0])
	}
	if notifier.count() != 4 {
		t.Fatalf("expected 4 notifications, got %d", notifier.count())
	}
}

func TestServiceReplayDoesNotLog(t *testing.T) {
	svc, logs, notifier := newTestService()
	ctx := context.Background()
	svc.Submit(ctx, submitParams("f1", "k1"))
	svc.Submit(ctx, submitParams("f1", "k1"))

	entries, _ := logs.ListRecent(ctx, "p1", "", 50)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", notifier.count())
	}
}

func TestServicePreconditionFailureLogsWarning(t *testing.T) {
	svc, logs, _ := newTestService()
	ctx := context.Background()
	job, _, _ := svc.Submit(ctx, submitParams("f1", "k1"))
	_, err := svc.Transition(ctx, job.ID, StatusFailed, Patch{Error: &JobError{
		Kind:    ErrorKindPrecondition,
		Message: "drawings require schedule codes first",
	}})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	entries, _ := logs.ListRecent(ctx, "p1", "f1", 1)
	if len(entries) != 1 || entries[0].Level != projectlog.LevelWarning {
		t.Fatalf("expected a warning entry, got %+v", entries)
	}
}

func TestServiceInvalidTransitionDoesNotLog(t *testing.T) {
	svc, logs, _ := newTestService()
	ctx := context.Background()
	job, _, _ := svc.Submit(ctx, submitParams("f1", "k1"))
	if _, err := svc.Transition(ctx, job.ID, StatusDone, Patch{}); err == nil {
		t.Fatalf("expected queued -> done to fail")
	}
	entries, _ := logs.ListRecent(ctx, "p1", "", 50)
	if len(entries) != 1 {
		t.Fatalf("expected only the submit entry, got %d", len(entries))
	}
}
