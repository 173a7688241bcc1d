package files

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	localstore "takeoff-backend/internal/shared/storage/object/local"
)

type purgerStub struct {
	purged []string
}

func (p *purgerStub) DeleteByFile(ctx context.Context, projectID, fileID string) error {
	p.purged = append(p.purged, fileID)
	return nil
}

type notifierStub struct {
	mu       sync.Mutex
	projects []string
}

func (n *notifierStub) Notify(ctx context.Context, projectID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.projects = append(n.projects, projectID)
}

func newService(t *testing.T) (*Service, *purgerStub, *notifierStub) {
	t.Helper()
	purger := &purgerStub{}
	notifier := &notifierStub{}
	return &Service{
		Repo:     NewMemoryRepo(),
		Store:    localstore.New(t.TempDir()),
		Items:    purger,
		Notifier: notifier,
	}, purger, notifier
}

func TestUploadListDelete(t *testing.T) {
	svc, purger, notifier := newService(t)
	ctx := context.Background()

	boq, err := svc.Upload(ctx, "p1", KindBOQ, "boq.csv", strings.NewReader("code,desc\nB1,wall\n"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if boq.ID == "" || boq.StorageKey == "" || boq.SizeBytes == 0 {
		t.Fatalf("expected stored file metadata, got %+v", boq)
	}
	if _, err := svc.Upload(ctx, "p1", KindSchedule, "schedule.csv", strings.NewReader("D1,door\n")); err != nil {
		t.Fatalf("upload schedule: %v", err)
	}
	if _, err := svc.Upload(ctx, "p2", KindDrawing, "plan.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("upload drawing: %v", err)
	}

	list, err := svc.List(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 files in p1, got %d", len(list))
	}

	rc, err := svc.Store.Open(ctx, boq.StorageKey)
	if err != nil {
		t.Fatalf("open stored: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !strings.Contains(string(data), "B1,wall") {
		t.Fatalf("unexpected stored content %q", data)
	}

	if err := svc.Delete(ctx, "p1", boq.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(purger.purged) != 1 || purger.purged[0] != boq.ID {
		t.Fatalf("expected items purged for %s, got %v", boq.ID, purger.purged)
	}
	if _, err := svc.Store.Open(ctx, boq.StorageKey); err == nil {
		t.Fatalf("expected stored object removed")
	}
	if err := svc.Delete(ctx, "p1", boq.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if len(notifier.projects) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(notifier.projects))
	}
}

type busyStub map[string]bool

func (b busyStub) FileBusy(ctx context.Context, fileID string) (bool, error) {
	return b[fileID], nil
}

func TestDeleteRefusesBusyFile(t *testing.T) {
	svc, purger, _ := newService(t)
	ctx := context.Background()
	f, err := svc.Upload(ctx, "p1", KindSchedule, "schedule.csv", strings.NewReader("D1"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	busy := busyStub{f.ID: true}
	svc.Jobs = busy

	if err := svc.Delete(ctx, "p1", f.ID); !errors.Is(err, ErrFileBusy) {
		t.Fatalf("expected ErrFileBusy, got %v", err)
	}
	if len(purger.purged) != 0 {
		t.Fatalf("expected items untouched while busy, got %v", purger.purged)
	}
	if _, err := svc.Repo.Get(ctx, "p1", f.ID); err != nil {
		t.Fatalf("expected file kept: %v", err)
	}

	busy[f.ID] = false
	if err := svc.Delete(ctx, "p1", f.ID); err != nil {
		t.Fatalf("delete once idle: %v", err)
	}
}

func TestGetIsScopedToProject(t *testing.T) {
	svc, _, _ := newService(t)
	f, err := svc.Upload(context.Background(), "p1", KindBOQ, "boq.csv", strings.NewReader("B1"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.Repo.Get(context.Background(), "p2", f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across projects, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"drawing":            KindDrawing,
		" Schedules ":        KindSchedule,
		"BOQ":                KindBOQ,
		"bill-of-quantities": KindBOQ,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseKind("photo"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
