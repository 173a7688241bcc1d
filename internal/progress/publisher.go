package progress

import (
	"context"
	"fmt"
	"time"

	"takeoff-backend/internal/files"
	"takeoff-backend/internal/items"
	"takeoff-backend/internal/jobs"
	"takeoff-backend/internal/projectlog"
	"takeoff-backend/internal/shared/telemetry"
)

// Snapshot is the full client-visible state of a project.
type Snapshot struct {
	ProjectID string             `json:"projectId"`
	Files     []files.File       `json:"files"`
	Jobs      []jobs.Job         `json:"jobs"`
	Items     []items.Item       `json:"items"`
	Logs      []projectlog.Entry `json:"logs"`
	At        time.Time          `json:"at"`
}

// Relay carries notifications between processes.
type Relay interface {
	Publish(ctx context.Context, projectID string) error
}

// Publisher turns change notifications into snapshots for subscribers. With a
// Relay set, notifications travel through it and come back via Broadcast.
type Publisher struct {
	Files  files.Repo
	Jobs   jobs.Repo
	Items  items.Repo
	Logs   projectlog.Repo
	Broker *Broker
	Relay  Relay
}

// Notify signals that the project changed.
func (p *Publisher) Notify(ctx context.Context, projectID string) {
	if p.Relay != nil {
		err := p.Relay.Publish(ctx, projectID)
		if err == nil {
			return
		}
		telemetry.Warn("progress.relay_failed", map[string]any{"project_id": projectID, "error": err.Error()})
	}
	p.Broadcast(ctx, projectID)
}

// Broadcast builds a snapshot and hands it to local subscribers. It does
// nothing when the project has none.
func (p *Publisher) Broadcast(ctx context.Context, projectID string) {
	if p.Broker == nil || !p.Broker.HasSubscribers(projectID) {
		return
	}
	snap, err := p.Snapshot(ctx, projectID)
	if err != nil {
		telemetry.Error("progress.snapshot_failed", map[string]any{"project_id": projectID, "error": err.Error()})
		p.Broker.Publish(projectID, Event{Name: EventError, Data: map[string]string{"message": "failed to load project state"}})
		return
	}
	p.Broker.Publish(projectID, Event{Name: EventUpdate, Data: snap})
}

// Snapshot loads the project's current state.
func (p *Publisher) Snapshot(ctx context.Context, projectID string) (Snapshot, error) {
	snap := Snapshot{ProjectID: projectID, At: time.Now().UTC()}
	var err error
	if snap.Files, err = p.Files.ListByProject(ctx, projectID); err != nil {
		return Snapshot{}, fmt.Errorf("list files: %w", err)
	}
	if p.Jobs != nil {
		if snap.Jobs, err = p.Jobs.ListByProject(ctx, projectID); err != nil {
			return Snapshot{}, fmt.Errorf("list jobs: %w", err)
		}
	}
	if snap.Items, err = p.Items.ListByProject(ctx, projectID); err != nil {
		return Snapshot{}, fmt.Errorf("list items: %w", err)
	}
	if snap.Logs, err = p.Logs.ListRecent(ctx, projectID, "", projectlog.DefaultLimit); err != nil {
		return Snapshot{}, fmt.Errorf("list logs: %w", err)
	}
	if snap.Files == nil {
		snap.Files = []files.File{}
	}
	if snap.Jobs == nil {
		snap.Jobs = []jobs.Job{}
	}
	if snap.Items == nil {
		snap.Items = []items.Item{}
	}
	if snap.Logs == nil {
		snap.Logs = []projectlog.Entry{}
	}
	return snap, nil
}
