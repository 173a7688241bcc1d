package llm

import (
	"context"
	"errors"
	"sync"

	"takeoff-backend/internal/shared/telemetry"
)

// Factory builds a fresh provider client.
type Factory func() (Client, error)

// Holder owns the active client and lets callers rebuild it after an auth or
// configuration failure. It implements Client by delegating to the current one.
type Holder struct {
	mu      sync.RWMutex
	client  Client
	factory Factory
}

// NewHolder builds the first client through factory.
func NewHolder(factory Factory) (*Holder, error) {
	if factory == nil {
		return nil, errors.New("llm factory is required")
	}
	c, err := factory()
	if err != nil {
		return nil, err
	}
	return &Holder{client: c, factory: factory}, nil
}

// Current returns the active client.
func (h *Holder) Current() Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// Reset replaces the active client. On factory failure the old client stays.
func (h *Holder) Reset() error {
	c, err := h.factory()
	if err != nil {
		telemetry.Error("llm.reset_failed", map[string]any{"error": err.Error()})
		return err
	}
	h.mu.Lock()
	h.client = c
	h.mu.Unlock()
	telemetry.Info("llm.reset", nil)
	return nil
}

func (h *Holder) Upload(ctx context.Context, doc Document) (ArtifactRef, error) {
	return h.Current().Upload(ctx, doc)
}

func (h *Holder) Extract(ctx context.Context, req ExtractRequest) (Result, error) {
	return h.Current().Extract(ctx, req)
}

func (h *Holder) Compare(ctx context.Context, req CompareRequest) (Result, error) {
	return h.Current().Compare(ctx, req)
}

func (h *Holder) Delete(ctx context.Context, ref ArtifactRef) {
	h.Current().Delete(ctx, ref)
}

var _ Client = (*Holder)(nil)
