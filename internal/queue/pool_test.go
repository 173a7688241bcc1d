package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesAllMessages(t *testing.T) {
	pool := NewPool(3)
	var mu sync.Mutex
	seen := map[string]bool{}
	pool.Start(func(ctx context.Context, msg Message) error {
		mu.Lock()
		seen[msg.JobID] = true
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := pool.Send(ctx, Message{JobID: id}); err != nil {
			t.Fatalf("send %s: %v", id, err)
		}
	}
	pool.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 6 {
		t.Fatalf("expected 6 processed messages, got %d", len(seen))
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var active, peak int32
	pool.Start(func(ctx context.Context, msg Message) error {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	for i := 0; i < 8; i++ {
		_ = pool.Send(context.Background(), Message{JobID: "j"})
	}
	pool.Stop(context.Background())
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent handlers, got %d", peak)
	}
}

func TestPoolRecoversPanicsAndRejectsAfterStop(t *testing.T) {
	pool := NewPool(1)
	var calls int32
	pool.Start(func(ctx context.Context, msg Message) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return errors.New("logged only")
	})
	_ = pool.Send(context.Background(), Message{JobID: "1"})
	_ = pool.Send(context.Background(), Message{JobID: "2"})
	pool.Stop(context.Background())

	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected worker to survive panic, got %d calls", calls)
	}
	if err := pool.Send(context.Background(), Message{JobID: "3"}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolStopReturnsDroppedBacklog(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	pool.Start(func(ctx context.Context, msg Message) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	})
	_ = pool.Send(context.Background(), Message{JobID: "running"})
	<-started
	_ = pool.Send(context.Background(), Message{JobID: "waiting-1"})
	_ = pool.Send(context.Background(), Message{JobID: "waiting-2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dropped := pool.Stop(ctx)
	if len(dropped) != 2 || dropped[0].JobID != "waiting-1" || dropped[1].JobID != "waiting-2" {
		t.Fatalf("expected both waiting messages returned, got %+v", dropped)
	}
}

func TestPoolHandlerMaySendFollowUp(t *testing.T) {
	pool := NewPool(1)
	done := make(chan struct{})
	pool.Start(func(ctx context.Context, msg Message) error {
		if msg.JobID == "first" {
			return pool.Send(ctx, Message{JobID: "second"})
		}
		close(done)
		return nil
	})
	if err := pool.Send(context.Background(), Message{JobID: "first"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("follow-up message was not processed")
	}
	pool.Stop(context.Background())
}
