package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"takeoff-backend/internal/shared/metrics"
	"takeoff-backend/internal/shared/telemetry"
)

// ErrPoolClosed is returned by Send after Stop.
var ErrPoolClosed = errors.New("queue pool closed")

// Pool is an in-process queue with a bounded number of workers, used when no
// external queue is configured. Send never blocks, so handlers may enqueue
// follow-up work into the pool that runs them.
type Pool struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []Message
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool; call Start to launch the workers.
func NewPool(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: max(1, workers),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. Handler errors and panics are logged.
func (p *Pool) Start(handle HandlerFunc) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				msg, ok := p.next()
				if !ok {
					return
				}
				metrics.IncQueueReceived()
				p.run(handle, msg)
			}
		}()
	}
}

// next blocks until a message is available or the pool is closed and drained.
func (p *Pool) next() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.backlog) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.backlog) == 0 {
		return Message{}, false
	}
	msg := p.backlog[0]
	p.backlog[0] = Message{}
	p.backlog = p.backlog[1:]
	return msg, true
}

func (p *Pool) run(handle HandlerFunc, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("queue.pool.panic", map[string]any{
				"job_id": msg.JobID,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	if err := handle(p.ctx, msg); err != nil {
		telemetry.Error("queue.pool.failed", map[string]any{
			"job_id":     msg.JobID,
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
	}
}

// Send appends msg to the backlog.
func (p *Pool) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.backlog = append(p.backlog, msg)
	p.cond.Signal()
	return nil
}

// Stop refuses new messages and waits for the backlog to drain. When ctx ends
// first, running handlers see their context cancelled and the rest of the
// backlog is dropped and returned so the caller can settle those jobs.
func (p *Pool) Stop(ctx context.Context) []Message {
	var dropped []Message
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.mu.Lock()
		dropped = p.backlog
		p.backlog = nil
		p.mu.Unlock()
		for range dropped {
			metrics.IncQueueDiscarded()
		}
		p.cancel()
		<-done
	}
	p.cancel()
	return dropped
}

var _ Client = (*Pool)(nil)
