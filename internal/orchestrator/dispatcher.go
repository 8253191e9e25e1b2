// internal/orchestrator/dispatcher.go
package orchestrator

import (
	"context"
	"sync"
	"time"

	"insight-orchestrator/internal/models"
)

// dispatchInterval is the fallback poll period; normal operation is driven
// by kicks from enqueue and completion.
const dispatchInterval = 100 * time.Millisecond

// dispatcher moves requests from the backpressure queue to their waiting
// goroutines as concurrency slots free up. Each waiting request registers a
// ready channel keyed by request id before enqueueing.
type dispatcher struct {
	queue *BackpressureQueue

	mu      sync.Mutex
	waiters map[string]chan struct{}

	wake chan struct{}
}

func newDispatcher(queue *BackpressureQueue) *dispatcher {
	return &dispatcher{
		queue:   queue,
		waiters: make(map[string]chan struct{}),
		wake:    make(chan struct{}, 1),
	}
}

func (d *dispatcher) register(requestID string) chan struct{} {
	ch := make(chan struct{})
	d.mu.Lock()
	d.waiters[requestID] = ch
	d.mu.Unlock()
	return ch
}

// abandon withdraws a waiter that is giving up (deadline or cancellation).
// It reports whether the dispatcher had already admitted the request; the
// caller then owns the granted slot and must release it. Admission closes
// the ready channel under the same lock, so the two outcomes cannot be
// confused.
func (d *dispatcher) abandon(requestID string, ready chan struct{}) (admitted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.waiters[requestID]; ok {
		delete(d.waiters, requestID)
		return false
	}
	select {
	case <-ready:
		return true
	default:
		return false
	}
}

// kick nudges the dispatch loop; a pending kick absorbs further ones.
func (d *dispatcher) kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run drains the queue whenever capacity may have freed. Blocks until ctx
// is cancelled.
func (d *dispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-ticker.C:
		}
		d.drain()
	}
}

func (d *dispatcher) drain() {
	for {
		req := d.queue.Dequeue()
		if req == nil {
			return
		}
		if !d.admit(req) {
			// The waiter gave up (deadline or cancellation); release its slot.
			d.queue.Complete(req)
		}
	}
}

func (d *dispatcher) admit(req *models.QueryRequest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.waiters[req.ID]
	if !ok {
		return false
	}
	delete(d.waiters, req.ID)
	close(ch)
	return true
}
