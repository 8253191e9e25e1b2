// internal/orchestrator/dispatcher_test.go
package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-orchestrator/internal/models"
)

// ==========================
// Admission Tests
// ==========================

func TestDispatcher_AdmitsRegisteredWaiter(t *testing.T) {
	q := NewBackpressureQueue(1, time.Second)
	d := newDispatcher(q)

	req := newRequest("r1", models.PriorityNormal)
	ready := d.register(req.ID)
	q.Enqueue(req)

	d.drain()

	select {
	case <-ready:
	default:
		t.Fatal("waiter was not admitted")
	}
	assert.Equal(t, 1, q.ActiveDeep())
}

func TestDispatcher_AbandonBeforeAdmission(t *testing.T) {
	q := NewBackpressureQueue(1, time.Second)
	d := newDispatcher(q)

	req := newRequest("r1", models.PriorityNormal)
	ready := d.register(req.ID)
	q.Enqueue(req)

	// The waiter gives up before the dispatcher ever runs.
	assert.False(t, d.abandon(req.ID, ready), "no slot was granted yet")

	// The dispatcher then dequeues the orphaned request and must release
	// its slot itself.
	d.drain()
	assert.Zero(t, q.ActiveDeep())
}

func TestDispatcher_AbandonAfterAdmissionReturnsSlot(t *testing.T) {
	q := NewBackpressureQueue(1, time.Second)
	d := newDispatcher(q)

	req := newRequest("r1", models.PriorityNormal)
	ready := d.register(req.ID)
	q.Enqueue(req)
	d.drain()

	// The waiter's deadline fired in the same instant admission closed the
	// ready channel; it never selected on ready. abandon must report the
	// granted slot so the waiter hands it back.
	admitted := d.abandon(req.ID, ready)
	require.True(t, admitted, "slot was granted, caller owns it")
	q.Complete(req)
	d.kick()

	// Capacity is whole again: the next waiter gets the single slot.
	next := newRequest("r2", models.PriorityNormal)
	readyNext := d.register(next.ID)
	q.Enqueue(next)
	d.drain()

	select {
	case <-readyNext:
	default:
		t.Fatal("slot was not returned after the abandoned admission")
	}
	assert.Equal(t, 1, q.ActiveDeep())
}

func TestDispatcher_DoubleAbandonIsIdempotent(t *testing.T) {
	q := NewBackpressureQueue(1, time.Second)
	d := newDispatcher(q)

	req := newRequest("r1", models.PriorityNormal)
	ready := d.register(req.ID)
	q.Enqueue(req)
	d.drain()

	assert.True(t, d.abandon(req.ID, ready))
	assert.True(t, d.abandon(req.ID, ready), "ready stays closed; Complete is idempotent downstream")
	q.Complete(req)
	q.Complete(req)
	assert.Zero(t, q.ActiveDeep())
}
