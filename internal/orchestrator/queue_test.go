// internal/orchestrator/queue_test.go
package orchestrator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-orchestrator/internal/models"
)

func newRequest(id string, priority models.Priority) *models.QueryRequest {
	return &models.QueryRequest{
		ID:       id,
		TenantID: "acme",
		Text:     "comprehensive analysis",
		Priority: priority,
	}
}

func TestQueue_FirstRequestIsPositionOne(t *testing.T) {
	q := NewBackpressureQueue(3, 30*time.Second)

	pos := q.Enqueue(newRequest("r1", models.PriorityNormal))
	assert.Equal(t, 1, pos.Position)
	assert.Equal(t, 10*time.Second, pos.EstimatedWait) // 1 * 30s / 3
}

func TestQueue_PositionCountsHigherTiersAndOwnTier(t *testing.T) {
	q := NewBackpressureQueue(3, 30*time.Second)

	q.Enqueue(newRequest("h1", models.PriorityHigh))
	q.Enqueue(newRequest("n1", models.PriorityNormal))
	q.Enqueue(newRequest("n2", models.PriorityNormal))

	// A low request waits behind one high and two normal entries.
	pos := q.Enqueue(newRequest("l1", models.PriorityLow))
	assert.Equal(t, 4, pos.Position)

	// A high request only waits behind its own tier.
	pos = q.Enqueue(newRequest("h2", models.PriorityHigh))
	assert.Equal(t, 2, pos.Position)
}

func TestQueue_DequeueOrder_PriorityThenFIFO(t *testing.T) {
	q := NewBackpressureQueue(10, 30*time.Second)

	q.Enqueue(newRequest("n1", models.PriorityNormal))
	q.Enqueue(newRequest("l1", models.PriorityLow))
	q.Enqueue(newRequest("h1", models.PriorityHigh))
	q.Enqueue(newRequest("n2", models.PriorityNormal))
	q.Enqueue(newRequest("h2", models.PriorityHigh))

	var order []string
	for {
		req := q.Dequeue()
		if req == nil {
			break
		}
		order = append(order, req.ID)
	}
	assert.Equal(t, []string{"h1", "h2", "n1", "n2", "l1"}, order)
}

func TestQueue_ConcurrencyCap(t *testing.T) {
	q := NewBackpressureQueue(3, 30*time.Second)

	for i := 0; i < 5; i++ {
		q.Enqueue(newRequest(fmt.Sprintf("r%d", i), models.PriorityNormal))
	}

	var running []*models.QueryRequest
	for i := 0; i < 3; i++ {
		req := q.Dequeue()
		require.NotNil(t, req)
		running = append(running, req)
	}

	// Saturated: queued work stays queued until a slot frees.
	assert.Nil(t, q.Dequeue())
	assert.Equal(t, 3, q.ActiveDeep())
	assert.Equal(t, 2, q.Depth())

	q.Complete(running[0])
	assert.Equal(t, 2, q.ActiveDeep())

	next := q.Dequeue()
	require.NotNil(t, next)
	assert.Equal(t, "r3", next.ID)
}

func TestQueue_CompleteIgnoresUnknownRequest(t *testing.T) {
	q := NewBackpressureQueue(1, 30*time.Second)

	q.Enqueue(newRequest("r1", models.PriorityNormal))
	req := q.Dequeue()
	require.NotNil(t, req)

	q.Complete(newRequest("never-dequeued", models.PriorityNormal))
	assert.Equal(t, 1, q.ActiveDeep())

	q.Complete(req)
	assert.Equal(t, 0, q.ActiveDeep())

	// Double completion must not underflow the counter.
	q.Complete(req)
	assert.Equal(t, 0, q.ActiveDeep())
}

func TestQueue_Clear(t *testing.T) {
	q := NewBackpressureQueue(2, 30*time.Second)

	q.Enqueue(newRequest("r1", models.PriorityHigh))
	running := q.Dequeue()
	require.NotNil(t, running)

	q.Enqueue(newRequest("r2", models.PriorityNormal))
	q.Enqueue(newRequest("r3", models.PriorityLow))
	require.Equal(t, 2, q.Depth())

	q.Clear()
	assert.Equal(t, 0, q.Depth())
	assert.Nil(t, q.Dequeue())

	// In-flight work keeps its slot across a clear.
	assert.Equal(t, 1, q.ActiveDeep())
}

func TestQueue_EstimatedWaitScalesWithPosition(t *testing.T) {
	q := NewBackpressureQueue(3, 30*time.Second)

	for i := 0; i < 5; i++ {
		q.Enqueue(newRequest(fmt.Sprintf("r%d", i), models.PriorityNormal))
	}
	pos := q.Enqueue(newRequest("r5", models.PriorityNormal))

	assert.Equal(t, 6, pos.Position)
	assert.Equal(t, 60*time.Second, pos.EstimatedWait) // 6 * 30s / 3
}
