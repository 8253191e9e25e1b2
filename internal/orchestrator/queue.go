// internal/orchestrator/queue.go
package orchestrator

import (
	"sync"
	"time"

	"insight-orchestrator/internal/common/metrics"
	"insight-orchestrator/internal/models"
)

// BackpressureQueue admits deep-mode requests under a global concurrency
// cap. Three priority tiers, FIFO within a tier, fairness is global across
// tenants. Every mutating operation runs under one exclusion lock so no
// partial update is ever observable.
type BackpressureQueue struct {
	mu sync.Mutex

	high   []*models.QueuedRequest
	normal []*models.QueuedRequest
	low    []*models.QueuedRequest

	processing map[string]*models.QueryRequest

	maxConcurrentDeep int
	currentDeep       int
	avgAgentDuration  time.Duration
}

func NewBackpressureQueue(maxConcurrentDeep int, avgAgentDuration time.Duration) *BackpressureQueue {
	return &BackpressureQueue{
		processing:        make(map[string]*models.QueryRequest),
		maxConcurrentDeep: maxConcurrentDeep,
		avgAgentDuration:  avgAgentDuration,
	}
}

// Enqueue appends the request to its priority tier and returns its position.
// Position is 1 + requests ahead across higher tiers + requests ahead within
// the request's own tier, excluding itself: the first request into an empty
// queue is position 1.
func (q *BackpressureQueue) Enqueue(req *models.QueryRequest) models.QueuePosition {
	q.mu.Lock()
	defer q.mu.Unlock()

	qr := &models.QueuedRequest{
		Request:    req,
		Priority:   req.Priority,
		EnqueuedAt: time.Now(),
	}

	var higherAhead, ownAhead int
	switch req.Priority {
	case models.PriorityHigh:
		ownAhead = len(q.high)
		q.high = append(q.high, qr)
	case models.PriorityLow:
		higherAhead = len(q.high) + len(q.normal)
		ownAhead = len(q.low)
		q.low = append(q.low, qr)
	default:
		higherAhead = len(q.high)
		ownAhead = len(q.normal)
		q.normal = append(q.normal, qr)
	}

	q.updateDepthGauges()

	position := 1 + higherAhead + ownAhead
	return models.QueuePosition{
		Position:      position,
		EstimatedWait: q.estimateWait(position),
	}
}

// Dequeue returns the next request by priority, or nil whenever the deep
// concurrency counter is saturated, regardless of queue contents.
func (q *BackpressureQueue) Dequeue() *models.QueryRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentDeep >= q.maxConcurrentDeep {
		return nil
	}

	var qr *models.QueuedRequest
	switch {
	case len(q.high) > 0:
		qr, q.high = q.high[0], q.high[1:]
	case len(q.normal) > 0:
		qr, q.normal = q.normal[0], q.normal[1:]
	case len(q.low) > 0:
		qr, q.low = q.low[0], q.low[1:]
	default:
		return nil
	}

	q.currentDeep++
	q.processing[qr.Request.ID] = qr.Request
	q.updateDepthGauges()
	metrics.DeepExecutionsActive.Set(float64(q.currentDeep))

	return qr.Request
}

// Complete releases the concurrency slot held by a dequeued request.
func (q *BackpressureQueue) Complete(req *models.QueryRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.processing[req.ID]; !ok {
		return
	}
	delete(q.processing, req.ID)
	if q.currentDeep > 0 {
		q.currentDeep--
	}
	metrics.DeepExecutionsActive.Set(float64(q.currentDeep))
}

// Clear empties all tiers. In-flight executions keep their slots.
func (q *BackpressureQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.high = nil
	q.normal = nil
	q.low = nil
	q.updateDepthGauges()
}

// Depth returns the number of waiting requests across all tiers.
func (q *BackpressureQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal) + len(q.low)
}

// ActiveDeep returns the number of deep executions currently holding slots.
func (q *BackpressureQueue) ActiveDeep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentDeep
}

func (q *BackpressureQueue) estimateWait(position int) time.Duration {
	if q.maxConcurrentDeep <= 0 {
		return 0
	}
	return time.Duration(position) * q.avgAgentDuration / time.Duration(q.maxConcurrentDeep)
}

// updateDepthGauges must be called with the lock held.
func (q *BackpressureQueue) updateDepthGauges() {
	metrics.QueueDepth.WithLabelValues("high").Set(float64(len(q.high)))
	metrics.QueueDepth.WithLabelValues("normal").Set(float64(len(q.normal)))
	metrics.QueueDepth.WithLabelValues("low").Set(float64(len(q.low)))
}
