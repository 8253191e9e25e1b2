// internal/cache/events.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/common/metrics"
	"insight-orchestrator/internal/models"
)

// invalidationTable maps data-mutation event types to the cache categories
// they invalidate. Product-level changes touch everything; narrower changes
// touch their own category plus cached query results built from it.
var invalidationTable = map[models.EventType][]string{
	models.EventProductUpdated:   {CategoryPricing, CategorySentiment, CategoryForecast, CategoryQueryResult},
	models.EventProductDeleted:   {CategoryPricing, CategorySentiment, CategoryForecast, CategoryQueryResult},
	models.EventPriceUpdated:     {CategoryPricing, CategoryQueryResult},
	models.EventReviewAdded:      {CategorySentiment, CategoryQueryResult},
	models.EventReviewUpdated:    {CategorySentiment, CategoryQueryResult},
	models.EventSalesUpdated:     {CategoryForecast, CategoryQueryResult},
	models.EventInventoryUpdated: {CategoryForecast, CategoryQueryResult},
}

// CategoriesFor returns the categories invalidated by an event type.
func CategoriesFor(eventType models.EventType) []string {
	return invalidationTable[eventType]
}

// Invalidator cascades event-driven bulk deletes across tenant-scoped keys.
type Invalidator struct {
	cache  *Cache
	logger logger.Logger
}

func NewInvalidator(c *Cache, log logger.Logger) *Invalidator {
	return &Invalidator{
		cache: c,
		logger: log.With(map[string]interface{}{
			"component": "cache-invalidator",
		}),
	}
}

// HandleEvent invalidates every affected category for the event's tenant.
// Every invalidation is logged with event type, category and count.
func (i *Invalidator) HandleEvent(ctx context.Context, ev models.DataEvent) error {
	categories, ok := invalidationTable[ev.EventType]
	if !ok {
		i.logger.Debug("no cache mapping for event type", map[string]interface{}{
			"eventType": string(ev.EventType),
		})
		return nil
	}

	for _, category := range categories {
		pattern := fmt.Sprintf("%s:%s:*", category, ev.TenantID)
		count, err := i.cache.Invalidate(ctx, pattern)
		if err != nil {
			i.logger.Error("cache invalidation failed", map[string]interface{}{
				"eventType": string(ev.EventType),
				"category":  category,
				"tenantId":  ev.TenantID,
				"error":     err.Error(),
			})
			return err
		}

		metrics.CacheInvalidations.WithLabelValues(string(ev.EventType)).Add(float64(count))
		i.logger.Info("cache invalidated", map[string]interface{}{
			"eventType": string(ev.EventType),
			"category":  category,
			"tenantId":  ev.TenantID,
			"entityId":  ev.EntityID,
			"count":     count,
		})
	}
	return nil
}

// Subscriber consumes data-mutation events from a Redis pub/sub channel and
// feeds them to the invalidator.
type Subscriber struct {
	rdb         *redis.Client
	channel     string
	invalidator *Invalidator
	logger      logger.Logger
}

func NewSubscriber(rdb *redis.Client, channel string, inv *Invalidator, log logger.Logger) *Subscriber {
	return &Subscriber{
		rdb:         rdb,
		channel:     channel,
		invalidator: inv,
		logger: log.With(map[string]interface{}{
			"component": "event-subscriber",
			"channel":   channel,
		}),
	}
}

// Run blocks until ctx is cancelled, dispatching each received event.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	s.logger.Info("event subscriber started", nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.DataEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.logger.Warn("malformed event payload", map[string]interface{}{
					"payload": msg.Payload,
					"error":   err.Error(),
				})
				continue
			}
			if err := s.invalidator.HandleEvent(ctx, ev); err != nil {
				s.logger.Error("event handling failed", map[string]interface{}{
					"eventType": string(ev.EventType),
					"error":     err.Error(),
				})
			}
		}
	}
}
