// internal/models/event.go
package models

import "time"

// EventType identifies a data mutation published by the ingestion layer.
type EventType string

const (
	EventProductUpdated   EventType = "product.updated"
	EventProductDeleted   EventType = "product.deleted"
	EventPriceUpdated     EventType = "price.updated"
	EventReviewAdded      EventType = "review.added"
	EventReviewUpdated    EventType = "review.updated"
	EventSalesUpdated     EventType = "sales.updated"
	EventInventoryUpdated EventType = "inventory.updated"
)

// DataEvent is published on any mutation of a business entity. The cache
// subscriber maps its type to the categories it invalidates.
type DataEvent struct {
	EventType EventType              `json:"eventType"`
	TenantID  string                 `json:"tenantId"`
	EntityID  string                 `json:"entityId"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
