package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/business/execution/domain"
)

// EventType classifies pipeline lifecycle events.
type EventType string

const (
	EventIdentified EventType = "identified"
	EventRejected   EventType = "rejected"
	EventExecuting  EventType = "executing"
	EventCompleted  EventType = "completed"
	EventFailed     EventType = "failed"
)

// Event is one pipeline lifecycle notification, published on the
// outbound channel for the monitor and any external consumer.
type Event struct {
	Type          EventType
	OpportunityID string
	Stage         domain.Stage
	Profit        decimal.Decimal
	Err           error
	At            time.Time
}
