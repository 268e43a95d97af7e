package domain

import "time"

// EventType names a domain event published to the event bus.
type EventType string

const (
	EventProVerificationSubmitted EventType = "pro_verification.submitted"
	EventProVerificationDecided   EventType = "pro_verification.decided"
	EventProVerificationManual    EventType = "pro_verification.routed_to_manual"
	EventVatVerificationCompleted EventType = "vat_verification.completed"
	EventOrderConfirmed           EventType = "order.confirmed"
	EventOrderReleased            EventType = "order.released"
)

// Event is a domain event. Key groups events of one aggregate on one partition.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}
