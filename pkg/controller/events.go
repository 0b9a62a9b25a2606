package controller

import (
	"tipjar/pkg/models"
)

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventSessionChanged   EventType = "session_changed"
	EventBalanceUpdated   EventType = "balance_updated"
	EventTipsUpdated      EventType = "tips_updated"
	EventOwnerUpdated     EventType = "owner_updated"
	EventOperationChanged EventType = "operation_changed"
	EventNotice           EventType = "notice"
)

// Event represents a state change.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// OperationChange is the payload of EventOperationChanged.
type OperationChange struct {
	Operation models.OperationState `json:"operation"`
	Pending   models.WriteKind      `json:"pending,omitempty"`
}
