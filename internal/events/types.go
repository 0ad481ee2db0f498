// internal/events/types.go
package events

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// EventType represents the type of event.
type EventType string

const (
	// Transfer events
	TransferCompleted EventType = "transfer.completed"
	TransferRejected  EventType = "transfer.rejected"

	// Holder events
	ApprovalChanged EventType = "approval.changed"
	Delivered       EventType = "reflection.delivered"

	// Admin events
	OwnershipTransferred EventType = "ownership.transferred"
	ParameterChanged     EventType = "parameter.changed"
	TradingOpened        EventType = "trading.opened"
	TokenRecovered       EventType = "token.recovered"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event of type t with time at.
func NewBase(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TransferCompletedEvent is emitted after a transfer has been committed.
type TransferCompletedEvent struct {
	BaseEvent
	Receipt types.Receipt
}

// TransferRejectedEvent is emitted when a transfer fails validation.
type TransferRejectedEvent struct {
	BaseEvent
	From   types.Address
	To     types.Address
	Amount *uint256.Int
	Stage  string
	Reason string
}

// ApprovalEvent is emitted when an allowance changes.
type ApprovalEvent struct {
	BaseEvent
	Owner   types.Address
	Spender types.Address
	Amount  *uint256.Int
}

// DeliveredEvent is emitted when a holder donates to all included holders.
type DeliveredEvent struct {
	BaseEvent
	From        types.Address
	Amount      *uint256.Int
	Coefficient *uint256.Int
}

// OwnershipTransferredEvent is emitted when the owner changes or renounces.
type OwnershipTransferredEvent struct {
	BaseEvent
	Previous types.Address
	Next     types.Address
}

// ParameterChangedEvent is emitted by every admin setter.
type ParameterChangedEvent struct {
	BaseEvent
	Name    string
	Value   string
	Account types.Address // set for per-account flags
}

// TradingOpenedEvent is emitted once, when trading opens.
type TradingOpenedEvent struct {
	BaseEvent
}

// TokenRecoveredEvent is emitted after a foreign token was rescued.
type TokenRecoveredEvent struct {
	BaseEvent
	Token  types.Address
	To     types.Address
	Amount *uint256.Int
}
