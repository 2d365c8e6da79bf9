// Package notification models the staff-facing notification documents the
// engine emits and reacts to. Notifications tied to an order are deduplicated
// by (orderId, action) while in a non-terminal status.
package notification

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("notification: not found")
	ErrInvalid  = errors.New("notification: title, message and event are required")
)

// Status lifecycle of a notification. StatusRefund is the transition the
// staff UI sets to hand a refund back to the engine.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRefund     Status = "refund"
)

// Actions the engine emits or consumes.
const (
	ActionRefund      = "refund"
	ActionCashPayment = "cash_payment"
)

// Severities used on engine-emitted notifications.
const (
	SeverityInfo  = "info"
	SeverityError = "error"
)

// Notification is one staff-facing message, optionally tied to an order.
type Notification struct {
	ID             string
	Title          string
	Message        string
	PointOfService string
	Price          *float64
	ItemIDs        []string
	OrderID        string
	PaymentMethod  string
	Severity       string
	Action         string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the notification still occupies its (orderId,
// action) dedup slot.
func (n Notification) Active() bool {
	return n.Status == StatusCreated || n.Status == StatusInProgress
}

// Clone returns a deep copy.
func (n Notification) Clone() Notification {
	clone := n
	if n.Price != nil {
		v := *n.Price
		clone.Price = &v
	}
	clone.ItemIDs = append([]string(nil), n.ItemIDs...)
	return clone
}

// Float is a convenience for building price pointers in writes and fixtures.
func Float(v float64) *float64 { return &v }
