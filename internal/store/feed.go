package store

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
)

// ChangeKind tells how a document changed.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change event names the feed routes on.
const (
	EventPurchaseWritten     = "purchase.written"
	EventPOSItemUpdated      = "pos_item.updated"
	EventNotificationUpdated = "notification.updated"
)

// Event is any store change with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published change.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes changes to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for change-event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// PurchaseChange is any write on a purchase document. Before is nil on
// create, After is nil on delete.
type PurchaseChange struct {
	EventID    string
	PurchaseID string
	Kind       ChangeKind
	Before     *purchase.Purchase
	After      *purchase.Purchase
}

func (PurchaseChange) EventName() string { return EventPurchaseWritten }

// POSItemChange is an update of one point-of-sale line item.
type POSItemChange struct {
	EventID string
	POSID   string
	ItemID  string
	Kind    ChangeKind
	Before  *pos.Item
	After   *pos.Item
}

func (POSItemChange) EventName() string { return EventPOSItemUpdated }

// NotificationChange is an update of one notification document.
type NotificationChange struct {
	EventID        string
	NotificationID string
	Kind           ChangeKind
	Before         *notification.Notification
	After          *notification.Notification
}

func (NotificationChange) EventName() string { return EventNotificationUpdated }
