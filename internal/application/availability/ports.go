package availability

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/store"
)

// Store is the slice of the document store the reconciler needs.
type Store interface {
	SetCanonicalItemAvailability(ctx context.Context, eventID, itemID string, available bool) error
	ListPointsOfSale(ctx context.Context, eventID string) ([]pos.PointOfSale, error)
	ListPOSItems(ctx context.Context, eventID, posID string) ([]pos.Item, error)
	CountOpenOrders(ctx context.Context, eventID, posID string) (int, error)
	ListOpenOrders(ctx context.Context, eventID, posID string) ([]dispatch.Order, error)
	GetOrder(ctx context.Context, eventID, posID, orderID string) (dispatch.Order, error)
	UpsertOrder(ctx context.Context, eventID, posID string, o dispatch.Order) error
	MergeOrder(ctx context.Context, eventID, posID, orderID string, m store.OrderMerge) error
	ListOrderItems(ctx context.Context, eventID, posID, orderID string) ([]dispatch.Item, error)
	MergeOrderItemStatus(ctx context.Context, eventID, posID, orderID, key, status string) error
	RunOrderItemTxn(ctx context.Context, fn func(ctx context.Context, tx store.Txn) error) error
}

// Notifier creates staff notifications; refunds go through it so the
// (orderId, action) dedup applies.
type Notifier interface {
	CreateNotification(ctx context.Context, eventID string, n notification.Notification) (string, error)
}
