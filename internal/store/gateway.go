// Package store defines the document-store gateway the engine runs against
// and the change-feed contract its triggers consume. Implementations (the
// in-memory store, MongoDB) own all atomicity guarantees: batched writes,
// field merges and the per-line-item transaction used during migration.
package store

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
)

// InQueryLimit is the backend cap on how many ids one membership query may
// carry. Callers chunk larger id sets.
const InQueryLimit = 10

// DistributedOrder is one point-of-sale bucket materialized by the
// scheduler: the order document plus its grouped line items. A slice of
// buckets is committed as a single batched write.
type DistributedOrder struct {
	POSID string
	Order dispatch.Order
	Items []dispatch.Item
}

// PurchaseMerge is a partial update of a purchase document. Nil fields are
// left untouched; DistributedAtServerTime asks the implementation to stamp
// its own clock.
type PurchaseMerge struct {
	IsPaid                  *bool
	Distributed             *bool
	DistributedAtServerTime bool
	DistributionError       *string
	DistributionFailed      *bool
	TotalPrice              *float64
}

// OrderMerge is a partial update of a distributed-order document.
// ClearTransferredAt removes the marker; TransferredAtServerTime stamps it.
type OrderMerge struct {
	Status                  *dispatch.OrderStatus
	TransferredAtServerTime bool
	ClearTransferredAt      bool
	TotalPrice              *float64
}

// Txn is the scope available inside RunOrderItemTxn: reads and writes of
// distributed-order line items with read-your-writes isolation against
// concurrent writers of the same documents.
type Txn interface {
	GetOrderItem(ctx context.Context, eventID, posID, orderID, key string) (dispatch.Item, error)
	SetOrderItem(ctx context.Context, eventID, posID, orderID, key string, item dispatch.Item) error
	DeleteOrderItem(ctx context.Context, eventID, posID, orderID, key string) error
}

// Gateway is the engine's typed view of the document store laid out in
// paths.go. Reads return deep copies; mutating a returned value never
// mutates store state. Missing documents surface as the owning domain
// package's not-found sentinel.
type Gateway interface {
	// Events and serving points.
	GetEvent(ctx context.Context, eventID string) (event.Event, error)
	GetServingPoint(ctx context.Context, eventID, servingPointID string) (event.ServingPoint, error)

	// Canonical catalog.
	GetCanonicalItem(ctx context.Context, eventID, itemID string) (catalog.Item, error)
	SetCanonicalItemAvailability(ctx context.Context, eventID, itemID string, available bool) error

	// Points of sale. ListPointsOfSale returns documents in ascending
	// document-id order; every enumeration-order tie-break in the
	// application layer builds on that.
	ListPointsOfSale(ctx context.Context, eventID string) ([]pos.PointOfSale, error)
	ListPOSItems(ctx context.Context, eventID, posID string) ([]pos.Item, error)
	GetPOSItem(ctx context.Context, eventID, posID, itemID string) (pos.Item, error)

	// Purchases. CreatePurchase writes the purchase document and its item
	// sub-collection in one batch and reports ErrConflict when the id is
	// already taken.
	CreatePurchase(ctx context.Context, eventID string, p purchase.Purchase, items []purchase.Item) error
	GetPurchase(ctx context.Context, eventID, purchaseID string) (purchase.Purchase, error)
	MergePurchase(ctx context.Context, eventID, purchaseID string, m PurchaseMerge) error
	ListPurchaseItems(ctx context.Context, eventID, purchaseID string) ([]purchase.Item, error)
	// ListPurchaseItemsByItemIDs filters on the itemId field. len(itemIDs)
	// must not exceed InQueryLimit.
	ListPurchaseItemsByItemIDs(ctx context.Context, eventID, purchaseID string, itemIDs []string) ([]purchase.Item, error)
	// CancelPurchaseItem merges {status: canceled, quantity: 0}.
	CancelPurchaseItem(ctx context.Context, eventID, purchaseID, docID string) error

	// Distributed orders.
	CountOpenOrders(ctx context.Context, eventID, posID string) (int, error)
	ListOpenOrders(ctx context.Context, eventID, posID string) ([]dispatch.Order, error)
	GetOrder(ctx context.Context, eventID, posID, orderID string) (dispatch.Order, error)
	// WriteDistributedOrders upserts every bucket's order document and line
	// items in a single batch, stamping each order's OrderDate with the
	// store's clock.
	WriteDistributedOrders(ctx context.Context, eventID string, orders []DistributedOrder) error
	UpsertOrder(ctx context.Context, eventID, posID string, o dispatch.Order) error
	MergeOrder(ctx context.Context, eventID, posID, orderID string, m OrderMerge) error
	ListOrderItems(ctx context.Context, eventID, posID, orderID string) ([]dispatch.Item, error)
	// ListOrderItemsByItemIDs filters on the line item's effective item id.
	// len(itemIDs) must not exceed InQueryLimit.
	ListOrderItemsByItemIDs(ctx context.Context, eventID, posID, orderID string, itemIDs []string) ([]dispatch.Item, error)
	MergeOrderItemStatus(ctx context.Context, eventID, posID, orderID, key, status string) error
	// CancelOrderItem merges {status: canceled, quantity: 0}.
	CancelOrderItem(ctx context.Context, eventID, posID, orderID, key string) error
	// RunOrderItemTxn runs fn inside one store transaction. fn may be
	// retried on contention, so it must be side-effect free outside tx and
	// must reach the store only through tx.
	RunOrderItemTxn(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error

	// Notifications. The implementation stamps CreatedAt/UpdatedAt on
	// insert and UpdatedAt on update.
	FindActiveNotification(ctx context.Context, eventID, orderID, action string) (notification.Notification, error)
	InsertNotification(ctx context.Context, eventID string, n notification.Notification) error
	UpdateNotification(ctx context.Context, eventID string, n notification.Notification) error

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}
