package distribution

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/store"
)

// Store is the slice of the document store the distribution components need.
type Store interface {
	GetEvent(ctx context.Context, eventID string) (event.Event, error)
	GetServingPoint(ctx context.Context, eventID, servingPointID string) (event.ServingPoint, error)
	GetCanonicalItem(ctx context.Context, eventID, itemID string) (catalog.Item, error)
	ListPointsOfSale(ctx context.Context, eventID string) ([]pos.PointOfSale, error)
	ListPOSItems(ctx context.Context, eventID, posID string) ([]pos.Item, error)
	CountOpenOrders(ctx context.Context, eventID, posID string) (int, error)
	WriteDistributedOrders(ctx context.Context, eventID string, orders []store.DistributedOrder) error
	CreatePurchase(ctx context.Context, eventID string, p purchase.Purchase, items []purchase.Item) error
	ListPurchaseItems(ctx context.Context, eventID, purchaseID string) ([]purchase.Item, error)
	MergePurchase(ctx context.Context, eventID, purchaseID string, m store.PurchaseMerge) error
}

// IDGenerator mints purchase ids for the distributeOrder RPC.
type IDGenerator interface {
	NewID() string
}
