// Package refund propagates a confirmed refund from its notification to the
// purchase and to every point-of-sale copy of the affected line items.
package refund

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// Store is the slice of the document store the propagator needs.
type Store interface {
	ListPointsOfSale(ctx context.Context, eventID string) ([]pos.PointOfSale, error)
	ListPurchaseItems(ctx context.Context, eventID, purchaseID string) ([]purchase.Item, error)
	ListPurchaseItemsByItemIDs(ctx context.Context, eventID, purchaseID string, itemIDs []string) ([]purchase.Item, error)
	CancelPurchaseItem(ctx context.Context, eventID, purchaseID, docID string) error
	MergePurchase(ctx context.Context, eventID, purchaseID string, m store.PurchaseMerge) error
	ListOrderItemsByItemIDs(ctx context.Context, eventID, posID, orderID string, itemIDs []string) ([]dispatch.Item, error)
	CancelOrderItem(ctx context.Context, eventID, posID, orderID, key string) error
}

// Propagator reacts to notifications whose status was set to refund.
type Propagator struct {
	store  Store
	tracer trace.Tracer
}

func NewPropagator(st Store) *Propagator {
	return &Propagator{store: st, tracer: observability.Tracer()}
}

// OnNotificationUpdate cancels the refunded items on the purchase, rewrites
// the purchase total and replicates the cancellation to every point of sale.
// Only the transition into the refund status fires; repeating it is harmless
// because canceling is idempotent.
func (p *Propagator) OnNotificationUpdate(ctx context.Context, change store.NotificationChange) error {
	if change.Kind != store.ChangeUpdate || change.Before == nil || change.After == nil {
		return nil
	}
	if change.Before.Status == notification.StatusRefund || change.After.Status != notification.StatusRefund {
		return nil
	}

	logger := logging.FromContext(ctx).With(
		zap.String("component", "refund_propagator"),
		zap.String("event_id", change.EventID),
		zap.String("notification_id", change.NotificationID),
	)

	orderID := change.After.OrderID
	itemIDs := change.After.ItemIDs
	if orderID == "" || len(itemIDs) == 0 {
		logger.Warn("refund_notification_incomplete",
			zap.String("order_id", orderID),
			zap.Int("item_ids", len(itemIDs)))
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "Propagator.OnNotificationUpdate", trace.WithAttributes(
		attribute.String("event.id", change.EventID),
		attribute.String("order.id", orderID),
		attribute.Int("item_ids.count", len(itemIDs)),
	))
	defer span.End()

	if err := p.cancelPurchaseItems(ctx, change.EventID, orderID, itemIDs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := p.rewriteTotal(ctx, change.EventID, orderID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	p.cancelPOSItems(ctx, logger, change.EventID, orderID, itemIDs)

	logger.Info("refund_propagated",
		zap.String("order_id", orderID),
		zap.Strings("refunded_item_ids", itemIDs))
	return nil
}

// cancelPurchaseItems merges {status: canceled, quantity: 0} onto every
// purchase line item matching one of the refunded item ids. Membership
// queries are chunked to the backend cap.
func (p *Propagator) cancelPurchaseItems(ctx context.Context, eventID, orderID string, itemIDs []string) error {
	for _, chunk := range lo.Chunk(itemIDs, store.InQueryLimit) {
		docs, err := p.store.ListPurchaseItemsByItemIDs(ctx, eventID, orderID, chunk)
		if err != nil {
			return fmt.Errorf("refund: query purchase items: %w", err)
		}
		for _, doc := range docs {
			if err := p.store.CancelPurchaseItem(ctx, eventID, orderID, doc.DocID); err != nil {
				return fmt.Errorf("refund: cancel purchase item %s: %w", doc.DocID, err)
			}
		}
	}
	return nil
}

// rewriteTotal recomputes the purchase total from the surviving line items.
// Unit counts go through the same normalization the scheduler uses, so
// entries[] documents and legacy count-less documents price correctly.
func (p *Propagator) rewriteTotal(ctx context.Context, eventID, orderID string) error {
	docs, err := p.store.ListPurchaseItems(ctx, eventID, orderID)
	if err != nil {
		return fmt.Errorf("refund: list purchase items: %w", err)
	}

	sum := decimal.Zero
	for _, doc := range docs {
		if doc.Canceled() {
			continue
		}
		units := len(purchase.Normalize(doc))
		if units == 0 {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(doc.Price).Mul(decimal.NewFromInt(int64(units))))
	}

	total, _ := sum.Round(2).Float64()
	if err := p.store.MergePurchase(ctx, eventID, orderID, store.PurchaseMerge{TotalPrice: &total}); err != nil {
		return fmt.Errorf("refund: rewrite purchase total: %w", err)
	}
	return nil
}

// cancelPOSItems replicates the cancellation to every point of sale that got
// a copy of the order. A point of sale that never received the order simply
// matches nothing. Per-POS failures are logged and skipped so one broken copy
// cannot block the rest.
func (p *Propagator) cancelPOSItems(ctx context.Context, logger *zap.Logger, eventID, orderID string, itemIDs []string) {
	points, err := p.store.ListPointsOfSale(ctx, eventID)
	if err != nil {
		logger.Error("points_of_sale_unreadable", zap.Error(err))
		return
	}
	for _, pt := range points {
		for _, chunk := range lo.Chunk(itemIDs, store.InQueryLimit) {
			items, err := p.store.ListOrderItemsByItemIDs(ctx, eventID, pt.ID, orderID, chunk)
			if err != nil {
				logger.Error("order_items_unreadable",
					zap.String("pos_id", pt.ID),
					zap.String("order_id", orderID),
					zap.Error(err))
				continue
			}
			for _, it := range items {
				if err := p.store.CancelOrderItem(ctx, eventID, pt.ID, orderID, it.Key); err != nil {
					logger.Error("order_item_cancel_failed",
						zap.String("pos_id", pt.ID),
						zap.String("order_id", orderID),
						zap.String("item_key", it.Key),
						zap.Error(err))
				}
			}
		}
	}
}
