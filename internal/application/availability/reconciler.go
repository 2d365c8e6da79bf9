// Package availability reconciles point-of-sale availability flips: it keeps
// the canonical catalog flag in sync, migrates open orders away from a point
// of sale that ran out of an item while another still offers it, and turns
// orders for globally sold-out items into refund notifications.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// Texts shown to staff on sold-out refunds. The POS UI matches on them, so
// they stay verbatim.
const (
	refundTitle   = "Artikel ist/sind ausverkauft"
	refundMessage = "Unten stehenden Betrag erstatten und bestätigen"
)

// Reconciler reacts to availability flips of point-of-sale items.
type Reconciler struct {
	store    Store
	notifier Notifier
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

func NewReconciler(st Store, notifier Notifier, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:    st,
		notifier: notifier,
		metrics:  metrics,
		tracer:   observability.Tracer(),
	}
}

// OnPOSItemUpdate handles one availability flip. Restocks only refresh the
// catalog flag. A sell-out either migrates the affected open orders to the
// least-loaded point of sale still offering the item, or, when none does,
// notifies a refund for every affected order and marks the items.
//
// Order-level failures are isolated: one broken order is logged and skipped,
// the rest are still handled.
func (r *Reconciler) OnPOSItemUpdate(ctx context.Context, change store.POSItemChange) error {
	if change.Kind != store.ChangeUpdate || change.Before == nil || change.After == nil {
		return nil
	}
	wasAvailable := change.Before.Available()
	nowAvailable := change.After.Available()
	if wasAvailable == nowAvailable {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "Reconciler.OnPOSItemUpdate", trace.WithAttributes(
		attribute.String("event.id", change.EventID),
		attribute.String("pos.id", change.POSID),
		attribute.String("item.id", change.ItemID),
		attribute.Bool("item.available", nowAvailable),
	))
	defer span.End()

	logger := logging.FromContext(ctx).With(
		zap.String("component", "availability_reconciler"),
		zap.String("event_id", change.EventID),
		zap.String("pos_id", change.POSID),
		zap.String("item_id", change.ItemID),
	)

	memo := newAvailabilityMemo(r.store, change.EventID, change.POSID, change.ItemID, nowAvailable)
	global, err := memo.Global(ctx, change.ItemID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := r.store.SetCanonicalItemAvailability(ctx, change.EventID, change.ItemID, global); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("availability: sync catalog flag of %s: %w", change.ItemID, err)
	}

	if nowAvailable {
		logger.Info("item_restocked", zap.Bool("globally_available", global))
		return nil
	}

	if !global {
		logger.Info("item_sold_out_everywhere")
		return r.refundOpenOrders(ctx, logger, change)
	}

	dest, err := r.pickDestination(ctx, memo, change.EventID, change.ItemID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.Info("item_sold_out_locally", zap.String("destination_pos_id", dest.ID))
	return r.migrateOpenOrders(ctx, logger, memo, change, dest)
}

// pickDestination ranks the points of sale that still offer itemID by open
// order count and returns the least loaded; ties go to the one listed first.
func (r *Reconciler) pickDestination(ctx context.Context, memo *availabilityMemo, eventID, itemID string) (pos.PointOfSale, error) {
	all, err := memo.PointsOfSale(ctx)
	if err != nil {
		return pos.PointOfSale{}, err
	}

	var candidates []pos.PointOfSale
	loads := make(map[string]int)
	for _, p := range all {
		carried, available, err := memo.Local(ctx, p.ID, itemID)
		if err != nil {
			return pos.PointOfSale{}, err
		}
		if !carried || !available {
			continue
		}
		n, err := r.store.CountOpenOrders(ctx, eventID, p.ID)
		if err != nil {
			return pos.PointOfSale{}, fmt.Errorf("availability: count open orders of pos %s: %w", p.ID, err)
		}
		loads[p.ID] = n
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return pos.PointOfSale{}, fmt.Errorf("availability: no destination offers item %s", itemID)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return loads[candidates[i].ID] < loads[candidates[j].ID]
	})
	return candidates[0], nil
}

func (r *Reconciler) migrateOpenOrders(ctx context.Context, logger *zap.Logger, memo *availabilityMemo, change store.POSItemChange, dest pos.PointOfSale) error {
	orders, err := r.store.ListOpenOrders(ctx, change.EventID, change.POSID)
	if err != nil {
		return fmt.Errorf("availability: list open orders: %w", err)
	}

	for _, o := range orders {
		items, err := r.store.ListOrderItems(ctx, change.EventID, change.POSID, o.ID)
		if err != nil {
			logger.Error("order_items_unreadable", zap.String("order_id", o.ID), zap.Error(err))
			r.metrics.Migrations.WithLabelValues(observability.OutcomeError).Inc()
			continue
		}
		moving, err := r.migrationSet(ctx, memo, change.POSID, change.ItemID, items)
		if err != nil {
			logger.Error("migration_set_unresolved", zap.String("order_id", o.ID), zap.Error(err))
			r.metrics.Migrations.WithLabelValues(observability.OutcomeError).Inc()
			continue
		}
		if len(moving) == 0 {
			continue
		}
		if err := r.migrateOrder(ctx, change.EventID, change.POSID, dest.ID, o, moving); err != nil {
			logger.Error("order_migration_failed",
				zap.String("order_id", o.ID),
				zap.String("destination_pos_id", dest.ID),
				zap.Error(err))
			r.metrics.Migrations.WithLabelValues(observability.OutcomeError).Inc()
			continue
		}
		r.metrics.Migrations.WithLabelValues(observability.OutcomeSuccess).Inc()
		logger.Info("order_migrated",
			zap.String("order_id", o.ID),
			zap.String("destination_pos_id", dest.ID),
			zap.Int("items_moved", len(moving)))
	}
	return nil
}

// migrationSet selects the line items that leave the source point of sale:
// the sold-out item itself, plus companions the source no longer offers that
// are still offered somewhere else. Companions the source still has stay put,
// and companions sold out everywhere are left for their own sell-out flips.
func (r *Reconciler) migrationSet(ctx context.Context, memo *availabilityMemo, sourcePOS, triggerItem string, items []dispatch.Item) ([]dispatch.Item, error) {
	var out []dispatch.Item
	for _, it := range items {
		if it.Canceled() {
			continue
		}
		id := it.EffectiveItemID()
		if id == triggerItem {
			out = append(out, it)
			continue
		}
		carried, available, err := memo.Local(ctx, sourcePOS, id)
		if err != nil {
			return nil, err
		}
		if carried && available {
			continue
		}
		global, err := memo.Global(ctx, id)
		if err != nil {
			return nil, err
		}
		if global {
			out = append(out, it)
		}
	}
	return out, nil
}

// migrateOrder moves the given line items of one order from sourcePOS to
// destPOS. The destination order keeps the source order's id and metadata.
// Each line item moves in its own transaction that merges counts at the
// destination and deletes the source document; once the source order has no
// items left it is marked transferred.
func (r *Reconciler) migrateOrder(ctx context.Context, eventID, sourcePOS, destPOS string, order dispatch.Order, items []dispatch.Item) error {
	existing, err := r.store.GetOrder(ctx, eventID, destPOS, order.ID)
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		dst := order.Clone()
		dst.Status = dispatch.OrderOpen
		dst.TransferredAt = nil
		if err := r.store.UpsertOrder(ctx, eventID, destPOS, dst); err != nil {
			return fmt.Errorf("create destination order: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load destination order: %w", err)
	case existing.Status != dispatch.OrderOpen:
		// A copy parked here by an earlier migration goes back into service.
		status := dispatch.OrderOpen
		if err := r.store.MergeOrder(ctx, eventID, destPOS, order.ID, store.OrderMerge{
			Status:             &status,
			ClearTransferredAt: true,
		}); err != nil {
			return fmt.Errorf("reopen destination order: %w", err)
		}
	}

	for _, it := range items {
		moved := it
		err := r.store.RunOrderItemTxn(ctx, func(ctx context.Context, tx store.Txn) error {
			current := 0
			existing, err := tx.GetOrderItem(ctx, eventID, destPOS, order.ID, moved.Key)
			switch {
			case err == nil:
				current = existing.EffectiveCount()
			case !errors.Is(err, dispatch.ErrItemNotFound):
				return err
			}
			if err := tx.SetOrderItem(ctx, eventID, destPOS, order.ID, moved.Key,
				sanitizeForMigration(moved, current+moved.EffectiveCount())); err != nil {
				return err
			}
			return tx.DeleteOrderItem(ctx, eventID, sourcePOS, order.ID, moved.Key)
		})
		if err != nil {
			return fmt.Errorf("move item %s: %w", moved.Key, err)
		}
	}

	remaining, err := r.store.ListOrderItems(ctx, eventID, sourcePOS, order.ID)
	if err != nil {
		return fmt.Errorf("list remaining items: %w", err)
	}
	if len(remaining) == 0 {
		status := dispatch.OrderTransferred
		if err := r.store.MergeOrder(ctx, eventID, sourcePOS, order.ID, store.OrderMerge{
			Status:                  &status,
			TransferredAtServerTime: true,
		}); err != nil {
			return fmt.Errorf("mark order transferred: %w", err)
		}
	}
	return nil
}

// sanitizeForMigration rebuilds a line item the way the destination expects
// it: the count lives in quantity, the item id in itemId, and the legacy
// duplicate fields are dropped.
func sanitizeForMigration(it dispatch.Item, count int) dispatch.Item {
	return dispatch.Item{
		Key:                 it.Key,
		ItemID:              it.EffectiveItemID(),
		Name:                it.Name,
		Price:               it.Price,
		Quantity:            dispatch.Int(count),
		Category:            it.Category,
		SelectedExtras:      emptyIfNil(it.SelectedExtras),
		ExcludedIngredients: emptyIfNil(it.ExcludedIngredients),
		Status:              it.Status,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// refundOpenOrders handles a global sell-out: every open order at the
// triggering point of sale that still carries the item gets one refund
// notification, then its affected items are marked for canceling. Notifying
// runs strictly before marking so a failure cannot leave an order marked but
// silent.
func (r *Reconciler) refundOpenOrders(ctx context.Context, logger *zap.Logger, change store.POSItemChange) error {
	orders, err := r.store.ListOpenOrders(ctx, change.EventID, change.POSID)
	if err != nil {
		return fmt.Errorf("availability: list open orders: %w", err)
	}

	type affectedOrder struct {
		order dispatch.Order
		items []dispatch.Item
	}
	var affected []affectedOrder
	for _, o := range orders {
		items, err := r.store.ListOrderItems(ctx, change.EventID, change.POSID, o.ID)
		if err != nil {
			logger.Error("order_items_unreadable", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		var hit []dispatch.Item
		for _, it := range items {
			if it.Canceled() {
				continue
			}
			if it.EffectiveItemID() == change.ItemID {
				hit = append(hit, it)
			}
		}
		if len(hit) == 0 {
			continue
		}
		affected = append(affected, affectedOrder{order: o, items: hit})
	}

	for _, a := range affected {
		if err := r.notifyRefund(ctx, change.EventID, a.order, a.items); err != nil {
			logger.Error("refund_notification_failed",
				zap.String("order_id", a.order.ID), zap.Error(err))
		}
	}
	for _, a := range affected {
		for _, it := range a.items {
			if err := r.store.MergeOrderItemStatus(ctx, change.EventID, change.POSID, a.order.ID,
				it.Key, dispatch.ItemMarkedForCanceling); err != nil {
				logger.Error("mark_for_canceling_failed",
					zap.String("order_id", a.order.ID),
					zap.String("item_key", it.Key),
					zap.Error(err))
			}
		}
	}
	return nil
}

// notifyRefund emits one refund notification for an order's affected items.
// Orders whose affected items sum to nothing are skipped.
func (r *Reconciler) notifyRefund(ctx context.Context, eventID string, order dispatch.Order, items []dispatch.Item) error {
	sum := decimal.Zero
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.EffectiveItemID())
		sum = sum.Add(decimal.NewFromFloat(it.Price).
			Mul(decimal.NewFromInt(int64(it.EffectiveCount()))))
	}
	if len(itemIDs) == 0 || !sum.IsPositive() {
		return nil
	}
	price, _ := sum.Round(2).Float64()

	_, err := r.notifier.CreateNotification(ctx, eventID, notification.Notification{
		Title:    refundTitle,
		Message:  refundMessage,
		OrderID:  order.ID,
		ItemIDs:  itemIDs,
		Price:    notification.Float(price),
		Severity: notification.SeverityError,
		Action:   notification.ActionRefund,
		Status:   notification.StatusCreated,
	})
	if err != nil {
		return err
	}
	r.metrics.RefundNotifications.Inc()
	return nil
}
