package distribution

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// Orchestrator distributes purchases that become paid on the change feed.
type Orchestrator struct {
	store     Store
	scheduler *Scheduler
	tracer    trace.Tracer
}

func NewOrchestrator(st Store, scheduler *Scheduler) *Orchestrator {
	return &Orchestrator{
		store:     st,
		scheduler: scheduler,
		tracer:    observability.Tracer(),
	}
}

// OnPurchaseWrite reacts to every write of a purchase document and runs the
// distribution exactly once per purchase, on its unpaid-to-paid edge. The
// distributed marker written afterwards makes the echo of our own merge fall
// through the guards.
func (o *Orchestrator) OnPurchaseWrite(ctx context.Context, change store.PurchaseChange) error {
	logger := logging.FromContext(ctx).With(
		zap.String("component", "purchase_orchestrator"),
		zap.String("event_id", change.EventID),
		zap.String("purchase_id", change.PurchaseID),
	)

	if change.After == nil {
		return nil
	}
	if !change.After.IsPaid {
		return nil
	}
	if change.Before != nil && change.Before.IsPaid {
		return nil
	}
	if change.After.Distributed {
		return nil
	}
	if change.After.ServingPointID == "" {
		logger.Error("purchase_missing_serving_point")
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.OnPurchaseWrite", trace.WithAttributes(
		attribute.String("event.id", change.EventID),
		attribute.String("purchase.id", change.PurchaseID),
	))
	defer span.End()

	sp, err := o.store.GetServingPoint(ctx, change.EventID, change.After.ServingPointID)
	if errors.Is(err, event.ErrNotFound) {
		logger.Error("serving_point_not_found",
			zap.String("serving_point_id", change.After.ServingPointID))
		return nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("distribution: load serving point: %w", err)
	}

	if err := o.distribute(ctx, change.EventID, *change.After, sp); err != nil {
		recordFailure(ctx, o.store, change.EventID, change.PurchaseID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) distribute(ctx context.Context, eventID string, p purchase.Purchase, sp event.ServingPoint) error {
	lines, err := loadLineItems(ctx, o.store, eventID, p.ID)
	if err != nil {
		return err
	}

	mode := event.DistributionBalanced
	ev, err := o.store.GetEvent(ctx, eventID)
	switch {
	case err == nil:
		mode = ev.Mode()
	case !errors.Is(err, event.ErrNotFound):
		return fmt.Errorf("distribution: load event: %w", err)
	}

	if _, err := o.scheduler.Schedule(ctx, Input{
		EventID:      eventID,
		PurchaseID:   p.ID,
		Items:        lines,
		ServingPoint: sp,
		Mode:         mode,
		Note:         p.Note,
	}); err != nil {
		return err
	}

	distributed := true
	if err := o.store.MergePurchase(ctx, eventID, p.ID, store.PurchaseMerge{
		Distributed:             &distributed,
		DistributedAtServerTime: true,
	}); err != nil {
		return fmt.Errorf("distribution: mark purchase distributed: %w", err)
	}
	return nil
}

// loadLineItems reads the purchase's raw item documents, refreshes name,
// price and category from the canonical catalog, and flattens them into
// canonical line items. Items whose catalog document is gone keep whatever
// denormalized copy the purchase carried.
func loadLineItems(ctx context.Context, st Store, eventID, purchaseID string) ([]purchase.LineItem, error) {
	docs, err := st.ListPurchaseItems(ctx, eventID, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("distribution: list purchase items: %w", err)
	}

	var lines []purchase.LineItem
	for _, doc := range docs {
		canonical, err := st.GetCanonicalItem(ctx, eventID, doc.ItemID)
		switch {
		case err == nil:
			doc.Name = canonical.Name
			doc.Price = canonical.Price
			doc.Category = canonical.Category
			doc.CategoryName = canonical.CategoryName
		case !errors.Is(err, catalog.ErrNotFound):
			return nil, fmt.Errorf("distribution: load catalog item %s: %w", doc.ItemID, err)
		}
		lines = append(lines, purchase.Normalize(doc)...)
	}
	return lines, nil
}

// recordFailure writes the failure onto the purchase document. There is no
// durable retry queue; the marker is what operators and the storefront see.
func recordFailure(ctx context.Context, st Store, eventID, purchaseID string, cause error) {
	logger := logging.FromContext(ctx).With(
		zap.String("event_id", eventID),
		zap.String("purchase_id", purchaseID),
	)
	failed := true
	msg := cause.Error()
	if err := st.MergePurchase(ctx, eventID, purchaseID, store.PurchaseMerge{
		DistributionError:  &msg,
		DistributionFailed: &failed,
	}); err != nil {
		logger.Error("distribution_failure_not_recorded", zap.Error(err))
	}
	logger.Error("distribution_failed", zap.Error(cause))
}
