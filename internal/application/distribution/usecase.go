package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/application"
	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// DistributeOrderInput is the distributeOrder RPC request. Items arrive in
// the raw purchase-item shape; the use case persists them as the purchase's
// item documents before scheduling.
type DistributeOrderInput struct {
	EventID        string           `validate:"required"`
	ServingPointID string           `validate:"required"`
	UserID         string           `validate:"-"`
	Mode           string           `validate:"omitempty,oneof=balanced grouped"`
	Note           string           `validate:"-"`
	Items          []OrderItemInput `validate:"required,min=1,dive"`
}

// OrderItemInput is one requested line item.
type OrderItemInput struct {
	ItemID              string       `validate:"required"`
	Quantity            *float64     `validate:"omitempty,gte=0"`
	SelectedExtras      []string     `validate:"-"`
	ExcludedIngredients []string     `validate:"-"`
	Entries             []EntryInput `validate:"omitempty,dive"`
}

// EntryInput is one entries[] element of a requested line item.
type EntryInput struct {
	Quantity            *float64 `validate:"omitempty,gte=0"`
	SelectedExtras      []string `validate:"-"`
	ExcludedIngredients []string `validate:"-"`
}

// UseCase creates a purchase from an RPC request and distributes it
// synchronously. The asynchronous path through the change feed stays
// collapsed: the purchase is created unpaid and only marked paid together
// with the distributed marker, so the feed trigger never re-distributes it.
type UseCase struct {
	store     Store
	scheduler *Scheduler
	ids       IDGenerator
	validate  *validator.Validate
	tracer    trace.Tracer
}

var _ application.UseCase[DistributeOrderInput, Result] = (*UseCase)(nil)

func NewUseCase(st Store, scheduler *Scheduler, ids IDGenerator) *UseCase {
	return &UseCase{
		store:     st,
		scheduler: scheduler,
		ids:       ids,
		validate:  validator.New(),
		tracer:    observability.Tracer(),
	}
}

// Execute runs the distributeOrder RPC.
func (uc *UseCase) Execute(ctx context.Context, in DistributeOrderInput) (Result, error) {
	ctx, span := uc.tracer.Start(ctx, "UseCase.DistributeOrder", trace.WithAttributes(
		attribute.String("event.id", in.EventID),
		attribute.Int("items.count", len(in.Items)),
	))
	defer span.End()

	if err := uc.validate.Struct(in); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}

	sp, err := uc.store.GetServingPoint(ctx, in.EventID, in.ServingPointID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("distribution: load serving point: %w", err)
	}

	mode := event.DistributionMode(in.Mode)
	if mode == "" {
		ev, err := uc.store.GetEvent(ctx, in.EventID)
		switch {
		case err == nil:
			mode = ev.Mode()
		case errors.Is(err, event.ErrNotFound):
			mode = event.DistributionBalanced
		default:
			span.SetStatus(codes.Error, err.Error())
			return Result{}, fmt.Errorf("distribution: load event: %w", err)
		}
	}

	purchaseID := uc.ids.NewID()
	span.SetAttributes(attribute.String("purchase.id", purchaseID))

	// The stored documents freeze name and price at purchase time; later
	// catalog edits must not change what was sold.
	docs := make([]purchase.Item, 0, len(in.Items))
	for _, raw := range in.Items {
		doc := uc.toItemDoc(raw)
		canonical, err := uc.store.GetCanonicalItem(ctx, in.EventID, doc.ItemID)
		switch {
		case err == nil:
			doc.Name = canonical.Name
			doc.Price = canonical.Price
			doc.Category = canonical.Category
			doc.CategoryName = canonical.CategoryName
		case !errors.Is(err, catalog.ErrNotFound):
			span.SetStatus(codes.Error, err.Error())
			return Result{}, fmt.Errorf("distribution: load catalog item %s: %w", doc.ItemID, err)
		}
		docs = append(docs, doc)
	}
	p := purchase.Purchase{
		ID:             purchaseID,
		ServingPointID: in.ServingPointID,
		UserID:         in.UserID,
		Note:           in.Note,
	}
	if err := uc.store.CreatePurchase(ctx, in.EventID, p, docs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("distribution: create purchase: %w", err)
	}

	lines, err := loadLineItems(ctx, uc.store, in.EventID, purchaseID)
	if err != nil {
		recordFailure(ctx, uc.store, in.EventID, purchaseID, err)
		span.SetStatus(codes.Error, err.Error())
		return Result{PurchaseID: purchaseID}, err
	}

	res, err := uc.scheduler.Schedule(ctx, Input{
		EventID:      in.EventID,
		PurchaseID:   purchaseID,
		Items:        lines,
		ServingPoint: sp,
		Mode:         mode,
		Note:         in.Note,
	})
	if err != nil {
		recordFailure(ctx, uc.store, in.EventID, purchaseID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{PurchaseID: purchaseID}, err
	}

	paid, distributed := true, true
	if err := uc.store.MergePurchase(ctx, in.EventID, purchaseID, store.PurchaseMerge{
		IsPaid:                  &paid,
		Distributed:             &distributed,
		DistributedAtServerTime: true,
	}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("distribution: mark purchase distributed: %w", err)
	}

	logging.FromContext(ctx).Info("distribute_order_done",
		zap.String("event_id", in.EventID),
		zap.String("purchase_id", purchaseID),
		zap.Int("sub_orders", len(res.DistributedPurchases)),
	)
	return res, nil
}

func (uc *UseCase) toItemDoc(raw OrderItemInput) purchase.Item {
	doc := purchase.Item{
		DocID:               uc.ids.NewID(),
		ItemID:              raw.ItemID,
		Quantity:            raw.Quantity,
		SelectedExtras:      raw.SelectedExtras,
		ExcludedIngredients: raw.ExcludedIngredients,
	}
	for _, e := range raw.Entries {
		doc.Entries = append(doc.Entries, purchase.Entry{
			Quantity:            e.Quantity,
			SelectedExtras:      e.SelectedExtras,
			ExcludedIngredients: e.ExcludedIngredients,
		})
	}
	return doc
}
