// Package distribution implements the balanced distribution of purchases
// across points of sale: the scheduler that buckets canonical line items by
// least-loaded point of sale, the orchestrator that reacts to paid purchases
// on the change feed, and the use case behind the distributeOrder RPC.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// Failure messages below are part of the RPC contract; clients match on the
// exact text.
var (
	ErrMissingFields  = errors.New("Missing required fields")
	ErrNoPointsOfSale = errors.New("No Points of Sale found")
	ErrGroupedMode    = errors.New("grouped distribution mode not yet implemented")
)

// Input is one distribution request: the canonical line items of a purchase,
// bound for the points of sale of one event.
type Input struct {
	EventID      string
	PurchaseID   string
	Items        []purchase.LineItem
	ServingPoint event.ServingPoint
	Mode         event.DistributionMode
	Note         string
}

// POSOrder summarizes one materialized sub-order. ItemsCount is the number of
// grouped line-item documents written, not the number of units.
type POSOrder struct {
	POSID      string
	POSName    string
	OrderID    string
	ItemsCount int
}

// Result is the distribution outcome reported back through the RPC.
type Result struct {
	Success              bool
	PurchaseID           string
	DistributedPurchases []POSOrder
}

// Scheduler assigns canonical line items to points of sale and materializes
// the resulting sub-orders in one batched write.
type Scheduler struct {
	store   Store
	metrics *observability.Metrics
	tracer  trace.Tracer
}

func NewScheduler(st Store, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		store:   st,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

// Schedule distributes in.Items across the event's points of sale. Every
// store error is fatal for the whole call: nothing is written unless every
// read succeeded, and the batched write commits all sub-orders or none.
func (s *Scheduler) Schedule(ctx context.Context, in Input) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "Scheduler.Schedule", trace.WithAttributes(
		attribute.String("event.id", in.EventID),
		attribute.String("purchase.id", in.PurchaseID),
		attribute.Int("items.count", len(in.Items)),
	))
	defer span.End()

	start := time.Now()
	res, err := s.schedule(ctx, in)
	s.metrics.DistributionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Distributions.WithLabelValues(observability.OutcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	s.metrics.Distributions.WithLabelValues(observability.OutcomeSuccess).Inc()
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (s *Scheduler) schedule(ctx context.Context, in Input) (Result, error) {
	if in.EventID == "" || in.PurchaseID == "" || in.ServingPoint.ID == "" {
		return Result{PurchaseID: in.PurchaseID}, ErrMissingFields
	}
	switch in.Mode {
	case event.DistributionBalanced, "":
	case event.DistributionGrouped:
		return Result{PurchaseID: in.PurchaseID}, ErrGroupedMode
	default:
		return Result{PurchaseID: in.PurchaseID}, fmt.Errorf("%w: %q", event.ErrUnknownDistribution, in.Mode)
	}

	logger := logging.FromContext(ctx).With(
		zap.String("component", "distribution_scheduler"),
		zap.String("event_id", in.EventID),
		zap.String("purchase_id", in.PurchaseID),
	)

	candidates, err := s.store.ListPointsOfSale(ctx, in.EventID)
	if err != nil {
		return Result{}, fmt.Errorf("distribution: list points of sale: %w", err)
	}
	if len(candidates) == 0 {
		return Result{PurchaseID: in.PurchaseID}, ErrNoPointsOfSale
	}

	// Offer sets are membership only. A point of sale that carries the item
	// but has flagged it unavailable still receives orders; availability is
	// the reconciler's concern, not the scheduler's.
	offers := make([]map[string]struct{}, len(candidates))
	for n, p := range candidates {
		items, err := s.store.ListPOSItems(ctx, in.EventID, p.ID)
		if err != nil {
			return Result{}, fmt.Errorf("distribution: list items of pos %s: %w", p.ID, err)
		}
		offered := make(map[string]struct{}, len(items))
		for _, it := range items {
			offered[it.ID] = struct{}{}
		}
		offers[n] = offered
	}

	// Open-order counts are read at most once per point of sale and reused
	// for the whole call. Assignments made during the call deliberately do
	// not feed back into the counts.
	loads := make(map[string]int, len(candidates))
	loadOf := func(posID string) (int, error) {
		if n, ok := loads[posID]; ok {
			return n, nil
		}
		n, err := s.store.CountOpenOrders(ctx, in.EventID, posID)
		if err != nil {
			return 0, fmt.Errorf("distribution: count open orders of pos %s: %w", posID, err)
		}
		loads[posID] = n
		return n, nil
	}

	buckets := make([][]purchase.LineItem, len(candidates))
	for _, line := range in.Items {
		// Least loaded wins; ties go to the point of sale listed first.
		chosen, best := -1, 0
		for n := range candidates {
			if _, ok := offers[n][line.ItemID]; !ok {
				continue
			}
			load, err := loadOf(candidates[n].ID)
			if err != nil {
				return Result{}, err
			}
			if chosen == -1 || load < best {
				chosen, best = n, load
			}
		}
		if chosen == -1 {
			logger.Warn("item_not_routable", zap.String("item_id", line.ItemID))
			s.metrics.DistributionItems.WithLabelValues(observability.ItemDropped).Inc()
			continue
		}
		buckets[chosen] = append(buckets[chosen], line)
		s.metrics.DistributionItems.WithLabelValues(observability.ItemRouted).Inc()
	}

	var writes []store.DistributedOrder
	var summaries []POSOrder
	for n, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		items := groupItems(bucket)
		writes = append(writes, store.DistributedOrder{
			POSID: candidates[n].ID,
			Order: dispatch.Order{
				ID:                   in.PurchaseID,
				Status:               dispatch.OrderOpen,
				ServingPointName:     in.ServingPoint.Name,
				ServingPointLocation: in.ServingPoint.Location,
				Note:                 in.Note,
			},
			Items: items,
		})
		summaries = append(summaries, POSOrder{
			POSID:      candidates[n].ID,
			POSName:    candidates[n].Name,
			OrderID:    in.PurchaseID,
			ItemsCount: len(items),
		})
	}

	if len(writes) > 0 {
		if err := s.store.WriteDistributedOrders(ctx, in.EventID, writes); err != nil {
			return Result{}, fmt.Errorf("distribution: write orders: %w", err)
		}
	}

	logger.Info("purchase_distributed",
		zap.Int("line_items", len(in.Items)),
		zap.Int("sub_orders", len(summaries)),
	)
	return Result{Success: true, PurchaseID: in.PurchaseID, DistributedPurchases: summaries}, nil
}

// groupItems folds a bucket of canonical line items into one document per
// grouping key, summing counts. First-seen order is kept so writes stay
// deterministic.
func groupItems(bucket []purchase.LineItem) []dispatch.Item {
	keys := make([]string, 0, len(bucket))
	grouped := make(map[string]*dispatch.Item, len(bucket))
	for _, line := range bucket {
		key := dispatch.GroupKey(line.ItemID, line.SelectedExtras, line.ExcludedIngredients)
		if doc, ok := grouped[key]; ok {
			*doc.Count += line.Count
			continue
		}
		keys = append(keys, key)
		grouped[key] = &dispatch.Item{
			Key:                 key,
			ID:                  line.ItemID,
			Name:                line.Name,
			Price:               line.Price,
			Count:               dispatch.Int(line.Count),
			Category:            line.Category,
			CategoryName:        line.CategoryName,
			SelectedExtras:      line.SelectedExtras,
			ExcludedIngredients: line.ExcludedIngredients,
		}
	}
	return lo.Map(keys, func(key string, _ int) dispatch.Item { return *grouped[key] })
}
