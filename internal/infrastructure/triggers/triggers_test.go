package triggers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/application/availability"
	"github.com/venuepos/dispatch/internal/application/distribution"
	"github.com/venuepos/dispatch/internal/application/notify"
	"github.com/venuepos/dispatch/internal/application/refund"
	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/infrastructure/feed"
	"github.com/venuepos/dispatch/internal/infrastructure/memstore"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/store"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("n-%d", g.n)
}

// newEngine wires the full reactive loop: memstore publishing into the feed,
// every trigger registered, bus running.
func newEngine(t *testing.T) *memstore.Store {
	t.Helper()

	paths, err := store.NewPaths(store.RootEvents)
	require.NoError(t, err)

	bus := feed.NewBus(zap.NewNop())
	st := memstore.New(paths, bus)
	metrics := observability.NewTestMetrics()
	notifier := notify.NewService(st, &seqIDs{})

	Register(bus, Handlers{
		Orchestrator: distribution.NewOrchestrator(st, distribution.NewScheduler(st, metrics)),
		Reconciler:   availability.NewReconciler(st, notifier, metrics),
		Propagator:   refund.NewPropagator(st),
		Notifier:     notifier,
		Metrics:      metrics,
	})

	bus.Start(context.Background())
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(stopCtx)
	})
	return st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPaidPurchaseFlowsToPointOfSale(t *testing.T) {
	st := newEngine(t)
	ctx := context.Background()

	st.SeedEvent(event.Event{ID: "ev"})
	st.SeedServingPoint("ev", event.ServingPoint{ID: "sp-1", Name: "Table 7"})
	st.SeedPointOfSale("ev", pos.PointOfSale{ID: "pos-a", Name: "Grill"})
	st.SeedPOSItem("ev", "pos-a", pos.Item{ID: "x"})
	st.SeedCanonicalItem("ev", catalog.Item{ID: "x", Name: "Cheeseburger", Price: 11.5})

	require.NoError(t, st.CreatePurchase(ctx, "ev",
		purchase.Purchase{ID: "p-1", ServingPointID: "sp-1"},
		[]purchase.Item{{DocID: "d-1", ItemID: "x", Quantity: purchase.Float(2)}},
	))

	// Nothing distributes while the purchase is unpaid.
	time.Sleep(50 * time.Millisecond)
	_, err := st.GetOrder(ctx, "ev", "pos-a", "p-1")
	require.ErrorIs(t, err, dispatch.ErrNotFound)

	paid := true
	require.NoError(t, st.MergePurchase(ctx, "ev", "p-1", store.PurchaseMerge{IsPaid: &paid}))

	waitFor(t, "purchase distributed", func() bool {
		p, err := st.GetPurchase(ctx, "ev", "p-1")
		return err == nil && p.Distributed
	})

	items, err := st.ListOrderItems(ctx, "ev", "pos-a", "p-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "x__", items[0].Key)
	assert.Equal(t, 2, items[0].EffectiveCount())
	assert.Equal(t, "Cheeseburger", items[0].Name)

	p, err := st.GetPurchase(ctx, "ev", "p-1")
	require.NoError(t, err)
	require.NotNil(t, p.DistributedAt)
	assert.False(t, p.DistributionFailed)
}

func TestCashPurchaseRaisesNotification(t *testing.T) {
	st := newEngine(t)
	ctx := context.Background()

	require.NoError(t, st.CreatePurchase(ctx, "ev",
		purchase.Purchase{ID: "p-2", PaymentMethod: purchase.PaymentCash, TotalPrice: purchase.Float(12.5)},
		nil,
	))

	waitFor(t, "cash notification", func() bool {
		_, err := st.FindActiveNotification(ctx, "ev", "p-2", notification.ActionCashPayment)
		return err == nil
	})

	n, err := st.FindActiveNotification(ctx, "ev", "p-2", notification.ActionCashPayment)
	require.NoError(t, err)
	assert.Equal(t, "Barzahlung ausstehend", n.Title)
	assert.Equal(t, purchase.PaymentCash, n.PaymentMethod)
	require.NotNil(t, n.Price)
	assert.Equal(t, 12.5, *n.Price)
}

func TestSellOutMigratesThroughFeed(t *testing.T) {
	st := newEngine(t)
	ctx := context.Background()

	st.SeedEvent(event.Event{ID: "ev"})
	st.SeedPointOfSale("ev", pos.PointOfSale{ID: "pos-a"})
	st.SeedPointOfSale("ev", pos.PointOfSale{ID: "pos-b"})
	st.SeedPOSItem("ev", "pos-a", pos.Item{ID: "x", IsAvailable: pos.Bool(true)})
	st.SeedPOSItem("ev", "pos-b", pos.Item{ID: "x", IsAvailable: pos.Bool(true)})

	require.NoError(t, st.WriteDistributedOrders(ctx, "ev", []store.DistributedOrder{{
		POSID: "pos-a",
		Order: dispatch.Order{ID: "o-1", Status: dispatch.OrderOpen},
		Items: []dispatch.Item{{Key: "x__", ID: "x", Price: 9.5, Count: dispatch.Int(1), Status: dispatch.ItemActive}},
	}}))

	require.NoError(t, st.SetPOSItemAvailability(ctx, "ev", "pos-a", "x", pos.Bool(false)))

	waitFor(t, "order migrated", func() bool {
		items, err := st.ListOrderItems(ctx, "ev", "pos-b", "o-1")
		return err == nil && len(items) == 1
	})

	src, err := st.GetOrder(ctx, "ev", "pos-a", "o-1")
	require.NoError(t, err)
	assert.Equal(t, dispatch.OrderTransferred, src.Status)

	it, err := st.GetCanonicalItem(ctx, "ev", "x")
	require.NoError(t, err)
	assert.True(t, it.Available())
}

func TestRefundRoundTripThroughFeed(t *testing.T) {
	st := newEngine(t)
	ctx := context.Background()

	st.SeedEvent(event.Event{ID: "ev"})
	st.SeedPointOfSale("ev", pos.PointOfSale{ID: "pos-a"})
	st.SeedPOSItem("ev", "pos-a", pos.Item{ID: "x", IsAvailable: pos.Bool(true)})

	require.NoError(t, st.CreatePurchase(ctx, "ev",
		purchase.Purchase{ID: "p-3"},
		[]purchase.Item{{DocID: "d-1", ItemID: "x", Quantity: purchase.Float(2), Price: 9.5}},
	))
	require.NoError(t, st.WriteDistributedOrders(ctx, "ev", []store.DistributedOrder{{
		POSID: "pos-a",
		Order: dispatch.Order{ID: "p-3", Status: dispatch.OrderOpen},
		Items: []dispatch.Item{{Key: "x__", ID: "x", Price: 9.5, Count: dispatch.Int(2), Status: dispatch.ItemActive}},
	}}))

	// Selling out everywhere raises the refund notification.
	require.NoError(t, st.SetPOSItemAvailability(ctx, "ev", "pos-a", "x", pos.Bool(false)))

	var notifID string
	waitFor(t, "refund notification", func() bool {
		n, err := st.FindActiveNotification(ctx, "ev", "p-3", notification.ActionRefund)
		if err != nil {
			return false
		}
		notifID = n.ID
		return true
	})

	// Staff confirms the refund; the propagator cancels every copy.
	require.NoError(t, st.SetNotificationStatus(ctx, "ev", notifID, notification.StatusRefund))

	waitFor(t, "purchase item canceled", func() bool {
		docs, err := st.ListPurchaseItems(ctx, "ev", "p-3")
		return err == nil && len(docs) == 1 && docs[0].Canceled()
	})

	p, err := st.GetPurchase(ctx, "ev", "p-3")
	require.NoError(t, err)
	require.NotNil(t, p.TotalPrice)
	assert.Equal(t, 0.0, *p.TotalPrice)

	items, err := st.ListOrderItems(ctx, "ev", "pos-a", "p-3")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Canceled())
}

func TestBindRejectsForeignChanges(t *testing.T) {
	metrics := observability.NewTestMetrics()
	h := bind(TriggerPurchaseWrite, metrics, func(ctx context.Context, c store.PurchaseChange) error {
		return nil
	})

	err := h(context.Background(), store.POSItemChange{EventID: "ev"})
	require.Error(t, err)

	err = h(context.Background(), store.PurchaseChange{EventID: "ev"})
	require.NoError(t, err)
}

func TestBindCountsHandlerErrors(t *testing.T) {
	metrics := observability.NewTestMetrics()
	boom := errors.New("boom")
	h := bind(TriggerPurchaseWrite, metrics, func(ctx context.Context, c store.PurchaseChange) error {
		return boom
	})

	err := h(context.Background(), store.PurchaseChange{EventID: "ev"})
	require.ErrorIs(t, err, boom)
}
