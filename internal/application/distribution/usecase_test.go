package distribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/infrastructure/memstore"
	"github.com/venuepos/dispatch/internal/observability"
)

func newUseCase(st *memstore.Store) *UseCase {
	return NewUseCase(st, NewScheduler(st, observability.NewTestMetrics()), &seqIDs{})
}

func TestDistributeOrderValidatesInput(t *testing.T) {
	st := newTestStore(t)
	seedTwoPOS(st)
	uc := newUseCase(st)
	ctx := context.Background()

	tests := []struct {
		name string
		in   DistributeOrderInput
	}{
		{
			name: "missing event id",
			in:   DistributeOrderInput{ServingPointID: "sp-1", Items: []OrderItemInput{{ItemID: "x"}}},
		},
		{
			name: "missing serving point id",
			in:   DistributeOrderInput{EventID: "ev", Items: []OrderItemInput{{ItemID: "x"}}},
		},
		{
			name: "no items",
			in:   DistributeOrderInput{EventID: "ev", ServingPointID: "sp-1"},
		},
		{
			name: "item without id",
			in:   DistributeOrderInput{EventID: "ev", ServingPointID: "sp-1", Items: []OrderItemInput{{}}},
		},
		{
			name: "unknown mode",
			in: DistributeOrderInput{
				EventID: "ev", ServingPointID: "sp-1", Mode: "round_robin",
				Items: []OrderItemInput{{ItemID: "x"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(ctx, tt.in)
			require.ErrorIs(t, err, ErrMissingFields)
		})
	}
}

func TestDistributeOrderUnknownServingPoint(t *testing.T) {
	st := newTestStore(t)
	seedTwoPOS(st)
	uc := newUseCase(st)

	_, err := uc.Execute(context.Background(), DistributeOrderInput{
		EventID:        "ev",
		ServingPointID: "sp-missing",
		Items:          []OrderItemInput{{ItemID: "x"}},
	})
	require.ErrorIs(t, err, event.ErrNotFound)
}

func TestDistributeOrderCreatesAndDistributes(t *testing.T) {
	st := newTestStore(t)
	seedTwoPOS(st)
	st.SeedCanonicalItem("ev", catalog.Item{ID: "x", Name: "Cheeseburger", Price: 11.5})
	st.SeedCanonicalItem("ev", catalog.Item{ID: "y", Name: "Fries", Price: 3.5})
	uc := newUseCase(st)
	ctx := context.Background()

	res, err := uc.Execute(ctx, DistributeOrderInput{
		EventID:        "ev",
		ServingPointID: "sp-1",
		UserID:         "u-1",
		Note:           "table by the window",
		Items: []OrderItemInput{
			{ItemID: "x", Quantity: purchase.Float(2)},
			{ItemID: "y", Entries: []EntryInput{{Quantity: purchase.Float(1), SelectedExtras: []string{"ketchup"}}}},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotEmpty(t, res.PurchaseID)
	require.Len(t, res.DistributedPurchases, 1)
	assert.Equal(t, "pos-a", res.DistributedPurchases[0].POSID)
	assert.Equal(t, res.PurchaseID, res.DistributedPurchases[0].OrderID)
	assert.Equal(t, 2, res.DistributedPurchases[0].ItemsCount)

	p, err := st.GetPurchase(ctx, "ev", res.PurchaseID)
	require.NoError(t, err)
	assert.True(t, p.IsPaid)
	assert.True(t, p.Distributed)
	require.NotNil(t, p.DistributedAt)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "sp-1", p.ServingPointID)

	docs, err := st.ListPurchaseItems(ctx, "ev", res.PurchaseID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	orderItems, err := st.ListOrderItems(ctx, "ev", "pos-a", res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, orderItems, 2)
	for _, it := range orderItems {
		switch it.Key {
		case "x__":
			assert.Equal(t, 2, it.EffectiveCount())
			assert.Equal(t, "Cheeseburger", it.Name)
			assert.Equal(t, 11.5, it.Price)
		case "y_ketchup_":
			assert.Equal(t, 1, it.EffectiveCount())
			assert.Equal(t, "Fries", it.Name)
		default:
			t.Fatalf("unexpected order item key %q", it.Key)
		}
	}
}

func TestDistributeOrderGroupedModeRejected(t *testing.T) {
	st := newTestStore(t)
	seedTwoPOS(st)
	uc := newUseCase(st)
	ctx := context.Background()

	res, err := uc.Execute(ctx, DistributeOrderInput{
		EventID:        "ev",
		ServingPointID: "sp-1",
		Mode:           "grouped",
		Items:          []OrderItemInput{{ItemID: "x"}},
	})
	require.ErrorIs(t, err, ErrGroupedMode)
	require.NotEmpty(t, res.PurchaseID)

	// The purchase was created before scheduling, so the failure lands on it.
	p, err := st.GetPurchase(ctx, "ev", res.PurchaseID)
	require.NoError(t, err)
	assert.True(t, p.DistributionFailed)
	assert.Equal(t, ErrGroupedMode.Error(), p.DistributionError)
	assert.False(t, p.Distributed)
	assert.False(t, p.IsPaid)
}

func TestDistributeOrderUsesEventMode(t *testing.T) {
	st := newTestStore(t)
	st.SeedEvent(event.Event{ID: "ev", DistributionMode: event.DistributionGrouped})
	st.SeedServingPoint("ev", servingPoint())
	uc := newUseCase(st)

	_, err := uc.Execute(context.Background(), DistributeOrderInput{
		EventID:        "ev",
		ServingPointID: "sp-1",
		Items:          []OrderItemInput{{ItemID: "x"}},
	})
	require.ErrorIs(t, err, ErrGroupedMode)
}

func TestDistributeOrderRecordsFailureWithoutPOS(t *testing.T) {
	st := newTestStore(t)
	st.SeedEvent(event.Event{ID: "ev"})
	st.SeedServingPoint("ev", servingPoint())
	uc := newUseCase(st)
	ctx := context.Background()

	res, err := uc.Execute(ctx, DistributeOrderInput{
		EventID:        "ev",
		ServingPointID: "sp-1",
		Items:          []OrderItemInput{{ItemID: "x"}},
	})
	require.ErrorIs(t, err, ErrNoPointsOfSale)

	p, err := st.GetPurchase(ctx, "ev", res.PurchaseID)
	require.NoError(t, err)
	assert.True(t, p.DistributionFailed)
	assert.Equal(t, "No Points of Sale found", p.DistributionError)
}
