package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/application/distribution"
	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/infrastructure/memstore"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/store"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func newServer(t *testing.T) (*memstore.Store, *http.ServeMux) {
	t.Helper()
	paths, err := store.NewPaths(store.RootEvents)
	require.NoError(t, err)
	st := memstore.New(paths, nil)

	st.SeedEvent(event.Event{ID: "ev", Name: "Summer Fest"})
	st.SeedServingPoint("ev", event.ServingPoint{ID: "sp-1", Name: "Table 7", Location: "Hall A"})
	st.SeedCanonicalItem("ev", catalog.Item{ID: "x", Name: "Cheeseburger", Price: 11.5})
	st.SeedPointOfSale("ev", pos.PointOfSale{ID: "pos-a", Name: "Grill"})
	st.SeedPOSItem("ev", "pos-a", pos.Item{ID: "x", Name: "Burger", Price: 9.5})

	metrics := observability.NewTestMetrics()
	uc := distribution.NewUseCase(st, distribution.NewScheduler(st, metrics), &seqIDs{})
	h := NewHandler(uc, st, zap.NewNop(), metrics)
	return st, h.Router()
}

func do(t *testing.T, router *http.ServeMux, method, target string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestDistributeOrderEndpoint(t *testing.T) {
	st, router := newServer(t)

	code, resp := do(t, router, http.MethodPost, "/v1/orders/distribute", map[string]any{
		"eventId":        "ev",
		"servingPointId": "sp-1",
		"userId":         "u-1",
		"note":           "no onions",
		"items": []map[string]any{
			{"itemId": "x", "quantity": 2, "selectedExtras": []string{"cheese"}},
		},
	})

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "id-1", resp["purchaseId"])

	distributed, ok := resp["distributedPurchases"].([]any)
	require.True(t, ok)
	require.Len(t, distributed, 1)
	first := distributed[0].(map[string]any)
	assert.Equal(t, "pos-a", first["posId"])
	assert.Equal(t, "Grill", first["posName"])
	assert.Equal(t, float64(1), first["itemsCount"])

	p, err := st.GetPurchase(context.Background(), "ev", "id-1")
	require.NoError(t, err)
	assert.True(t, p.IsPaid)
	assert.True(t, p.Distributed)
}

func TestDistributeOrderEndpointRejectsBadRequests(t *testing.T) {
	_, router := newServer(t)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing event id",
			body:     map[string]any{"servingPointId": "sp-1", "items": []map[string]any{{"itemId": "x"}}},
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing required fields",
		},
		{
			name:     "no items",
			body:     map[string]any{"eventId": "ev", "servingPointId": "sp-1"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing required fields",
		},
		{
			name: "unknown serving point",
			body: map[string]any{
				"eventId": "ev", "servingPointId": "sp-missing",
				"items": []map[string]any{{"itemId": "x"}},
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "grouped mode not implemented",
			body: map[string]any{
				"eventId": "ev", "servingPointId": "sp-1", "mode": "grouped",
				"items": []map[string]any{{"itemId": "x"}},
			},
			wantCode: http.StatusNotImplemented,
			wantErr:  "grouped distribution mode not yet implemented",
		},
		{
			name: "unknown json field",
			body: map[string]any{
				"eventId": "ev", "servingPointId": "sp-1", "surprise": true,
				"items": []map[string]any{{"itemId": "x"}},
			},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, router, http.MethodPost, "/v1/orders/distribute", tt.body)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr != "" {
				assert.Contains(t, resp["error"], tt.wantErr)
			}
		})
	}
}

func TestGetPurchaseEndpoint(t *testing.T) {
	_, router := newServer(t)

	code, _ := do(t, router, http.MethodPost, "/v1/orders/distribute", map[string]any{
		"eventId":        "ev",
		"servingPointId": "sp-1",
		"items": []map[string]any{
			{"itemId": "x", "entries": []map[string]any{
				{"quantity": 2, "selectedExtras": []string{"cola"}},
			}},
		},
	})
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, router, http.MethodGet, "/v1/events/ev/orders/id-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "id-1", resp["id"])
	assert.Equal(t, "sp-1", resp["servingPointId"])
	assert.Equal(t, true, resp["isPaid"])
	assert.Equal(t, true, resp["distributed"])
	assert.NotEmpty(t, resp["distributedAt"])

	items, ok := resp["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "x", item["itemId"])
	assert.Equal(t, float64(2), item["quantity"])
	assert.Equal(t, "Cheeseburger", item["name"])
}

func TestGetPurchaseEndpointNotFound(t *testing.T) {
	_, router := newServer(t)

	code, resp := do(t, router, http.MethodGet, "/v1/events/ev/orders/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, resp["error"])
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newServer(t)

	code, resp := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp["status"])
}
