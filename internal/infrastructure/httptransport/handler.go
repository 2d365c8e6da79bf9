// Package httptransport exposes the engine's RPC surface: the distributeOrder
// call, the purchase read endpoint and the health probe. Routes follow the
// document-store naming of the stored entities, so the wire format is
// camelCase.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/application/distribution"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

const headerRequestID = "X-Request-ID"

// Store is the read surface the handler serves directly.
type Store interface {
	GetPurchase(ctx context.Context, eventID, purchaseID string) (purchase.Purchase, error)
	ListPurchaseItems(ctx context.Context, eventID, purchaseID string) ([]purchase.Item, error)
	Ping(ctx context.Context) error
}

// Handler serves the HTTP surface.
type Handler struct {
	distributor *distribution.UseCase
	store       Store
	log         *zap.Logger
	metrics     *observability.Metrics
}

func NewHandler(distributor *distribution.UseCase, st Store, logger *zap.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		distributor: distributor,
		store:       st,
		log:         logger.With(zap.String("component", "http_server")),
		metrics:     metrics,
	}
}

// Router builds the route table. Every route runs behind the request-logger,
// metrics and access-log middlewares; the route template keeps metric labels
// low-cardinality.
func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	h.route(mux, "POST /v1/orders/distribute", h.handleDistributeOrder)
	h.route(mux, "GET /v1/events/{eventID}/orders/{orderID}", h.handleGetPurchase)
	h.route(mux, "GET /health", h.handleHealth)
	return mux
}

func (h *Handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, h.withRequestLogger(h.withMetrics(pattern, h.withAccessLog(pattern, fn))))
}

type orderItemRequest struct {
	ItemID              string              `json:"itemId"`
	Quantity            *float64            `json:"quantity"`
	SelectedExtras      []string            `json:"selectedExtras"`
	ExcludedIngredients []string            `json:"excludedIngredients"`
	Entries             []orderEntryRequest `json:"entries"`
}

type orderEntryRequest struct {
	Quantity            *float64 `json:"quantity"`
	SelectedExtras      []string `json:"selectedExtras"`
	ExcludedIngredients []string `json:"excludedIngredients"`
}

type distributeOrderRequest struct {
	EventID        string             `json:"eventId"`
	ServingPointID string             `json:"servingPointId"`
	UserID         string             `json:"userId"`
	Mode           string             `json:"mode"`
	Note           string             `json:"note"`
	Items          []orderItemRequest `json:"items"`
}

type distributedPurchase struct {
	POSID      string `json:"posId"`
	POSName    string `json:"posName"`
	OrderID    string `json:"orderId"`
	ItemsCount int    `json:"itemsCount"`
}

type distributeOrderResponse struct {
	Success              bool                  `json:"success"`
	PurchaseID           string                `json:"purchaseId"`
	DistributedPurchases []distributedPurchase `json:"distributedPurchases"`
}

func (h *Handler) handleDistributeOrder(w http.ResponseWriter, r *http.Request) {
	var req distributeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := distribution.DistributeOrderInput{
		EventID:        req.EventID,
		ServingPointID: req.ServingPointID,
		UserID:         req.UserID,
		Mode:           req.Mode,
		Note:           req.Note,
		Items:          make([]distribution.OrderItemInput, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		item := distribution.OrderItemInput{
			ItemID:              it.ItemID,
			Quantity:            it.Quantity,
			SelectedExtras:      it.SelectedExtras,
			ExcludedIngredients: it.ExcludedIngredients,
		}
		for _, e := range it.Entries {
			item.Entries = append(item.Entries, distribution.EntryInput{
				Quantity:            e.Quantity,
				SelectedExtras:      e.SelectedExtras,
				ExcludedIngredients: e.ExcludedIngredients,
			})
		}
		in.Items = append(in.Items, item)
	}

	res, err := h.distributor.Execute(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := distributeOrderResponse{
		Success:              res.Success,
		PurchaseID:           res.PurchaseID,
		DistributedPurchases: make([]distributedPurchase, 0, len(res.DistributedPurchases)),
	}
	for _, p := range res.DistributedPurchases {
		out.DistributedPurchases = append(out.DistributedPurchases, distributedPurchase{
			POSID:      p.POSID,
			POSName:    p.POSName,
			OrderID:    p.OrderID,
			ItemsCount: p.ItemsCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type purchaseItemResponse struct {
	ID                  string   `json:"id"`
	ItemID              string   `json:"itemId"`
	Quantity            int      `json:"quantity"`
	SelectedExtras      []string `json:"selectedExtras"`
	ExcludedIngredients []string `json:"excludedIngredients"`
	Status              string   `json:"status,omitempty"`
	Name                string   `json:"name,omitempty"`
	Price               float64  `json:"price"`
}

type purchaseResponse struct {
	ID                 string                 `json:"id"`
	ServingPointID     string                 `json:"servingPointId,omitempty"`
	UserID             string                 `json:"userId,omitempty"`
	Note               string                 `json:"note,omitempty"`
	PaymentMethod      string                 `json:"paymentMethod,omitempty"`
	OrderPlaced        time.Time              `json:"orderPlaced"`
	IsPaid             bool                   `json:"isPaid"`
	Distributed        bool                   `json:"distributed"`
	DistributedAt      *time.Time             `json:"distributedAt,omitempty"`
	DistributionFailed bool                   `json:"distributionFailed,omitempty"`
	DistributionError  string                 `json:"distributionError,omitempty"`
	TotalPrice         *float64               `json:"totalPrice,omitempty"`
	Items              []purchaseItemResponse `json:"items"`
}

func (h *Handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	orderID := r.PathValue("orderID")

	p, err := h.store.GetPurchase(r.Context(), eventID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	docs, err := h.store.ListPurchaseItems(r.Context(), eventID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := purchaseResponse{
		ID:                 p.ID,
		ServingPointID:     p.ServingPointID,
		UserID:             p.UserID,
		Note:               p.Note,
		PaymentMethod:      p.PaymentMethod,
		OrderPlaced:        p.OrderPlaced,
		IsPaid:             p.IsPaid,
		Distributed:        p.Distributed,
		DistributedAt:      p.DistributedAt,
		DistributionFailed: p.DistributionFailed,
		DistributionError:  p.DistributionError,
		TotalPrice:         p.TotalPrice,
		Items:              make([]purchaseItemResponse, 0, len(docs)),
	}
	for _, doc := range docs {
		units := 0
		if !doc.Canceled() {
			units = len(purchase.Normalize(doc))
		}
		out.Items = append(out.Items, purchaseItemResponse{
			ID:                  doc.DocID,
			ItemID:              doc.ItemID,
			Quantity:            units,
			SelectedExtras:      emptyIfNil(doc.SelectedExtras),
			ExcludedIngredients: emptyIfNil(doc.ExcludedIngredients),
			Status:              doc.Status,
			Name:                doc.Name,
			Price:               doc.Price,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRequestLogger injects a request-scoped logger carrying the request id.
func (h *Handler) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := h.log.With(zap.String("request_id", requestID))
		next.ServeHTTP(w, r.WithContext(logging.ContextWithLogger(r.Context(), logger)))
	})
}

// withAccessLog writes one access line after the handler completes.
func (h *Handler) withAccessLog(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logging.FromContext(r.Context()).Info("http_access",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withMetrics records request count and duration against the route template.
func (h *Handler) withMetrics(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.metrics.HTTPRequests.WithLabelValues(r.Method, route, http.StatusText(rec.status)).Inc()
		h.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps application and store errors onto HTTP statuses. The
// distribution failure messages are returned verbatim; clients match on them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, distribution.ErrMissingFields),
		errors.Is(err, event.ErrUnknownDistribution):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, distribution.ErrGroupedMode):
		writeError(w, http.StatusNotImplemented, err)
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	default:
		switch store.KindOf(err) {
		case store.KindConflict:
			writeError(w, http.StatusConflict, err)
		case store.KindTransient:
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
