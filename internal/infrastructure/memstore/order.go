package memstore

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/store"
)

// CountOpenOrders implements store.Gateway.
func (s *Store) CountOpenOrders(ctx context.Context, eventID, posID string) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPOS(eventID, posID)
	if err != nil {
		return 0, nil
	}
	n := 0
	for _, os := range ps.orders {
		if os.order != nil && os.order.Status == dispatch.OrderOpen {
			n++
		}
	}
	return n, nil
}

// ListOpenOrders implements store.Gateway.
func (s *Store) ListOpenOrders(ctx context.Context, eventID, posID string) ([]dispatch.Order, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPOS(eventID, posID)
	if err != nil {
		return nil, nil
	}
	var out []dispatch.Order
	for _, id := range sortedKeys(ps.orders) {
		os := ps.orders[id]
		if os.order != nil && os.order.Status == dispatch.OrderOpen {
			out = append(out, os.order.Clone())
		}
	}
	return out, nil
}

// GetOrder implements store.Gateway.
func (s *Store) GetOrder(ctx context.Context, eventID, posID, orderID string) (dispatch.Order, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	os, ok := s.lookupOrder(eventID, posID, orderID)
	if !ok || os.order == nil {
		return dispatch.Order{}, dispatch.ErrNotFound
	}
	return os.order.Clone(), nil
}

// WriteDistributedOrders implements store.Gateway. Order documents get the
// server timestamp as orderDate; line items overwrite whole documents.
func (s *Store) WriteDistributedOrders(ctx context.Context, eventID string, orders []store.DistributedOrder) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, b := range orders {
		if b.POSID == "" || b.Order.ID == "" {
			return fmt.Errorf("memstore: distributed order needs pos and order ids")
		}
		os := s.orderState(eventID, b.POSID, b.Order.ID)
		o := b.Order.Clone()
		o.OrderDate = now
		os.order = &o
		for _, it := range b.Items {
			c := it.Clone()
			os.items[it.Key] = &c
		}
	}
	return nil
}

// UpsertOrder implements store.Gateway. Existing line items are untouched.
func (s *Store) UpsertOrder(ctx context.Context, eventID, posID string, o dispatch.Order) error {
	_ = ctx
	if o.ID == "" {
		return fmt.Errorf("memstore: order id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	os := s.orderState(eventID, posID, o.ID)
	clone := o.Clone()
	os.order = &clone
	return nil
}

// MergeOrder implements store.Gateway.
func (s *Store) MergeOrder(ctx context.Context, eventID, posID, orderID string, m store.OrderMerge) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	os, ok := s.lookupOrder(eventID, posID, orderID)
	if !ok || os.order == nil {
		return dispatch.ErrNotFound
	}
	o := os.order
	if m.Status != nil {
		o.Status = *m.Status
	}
	if m.ClearTransferredAt {
		o.TransferredAt = nil
	}
	if m.TransferredAtServerTime {
		at := s.clock()
		o.TransferredAt = &at
	}
	if m.TotalPrice != nil {
		v := *m.TotalPrice
		o.TotalPrice = &v
	}
	return nil
}

// ListOrderItems implements store.Gateway. An absent order reads as an
// empty collection, as in the hosted backend.
func (s *Store) ListOrderItems(ctx context.Context, eventID, posID, orderID string) ([]dispatch.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	os, ok := s.lookupOrder(eventID, posID, orderID)
	if !ok {
		return nil, nil
	}
	var out []dispatch.Item
	for _, key := range sortedKeys(os.items) {
		out = append(out, os.items[key].Clone())
	}
	return out, nil
}

// ListOrderItemsByItemIDs implements store.Gateway.
func (s *Store) ListOrderItemsByItemIDs(ctx context.Context, eventID, posID, orderID string, itemIDs []string) ([]dispatch.Item, error) {
	_ = ctx
	if len(itemIDs) > store.InQueryLimit {
		return nil, fmt.Errorf("memstore: %d ids exceed the membership query cap: %w", len(itemIDs), store.ErrPermanent)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	os, ok := s.lookupOrder(eventID, posID, orderID)
	if !ok {
		return nil, nil
	}
	var out []dispatch.Item
	for _, key := range sortedKeys(os.items) {
		it := os.items[key]
		if lo.Contains(itemIDs, it.EffectiveItemID()) {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

// MergeOrderItemStatus implements store.Gateway.
func (s *Store) MergeOrderItemStatus(ctx context.Context, eventID, posID, orderID, key, status string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.lookupOrderItem(eventID, posID, orderID, key)
	if err != nil {
		return err
	}
	it.Status = status
	return nil
}

// CancelOrderItem implements store.Gateway.
func (s *Store) CancelOrderItem(ctx context.Context, eventID, posID, orderID, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.lookupOrderItem(eventID, posID, orderID, key)
	if err != nil {
		return err
	}
	it.Status = dispatch.ItemCanceled
	it.Quantity = dispatch.Int(0)
	return nil
}

func (s *Store) lookupOrder(eventID, posID, orderID string) (*orderState, bool) {
	st, ok := s.events[eventID]
	if !ok {
		return nil, false
	}
	ps, ok := st.pointsOfSale[posID]
	if !ok {
		return nil, false
	}
	os, ok := ps.orders[orderID]
	return os, ok
}

func (s *Store) lookupOrderItem(eventID, posID, orderID, key string) (*dispatch.Item, error) {
	os, ok := s.lookupOrder(eventID, posID, orderID)
	if !ok {
		return nil, dispatch.ErrItemNotFound
	}
	it, ok := os.items[key]
	if !ok {
		return nil, dispatch.ErrItemNotFound
	}
	return it, nil
}
