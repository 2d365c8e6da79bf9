package memstore

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/store"
)

// CreatePurchase implements store.Gateway.
func (s *Store) CreatePurchase(ctx context.Context, eventID string, p purchase.Purchase, items []purchase.Item) error {
	if p.ID == "" {
		return fmt.Errorf("memstore: purchase id is required")
	}

	s.mu.Lock()
	st := s.eventState(eventID)
	if _, exists := st.purchases[p.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("memstore: purchase %s: %w", p.ID, store.ErrConflict)
	}

	clone := p.Clone()
	if clone.OrderPlaced.IsZero() {
		clone.OrderPlaced = s.clock()
	}
	ps := &purchaseState{
		purchase: &clone,
		items:    make(map[string]*purchase.Item, len(items)),
	}
	for _, it := range items {
		c := it.Clone()
		ps.items[it.DocID] = &c
	}
	st.purchases[p.ID] = ps
	after := clone.Clone()
	s.mu.Unlock()

	s.publish(ctx, store.PurchaseChange{
		EventID:    eventID,
		PurchaseID: p.ID,
		Kind:       store.ChangeCreate,
		After:      &after,
	})
	return nil
}

// GetPurchase implements store.Gateway.
func (s *Store) GetPurchase(ctx context.Context, eventID, purchaseID string) (purchase.Purchase, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPurchase(eventID, purchaseID)
	if err != nil {
		return purchase.Purchase{}, err
	}
	return ps.purchase.Clone(), nil
}

// MergePurchase implements store.Gateway.
func (s *Store) MergePurchase(ctx context.Context, eventID, purchaseID string, m store.PurchaseMerge) error {
	s.mu.Lock()
	ps, err := s.lookupPurchase(eventID, purchaseID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	before := ps.purchase.Clone()
	p := ps.purchase
	if m.IsPaid != nil {
		p.IsPaid = *m.IsPaid
	}
	if m.Distributed != nil {
		p.Distributed = *m.Distributed
	}
	if m.DistributedAtServerTime {
		at := s.clock()
		p.DistributedAt = &at
	}
	if m.DistributionError != nil {
		p.DistributionError = *m.DistributionError
	}
	if m.DistributionFailed != nil {
		p.DistributionFailed = *m.DistributionFailed
	}
	if m.TotalPrice != nil {
		p.TotalPrice = purchase.Float(*m.TotalPrice)
	}
	after := p.Clone()
	s.mu.Unlock()

	s.publish(ctx, store.PurchaseChange{
		EventID:    eventID,
		PurchaseID: purchaseID,
		Kind:       store.ChangeUpdate,
		Before:     &before,
		After:      &after,
	})
	return nil
}

// ListPurchaseItems implements store.Gateway.
func (s *Store) ListPurchaseItems(ctx context.Context, eventID, purchaseID string) ([]purchase.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPurchase(eventID, purchaseID)
	if err != nil {
		return nil, err
	}
	var out []purchase.Item
	for _, id := range sortedKeys(ps.items) {
		out = append(out, ps.items[id].Clone())
	}
	return out, nil
}

// ListPurchaseItemsByItemIDs implements store.Gateway.
func (s *Store) ListPurchaseItemsByItemIDs(ctx context.Context, eventID, purchaseID string, itemIDs []string) ([]purchase.Item, error) {
	_ = ctx
	if len(itemIDs) > store.InQueryLimit {
		return nil, fmt.Errorf("memstore: %d ids exceed the membership query cap: %w", len(itemIDs), store.ErrPermanent)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPurchase(eventID, purchaseID)
	if err != nil {
		return nil, err
	}
	var out []purchase.Item
	for _, id := range sortedKeys(ps.items) {
		it := ps.items[id]
		if lo.Contains(itemIDs, it.ItemID) {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

// CancelPurchaseItem implements store.Gateway.
func (s *Store) CancelPurchaseItem(ctx context.Context, eventID, purchaseID, docID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, err := s.lookupPurchase(eventID, purchaseID)
	if err != nil {
		return err
	}
	it, ok := ps.items[docID]
	if !ok {
		return purchase.ErrNotFound
	}
	it.Status = purchase.ItemStatusCanceled
	it.Quantity = purchase.Float(0)
	return nil
}

// lookupPurchase resolves a purchaseState without creating it. Callers hold
// the lock.
func (s *Store) lookupPurchase(eventID, purchaseID string) (*purchaseState, error) {
	st, ok := s.events[eventID]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	ps, ok := st.purchases[purchaseID]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	return ps, nil
}
