package memstore

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/store"
)

// SeedPointOfSale writes a point-of-sale document.
func (s *Store) SeedPointOfSale(eventID string, p pos.PointOfSale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := p.Clone()
	s.posState(eventID, p.ID).pos = &clone
}

// SeedPOSItem writes a point-of-sale line item without emitting a change.
func (s *Store) SeedPOSItem(eventID, posID string, it pos.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := it.Clone()
	s.posState(eventID, posID).items[it.ID] = &clone
}

// SetPOSItemAvailability updates one point-of-sale item's availability flag
// and emits the pos_item change the reconciler trigger listens on. This is
// the write path of external editors (store managers toggling items).
func (s *Store) SetPOSItemAvailability(ctx context.Context, eventID, posID, itemID string, available *bool) error {
	s.mu.Lock()
	st, ok := s.events[eventID]
	if !ok {
		s.mu.Unlock()
		return pos.ErrNotFound
	}
	ps, ok := st.pointsOfSale[posID]
	if !ok {
		s.mu.Unlock()
		return pos.ErrNotFound
	}
	it, ok := ps.items[itemID]
	if !ok {
		s.mu.Unlock()
		return pos.ErrItemNotFound
	}

	before := it.Clone()
	if available == nil {
		it.IsAvailable = nil
	} else {
		v := *available
		it.IsAvailable = &v
	}
	after := it.Clone()
	s.mu.Unlock()

	s.publish(ctx, store.POSItemChange{
		EventID: eventID,
		POSID:   posID,
		ItemID:  itemID,
		Kind:    store.ChangeUpdate,
		Before:  &before,
		After:   &after,
	})
	return nil
}

// ListPointsOfSale implements store.Gateway.
func (s *Store) ListPointsOfSale(ctx context.Context, eventID string) ([]pos.PointOfSale, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.events[eventID]
	if !ok {
		return nil, nil
	}
	var out []pos.PointOfSale
	for _, id := range sortedKeys(st.pointsOfSale) {
		ps := st.pointsOfSale[id]
		if ps.pos == nil {
			continue
		}
		out = append(out, ps.pos.Clone())
	}
	return out, nil
}

// ListPOSItems implements store.Gateway. An absent point of sale reads as
// an empty collection, as in the hosted backend.
func (s *Store) ListPOSItems(ctx context.Context, eventID, posID string) ([]pos.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPOS(eventID, posID)
	if err != nil {
		return nil, nil
	}
	var out []pos.Item
	for _, id := range sortedKeys(ps.items) {
		out = append(out, ps.items[id].Clone())
	}
	return out, nil
}

// GetPOSItem implements store.Gateway.
func (s *Store) GetPOSItem(ctx context.Context, eventID, posID, itemID string) (pos.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, err := s.lookupPOS(eventID, posID)
	if err != nil {
		return pos.Item{}, pos.ErrItemNotFound
	}
	it, ok := ps.items[itemID]
	if !ok {
		return pos.Item{}, pos.ErrItemNotFound
	}
	return it.Clone(), nil
}

// lookupPOS resolves a posState without creating it. Callers hold the lock.
func (s *Store) lookupPOS(eventID, posID string) (*posState, error) {
	st, ok := s.events[eventID]
	if !ok {
		return nil, pos.ErrNotFound
	}
	ps, ok := st.pointsOfSale[posID]
	if !ok {
		return nil, pos.ErrNotFound
	}
	return ps, nil
}
