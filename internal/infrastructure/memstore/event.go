package memstore

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
)

// SeedEvent writes the event document. Test and bootstrap surface.
func (s *Store) SeedEvent(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.eventState(e.ID)
	clone := e.Clone()
	st.event = &clone
}

// SeedServingPoint writes a serving-point document.
func (s *Store) SeedServingPoint(eventID string, sp event.ServingPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := sp.Clone()
	s.eventState(eventID).servingPoints[sp.ID] = &clone
}

// SeedCanonicalItem writes an event-level catalog item.
func (s *Store) SeedCanonicalItem(eventID string, it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := it.Clone()
	s.eventState(eventID).items[it.ID] = &clone
}

// GetEvent implements store.Gateway.
func (s *Store) GetEvent(ctx context.Context, eventID string) (event.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.events[eventID]
	if !ok || st.event == nil {
		return event.Event{}, event.ErrNotFound
	}
	return st.event.Clone(), nil
}

// GetServingPoint implements store.Gateway.
func (s *Store) GetServingPoint(ctx context.Context, eventID, servingPointID string) (event.ServingPoint, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.events[eventID]
	if !ok {
		return event.ServingPoint{}, event.ErrNotFound
	}
	sp, ok := st.servingPoints[servingPointID]
	if !ok {
		return event.ServingPoint{}, event.ErrNotFound
	}
	return sp.Clone(), nil
}

// GetCanonicalItem implements store.Gateway.
func (s *Store) GetCanonicalItem(ctx context.Context, eventID, itemID string) (catalog.Item, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.events[eventID]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	it, ok := st.items[itemID]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return it.Clone(), nil
}

// SetCanonicalItemAvailability implements store.Gateway. The merge creates
// the canonical document when it does not exist yet, matching the hosted
// backend's merge-write behaviour.
func (s *Store) SetCanonicalItemAvailability(ctx context.Context, eventID, itemID string, available bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.eventState(eventID)
	it, ok := st.items[itemID]
	if !ok {
		it = &catalog.Item{ID: itemID}
		st.items[itemID] = it
	}
	it.IsAvailable = catalog.Bool(available)
	return nil
}
