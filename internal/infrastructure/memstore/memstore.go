// Package memstore is the in-memory document store. It mirrors the
// semantics the engine relies on from the hosted backend: deep-copied
// reads, batched writes, field merges, server-side timestamps and a change
// feed emitted after a write commits. It backs tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/store"
)

// Store implements store.Gateway over process memory.
type Store struct {
	mu     sync.RWMutex
	events map[string]*eventState

	paths store.Paths
	pub   store.Publisher
	clock func() time.Time
}

// eventState holds everything under one event document. The document
// itself may be absent while sub-collections exist, as in the hosted
// backend; event stays nil in that case.
type eventState struct {
	event         *event.Event
	servingPoints map[string]*event.ServingPoint
	items         map[string]*catalog.Item
	pointsOfSale  map[string]*posState
	purchases     map[string]*purchaseState
	notifications map[string]*notification.Notification
}

type posState struct {
	pos    *pos.PointOfSale
	items  map[string]*pos.Item
	orders map[string]*orderState
}

type purchaseState struct {
	purchase *purchase.Purchase
	items    map[string]*purchase.Item
}

type orderState struct {
	order *dispatch.Order
	items map[string]*dispatch.Item
}

// New builds an empty store. pub may be nil when no change feed is wanted.
func New(paths store.Paths, pub store.Publisher) *Store {
	return &Store{
		events: make(map[string]*eventState),
		paths:  paths,
		pub:    pub,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the server-timestamp source. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Ping implements store.Gateway.
func (s *Store) Ping(ctx context.Context) error {
	_ = ctx
	return nil
}

// publish emits a change after the guarded section released the lock, the
// way backend triggers observe committed writes. Handlers may call back
// into the store.
func (s *Store) publish(ctx context.Context, e store.Event) {
	if s.pub == nil || e == nil {
		return
	}
	_ = s.pub.Publish(ctx, e)
}

func (s *Store) eventState(eventID string) *eventState {
	st, ok := s.events[eventID]
	if !ok {
		st = &eventState{
			servingPoints: make(map[string]*event.ServingPoint),
			items:         make(map[string]*catalog.Item),
			pointsOfSale:  make(map[string]*posState),
			purchases:     make(map[string]*purchaseState),
			notifications: make(map[string]*notification.Notification),
		}
		s.events[eventID] = st
	}
	return st
}

func (s *Store) posState(eventID, posID string) *posState {
	st := s.eventState(eventID)
	ps, ok := st.pointsOfSale[posID]
	if !ok {
		ps = &posState{
			items:  make(map[string]*pos.Item),
			orders: make(map[string]*orderState),
		}
		st.pointsOfSale[posID] = ps
	}
	return ps
}

func (s *Store) orderState(eventID, posID, orderID string) *orderState {
	ps := s.posState(eventID, posID)
	os, ok := ps.orders[orderID]
	if !ok {
		os = &orderState{items: make(map[string]*dispatch.Item)}
		ps.orders[orderID] = os
	}
	return os
}

// sortedKeys lists map keys in ascending document-id order.
func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
