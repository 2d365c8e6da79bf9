package availability

import (
	"context"
	"fmt"

	"github.com/venuepos/dispatch/internal/domain/pos"
)

// availabilityMemo caches the availability picture of one event for the
// duration of one trigger handling. The triggering write wins over whatever
// the store returns for that document: the feed may run before reads observe
// the new flag.
type availabilityMemo struct {
	store   Store
	eventID string

	triggerPOS   string
	triggerItem  string
	triggerValue bool

	pointsOfSale []pos.PointOfSale
	posItems     map[string][]pos.Item
	global       map[string]bool
}

func newAvailabilityMemo(st Store, eventID, posID, itemID string, value bool) *availabilityMemo {
	return &availabilityMemo{
		store:        st,
		eventID:      eventID,
		triggerPOS:   posID,
		triggerItem:  itemID,
		triggerValue: value,
		posItems:     map[string][]pos.Item{},
		global:       map[string]bool{},
	}
}

// PointsOfSale lists the event's points of sale in enumeration order, once.
func (m *availabilityMemo) PointsOfSale(ctx context.Context) ([]pos.PointOfSale, error) {
	if m.pointsOfSale != nil {
		return m.pointsOfSale, nil
	}
	all, err := m.store.ListPointsOfSale(ctx, m.eventID)
	if err != nil {
		return nil, fmt.Errorf("availability: list points of sale: %w", err)
	}
	if all == nil {
		all = []pos.PointOfSale{}
	}
	m.pointsOfSale = all
	return all, nil
}

func (m *availabilityMemo) itemsOf(ctx context.Context, posID string) ([]pos.Item, error) {
	if items, ok := m.posItems[posID]; ok {
		return items, nil
	}
	items, err := m.store.ListPOSItems(ctx, m.eventID, posID)
	if err != nil {
		return nil, fmt.Errorf("availability: list items of pos %s: %w", posID, err)
	}
	m.posItems[posID] = items
	return items, nil
}

// Local reports whether posID carries itemID and whether it is locally
// available there, with the triggering write overriding the stored flag.
func (m *availabilityMemo) Local(ctx context.Context, posID, itemID string) (carried, available bool, err error) {
	if posID == m.triggerPOS && itemID == m.triggerItem {
		return true, m.triggerValue, nil
	}
	items, err := m.itemsOf(ctx, posID)
	if err != nil {
		return false, false, err
	}
	for _, it := range items {
		if it.ID == itemID {
			return true, it.Available(), nil
		}
	}
	return false, false, nil
}

// Global reports whether at least one point of sale still offers itemID.
func (m *availabilityMemo) Global(ctx context.Context, itemID string) (bool, error) {
	if v, ok := m.global[itemID]; ok {
		return v, nil
	}
	all, err := m.PointsOfSale(ctx)
	if err != nil {
		return false, err
	}
	result := false
	for _, p := range all {
		carried, available, err := m.Local(ctx, p.ID, itemID)
		if err != nil {
			return false, err
		}
		if carried && available {
			result = true
			break
		}
	}
	m.global[itemID] = result
	return result, nil
}
