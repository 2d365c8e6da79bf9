// Package dispatch models the POS-local projection of a purchase: the
// distributed order and its grouped line items. A distributed order shares
// the id of the purchase it was materialized from, which is what makes the
// materialization idempotent.
package dispatch

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("dispatch: order not found")
	ErrItemNotFound = errors.New("dispatch: order item not found")
)

// OrderStatus values the engine reads and writes. Other statuses exist in
// the wild (the POS UI owns most of the lifecycle); the engine only cares
// about open and transferred.
type OrderStatus string

const (
	OrderOpen        OrderStatus = "open"
	OrderTransferred OrderStatus = "transferred"
)

// Item statuses written by the availability reconciler and the refund
// propagator.
const (
	ItemActive             = "active"
	ItemMarkedForCanceling = "marked_for_canceling"
	ItemCanceled           = "canceled"
)

// Order is the distributed sub-order routed to one point of sale.
type Order struct {
	ID                   string
	Status               OrderStatus
	OrderDate            time.Time
	ServingPointName     string
	ServingPointLocation string
	Note                 string
	TabletNumber         *int
	TransferredAt        *time.Time
	TotalPrice           *float64
}

// Item is one grouped line item of a distributed order. Its document key is
// the grouping key of (item id, extras, exclusions). Count is written by the
// scheduler; migrated items carry quantity instead, so readers go through
// EffectiveCount.
type Item struct {
	Key                 string
	ID                  string
	ItemID              string
	Name                string
	Price               float64
	Count               *int
	Quantity            *int
	Category            string
	CategoryName        string
	SelectedExtras      []string
	ExcludedIngredients []string
	Status              string
}

// EffectiveCount resolves the two historical count fields; quantity wins
// when both are present.
func (i Item) EffectiveCount() int {
	if i.Quantity != nil {
		return *i.Quantity
	}
	if i.Count != nil {
		return *i.Count
	}
	return 0
}

// EffectiveItemID resolves the two historical id fields.
func (i Item) EffectiveItemID() string {
	if i.ItemID != "" {
		return i.ItemID
	}
	return i.ID
}

// Canceled reports whether the item counts as canceled on read: explicitly,
// or by carrying a zero count.
func (i Item) Canceled() bool {
	return i.Status == ItemCanceled || i.EffectiveCount() <= 0
}

// GroupKey builds the document key two canonical line items share exactly
// when they are interchangeable: same item, same extras, same exclusions.
// The slices are sorted before joining so ordering differences in the input
// cannot split a group.
func GroupKey(itemID string, extras, excluded []string) string {
	return itemID + "_" + sortedCSV(extras) + "_" + sortedCSV(excluded)
}

func sortedCSV(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Clone returns a deep copy.
func (o Order) Clone() Order {
	clone := o
	if o.TabletNumber != nil {
		v := *o.TabletNumber
		clone.TabletNumber = &v
	}
	if o.TransferredAt != nil {
		t := *o.TransferredAt
		clone.TransferredAt = &t
	}
	if o.TotalPrice != nil {
		v := *o.TotalPrice
		clone.TotalPrice = &v
	}
	return clone
}

// Clone returns a deep copy.
func (i Item) Clone() Item {
	clone := i
	if i.Count != nil {
		v := *i.Count
		clone.Count = &v
	}
	if i.Quantity != nil {
		v := *i.Quantity
		clone.Quantity = &v
	}
	clone.SelectedExtras = append([]string(nil), i.SelectedExtras...)
	clone.ExcludedIngredients = append([]string(nil), i.ExcludedIngredients...)
	return clone
}

// Int is a convenience for building count pointers in writes and fixtures.
func Int(v int) *int { return &v }
