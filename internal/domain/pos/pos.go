// Package pos models a point of sale: a producer endpoint that can fulfil a
// subset of the event's items. Each point of sale owns a snapshot of the
// items it offers, carrying a local availability flag that is flipped by the
// staff UI and reconciled against the canonical catalog by the engine.
package pos

import "errors"

var (
	ErrNotFound     = errors.New("pos: not found")
	ErrItemNotFound = errors.New("pos: item not found")
)

// PointOfSale is a producer (a bar, a kitchen, a stand).
type PointOfSale struct {
	ID          string
	Name        string
	Description string
	Location    string
}

// Item is the POS-local snapshot of a canonical item, plus the POS-local
// availability flag.
type Item struct {
	ID                  string
	Name                string
	Price               float64
	Count               int
	Category            string
	CategoryName        string
	IsAvailable         *bool
	SoldOut             bool
	SelectedExtras      []string
	ExcludedIngredients []string
}

// Available reports the POS-local availability flag; an absent flag counts
// as available.
func (i Item) Available() bool {
	return i.IsAvailable == nil || *i.IsAvailable
}

// Clone returns a copy safe to hand across the store boundary.
func (p PointOfSale) Clone() PointOfSale { return p }

// Clone returns a deep copy.
func (i Item) Clone() Item {
	clone := i
	if i.IsAvailable != nil {
		v := *i.IsAvailable
		clone.IsAvailable = &v
	}
	clone.SelectedExtras = append([]string(nil), i.SelectedExtras...)
	clone.ExcludedIngredients = append([]string(nil), i.ExcludedIngredients...)
	return clone
}

// Bool is a convenience for building availability pointers in writes and
// fixtures.
func Bool(v bool) *bool { return &v }
