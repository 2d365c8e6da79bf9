// Package purchase models the customer-facing main order placed against an
// event, together with the several historical shapes its line items come in
// and the normalizer that reduces them to canonical single-count line items.
package purchase

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("purchase: not found")
	ErrConflict = errors.New("purchase: already exists")
)

// ItemStatus values seen on main-order item documents.
const (
	ItemStatusCanceled = "canceled"
)

// Payment methods the engine reacts to.
const (
	PaymentCash = "cash"
)

// Purchase is the event-level main order. The engine owns the distributed
// marker fields; everything else is written externally.
type Purchase struct {
	ID                 string
	ServingPointID     string
	UserID             string
	Note               string
	PaymentMethod      string
	OrderPlaced        time.Time
	IsPaid             bool
	Distributed        bool
	DistributedAt      *time.Time
	DistributionError  string
	DistributionFailed bool
	TotalPrice         *float64
}

// Entry is one element of the entries[] quantity form: its own quantity with
// optional per-entry extras and exclusions overriding the document-level ones.
type Entry struct {
	Quantity            *float64
	SelectedExtras      []string
	ExcludedIngredients []string
}

// Item is a raw purchase line-item document. Quantity has historically been
// carried three ways (quantity scalar, count scalar, entries[]); Normalize
// flattens them. The catalog fields are optional denormalized copies used as
// a fallback when the canonical item document is gone.
type Item struct {
	DocID               string
	ItemID              string
	Quantity            *float64
	Count               *float64
	SelectedExtras      []string
	ExcludedIngredients []string
	Entries             []Entry
	Status              string
	Calculated          int

	Name         string
	Price        float64
	Category     string
	CategoryName string
}

// Canceled reports whether the line item was explicitly canceled.
func (i Item) Canceled() bool {
	return i.Status == ItemStatusCanceled
}

// EffectiveQuantity resolves the document-level quantity the way readers of
// the raw document do: quantity first, count as the legacy fallback, floored
// to a non-negative integer. Unlike Normalize it applies no legacy default.
func (i Item) EffectiveQuantity() int {
	return coerceQuantity(firstQuantity(i))
}

// Clone returns a deep copy.
func (p Purchase) Clone() Purchase {
	clone := p
	if p.DistributedAt != nil {
		t := *p.DistributedAt
		clone.DistributedAt = &t
	}
	if p.TotalPrice != nil {
		v := *p.TotalPrice
		clone.TotalPrice = &v
	}
	return clone
}

// Clone returns a deep copy.
func (i Item) Clone() Item {
	clone := i
	clone.Quantity = cloneFloat(i.Quantity)
	clone.Count = cloneFloat(i.Count)
	clone.SelectedExtras = append([]string(nil), i.SelectedExtras...)
	clone.ExcludedIngredients = append([]string(nil), i.ExcludedIngredients...)
	if i.Entries != nil {
		clone.Entries = make([]Entry, len(i.Entries))
		for n, e := range i.Entries {
			clone.Entries[n] = Entry{
				Quantity:            cloneFloat(e.Quantity),
				SelectedExtras:      append([]string(nil), e.SelectedExtras...),
				ExcludedIngredients: append([]string(nil), e.ExcludedIngredients...),
			}
		}
	}
	return clone
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

// Float is a convenience for building quantity pointers in writes and
// fixtures.
func Float(v float64) *float64 { return &v }
