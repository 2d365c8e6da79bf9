package catalog

import "errors"

var ErrNotFound = errors.New("catalog: item not found")

// Item is the event-wide canonical item definition. Its IsAvailable flag is
// derived: the availability reconciler keeps it true exactly while at least
// one point of sale still offers the item.
type Item struct {
	ID           string
	Name         string
	Price        float64
	Category     string
	CategoryName string
	IsAvailable  *bool
	SoldOut      bool
}

// Available reports the global availability flag; an absent flag counts as
// available.
func (i Item) Available() bool {
	return i.IsAvailable == nil || *i.IsAvailable
}

// Clone returns a deep copy.
func (i Item) Clone() Item {
	clone := i
	if i.IsAvailable != nil {
		v := *i.IsAvailable
		clone.IsAvailable = &v
	}
	return clone
}

// Bool is a convenience for building availability pointers in writes and
// fixtures.
func Bool(v bool) *bool { return &v }
