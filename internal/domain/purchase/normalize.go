package purchase

import "math"

// LineItem is a canonical line item: always one unit, extras and exclusions
// resolved, ready for grouping and distribution. Catalog fields start out as
// whatever the purchase item carried and are enriched from the canonical
// catalog before scheduling.
type LineItem struct {
	ItemID              string
	Name                string
	Price               float64
	Category            string
	CategoryName        string
	SelectedExtras      []string
	ExcludedIngredients []string
	Count               int
	Calculated          int
}

// Normalize flattens one raw purchase line item into canonical single-count
// line items. Quantity is resolved in priority order: per-entry quantities
// first, then the document-level quantity (falling back to the legacy count
// field), with one unit as the legacy default when neither form yields
// anything and no entries were present. Entry-level extras and exclusions
// override the document-level ones. Already-canonical items collapse to
// themselves, so re-normalizing is safe.
func Normalize(item Item) []LineItem {
	if item.Calculated == 1 {
		return []LineItem{canonical(item, item.SelectedExtras, item.ExcludedIngredients)}
	}

	var out []LineItem
	entryTotal := 0
	for _, e := range item.Entries {
		n := coerceQuantity(e.Quantity)
		if n <= 0 {
			continue
		}
		entryTotal += n
		line := canonical(item,
			fallbackList(e.SelectedExtras, item.SelectedExtras),
			fallbackList(e.ExcludedIngredients, item.ExcludedIngredients),
		)
		for range n {
			out = append(out, line)
		}
	}

	docQty := coerceQuantity(firstQuantity(item))
	if docQty == 0 && len(item.Entries) == 0 {
		// Ancient documents carried neither quantity nor count and meant one.
		docQty = 1
	}

	if remaining := docQty - entryTotal; remaining > 0 {
		line := canonical(item, item.SelectedExtras, item.ExcludedIngredients)
		for range remaining {
			out = append(out, line)
		}
	}

	return out
}

func canonical(item Item, extras, excluded []string) LineItem {
	return LineItem{
		ItemID:              item.ItemID,
		Name:                item.Name,
		Price:               item.Price,
		Category:            item.Category,
		CategoryName:        item.CategoryName,
		SelectedExtras:      emptyIfNil(extras),
		ExcludedIngredients: emptyIfNil(excluded),
		Count:               1,
		Calculated:          1,
	}
}

func firstQuantity(item Item) *float64 {
	if item.Quantity != nil {
		return item.Quantity
	}
	return item.Count
}

// coerceQuantity floors a raw quantity to a whole number of units; absent,
// non-finite and negative values all yield zero.
func coerceQuantity(v *float64) int {
	if v == nil {
		return 0
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int(math.Floor(f))
}

func fallbackList(primary, fallback []string) []string {
	if primary != nil {
		return primary
	}
	return fallback
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
