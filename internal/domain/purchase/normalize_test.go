package purchase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extrasOf(lines []LineItem) [][]string {
	out := make([][]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.SelectedExtras)
	}
	return out
}

func TestNormalizeEntriesThenDocQuantityTopUp(t *testing.T) {
	// One entry unit with its own extras, doc quantity 3: the two units not
	// covered by entries carry the doc-level extras.
	lines := Normalize(Item{
		ItemID:   "x",
		Quantity: Float(3),
		Entries:  []Entry{{Quantity: Float(1), SelectedExtras: []string{"cheese"}}},
	})

	require.Len(t, lines, 3)
	assert.Equal(t, [][]string{{"cheese"}, {}, {}}, extrasOf(lines))
	for _, l := range lines {
		assert.Equal(t, "x", l.ItemID)
		assert.Equal(t, 1, l.Count)
		assert.Equal(t, 1, l.Calculated)
	}
}

func TestNormalizeQuantityForms(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want int
	}{
		{"quantity scalar", Item{ItemID: "x", Quantity: Float(2)}, 2},
		{"count fallback", Item{ItemID: "x", Count: Float(4)}, 4},
		{"quantity wins over count", Item{ItemID: "x", Quantity: Float(1), Count: Float(5)}, 1},
		{"fraction floors", Item{ItemID: "x", Quantity: Float(2.9)}, 2},
		{"nothing means one", Item{ItemID: "x"}, 1},
		{"explicit zero means one", Item{ItemID: "x", Quantity: Float(0)}, 1},
		{"negative means one", Item{ItemID: "x", Quantity: Float(-3)}, 1},
		{"nan means one", Item{ItemID: "x", Quantity: Float(math.NaN())}, 1},
		{"inf means one", Item{ItemID: "x", Quantity: Float(math.Inf(1))}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Normalize(tt.item), tt.want)
		})
	}
}

func TestNormalizeEntriesSuppressLegacyDefault(t *testing.T) {
	// Entries were present, so a zero doc quantity stays zero.
	lines := Normalize(Item{
		ItemID:  "x",
		Entries: []Entry{{Quantity: Float(0)}},
	})
	assert.Empty(t, lines)

	// Unusable entry quantities are skipped, not defaulted.
	lines = Normalize(Item{
		ItemID: "x",
		Entries: []Entry{
			{Quantity: Float(math.NaN())},
			{Quantity: Float(-1)},
			{Quantity: Float(2)},
		},
	})
	assert.Len(t, lines, 2)
}

func TestNormalizeEntriesBeyondDocQuantity(t *testing.T) {
	// Entry units exceed the doc quantity; nothing is clawed back.
	lines := Normalize(Item{
		ItemID:   "x",
		Quantity: Float(2),
		Entries:  []Entry{{Quantity: Float(3)}},
	})
	assert.Len(t, lines, 3)
}

func TestNormalizeEntryListFallbacks(t *testing.T) {
	item := Item{
		ItemID:              "x",
		SelectedExtras:      []string{"doc-extra"},
		ExcludedIngredients: []string{"doc-excluded"},
		Entries: []Entry{
			{Quantity: Float(1)},                                // inherits doc lists
			{Quantity: Float(1), SelectedExtras: []string{}},    // empty overrides
			{Quantity: Float(1), SelectedExtras: []string{"a"}}, // own list
		},
	}

	lines := Normalize(item)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"doc-extra"}, lines[0].SelectedExtras)
	assert.Equal(t, []string{"doc-excluded"}, lines[0].ExcludedIngredients)
	assert.Equal(t, []string{}, lines[1].SelectedExtras)
	assert.Equal(t, []string{"doc-excluded"}, lines[1].ExcludedIngredients)
	assert.Equal(t, []string{"a"}, lines[2].SelectedExtras)
}

func TestNormalizeCanonicalCollapsesToItself(t *testing.T) {
	item := Item{
		ItemID:         "x",
		Quantity:       Float(7), // ignored once canonical
		Calculated:     1,
		SelectedExtras: []string{"cheese"},
	}

	lines := Normalize(item)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Count)
	assert.Equal(t, 1, lines[0].Calculated)
	assert.Equal(t, []string{"cheese"}, lines[0].SelectedExtras)

	// Re-normalizing the canonical form is a fixed point.
	again := Normalize(Item{
		ItemID:         lines[0].ItemID,
		Quantity:       Float(float64(lines[0].Count)),
		Calculated:     lines[0].Calculated,
		SelectedExtras: lines[0].SelectedExtras,
	})
	require.Len(t, again, 1)
	assert.Equal(t, lines[0], again[0])
}

func TestNormalizeCarriesCatalogFields(t *testing.T) {
	lines := Normalize(Item{
		ItemID:       "x",
		Name:         "Beer",
		Price:        4.5,
		Category:     "drinks",
		CategoryName: "Drinks",
		Quantity:     Float(1),
	})
	require.Len(t, lines, 1)
	assert.Equal(t, "Beer", lines[0].Name)
	assert.Equal(t, 4.5, lines[0].Price)
	assert.Equal(t, "drinks", lines[0].Category)
	assert.Equal(t, "Drinks", lines[0].CategoryName)
}

func TestEffectiveQuantityAppliesNoLegacyDefault(t *testing.T) {
	assert.Equal(t, 0, Item{}.EffectiveQuantity())
	assert.Equal(t, 2, Item{Quantity: Float(2.7)}.EffectiveQuantity())
	assert.Equal(t, 3, Item{Count: Float(3)}.EffectiveQuantity())
	assert.Equal(t, 0, Item{Quantity: Float(-1)}.EffectiveQuantity())
}
