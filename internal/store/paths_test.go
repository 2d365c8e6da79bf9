package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathsValidatesRoot(t *testing.T) {
	p, err := NewPaths(RootEvents)
	require.NoError(t, err)
	assert.Equal(t, RootEvents, p.Root())

	p, err = NewPaths(RootPosEvents)
	require.NoError(t, err)
	assert.Equal(t, RootPosEvents, p.Root())

	// Empty selects the default root.
	p, err = NewPaths("")
	require.NoError(t, err)
	assert.Equal(t, RootEvents, p.Root())

	_, err = NewPaths("Tenants")
	require.Error(t, err)
}

func TestPathsLayout(t *testing.T) {
	p, err := NewPaths(RootEvents)
	require.NoError(t, err)

	assert.Equal(t, "Events/ev", p.Event("ev"))
	assert.Equal(t, "Events/ev/Serving-Points/sp", p.ServingPoint("ev", "sp"))
	assert.Equal(t, "Events/ev/Items/x", p.CanonicalItem("ev", "x"))
	assert.Equal(t, "Events/ev/Points-of-Sale/pos", p.PointOfSale("ev", "pos"))
	assert.Equal(t, "Events/ev/Points-of-Sale/pos/Items/x", p.POSItem("ev", "pos", "x"))
	assert.Equal(t, "Events/ev/Points-of-Sale/pos/Orders/o", p.POSOrder("ev", "pos", "o"))
	assert.Equal(t, "Events/ev/Points-of-Sale/pos/Orders/o/Items/k", p.POSOrderItem("ev", "pos", "o", "k"))
	assert.Equal(t, "Events/ev/Orders/p", p.Purchase("ev", "p"))
	assert.Equal(t, "Events/ev/Orders/p/Items/d", p.PurchaseItem("ev", "p", "d"))
	assert.Equal(t, "Events/ev/Notifications/n", p.Notification("ev", "n"))
}

func TestPathsAlternateRoot(t *testing.T) {
	p, err := NewPaths(RootPosEvents)
	require.NoError(t, err)

	// The tree below the event keeps the same shape under either root.
	assert.Equal(t, "PosEvents/ev/Orders/p", p.Purchase("ev", "p"))
	assert.Equal(t, "PosEvents/ev/Points-of-Sale/pos/Items/x", p.POSItem("ev", "pos", "x"))
}
