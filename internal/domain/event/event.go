package event

import "errors"

var (
	ErrNotFound            = errors.New("event: not found")
	ErrUnknownDistribution = errors.New("event: unknown distribution mode")
)

// DistributionMode selects how purchased items are assigned to points of sale.
type DistributionMode string

const (
	// DistributionBalanced assigns each item to the point of sale with the
	// fewest open orders.
	DistributionBalanced DistributionMode = "balanced"
	// DistributionGrouped is reserved and not implemented.
	DistributionGrouped DistributionMode = "grouped"
)

// ParseDistributionMode normalises a raw mode string. An empty value falls
// back to the balanced default; anything outside the enum is an error.
func ParseDistributionMode(raw string) (DistributionMode, error) {
	switch DistributionMode(raw) {
	case "":
		return DistributionBalanced, nil
	case DistributionBalanced:
		return DistributionBalanced, nil
	case DistributionGrouped:
		return DistributionGrouped, nil
	default:
		return "", ErrUnknownDistribution
	}
}

// Event is the tenant namespace. One event owns its points of sale, its item
// catalog, its serving points, its purchases and its notifications. The
// engine only ever reads event documents.
type Event struct {
	ID               string
	Name             string
	DistributionMode DistributionMode
}

// Mode returns the configured distribution mode, defaulting to balanced.
func (e Event) Mode() DistributionMode {
	if e.DistributionMode == "" {
		return DistributionBalanced
	}
	return e.DistributionMode
}

// ServingPoint is the customer-facing destination (a table, a seat block)
// produced items are brought to.
type ServingPoint struct {
	ID       string
	Name     string
	Location string
	AreaName string
	Capacity int
}

// Clone returns a copy safe to hand across the store boundary.
func (s ServingPoint) Clone() ServingPoint { return s }

// Clone returns a copy safe to hand across the store boundary.
func (e Event) Clone() Event { return e }
