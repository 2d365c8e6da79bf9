package store

import (
	"fmt"
	"strings"
)

// Document-store roots the engine can be pointed at. Both trees share the
// same shape below the event document.
const (
	RootEvents    = "Events"
	RootPosEvents = "PosEvents"
)

// Collection segments under an event document.
const (
	segServingPoints = "Serving-Points"
	segItems         = "Items"
	segPointsOfSale  = "Points-of-Sale"
	segOrders        = "Orders"
	segNotifications = "Notifications"
)

// Paths builds document and collection paths for one configured root.
// Implementations use them as map keys, collection names and log fields.
type Paths struct {
	root string
}

// NewPaths validates the collection root and returns a path builder for it.
func NewPaths(root string) (Paths, error) {
	switch root {
	case RootEvents, RootPosEvents:
		return Paths{root: root}, nil
	case "":
		return Paths{root: RootEvents}, nil
	default:
		return Paths{}, fmt.Errorf("store: unknown collection root %q", root)
	}
}

// Root returns the configured top-level collection name.
func (p Paths) Root() string { return p.root }

func (p Paths) join(parts ...string) string {
	return p.root + "/" + strings.Join(parts, "/")
}

func (p Paths) Event(eventID string) string {
	return p.join(eventID)
}

func (p Paths) ServingPoint(eventID, servingPointID string) string {
	return p.join(eventID, segServingPoints, servingPointID)
}

func (p Paths) CanonicalItems(eventID string) string {
	return p.join(eventID, segItems)
}

func (p Paths) CanonicalItem(eventID, itemID string) string {
	return p.join(eventID, segItems, itemID)
}

func (p Paths) PointsOfSale(eventID string) string {
	return p.join(eventID, segPointsOfSale)
}

func (p Paths) PointOfSale(eventID, posID string) string {
	return p.join(eventID, segPointsOfSale, posID)
}

func (p Paths) POSItems(eventID, posID string) string {
	return p.join(eventID, segPointsOfSale, posID, segItems)
}

func (p Paths) POSItem(eventID, posID, itemID string) string {
	return p.join(eventID, segPointsOfSale, posID, segItems, itemID)
}

func (p Paths) POSOrders(eventID, posID string) string {
	return p.join(eventID, segPointsOfSale, posID, segOrders)
}

func (p Paths) POSOrder(eventID, posID, orderID string) string {
	return p.join(eventID, segPointsOfSale, posID, segOrders, orderID)
}

func (p Paths) POSOrderItems(eventID, posID, orderID string) string {
	return p.join(eventID, segPointsOfSale, posID, segOrders, orderID, segItems)
}

func (p Paths) POSOrderItem(eventID, posID, orderID, key string) string {
	return p.join(eventID, segPointsOfSale, posID, segOrders, orderID, segItems, key)
}

// Purchases is the event-level Orders collection holding customer purchases.
func (p Paths) Purchases(eventID string) string {
	return p.join(eventID, segOrders)
}

func (p Paths) Purchase(eventID, purchaseID string) string {
	return p.join(eventID, segOrders, purchaseID)
}

func (p Paths) PurchaseItems(eventID, purchaseID string) string {
	return p.join(eventID, segOrders, purchaseID, segItems)
}

func (p Paths) PurchaseItem(eventID, purchaseID, docID string) string {
	return p.join(eventID, segOrders, purchaseID, segItems, docID)
}

func (p Paths) Notifications(eventID string) string {
	return p.join(eventID, segNotifications)
}

func (p Paths) Notification(eventID, notificationID string) string {
	return p.join(eventID, segNotifications, notificationID)
}
