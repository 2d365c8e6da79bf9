package mongostore

import (
	"time"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
)

// Document shapes. Wire names are the camelCase field names of the stored
// layout; _id is the document's full hierarchical path and the *Id fields
// are the flattened scope used by queries.

type eventDoc struct {
	Path             string `bson:"_id"`
	EventID          string `bson:"eventId"`
	Name             string `bson:"name,omitempty"`
	DistributionMode string `bson:"distributionMode,omitempty"`
}

func (d eventDoc) toDomain() event.Event {
	return event.Event{
		ID:               d.EventID,
		Name:             d.Name,
		DistributionMode: event.DistributionMode(d.DistributionMode),
	}
}

type servingPointDoc struct {
	Path     string `bson:"_id"`
	EventID  string `bson:"eventId"`
	PointID  string `bson:"servingPointId"`
	Name     string `bson:"name,omitempty"`
	Location string `bson:"location,omitempty"`
	AreaName string `bson:"areaName,omitempty"`
	Capacity int    `bson:"capacity,omitempty"`
}

func (d servingPointDoc) toDomain() event.ServingPoint {
	return event.ServingPoint{
		ID:       d.PointID,
		Name:     d.Name,
		Location: d.Location,
		AreaName: d.AreaName,
		Capacity: d.Capacity,
	}
}

type catalogItemDoc struct {
	Path         string  `bson:"_id"`
	EventID      string  `bson:"eventId"`
	ItemID       string  `bson:"itemId"`
	Name         string  `bson:"name,omitempty"`
	Price        float64 `bson:"price,omitempty"`
	Category     string  `bson:"category,omitempty"`
	CategoryName string  `bson:"categoryName,omitempty"`
	IsAvailable  *bool   `bson:"isAvailable,omitempty"`
	SoldOut      bool    `bson:"soldOut,omitempty"`
}

func (d catalogItemDoc) toDomain() catalog.Item {
	return catalog.Item{
		ID:           d.ItemID,
		Name:         d.Name,
		Price:        d.Price,
		Category:     d.Category,
		CategoryName: d.CategoryName,
		IsAvailable:  d.IsAvailable,
		SoldOut:      d.SoldOut,
	}
}

type pointOfSaleDoc struct {
	Path        string `bson:"_id"`
	EventID     string `bson:"eventId"`
	POSID       string `bson:"posId"`
	Name        string `bson:"name,omitempty"`
	Description string `bson:"description,omitempty"`
	Location    string `bson:"location,omitempty"`
}

func (d pointOfSaleDoc) toDomain() pos.PointOfSale {
	return pos.PointOfSale{
		ID:          d.POSID,
		Name:        d.Name,
		Description: d.Description,
		Location:    d.Location,
	}
}

type posItemDoc struct {
	Path                string   `bson:"_id"`
	EventID             string   `bson:"eventId"`
	POSID               string   `bson:"posId"`
	ItemID              string   `bson:"itemId"`
	Name                string   `bson:"name,omitempty"`
	Price               float64  `bson:"price,omitempty"`
	Count               int      `bson:"count,omitempty"`
	Category            string   `bson:"category,omitempty"`
	CategoryName        string   `bson:"categoryName,omitempty"`
	IsAvailable         *bool    `bson:"isAvailable,omitempty"`
	SoldOut             bool     `bson:"soldOut,omitempty"`
	SelectedExtras      []string `bson:"selectedExtras,omitempty"`
	ExcludedIngredients []string `bson:"excludedIngredients,omitempty"`
}

func (d posItemDoc) toDomain() pos.Item {
	return pos.Item{
		ID:                  d.ItemID,
		Name:                d.Name,
		Price:               d.Price,
		Count:               d.Count,
		Category:            d.Category,
		CategoryName:        d.CategoryName,
		IsAvailable:         d.IsAvailable,
		SoldOut:             d.SoldOut,
		SelectedExtras:      d.SelectedExtras,
		ExcludedIngredients: d.ExcludedIngredients,
	}
}

type posOrderDoc struct {
	Path                 string     `bson:"_id"`
	EventID              string     `bson:"eventId"`
	POSID                string     `bson:"posId"`
	OrderID              string     `bson:"id"`
	OrderStatus          string     `bson:"orderStatus"`
	OrderDate            time.Time  `bson:"orderDate,omitempty"`
	ServingPointName     string     `bson:"servingPointName,omitempty"`
	ServingPointLocation string     `bson:"servingPointLocation,omitempty"`
	Note                 string     `bson:"note,omitempty"`
	TabletNumber         *int       `bson:"tabletNumber,omitempty"`
	TransferredAt        *time.Time `bson:"transferredAt,omitempty"`
	TotalPrice           *float64   `bson:"totalPrice,omitempty"`
}

func (s *Store) posOrderDoc(eventID, posID string, o dispatch.Order) posOrderDoc {
	return posOrderDoc{
		Path:                 s.paths.POSOrder(eventID, posID, o.ID),
		EventID:              eventID,
		POSID:                posID,
		OrderID:              o.ID,
		OrderStatus:          string(o.Status),
		OrderDate:            o.OrderDate,
		ServingPointName:     o.ServingPointName,
		ServingPointLocation: o.ServingPointLocation,
		Note:                 o.Note,
		TabletNumber:         o.TabletNumber,
		TransferredAt:        o.TransferredAt,
		TotalPrice:           o.TotalPrice,
	}
}

func (d posOrderDoc) toDomain() dispatch.Order {
	return dispatch.Order{
		ID:                   d.OrderID,
		Status:               dispatch.OrderStatus(d.OrderStatus),
		OrderDate:            d.OrderDate,
		ServingPointName:     d.ServingPointName,
		ServingPointLocation: d.ServingPointLocation,
		Note:                 d.Note,
		TabletNumber:         d.TabletNumber,
		TransferredAt:        d.TransferredAt,
		TotalPrice:           d.TotalPrice,
	}
}

type posOrderItemDoc struct {
	Path                string   `bson:"_id"`
	EventID             string   `bson:"eventId"`
	POSID               string   `bson:"posId"`
	OrderID             string   `bson:"orderId"`
	Key                 string   `bson:"key"`
	ID                  string   `bson:"id,omitempty"`
	ItemID              string   `bson:"itemId,omitempty"`
	Name                string   `bson:"name,omitempty"`
	Price               float64  `bson:"price,omitempty"`
	Count               *int     `bson:"count,omitempty"`
	Quantity            *int     `bson:"quantity,omitempty"`
	Category            string   `bson:"category,omitempty"`
	CategoryName        string   `bson:"categoryName,omitempty"`
	SelectedExtras      []string `bson:"selectedExtras"`
	ExcludedIngredients []string `bson:"excludedIngredients"`
	Status              string   `bson:"status,omitempty"`
}

func (s *Store) posOrderItemDoc(eventID, posID, orderID string, it dispatch.Item) posOrderItemDoc {
	return posOrderItemDoc{
		Path:                s.paths.POSOrderItem(eventID, posID, orderID, it.Key),
		EventID:             eventID,
		POSID:               posID,
		OrderID:             orderID,
		Key:                 it.Key,
		ID:                  it.ID,
		ItemID:              it.ItemID,
		Name:                it.Name,
		Price:               it.Price,
		Count:               it.Count,
		Quantity:            it.Quantity,
		Category:            it.Category,
		CategoryName:        it.CategoryName,
		SelectedExtras:      it.SelectedExtras,
		ExcludedIngredients: it.ExcludedIngredients,
		Status:              it.Status,
	}
}

func (d posOrderItemDoc) toDomain() dispatch.Item {
	return dispatch.Item{
		Key:                 d.Key,
		ID:                  d.ID,
		ItemID:              d.ItemID,
		Name:                d.Name,
		Price:               d.Price,
		Count:               d.Count,
		Quantity:            d.Quantity,
		Category:            d.Category,
		CategoryName:        d.CategoryName,
		SelectedExtras:      d.SelectedExtras,
		ExcludedIngredients: d.ExcludedIngredients,
		Status:              d.Status,
	}
}

type purchaseDoc struct {
	Path               string     `bson:"_id"`
	EventID            string     `bson:"eventId"`
	PurchaseID         string     `bson:"purchaseId"`
	ServingPointID     string     `bson:"servingPointId,omitempty"`
	UserID             string     `bson:"userId,omitempty"`
	Note               string     `bson:"note,omitempty"`
	PaymentMethod      string     `bson:"paymentMethod,omitempty"`
	OrderPlaced        time.Time  `bson:"orderPlaced,omitempty"`
	IsPaid             bool       `bson:"isPaid"`
	Distributed        bool       `bson:"distributed,omitempty"`
	DistributedAt      *time.Time `bson:"distributedAt,omitempty"`
	DistributionError  string     `bson:"distributionError,omitempty"`
	DistributionFailed bool       `bson:"distributionFailed,omitempty"`
	TotalPrice         *float64   `bson:"totalPrice,omitempty"`
}

func (s *Store) purchaseDoc(eventID string, p purchase.Purchase) purchaseDoc {
	return purchaseDoc{
		Path:               s.paths.Purchase(eventID, p.ID),
		EventID:            eventID,
		PurchaseID:         p.ID,
		ServingPointID:     p.ServingPointID,
		UserID:             p.UserID,
		Note:               p.Note,
		PaymentMethod:      p.PaymentMethod,
		OrderPlaced:        p.OrderPlaced,
		IsPaid:             p.IsPaid,
		Distributed:        p.Distributed,
		DistributedAt:      p.DistributedAt,
		DistributionError:  p.DistributionError,
		DistributionFailed: p.DistributionFailed,
		TotalPrice:         p.TotalPrice,
	}
}

func (d purchaseDoc) toDomain() purchase.Purchase {
	return purchase.Purchase{
		ID:                 d.PurchaseID,
		ServingPointID:     d.ServingPointID,
		UserID:             d.UserID,
		Note:               d.Note,
		PaymentMethod:      d.PaymentMethod,
		OrderPlaced:        d.OrderPlaced,
		IsPaid:             d.IsPaid,
		Distributed:        d.Distributed,
		DistributedAt:      d.DistributedAt,
		DistributionError:  d.DistributionError,
		DistributionFailed: d.DistributionFailed,
		TotalPrice:         d.TotalPrice,
	}
}

type purchaseEntryDoc struct {
	Quantity            *float64 `bson:"quantity,omitempty"`
	SelectedExtras      []string `bson:"selectedExtras,omitempty"`
	ExcludedIngredients []string `bson:"excludedIngredients,omitempty"`
}

type purchaseItemDoc struct {
	Path                string             `bson:"_id"`
	EventID             string             `bson:"eventId"`
	PurchaseID          string             `bson:"purchaseId"`
	DocID               string             `bson:"docId"`
	ItemID              string             `bson:"itemId"`
	Quantity            *float64           `bson:"quantity,omitempty"`
	Count               *float64           `bson:"count,omitempty"`
	SelectedExtras      []string           `bson:"selectedExtras,omitempty"`
	ExcludedIngredients []string           `bson:"excludedIngredients,omitempty"`
	Entries             []purchaseEntryDoc `bson:"entries,omitempty"`
	Status              string             `bson:"status,omitempty"`
	Calculated          int                `bson:"__calculated,omitempty"`
	Name                string             `bson:"name,omitempty"`
	Price               float64            `bson:"price,omitempty"`
	Category            string             `bson:"category,omitempty"`
	CategoryName        string             `bson:"categoryName,omitempty"`
}

func (s *Store) purchaseItemDoc(eventID, purchaseID string, it purchase.Item) purchaseItemDoc {
	doc := purchaseItemDoc{
		Path:                s.paths.PurchaseItem(eventID, purchaseID, it.DocID),
		EventID:             eventID,
		PurchaseID:          purchaseID,
		DocID:               it.DocID,
		ItemID:              it.ItemID,
		Quantity:            it.Quantity,
		Count:               it.Count,
		SelectedExtras:      it.SelectedExtras,
		ExcludedIngredients: it.ExcludedIngredients,
		Status:              it.Status,
		Calculated:          it.Calculated,
		Name:                it.Name,
		Price:               it.Price,
		Category:            it.Category,
		CategoryName:        it.CategoryName,
	}
	for _, e := range it.Entries {
		doc.Entries = append(doc.Entries, purchaseEntryDoc{
			Quantity:            e.Quantity,
			SelectedExtras:      e.SelectedExtras,
			ExcludedIngredients: e.ExcludedIngredients,
		})
	}
	return doc
}

func (d purchaseItemDoc) toDomain() purchase.Item {
	it := purchase.Item{
		DocID:               d.DocID,
		ItemID:              d.ItemID,
		Quantity:            d.Quantity,
		Count:               d.Count,
		SelectedExtras:      d.SelectedExtras,
		ExcludedIngredients: d.ExcludedIngredients,
		Status:              d.Status,
		Calculated:          d.Calculated,
		Name:                d.Name,
		Price:               d.Price,
		Category:            d.Category,
		CategoryName:        d.CategoryName,
	}
	for _, e := range d.Entries {
		it.Entries = append(it.Entries, purchase.Entry{
			Quantity:            e.Quantity,
			SelectedExtras:      e.SelectedExtras,
			ExcludedIngredients: e.ExcludedIngredients,
		})
	}
	return it
}

type notificationDoc struct {
	Path           string    `bson:"_id"`
	EventID        string    `bson:"eventId"`
	NotificationID string    `bson:"notificationId"`
	Title          string    `bson:"title"`
	Message        string    `bson:"message"`
	PointOfService string    `bson:"pointOfService,omitempty"`
	Price          *float64  `bson:"price,omitempty"`
	ItemIDs        []string  `bson:"itemIds,omitempty"`
	OrderID        string    `bson:"orderId,omitempty"`
	PaymentMethod  string    `bson:"paymentMethod,omitempty"`
	Severity       string    `bson:"severity,omitempty"`
	Action         string    `bson:"action,omitempty"`
	Status         string    `bson:"status"`
	CreatedAt      time.Time `bson:"createdAt,omitempty"`
	UpdatedAt      time.Time `bson:"updatedAt,omitempty"`
}

func (s *Store) notificationDoc(eventID string, n notification.Notification) notificationDoc {
	return notificationDoc{
		Path:           s.paths.Notification(eventID, n.ID),
		EventID:        eventID,
		NotificationID: n.ID,
		Title:          n.Title,
		Message:        n.Message,
		PointOfService: n.PointOfService,
		Price:          n.Price,
		ItemIDs:        n.ItemIDs,
		OrderID:        n.OrderID,
		PaymentMethod:  n.PaymentMethod,
		Severity:       n.Severity,
		Action:         n.Action,
		Status:         string(n.Status),
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func (d notificationDoc) toDomain() notification.Notification {
	return notification.Notification{
		ID:             d.NotificationID,
		Title:          d.Title,
		Message:        d.Message,
		PointOfService: d.PointOfService,
		Price:          d.Price,
		ItemIDs:        d.ItemIDs,
		OrderID:        d.OrderID,
		PaymentMethod:  d.PaymentMethod,
		Severity:       d.Severity,
		Action:         d.Action,
		Status:         notification.Status(d.Status),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
