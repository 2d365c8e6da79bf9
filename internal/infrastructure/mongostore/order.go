package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/store"
)

// CountOpenOrders implements store.Gateway.
func (s *Store) CountOpenOrders(ctx context.Context, eventID, posID string) (n int, err error) {
	defer func() { s.observe("count_open_orders", err) }()

	count, err := s.collection(collPOSOrders).CountDocuments(ctx, bson.M{
		"eventId":     eventID,
		"posId":       posID,
		"orderStatus": string(dispatch.OrderOpen),
	})
	if err != nil {
		return 0, fmt.Errorf("mongostore: count open orders of %s: %w", posID, translate(err))
	}
	return int(count), nil
}

// ListOpenOrders implements store.Gateway.
func (s *Store) ListOpenOrders(ctx context.Context, eventID, posID string) (out []dispatch.Order, err error) {
	defer func() { s.observe("list_open_orders", err) }()

	cursor, err := s.collection(collPOSOrders).Find(ctx, bson.M{
		"eventId":     eventID,
		"posId":       posID,
		"orderStatus": string(dispatch.OrderOpen),
	}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: list open orders of %s: %w", posID, translate(err))
	}
	var docs []posOrderDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list open orders of %s: %w", posID, translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// GetOrder implements store.Gateway.
func (s *Store) GetOrder(ctx context.Context, eventID, posID, orderID string) (o dispatch.Order, err error) {
	defer func() { s.observe("get_order", err) }()

	var doc posOrderDoc
	err = s.collection(collPOSOrders).FindOne(ctx, byID(s.paths.POSOrder(eventID, posID, orderID))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return dispatch.Order{}, dispatch.ErrNotFound
	}
	if err != nil {
		return dispatch.Order{}, fmt.Errorf("mongostore: get order %s: %w", orderID, translate(err))
	}
	return doc.toDomain(), nil
}

// WriteDistributedOrders implements store.Gateway. Every bucket's order
// document and line items commit in one transaction; orderDate gets the
// server timestamp.
func (s *Store) WriteDistributedOrders(ctx context.Context, eventID string, orders []store.DistributedOrder) (err error) {
	defer func() { s.observe("write_distributed_orders", err) }()

	if len(orders) == 0 {
		return nil
	}
	now := s.clock()
	orderModels := make([]mongo.WriteModel, 0, len(orders))
	var itemModels []mongo.WriteModel
	for _, b := range orders {
		if b.POSID == "" || b.Order.ID == "" {
			return fmt.Errorf("mongostore: distributed order needs pos and order ids")
		}
		doc := s.posOrderDoc(eventID, b.POSID, b.Order)
		doc.OrderDate = now
		orderModels = append(orderModels, mongo.NewReplaceOneModel().
			SetFilter(byID(doc.Path)).SetReplacement(doc).SetUpsert(true))
		for _, it := range b.Items {
			itemDoc := s.posOrderItemDoc(eventID, b.POSID, b.Order.ID, it)
			itemModels = append(itemModels, mongo.NewReplaceOneModel().
				SetFilter(byID(itemDoc.Path)).SetReplacement(itemDoc).SetUpsert(true))
		}
	}

	err = s.inTxn(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.collection(collPOSOrders).BulkWrite(sc, orderModels); err != nil {
			return err
		}
		if len(itemModels) == 0 {
			return nil
		}
		_, err := s.collection(collPOSOrderItems).BulkWrite(sc, itemModels)
		return err
	})
	if err != nil {
		return fmt.Errorf("mongostore: write distributed orders: %w", err)
	}
	return nil
}

// UpsertOrder implements store.Gateway. Existing line items are untouched.
func (s *Store) UpsertOrder(ctx context.Context, eventID, posID string, o dispatch.Order) (err error) {
	defer func() { s.observe("upsert_order", err) }()

	if o.ID == "" {
		return fmt.Errorf("mongostore: order id is required")
	}
	doc := s.posOrderDoc(eventID, posID, o)
	_, err = s.collection(collPOSOrders).ReplaceOne(ctx,
		byID(doc.Path), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: upsert order %s: %w", o.ID, translate(err))
	}
	return nil
}

// MergeOrder implements store.Gateway.
func (s *Store) MergeOrder(ctx context.Context, eventID, posID, orderID string, m store.OrderMerge) (err error) {
	defer func() { s.observe("merge_order", err) }()

	set := bson.M{}
	unset := bson.M{}
	if m.Status != nil {
		set["orderStatus"] = string(*m.Status)
	}
	if m.ClearTransferredAt {
		unset["transferredAt"] = ""
	}
	if m.TransferredAtServerTime {
		delete(unset, "transferredAt")
		set["transferredAt"] = s.clock()
	}
	if m.TotalPrice != nil {
		set["totalPrice"] = *m.TotalPrice
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	res, err := s.collection(collPOSOrders).UpdateOne(ctx,
		byID(s.paths.POSOrder(eventID, posID, orderID)), update)
	if err != nil {
		return fmt.Errorf("mongostore: merge order %s: %w", orderID, translate(err))
	}
	if res.MatchedCount == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

// ListOrderItems implements store.Gateway. An absent order reads as an
// empty collection.
func (s *Store) ListOrderItems(ctx context.Context, eventID, posID, orderID string) (out []dispatch.Item, err error) {
	defer func() { s.observe("list_order_items", err) }()

	cursor, err := s.collection(collPOSOrderItems).Find(ctx, bson.M{
		"eventId": eventID,
		"posId":   posID,
		"orderId": orderID,
	}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: list items of order %s: %w", orderID, translate(err))
	}
	var docs []posOrderItemDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list items of order %s: %w", orderID, translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// ListOrderItemsByItemIDs implements store.Gateway. The filter matches the
// effective item id: itemId when set, the raw id for legacy documents
// written without one.
func (s *Store) ListOrderItemsByItemIDs(ctx context.Context, eventID, posID, orderID string, itemIDs []string) (out []dispatch.Item, err error) {
	defer func() { s.observe("list_order_items_by_ids", err) }()

	if len(itemIDs) > store.InQueryLimit {
		return nil, fmt.Errorf("mongostore: %d ids exceed the membership query cap: %w", len(itemIDs), store.ErrPermanent)
	}

	cursor, err := s.collection(collPOSOrderItems).Find(ctx, bson.M{
		"eventId": eventID,
		"posId":   posID,
		"orderId": orderID,
		"$or": bson.A{
			bson.M{"itemId": bson.M{"$in": itemIDs}},
			bson.M{"itemId": bson.M{"$in": bson.A{nil, ""}}, "id": bson.M{"$in": itemIDs}},
		},
	}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: query items of order %s: %w", orderID, translate(err))
	}
	var docs []posOrderItemDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: query items of order %s: %w", orderID, translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// MergeOrderItemStatus implements store.Gateway.
func (s *Store) MergeOrderItemStatus(ctx context.Context, eventID, posID, orderID, key, status string) (err error) {
	defer func() { s.observe("merge_order_item_status", err) }()

	res, err := s.collection(collPOSOrderItems).UpdateOne(ctx,
		byID(s.paths.POSOrderItem(eventID, posID, orderID, key)),
		bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("mongostore: merge status of item %s: %w", key, translate(err))
	}
	if res.MatchedCount == 0 {
		return dispatch.ErrItemNotFound
	}
	return nil
}

// CancelOrderItem implements store.Gateway.
func (s *Store) CancelOrderItem(ctx context.Context, eventID, posID, orderID, key string) (err error) {
	defer func() { s.observe("cancel_order_item", err) }()

	res, err := s.collection(collPOSOrderItems).UpdateOne(ctx,
		byID(s.paths.POSOrderItem(eventID, posID, orderID, key)),
		bson.M{"$set": bson.M{"status": dispatch.ItemCanceled, "quantity": 0}})
	if err != nil {
		return fmt.Errorf("mongostore: cancel item %s: %w", key, translate(err))
	}
	if res.MatchedCount == 0 {
		return dispatch.ErrItemNotFound
	}
	return nil
}

// RunOrderItemTxn implements store.Gateway. fn runs inside one MongoDB
// transaction and may be retried by the driver on transient errors.
func (s *Store) RunOrderItemTxn(ctx context.Context, fn func(ctx context.Context, tx store.Txn) error) (err error) {
	defer func() { s.observe("order_item_txn", err) }()

	return s.inTxn(ctx, func(sc mongo.SessionContext) error {
		return fn(sc, &mongoTxn{s: s, sc: sc})
	})
}

// mongoTxn routes line-item reads and writes through the session context of
// one open transaction.
type mongoTxn struct {
	s  *Store
	sc mongo.SessionContext
}

func (t *mongoTxn) GetOrderItem(ctx context.Context, eventID, posID, orderID, key string) (dispatch.Item, error) {
	_ = ctx
	var doc posOrderItemDoc
	err := t.s.collection(collPOSOrderItems).FindOne(t.sc,
		byID(t.s.paths.POSOrderItem(eventID, posID, orderID, key))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return dispatch.Item{}, dispatch.ErrItemNotFound
	}
	if err != nil {
		return dispatch.Item{}, fmt.Errorf("mongostore: txn get item %s: %w", key, err)
	}
	return doc.toDomain(), nil
}

func (t *mongoTxn) SetOrderItem(ctx context.Context, eventID, posID, orderID, key string, item dispatch.Item) error {
	_ = ctx
	item.Key = key
	doc := t.s.posOrderItemDoc(eventID, posID, orderID, item)
	_, err := t.s.collection(collPOSOrderItems).ReplaceOne(t.sc,
		byID(doc.Path), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: txn set item %s: %w", key, err)
	}
	return nil
}

func (t *mongoTxn) DeleteOrderItem(ctx context.Context, eventID, posID, orderID, key string) error {
	_ = ctx
	_, err := t.s.collection(collPOSOrderItems).DeleteOne(t.sc,
		byID(t.s.paths.POSOrderItem(eventID, posID, orderID, key)))
	if err != nil {
		return fmt.Errorf("mongostore: txn delete item %s: %w", key, err)
	}
	return nil
}
