package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/store"
)

// CreatePurchase implements store.Gateway. The purchase document and its
// item sub-collection commit in one transaction; a duplicate purchase id
// aborts with ErrConflict.
func (s *Store) CreatePurchase(ctx context.Context, eventID string, p purchase.Purchase, items []purchase.Item) (err error) {
	defer func() { s.observe("create_purchase", err) }()

	if p.ID == "" {
		return fmt.Errorf("mongostore: purchase id is required")
	}
	doc := s.purchaseDoc(eventID, p)
	if doc.OrderPlaced.IsZero() {
		doc.OrderPlaced = s.clock()
	}
	itemDocs := make([]interface{}, 0, len(items))
	for _, it := range items {
		itemDocs = append(itemDocs, s.purchaseItemDoc(eventID, p.ID, it))
	}

	err = s.inTxn(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.collection(collPurchases).InsertOne(sc, doc); err != nil {
			return err
		}
		if len(itemDocs) == 0 {
			return nil
		}
		_, err := s.collection(collPurchaseItems).InsertMany(sc, itemDocs)
		return err
	})
	if err != nil {
		return fmt.Errorf("mongostore: create purchase %s: %w", p.ID, err)
	}
	return nil
}

// GetPurchase implements store.Gateway.
func (s *Store) GetPurchase(ctx context.Context, eventID, purchaseID string) (p purchase.Purchase, err error) {
	defer func() { s.observe("get_purchase", err) }()

	var doc purchaseDoc
	err = s.collection(collPurchases).FindOne(ctx, byID(s.paths.Purchase(eventID, purchaseID))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return purchase.Purchase{}, purchase.ErrNotFound
	}
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("mongostore: get purchase %s: %w", purchaseID, translate(err))
	}
	return doc.toDomain(), nil
}

// MergePurchase implements store.Gateway.
func (s *Store) MergePurchase(ctx context.Context, eventID, purchaseID string, m store.PurchaseMerge) (err error) {
	defer func() { s.observe("merge_purchase", err) }()

	set := bson.M{}
	if m.IsPaid != nil {
		set["isPaid"] = *m.IsPaid
	}
	if m.Distributed != nil {
		set["distributed"] = *m.Distributed
	}
	if m.DistributedAtServerTime {
		set["distributedAt"] = s.clock()
	}
	if m.DistributionError != nil {
		set["distributionError"] = *m.DistributionError
	}
	if m.DistributionFailed != nil {
		set["distributionFailed"] = *m.DistributionFailed
	}
	if m.TotalPrice != nil {
		set["totalPrice"] = *m.TotalPrice
	}
	if len(set) == 0 {
		return nil
	}

	res, err := s.collection(collPurchases).UpdateOne(ctx,
		byID(s.paths.Purchase(eventID, purchaseID)), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongostore: merge purchase %s: %w", purchaseID, translate(err))
	}
	if res.MatchedCount == 0 {
		return purchase.ErrNotFound
	}
	return nil
}

// ListPurchaseItems implements store.Gateway. The purchase document must
// exist; its item collection may legitimately be empty.
func (s *Store) ListPurchaseItems(ctx context.Context, eventID, purchaseID string) (out []purchase.Item, err error) {
	defer func() { s.observe("list_purchase_items", err) }()

	if err = s.purchaseExists(ctx, eventID, purchaseID); err != nil {
		return nil, err
	}
	cursor, err := s.collection(collPurchaseItems).Find(ctx,
		bson.M{"eventId": eventID, "purchaseId": purchaseID}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: list items of purchase %s: %w", purchaseID, translate(err))
	}
	var docs []purchaseItemDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list items of purchase %s: %w", purchaseID, translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// ListPurchaseItemsByItemIDs implements store.Gateway.
func (s *Store) ListPurchaseItemsByItemIDs(ctx context.Context, eventID, purchaseID string, itemIDs []string) (out []purchase.Item, err error) {
	defer func() { s.observe("list_purchase_items_by_ids", err) }()

	if len(itemIDs) > store.InQueryLimit {
		return nil, fmt.Errorf("mongostore: %d ids exceed the membership query cap: %w", len(itemIDs), store.ErrPermanent)
	}
	if err = s.purchaseExists(ctx, eventID, purchaseID); err != nil {
		return nil, err
	}

	cursor, err := s.collection(collPurchaseItems).Find(ctx, bson.M{
		"eventId":    eventID,
		"purchaseId": purchaseID,
		"itemId":     bson.M{"$in": itemIDs},
	}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: query items of purchase %s: %w", purchaseID, translate(err))
	}
	var docs []purchaseItemDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: query items of purchase %s: %w", purchaseID, translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// CancelPurchaseItem implements store.Gateway.
func (s *Store) CancelPurchaseItem(ctx context.Context, eventID, purchaseID, docID string) (err error) {
	defer func() { s.observe("cancel_purchase_item", err) }()

	res, err := s.collection(collPurchaseItems).UpdateOne(ctx,
		byID(s.paths.PurchaseItem(eventID, purchaseID, docID)),
		bson.M{"$set": bson.M{"status": purchase.ItemStatusCanceled, "quantity": float64(0)}})
	if err != nil {
		return fmt.Errorf("mongostore: cancel item %s of purchase %s: %w", docID, purchaseID, translate(err))
	}
	if res.MatchedCount == 0 {
		return purchase.ErrNotFound
	}
	return nil
}

func (s *Store) purchaseExists(ctx context.Context, eventID, purchaseID string) error {
	err := s.collection(collPurchases).FindOne(ctx,
		byID(s.paths.Purchase(eventID, purchaseID))).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return purchase.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mongostore: check purchase %s: %w", purchaseID, translate(err))
	}
	return nil
}
