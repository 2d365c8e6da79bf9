package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/venuepos/dispatch/internal/domain/pos"
)

// ListPointsOfSale implements store.Gateway. Documents come back in
// ascending path order, which within one event is ascending document-id
// order.
func (s *Store) ListPointsOfSale(ctx context.Context, eventID string) (out []pos.PointOfSale, err error) {
	defer func() { s.observe("list_points_of_sale", err) }()

	cursor, err := s.collection(collPointsOfSale).Find(ctx, bson.M{"eventId": eventID}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: list points of sale: %w", translate(err))
	}
	var docs []pointOfSaleDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list points of sale: %w", translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// ListPOSItems implements store.Gateway.
func (s *Store) ListPOSItems(ctx context.Context, eventID, posID string) (out []pos.Item, err error) {
	defer func() { s.observe("list_pos_items", err) }()

	cursor, err := s.collection(collPOSItems).Find(ctx,
		bson.M{"eventId": eventID, "posId": posID}, ascending())
	if err != nil {
		return nil, fmt.Errorf("mongostore: list items of pos %s: %w", posID, translate(err))
	}
	var docs []posItemDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list items of pos %s: %w", posID, translate(err))
	}
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// GetPOSItem implements store.Gateway.
func (s *Store) GetPOSItem(ctx context.Context, eventID, posID, itemID string) (it pos.Item, err error) {
	defer func() { s.observe("get_pos_item", err) }()

	var doc posItemDoc
	err = s.collection(collPOSItems).FindOne(ctx, byID(s.paths.POSItem(eventID, posID, itemID))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return pos.Item{}, pos.ErrItemNotFound
	}
	if err != nil {
		return pos.Item{}, fmt.Errorf("mongostore: get item %s of pos %s: %w", itemID, posID, translate(err))
	}
	return doc.toDomain(), nil
}
