package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/event"
)

// GetEvent implements store.Gateway. Event documents change rarely and are
// read on every distribution, so hits are served from the statics cache.
func (s *Store) GetEvent(ctx context.Context, eventID string) (ev event.Event, err error) {
	defer func() { s.observe("get_event", err) }()

	path := s.paths.Event(eventID)
	if cached, ok := s.cachedEvent(path); ok {
		return cached, nil
	}

	var doc eventDoc
	err = s.collection(collEvents).FindOne(ctx, byID(path)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return event.Event{}, event.ErrNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("mongostore: get event %s: %w", eventID, translate(err))
	}

	ev = doc.toDomain()
	if s.statics != nil {
		s.statics.Set(path, ev, cache.DefaultExpiration)
	}
	return ev, nil
}

func (s *Store) cachedEvent(path string) (event.Event, bool) {
	if s.statics == nil {
		return event.Event{}, false
	}
	v, ok := s.statics.Get(path)
	if !ok {
		return event.Event{}, false
	}
	ev, ok := v.(event.Event)
	return ev, ok
}

// GetServingPoint implements store.Gateway, cached like GetEvent.
func (s *Store) GetServingPoint(ctx context.Context, eventID, servingPointID string) (sp event.ServingPoint, err error) {
	defer func() { s.observe("get_serving_point", err) }()

	path := s.paths.ServingPoint(eventID, servingPointID)
	if s.statics != nil {
		if v, ok := s.statics.Get(path); ok {
			if cached, ok := v.(event.ServingPoint); ok {
				return cached, nil
			}
		}
	}

	var doc servingPointDoc
	err = s.collection(collServingPoints).FindOne(ctx, byID(path)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return event.ServingPoint{}, event.ErrNotFound
	}
	if err != nil {
		return event.ServingPoint{}, fmt.Errorf("mongostore: get serving point %s: %w", servingPointID, translate(err))
	}

	sp = doc.toDomain()
	if s.statics != nil {
		s.statics.Set(path, sp, cache.DefaultExpiration)
	}
	return sp, nil
}

// GetCanonicalItem implements store.Gateway. Never cached: the reconciler
// owns the availability flag and needs fresh reads.
func (s *Store) GetCanonicalItem(ctx context.Context, eventID, itemID string) (it catalog.Item, err error) {
	defer func() { s.observe("get_canonical_item", err) }()

	var doc catalogItemDoc
	err = s.collection(collCatalogItems).FindOne(ctx, byID(s.paths.CanonicalItem(eventID, itemID))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return catalog.Item{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Item{}, fmt.Errorf("mongostore: get canonical item %s: %w", itemID, translate(err))
	}
	return doc.toDomain(), nil
}

// SetCanonicalItemAvailability implements store.Gateway. The merge upserts
// so a missing canonical document is created rather than failing the
// reconciler.
func (s *Store) SetCanonicalItemAvailability(ctx context.Context, eventID, itemID string, available bool) (err error) {
	defer func() { s.observe("set_canonical_item_availability", err) }()

	path := s.paths.CanonicalItem(eventID, itemID)
	_, err = s.collection(collCatalogItems).UpdateOne(ctx,
		byID(path),
		bson.M{
			"$set":         bson.M{"isAvailable": available},
			"$setOnInsert": bson.M{"eventId": eventID, "itemId": itemID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: set availability of %s: %w", itemID, translate(err))
	}
	return nil
}
