package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/store"
)

// FindActiveNotification implements store.Gateway. Limit-1 query in
// document-id order over the still-active statuses.
func (s *Store) FindActiveNotification(ctx context.Context, eventID, orderID, action string) (n notification.Notification, err error) {
	defer func() { s.observe("find_active_notification", err) }()

	var doc notificationDoc
	err = s.collection(collNotifications).FindOne(ctx, bson.M{
		"eventId": eventID,
		"orderId": orderID,
		"action":  action,
		"status": bson.M{"$in": bson.A{
			string(notification.StatusCreated),
			string(notification.StatusInProgress),
		}},
	}, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notification.Notification{}, notification.ErrNotFound
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("mongostore: find notification for order %s: %w", orderID, translate(err))
	}
	return doc.toDomain(), nil
}

// InsertNotification implements store.Gateway. Creation and update stamps
// get the server timestamp; an already-taken id reports ErrConflict.
func (s *Store) InsertNotification(ctx context.Context, eventID string, n notification.Notification) (err error) {
	defer func() { s.observe("insert_notification", err) }()

	if n.ID == "" {
		return fmt.Errorf("mongostore: notification id is required")
	}
	doc := s.notificationDoc(eventID, n)
	now := s.clock()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err = s.collection(collNotifications).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongostore: insert notification %s: %w", n.ID, translate(err))
	}
	return nil
}

// UpdateNotification implements store.Gateway. The payload replaces the
// document except for the stored creation time.
func (s *Store) UpdateNotification(ctx context.Context, eventID string, n notification.Notification) (err error) {
	defer func() { s.observe("update_notification", err) }()

	set := bson.M{
		"title":     n.Title,
		"message":   n.Message,
		"orderId":   n.OrderID,
		"status":    string(n.Status),
		"updatedAt": s.clock(),
	}
	unset := bson.M{}
	setOrUnset := func(field string, value interface{}, empty bool) {
		if empty {
			unset[field] = ""
			return
		}
		set[field] = value
	}
	setOrUnset("pointOfService", n.PointOfService, n.PointOfService == "")
	setOrUnset("paymentMethod", n.PaymentMethod, n.PaymentMethod == "")
	setOrUnset("severity", n.Severity, n.Severity == "")
	setOrUnset("action", n.Action, n.Action == "")
	setOrUnset("itemIds", n.ItemIDs, len(n.ItemIDs) == 0)
	if n.Price != nil {
		set["price"] = *n.Price
	} else {
		unset["price"] = ""
	}

	res, err := s.collection(collNotifications).UpdateOne(ctx,
		byID(s.paths.Notification(eventID, n.ID)),
		bson.M{"$set": set, "$unset": unset})
	if err != nil {
		return fmt.Errorf("mongostore: update notification %s: %w", n.ID, translate(err))
	}
	if res.MatchedCount == 0 {
		return notification.ErrNotFound
	}
	return nil
}

var _ store.Gateway = (*Store)(nil)
