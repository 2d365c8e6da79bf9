package memstore

import (
	"context"
	"fmt"

	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/store"
)

// FindActiveNotification implements store.Gateway. Matches scan in
// document-id order and the first hit wins, mirroring a limit-1 query.
func (s *Store) FindActiveNotification(ctx context.Context, eventID, orderID, action string) (notification.Notification, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.events[eventID]
	if !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	for _, id := range sortedKeys(st.notifications) {
		n := st.notifications[id]
		if n.OrderID == orderID && n.Action == action && n.Active() {
			return n.Clone(), nil
		}
	}
	return notification.Notification{}, notification.ErrNotFound
}

// InsertNotification implements store.Gateway.
func (s *Store) InsertNotification(ctx context.Context, eventID string, n notification.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("memstore: notification id is required")
	}

	s.mu.Lock()
	st := s.eventState(eventID)
	if _, exists := st.notifications[n.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("memstore: notification %s: %w", n.ID, store.ErrConflict)
	}
	clone := n.Clone()
	now := s.clock()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	st.notifications[n.ID] = &clone
	after := clone.Clone()
	s.mu.Unlock()

	s.publish(ctx, store.NotificationChange{
		EventID:        eventID,
		NotificationID: n.ID,
		Kind:           store.ChangeCreate,
		After:          &after,
	})
	return nil
}

// UpdateNotification implements store.Gateway. The stored creation time is
// kept; the payload replaces the rest of the document.
func (s *Store) UpdateNotification(ctx context.Context, eventID string, n notification.Notification) error {
	s.mu.Lock()
	st, ok := s.events[eventID]
	if !ok {
		s.mu.Unlock()
		return notification.ErrNotFound
	}
	existing, ok := st.notifications[n.ID]
	if !ok {
		s.mu.Unlock()
		return notification.ErrNotFound
	}

	before := existing.Clone()
	clone := n.Clone()
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = s.clock()
	st.notifications[n.ID] = &clone
	after := clone.Clone()
	s.mu.Unlock()

	s.publish(ctx, store.NotificationChange{
		EventID:        eventID,
		NotificationID: n.ID,
		Kind:           store.ChangeUpdate,
		Before:         &before,
		After:          &after,
	})
	return nil
}

// SetNotificationStatus flips one notification's status and emits the
// change the refund trigger listens on. This is the write path of the
// staff application confirming a refund.
func (s *Store) SetNotificationStatus(ctx context.Context, eventID, notificationID string, status notification.Status) error {
	s.mu.Lock()
	st, ok := s.events[eventID]
	if !ok {
		s.mu.Unlock()
		return notification.ErrNotFound
	}
	n, ok := st.notifications[notificationID]
	if !ok {
		s.mu.Unlock()
		return notification.ErrNotFound
	}

	before := n.Clone()
	n.Status = status
	n.UpdatedAt = s.clock()
	after := n.Clone()
	s.mu.Unlock()

	s.publish(ctx, store.NotificationChange{
		EventID:        eventID,
		NotificationID: notificationID,
		Kind:           store.ChangeUpdate,
		Before:         &before,
		After:          &after,
	})
	return nil
}
