package notify

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/notification"
)

// Store is the slice of the document store the notification service needs.
type Store interface {
	FindActiveNotification(ctx context.Context, eventID, orderID, action string) (notification.Notification, error)
	InsertNotification(ctx context.Context, eventID string, n notification.Notification) error
	UpdateNotification(ctx context.Context, eventID string, n notification.Notification) error
}

// IDGenerator mints ids for appended notification documents.
type IDGenerator interface {
	NewID() string
}
