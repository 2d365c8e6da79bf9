// Package notify writes staff-facing notification documents. Emissions tied
// to an order are deduplicated: as long as a notification for the same
// (orderId, action) pair is still in a non-terminal status, a new emission
// updates it in place instead of inserting a second one.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// Texts of the cash-payment notification.
const (
	cashTitle   = "Barzahlung ausstehend"
	cashMessage = "Bestellung in bar zu kassieren und zu bestätigen"
)

type Service struct {
	store Store
	ids   IDGenerator
}

func NewService(st Store, ids IDGenerator) *Service {
	return &Service{store: st, ids: ids}
}

// CreateNotification validates the payload and writes it, reusing the active
// document for the payload's (orderId, action) slot when one exists. It
// returns the id of the written document.
func (s *Service) CreateNotification(ctx context.Context, eventID string, n notification.Notification) (string, error) {
	if eventID == "" || n.Title == "" || n.Message == "" {
		return "", notification.ErrInvalid
	}

	logger := logging.FromContext(ctx).With(
		zap.String("component", "notify"),
		zap.String("event_id", eventID),
		zap.String("action", n.Action),
	)

	if n.OrderID != "" {
		existing, err := s.store.FindActiveNotification(ctx, eventID, n.OrderID, n.Action)
		switch {
		case err == nil:
			n.ID = existing.ID
			if err := s.store.UpdateNotification(ctx, eventID, n); err != nil {
				return "", fmt.Errorf("notify: update %s: %w", existing.ID, err)
			}
			logger.Info("notification_updated",
				zap.String("notification_id", existing.ID),
				zap.String("order_id", n.OrderID),
			)
			return existing.ID, nil
		case !errors.Is(err, notification.ErrNotFound):
			return "", fmt.Errorf("notify: find active: %w", err)
		}
	}

	n.ID = s.ids.NewID()
	if err := s.store.InsertNotification(ctx, eventID, n); err != nil {
		return "", fmt.Errorf("notify: insert: %w", err)
	}
	logger.Info("notification_created",
		zap.String("notification_id", n.ID),
		zap.String("order_id", n.OrderID),
	)
	return n.ID, nil
}

// OnPurchaseCreate is the cash-payment side channel: a purchase created with
// an outstanding cash payment puts a notification in front of the staff.
func (s *Service) OnPurchaseCreate(ctx context.Context, change store.PurchaseChange) error {
	if change.Kind != store.ChangeCreate || change.After == nil {
		return nil
	}
	p := change.After
	if p.PaymentMethod != purchase.PaymentCash || p.IsPaid {
		return nil
	}

	_, err := s.CreateNotification(ctx, change.EventID, notification.Notification{
		Title:         cashTitle,
		Message:       cashMessage,
		OrderID:       p.ID,
		PaymentMethod: purchase.PaymentCash,
		Price:         p.TotalPrice,
		Severity:      notification.SeverityInfo,
		Action:        notification.ActionCashPayment,
		Status:        notification.StatusCreated,
	})
	if err != nil {
		return fmt.Errorf("notify: cash payment for %s: %w", p.ID, err)
	}
	return nil
}
