// Package kafkarelay forwards notification changes from the change feed to a
// Kafka topic so external consumers (kitchen displays, payment terminals) see
// them without polling the document store. The relay is best-effort: a
// publish failure is logged and counted, never bubbled back into the trigger,
// so the store stays the source of truth.
package kafkarelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

const (
	publishAttempts = 3
	publishDelay    = 100 * time.Millisecond
)

// messageWriter is the slice of kafka.Writer the relay uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Relay publishes notification change envelopes to one Kafka topic.
type Relay struct {
	writer  messageWriter
	topic   string
	metrics *observability.Metrics
}

// New builds a relay writing to topic via the given brokers.
func New(brokers []string, topic string, metrics *observability.Metrics) *Relay {
	return &Relay{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic:   topic,
		metrics: metrics,
	}
}

// Close flushes and closes the underlying writer.
func (r *Relay) Close() error {
	return r.writer.Close()
}

// envelope is the wire shape of one relayed notification change.
type envelope struct {
	EventType      string     `json:"event_type"`
	Timestamp      time.Time  `json:"timestamp"`
	EventID        string     `json:"event_id"`
	NotificationID string     `json:"notification_id"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	PointOfService string     `json:"point_of_service,omitempty"`
	OrderID        string     `json:"order_id,omitempty"`
	ItemIDs        []string   `json:"item_ids,omitempty"`
	Price          *float64   `json:"price,omitempty"`
	PaymentMethod  string     `json:"payment_method,omitempty"`
	Severity       string     `json:"severity,omitempty"`
	Action         string     `json:"action,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// OnNotificationChange relays creates and updates. Deletes are dropped: the
// downstream consumers key on status transitions, not document lifetime.
func (r *Relay) OnNotificationChange(ctx context.Context, change store.NotificationChange) error {
	if change.After == nil {
		return nil
	}

	env := newEnvelope(change.EventID, change.NotificationID, string(change.Kind), *change.After)
	raw, err := json.Marshal(env)
	if err != nil {
		// Envelope fields are plain values; this only fires on a bug.
		logging.FromContext(ctx).Error("relay_envelope_unmarshalable",
			zap.String("notification_id", change.NotificationID), zap.Error(err))
		r.metrics.RelayMessages.WithLabelValues(observability.OutcomeError).Inc()
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(change.NotificationID),
		Value: raw,
		Time:  env.Timestamp,
	}
	err = retry.Do(
		func() error { return r.writer.WriteMessages(ctx, msg) },
		retry.Attempts(publishAttempts),
		retry.Delay(publishDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		logging.FromContext(ctx).Error("relay_publish_failed",
			zap.String("topic", r.topic),
			zap.String("notification_id", change.NotificationID),
			zap.String("kind", string(change.Kind)),
			zap.Error(err),
		)
		r.metrics.RelayMessages.WithLabelValues(observability.OutcomeError).Inc()
		return nil
	}

	r.metrics.RelayMessages.WithLabelValues(observability.OutcomeSuccess).Inc()
	return nil
}

func newEnvelope(eventID, notificationID, kind string, n notification.Notification) envelope {
	env := envelope{
		EventType:      fmt.Sprintf("notification.%s", kind),
		Timestamp:      time.Now().UTC(),
		EventID:        eventID,
		NotificationID: notificationID,
		Title:          n.Title,
		Message:        n.Message,
		PointOfService: n.PointOfService,
		OrderID:        n.OrderID,
		ItemIDs:        n.ItemIDs,
		Price:          n.Price,
		PaymentMethod:  n.PaymentMethod,
		Severity:       n.Severity,
		Action:         n.Action,
		Status:         string(n.Status),
		CreatedAt:      n.CreatedAt,
	}
	if !n.UpdatedAt.IsZero() {
		t := n.UpdatedAt
		env.UpdatedAt = &t
	}
	return env
}
