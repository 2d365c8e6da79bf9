package kafkarelay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/store"
)

type fakeWriter struct {
	msgs     []kafka.Message
	failures int
	calls    int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func newRelay(w messageWriter) *Relay {
	return &Relay{writer: w, topic: "dispatch-notifications", metrics: observability.NewTestMetrics()}
}

func refundChange() store.NotificationChange {
	return store.NotificationChange{
		EventID:        "ev",
		NotificationID: "n-1",
		Kind:           store.ChangeCreate,
		After: &notification.Notification{
			ID:        "n-1",
			Title:     "Artikel ist/sind ausverkauft",
			Message:   "Unten stehenden Betrag erstatten und bestätigen",
			OrderID:   "o-1",
			ItemIDs:   []string{"x"},
			Price:     notification.Float(19),
			Severity:  notification.SeverityError,
			Action:    notification.ActionRefund,
			Status:    notification.StatusCreated,
			CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestRelayPublishesNotificationChanges(t *testing.T) {
	w := &fakeWriter{}
	r := newRelay(w)

	err := r.OnNotificationChange(context.Background(), refundChange())
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "n-1", string(msg.Key))

	var env map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "notification.create", env["event_type"])
	assert.Equal(t, "ev", env["event_id"])
	assert.Equal(t, "n-1", env["notification_id"])
	assert.Equal(t, "Artikel ist/sind ausverkauft", env["title"])
	assert.Equal(t, "o-1", env["order_id"])
	assert.Equal(t, []any{"x"}, env["item_ids"])
	assert.Equal(t, 19.0, env["price"])
	assert.Equal(t, "refund", env["action"])
	assert.Equal(t, "created", env["status"])
	assert.NotEmpty(t, env["timestamp"])
}

func TestRelaySkipsDeletes(t *testing.T) {
	w := &fakeWriter{}
	r := newRelay(w)

	change := refundChange()
	change.Kind = store.ChangeDelete
	change.After = nil

	require.NoError(t, r.OnNotificationChange(context.Background(), change))
	assert.Zero(t, w.calls)
}

func TestRelayRetriesThenDelivers(t *testing.T) {
	w := &fakeWriter{failures: 1}
	r := newRelay(w)

	require.NoError(t, r.OnNotificationChange(context.Background(), refundChange()))
	assert.Equal(t, 2, w.calls)
	assert.Len(t, w.msgs, 1)
}

func TestRelayNeverFailsTheTrigger(t *testing.T) {
	w := &fakeWriter{failures: publishAttempts}
	r := newRelay(w)

	err := r.OnNotificationChange(context.Background(), refundChange())
	require.NoError(t, err)
	assert.Equal(t, publishAttempts, w.calls)
	assert.Empty(t, w.msgs)
}
