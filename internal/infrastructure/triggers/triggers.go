// Package triggers binds the application reactors to the change feed. Each
// binding casts the change to its concrete type, runs the reactor and counts
// the outcome; handler errors stay on the feed's log, there is no retry.
package triggers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/application/availability"
	"github.com/venuepos/dispatch/internal/application/distribution"
	"github.com/venuepos/dispatch/internal/application/notify"
	"github.com/venuepos/dispatch/internal/application/refund"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// Trigger names used as metric labels.
const (
	TriggerPurchaseWrite      = "purchase_write"
	TriggerPurchaseCreateCash = "purchase_create_cash"
	TriggerPOSItemUpdate      = "pos_item_update"
	TriggerNotificationUpdate = "notification_update"
	TriggerNotificationRelay  = "notification_relay"
)

// Relay forwards notification changes to an external side channel.
type Relay interface {
	OnNotificationChange(ctx context.Context, change store.NotificationChange) error
}

// Handlers carries the reactors to bind. Relay is optional.
type Handlers struct {
	Orchestrator *distribution.Orchestrator
	Reconciler   *availability.Reconciler
	Propagator   *refund.Propagator
	Notifier     *notify.Service
	Relay        Relay
	Metrics      *observability.Metrics
}

// Register subscribes every reactor on the feed. Call before the bus starts.
func Register(bus store.Subscriber, h Handlers) {
	bus.Subscribe(store.EventPurchaseWritten,
		bind(TriggerPurchaseWrite, h.Metrics, h.Orchestrator.OnPurchaseWrite))
	bus.Subscribe(store.EventPurchaseWritten,
		bind(TriggerPurchaseCreateCash, h.Metrics, h.Notifier.OnPurchaseCreate))
	bus.Subscribe(store.EventPOSItemUpdated,
		bind(TriggerPOSItemUpdate, h.Metrics, h.Reconciler.OnPOSItemUpdate))
	bus.Subscribe(store.EventNotificationUpdated,
		bind(TriggerNotificationUpdate, h.Metrics, h.Propagator.OnNotificationUpdate))
	if h.Relay != nil {
		bus.Subscribe(store.EventNotificationUpdated,
			bind(TriggerNotificationRelay, h.Metrics, h.Relay.OnNotificationChange))
	}
}

func bind[T store.Event](name string, m *observability.Metrics, fn func(context.Context, T) error) store.Handler {
	return func(ctx context.Context, e store.Event) error {
		change, ok := e.(T)
		if !ok {
			m.TriggerEvents.WithLabelValues(name, observability.OutcomeSkipped).Inc()
			return fmt.Errorf("triggers: %s cannot handle %T", name, e)
		}
		ctx = logging.With(ctx, zap.String("trigger", name))
		if err := fn(ctx, change); err != nil {
			m.TriggerEvents.WithLabelValues(name, observability.OutcomeError).Inc()
			return err
		}
		m.TriggerEvents.WithLabelValues(name, observability.OutcomeSuccess).Inc()
		return nil
	}
}
