// Package feed is the in-process change-feed bus. Gateway implementations
// publish committed document changes; trigger handlers subscribe by event
// name. Delivery is at-least-once from the engine's point of view: handlers
// own their idempotence.
package feed

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

// ErrStopped is returned by Publish after the bus shut down.
var ErrStopped = errors.New("feed: bus stopped")

const (
	queueSize      = 1024
	handlerFanout  = 8
	handlerTimeout = 30 * time.Second
)

// Bus fans committed store changes out to subscribed handlers. Handlers for
// one change run concurrently; changes are consumed in publish order.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]store.Handler
	queue     chan store.Event
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	log       *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:  make(map[string][]store.Handler),
		queue: make(chan store.Event, queueSize),
		done:  make(chan struct{}),
		log:   logger.With(zap.String("component", "feed")),
	}
}

// Subscribe registers h for changes named eventName. Not safe to call after
// Start from multiple goroutines racing delivery; wire subscriptions first.
func (b *Bus) Subscribe(eventName string, h store.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		b.log.Info("feed_started")
	})
}

// Stop drains nothing: queued changes not yet dispatched are dropped, the
// way an interrupted trigger transport would redeliver them on restart.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()

		if b.cancel != nil {
			b.cancel()
		}
		select {
		case <-b.done:
		case <-ctx.Done():
		}
		b.log.Info("feed_stopped")
	})
}

// Publish implements store.Publisher.
func (b *Bus) Publish(ctx context.Context, e store.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		b.log.Warn("feed_enqueue_aborted",
			zap.String("event", e.EventName()),
			zap.Error(ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.fanout(ctx, e)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e store.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]store.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("feed_change_unhandled", zap.String("event", name))
		return
	}

	sem := make(chan struct{}, handlerFanout)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("feed_handler_panic",
						zap.String("event", name),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			hctx = logging.ContextWithLogger(hctx, b.log.With(zap.String("event", name)))
			if err := h(hctx, e); err != nil {
				b.log.Warn("feed_handler_error",
					zap.String("event", name),
					zap.Error(err),
				)
			}
		}()
	}

	wg.Wait()
}
