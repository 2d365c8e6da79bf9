package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/store"
)

type stubChange struct{ name string }

func (s stubChange) EventName() string { return s.name }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var mu sync.Mutex
	got := map[string]int{}
	handler := func(key string) store.Handler {
		return func(ctx context.Context, e store.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[key]++
			return nil
		}
	}
	bus.Subscribe("a", handler("first"))
	bus.Subscribe("a", handler("second"))
	bus.Subscribe("b", handler("other"))

	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), stubChange{name: "a"}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["first"] == 1 && got["second"] == 1
	})
	mu.Lock()
	assert.Zero(t, got["other"], "handler for another event must not fire")
	mu.Unlock()
}

func TestBusSurvivesHandlerPanic(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var mu sync.Mutex
	delivered := 0
	bus.Subscribe("a", func(ctx context.Context, e store.Event) error {
		panic("boom")
	})
	bus.Subscribe("a", func(ctx context.Context, e store.Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered++
		return nil
	})

	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), stubChange{name: "a"}))
	require.NoError(t, bus.Publish(context.Background(), stubChange{name: "a"}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	})
}

func TestBusRejectsPublishAfterStop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())
	bus.Stop(context.Background())

	err := bus.Publish(context.Background(), stubChange{name: "a"})
	require.ErrorIs(t, err, ErrStopped)
}

func TestBusNilEventIsNoop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), nil))
}
