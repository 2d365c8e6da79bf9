package memstore

import (
	"context"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/store"
)

type txnKey struct {
	eventID string
	posID   string
	orderID string
	key     string
}

// memTxn buffers line-item writes and applies them only when the
// transaction function returns nil, so a failed transaction leaves the
// store untouched. Reads see buffered writes first.
type memTxn struct {
	s      *Store
	writes map[txnKey]*dispatch.Item // nil marks a delete
	order  []txnKey
}

// RunOrderItemTxn implements store.Gateway. The store lock is held for the
// whole transaction; fn must reach the store only through tx.
func (s *Store) RunOrderItemTxn(ctx context.Context, fn func(ctx context.Context, tx store.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTxn{s: s, writes: make(map[txnKey]*dispatch.Item)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (t *memTxn) GetOrderItem(ctx context.Context, eventID, posID, orderID, key string) (dispatch.Item, error) {
	_ = ctx
	k := txnKey{eventID, posID, orderID, key}
	if buffered, ok := t.writes[k]; ok {
		if buffered == nil {
			return dispatch.Item{}, dispatch.ErrItemNotFound
		}
		return buffered.Clone(), nil
	}
	it, err := t.s.lookupOrderItem(eventID, posID, orderID, key)
	if err != nil {
		return dispatch.Item{}, err
	}
	return it.Clone(), nil
}

func (t *memTxn) SetOrderItem(ctx context.Context, eventID, posID, orderID, key string, item dispatch.Item) error {
	_ = ctx
	clone := item.Clone()
	t.buffer(txnKey{eventID, posID, orderID, key}, &clone)
	return nil
}

func (t *memTxn) DeleteOrderItem(ctx context.Context, eventID, posID, orderID, key string) error {
	_ = ctx
	t.buffer(txnKey{eventID, posID, orderID, key}, nil)
	return nil
}

func (t *memTxn) buffer(k txnKey, item *dispatch.Item) {
	if _, seen := t.writes[k]; !seen {
		t.order = append(t.order, k)
	}
	t.writes[k] = item
}

func (t *memTxn) apply() {
	for _, k := range t.order {
		item := t.writes[k]
		if item == nil {
			if os, ok := t.s.lookupOrder(k.eventID, k.posID, k.orderID); ok {
				delete(os.items, k.key)
			}
			continue
		}
		t.s.orderState(k.eventID, k.posID, k.orderID).items[k.key] = item
	}
}
