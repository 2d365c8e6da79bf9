package store

import (
	"context"
	"errors"

	"github.com/venuepos/dispatch/internal/domain/catalog"
	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/event"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/pos"
	"github.com/venuepos/dispatch/internal/domain/purchase"
)

// Sentinel errors gateway implementations wrap their backend failures in.
// Not-found conditions are reported with the owning domain package's
// sentinel (pos.ErrNotFound, purchase.ErrNotFound, ...) so callers can keep
// using errors.Is against the type they asked for.
var (
	// ErrConflict reports a lost write race (document already exists, or a
	// transaction could not be committed after retries).
	ErrConflict = errors.New("store: conflict")
	// ErrTransient reports a failure worth redelivering: timeouts,
	// contention, connection loss.
	ErrTransient = errors.New("store: transient failure")
	// ErrPermanent reports a failure redelivery cannot fix: schema
	// violations, forbidden operations.
	ErrPermanent = errors.New("store: permanent failure")
)

// Kind buckets an error for retry decisions and response mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindTransient
	KindPermanent
)

// KindOf classifies an error against the store sentinels and the domain
// not-found sentinels. Context cancellation and deadline expiry count as
// transient: the trigger transport may redeliver.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsNotFound(err):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err is any of the domain not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, event.ErrNotFound) ||
		errors.Is(err, catalog.ErrNotFound) ||
		errors.Is(err, pos.ErrNotFound) ||
		errors.Is(err, pos.ErrItemNotFound) ||
		errors.Is(err, purchase.ErrNotFound) ||
		errors.Is(err, dispatch.ErrNotFound) ||
		errors.Is(err, dispatch.ErrItemNotFound) ||
		errors.Is(err, notification.ErrNotFound)
}
