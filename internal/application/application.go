// Package application hosts the engine's application layer: the synchronous
// distribute use case and the reactors driven by the change feed
// (distribution, availability, refund, notify).
package application

import "context"

// UseCase is the shape of a synchronous application entry point. Reactors
// are not use cases; they hang off the change feed and return only an error.
type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}
