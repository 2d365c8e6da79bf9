package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/venuepos/dispatch"

// Tracer returns the engine's tracer. Span emission follows whatever
// provider the host process installed via otel.SetTracerProvider; without
// one, spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
