package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const clientTracerName = "tablero-client"

// TraceBackendRequest opens the client span for one REST call. Close it
// with TraceBackendResponse and span.End.
func TraceBackendRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return Tracer(clientTracerName).Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
}

// TraceBackendResponse records the outcome of a REST call. statusCode is 0
// when no response arrived.
func TraceBackendResponse(span trace.Span, statusCode int, err error) {
	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", statusCode))
	}
	switch {
	case err != nil:
		fail(span, err)
	case statusCode >= http.StatusBadRequest:
		span.SetStatus(codes.Error, http.StatusText(statusCode))
	}
}

// TraceMove spans the persistence of one queued card or list move.
func TraceMove(ctx context.Context, kind string, entityID int64, position int) (context.Context, trace.Span) {
	return Tracer(clientTracerName).Start(ctx, "persist "+kind+" move",
		trace.WithAttributes(
			attribute.String("tablero.move.kind", kind),
			attribute.Int64("tablero.move.entity_id", entityID),
			attribute.Int("tablero.move.position", position),
		),
	)
}

// EndSpan ends span, marking it failed when err is set.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		fail(span, err)
	}
	span.End()
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
