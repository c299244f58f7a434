// Package httpmw holds gin middleware shared by tablero-server routes.
package httpmw

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/lizmareco/tablero/internal/common/tracing"
)

// routeIDParams are the path parameters that name a board entity.
var routeIDParams = []string{"boardId", "id"}

// OtelTracing wraps each request in a server span named after its route.
// Spans carry the request id and, for entity routes, the entity id.
func OtelTracing(serverName string) gin.HandlerFunc {
	tracer := tracing.Tracer(serverName)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(c.Writer.Status()),
		}
		if id := c.GetString(requestIDKey); id != "" {
			attrs = append(attrs, attribute.String("tablero.request_id", id))
		}
		for _, name := range routeIDParams {
			if v, err := strconv.ParseInt(c.Param(name), 10, 64); err == nil {
				attrs = append(attrs, attribute.Int64("tablero.route."+name, v))
			}
		}
		span.SetAttributes(attrs...)

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
	}
}
