package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointHost(t *testing.T) {
	tests := map[string]string{
		"http://localhost:4318":         "localhost:4318",
		"https://otel.example.com:4318": "otel.example.com:4318",
		"localhost:4318":                "localhost:4318",
		"":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, endpointHost(in), in)
	}
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("https://otel.example.com"), 1)
	assert.Len(t, exporterOptions("http://localhost:4318"), 2)
	assert.Len(t, exporterOptions("localhost:4318"), 2)
}

func TestTraceBackendRequest(t *testing.T) {
	ctx, span := TraceBackendRequest(context.Background(), "PUT", "/cards/1/move")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	TraceBackendResponse(span, 500, errors.New("boom"))
	span.End()
}

func TestTraceMove(t *testing.T) {
	_, span := TraceMove(context.Background(), "card", 3, 1)
	require.NotNil(t, span)
	EndSpan(span, nil)
	assert.NoError(t, Shutdown(context.Background()))
}
