package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Exporter: ExporterNone}, "testing")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "zipkin"}, "testing")
	assert.Error(t, err)
}

func TestTracerStartsSpans(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, span)
}
