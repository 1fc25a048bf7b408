package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracerProvider("neoproxy-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"unit"`)
	assert.Contains(t, buf.String(), "neoproxy-test")
}
