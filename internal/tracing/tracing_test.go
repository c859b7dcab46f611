package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(false, "svc", 1)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInstall_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := install(sdktrace.WithSyncer(exp), "test-svc", 1)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "core.RegisterIndividual")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "core.RegisterIndividual", spans[0].Name)
	assert.True(t, p.Enabled())
}

func TestSetup_StdoutExport(t *testing.T) {
	var buf bytes.Buffer
	p, err := setup(&buf, "", 0)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "core.Import")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "core.Import")
	assert.Contains(t, buf.String(), "sukamaju-registration")
}
