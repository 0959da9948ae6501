package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "policyguard", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	config := &Config{Enabled: false}

	p, err := New(context.Background(), config)
	require.NoError(t, err)
	require.NotNil(t, p)

	tracer := p.Tracer()
	require.NotNil(t, tracer)
}

func TestNewProviderEnabled(t *testing.T) {
	config := DefaultConfig()
	p, err := New(context.Background(), config)
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestNewProviderWithNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "test.span")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestTraceEvaluation_Success(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)

	err = p.TraceEvaluation(context.Background(), "tenant-1", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestTraceEvaluation_PropagatesError(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig())
	require.NoError(t, err)

	wantErr := errors.New("evaluation failed")
	err = p.TraceEvaluation(context.Background(), "tenant-1", func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestShutdown_DisabledProviderIsNoop(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSpanFromContext(t *testing.T) {
	span := SpanFromContext(context.Background())
	require.NotNil(t, span) // no-op span when none is active
}

func TestAddSpanEvent(t *testing.T) {
	// Should not panic even with no active span.
	AddSpanEvent(context.Background(), "test.event", attribute.String("key", "value"))
}

func TestSetSpanStatus(t *testing.T) {
	SetSpanStatus(context.Background(), errors.New("boom"))
	SetSpanStatus(context.Background(), nil)
}

func TestDecisionAttributes(t *testing.T) {
	attrs := DecisionAttributes("p1", "r1", "allow", "native")
	require.Len(t, attrs, 4)
	require.Equal(t, "policyguard.policy.id", string(attrs[0].Key))
	require.Equal(t, "p1", attrs[0].Value.AsString())
	require.Equal(t, "policyguard.decision.effect", string(attrs[2].Key))
	require.Equal(t, "allow", attrs[2].Value.AsString())
}
