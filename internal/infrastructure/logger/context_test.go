package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	log := zap.NewExample()

	assert.Same(t, log, FromContext(WithContext(context.Background(), log)))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextIDs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTenantID(ctx, "tenant-1")
	ctx = WithActorID(ctx, "actor-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "tenant-1", GetTenantID(ctx))
	assert.Equal(t, "actor-1", GetActorID(ctx))
	assert.Empty(t, GetTenantID(context.Background()))
}

func TestFields(t *testing.T) {
	t.Run("empty context has no fields", func(t *testing.T) {
		assert.Empty(t, Fields(context.Background()))
	})

	t.Run("includes trace correlation", func(t *testing.T) {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{0x01, 0x02},
			SpanID:     trace.SpanID{0x03},
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)
		ctx = WithTenantID(ctx, "tenant-1")

		fields := Fields(ctx)

		keys := make([]string, 0, len(fields))
		for _, f := range fields {
			keys = append(keys, f.Key)
		}
		assert.Equal(t, []string{"trace_id", "span_id", "tenant_id"}, keys)
		assert.Equal(t, sc.TraceID().String(), fields[0].String)
	})
}

func TestL(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)
	ctx := WithRequestID(context.Background(), "req-9")

	L(ctx, base).Info("hello")

	entries := recorded.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])
	}

	ctx = WithContext(ctx, base)
	L(ctx, nil).Info("from context")
	assert.Len(t, recorded.All(), 2)
}
