package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
}

func TestRegisterDBTracing(t *testing.T) {
	t.Run("disabled leaves callbacks untouched", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, RegisterDBTracing(db, DefaultDBTracingConfig(), zap.NewNop()))
		assert.Nil(t, db.Callback().Query().Get("ledger_timing:after_query"))
	})

	t.Run("enabled registers timing callbacks", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DefaultDBTracingConfig()
		cfg.Enabled = true

		require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))
		assert.NotNil(t, db.Callback().Query().Get("ledger_timing:after_query"))
		assert.NotNil(t, db.Callback().Create().Get("ledger_timing:before_create"))

		require.NoError(t, db.Create(&tracedRow{Name: "x"}).Error)
	})

	t.Run("second registration fails", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DefaultDBTracingConfig()
		cfg.Enabled = true

		require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))
		assert.Error(t, RegisterDBTracing(db, cfg, zap.NewNop()))
	})
}

func TestSlowQueryCallback(t *testing.T) {
	t.Run("marks slow query and table", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := newRecorder(t)

		ctx, span := tp.Tracer("test").Start(context.Background(), "query")
		ctx = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))
		tx := db.WithContext(ctx).Table("traced_rows")

		slowQueryCallback(100 * time.Millisecond)(tx)
		span.End()

		ended := sr.Ended()[0]
		slow, ok := spanAttr(ended, "db.slow_query")
		require.True(t, ok)
		assert.True(t, slow.AsBool())
		table, ok := spanAttr(ended, "db.sql.table")
		require.True(t, ok)
		assert.Equal(t, "traced_rows", table.AsString())
		require.Len(t, ended.Events(), 1)
		assert.Equal(t, "slow_query_warning", ended.Events()[0].Name)
	})

	t.Run("fast query is not marked", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := newRecorder(t)

		ctx, span := tp.Tracer("test").Start(context.Background(), "query")
		ctx = context.WithValue(ctx, queryStartKey{}, time.Now())

		slowQueryCallback(time.Hour)(db.WithContext(ctx))
		span.End()

		_, ok := spanAttr(sr.Ended()[0], "db.slow_query")
		assert.False(t, ok)
	})

	t.Run("records errors except not found", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := newRecorder(t)

		ctx, failing := tp.Tracer("test").Start(context.Background(), "failing")
		tx := db.WithContext(ctx)
		tx.Error = errors.New("deadlock detected")
		slowQueryCallback(time.Hour)(tx)
		failing.End()

		ctx, missing := tp.Tracer("test").Start(context.Background(), "missing")
		tx = db.WithContext(ctx)
		tx.Error = gorm.ErrRecordNotFound
		slowQueryCallback(time.Hour)(tx)
		missing.End()

		ended := sr.Ended()
		require.Len(t, ended, 2)
		assert.Equal(t, codes.Error, ended[0].Status().Code)
		assert.Equal(t, codes.Unset, ended[1].Status().Code)
	})

	t.Run("non recording span is ignored", func(t *testing.T) {
		db := setupTestDB(t)
		assert.NotPanics(t, func() {
			slowQueryCallback(0)(db.WithContext(context.Background()))
		})
	})
}
