package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// memoryLogExporter keeps the body and severity of exported records
type memoryLogExporter struct {
	mu       sync.Mutex
	bodies   []string
	severity []log.Severity
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
		e.severity = append(e.severity, r.Severity())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	base := zap.NewNop()
	assert.False(t, lp.IsEnabled())
	assert.Same(t, base, lp.Bridge(base, zap.InfoLevel))
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestLoggerProvider_Bridge(t *testing.T) {
	ctx := context.Background()
	exporter := &memoryLogExporter{}
	lp, err := newLoggerProvider(LogsConfig{Enabled: true, ServiceName: "retail-ledger-test"}, exporter, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(ctx) })

	core, local := observer.New(zap.DebugLevel)
	bridged := lp.Bridge(zap.New(core), zap.InfoLevel)

	bridged.Debug("allocation detail")
	bridged.Info("payment recorded", zap.String("invoice_number", "INV-1"))
	bridged.With(zap.String("tenant_id", "t1")).Warn("installment overdue")

	require.NoError(t, lp.ForceFlush(ctx))

	assert.Equal(t, 3, local.Len(), "local output keeps every level")
	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	assert.Equal(t, []string{"payment recorded", "installment overdue"}, exporter.bodies)
	assert.Equal(t, []log.Severity{log.SeverityInfo, log.SeverityWarn}, exporter.severity)
}
