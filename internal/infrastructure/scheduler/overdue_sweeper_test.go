package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appsales "github.com/retail/ledger/internal/application/sales"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockOverdueMarker struct {
	mock.Mock
	mu    sync.Mutex
	calls int
}

func (m *mockOverdueMarker) MarkOverdueInvoices(ctx context.Context, now time.Time) (appsales.OverdueSweepResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	args := m.Called(ctx, now)
	return args.Get(0).(appsales.OverdueSweepResult), args.Error(1)
}

func (m *mockOverdueMarker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestNewOverdueSweeper_InvalidConfig(t *testing.T) {
	_, err := NewOverdueSweeper(OverdueSweeperConfig{}, &mockOverdueMarker{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOverdueSweeper(DefaultOverdueSweeperConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultOverdueSweeperConfig(t *testing.T) {
	cfg := DefaultOverdueSweeperConfig()
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.True(t, cfg.RunOnStart)
	assert.Equal(t, 10*time.Minute, cfg.SweepTimeout)
}

func TestOverdueSweeper_SweepOnce(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	t.Run("passes the clock and logs progress", func(t *testing.T) {
		marker := &mockOverdueMarker{}
		marker.On("MarkOverdueInvoices", mock.Anything, fixed).
			Return(appsales.OverdueSweepResult{Scanned: 4, InvoicesUpdated: 2, InstallmentsOverdue: 3}, nil).Once()

		core, logs := observer.New(zap.DebugLevel)
		s, err := NewOverdueSweeper(DefaultOverdueSweeperConfig(), marker, zap.New(core))
		require.NoError(t, err)
		s.now = func() time.Time { return fixed }

		s.SweepOnce(context.Background())

		marker.AssertExpectations(t)
		assert.Equal(t, 1, s.Runs())
		entries := logs.FilterMessage("Overdue sweep completed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.EqualValues(t, 3, entries[0].ContextMap()["installments_overdue"])
	})

	t.Run("quiet sweep logs at debug", func(t *testing.T) {
		marker := &mockOverdueMarker{}
		marker.On("MarkOverdueInvoices", mock.Anything, mock.Anything).Return(appsales.OverdueSweepResult{Scanned: 1}, nil).Once()

		core, logs := observer.New(zap.DebugLevel)
		s, err := NewOverdueSweeper(DefaultOverdueSweeperConfig(), marker, zap.New(core))
		require.NoError(t, err)

		s.SweepOnce(context.Background())
		entries := logs.FilterMessage("Overdue sweep completed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.DebugLevel, entries[0].Level)
	})

	t.Run("failure is logged and the loop survives", func(t *testing.T) {
		marker := &mockOverdueMarker{}
		marker.On("MarkOverdueInvoices", mock.Anything, mock.Anything).
			Return(appsales.OverdueSweepResult{}, errors.New("db down")).Once()

		core, logs := observer.New(zap.DebugLevel)
		s, err := NewOverdueSweeper(DefaultOverdueSweeperConfig(), marker, zap.New(core))
		require.NoError(t, err)

		s.SweepOnce(context.Background())
		assert.Equal(t, 1, logs.FilterMessage("Overdue sweep failed").Len())
		assert.Equal(t, 1, s.Runs())
	})

	t.Run("cancelled context skips the sweep", func(t *testing.T) {
		marker := &mockOverdueMarker{}
		s, err := NewOverdueSweeper(DefaultOverdueSweeperConfig(), marker, zap.NewNop())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.SweepOnce(ctx)
		assert.Zero(t, marker.callCount())
	})
}

func TestOverdueSweeper_StartStop(t *testing.T) {
	marker := &mockOverdueMarker{}
	marker.On("MarkOverdueInvoices", mock.Anything, mock.Anything).Return(appsales.OverdueSweepResult{}, nil)

	s, err := NewOverdueSweeper(OverdueSweeperConfig{Interval: 10 * time.Millisecond, RunOnStart: true}, marker, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return marker.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())

	calls := marker.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, marker.callCount())

	require.NoError(t, s.Stop(stopCtx))
}

func TestOverdueSweeper_StopsWithParentContext(t *testing.T) {
	marker := &mockOverdueMarker{}
	marker.On("MarkOverdueInvoices", mock.Anything, mock.Anything).Return(appsales.OverdueSweepResult{}, nil)

	s, err := NewOverdueSweeper(OverdueSweeperConfig{Interval: time.Hour}, marker, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.Zero(t, marker.callCount())
}
