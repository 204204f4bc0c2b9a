package scheduler

import (
	"context"
	"sync"
	"time"

	appsales "github.com/retail/ledger/internal/application/sales"
	"go.uber.org/zap"
)

// OverdueMarker runs one overdue sweep over all tenants
type OverdueMarker interface {
	MarkOverdueInvoices(ctx context.Context, now time.Time) (appsales.OverdueSweepResult, error)
}

// OverdueSweeperConfig holds configuration for the overdue sweeper
type OverdueSweeperConfig struct {
	// Interval between two sweeps
	Interval time.Duration

	// RunOnStart sweeps once right after Start instead of waiting a full interval
	RunOnStart bool

	// SweepTimeout bounds a single sweep. Zero means no bound.
	SweepTimeout time.Duration
}

// DefaultOverdueSweeperConfig returns default sweeper configuration
func DefaultOverdueSweeperConfig() OverdueSweeperConfig {
	return OverdueSweeperConfig{
		Interval:     time.Hour,
		RunOnStart:   true,
		SweepTimeout: 10 * time.Minute,
	}
}

// OverdueSweeper periodically flips past-due installments to overdue
type OverdueSweeper struct {
	config OverdueSweeperConfig
	marker OverdueMarker
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	runs    int
}

// NewOverdueSweeper creates a new overdue sweeper
func NewOverdueSweeper(config OverdueSweeperConfig, marker OverdueMarker, logger *zap.Logger) (*OverdueSweeper, error) {
	if config.Interval <= 0 || marker == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueSweeper{
		config: config,
		marker: marker,
		logger: logger.Named("overdue_sweeper"),
		now:    time.Now,
	}, nil
}

// Start starts the sweep loop. The loop stops when ctx is cancelled or Stop is called.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.runLoop(ctx, s.done)

	s.logger.Info("Overdue sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep to return
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		s.logger.Info("Overdue sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (s *OverdueSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many sweeps have completed
func (s *OverdueSweeper) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *OverdueSweeper) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.config.RunOnStart {
		s.SweepOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and logs its outcome
func (s *OverdueSweeper) SweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.config.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SweepTimeout)
		defer cancel()
	}

	started := s.now()
	result, err := s.marker.MarkOverdueInvoices(ctx, started)

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Overdue sweep failed",
			zap.Int("scanned", result.Scanned),
			zap.Int("invoices_updated", result.InvoicesUpdated),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{
		zap.Int("scanned", result.Scanned),
		zap.Int("invoices_updated", result.InvoicesUpdated),
		zap.Int("installments_overdue", result.InstallmentsOverdue),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(started)),
	}
	if result.InvoicesUpdated > 0 || result.Failed > 0 {
		s.logger.Info("Overdue sweep completed", fields...)
		return
	}
	s.logger.Debug("Overdue sweep completed", fields...)
}
