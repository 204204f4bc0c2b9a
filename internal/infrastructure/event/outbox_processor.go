package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// PendingGrace is how long a fresh entry is left to the request that wrote it
	// before the poller delivers it instead
	PendingGrace time.Duration
	// ProcessingTimeout reclaims entries whose worker died mid-delivery
	ProcessingTimeout time.Duration
	RetryBackoff      time.Duration
	CleanupEnabled    bool
	CleanupRetention  time.Duration
	CleanupInterval   time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:         100,
		PollInterval:      5 * time.Second,
		PendingGrace:      30 * time.Second,
		ProcessingTimeout: 2 * time.Minute,
		RetryBackoff:      shared.DefaultOutboxBaseBackoff,
		CleanupEnabled:    true,
		CleanupRetention:  7 * 24 * time.Hour,
		CleanupInterval:   time.Hour,
	}
}

// OutboxProcessor delivers outbox entries to the event bus.
// Publish is the fast path used right after a write commits; the poll loop
// redelivers what that path failed or never got to.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	eventBus   shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	clock      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OutboxProcessorOption configures an OutboxProcessor
type OutboxProcessorOption func(*OutboxProcessor)

// WithProcessorClock overrides the processor's clock
func WithProcessorClock(clock func() time.Time) OutboxProcessorOption {
	return func(p *OutboxProcessor) {
		p.clock = clock
	}
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	eventBus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
	opts ...OutboxProcessorOption,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("outbox batch size must be positive, got %d", config.BatchSize)
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("outbox poll interval must be positive, got %s", config.PollInterval)
	}
	if config.CleanupEnabled && config.CleanupInterval <= 0 {
		return nil, fmt.Errorf("outbox cleanup interval must be positive, got %s", config.CleanupInterval)
	}

	p := &OutboxProcessor{
		repo:       repo,
		eventBus:   eventBus,
		serializer: serializer,
		config:     config,
		logger:     logger.With(zap.String("component", "outbox")),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish delivers events whose outbox entries are still pending. Events without
// a pending entry are skipped: they were never stored or another worker owns them.
// A failed delivery is recorded on the entry and retried by ProcessDue.
func (p *OutboxProcessor) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	ids := lo.Map(events, func(e shared.DomainEvent, _ int) uuid.UUID { return e.EventID() })
	claimed, err := p.repo.ClaimByEventIDs(ctx, ids, p.clock())
	if err != nil {
		// the entries stay pending and the poller picks them up
		return fmt.Errorf("claim outbox entries: %w", err)
	}

	byID := lo.KeyBy(events, func(e shared.DomainEvent) uuid.UUID { return e.EventID() })
	var errs []error
	for _, entry := range claimed {
		if err := p.deliver(ctx, entry, byID[entry.EventID]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProcessDue claims one batch of due entries and delivers them. It returns how
// many were delivered and the joined delivery errors.
func (p *OutboxProcessor) ProcessDue(ctx context.Context) (int, error) {
	now := p.clock()
	entries, err := p.repo.ClaimDue(ctx, now,
		now.Add(-p.config.PendingGrace),
		now.Add(-p.config.ProcessingTimeout),
		p.config.BatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("claim due outbox entries: %w", err)
	}

	delivered := 0
	var errs []error
	for _, entry := range entries {
		event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
		if err != nil {
			p.logger.Error("failed to deserialize event",
				zap.String("event_id", entry.EventID.String()),
				zap.String("event_type", entry.EventType),
				zap.Error(err),
			)
			p.fail(ctx, entry, err)
			errs = append(errs, err)
			continue
		}
		if err := p.deliver(ctx, entry, event); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain while full batches keep coming
			for {
				delivered, err := p.ProcessDue(ctx)
				if err != nil {
					p.logger.Warn("outbox batch had failures", zap.Int("delivered", delivered), zap.Error(err))
				}
				if err != nil || delivered < p.config.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry, event shared.DomainEvent) error {
	if err := p.eventBus.Publish(ctx, event); err != nil {
		p.fail(ctx, entry, err)
		return fmt.Errorf("deliver %s %s: %w", entry.EventType, entry.EventID, err)
	}

	entry.MarkSent(p.clock())
	if err := p.repo.Update(ctx, entry); err != nil {
		// the claim times out and the entry is delivered again; consumers skip it
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return nil
	}
	p.logger.Debug("event delivered",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	return nil
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error(), p.config.RetryBackoff, p.clock())
	if entry.IsDead() {
		p.logger.Warn("event moved to dead letter",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to update entry", zap.String("event_id", entry.EventID.String()), zap.Error(err))
	}
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup removes delivered entries older than the retention and reports the
// entries that gave up
func (p *OutboxProcessor) Cleanup(ctx context.Context) {
	cutoff := p.clock().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}

	counts, err := p.repo.CountByStatus(ctx)
	if err != nil {
		p.logger.Error("failed to count outbox entries", zap.Error(err))
		return
	}
	if dead := counts[shared.OutboxStatusDead]; dead > 0 {
		p.logger.Warn("outbox has dead letter entries", zap.Int64("dead", dead))
	}
}

var _ shared.EventPublisher = (*OutboxProcessor)(nil)
