package event

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/retail/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyStats is a snapshot of an IdempotentHandler's counters
type IdempotencyStats struct {
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// IdempotentHandler applies each event at most once per consumer.
// The key is claimed before the wrapped handler runs and released again when
// the handler fails, so a redelivered event gets another attempt.
type IdempotentHandler struct {
	consumer string
	handler  shared.EventHandler
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	logger   *zap.Logger

	processed  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// NewIdempotentHandler wraps handler under the given consumer name
func NewIdempotentHandler(
	consumer string,
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	config shared.IdempotencyConfig,
	logger *zap.Logger,
) *IdempotentHandler {
	return &IdempotentHandler{
		consumer: consumer,
		handler:  handler,
		store:    store,
		config:   config,
		logger:   logger.With(zap.String("consumer", consumer)),
	}
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle runs the wrapped handler unless this consumer already applied the event
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := shared.ConsumerKey(h.consumer, event.EventID())
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	}

	claimed, err := h.store.Acquire(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		// Store outage: process rather than drop the event.
		h.logger.Warn("idempotency store unavailable, processing anyway", append(fields, zap.Error(err))...)
	case !claimed:
		h.duplicates.Add(1)
		h.logger.Debug("duplicate event skipped", fields...)
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.failed.Add(1)
		if claimed {
			if releaseErr := h.store.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
				err = errors.Join(err, releaseErr)
			}
		}
		return err
	}

	h.processed.Add(1)
	return nil
}

// Stats returns the handler's counters
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed:  h.processed.Load(),
		Duplicates: h.duplicates.Load(),
		Failed:     h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
