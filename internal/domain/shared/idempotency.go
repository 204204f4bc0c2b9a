package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdempotencyStore remembers which consumer already applied which event.
// Keys are built with ConsumerKey so two consumers of the same event never
// shadow each other.
type IdempotencyStore interface {
	// Acquire claims the key for ttl. It returns false when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim so a failed delivery can be retried
	Release(ctx context.Context, key string) error

	// IsProcessed reports whether the key is currently held
	IsProcessed(ctx context.Context, key string) (bool, error)

	Close() error
}

// ConsumerKey is the idempotency key of one event for one consumer
func ConsumerKey(consumer string, eventID uuid.UUID) string {
	return consumer + ":" + eventID.String()
}

// IdempotencyConfig holds configuration for idempotent event consumption
type IdempotencyConfig struct {
	// TTL must outlive any redelivery window of the event bus
	TTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}
