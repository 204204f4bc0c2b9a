package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outboxTestEvent struct {
	BaseDomainEvent
}

func newOutboxTestEntry(now time.Time) *OutboxEntry {
	event := &outboxTestEvent{BaseDomainEvent: NewBaseDomainEvent("PaymentRecorded", "Invoice", uuid.New(), uuid.New(), now)}
	return NewOutboxEntry(event, []byte(`{}`), now)
}

func TestNewOutboxEntry(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	event := &outboxTestEvent{BaseDomainEvent: NewBaseDomainEvent("PaymentRecorded", "Invoice", uuid.New(), uuid.New(), now)}

	entry := NewOutboxEntry(event, []byte(`{"amount":"10"}`), now)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, event.EventID(), entry.EventID)
	assert.Equal(t, event.TenantID(), entry.TenantID)
	assert.Equal(t, event.AggregateID(), entry.AggregateID)
	assert.Equal(t, "PaymentRecorded", entry.EventType)
	assert.Equal(t, "Invoice", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultOutboxMaxRetries, entry.MaxRetries)
	assert.Equal(t, now, entry.CreatedAt)
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("backs off exponentially", func(t *testing.T) {
		entry := newOutboxTestEntry(now)

		entry.MarkFailed("customer busy", time.Second, now)
		require.NotNil(t, entry.NextRetryAt)
		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, 1, entry.RetryCount)
		assert.Equal(t, now.Add(time.Second), *entry.NextRetryAt)
		assert.Equal(t, "customer busy", entry.LastError)

		entry.MarkFailed("customer busy", time.Second, now)
		assert.Equal(t, now.Add(2*time.Second), *entry.NextRetryAt)

		entry.MarkFailed("customer busy", time.Second, now)
		assert.Equal(t, now.Add(4*time.Second), *entry.NextRetryAt)
	})

	t.Run("caps the backoff", func(t *testing.T) {
		entry := newOutboxTestEntry(now)
		entry.MaxRetries = 100
		entry.RetryCount = 40

		entry.MarkFailed("still failing", time.Second, now)
		assert.Equal(t, now.Add(maxOutboxBackoff), *entry.NextRetryAt)
	})

	t.Run("moves to dead letter after max retries", func(t *testing.T) {
		entry := newOutboxTestEntry(now)
		entry.MaxRetries = 2

		entry.MarkFailed("boom", time.Second, now)
		assert.False(t, entry.IsDead())

		entry.MarkFailed("boom", time.Second, now)
		assert.True(t, entry.IsDead())
		assert.Nil(t, entry.NextRetryAt)
	})
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	entry := newOutboxTestEntry(now)
	entry.MarkFailed("boom", time.Second, now)

	later := now.Add(time.Minute)
	entry.MarkSent(later)

	assert.Equal(t, OutboxStatusSent, entry.Status)
	require.NotNil(t, entry.ProcessedAt)
	assert.Equal(t, later, *entry.ProcessedAt)
	assert.Nil(t, entry.NextRetryAt)
	assert.Empty(t, entry.LastError)
	assert.Equal(t, 1, entry.RetryCount)
}
