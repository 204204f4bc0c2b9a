package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultOutboxMaxRetries  = 8
	DefaultOutboxBaseBackoff = time.Second
	maxOutboxBackoff         = 10 * time.Minute
)

// OutboxEntry is a domain event stored next to the aggregate write that raised
// it, so a failed delivery can be replayed later
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry creates a pending outbox entry for a domain event
func NewOutboxEntry(event DomainEvent, payload []byte, now time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkSent marks the entry as delivered to every consumer
func (e *OutboxEntry) MarkSent(now time.Time) {
	e.Status = OutboxStatusSent
	e.LastError = ""
	e.NextRetryAt = nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. The entry is retried after an exponential
// backoff starting at base, or moved to DEAD once MaxRetries is reached.
func (e *OutboxEntry) MarkFailed(errMsg string, base time.Duration, now time.Time) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}

	if base <= 0 {
		base = DefaultOutboxBaseBackoff
	}
	backoff := maxOutboxBackoff
	if shift := e.RetryCount - 1; shift < 20 {
		backoff = min(base<<uint(shift), maxOutboxBackoff)
	}
	next := now.Add(backoff)
	e.Status = OutboxStatusFailed
	e.NextRetryAt = &next
}

// IsDead returns true if the entry is in dead letter status
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository defines the interface for outbox persistence.
// Claim methods move entries to PROCESSING atomically, so two workers never
// deliver the same entry at once.
type OutboxRepository interface {
	// Save persists one or more outbox entries
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// ClaimDue claims pending entries created before pendingBefore, failed entries
	// whose retry time has come, and processing entries untouched since stalledBefore
	ClaimDue(ctx context.Context, now, pendingBefore, stalledBefore time.Time, limit int) ([]*OutboxEntry, error)
	// ClaimByEventIDs claims the still pending entries of the given events
	ClaimByEventIDs(ctx context.Context, eventIDs []uuid.UUID, now time.Time) ([]*OutboxEntry, error)
	// Update writes the delivery state of an entry back
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteSentBefore removes delivered entries processed before the cutoff
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns count of entries for each status
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}

// OutboxEventSaver writes domain events to the outbox inside the transaction of
// the aggregate write. tx is the repository's transaction handle.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx any, events ...DomainEvent) error
}
