package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// ClaimDue claims up to limit entries that are ready for delivery, oldest first
func (r *GormOutboxRepository) ClaimDue(ctx context.Context, now, pendingBefore, stalledBefore time.Time, limit int) ([]*shared.OutboxEntry, error) {
	due := func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"((status = ? AND created_at <= ?) OR (status = ? AND next_retry_at <= ?) OR (status = ? AND updated_at <= ?))",
			shared.OutboxStatusPending, pendingBefore,
			shared.OutboxStatusFailed, now,
			shared.OutboxStatusProcessing, stalledBefore,
		)
	}

	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.OutboxEntryModel{}).
		Scopes(due).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// the due condition is checked again by the update, so a row another worker
	// claimed in between is skipped
	return r.claim(ctx, now, func(db *gorm.DB) *gorm.DB {
		return due(db.Where("id IN ?", ids))
	})
}

// ClaimByEventIDs claims the pending entries of the given events
func (r *GormOutboxRepository) ClaimByEventIDs(ctx context.Context, eventIDs []uuid.UUID, now time.Time) ([]*shared.OutboxEntry, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	return r.claim(ctx, now, func(db *gorm.DB) *gorm.DB {
		return db.Where("event_id IN ? AND status = ?", eventIDs, shared.OutboxStatusPending)
	})
}

func (r *GormOutboxRepository) claim(ctx context.Context, now time.Time, scope func(*gorm.DB) *gorm.DB) ([]*shared.OutboxEntry, error) {
	token := uuid.New()
	result := r.db.WithContext(ctx).Model(&models.OutboxEntryModel{}).
		Scopes(scope).
		Updates(map[string]any{
			"status":      shared.OutboxStatusProcessing,
			"claim_token": token,
			"updated_at":  now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	var rows []models.OutboxEntryModel
	if err := r.db.WithContext(ctx).
		Where("claim_token = ?", token).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// Update writes the delivery state of an entry and releases its claim
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEntryModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":        entry.Status,
			"retry_count":   entry.RetryCount,
			"last_error":    entry.LastError,
			"next_retry_at": entry.NextRetryAt,
			"processed_at":  entry.ProcessedAt,
			"claim_token":   nil,
			"updated_at":    entry.UpdatedAt,
		}).Error
}

// DeleteSentBefore deletes delivered entries processed before the cutoff
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns count of entries for each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type statusCount struct {
		Status shared.OutboxStatus
		Count  int64
	}

	var results []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, c := range results {
		counts[c.Status] = c.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
