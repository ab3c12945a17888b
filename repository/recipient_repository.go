package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibnu-sodik/wage-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecipientRepositoryImpl implements RecipientRepository
type RecipientRepositoryImpl struct {
	*BaseRepository[models.Recipient]
}

func NewRecipientRepository(db *gorm.DB) RecipientRepository {
	return &RecipientRepositoryImpl{BaseRepository: NewBaseRepository[models.Recipient](db)}
}

// ByKey retrieves one recipient row by its (job, nokey, tenant) composite key
func (r *RecipientRepositoryImpl) ByKey(ctx context.Context, jobID, nokey, tenantID uint) (*models.Recipient, error) {
	db := r.getDB(ctx)
	var row models.Recipient
	err := db.Where("job_id = ? AND nokey = ? AND tenant_id = ?", jobID, nokey, tenantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find recipient job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return &row, nil
}

// ListPendingDue returns pending rows whose next attempt mark is unset or
// has passed, ordered by recipient key for reproducible dispatch order.
func (r *RecipientRepositoryImpl) ListPendingDue(ctx context.Context, jobID, tenantID uint, now time.Time) ([]*models.Recipient, error) {
	db := r.getDB(ctx)
	var rows []*models.Recipient
	if err := db.Where("job_id = ? AND tenant_id = ? AND outcome = ?", jobID, tenantID, models.OutcomePending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("nokey ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending recipients job=%d: %w", jobID, err)
	}
	return rows, nil
}

// MarkSent records a successful delivery; the outcome becomes terminal and
// all retry bookkeeping is cleared.
func (r *RecipientRepositoryImpl) MarkSent(ctx context.Context, jobID, nokey, tenantID uint, deliveredAt time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Recipient{}).
		Where("job_id = ? AND nokey = ? AND tenant_id = ? AND outcome = ?", jobID, nokey, tenantID, models.OutcomePending).
		Updates(map[string]any{
			"outcome":         models.OutcomeSent,
			"delivered_at":    deliveredAt,
			"last_error":      nil,
			"next_attempt_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark recipient sent job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return nil
}

// MarkFailed records a terminal failure after the retry budget is exhausted
func (r *RecipientRepositoryImpl) MarkFailed(ctx context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int, failedAt time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Recipient{}).
		Where("job_id = ? AND nokey = ? AND tenant_id = ? AND outcome = ?", jobID, nokey, tenantID, models.OutcomePending).
		Updates(map[string]any{
			"outcome":      models.OutcomeFailed,
			"delivered_at": failedAt,
			"last_error":   lastError,
			"retry_count":  retryCount,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark recipient failed job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return nil
}

// ScheduleRetry records a transient failure and the next attempt time
func (r *RecipientRepositoryImpl) ScheduleRetry(ctx context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int, nextAttemptAt time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Recipient{}).
		Where("job_id = ? AND nokey = ? AND tenant_id = ? AND outcome = ?", jobID, nokey, tenantID, models.OutcomePending).
		Updates(map[string]any{
			"last_error":      lastError,
			"retry_count":     retryCount,
			"next_attempt_at": nextAttemptAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to schedule recipient retry job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return nil
}

// RecordAttempt stores the failure and attempt count without touching the
// next attempt mark; used when an external queue owns the retry schedule.
func (r *RecipientRepositoryImpl) RecordAttempt(ctx context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Recipient{}).
		Where("job_id = ? AND nokey = ? AND tenant_id = ? AND outcome = ?", jobID, nokey, tenantID, models.OutcomePending).
		Updates(map[string]any{
			"last_error":  lastError,
			"retry_count": retryCount,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record recipient attempt job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return nil
}

// Postpone pushes the next attempt time without consuming a retry attempt
// (used for concurrency-limiter denials and enqueue fallbacks)
func (r *RecipientRepositoryImpl) Postpone(ctx context.Context, jobID, nokey, tenantID uint, nextAttemptAt time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Recipient{}).
		Where("job_id = ? AND nokey = ? AND tenant_id = ? AND outcome = ?", jobID, nokey, tenantID, models.OutcomePending).
		Update("next_attempt_at", nextAttemptAt).Error
	if err != nil {
		return fmt.Errorf("failed to postpone recipient job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return nil
}

// ClearNextAttempt removes the next attempt mark so the queue worker owns
// the retry schedule for the row
func (r *RecipientRepositoryImpl) ClearNextAttempt(ctx context.Context, jobID, nokey, tenantID uint) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Recipient{}).
		Where("job_id = ? AND nokey = ? AND tenant_id = ?", jobID, nokey, tenantID).
		Update("next_attempt_at", nil).Error
	if err != nil {
		return fmt.Errorf("failed to clear next attempt job=%d nokey=%d: %w", jobID, nokey, err)
	}
	return nil
}

// CountOutcomes returns the outcome snapshot for one job. With lock set the
// rows are read FOR UPDATE so concurrent aggregators for the same job
// serialize; callers must then be inside WithTransaction.
func (r *RecipientRepositoryImpl) CountOutcomes(ctx context.Context, jobID, tenantID uint, lock bool) (models.OutcomeCounts, error) {
	db := r.getDB(ctx).Model(&models.Recipient{}).
		Where("job_id = ? AND tenant_id = ?", jobID, tenantID)
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var counts models.OutcomeCounts
	err := db.Select(
		"SUM(CASE WHEN outcome = 1 THEN 1 ELSE 0 END) AS sent_count, "+
			"SUM(CASE WHEN outcome = 2 THEN 1 ELSE 0 END) AS fail_count, "+
			"COUNT(*) AS total_count").
		Scan(&counts).Error
	if err != nil {
		return models.OutcomeCounts{}, fmt.Errorf("failed to count recipient outcomes job=%d: %w", jobID, err)
	}
	return counts, nil
}
