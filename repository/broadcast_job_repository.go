package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/utils"
	"gorm.io/gorm"
)

// BroadcastJobRepositoryImpl implements BroadcastJobRepository
type BroadcastJobRepositoryImpl struct {
	*BaseRepository[models.BroadcastJob]
}

func NewBroadcastJobRepository(db *gorm.DB) BroadcastJobRepository {
	return &BroadcastJobRepositoryImpl{BaseRepository: NewBaseRepository[models.BroadcastJob](db)}
}

// ByKey retrieves a job header by its (id, tenant) composite key
func (r *BroadcastJobRepositoryImpl) ByKey(ctx context.Context, id, tenantID uint) (*models.BroadcastJob, error) {
	db := r.getDB(ctx)
	var row models.BroadcastJob
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find broadcast job id=%d tenant=%d: %w", id, tenantID, err)
	}
	return &row, nil
}

// ListDue returns scheduled jobs whose delivery time has passed, oldest
// first, bounded to keep a single poll cycle's work finite.
func (r *BroadcastJobRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.BroadcastJob, error) {
	if limit <= 0 {
		limit = 50
	}
	db := r.getDB(ctx)
	var rows []*models.BroadcastJob
	if err := db.Where("status = ? AND delivery_at <= ?", models.BroadcastStatusScheduled, now).
		Order("delivery_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list due broadcast jobs: %w", err)
	}
	return rows, nil
}

// ByFilter retrieves jobs matching the filter criteria
func (r *BroadcastJobRepositoryImpl) ByFilter(ctx context.Context, filter models.BroadcastJobFilter, orderBy string, limit, offset int) ([]*models.BroadcastJob, error) {
	db := r.getDB(ctx).Model(&models.BroadcastJob{})

	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		db = db.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.DeviceID != nil {
		db = db.Where("device_id = ?", *filter.DeviceID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Kind != nil {
		db = db.Where("kind = ?", *filter.Kind)
	}
	if filter.TemplateID != nil {
		db = db.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.DueBefore != nil {
		db = db.Where("delivery_at <= ?", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		db = db.Where("delivery_at >= ?", *filter.DueAfter)
	}

	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var rows []*models.BroadcastJob
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find broadcast jobs by filter: %w", err)
	}
	return rows, nil
}

// UpdateStatus refreshes the derived status cache column on the header
func (r *BroadcastJobRepositoryImpl) UpdateStatus(ctx context.Context, id, tenantID uint, status models.BroadcastJobStatus) error {
	db := r.getDB(ctx)
	err := db.Model(&models.BroadcastJob{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update broadcast job status id=%d tenant=%d: %w", id, tenantID, err)
	}
	return nil
}
