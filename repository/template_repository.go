package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ibnu-sodik/wage-backend/models"
	"gorm.io/gorm"
)

// TemplateRepositoryImpl implements TemplateRepository
type TemplateRepositoryImpl struct {
	*BaseRepository[models.MessageTemplate]
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &TemplateRepositoryImpl{BaseRepository: NewBaseRepository[models.MessageTemplate](db)}
}

// ByKey retrieves a template by id scoped to its owning tenant
func (r *TemplateRepositoryImpl) ByKey(ctx context.Context, id, tenantID uint) (*models.MessageTemplate, error) {
	db := r.getDB(ctx)
	var row models.MessageTemplate
	err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find template id=%d tenant=%d: %w", id, tenantID, err)
	}
	return &row, nil
}
