package repository

import (
	"context"
	"time"

	"github.com/ibnu-sodik/wage-backend/models"
)

// BroadcastJobRepository is the access contract for broadcast job headers
type BroadcastJobRepository interface {
	ByKey(ctx context.Context, id, tenantID uint) (*models.BroadcastJob, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.BroadcastJob, error)
	ByFilter(ctx context.Context, filter models.BroadcastJobFilter, orderBy string, limit, offset int) ([]*models.BroadcastJob, error)
	Save(ctx context.Context, job *models.BroadcastJob) error
	UpdateStatus(ctx context.Context, id, tenantID uint, status models.BroadcastJobStatus) error
}

// RecipientRepository is the access contract for per-recipient delivery rows
type RecipientRepository interface {
	ByKey(ctx context.Context, jobID, nokey, tenantID uint) (*models.Recipient, error)
	ListPendingDue(ctx context.Context, jobID, tenantID uint, now time.Time) ([]*models.Recipient, error)
	SaveBatch(ctx context.Context, rows []*models.Recipient) error
	MarkSent(ctx context.Context, jobID, nokey, tenantID uint, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int, failedAt time.Time) error
	ScheduleRetry(ctx context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int, nextAttemptAt time.Time) error
	RecordAttempt(ctx context.Context, jobID, nokey, tenantID uint, lastError string, retryCount int) error
	Postpone(ctx context.Context, jobID, nokey, tenantID uint, nextAttemptAt time.Time) error
	ClearNextAttempt(ctx context.Context, jobID, nokey, tenantID uint) error
	CountOutcomes(ctx context.Context, jobID, tenantID uint, lock bool) (models.OutcomeCounts, error)
}

// TemplateRepository is the access contract for message templates
type TemplateRepository interface {
	ByKey(ctx context.Context, id, tenantID uint) (*models.MessageTemplate, error)
	Save(ctx context.Context, tpl *models.MessageTemplate) error
}

// UserRepository is the access contract for tenant accounts
type UserRepository interface {
	ByID(ctx context.Context, id uint) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
}
