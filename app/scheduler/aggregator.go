package scheduler

import (
	"context"
	"fmt"

	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/repository"
	"gorm.io/gorm"
)

// StatusAggregator refreshes a job's derived status from its recipient
// outcomes
type StatusAggregator interface {
	Refresh(ctx context.Context, jobID, tenantID uint) (models.BroadcastJobStatus, error)
}

// TxStatusAggregator recomputes the status inside a transaction with the
// recipient rows locked, so concurrent refreshers for the same job serialize
// and the cached status never goes backwards.
type TxStatusAggregator struct {
	db         *gorm.DB
	jobs       repository.BroadcastJobRepository
	recipients repository.RecipientRepository
}

func NewTxStatusAggregator(db *gorm.DB, jobs repository.BroadcastJobRepository, recipients repository.RecipientRepository) *TxStatusAggregator {
	return &TxStatusAggregator{db: db, jobs: jobs, recipients: recipients}
}

func (a *TxStatusAggregator) Refresh(ctx context.Context, jobID, tenantID uint) (models.BroadcastJobStatus, error) {
	var status models.BroadcastJobStatus
	err := repository.WithTransaction(ctx, a.db, func(txCtx context.Context) error {
		counts, err := a.recipients.CountOutcomes(txCtx, jobID, tenantID, true)
		if err != nil {
			return err
		}
		status = models.ComputeBroadcastStatus(counts)
		return a.jobs.UpdateStatus(txCtx, jobID, tenantID, status)
	})
	if err != nil {
		return "", fmt.Errorf("failed to refresh job %d status: %w", jobID, err)
	}
	return status, nil
}
