package business_flow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/app/session"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/repository"
	"github.com/ibnu-sodik/wage-backend/utils"
	"gorm.io/gorm"
)

// BroadcastRecipient is one target of a broadcast request
type BroadcastRecipient struct {
	Nokey         uint   `json:"nokey"`
	ContactNumber string `json:"contact_number"`
	ContactName   string `json:"contact_name"`
	DeviceName    string `json:"device_name"`
}

// BroadcastRequest describes a broadcast to schedule
type BroadcastRequest struct {
	JobID       uint                 `json:"job_id"`
	DeviceID    string               `json:"device_id"`
	Kind        models.MessageKind   `json:"kind"`
	MessageText *string              `json:"message_text,omitempty"`
	TemplateID  *uint                `json:"template_id,omitempty"`
	DeliveryAt  time.Time            `json:"delivery_at"`
	Recipients  []BroadcastRecipient `json:"recipients"`
}

// BroadcastStatusView is the API view of a job and its outcome counts
type BroadcastStatusView struct {
	Job    *models.BroadcastJob      `json:"job"`
	Counts models.OutcomeCounts      `json:"counts"`
	Status models.BroadcastJobStatus `json:"status"`
}

// TemplatedSendRequest is an immediate single-recipient templated send
type TemplatedSendRequest struct {
	DeviceID    string `json:"device_id"`
	To          string `json:"to"`
	ContactName string `json:"contact_name"`
	TemplateID  uint   `json:"template_id"`
}

// MessageFlow covers immediate sends and broadcast scheduling
type MessageFlow interface {
	SendLive(ctx context.Context, tenantID uint, deviceID, to, text string) error
	SendTemplated(ctx context.Context, tenantID uint, req TemplatedSendRequest) error
	ScheduleBroadcast(ctx context.Context, tenantID uint, req BroadcastRequest) (*models.BroadcastJob, error)
	JobStatus(ctx context.Context, tenantID, jobID uint) (*BroadcastStatusView, error)
	ListJobs(ctx context.Context, tenantID uint, status *models.BroadcastJobStatus, limit, offset int) ([]*models.BroadcastJob, error)
}

// MessageFlowImpl implements MessageFlow
type MessageFlowImpl struct {
	db         *gorm.DB
	jobs       repository.BroadcastJobRepository
	recipients repository.RecipientRepository
	templates  repository.TemplateRepository
	users      repository.UserRepository
	registry   *session.Registry
	builder    *message.Builder
	logger     *log.Logger
}

func NewMessageFlow(
	db *gorm.DB,
	jobs repository.BroadcastJobRepository,
	recipients repository.RecipientRepository,
	templates repository.TemplateRepository,
	users repository.UserRepository,
	registry *session.Registry,
	builder *message.Builder,
	logger *log.Logger,
) MessageFlow {
	return &MessageFlowImpl{
		db:         db,
		jobs:       jobs,
		recipients: recipients,
		templates:  templates,
		users:      users,
		registry:   registry,
		builder:    builder,
		logger:     logger,
	}
}

// SendLive sends a single text immediately over a connected device
func (f *MessageFlowImpl) SendLive(ctx context.Context, tenantID uint, deviceID, to, text string) error {
	s := f.registry.Get(tenantKey(tenantID), deviceID)
	if s == nil {
		return ErrDeviceNotFound
	}
	if !s.Connected() {
		return ErrDeviceNotConnected
	}
	rec := &models.Recipient{ContactNumber: to}
	msg := f.builder.BuildLive(text, rec, message.Sender{})
	if err := s.Send(ctx, utils.NormalizePhone(to), msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendTemplated renders a stored template for one recipient and sends it
// immediately over a connected device
func (f *MessageFlowImpl) SendTemplated(ctx context.Context, tenantID uint, req TemplatedSendRequest) error {
	tpl, err := f.templates.ByKey(ctx, req.TemplateID, tenantID)
	if err != nil {
		return err
	}
	if tpl == nil {
		return ErrTemplateNotFound
	}

	s := f.registry.Get(tenantKey(tenantID), req.DeviceID)
	if s == nil {
		return ErrDeviceNotFound
	}
	if !s.Connected() {
		return ErrDeviceNotConnected
	}

	var sender message.Sender
	if user, err := f.users.ByID(ctx, tenantID); err == nil && user != nil {
		sender = message.Sender{FullName: user.FullName(), Email: user.Email}
		if user.ContactNumber != nil {
			sender.ContactNumber = *user.ContactNumber
		}
	}

	rec := &models.Recipient{
		ContactNumber: utils.NormalizePhone(req.To),
		ContactName:   req.ContactName,
		DeviceName:    req.DeviceID,
	}
	msg, err := f.builder.Build(tpl, rec, sender)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	if err := s.Send(ctx, rec.ContactNumber, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ScheduleBroadcast validates and stores a job header with its recipient
// rows in one transaction. The poll loop picks it up once delivery_at has
// passed.
func (f *MessageFlowImpl) ScheduleBroadcast(ctx context.Context, tenantID uint, req BroadcastRequest) (*models.BroadcastJob, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	switch req.Kind {
	case models.MessageKindLive:
		if req.MessageText == nil || *req.MessageText == "" {
			return nil, ErrMissingMessage
		}
	case models.MessageKindTemplate:
		if req.TemplateID == nil {
			return nil, ErrMissingTemplate
		}
		tpl, err := f.templates.ByKey(ctx, *req.TemplateID, tenantID)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, ErrTemplateNotFound
		}
	default:
		return nil, fmt.Errorf("unknown message kind: %s", req.Kind)
	}

	existing, err := f.jobs.ByKey(ctx, req.JobID, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrJobExists
	}

	job := &models.BroadcastJob{
		ID:          req.JobID,
		TenantID:    tenantID,
		DeviceID:    req.DeviceID,
		Kind:        req.Kind,
		MessageText: req.MessageText,
		TemplateID:  req.TemplateID,
		DeliveryAt:  utils.TimeToUTC(req.DeliveryAt),
		Status:      models.BroadcastStatusScheduled,
	}
	rows := make([]*models.Recipient, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		nokey := r.Nokey
		if nokey == 0 {
			nokey = uint(i + 1)
		}
		rows = append(rows, &models.Recipient{
			JobID:         req.JobID,
			Nokey:         nokey,
			TenantID:      tenantID,
			ContactNumber: utils.NormalizePhone(r.ContactNumber),
			ContactName:   r.ContactName,
			DeviceName:    r.DeviceName,
			Outcome:       models.OutcomePending,
		})
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.jobs.Save(txCtx, job); err != nil {
			return err
		}
		return f.recipients.SaveBatch(txCtx, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store broadcast: %w", err)
	}

	f.logger.Printf("broadcast %d scheduled for tenant %d (%d recipients, due %s)",
		job.ID, tenantID, len(rows), job.DeliveryAt.Format(time.RFC3339))
	return job, nil
}

// JobStatus returns the job header with a live outcome snapshot
func (f *MessageFlowImpl) JobStatus(ctx context.Context, tenantID, jobID uint) (*BroadcastStatusView, error) {
	job, err := f.jobs.ByKey(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	counts, err := f.recipients.CountOutcomes(ctx, jobID, tenantID, false)
	if err != nil {
		return nil, err
	}
	return &BroadcastStatusView{
		Job:    job,
		Counts: counts,
		Status: models.ComputeBroadcastStatus(counts),
	}, nil
}

// ListJobs returns the tenant's jobs, newest first
func (f *MessageFlowImpl) ListJobs(ctx context.Context, tenantID uint, status *models.BroadcastJobStatus, limit, offset int) ([]*models.BroadcastJob, error) {
	filter := models.BroadcastJobFilter{TenantID: &tenantID, Status: status}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return f.jobs.ByFilter(ctx, filter, "delivery_at DESC", limit, offset)
}
