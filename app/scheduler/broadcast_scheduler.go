// Package scheduler polls for due broadcast jobs and drives recipient
// delivery with per-device concurrency limits, exponential retry, and
// derived job status aggregation.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/repository"
	"github.com/ibnu-sodik/wage-backend/utils"
)

// DeliveryTask identifies one recipient delivery handed to the queue
type DeliveryTask struct {
	JobID    uint `json:"job_id"`
	Nokey    uint `json:"nokey"`
	TenantID uint `json:"tenant_id"`
}

// QueuePublisher hands recipient deliveries to an external worker queue
type QueuePublisher interface {
	Publish(ctx context.Context, task DeliveryTask) error
}

// Config holds the scheduler's polling and pacing knobs
type Config struct {
	PollInterval      time.Duration
	BatchSize         int
	DeviceConcurrency int
}

// DefaultConfig returns the production scheduler settings
func DefaultConfig() Config {
	return Config{
		PollInterval:      15 * time.Second,
		BatchSize:         50,
		DeviceConcurrency: 5,
	}
}

// BroadcastScheduler is the poll loop over due jobs. When a queue publisher
// is configured, deliveries are enqueued instead of sent inline and the
// workers own the retry schedule.
type BroadcastScheduler struct {
	jobs       repository.BroadcastJobRepository
	recipients repository.RecipientRepository
	templates  repository.TemplateRepository
	users      repository.UserRepository
	sessions   SessionProvider
	dispatcher *Dispatcher
	aggregator StatusAggregator
	limiter    *DeviceLimiter
	policy     RetryPolicy
	queue      QueuePublisher
	cfg        Config
	logger     *log.Logger
	metrics    *Metrics

	running atomic.Bool
}

func NewBroadcastScheduler(
	jobs repository.BroadcastJobRepository,
	recipients repository.RecipientRepository,
	templates repository.TemplateRepository,
	users repository.UserRepository,
	sessions SessionProvider,
	dispatcher *Dispatcher,
	aggregator StatusAggregator,
	policy RetryPolicy,
	cfg Config,
	logger *log.Logger,
) *BroadcastScheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.DeviceConcurrency <= 0 {
		cfg.DeviceConcurrency = DefaultConfig().DeviceConcurrency
	}
	return &BroadcastScheduler{
		jobs:       jobs,
		recipients: recipients,
		templates:  templates,
		users:      users,
		sessions:   sessions,
		dispatcher: dispatcher,
		aggregator: aggregator,
		limiter:    NewDeviceLimiter(cfg.DeviceConcurrency),
		policy:     policy,
		cfg:        cfg,
		logger:     logger,
	}
}

// WithQueue switches the scheduler into enqueue mode
func (s *BroadcastScheduler) WithQueue(queue QueuePublisher) *BroadcastScheduler {
	s.queue = queue
	return s
}

// WithMetrics attaches prometheus counters
func (s *BroadcastScheduler) WithMetrics(m *Metrics) *BroadcastScheduler {
	s.metrics = m
	return s
}

// Start launches the poll loop; it stops when ctx is cancelled
func (s *BroadcastScheduler) Start(ctx context.Context) {
	go func() {
		s.logger.Printf("broadcast scheduler started (poll=%s batch=%d queue=%t)",
			s.cfg.PollInterval, s.cfg.BatchSize, s.queue != nil)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Printf("broadcast scheduler stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce executes a single poll cycle. Overlapping cycles are skipped: a
// tick that fires while the previous cycle still runs is a no-op.
func (s *BroadcastScheduler) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.PollsSkipped.Inc()
		}
		return
	}
	defer s.running.Store(false)

	now := utils.UTCNow()
	jobs, err := s.jobs.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Printf("ERROR: scheduler: list due jobs: %v", err)
		return
	}

	pending := int64(0)
	for _, job := range jobs {
		n, err := s.processJob(ctx, job)
		pending += n
		if err != nil {
			// one broken job must not starve the rest of the batch
			s.logger.Printf("ERROR: scheduler: job %d tenant %d: %v", job.ID, job.TenantID, err)
		}
		if s.metrics != nil {
			s.metrics.JobsProcessed.Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.PollsTotal.Inc()
		s.metrics.PendingRecipients.Set(float64(pending))
	}
}

// processJob drives one due job through a dispatch pass and refreshes its
// derived status. Returns the number of pending recipients it saw.
func (s *BroadcastScheduler) processJob(ctx context.Context, job *models.BroadcastJob) (int64, error) {
	recipients, err := s.recipients.ListPendingDue(ctx, job.ID, job.TenantID, utils.UTCNow())
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		// nothing left to attempt: settle the derived status
		_, err := s.aggregator.Refresh(ctx, job.ID, job.TenantID)
		return 0, err
	}

	var tpl *models.MessageTemplate
	if job.Kind == models.MessageKindTemplate {
		if job.TemplateID == nil {
			return int64(len(recipients)), fmt.Errorf("template job has no template id")
		}
		tpl, err = s.templates.ByKey(ctx, *job.TemplateID, job.TenantID)
		if err != nil {
			return int64(len(recipients)), err
		}
	}

	sender := message.Sender{}
	if u, err := s.users.ByID(ctx, job.TenantID); err == nil && u != nil {
		sender.FullName = u.FullName()
		sender.Email = u.Email
		if u.ContactNumber != nil {
			sender.ContactNumber = *u.ContactNumber
		}
	}

	if s.queue != nil {
		s.enqueueAll(ctx, job, recipients)
	} else {
		s.dispatchAll(ctx, job, recipients, tpl, sender)
	}

	if _, err := s.aggregator.Refresh(ctx, job.ID, job.TenantID); err != nil {
		return int64(len(recipients)), err
	}
	return int64(len(recipients)), nil
}

// enqueueAll hands every eligible recipient to the queue. The row's next
// attempt mark is cleared on success so the workers own the schedule; an
// enqueue failure postpones the row without consuming its retry budget.
func (s *BroadcastScheduler) enqueueAll(ctx context.Context, job *models.BroadcastJob, recipients []*models.Recipient) {
	for _, rec := range recipients {
		task := DeliveryTask{JobID: job.ID, Nokey: rec.Nokey, TenantID: job.TenantID}
		if err := s.queue.Publish(ctx, task); err != nil {
			s.logger.Printf("ERROR: scheduler: enqueue job %d nokey %d: %v", job.ID, rec.Nokey, err)
			if s.metrics != nil {
				s.metrics.EnqueueFailures.Inc()
			}
			if err := s.recipients.Postpone(ctx, job.ID, rec.Nokey, job.TenantID, utils.UTCNowAdd(s.policy.PostponeDelay())); err != nil {
				s.logger.Printf("ERROR: scheduler: postpone job %d nokey %d: %v", job.ID, rec.Nokey, err)
			}
			continue
		}
		if err := s.recipients.ClearNextAttempt(ctx, job.ID, rec.Nokey, job.TenantID); err != nil {
			s.logger.Printf("ERROR: scheduler: clear next attempt job %d nokey %d: %v", job.ID, rec.Nokey, err)
		}
	}
}

// dispatchAll sends a job's recipients one at a time; each send holds its
// device slot only for the duration of the attempt, so a job never starves
// itself. The limiter guards against other jobs dispatching to the same
// device concurrently; recipients denied admission are postponed without
// consuming a retry.
func (s *BroadcastScheduler) dispatchAll(ctx context.Context, job *models.BroadcastJob, recipients []*models.Recipient, tpl *models.MessageTemplate, sender message.Sender) {
	tenant := strconv.FormatUint(uint64(job.TenantID), 10)
	sess, err := s.sessions.Ensure(ctx, tenant, job.DeviceID)
	if err != nil {
		s.logger.Printf("WARN: scheduler: session for device %s: %v", job.DeviceID, err)
		sess = nil
	}

	for _, rec := range recipients {
		if !s.limiter.TryAcquire(job.DeviceID) {
			if s.metrics != nil {
				s.metrics.LimiterDeferrals.Inc()
			}
			if err := s.recipients.Postpone(ctx, job.ID, rec.Nokey, job.TenantID, utils.UTCNowAdd(s.policy.PostponeDelay())); err != nil {
				s.logger.Printf("ERROR: scheduler: postpone job %d nokey %d: %v", job.ID, rec.Nokey, err)
			}
			continue
		}

		started := time.Now()
		result, _, err := s.dispatcher.DispatchOne(ctx, job, rec, sess, tpl, sender, true)
		s.limiter.Release(job.DeviceID)
		if err != nil {
			s.logger.Printf("ERROR: scheduler: dispatch job %d nokey %d: %v", job.ID, rec.Nokey, err)
		}
		if s.metrics != nil {
			s.metrics.DispatchesTotal.WithLabelValues(result.String()).Inc()
			s.metrics.DispatchDuration.Observe(time.Since(started).Seconds())
		}
	}
}
