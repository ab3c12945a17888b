package queue

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/app/scheduler"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/repository"
)

// WorkerPool consumes delivery tasks and applies the same dispatch
// semantics as the inline scheduler path. Retries are parked in the delayed
// set instead of the recipient row.
type WorkerPool struct {
	queue       *RedisQueue
	jobs        repository.BroadcastJobRepository
	recipients  repository.RecipientRepository
	templates   repository.TemplateRepository
	users       repository.UserRepository
	sessions    scheduler.SessionProvider
	dispatcher  *scheduler.Dispatcher
	aggregator  scheduler.StatusAggregator
	concurrency int
	logger      *log.Logger

	wg sync.WaitGroup
}

func NewWorkerPool(
	queue *RedisQueue,
	jobs repository.BroadcastJobRepository,
	recipients repository.RecipientRepository,
	templates repository.TemplateRepository,
	users repository.UserRepository,
	sessions scheduler.SessionProvider,
	dispatcher *scheduler.Dispatcher,
	aggregator scheduler.StatusAggregator,
	concurrency int,
	logger *log.Logger,
) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &WorkerPool{
		queue:       queue,
		jobs:        jobs,
		recipients:  recipients,
		templates:   templates,
		users:       users,
		sessions:    sessions,
		dispatcher:  dispatcher,
		aggregator:  aggregator,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start launches the mover and worker goroutines; they stop when ctx is
// cancelled
func (w *WorkerPool) Start(ctx context.Context) {
	w.logger.Printf("queue workers started (concurrency=%d)", w.concurrency)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.queue.MoveDue(ctx); err != nil && ctx.Err() == nil {
					w.logger.Printf("ERROR: queue: move due tasks: %v", err)
				}
			}
		}
	}()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx)
		}()
	}
}

// Wait blocks until every worker goroutine has exited
func (w *WorkerPool) Wait() {
	w.wg.Wait()
}

func (w *WorkerPool) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := w.queue.Pop(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Printf("ERROR: queue: pop: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}
		w.process(ctx, *task)
	}
}

// process delivers one task. Delivery is at-least-once, so rows that are
// already terminal are dropped silently.
func (w *WorkerPool) process(ctx context.Context, task scheduler.DeliveryTask) {
	rec, err := w.recipients.ByKey(ctx, task.JobID, task.Nokey, task.TenantID)
	if err != nil {
		w.logger.Printf("ERROR: queue: load recipient job %d nokey %d: %v", task.JobID, task.Nokey, err)
		return
	}
	if rec == nil || rec.Outcome.Terminal() {
		return
	}

	job, err := w.jobs.ByKey(ctx, task.JobID, task.TenantID)
	if err != nil || job == nil {
		w.logger.Printf("ERROR: queue: load job %d: %v", task.JobID, err)
		return
	}

	var tpl *models.MessageTemplate
	if job.Kind == models.MessageKindTemplate && job.TemplateID != nil {
		tpl, err = w.templates.ByKey(ctx, *job.TemplateID, job.TenantID)
		if err != nil {
			w.logger.Printf("ERROR: queue: load template %d: %v", *job.TemplateID, err)
			return
		}
	}

	sender := message.Sender{}
	if u, err := w.users.ByID(ctx, job.TenantID); err == nil && u != nil {
		sender.FullName = u.FullName()
		sender.Email = u.Email
		if u.ContactNumber != nil {
			sender.ContactNumber = *u.ContactNumber
		}
	}

	tenant := strconv.FormatUint(uint64(job.TenantID), 10)
	sess, err := w.sessions.Ensure(ctx, tenant, job.DeviceID)
	if err != nil {
		w.logger.Printf("WARN: queue: session for device %s: %v", job.DeviceID, err)
		sess = nil
	}

	result, dec, err := w.dispatcher.DispatchOne(ctx, job, rec, sess, tpl, sender, false)
	if err != nil {
		w.logger.Printf("ERROR: queue: dispatch job %d nokey %d: %v", task.JobID, task.Nokey, err)
		return
	}

	if result == scheduler.ResultRetry {
		if err := w.queue.PublishDelayed(ctx, task, dec.Delay); err != nil {
			w.logger.Printf("ERROR: queue: delay task job %d nokey %d: %v", task.JobID, task.Nokey, err)
			// fall back to the row schedule so the poll loop retries it
			if err := w.recipients.Postpone(ctx, task.JobID, task.Nokey, task.TenantID, time.Now().UTC().Add(dec.Delay)); err != nil {
				w.logger.Printf("ERROR: queue: postpone job %d nokey %d: %v", task.JobID, task.Nokey, err)
			}
		}
	}

	if _, err := w.aggregator.Refresh(ctx, job.ID, job.TenantID); err != nil {
		w.logger.Printf("ERROR: queue: refresh job %d status: %v", job.ID, err)
	}
}
