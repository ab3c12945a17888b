package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/app/wa"
	"github.com/ibnu-sodik/wage-backend/models"
	"github.com/ibnu-sodik/wage-backend/repository"
	"github.com/ibnu-sodik/wage-backend/utils"
)

// Sender is the subset of a live session the dispatcher needs
type Sender interface {
	Connected() bool
	Send(ctx context.Context, to string, msg wa.Message) error
}

// SessionProvider resolves the live session for a (tenant, device) pair
type SessionProvider interface {
	Ensure(ctx context.Context, tenant, device string) (Sender, error)
}

// Result classifies one dispatch attempt
type Result int

const (
	ResultSent Result = iota
	ResultRetry
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultSent:
		return "sent"
	case ResultRetry:
		return "retry"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RateWindow paces consecutive sends with a uniform random delay. A zero
// window disables pacing.
type RateWindow struct {
	Min time.Duration
	Max time.Duration
}

// DefaultRateWindow returns the production pacing window
func DefaultRateWindow() RateWindow {
	return RateWindow{Min: 300 * time.Millisecond, Max: time.Second}
}

// Dispatcher performs a single recipient delivery attempt and persists its
// outcome. It is shared by the inline poll path and the queue workers so
// both apply identical retry semantics.
type Dispatcher struct {
	recipients repository.RecipientRepository
	builder    *message.Builder
	policy     RetryPolicy
	rate       RateWindow
}

func NewDispatcher(recipients repository.RecipientRepository, builder *message.Builder, policy RetryPolicy, rate RateWindow) *Dispatcher {
	return &Dispatcher{recipients: recipients, builder: builder, policy: policy, rate: rate}
}

// pace sleeps a random duration inside the rate window, honoring ctx
func (d *Dispatcher) pace(ctx context.Context) error {
	if d.rate.Max <= 0 || d.rate.Max < d.rate.Min {
		return nil
	}
	delay := d.rate.Min
	if span := d.rate.Max - d.rate.Min; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DispatchOne attempts delivery to a single recipient and records the
// outcome on the row. With scheduleInRow the backoff mark is written to
// next_attempt_at; otherwise only the error and attempt count are recorded
// and the returned decision carries the delay for the caller's own schedule.
func (d *Dispatcher) DispatchOne(
	ctx context.Context,
	job *models.BroadcastJob,
	rec *models.Recipient,
	sess Sender,
	tpl *models.MessageTemplate,
	sender message.Sender,
	scheduleInRow bool,
) (Result, RetryDecision, error) {
	if err := d.pace(ctx); err != nil {
		return ResultRetry, RetryDecision{}, err
	}

	sendErr := d.send(ctx, job, rec, sess, tpl, sender)
	now := utils.UTCNow()

	if sendErr == nil {
		if err := d.recipients.MarkSent(ctx, job.ID, rec.Nokey, job.TenantID, now); err != nil {
			return ResultSent, RetryDecision{}, err
		}
		return ResultSent, RetryDecision{}, nil
	}

	dec := d.policy.Next(rec.RetryCount)
	if dec.Terminal {
		if err := d.recipients.MarkFailed(ctx, job.ID, rec.Nokey, job.TenantID, sendErr.Error(), dec.RetryCount, now); err != nil {
			return ResultFailed, dec, err
		}
		return ResultFailed, dec, nil
	}

	if scheduleInRow {
		if err := d.recipients.ScheduleRetry(ctx, job.ID, rec.Nokey, job.TenantID, sendErr.Error(), dec.RetryCount, now.Add(dec.Delay)); err != nil {
			return ResultRetry, dec, err
		}
	} else {
		if err := d.recipients.RecordAttempt(ctx, job.ID, rec.Nokey, job.TenantID, sendErr.Error(), dec.RetryCount); err != nil {
			return ResultRetry, dec, err
		}
	}
	return ResultRetry, dec, nil
}

func (d *Dispatcher) send(
	ctx context.Context,
	job *models.BroadcastJob,
	rec *models.Recipient,
	sess Sender,
	tpl *models.MessageTemplate,
	sender message.Sender,
) error {
	var msg wa.Message
	if job.Kind == models.MessageKindTemplate {
		if tpl == nil {
			return fmt.Errorf("job %d references a missing template", job.ID)
		}
		built, err := d.builder.Build(tpl, rec, sender)
		if err != nil {
			return err
		}
		msg = built
	} else {
		text := ""
		if job.MessageText != nil {
			text = *job.MessageText
		}
		msg = d.builder.BuildLive(text, rec, sender)
	}

	if sess == nil || !sess.Connected() {
		return fmt.Errorf("device %s is not connected", job.DeviceID)
	}
	return sess.Send(ctx, utils.NormalizePhone(rec.ContactNumber), msg)
}
