package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// RecipientOutcome is the delivery outcome of a single recipient row.
// Pending rows may move to sent or failed; both are terminal.
type RecipientOutcome int16

const (
	OutcomePending RecipientOutcome = 0
	OutcomeSent    RecipientOutcome = 1
	OutcomeFailed  RecipientOutcome = 2
)

// Valid checks if the outcome is a known value
func (o RecipientOutcome) Valid() bool {
	return o == OutcomePending || o == OutcomeSent || o == OutcomeFailed
}

// Terminal reports whether the outcome can never change again
func (o RecipientOutcome) Terminal() bool {
	return o == OutcomeSent || o == OutcomeFailed
}

// Scan implements the sql.Scanner interface for RecipientOutcome
func (o *RecipientOutcome) Scan(value any) error {
	if value == nil {
		*o = OutcomePending
		return nil
	}
	switch v := value.(type) {
	case int64:
		*o = RecipientOutcome(v)
	case []byte:
		if len(v) == 1 && v[0] >= '0' && v[0] <= '2' {
			*o = RecipientOutcome(v[0] - '0')
			return nil
		}
		return fmt.Errorf("cannot scan %q into RecipientOutcome", string(v))
	default:
		return fmt.Errorf("cannot scan %T into RecipientOutcome", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for RecipientOutcome
func (o RecipientOutcome) Value() (driver.Value, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid RecipientOutcome: %d", o)
	}
	return int64(o), nil
}

// Recipient is one (job, recipient) delivery record with its own retry
// state. Rows are created together with the job header and mutated only by
// the dispatch step.
type Recipient struct {
	JobID         uint             `gorm:"primaryKey;autoIncrement:false;column:job_id" json:"job_id"`
	Nokey         uint             `gorm:"primaryKey;autoIncrement:false" json:"nokey"`
	TenantID      uint             `gorm:"primaryKey;autoIncrement:false" json:"tenant_id"`
	ContactNumber string           `gorm:"size:32;not null" json:"contact_number"`
	ContactName   string           `gorm:"size:128" json:"contact_name"`
	DeviceName    string           `gorm:"size:64" json:"device_name"`
	Outcome       RecipientOutcome `gorm:"not null;default:0;index:idx_recipients_outcome" json:"outcome"`
	LastError     *string          `gorm:"type:text" json:"last_error,omitempty"`
	RetryCount    int              `gorm:"not null;default:0" json:"retry_count"`
	NextAttemptAt *time.Time       `gorm:"index:idx_recipients_next_attempt_at" json:"next_attempt_at,omitempty"`
	DeliveredAt   *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt     time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (Recipient) TableName() string {
	return "broadcast_recipients"
}

// Eligible reports whether the row may be attempted at the given instant:
// still pending and either never postponed or past its next-attempt mark.
func (r *Recipient) Eligible(now time.Time) bool {
	if r.Outcome != OutcomePending {
		return false
	}
	return r.NextAttemptAt == nil || !r.NextAttemptAt.After(now)
}

// RecipientFilter represents filter criteria for recipient rows
type RecipientFilter struct {
	JobID       *uint             `json:"job_id,omitempty"`
	TenantID    *uint             `json:"tenant_id,omitempty"`
	Outcome     *RecipientOutcome `json:"outcome,omitempty"`
	DueBefore   *time.Time        `json:"due_before,omitempty"`
	ContactLike *string           `json:"contact_like,omitempty"`
}
