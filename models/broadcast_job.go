// Package models contains the persistent data model for broadcast delivery.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// BroadcastJobStatus represents the derived status of a broadcast job
type BroadcastJobStatus string

const (
	BroadcastStatusScheduled BroadcastJobStatus = "scheduled"
	BroadcastStatusSent      BroadcastJobStatus = "sent"
	BroadcastStatusFailed    BroadcastJobStatus = "failed"
)

// String returns the string representation of the status
func (s BroadcastJobStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BroadcastJobStatus) Valid() bool {
	switch s {
	case BroadcastStatusScheduled, BroadcastStatusSent, BroadcastStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for BroadcastJobStatus
func (s *BroadcastJobStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = BroadcastJobStatus(v)
	case []byte:
		*s = BroadcastJobStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BroadcastJobStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for BroadcastJobStatus
func (s BroadcastJobStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BroadcastJobStatus: %s", s)
	}
	return string(s), nil
}

// MessageKind distinguishes a live text payload from a stored template
type MessageKind string

const (
	MessageKindLive     MessageKind = "live"
	MessageKindTemplate MessageKind = "template"
)

// Valid checks if the message kind is known
func (k MessageKind) Valid() bool {
	return k == MessageKindLive || k == MessageKindTemplate
}

// BroadcastJob is the header row of one scheduled broadcast run. Its status
// is a derived cache over the recipient outcomes, refreshed after every
// dispatch batch; the recipient rows stay authoritative.
type BroadcastJob struct {
	ID          uint               `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TenantID    uint               `gorm:"primaryKey;autoIncrement:false;index:idx_broadcast_jobs_tenant" json:"tenant_id"`
	DeviceID    string             `gorm:"size:64;not null" json:"device_id"`
	Kind        MessageKind        `gorm:"size:16;not null;default:'live'" json:"kind"`
	MessageText *string            `gorm:"type:text" json:"message_text,omitempty"`
	TemplateID  *uint              `json:"template_id,omitempty"`
	DeliveryAt  time.Time          `gorm:"not null;index:idx_broadcast_jobs_delivery_at" json:"delivery_at"`
	Status      BroadcastJobStatus `gorm:"size:16;not null;default:'scheduled';index:idx_broadcast_jobs_status" json:"status"`
	CreatedAt   time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (BroadcastJob) TableName() string {
	return "broadcast_jobs"
}

// BroadcastJobFilter represents filter criteria for broadcast jobs
type BroadcastJobFilter struct {
	ID         *uint               `json:"id,omitempty"`
	TenantID   *uint               `json:"tenant_id,omitempty"`
	DeviceID   *string             `json:"device_id,omitempty"`
	Status     *BroadcastJobStatus `json:"status,omitempty"`
	DueBefore  *time.Time          `json:"due_before,omitempty"`
	DueAfter   *time.Time          `json:"due_after,omitempty"`
	Kind       *MessageKind        `json:"kind,omitempty"`
	TemplateID *uint               `json:"template_id,omitempty"`
}

// OutcomeCounts is a snapshot of recipient outcomes for one job
type OutcomeCounts struct {
	SentCount  int64 `json:"sent_count"`
	FailCount  int64 `json:"fail_count"`
	TotalCount int64 `json:"total_count"`
}

// ComputeBroadcastStatus derives the job status from a recipient outcome
// snapshot. The function is pure and order-independent: any permutation of
// the same snapshot yields the same status. A job with at least one sent
// recipient counts as sent even while others are still pending.
func ComputeBroadcastStatus(c OutcomeCounts) BroadcastJobStatus {
	switch {
	case c.TotalCount == 0:
		return BroadcastStatusSent
	case c.SentCount == c.TotalCount:
		return BroadcastStatusSent
	case c.FailCount == c.TotalCount:
		return BroadcastStatusFailed
	case c.SentCount > 0:
		return BroadcastStatusSent
	default:
		return BroadcastStatusScheduled
	}
}
