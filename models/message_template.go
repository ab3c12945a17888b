package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TemplateKind is the rendering mode of a stored message template
type TemplateKind string

const (
	TemplateKindPlainText         TemplateKind = "plain-text"
	TemplateKindTextWithMedia     TemplateKind = "text-with-media"
	TemplateKindInteractiveButton TemplateKind = "interactive-button"
)

// Valid checks if the template kind is known
func (k TemplateKind) Valid() bool {
	switch k {
	case TemplateKindPlainText, TemplateKindTextWithMedia, TemplateKindInteractiveButton:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for TemplateKind
func (k *TemplateKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*k = TemplateKind(v)
	case []byte:
		*k = TemplateKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into TemplateKind", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for TemplateKind
func (k TemplateKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid TemplateKind: %s", k)
	}
	return string(k), nil
}

// ButtonSpec is one interactive button as stored in the template JSON.
// Exactly one of Reply, URL, Call is set, matching the Type field.
type ButtonSpec struct {
	Type  string           `json:"type"` // reply, url, call
	Reply *ReplyButtonSpec `json:"reply,omitempty"`
	URL   *URLButtonSpec   `json:"url,omitempty"`
	Call  *CallButtonSpec  `json:"call,omitempty"`
}

type ReplyButtonSpec struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type URLButtonSpec struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type CallButtonSpec struct {
	Title       string `json:"title"`
	PhoneNumber string `json:"phone_number"`
}

// ButtonOptions is the decoded form of the template buttons column
type ButtonOptions struct {
	Footer  string       `json:"footer,omitempty"`
	Buttons []ButtonSpec `json:"buttons,omitempty"`
}

// MessageTemplate is a stored, tenant-scoped message template
type MessageTemplate struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	TenantID  uint            `gorm:"not null;index:idx_message_templates_tenant" json:"tenant_id"`
	Kind      TemplateKind    `gorm:"size:32;not null" json:"kind"`
	Message   string          `gorm:"type:text;not null" json:"message"`
	FileURL   *string         `gorm:"size:512" json:"file_url,omitempty"`
	Buttons   json.RawMessage `gorm:"type:jsonb" json:"buttons,omitempty"`
	CreatedAt time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (MessageTemplate) TableName() string {
	return "message_templates"
}

// DecodeButtons parses the buttons column; a missing column yields empty options.
func (t *MessageTemplate) DecodeButtons() (ButtonOptions, error) {
	var opts ButtonOptions
	if len(t.Buttons) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(t.Buttons, &opts); err != nil {
		return opts, fmt.Errorf("failed to decode template buttons: %w", err)
	}
	return opts, nil
}
