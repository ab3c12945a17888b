package dto

import "time"

// SendMessageRequest sends a single live text over a connected device
type SendMessageRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	To       string `json:"to" validate:"required,min=6,max=20"`
	Text     string `json:"text" validate:"required,max=4096"`
}

// SendTemplateRequest renders a stored template for one recipient and sends
// it immediately
type SendTemplateRequest struct {
	DeviceID    string `json:"device_id" validate:"required"`
	To          string `json:"to" validate:"required,min=6,max=20"`
	ContactName string `json:"contact_name" validate:"max=128"`
	TemplateID  uint   `json:"template_id" validate:"required"`
}

// BroadcastRecipientDTO is one target row of a broadcast request
type BroadcastRecipientDTO struct {
	Nokey         uint   `json:"nokey"`
	ContactNumber string `json:"contact_number" validate:"required,min=6,max=20"`
	ContactName   string `json:"contact_name" validate:"max=128"`
	DeviceName    string `json:"device_name" validate:"max=64"`
}

// ScheduleBroadcastRequest creates a broadcast job with its recipients
type ScheduleBroadcastRequest struct {
	JobID       uint                    `json:"job_id" validate:"required"`
	DeviceID    string                  `json:"device_id" validate:"required"`
	Kind        string                  `json:"kind" validate:"required,oneof=live template"`
	MessageText *string                 `json:"message_text,omitempty" validate:"omitempty,max=4096"`
	TemplateID  *uint                   `json:"template_id,omitempty"`
	DeliveryAt  time.Time               `json:"delivery_at" validate:"required"`
	Recipients  []BroadcastRecipientDTO `json:"recipients" validate:"required,min=1,max=1000,dive"`
}
