package business_flow

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrDeviceNotFound     = errors.New("device session not found")
	ErrDeviceNotConnected = errors.New("device is not connected")
	ErrTemplateNotFound   = errors.New("message template not found")
	ErrJobNotFound        = errors.New("broadcast job not found")
	ErrJobExists          = errors.New("broadcast job already exists")
	ErrNoRecipients       = errors.New("broadcast has no recipients")
	ErrMissingMessage     = errors.New("live broadcast requires message text")
	ErrMissingTemplate    = errors.New("template broadcast requires a template id")
)
