package business_flow

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/ibnu-sodik/wage-backend/app/session"
)

// DeviceStatus is the API view of one device session
type DeviceStatus struct {
	DeviceID       string                `json:"device_id"`
	State          string                `json:"state"`
	PairingCode    string                `json:"pairing_code,omitempty"`
	IdentityNumber string                `json:"identity_number,omitempty"`
	Events         []session.EventRecord `json:"events,omitempty"`
}

// DeviceFlow manages device sessions for a tenant
type DeviceFlow interface {
	Register(ctx context.Context, tenantID uint, deviceID string) (*DeviceStatus, error)
	Status(ctx context.Context, tenantID uint, deviceID string) (*DeviceStatus, error)
	Logout(ctx context.Context, tenantID uint, deviceID string, deleteCredentials bool) error
	List(ctx context.Context, tenantID uint) []*DeviceStatus
}

// DeviceFlowImpl implements DeviceFlow on the session registry
type DeviceFlowImpl struct {
	registry *session.Registry
	logger   *log.Logger
}

func NewDeviceFlow(registry *session.Registry, logger *log.Logger) DeviceFlow {
	return &DeviceFlowImpl{registry: registry, logger: logger}
}

func tenantKey(tenantID uint) string {
	return strconv.FormatUint(uint64(tenantID), 10)
}

func statusOf(s *session.Session) *DeviceStatus {
	return &DeviceStatus{
		DeviceID:       s.DeviceID,
		State:          s.State().String(),
		PairingCode:    s.PairingCode(),
		IdentityNumber: s.IdentityNumber(),
		Events:         s.Events(),
	}
}

// Register ensures a session for the device exists. Calling it again for a
// live device is a no-op that returns the current status, so clients can
// poll it while pairing.
func (f *DeviceFlowImpl) Register(ctx context.Context, tenantID uint, deviceID string) (*DeviceStatus, error) {
	s, err := f.registry.Ensure(ctx, tenantKey(tenantID), deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open device session: %w", err)
	}
	return statusOf(s), nil
}

// Status returns the current session state without creating one
func (f *DeviceFlowImpl) Status(ctx context.Context, tenantID uint, deviceID string) (*DeviceStatus, error) {
	s := f.registry.Get(tenantKey(tenantID), deviceID)
	if s == nil {
		return nil, ErrDeviceNotFound
	}
	return statusOf(s), nil
}

// Logout tears the session down; credentials are deleted when requested so
// the next registration starts a fresh pairing
func (f *DeviceFlowImpl) Logout(ctx context.Context, tenantID uint, deviceID string, deleteCredentials bool) error {
	if !f.registry.Remove(ctx, tenantKey(tenantID), deviceID, deleteCredentials) {
		return ErrDeviceNotFound
	}
	f.logger.Printf("device %s logged out by tenant %d", deviceID, tenantID)
	return nil
}

// List returns the tenant's live sessions
func (f *DeviceFlowImpl) List(ctx context.Context, tenantID uint) []*DeviceStatus {
	tenant := tenantKey(tenantID)
	var out []*DeviceStatus
	for _, s := range f.registry.All() {
		if s.Tenant == tenant {
			out = append(out, statusOf(s))
		}
	}
	return out
}
