package dto

// RegisterDeviceRequest starts or resumes a device session
type RegisterDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required,min=1,max=64"`
}

// LogoutDeviceRequest tears a device session down
type LogoutDeviceRequest struct {
	DeviceID          string `json:"device_id" validate:"required,min=1,max=64"`
	DeleteCredentials bool   `json:"delete_credentials"`
}
