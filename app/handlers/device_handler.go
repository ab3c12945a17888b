package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/ibnu-sodik/wage-backend/app/dto"
	"github.com/ibnu-sodik/wage-backend/app/middleware"
	businessflow "github.com/ibnu-sodik/wage-backend/business_flow"
)

// DeviceHandlerInterface defines the contract for device session handlers
type DeviceHandlerInterface interface {
	Register(c fiber.Ctx) error
	Status(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
}

// DeviceHandler handles device session HTTP requests
type DeviceHandler struct {
	deviceFlow businessflow.DeviceFlow
	validator  *validator.Validate
}

func NewDeviceHandler(deviceFlow businessflow.DeviceFlow) *DeviceHandler {
	return &DeviceHandler{
		deviceFlow: deviceFlow,
		validator:  validator.New(),
	}
}

// Register opens (or resumes) a device session. While pairing, the response
// carries the current pairing code; clients poll until connected.
func (h *DeviceHandler) Register(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	var req dto.RegisterDeviceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "devices/register")
	defer cancel()

	status, err := h.deviceFlow.Register(ctx, tenantID, req.DeviceID)
	if err != nil {
		return errorResponse(c, fiber.StatusBadGateway, "Failed to open device session", "SESSION_OPEN_FAILED", err.Error())
	}
	return successResponse(c, fiber.StatusOK, "Device session ready", status)
}

// Status returns the session state for one device
func (h *DeviceHandler) Status(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}
	deviceID := c.Params("deviceId")
	if deviceID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Device id is required", "MISSING_DEVICE_ID", nil)
	}

	ctx, cancel := requestContext(c, "devices/status")
	defer cancel()

	status, err := h.deviceFlow.Status(ctx, tenantID, deviceID)
	if err != nil {
		if errors.Is(err, businessflow.ErrDeviceNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "Device session not found", "DEVICE_NOT_FOUND", nil)
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to read device status", "INTERNAL_ERROR", nil)
	}
	return successResponse(c, fiber.StatusOK, "Device status", status)
}

// List returns every live session of the tenant
func (h *DeviceHandler) List(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	ctx, cancel := requestContext(c, "devices/list")
	defer cancel()

	return successResponse(c, fiber.StatusOK, "Device sessions", h.deviceFlow.List(ctx, tenantID))
}

// Logout tears a device session down
func (h *DeviceHandler) Logout(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	var req dto.LogoutDeviceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "devices/logout")
	defer cancel()

	if err := h.deviceFlow.Logout(ctx, tenantID, req.DeviceID, req.DeleteCredentials); err != nil {
		if errors.Is(err, businessflow.ErrDeviceNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "Device session not found", "DEVICE_NOT_FOUND", nil)
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to log device out", "INTERNAL_ERROR", nil)
	}
	return successResponse(c, fiber.StatusOK, "Device logged out", nil)
}
