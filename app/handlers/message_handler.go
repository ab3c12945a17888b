package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/ibnu-sodik/wage-backend/app/dto"
	"github.com/ibnu-sodik/wage-backend/app/middleware"
	businessflow "github.com/ibnu-sodik/wage-backend/business_flow"
	"github.com/ibnu-sodik/wage-backend/models"
)

// MessageHandlerInterface defines the contract for messaging handlers
type MessageHandlerInterface interface {
	SendLive(c fiber.Ctx) error
	SendTemplated(c fiber.Ctx) error
	ScheduleBroadcast(c fiber.Ctx) error
	JobStatus(c fiber.Ctx) error
	ListJobs(c fiber.Ctx) error
}

// MessageHandler handles messaging HTTP requests
type MessageHandler struct {
	messageFlow businessflow.MessageFlow
	validator   *validator.Validate
}

func NewMessageHandler(messageFlow businessflow.MessageFlow) *MessageHandler {
	return &MessageHandler{
		messageFlow: messageFlow,
		validator:   validator.New(),
	}
}

// SendLive sends a single text immediately over a connected device
func (h *MessageHandler) SendLive(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	var req dto.SendMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "messages/send")
	defer cancel()

	if err := h.messageFlow.SendLive(ctx, tenantID, req.DeviceID, req.To, req.Text); err != nil {
		switch {
		case errors.Is(err, businessflow.ErrDeviceNotFound):
			return errorResponse(c, fiber.StatusNotFound, "Device session not found", "DEVICE_NOT_FOUND", nil)
		case errors.Is(err, businessflow.ErrDeviceNotConnected):
			return errorResponse(c, fiber.StatusConflict, "Device is not connected", "DEVICE_NOT_CONNECTED", nil)
		default:
			return errorResponse(c, fiber.StatusBadGateway, "Failed to send message", "SEND_FAILED", err.Error())
		}
	}
	return successResponse(c, fiber.StatusOK, "Message sent", nil)
}

// SendTemplated renders a stored template and sends it to one recipient
func (h *MessageHandler) SendTemplated(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	var req dto.SendTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "messages/send-template")
	defer cancel()

	err := h.messageFlow.SendTemplated(ctx, tenantID, businessflow.TemplatedSendRequest{
		DeviceID:    req.DeviceID,
		To:          req.To,
		ContactName: req.ContactName,
		TemplateID:  req.TemplateID,
	})
	if err != nil {
		switch {
		case errors.Is(err, businessflow.ErrTemplateNotFound):
			return errorResponse(c, fiber.StatusNotFound, "Message template not found", "TEMPLATE_NOT_FOUND", nil)
		case errors.Is(err, businessflow.ErrDeviceNotFound):
			return errorResponse(c, fiber.StatusNotFound, "Device session not found", "DEVICE_NOT_FOUND", nil)
		case errors.Is(err, businessflow.ErrDeviceNotConnected):
			return errorResponse(c, fiber.StatusConflict, "Device is not connected", "DEVICE_NOT_CONNECTED", nil)
		default:
			return errorResponse(c, fiber.StatusBadGateway, "Failed to send message", "SEND_FAILED", err.Error())
		}
	}
	return successResponse(c, fiber.StatusOK, "Message sent", nil)
}

// ScheduleBroadcast stores a broadcast job for the poll loop to pick up
func (h *MessageHandler) ScheduleBroadcast(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	var req dto.ScheduleBroadcastRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	flowReq := businessflow.BroadcastRequest{
		JobID:       req.JobID,
		DeviceID:    req.DeviceID,
		Kind:        models.MessageKind(req.Kind),
		MessageText: req.MessageText,
		TemplateID:  req.TemplateID,
		DeliveryAt:  req.DeliveryAt,
	}
	for _, r := range req.Recipients {
		flowReq.Recipients = append(flowReq.Recipients, businessflow.BroadcastRecipient{
			Nokey:         r.Nokey,
			ContactNumber: r.ContactNumber,
			ContactName:   r.ContactName,
			DeviceName:    r.DeviceName,
		})
	}

	ctx, cancel := requestContext(c, "messages/broadcast")
	defer cancel()

	job, err := h.messageFlow.ScheduleBroadcast(ctx, tenantID, flowReq)
	if err != nil {
		switch {
		case errors.Is(err, businessflow.ErrJobExists):
			return errorResponse(c, fiber.StatusConflict, "Broadcast job already exists", "JOB_EXISTS", nil)
		case errors.Is(err, businessflow.ErrNoRecipients),
			errors.Is(err, businessflow.ErrMissingMessage),
			errors.Is(err, businessflow.ErrMissingTemplate):
			return errorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_BROADCAST", nil)
		case errors.Is(err, businessflow.ErrTemplateNotFound):
			return errorResponse(c, fiber.StatusNotFound, "Message template not found", "TEMPLATE_NOT_FOUND", nil)
		default:
			return errorResponse(c, fiber.StatusInternalServerError, "Failed to schedule broadcast", "INTERNAL_ERROR", nil)
		}
	}
	return successResponse(c, fiber.StatusCreated, "Broadcast scheduled", job)
}

// JobStatus returns a job header with a live outcome snapshot
func (h *MessageHandler) JobStatus(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}
	jobID, err := strconv.ParseUint(c.Params("jobId"), 10, 32)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid job id", "INVALID_JOB_ID", nil)
	}

	ctx, cancel := requestContext(c, "messages/job-status")
	defer cancel()

	view, err := h.messageFlow.JobStatus(ctx, tenantID, uint(jobID))
	if err != nil {
		if errors.Is(err, businessflow.ErrJobNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "Broadcast job not found", "JOB_NOT_FOUND", nil)
		}
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to read job status", "INTERNAL_ERROR", nil)
	}
	return successResponse(c, fiber.StatusOK, "Broadcast status", view)
}

// ListJobs returns the tenant's broadcast jobs, newest first
func (h *MessageHandler) ListJobs(c fiber.Ctx) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
	}

	var status *models.BroadcastJobStatus
	if s := c.Query("status"); s != "" {
		st := models.BroadcastJobStatus(s)
		if !st.Valid() {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid status filter", "INVALID_STATUS", nil)
		}
		status = &st
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	ctx, cancel := requestContext(c, "messages/jobs")
	defer cancel()

	jobs, err := h.messageFlow.ListJobs(ctx, tenantID, status, limit, offset)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to list jobs", "INTERNAL_ERROR", nil)
	}
	return successResponse(c, fiber.StatusOK, "Broadcast jobs", jobs)
}
