package handlers

import (
	"context"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"sms-backend/app/dto"
	businessflow "sms-backend/business_flow"
	"sms-backend/utils"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	DeliveryReport(c fiber.Ctx) error
}

// WebhookHandler receives inbound gateway callbacks
type WebhookHandler struct {
	deliveryFlow businessflow.DeliveryFlow
	validator    *validator.Validate
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(deliveryFlow businessflow.DeliveryFlow) *WebhookHandler {
	return &WebhookHandler{
		deliveryFlow: deliveryFlow,
		validator:    validator.New(),
	}
}

// DeliveryReport applies one delivery-report callback. Reports that match no
// message are logged and acknowledged anyway; gateways retry on non-2xx and
// an unknown id will never start matching.
func (h *WebhookHandler) DeliveryReport(c fiber.Ctx) error {
	var req dto.DeliveryReportRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request body",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST", Details: err.Error()},
		})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Validation failed",
			Error:   dto.ErrorDetail{Code: "VALIDATION_ERROR"},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), utils.DefaultRequestTimeout)
	defer cancel()

	if err := h.deliveryFlow.ApplyDeliveryReport(ctx, &req); err != nil {
		log.Printf("delivery report for %s discarded: %v", req.MessageID, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Delivery report accepted",
		Data:    dto.DeliveryReportResponse{Message: "accepted"},
	})
}
