package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v3"

	"sms-backend/app/dto"
	businessflow "sms-backend/business_flow"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// BillingHandlerInterface defines the contract for billing handlers
type BillingHandlerInterface interface {
	ListBillingRecords(c fiber.Ctx) error
	ApproveBillingRecord(c fiber.Ctx) error
}

// BillingHandler exposes the operator-facing billing surface: the record
// listing (including failures, which are never silently dropped) and manual
// charge approval for customers without auto-processing.
type BillingHandler struct {
	billingRepo repository.BillingRecordRepository
	chargeFlow  businessflow.ChargeFlow
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingRepo repository.BillingRecordRepository, chargeFlow businessflow.ChargeFlow) *BillingHandler {
	return &BillingHandler{
		billingRepo: billingRepo,
		chargeFlow:  chargeFlow,
	}
}

func (h *BillingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *BillingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ListBillingRecords returns a page of the customer's billing records
func (h *BillingHandler) ListBillingRecords(c fiber.Ctx) error {
	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)
	if page < 1 || pageSize < 1 || pageSize > 100 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination", "VALIDATION_ERROR", nil)
	}

	filter := models.BillingRecordFilter{CustomerID: &customerID}
	if raw := c.Query("status"); raw != "" {
		status := models.BillingRecordStatus(raw)
		if !status.Valid() {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid status filter", "VALIDATION_ERROR", nil)
		}
		filter.Status = &status
	}

	ctx := h.createRequestContext(c, "/api/v1/billing/records")
	records, err := h.billingRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		log.Println("Billing record listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Billing record listing failed", "BILLING_LIST_FAILED", nil)
	}
	total, err := h.billingRepo.Count(ctx, filter)
	if err != nil {
		log.Println("Billing record count failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Billing record listing failed", "BILLING_LIST_FAILED", nil)
	}

	items := make([]dto.BillingRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.ToBillingRecordResponse(r))
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Billing records retrieved successfully", dto.ListBillingRecordsResponse{
		Items: items,
		Total: total,
		Page:  page,
	})
}

// ApproveBillingRecord pushes one pending record through the charge flow.
// This is the manual path for customers with auto-processing disabled.
func (h *BillingHandler) ApproveBillingRecord(c fiber.Ctx) error {
	recordUUID := c.Params("uuid")
	if recordUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Billing record UUID is required", "MISSING_RECORD_UUID", nil)
	}

	customerID, ok := customerIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	ctx := h.createRequestContext(c, "/api/v1/billing/records/"+recordUUID+"/approve")

	parsed, err := uuidFromParam(recordUUID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid billing record UUID", "INVALID_RECORD_UUID", nil)
	}
	records, err := h.billingRepo.ByFilter(ctx, models.BillingRecordFilter{UUID: parsed, CustomerID: &customerID}, "id ASC", 1, 0)
	if err != nil {
		log.Println("Billing record lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Billing record lookup failed", "BILLING_LOOKUP_FAILED", nil)
	}
	if len(records) == 0 {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Billing record not found", "BILLING_RECORD_NOT_FOUND", nil)
	}

	record := records[0]
	if record.Status.IsTerminal() {
		return h.ErrorResponse(c, fiber.StatusConflict, "Billing record is already settled", "BILLING_RECORD_TERMINAL", nil)
	}

	if err := h.chargeFlow.ProcessRecord(ctx, record); err != nil {
		if businessflow.IsLedgerUnavailable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Ledger unavailable, record left pending", "LEDGER_UNAVAILABLE", nil)
		}
		log.Println("Billing record approval failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Billing record approval failed", "BILLING_APPROVAL_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Billing record processed", dto.ApproveBillingRecordResponse{
		Message: "Billing record processed",
		UUID:    record.UUID.String(),
		Status:  string(record.Status),
	})
}

func (h *BillingHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), utils.DefaultRequestTimeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
