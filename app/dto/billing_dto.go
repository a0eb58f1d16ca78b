package dto

import (
	"time"

	"sms-backend/models"
)

// ListBillingRecordsRequest represents the request to list billing records
type ListBillingRecordsRequest struct {
	CustomerID uint    `json:"-"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=pending processing paid failed cancelled"`
	Page       int     `json:"page" validate:"min=1"`
	PageSize   int     `json:"page_size" validate:"min=1,max=100"`
}

// BillingRecordResponse represents one billing record in responses
type BillingRecordResponse struct {
	UUID               string                  `json:"uuid"`
	PeriodStart        string                  `json:"period_start"`
	PeriodEnd          string                  `json:"period_end"`
	TotalMessages      int                     `json:"total_messages"`
	SuccessfulMessages int                     `json:"successful_messages"`
	FailedMessages     int                     `json:"failed_messages"`
	TotalCost          float64                 `json:"total_cost"`
	Currency           string                  `json:"currency"`
	Breakdown          []models.BreakdownEntry `json:"breakdown"`
	Status             string                  `json:"status"`
	BillingType        string                  `json:"billing_type"`
	PaidDate           *string                 `json:"paid_date,omitempty"`
	FailureReason      *string                 `json:"failure_reason,omitempty"`
	CreatedAt          string                  `json:"created_at"`
}

// ListBillingRecordsResponse represents the paginated billing record listing
type ListBillingRecordsResponse struct {
	Items []BillingRecordResponse `json:"items"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
}

// ApproveBillingRecordResponse acknowledges a manual charge approval
type ApproveBillingRecordResponse struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
	Status  string `json:"status"`
}

// ToBillingRecordResponse converts a billing record model to its response shape
func ToBillingRecordResponse(r *models.BillingRecord) BillingRecordResponse {
	resp := BillingRecordResponse{
		UUID:               r.UUID.String(),
		PeriodStart:        r.PeriodStart.Format(time.RFC3339),
		PeriodEnd:          r.PeriodEnd.Format(time.RFC3339),
		TotalMessages:      r.TotalMessages,
		SuccessfulMessages: r.SuccessfulMessages,
		FailedMessages:     r.FailedMessages,
		TotalCost:          r.TotalCost,
		Currency:           r.Currency,
		Breakdown:          r.Breakdown,
		Status:             string(r.Status),
		BillingType:        string(r.BillingType),
		FailureReason:      r.FailureReason,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
	}
	if r.PaidDate != nil {
		s := r.PaidDate.Format(time.RFC3339)
		resp.PaidDate = &s
	}
	return resp
}
