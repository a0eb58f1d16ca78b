package dto

import "time"

// DeliveryReportRequest is the inbound delivery-report callback posted by a
// gateway. MessageID is the gateway-assigned id returned at send time.
type DeliveryReportRequest struct {
	MessageID   string     `json:"message_id" validate:"required"`
	Status      string     `json:"status" validate:"required,oneof=delivered undelivered failed"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ErrorDetail *string    `json:"error_detail,omitempty"`
}

// DeliveryReportResponse acknowledges a delivery-report callback
type DeliveryReportResponse struct {
	Message string `json:"message"`
}
