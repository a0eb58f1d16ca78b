// Package dto contains request and response shapes for the HTTP API
package dto

import (
	"time"

	"sms-backend/models"
)

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	CustomerID     uint       `json:"-"`
	Name           string     `json:"name" validate:"required,min=1,max=255"`
	ContactListID  uint       `json:"contact_list_id" validate:"required"`
	MessageContent string     `json:"message_content" validate:"required,min=1"`
	SenderID       string     `json:"sender_id" validate:"required,max=20"`
	Country        *string    `json:"country,omitempty" validate:"omitempty,len=2"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
}

// CampaignResponse represents the campaign state in responses
type CampaignResponse struct {
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	ContactCount   int     `json:"contact_count"`
	SentCount      int     `json:"sent_count"`
	FailedCount    int     `json:"failed_count"`
	DeliveredCount int     `json:"delivered_count"`
	Progress       int     `json:"progress"`
	EstimatedCost  float64 `json:"estimated_cost"`
	ActualCost     float64 `json:"actual_cost"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	ScheduledAt    *string `json:"scheduled_at,omitempty"`
	StartedAt      *string `json:"started_at,omitempty"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// ListCampaignsRequest represents the request to list campaigns
type ListCampaignsRequest struct {
	CustomerID uint    `json:"-"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled sending paused completed failed stopped archived"`
	Page       int     `json:"page" validate:"min=1"`
	PageSize   int     `json:"page_size" validate:"min=1,max=100"`
}

// ListCampaignsResponse represents the paginated campaign listing
type ListCampaignsResponse struct {
	Items []CampaignResponse `json:"items"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
}

// ToCampaignResponse converts a campaign model to its response shape
func ToCampaignResponse(c *models.Campaign) CampaignResponse {
	resp := CampaignResponse{
		UUID:           c.UUID.String(),
		Name:           c.Name,
		Status:         string(c.Status),
		ContactCount:   c.ContactCount,
		SentCount:      c.SentCount,
		FailedCount:    c.FailedCount,
		DeliveredCount: c.DeliveredCount,
		Progress:       c.Progress,
		EstimatedCost:  c.EstimatedCost,
		ActualCost:     c.ActualCost,
		ErrorMessage:   c.ErrorMessage,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
	if c.ScheduledAt != nil {
		s := c.ScheduledAt.Format(time.RFC3339)
		resp.ScheduledAt = &s
	}
	if c.StartedAt != nil {
		s := c.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if c.CompletedAt != nil {
		s := c.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
