package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusStopped   CampaignStatus = "stopped"
	CampaignStatusArchived  CampaignStatus = "archived"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusSending,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed,
		CampaignStatusStopped, CampaignStatusArchived:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal state
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusStopped, CampaignStatusArchived:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Campaign represents a bulk SMS campaign in the database
type Campaign struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	CustomerID uint           `gorm:"not null;index:idx_campaigns_customer_id" json:"customer_id"`
	Status     CampaignStatus `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`

	Name           string  `gorm:"size:255;not null" json:"name"`
	ContactListID  uint    `gorm:"not null" json:"contact_list_id"`
	TemplateID     *uint   `json:"template_id,omitempty"`
	MessageContent string  `gorm:"type:text;not null" json:"message_content"`
	SenderID       string  `gorm:"size:20;not null" json:"sender_id"`
	ProviderID     *uint   `gorm:"index:idx_campaigns_provider_id" json:"provider_id,omitempty"`
	Country        *string `gorm:"size:2" json:"country,omitempty"`

	ContactCount   int `gorm:"not null;default:0" json:"contact_count"`
	SentCount      int `gorm:"not null;default:0" json:"sent_count"`
	FailedCount    int `gorm:"not null;default:0" json:"failed_count"`
	DeliveredCount int `gorm:"not null;default:0" json:"delivered_count"`

	EstimatedCost float64 `gorm:"type:numeric(14,6);not null;default:0" json:"estimated_cost"`
	ActualCost    float64 `gorm:"type:numeric(14,6);not null;default:0" json:"actual_cost"`
	Progress      int     `gorm:"not null;default:0" json:"progress"`

	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	ScheduledAt  *time.Time `gorm:"index:idx_campaigns_scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	Messages []Message `gorm:"foreignKey:CampaignID" json:"messages,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch newStatus {
	case CampaignStatusSending:
		return c.Status == CampaignStatusDraft ||
			c.Status == CampaignStatusPaused ||
			c.Status == CampaignStatusScheduled
	case CampaignStatusScheduled:
		return c.Status == CampaignStatusDraft
	case CampaignStatusPaused:
		return c.Status == CampaignStatusSending
	case CampaignStatusStopped:
		return c.Status == CampaignStatusSending ||
			c.Status == CampaignStatusPaused
	case CampaignStatusCompleted:
		return c.Status == CampaignStatusSending
	case CampaignStatusFailed:
		return c.Status == CampaignStatusSending ||
			c.Status == CampaignStatusScheduled
	case CampaignStatusArchived:
		return c.Status == CampaignStatusCompleted ||
			c.Status == CampaignStatusFailed ||
			c.Status == CampaignStatusStopped
	case CampaignStatusDraft:
		// restart path
		return c.Status == CampaignStatusCompleted ||
			c.Status == CampaignStatusStopped ||
			c.Status == CampaignStatusFailed
	default:
		return false
	}
}

// ProcessedCount returns the number of contacts with a recorded outcome
func (c *Campaign) ProcessedCount() int {
	return c.SentCount + c.FailedCount + c.DeliveredCount
}

// RecomputeProgress recalculates the progress percentage from the counters.
// Progress is always derived, never carried forward stale.
func (c *Campaign) RecomputeProgress() {
	if c.ContactCount <= 0 {
		c.Progress = 0
		return
	}
	c.Progress = int(math.Round(100 * float64(c.ProcessedCount()) / float64(c.ContactCount)))
}

// IsDrained reports whether every contact has a recorded outcome
func (c *Campaign) IsDrained() bool {
	return c.ContactCount > 0 && c.ProcessedCount() >= c.ContactCount
}

// ResetCounters clears all progress accounting for a restart
func (c *Campaign) ResetCounters() {
	c.SentCount = 0
	c.FailedCount = 0
	c.DeliveredCount = 0
	c.ActualCost = 0
	c.Progress = 0
	c.StartedAt = nil
	c.CompletedAt = nil
	c.ErrorMessage = nil
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID              *uint           `json:"id,omitempty"`
	UUID            *uuid.UUID      `json:"uuid,omitempty"`
	CustomerID      *uint           `json:"customer_id,omitempty"`
	Status          *CampaignStatus `json:"status,omitempty"`
	ProviderID      *uint           `json:"provider_id,omitempty"`
	Name            *string         `json:"name,omitempty"`
	ScheduledBefore *time.Time      `json:"scheduled_before,omitempty"`
	CreatedAfter    *time.Time      `json:"created_after,omitempty"`
	CreatedBefore   *time.Time      `json:"created_before,omitempty"`
}
