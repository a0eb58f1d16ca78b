package models

import (
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingFrequency represents how billing periods are closed for a customer
type BillingFrequency string

const (
	BillingFrequencyDaily     BillingFrequency = "daily"
	BillingFrequencyWeekly    BillingFrequency = "weekly"
	BillingFrequencyMonthly   BillingFrequency = "monthly"
	BillingFrequencyThreshold BillingFrequency = "threshold"
)

// Valid checks if the frequency is valid
func (f BillingFrequency) Valid() bool {
	switch f {
	case BillingFrequencyDaily, BillingFrequencyWeekly, BillingFrequencyMonthly, BillingFrequencyThreshold:
		return true
	default:
		return false
	}
}

// BillingSettings configures when and how a customer is billed. A row with
// CustomerID == nil is the global default; a per-customer row overrides it.
type BillingSettings struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_billing_settings_uuid" json:"uuid"`

	// Nil means the global default row
	CustomerID *uint `gorm:"uniqueIndex:uk_billing_settings_customer_id" json:"customer_id,omitempty"`

	Frequency BillingFrequency `gorm:"size:10;not null;default:'monthly'" json:"frequency"`

	// Threshold mode: a period closes as soon as either limit is crossed
	MaxAmount   *float64 `gorm:"type:numeric(14,6)" json:"max_amount,omitempty"`
	MaxMessages *int     `json:"max_messages,omitempty"`

	// Schedule anchors: 0=Sunday for day-of-week, 1-28 for day-of-month
	BillingDayOfWeek  int `gorm:"not null;default:1" json:"billing_day_of_week"`
	BillingDayOfMonth int `gorm:"not null;default:1" json:"billing_day_of_month"`

	AutoProcessing  *bool `gorm:"default:true" json:"auto_processing"`
	NotifyOnCharge  *bool `gorm:"default:false" json:"notify_on_charge"`
	NotifyOnFailure *bool `gorm:"default:true" json:"notify_on_failure"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (BillingSettings) TableName() string {
	return "billing_settings"
}

// BeforeCreate is called before creating a new record
func (s *BillingSettings) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.Frequency == "" {
		s.Frequency = BillingFrequencyMonthly
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// IsGlobal reports whether this is the global default row
func (s *BillingSettings) IsGlobal() bool {
	return s.CustomerID == nil
}

// ThresholdCrossed reports whether the unbilled usage crosses either limit.
// Only meaningful for threshold frequency.
func (s *BillingSettings) ThresholdCrossed(unbilledAmount float64, unbilledMessages int) bool {
	if s.Frequency != BillingFrequencyThreshold {
		return false
	}
	if s.MaxAmount != nil && unbilledAmount >= *s.MaxAmount {
		return true
	}
	if s.MaxMessages != nil && unbilledMessages >= *s.MaxMessages {
		return true
	}
	return false
}

// DefaultBillingSettings returns the hard-coded fallback created on first
// access when neither a customer row nor a global row exists.
func DefaultBillingSettings() *BillingSettings {
	return &BillingSettings{
		Frequency:         BillingFrequencyMonthly,
		BillingDayOfWeek:  1,
		BillingDayOfMonth: 1,
		AutoProcessing:    utils.ToPtr(true),
		NotifyOnCharge:    utils.ToPtr(false),
		NotifyOnFailure:   utils.ToPtr(true),
	}
}

// BillingSettingsFilter represents filter criteria for billing settings queries
type BillingSettingsFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CustomerID *uint
	Frequency  *BillingFrequency
}
