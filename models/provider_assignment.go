package models

import (
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderAssignment binds a customer to a gateway with priority and usage caps.
// Usage counters reset lazily when a day/month boundary is crossed; the
// watermarks record the start of the window the counters belong to.
type ProviderAssignment struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_provider_assignments_uuid" json:"uuid"`

	CustomerID uint `gorm:"not null;uniqueIndex:uk_provider_assignments_customer_provider;index:idx_provider_assignments_customer_id" json:"customer_id"`
	ProviderID uint `gorm:"not null;uniqueIndex:uk_provider_assignments_customer_provider" json:"provider_id"`

	IsActive *bool `gorm:"default:true;index:idx_provider_assignments_is_active" json:"is_active"`
	// Lower priority wins
	Priority int `gorm:"not null;default:100;index:idx_provider_assignments_priority" json:"priority"`

	// Nil limit means uncapped
	DailyLimit   *int `json:"daily_limit,omitempty"`
	MonthlyLimit *int `json:"monthly_limit,omitempty"`

	DailyUsage   int `gorm:"not null;default:0" json:"daily_usage"`
	MonthlyUsage int `gorm:"not null;default:0" json:"monthly_usage"`

	LastResetDaily   time.Time `gorm:"not null" json:"last_reset_daily"`
	LastResetMonthly time.Time `gorm:"not null" json:"last_reset_monthly"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	Provider *Provider `gorm:"foreignKey:ProviderID;references:ID" json:"provider,omitempty"`
}

// TableName returns the table name for the model
func (ProviderAssignment) TableName() string {
	return "provider_assignments"
}

// BeforeCreate is called before creating a new record
func (a *ProviderAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	now := utils.UTCNow()
	if a.LastResetDaily.IsZero() {
		a.LastResetDaily = utils.StartOfDay(now)
	}
	if a.LastResetMonthly.IsZero() {
		a.LastResetMonthly = utils.StartOfMonth(now)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	return nil
}

// EffectiveDailyUsage returns the daily usage as of now, treating the counter
// as zero once the day boundary has been crossed. The stored row is not
// mutated; resets are persisted by the router on the next successful send.
func (a *ProviderAssignment) EffectiveDailyUsage(now time.Time) int {
	if utils.StartOfDay(now).After(a.LastResetDaily) {
		return 0
	}
	return a.DailyUsage
}

// EffectiveMonthlyUsage returns the monthly usage as of now, treating the
// counter as zero once the month boundary has been crossed.
func (a *ProviderAssignment) EffectiveMonthlyUsage(now time.Time) int {
	if utils.StartOfMonth(now).After(a.LastResetMonthly) {
		return 0
	}
	return a.MonthlyUsage
}

// HasDailyCapacity reports whether the assignment can take one more send today
func (a *ProviderAssignment) HasDailyCapacity(now time.Time) bool {
	if a.DailyLimit == nil {
		return true
	}
	return a.EffectiveDailyUsage(now) < *a.DailyLimit
}

// HasMonthlyCapacity reports whether the assignment can take one more send this month
func (a *ProviderAssignment) HasMonthlyCapacity(now time.Time) bool {
	if a.MonthlyLimit == nil {
		return true
	}
	return a.EffectiveMonthlyUsage(now) < *a.MonthlyLimit
}

// ProviderAssignmentFilter represents filter criteria for assignment queries
type ProviderAssignmentFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CustomerID *uint
	ProviderID *uint
	IsActive   *bool
}
