// Package models contains domain entities and business models for the SMS platform
package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents an account that owns campaigns, messages and billing records.
// SippyAccountID references the customer's account on the external billing ledger.
type Customer struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_uuid;index:idx_customers_uuid" json:"uuid"`

	Email     string  `gorm:"size:255;not null;uniqueIndex:idx_customers_email" json:"email"`
	FirstName string  `gorm:"size:255;not null" json:"first_name"`
	LastName  string  `gorm:"size:255;not null" json:"last_name"`
	Company   *string `gorm:"size:60" json:"company,omitempty"`

	// External billing ledger account reference
	SippyAccountID *int64 `gorm:"index:idx_customers_sippy_account_id" json:"sippy_account_id,omitempty"`

	IsActive *bool `gorm:"default:true;index:idx_customers_is_active" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_customers_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Campaigns      []Campaign      `gorm:"foreignKey:CustomerID" json:"campaigns,omitempty"`
	Messages       []Message       `gorm:"foreignKey:CustomerID" json:"-"`
	BillingRecords []BillingRecord `gorm:"foreignKey:CustomerID" json:"billing_records,omitempty"`
}

func (Customer) TableName() string {
	return "customers"
}

// HasLedgerAccount reports whether the customer can be charged externally
func (c *Customer) HasLedgerAccount() bool {
	return c.SippyAccountID != nil && *c.SippyAccountID > 0
}

// CustomerFilter represents filter criteria for customer queries
type CustomerFilter struct {
	ID             *uint
	UUID           *uuid.UUID
	Email          *string
	SippyAccountID *int64
	IsActive       *bool
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}
