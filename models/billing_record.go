package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingRecordStatus represents the status of a billing record
type BillingRecordStatus string

const (
	BillingRecordStatusPending    BillingRecordStatus = "pending"
	BillingRecordStatusProcessing BillingRecordStatus = "processing"
	BillingRecordStatusPaid       BillingRecordStatus = "paid"
	BillingRecordStatusFailed     BillingRecordStatus = "failed"
	BillingRecordStatusCancelled  BillingRecordStatus = "cancelled"
)

// String returns the string representation of the status
func (s BillingRecordStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BillingRecordStatus) Valid() bool {
	switch s {
	case BillingRecordStatusPending, BillingRecordStatusProcessing,
		BillingRecordStatusPaid, BillingRecordStatusFailed, BillingRecordStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the record can no longer change except for notes
func (s BillingRecordStatus) IsTerminal() bool {
	return s == BillingRecordStatusPaid || s == BillingRecordStatusFailed || s == BillingRecordStatusCancelled
}

// Scan implements the sql.Scanner interface for BillingRecordStatus
func (s *BillingRecordStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = BillingRecordStatus(v)
	case []byte:
		*s = BillingRecordStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BillingRecordStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BillingRecordStatus
func (s BillingRecordStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BillingRecordStatus: %s", s)
	}
	return string(s), nil
}

// BillingType discriminates single-message usage from campaign usage
type BillingType string

const (
	BillingTypeSingle   BillingType = "single"
	BillingTypeCampaign BillingType = "campaign"
)

// BreakdownEntry is one (country, prefix, rate) line of a billing record
type BreakdownEntry struct {
	Country      string  `json:"country,omitempty"`
	Prefix       string  `json:"prefix"`
	MessageCount int     `json:"message_count"`
	Rate         float64 `json:"rate"`
	TotalCost    float64 `json:"total_cost"`
}

// Breakdown is the per-prefix rollup stored on a billing record
type Breakdown []BreakdownEntry

// Value implements the driver.Valuer interface for Breakdown
func (b Breakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements the sql.Scanner interface for Breakdown
func (b *Breakdown) Scan(value any) error {
	if value == nil {
		*b = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Breakdown", value)
	}

	return json.Unmarshal(bytes, b)
}

// BillingRecord aggregates one customer's message usage over a half-open
// period [PeriodStart, PeriodEnd) into a single chargeable unit. Once the
// status leaves pending/processing the record is immutable except for Notes.
type BillingRecord struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_billing_records_uuid" json:"uuid"`

	CustomerID  uint      `gorm:"not null;index:idx_billing_records_customer_id" json:"customer_id"`
	PeriodStart time.Time `gorm:"not null;index:idx_billing_records_period_start" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null" json:"period_end"`

	TotalMessages      int `gorm:"not null;default:0" json:"total_messages"`
	SuccessfulMessages int `gorm:"not null;default:0" json:"successful_messages"`
	FailedMessages     int `gorm:"not null;default:0" json:"failed_messages"`

	TotalCost float64   `gorm:"type:numeric(14,6);not null;default:0" json:"total_cost"`
	Currency  string    `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Breakdown Breakdown `gorm:"type:jsonb;not null;default:'[]'" json:"breakdown"`

	Status      BillingRecordStatus `gorm:"type:billing_record_status;not null;default:'pending';index:idx_billing_records_status" json:"status"`
	BillingType BillingType         `gorm:"size:10;not null;default:'campaign'" json:"billing_type"`

	BillingDate         time.Time  `gorm:"not null" json:"billing_date"`
	PaidDate            *time.Time `json:"paid_date,omitempty"`
	FailureReason       *string    `gorm:"type:text" json:"failure_reason,omitempty"`
	LedgerTransactionID *string    `gorm:"size:128" json:"ledger_transaction_id,omitempty"`
	Notes               *string    `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_billing_records_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
}

// TableName returns the table name for the model
func (BillingRecord) TableName() string {
	return "billing_records"
}

// BeforeCreate is called before creating a new record
func (r *BillingRecord) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = BillingRecordStatusPending
	}
	if r.BillingDate.IsZero() {
		r.BillingDate = utils.UTCNow()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (r *BillingRecord) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	r.UpdatedAt = &now
	return nil
}

// Memo returns the human-readable debit memo sent to the external ledger.
// It doubles as the natural idempotency key for reconciliation.
func (r *BillingRecord) Memo() string {
	return fmt.Sprintf("SMS billing %s - %s (%d messages)",
		r.PeriodStart.UTC().Format("2006-01-02 15:04"),
		r.PeriodEnd.UTC().Format("2006-01-02 15:04"),
		r.SuccessfulMessages)
}

// Overlaps reports whether the record's period overlaps the half-open range [start, end)
func (r *BillingRecord) Overlaps(start, end time.Time) bool {
	return r.PeriodStart.Before(end) && start.Before(r.PeriodEnd)
}

// BillingRecordFilter represents filter criteria for billing record queries
type BillingRecordFilter struct {
	ID          *uint
	UUID        *uuid.UUID
	CustomerID  *uint
	Status      *BillingRecordStatus
	BillingType *BillingType
	PeriodFrom  *time.Time
	PeriodTo    *time.Time
}
