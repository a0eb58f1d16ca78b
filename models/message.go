package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStatus represents the delivery status of a single outbound SMS
type MessageStatus string

const (
	MessageStatusPending     MessageStatus = "pending"
	MessageStatusQueued      MessageStatus = "queued"
	MessageStatusProcessing  MessageStatus = "processing"
	MessageStatusSent        MessageStatus = "sent"
	MessageStatusDelivered   MessageStatus = "delivered"
	MessageStatusFailed      MessageStatus = "failed"
	MessageStatusUndelivered MessageStatus = "undelivered"
	MessageStatusBlocked     MessageStatus = "blocked"
	MessageStatusPaused      MessageStatus = "paused"
)

// String returns the string representation of the status
func (s MessageStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusQueued, MessageStatusProcessing,
		MessageStatusSent, MessageStatusDelivered, MessageStatusFailed,
		MessageStatusUndelivered, MessageStatusBlocked, MessageStatusPaused:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the message counts toward billable usage
func (s MessageStatus) IsSuccessful() bool {
	return s == MessageStatusSent || s == MessageStatusDelivered
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

// Message records a single outbound SMS attempt.
// Cost and Prefix are stamped at send time and never recomputed afterwards;
// billing aggregation reads them as-is.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_messages_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;index:idx_messages_customer_id" json:"customer_id"`
	CampaignID *uint     `gorm:"index:idx_messages_campaign_id" json:"campaign_id,omitempty"`
	ContactID  *uint     `json:"contact_id,omitempty"`
	ProviderID *uint     `gorm:"index:idx_messages_provider_id" json:"provider_id,omitempty"`
	RateDeckID *uint     `json:"rate_deck_id,omitempty"`

	To       string `gorm:"size:20;not null;index:idx_messages_to" json:"to"`
	SenderID string `gorm:"size:20" json:"sender_id"`
	Content  string `gorm:"type:text;not null" json:"content"`

	// MessageID is the gateway-assigned id; unique sparse, the idempotency key
	// for delivery report callbacks.
	MessageID *string       `gorm:"size:128;uniqueIndex:uk_messages_message_id" json:"message_id,omitempty"`
	Status    MessageStatus `gorm:"type:message_status;not null;default:'pending';index:idx_messages_status" json:"status"`

	Cost     float64 `gorm:"type:numeric(12,6);not null;default:0" json:"cost"`
	Currency string  `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Prefix   string  `gorm:"size:8;not null;index:idx_messages_prefix" json:"prefix"`

	RetryCount   int     `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int     `gorm:"not null;default:3" json:"max_retries"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	SentAt      *time.Time `gorm:"index:idx_messages_sent_at" json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_messages_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
}

// TableName returns the table name for the model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate is called before creating a new record
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.Status == "" {
		m.Status = MessageStatusPending
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = utils.DefaultMaxRetries
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (m *Message) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	m.UpdatedAt = &now
	return nil
}

// CanRetry reports whether the message still has retry budget
func (m *Message) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// BillingTimestamp returns the timestamp billing aggregation keys failures on:
// SentAt, else FailedAt, else CreatedAt. Failures that never got a SentAt are
// still attributed to a period this way.
func (m *Message) BillingTimestamp() time.Time {
	if m.SentAt != nil {
		return *m.SentAt
	}
	if m.FailedAt != nil {
		return *m.FailedAt
	}
	return m.CreatedAt
}

// MessageFilter represents filter criteria for message queries
type MessageFilter struct {
	ID            *uint          `json:"id,omitempty"`
	UUID          *uuid.UUID     `json:"uuid,omitempty"`
	CustomerID    *uint          `json:"customer_id,omitempty"`
	CampaignID    *uint          `json:"campaign_id,omitempty"`
	ProviderID    *uint          `json:"provider_id,omitempty"`
	To            *string        `json:"to,omitempty"`
	MessageID     *string        `json:"message_id,omitempty"`
	Status        *MessageStatus `json:"status,omitempty"`
	Prefix        *string        `json:"prefix,omitempty"`
	SentAfter     *time.Time     `json:"sent_after,omitempty"`
	SentBefore    *time.Time     `json:"sent_before,omitempty"`
	CreatedAfter  *time.Time     `json:"created_after,omitempty"`
	CreatedBefore *time.Time     `json:"created_before,omitempty"`
}
