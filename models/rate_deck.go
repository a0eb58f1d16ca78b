package models

import (
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RateDeckService discriminates what a deck prices
type RateDeckService string

const (
	RateDeckServiceSMS     RateDeckService = "sms"
	RateDeckServiceNumbers RateDeckService = "numbers"
)

// RateDeck is a named, currency-tagged set of prefix prices. A deck is
// assigned to at most one customer at a time for a given service type.
type RateDeck struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_rate_decks_uuid" json:"uuid"`

	Name     string          `gorm:"size:255;not null" json:"name"`
	Currency string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Service  RateDeckService `gorm:"size:10;not null;default:'sms'" json:"service"`

	// Nil while the deck is unassigned
	CustomerID *uint `gorm:"index:idx_rate_decks_customer_id" json:"customer_id,omitempty"`

	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Rates []Rate `gorm:"foreignKey:RateDeckID" json:"rates,omitempty"`
}

// TableName returns the table name for the model
func (RateDeck) TableName() string {
	return "rate_decks"
}

// BeforeCreate is called before creating a new record
func (d *RateDeck) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Rate is one prefix price entry inside a rate deck
type Rate struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	RateDeckID uint `gorm:"not null;uniqueIndex:uk_rates_deck_prefix;index:idx_rates_rate_deck_id" json:"rate_deck_id"`

	Prefix  string  `gorm:"size:8;not null;uniqueIndex:uk_rates_deck_prefix" json:"prefix"`
	Country *string `gorm:"size:2" json:"country,omitempty"`
	// Price per message in the deck currency
	Rate float64 `gorm:"type:numeric(12,6);not null" json:"rate"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (Rate) TableName() string {
	return "rates"
}

// RateDeckFilter represents filter criteria for rate deck queries
type RateDeckFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	CustomerID *uint
	Service    *RateDeckService
	IsActive   *bool
}
