package models

import (
	"time"

	"sms-backend/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ProviderType identifies the gateway transport implementation
type ProviderType string

const (
	ProviderTypeTwilio ProviderType = "twilio"
	ProviderTypeSNS    ProviderType = "sns"
	ProviderTypeSMPP   ProviderType = "smpp"
	ProviderTypeHTTP   ProviderType = "http"
)

// Valid checks if the provider type is valid
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderTypeTwilio, ProviderTypeSNS, ProviderTypeSMPP, ProviderTypeHTTP:
		return true
	default:
		return false
	}
}

// Provider represents an upstream SMS gateway with its configured rate limits.
// The send transport itself lives behind the services.Gateway interface; this
// row only carries routing metadata.
type Provider struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_providers_uuid" json:"uuid"`

	Name string       `gorm:"size:255;not null;uniqueIndex:uk_providers_name" json:"name"`
	Type ProviderType `gorm:"size:20;not null" json:"type"`

	// Rolling rate-limit ceilings; zero means unlimited for that window
	RateLimitPerSecond int `gorm:"not null;default:0" json:"rate_limit_per_second"`
	RateLimitPerMinute int `gorm:"not null;default:0" json:"rate_limit_per_minute"`
	RateLimitPerHour   int `gorm:"not null;default:0" json:"rate_limit_per_hour"`

	// ISO 3166-1 alpha-2 codes; empty means all countries
	SupportedCountries pq.StringArray `gorm:"type:text[]" json:"supported_countries"`

	IsActive  *bool     `gorm:"default:true;index:idx_providers_is_active" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for the model
func (Provider) TableName() string {
	return "providers"
}

// BeforeCreate is called before creating a new record
func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.UTCNow()
	}
	return nil
}

// SupportsCountry reports whether the provider can deliver to the given country
func (p *Provider) SupportsCountry(code string) bool {
	if len(p.SupportedCountries) == 0 {
		return true
	}
	for _, c := range p.SupportedCountries {
		if c == code {
			return true
		}
	}
	return false
}

// ProviderFilter represents filter criteria for provider queries
type ProviderFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	Name     *string
	Type     *ProviderType
	IsActive *bool
}
