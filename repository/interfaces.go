// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"sms-backend/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CustomerRepository defines operations for customers
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
	ByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	// UpdateStatus flips the campaign status only if it still holds the
	// expected value; returns false when the guard lost the race.
	UpdateStatus(ctx context.Context, campaignID uint, from, to models.CampaignStatus) (bool, error)
	// IncrementCounters atomically applies counter deltas and recomputes
	// progress in a single UPDATE.
	IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta, deliveredDelta int, costDelta float64) error
	// UpdateFields writes only the named columns. Lifecycle transitions use
	// this for side fields so they never clobber counters updated by
	// concurrent workers.
	UpdateFields(ctx context.Context, campaignID uint, fields map[string]any) error
}

// ContactRepository defines operations for contact lists and contacts
type ContactRepository interface {
	ListByID(ctx context.Context, listID uint) (*models.ContactList, error)
	CountByList(ctx context.Context, listID uint) (int64, error)
	// ListUnprocessed returns contacts in the list that have no message row
	// for the given campaign yet.
	ListUnprocessed(ctx context.Context, listID, campaignID uint, limit int) ([]*models.Contact, error)
	SaveList(ctx context.Context, list *models.ContactList) error
	SaveContacts(ctx context.Context, contacts []*models.Contact) error
}

// MessageRepository defines operations for messages
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByMessageID(ctx context.Context, messageID string) (*models.Message, error)
	// ListForPeriod pages through a customer's messages whose billing
	// timestamp falls in [start, end), ordered by id for restartability.
	ListForPeriod(ctx context.Context, customerID uint, start, end time.Time, afterID uint, limit int) ([]*models.Message, error)
	// UnbilledUsage returns the successful message count and cost accumulated
	// since the given time, for threshold billing evaluation.
	UnbilledUsage(ctx context.Context, customerID uint, since time.Time) (int, float64, error)
	ListRetryable(ctx context.Context, limit int) ([]*models.Message, error)
}

// ProviderRepository defines operations for providers
type ProviderRepository interface {
	Repository[models.Provider, models.ProviderFilter]
	ByName(ctx context.Context, name string) (*models.Provider, error)
}

// ProviderAssignmentRepository defines operations for provider assignments
type ProviderAssignmentRepository interface {
	Repository[models.ProviderAssignment, models.ProviderAssignmentFilter]
	// ListActiveByCustomer returns active assignments ordered by ascending priority
	ListActiveByCustomer(ctx context.Context, customerID uint) ([]*models.ProviderAssignment, error)
	// RecordUsage increments the usage counters in one conditional UPDATE,
	// zeroing either counter first when its watermark has been crossed.
	RecordUsage(ctx context.Context, assignmentID uint, now time.Time) error
}

// RateDeckRepository defines operations for rate decks and rates
type RateDeckRepository interface {
	Repository[models.RateDeck, models.RateDeckFilter]
	ByCustomerAndService(ctx context.Context, customerID uint, service models.RateDeckService) (*models.RateDeck, error)
	// LongestPrefixRate returns the rate entry with the longest prefix of the
	// destination number, or nil when no prefix matches.
	LongestPrefixRate(ctx context.Context, rateDeckID uint, destination string) (*models.Rate, error)
	SaveRates(ctx context.Context, rates []*models.Rate) error
}

// BillingRecordRepository defines operations for billing records
type BillingRecordRepository interface {
	Repository[models.BillingRecord, models.BillingRecordFilter]
	ListPending(ctx context.Context, limit int) ([]*models.BillingRecord, error)
	// Claim flips pending -> processing; returns false when the record was
	// already claimed or left pending.
	Claim(ctx context.Context, recordID uint) (bool, error)
	ListProcessingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.BillingRecord, error)
	// HasOverlapping reports whether an existing non-cancelled record for the
	// customer overlaps [start, end).
	HasOverlapping(ctx context.Context, customerID uint, start, end time.Time) (bool, error)
	// LastPeriodEnd returns the end of the most recent non-cancelled period
	// for the customer, or nil when the customer has never been billed.
	LastPeriodEnd(ctx context.Context, customerID uint) (*time.Time, error)
}

// BillingSettingsRepository defines operations for billing settings
type BillingSettingsRepository interface {
	Repository[models.BillingSettings, models.BillingSettingsFilter]
	ByCustomer(ctx context.Context, customerID uint) (*models.BillingSettings, error)
	Global(ctx context.Context) (*models.BillingSettings, error)
	ListCustomerIDsWithSettings(ctx context.Context) ([]uint, error)
}
