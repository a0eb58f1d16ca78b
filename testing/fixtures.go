// Package testing provides test utilities and database setup for integration testing
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"sms-backend/models"
	"sms-backend/utils"

	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCustomer creates an active customer with a ledger account
func (tf *TestFixtures) CreateTestCustomer() (*models.Customer, error) {
	sippyID := int64(10000 + rand.Intn(90000))
	customer := &models.Customer{
		UUID:           uuid.New(),
		Email:          fmt.Sprintf("customer-%d@example.com", rand.Intn(1000000)),
		FirstName:      "Test",
		LastName:       "Customer",
		SippyAccountID: &sippyID,
		IsActive:       utils.ToPtr(true),
		CreatedAt:      utils.UTCNow(),
		UpdatedAt:      utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}
	return customer, nil
}

// CreateTestContactList creates a contact list with the given phone numbers
func (tf *TestFixtures) CreateTestContactList(customerID uint, numbers []string) (*models.ContactList, error) {
	list := &models.ContactList{
		UUID:         uuid.New(),
		CustomerID:   customerID,
		Name:         fmt.Sprintf("list-%d", rand.Intn(1000000)),
		ContactCount: len(numbers),
		IsActive:     utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(list).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact list: %w", err)
	}

	for _, number := range numbers {
		contact := &models.Contact{
			ContactListID: list.ID,
			PhoneNumber:   number,
		}
		if err := tf.DB.DB.Create(contact).Error; err != nil {
			return nil, fmt.Errorf("failed to create test contact %s: %w", number, err)
		}
	}
	return list, nil
}

// CreateTestCampaign creates a campaign in the given status
func (tf *TestFixtures) CreateTestCampaign(customerID, contactListID uint, status models.CampaignStatus) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UUID:           uuid.New(),
		CustomerID:     customerID,
		Status:         status,
		Name:           fmt.Sprintf("campaign-%d", rand.Intn(1000000)),
		ContactListID:  contactListID,
		MessageContent: "Hello from the test suite",
		SenderID:       "TESTCO",
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestProvider creates an active provider with the given rate limits
func (tf *TestFixtures) CreateTestProvider(name string, perSecond, perMinute, perHour int) (*models.Provider, error) {
	provider := &models.Provider{
		UUID:               uuid.New(),
		Name:               name,
		Type:               models.ProviderTypeHTTP,
		RateLimitPerSecond: perSecond,
		RateLimitPerMinute: perMinute,
		RateLimitPerHour:   perHour,
		IsActive:           utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(provider).Error; err != nil {
		return nil, fmt.Errorf("failed to create test provider %s: %w", name, err)
	}
	return provider, nil
}

// CreateTestAssignment binds a provider to a customer at the given priority
func (tf *TestFixtures) CreateTestAssignment(customerID, providerID uint, priority int, dailyLimit, monthlyLimit *int) (*models.ProviderAssignment, error) {
	now := utils.UTCNow()
	assignment := &models.ProviderAssignment{
		UUID:             uuid.New(),
		CustomerID:       customerID,
		ProviderID:       providerID,
		IsActive:         utils.ToPtr(true),
		Priority:         priority,
		DailyLimit:       dailyLimit,
		MonthlyLimit:     monthlyLimit,
		LastResetDaily:   now,
		LastResetMonthly: now,
	}
	if err := tf.DB.DB.Create(assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test assignment: %w", err)
	}
	return assignment, nil
}

// CreateTestRateDeck creates an SMS rate deck for a customer with prefix rates
func (tf *TestFixtures) CreateTestRateDeck(customerID uint, rates map[string]float64) (*models.RateDeck, error) {
	deck := &models.RateDeck{
		UUID:       uuid.New(),
		Name:       fmt.Sprintf("deck-%d", rand.Intn(1000000)),
		Currency:   "USD",
		Service:    models.RateDeckServiceSMS,
		CustomerID: &customerID,
		IsActive:   utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(deck).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rate deck: %w", err)
	}

	for prefix, rate := range rates {
		row := &models.Rate{
			RateDeckID: deck.ID,
			Prefix:     prefix,
			Rate:       rate,
		}
		if err := tf.DB.DB.Create(row).Error; err != nil {
			return nil, fmt.Errorf("failed to create test rate for prefix %s: %w", prefix, err)
		}
	}
	return deck, nil
}

// CreateTestMessage creates a message for a campaign in the given status
func (tf *TestFixtures) CreateTestMessage(customerID uint, campaignID *uint, to string, status models.MessageStatus, cost float64, prefix string, sentAt *time.Time) (*models.Message, error) {
	message := &models.Message{
		UUID:       uuid.New(),
		CustomerID: customerID,
		CampaignID: campaignID,
		To:         to,
		SenderID:   "TESTCO",
		Content:    "Hello from the test suite",
		Status:     status,
		Cost:       cost,
		Currency:   "USD",
		Prefix:     prefix,
		MaxRetries: utils.DefaultMaxRetries,
		SentAt:     sentAt,
	}
	if status == models.MessageStatusSent || status == models.MessageStatusDelivered {
		id := fmt.Sprintf("gw-%s", uuid.NewString())
		message.MessageID = &id
	}
	if err := tf.DB.DB.Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create test message: %w", err)
	}
	return message, nil
}

// CreateTestBillingSettings creates per-customer billing settings
func (tf *TestFixtures) CreateTestBillingSettings(customerID uint, frequency models.BillingFrequency, maxAmount *float64, maxMessages *int) (*models.BillingSettings, error) {
	settings := &models.BillingSettings{
		UUID:            uuid.New(),
		CustomerID:      &customerID,
		Frequency:       frequency,
		MaxAmount:       maxAmount,
		MaxMessages:     maxMessages,
		AutoProcessing:  utils.ToPtr(true),
		NotifyOnFailure: utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create test billing settings: %w", err)
	}
	return settings, nil
}
