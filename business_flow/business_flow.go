// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"fmt"

	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for request tracing
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

func getCustomer(ctx context.Context, repo repository.CustomerRepository, customerID uint) (models.Customer, error) {
	customer, err := repo.ByID(ctx, customerID)
	if err != nil {
		return models.Customer{}, fmt.Errorf("failed to find customer: %w", err)
	}
	if customer == nil {
		return models.Customer{}, ErrCustomerNotFound
	}
	if !utils.IsTrue(customer.IsActive) {
		return models.Customer{}, ErrAccountInactive
	}
	return *customer, nil
}

func getCampaign(ctx context.Context, repo repository.CampaignRepository, campaignUUID string, customerID uint) (*models.Campaign, error) {
	campaign, err := repo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.CustomerID != customerID {
		return nil, ErrCampaignAccessDenied
	}
	return campaign, nil
}
