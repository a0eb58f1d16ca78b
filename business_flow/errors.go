// Package businessflow contains the core business logic and use cases for campaign and billing workflows
package businessflow

import (
	"errors"
	"fmt"

	"sms-backend/models"
)

// Business flow error constants
var (
	// Customer-related errors
	ErrCustomerNotFound = errors.New("customer not found")
	ErrAccountInactive  = errors.New("account is inactive")
	ErrNoLedgerAccount  = errors.New("customer has no ledger account")

	// Campaign-related errors
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrCampaignAccessDenied    = errors.New("campaign access denied")
	ErrCampaignNameRequired    = errors.New("campaign name is required")
	ErrCampaignContentRequired = errors.New("campaign content is required")
	ErrCampaignSenderRequired  = errors.New("campaign sender id is required")
	ErrContactListNotFound     = errors.New("contact list not found")
	ErrContactListEmpty        = errors.New("contact list is empty")
	ErrScheduleTimeNotPresent  = errors.New("schedule time is not present")
	ErrScheduleTimeTooSoon     = errors.New("schedule time is too soon")
	ErrInvalidTransition       = errors.New("invalid campaign state transition")

	// Routing and rating errors
	ErrNoAvailableProvider = errors.New("no available provider")
	ErrNoRateDeckAssigned  = errors.New("no rate deck assigned")
	ErrNoRateForPrefix     = errors.New("no rate for destination prefix")

	// Send outcome classification
	ErrTransientSendFailure = errors.New("transient send failure")
	ErrPermanentSendFailure = errors.New("permanent send failure")

	// Billing errors
	ErrBillingRecordNotFound = errors.New("billing record not found")
	ErrBillingPeriodOverlaps = errors.New("billing period overlaps an existing record")
	ErrBillingRecordTerminal = errors.New("billing record is already in a terminal state")
	ErrInvalidBillingPeriod  = errors.New("billing period start must precede end")
	ErrLedgerUnavailable     = errors.New("ledger unavailable")
	ErrLedgerDebitFailed     = errors.New("ledger debit failed")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInvalidTransitionError builds the rejection for a disallowed campaign
// state change, carrying both the current and the requested state.
func NewInvalidTransitionError(from, to models.CampaignStatus) *BusinessError {
	return &BusinessError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition campaign from %s to %s", from, to),
		Err:     ErrInvalidTransition,
	}
}

// IsCustomerNotFound reports whether err means the customer does not exist
func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

// IsAccountInactive reports whether err means the customer account is disabled
func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

// IsCampaignNotFound reports whether err means the campaign does not exist
func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

// IsCampaignAccessDenied reports whether err means the campaign belongs to another customer
func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

// IsInvalidTransition reports whether err is a rejected campaign state change
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNoAvailableProvider reports whether err means every routing candidate was rejected
func IsNoAvailableProvider(err error) bool {
	return errors.Is(err, ErrNoAvailableProvider)
}

// IsNoRateForPrefix reports whether err means the destination has no rate entry
func IsNoRateForPrefix(err error) bool {
	return errors.Is(err, ErrNoRateForPrefix) || errors.Is(err, ErrNoRateDeckAssigned)
}

// IsTransientSendFailure reports whether the send may be retried
func IsTransientSendFailure(err error) bool {
	return errors.Is(err, ErrTransientSendFailure)
}

// IsLedgerUnavailable reports whether the billing run hit a ledger transport failure
func IsLedgerUnavailable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}
