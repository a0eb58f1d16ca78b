package businessflow

import (
	"context"
	"fmt"
	"time"

	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// BillingTriggerFlow decides when a customer's usage period closes and what
// happens next: aggregation always, charging only when auto-processing is on.
type BillingTriggerFlow interface {
	// EffectiveSettings resolves the customer's billing settings, falling
	// back to the global row and creating the global default when neither
	// exists yet.
	EffectiveSettings(ctx context.Context, customerID uint) (*models.BillingSettings, error)
	// EvaluateThreshold is called after every successful send for customers
	// on threshold billing; it closes the period the moment unbilled cost or
	// count crosses a limit, not on the next timer tick.
	EvaluateThreshold(ctx context.Context, customerID uint) (*models.BillingRecord, error)
	// CloseDuePeriods closes any schedule-driven period whose anchor has
	// been crossed since the customer's last closed period.
	CloseDuePeriods(ctx context.Context, customerID uint, now time.Time) (*models.BillingRecord, error)
}

// BillingTriggerFlowImpl implements the billing trigger business flow
type BillingTriggerFlowImpl struct {
	settingsRepo repository.BillingSettingsRepository
	billingRepo  repository.BillingRecordRepository
	messageRepo  repository.MessageRepository
	customerRepo repository.CustomerRepository
	usageFlow    UsageFlow
	chargeFlow   ChargeFlow
}

// NewBillingTriggerFlow creates a new billing trigger flow instance
func NewBillingTriggerFlow(
	settingsRepo repository.BillingSettingsRepository,
	billingRepo repository.BillingRecordRepository,
	messageRepo repository.MessageRepository,
	customerRepo repository.CustomerRepository,
	usageFlow UsageFlow,
	chargeFlow ChargeFlow,
) BillingTriggerFlow {
	return &BillingTriggerFlowImpl{
		settingsRepo: settingsRepo,
		billingRepo:  billingRepo,
		messageRepo:  messageRepo,
		customerRepo: customerRepo,
		usageFlow:    usageFlow,
		chargeFlow:   chargeFlow,
	}
}

func (s *BillingTriggerFlowImpl) EffectiveSettings(ctx context.Context, customerID uint) (*models.BillingSettings, error) {
	settings, err := s.settingsRepo.ByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find billing settings: %w", err)
	}
	if settings != nil {
		return settings, nil
	}

	settings, err = s.settingsRepo.Global(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find global billing settings: %w", err)
	}
	if settings != nil {
		return settings, nil
	}

	settings = models.DefaultBillingSettings()
	if err := s.settingsRepo.Save(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to create default billing settings: %w", err)
	}
	return settings, nil
}

func (s *BillingTriggerFlowImpl) EvaluateThreshold(ctx context.Context, customerID uint) (*models.BillingRecord, error) {
	settings, err := s.EffectiveSettings(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if settings.Frequency != models.BillingFrequencyThreshold {
		return nil, nil
	}

	periodStart, err := s.periodStart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	count, cost, err := s.messageRepo.UnbilledUsage(ctx, customerID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to compute unbilled usage: %w", err)
	}
	if !settings.ThresholdCrossed(cost, count) {
		return nil, nil
	}

	return s.closePeriod(ctx, customerID, settings, periodStart, utils.UTCNow())
}

func (s *BillingTriggerFlowImpl) CloseDuePeriods(ctx context.Context, customerID uint, now time.Time) (*models.BillingRecord, error) {
	settings, err := s.EffectiveSettings(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now = utils.TimeToUTC(now)
	var boundary time.Time
	switch settings.Frequency {
	case models.BillingFrequencyDaily:
		boundary = utils.StartOfDay(now)
	case models.BillingFrequencyWeekly:
		boundary = utils.StartOfWeek(now, time.Weekday(settings.BillingDayOfWeek))
	case models.BillingFrequencyMonthly:
		boundary = utils.AnchoredDayOfMonth(now, settings.BillingDayOfMonth)
	default:
		// threshold billing closes after sends, not on the clock
		return nil, nil
	}

	periodStart, err := s.periodStart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !boundary.After(periodStart) {
		return nil, nil
	}

	return s.closePeriod(ctx, customerID, settings, periodStart, boundary)
}

// periodStart is the end of the last closed period, or the customer's
// creation time when nothing was ever billed.
func (s *BillingTriggerFlowImpl) periodStart(ctx context.Context, customerID uint) (time.Time, error) {
	last, err := s.billingRepo.LastPeriodEnd(ctx, customerID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find last billing period: %w", err)
	}
	if last != nil {
		return utils.TimeToUTC(*last), nil
	}
	customer, err := s.customerRepo.ByID(ctx, customerID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find customer: %w", err)
	}
	if customer == nil {
		return time.Time{}, ErrCustomerNotFound
	}
	return utils.TimeToUTC(customer.CreatedAt), nil
}

func (s *BillingTriggerFlowImpl) closePeriod(ctx context.Context, customerID uint, settings *models.BillingSettings, start, end time.Time) (*models.BillingRecord, error) {
	record, err := s.usageFlow.Aggregate(ctx, customerID, start, end, models.BillingTypeCampaign)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if utils.IsTrue(settings.AutoProcessing) {
		if err := s.chargeFlow.ProcessRecord(ctx, record); err != nil {
			// the record stays pending; the billing runner retries later
			return record, err
		}
	}
	return record, nil
}
