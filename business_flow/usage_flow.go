package businessflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// UsageFlow rolls a customer's messages for a half-open period [start, end)
// into a pending BillingRecord.
type UsageFlow interface {
	// Aggregate groups successful messages by (prefix, rate-at-send-time) and
	// counts failures separately. A period with zero successful messages
	// produces no record and returns nil. A period overlapping an existing
	// non-cancelled record is refused.
	Aggregate(ctx context.Context, customerID uint, start, end time.Time, billingType models.BillingType) (*models.BillingRecord, error)
}

// UsageFlowImpl implements the usage aggregation business flow
type UsageFlowImpl struct {
	messageRepo repository.MessageRepository
	billingRepo repository.BillingRecordRepository
}

// NewUsageFlow creates a new usage flow instance
func NewUsageFlow(
	messageRepo repository.MessageRepository,
	billingRepo repository.BillingRecordRepository,
) UsageFlow {
	return &UsageFlowImpl{
		messageRepo: messageRepo,
		billingRepo: billingRepo,
	}
}

type breakdownKey struct {
	prefix string
	rate   float64
}

func (s *UsageFlowImpl) Aggregate(ctx context.Context, customerID uint, start, end time.Time, billingType models.BillingType) (*models.BillingRecord, error) {
	start, end = utils.TimeToUTC(start), utils.TimeToUTC(end)
	if !start.Before(end) {
		return nil, NewBusinessError("BILLING_PERIOD_INVALID", "Invalid billing period", ErrInvalidBillingPeriod)
	}

	overlaps, err := s.billingRepo.HasOverlapping(ctx, customerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to check for overlapping records: %w", err)
	}
	if overlaps {
		return nil, NewBusinessError("BILLING_PERIOD_OVERLAPS", "Period overlaps an existing billing record", ErrBillingPeriodOverlaps)
	}

	groups := make(map[breakdownKey]*models.BreakdownEntry)
	var successful, failed int
	var totalCost float64
	currency := ""

	// stream page by page, restartable on the last seen id
	var afterID uint
	for {
		page, err := s.messageRepo.ListForPeriod(ctx, customerID, start, end, afterID, utils.AggregationPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages for period: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, m := range page {
			switch {
			case m.Status.IsSuccessful():
				successful++
				totalCost += m.Cost
				if currency == "" {
					currency = m.Currency
				}
				key := breakdownKey{prefix: m.Prefix, rate: m.Cost}
				entry, ok := groups[key]
				if !ok {
					entry = &models.BreakdownEntry{Prefix: m.Prefix, Rate: m.Cost}
					groups[key] = entry
				}
				entry.MessageCount++
				entry.TotalCost = float64(entry.MessageCount) * entry.Rate
			case m.Status == models.MessageStatusFailed || m.Status == models.MessageStatusUndelivered || m.Status == models.MessageStatusBlocked:
				failed++
			}
		}

		afterID = page[len(page)-1].ID
		if len(page) < utils.AggregationPageSize {
			break
		}
	}

	// a period with only failures is not billed
	if successful == 0 {
		return nil, nil
	}
	if currency == "" {
		currency = utils.DefaultCurrency
	}

	breakdown := make(models.Breakdown, 0, len(groups))
	for _, entry := range groups {
		breakdown = append(breakdown, *entry)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Prefix != breakdown[j].Prefix {
			return breakdown[i].Prefix < breakdown[j].Prefix
		}
		return breakdown[i].Rate < breakdown[j].Rate
	})

	record := &models.BillingRecord{
		CustomerID:         customerID,
		PeriodStart:        start,
		PeriodEnd:          end,
		TotalMessages:      successful + failed,
		SuccessfulMessages: successful,
		FailedMessages:     failed,
		TotalCost:          totalCost,
		Currency:           currency,
		Breakdown:          breakdown,
		Status:             models.BillingRecordStatusPending,
		BillingType:        billingType,
		BillingDate:        utils.UTCNow(),
	}

	if err := s.billingRepo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save billing record: %w", err)
	}
	return record, nil
}
