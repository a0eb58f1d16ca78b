package scheduler

import (
	"context"
	"log"
	"os"
	"time"

	businessflow "sms-backend/business_flow"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// BillingRunner is the periodic billing loop: it closes due scheduled
// periods, drives pending charges through the ledger in bounded batches, and
// reconciles charges that were interrupted mid-flight.
type BillingRunner struct {
	customerRepo repository.CustomerRepository
	triggerFlow  businessflow.BillingTriggerFlow
	chargeFlow   businessflow.ChargeFlow

	logger   *log.Logger
	interval time.Duration
}

// NewBillingRunner creates a new billing runner instance
func NewBillingRunner(
	customerRepo repository.CustomerRepository,
	triggerFlow businessflow.BillingTriggerFlow,
	chargeFlow businessflow.ChargeFlow,
	logger *log.Logger,
	interval time.Duration,
) *BillingRunner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[billing] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	}
	return &BillingRunner{
		customerRepo: customerRepo,
		triggerFlow:  triggerFlow,
		chargeFlow:   chargeFlow,
		logger:       logger,
		interval:     interval,
	}
}

// Start launches the billing loop and returns a stop function
func (s *BillingRunner) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *BillingRunner) runOnce(ctx context.Context) {
	// records stuck in processing are resolved against the ledger before
	// anything else touches them
	if resolved, err := s.chargeFlow.Reconcile(ctx, utils.ProcessingStrayCutoff); err != nil {
		s.logger.Printf("reconciliation failed: %v", err)
	} else if resolved > 0 {
		s.logger.Printf("reconciled %d stray billing records", resolved)
	}

	s.closeDuePeriods(ctx)

	paid, err := s.chargeFlow.ProcessPending(ctx, utils.ChargeBatchSize)
	if err != nil {
		if businessflow.IsLedgerUnavailable(err) {
			s.logger.Printf("ledger unavailable, charges deferred to next run: %v", err)
		} else {
			s.logger.Printf("charge processing failed: %v", err)
		}
	}
	if paid > 0 {
		billingRecordsSettledTotal.WithLabelValues("paid").Add(float64(paid))
		s.logger.Printf("settled %d billing records", paid)
	}
}

func (s *BillingRunner) closeDuePeriods(ctx context.Context) {
	now := utils.UTCNow()
	isActive := true
	page := 0
	const pageSize = 200

	for {
		if ctx.Err() != nil {
			return
		}
		customers, err := s.customerRepo.ByFilter(ctx, models.CustomerFilter{IsActive: &isActive}, "id ASC", pageSize, page*pageSize)
		if err != nil {
			s.logger.Printf("failed to list customers: %v", err)
			return
		}
		if len(customers) == 0 {
			return
		}

		for _, customer := range customers {
			record, err := s.triggerFlow.CloseDuePeriods(ctx, customer.ID, now)
			if err != nil {
				if businessflow.IsLedgerUnavailable(err) {
					// the period closed; only the charge is deferred
					s.logger.Printf("period closed for customer %d, charge deferred: %v", customer.ID, err)
					continue
				}
				s.logger.Printf("failed to close period for customer %d: %v", customer.ID, err)
				continue
			}
			if record != nil {
				s.logger.Printf("closed period %s - %s for customer %d: %.4f %s",
					record.PeriodStart.Format(time.RFC3339), record.PeriodEnd.Format(time.RFC3339),
					customer.ID, record.TotalCost, record.Currency)
			}
		}

		if len(customers) < pageSize {
			return
		}
		page++
	}
}
