package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sms-backend/app/services"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// ChargeFlow settles pending BillingRecords against the external ledger.
// The ledger is a scarce, slow resource; records are processed in bounded
// batches and a record in a terminal state is never resubmitted.
type ChargeFlow interface {
	// ProcessPending claims and settles up to batchSize pending records,
	// returning how many ended up paid. A ledger transport failure aborts
	// the rest of the batch; unclaimed records stay pending for the next run.
	ProcessPending(ctx context.Context, batchSize int) (int, error)
	// ProcessRecord settles one record end to end.
	ProcessRecord(ctx context.Context, record *models.BillingRecord) error
	// Reconcile resolves records stuck in processing longer than maxAge:
	// the ledger is searched for a debit with the record's memo before any
	// re-charge, so a crash between "debit sent" and "status persisted"
	// never double-charges.
	Reconcile(ctx context.Context, maxAge time.Duration) (int, error)
}

// ChargeFlowImpl implements the charge processing business flow
type ChargeFlowImpl struct {
	billingRepo  repository.BillingRecordRepository
	customerRepo repository.CustomerRepository
	sippy        services.SippyClient
}

// NewChargeFlow creates a new charge flow instance
func NewChargeFlow(
	billingRepo repository.BillingRecordRepository,
	customerRepo repository.CustomerRepository,
	sippy services.SippyClient,
) ChargeFlow {
	return &ChargeFlowImpl{
		billingRepo:  billingRepo,
		customerRepo: customerRepo,
		sippy:        sippy,
	}
}

func (s *ChargeFlowImpl) ProcessPending(ctx context.Context, batchSize int) (int, error) {
	records, err := s.billingRepo.ListPending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending billing records: %w", err)
	}

	paid := 0
	for _, record := range records {
		// a ledger transport failure means the rest of the batch would fail
		// the same way; stop and let the next run retry
		if err := s.ProcessRecord(ctx, record); err != nil {
			return paid, err
		}
		if record.Status == models.BillingRecordStatusPaid {
			paid++
		}
	}
	return paid, nil
}

func (s *ChargeFlowImpl) ProcessRecord(ctx context.Context, record *models.BillingRecord) error {
	if record.Status.IsTerminal() {
		return nil
	}

	// the claim is also the self-concurrency guard: only one run can flip
	// pending -> processing
	claimed, err := s.billingRepo.Claim(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("failed to claim billing record %d: %w", record.ID, err)
	}
	if !claimed {
		return nil
	}
	record.Status = models.BillingRecordStatusProcessing

	// zero-cost periods are not charged
	if record.TotalCost <= 0 {
		return s.markPaid(ctx, record, "")
	}

	customer, err := s.customerRepo.ByID(ctx, record.CustomerID)
	if err != nil {
		return s.returnToPending(ctx, record, fmt.Errorf("failed to find customer: %w", err))
	}
	if customer == nil || !customer.HasLedgerAccount() {
		return s.markFailed(ctx, record, ErrNoLedgerAccount.Error())
	}
	accountID := *customer.SippyAccountID

	currency := record.Currency
	if info, err := s.sippy.AccountInfo(ctx, accountID); err == nil && info.PaymentCurrency != "" {
		currency = info.PaymentCurrency
	}

	resp, err := s.sippy.Debit(ctx, accountID, record.TotalCost, currency, record.Memo())
	if err != nil {
		// transport failure: nothing was charged, retry on the next run
		if retErr := s.returnToPending(ctx, record, err); retErr != nil {
			return retErr
		}
		return NewBusinessError("LEDGER_UNAVAILABLE", "Ledger debit request failed", fmt.Errorf("%w: %v", ErrLedgerUnavailable, err))
	}

	outcome := interpretLedgerResponse(resp)
	if outcome.Success {
		return s.markPaid(ctx, record, outcome.TransactionID)
	}
	return s.markFailed(ctx, record, outcome.Reason)
}

func (s *ChargeFlowImpl) Reconcile(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := utils.UTCNow().Add(-maxAge)
	records, err := s.billingRepo.ListProcessingOlderThan(ctx, cutoff, utils.ChargeBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stray billing records: %w", err)
	}

	resolved := 0
	for _, record := range records {
		customer, err := s.customerRepo.ByID(ctx, record.CustomerID)
		if err != nil {
			continue
		}
		if customer == nil || !customer.HasLedgerAccount() {
			if err := s.markFailed(ctx, record, ErrNoLedgerAccount.Error()); err == nil {
				resolved++
			}
			continue
		}

		tx, err := s.sippy.FindTransactionByMemo(ctx, *customer.SippyAccountID, record.Memo(), record.CreatedAt)
		if err != nil {
			// ledger unreachable; leave the record for the next pass
			continue
		}
		if tx != nil {
			record.Notes = utils.ToPtr("recovered by reconciliation")
			if err := s.markPaid(ctx, record, tx.TransactionID.String()); err == nil {
				resolved++
			}
			continue
		}

		// no matching debit on the ledger: safe to charge again
		record.Status = models.BillingRecordStatusPending
		if err := s.billingRepo.Update(ctx, record); err == nil {
			resolved++
		}
	}
	return resolved, nil
}

func (s *ChargeFlowImpl) markPaid(ctx context.Context, record *models.BillingRecord, transactionID string) error {
	record.Status = models.BillingRecordStatusPaid
	record.PaidDate = utils.UTCNowPtr()
	record.FailureReason = nil
	if transactionID != "" {
		record.LedgerTransactionID = &transactionID
	}
	if err := s.billingRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to persist paid billing record %d: %w", record.ID, err)
	}
	return nil
}

func (s *ChargeFlowImpl) markFailed(ctx context.Context, record *models.BillingRecord, reason string) error {
	record.Status = models.BillingRecordStatusFailed
	record.FailureReason = &reason
	if err := s.billingRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to persist failed billing record %d: %w", record.ID, err)
	}
	return nil
}

func (s *ChargeFlowImpl) returnToPending(ctx context.Context, record *models.BillingRecord, cause error) error {
	record.Status = models.BillingRecordStatusPending
	if err := s.billingRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to return billing record %d to pending after %v: %w", record.ID, cause, err)
	}
	return nil
}

// ledgerOutcome is the normalized verdict on one debit response
type ledgerOutcome struct {
	Success       bool
	TransactionID string
	Reason        string
}

// interpretLedgerResponse decides whether an ambiguous ledger answer means
// the debit went through. The ledger signals success inconsistently: a
// transaction id, a status string ("success", "OK", "1"), a numeric 1, or
// some combination. Success is a transaction id with no error populated, or
// an explicit positive status; anything else is a failure carrying the most
// specific error string available.
func interpretLedgerResponse(resp *services.SippyDebitResponse) ledgerOutcome {
	if resp == nil {
		return ledgerOutcome{Reason: "empty ledger response"}
	}

	txID := resp.TransactionID.String()
	if txID != "" && resp.Error == "" {
		return ledgerOutcome{Success: true, TransactionID: txID}
	}

	if positiveStatus(resp.Status.String()) || positiveStatus(resp.Result.String()) {
		return ledgerOutcome{Success: true, TransactionID: txID}
	}

	reason := resp.Error
	if reason == "" {
		reason = resp.Message
	}
	if reason == "" && resp.Status.String() != "" {
		reason = fmt.Sprintf("ledger status %q", resp.Status.String())
	}
	if reason == "" && resp.Result.String() != "" {
		reason = fmt.Sprintf("ledger result %q", resp.Result.String())
	}
	if reason == "" {
		reason = "ledger response carried no transaction id or status"
	}
	return ledgerOutcome{TransactionID: txID, Reason: reason}
}

func positiveStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "ok", "1":
		return true
	}
	return false
}
