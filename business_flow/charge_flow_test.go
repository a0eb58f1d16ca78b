package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"sms-backend/app/services"
	"sms-backend/models"
	"sms-backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chargeHarness struct {
	billing   *fakeBillingRepo
	customers *fakeCustomerRepo
	sippy     *fakeSippyClient
	flow      ChargeFlow
}

func newChargeHarness() *chargeHarness {
	billing := newFakeBillingRepo()
	customers := newFakeCustomerRepo()
	sippy := &fakeSippyClient{}
	return &chargeHarness{
		billing:   billing,
		customers: customers,
		sippy:     sippy,
		flow:      NewChargeFlow(billing, customers, sippy),
	}
}

func (h *chargeHarness) addLedgerCustomer() *models.Customer {
	return h.customers.add(&models.Customer{
		Email:          "billed@example.com",
		SippyAccountID: utils.ToPtr(int64(5001)),
		IsActive:       utils.ToPtr(true),
	})
}

func (h *chargeHarness) addRecord(customerID uint, cost float64) *models.BillingRecord {
	return h.billing.add(&models.BillingRecord{
		CustomerID:         customerID,
		PeriodStart:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:          time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		SuccessfulMessages: 3,
		TotalMessages:      3,
		TotalCost:          cost,
		Currency:           "USD",
		Status:             models.BillingRecordStatusPending,
		BillingType:        models.BillingTypeCampaign,
		BillingDate:        utils.UTCNow(),
	})
}

func TestProcessRecordPaysOnLedgerSuccess(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)
	h.sippy.debitResp = &services.SippyDebitResponse{TransactionID: "tx-123"}

	require.NoError(t, h.flow.ProcessRecord(ctx, record))

	stored := h.billing.get(record.ID)
	assert.Equal(t, models.BillingRecordStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidDate)
	require.NotNil(t, stored.LedgerTransactionID)
	assert.Equal(t, "tx-123", *stored.LedgerTransactionID)
	assert.Equal(t, 1, h.sippy.debitCount())
}

func TestProcessRecordIsIdempotentOnPaidRecord(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)
	h.sippy.debitResp = &services.SippyDebitResponse{TransactionID: "tx-123"}

	require.NoError(t, h.flow.ProcessRecord(ctx, record))
	require.NoError(t, h.flow.ProcessRecord(ctx, record))

	// the second pass must not touch the ledger again
	assert.Equal(t, 1, h.sippy.debitCount())
	assert.Equal(t, models.BillingRecordStatusPaid, h.billing.get(record.ID).Status)
}

func TestProcessRecordSkipsUnclaimedRecord(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)

	// another worker already holds the claim
	claimed, err := h.billing.Claim(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, h.flow.ProcessRecord(ctx, record))
	assert.Zero(t, h.sippy.debitCount())
}

func TestProcessRecordZeroCostPaidWithoutLedger(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0)

	require.NoError(t, h.flow.ProcessRecord(ctx, record))

	stored := h.billing.get(record.ID)
	assert.Equal(t, models.BillingRecordStatusPaid, stored.Status)
	assert.Nil(t, stored.LedgerTransactionID)
	assert.Zero(t, h.sippy.debitCount())
}

func TestProcessRecordNoLedgerAccountFails(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.customers.add(&models.Customer{Email: "unlinked@example.com", IsActive: utils.ToPtr(true)})
	record := h.addRecord(customer.ID, 0.105)

	require.NoError(t, h.flow.ProcessRecord(ctx, record))

	stored := h.billing.get(record.ID)
	assert.Equal(t, models.BillingRecordStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Zero(t, h.sippy.debitCount())
}

func TestProcessRecordTransportFailureReturnsToPending(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)
	h.sippy.debitErr = errors.New("connection refused")

	err := h.flow.ProcessRecord(ctx, record)
	require.Error(t, err)
	assert.True(t, IsLedgerUnavailable(err))
	assert.Equal(t, models.BillingRecordStatusPending, h.billing.get(record.ID).Status)
}

func TestProcessRecordDeclineFailsRecord(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)
	h.sippy.debitResp = &services.SippyDebitResponse{Error: "insufficient balance"}

	require.NoError(t, h.flow.ProcessRecord(ctx, record))

	stored := h.billing.get(record.ID)
	assert.Equal(t, models.BillingRecordStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "insufficient balance", *stored.FailureReason)
}

func TestProcessPendingStopsBatchOnLedgerOutage(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	first := h.addRecord(customer.ID, 0.10)
	second := h.addRecord(customer.ID, 0.20)
	second.PeriodStart = second.PeriodStart.AddDate(0, 1, 0)
	second.PeriodEnd = second.PeriodEnd.AddDate(0, 1, 0)
	require.NoError(t, h.billing.Update(ctx, second))
	h.sippy.debitErr = errors.New("connection refused")

	paid, err := h.flow.ProcessPending(ctx, 10)
	require.Error(t, err)
	assert.Zero(t, paid)

	// the first record went back to pending, the second was never claimed
	assert.Equal(t, models.BillingRecordStatusPending, h.billing.get(first.ID).Status)
	assert.Equal(t, models.BillingRecordStatusPending, h.billing.get(second.ID).Status)
}

func TestProcessPendingCountsPaid(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	h.addRecord(customer.ID, 0.10)
	second := h.addRecord(customer.ID, 0.20)
	second.PeriodStart = second.PeriodStart.AddDate(0, 1, 0)
	second.PeriodEnd = second.PeriodEnd.AddDate(0, 1, 0)
	require.NoError(t, h.billing.Update(ctx, second))
	h.sippy.debitResp = &services.SippyDebitResponse{TransactionID: "tx-9"}

	paid, err := h.flow.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, paid)
}

func TestReconcileRecoversDebitedStray(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)

	stored := h.billing.get(record.ID)
	stored.Status = models.BillingRecordStatusProcessing
	stale := utils.UTCNow().Add(-2 * time.Hour)
	stored.UpdatedAt = &stale
	h.sippy.foundTx = &services.SippyTransaction{TransactionID: "tx-lost", Amount: 0.105}

	resolved, err := h.flow.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	stored = h.billing.get(record.ID)
	assert.Equal(t, models.BillingRecordStatusPaid, stored.Status)
	require.NotNil(t, stored.LedgerTransactionID)
	assert.Equal(t, "tx-lost", *stored.LedgerTransactionID)
	require.NotNil(t, stored.Notes)
	assert.Zero(t, h.sippy.debitCount(), "a found debit must never be re-charged")
}

func TestReconcileReturnsUndebitedStrayToPending(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)

	stored := h.billing.get(record.ID)
	stored.Status = models.BillingRecordStatusProcessing
	stale := utils.UTCNow().Add(-2 * time.Hour)
	stored.UpdatedAt = &stale

	resolved, err := h.flow.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, models.BillingRecordStatusPending, h.billing.get(record.ID).Status)
}

func TestReconcileLeavesStraysWhenLedgerUnreachable(t *testing.T) {
	ctx := context.Background()
	h := newChargeHarness()
	customer := h.addLedgerCustomer()
	record := h.addRecord(customer.ID, 0.105)

	stored := h.billing.get(record.ID)
	stored.Status = models.BillingRecordStatusProcessing
	stale := utils.UTCNow().Add(-2 * time.Hour)
	stored.UpdatedAt = &stale
	h.sippy.findErr = errors.New("connection refused")

	resolved, err := h.flow.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, models.BillingRecordStatusProcessing, h.billing.get(record.ID).Status)
}

func TestInterpretLedgerResponse(t *testing.T) {
	cases := []struct {
		name    string
		resp    *services.SippyDebitResponse
		success bool
		txID    string
		reason  string
	}{
		{"nil response", nil, false, "", "empty ledger response"},
		{"transaction id only", &services.SippyDebitResponse{TransactionID: "tx-1"}, true, "tx-1", ""},
		{"numeric transaction id", &services.SippyDebitResponse{TransactionID: "98765"}, true, "98765", ""},
		{"status success", &services.SippyDebitResponse{Status: "success"}, true, "", ""},
		{"status OK mixed case", &services.SippyDebitResponse{Status: "OK"}, true, "", ""},
		{"result numeric one", &services.SippyDebitResponse{Result: "1"}, true, "", ""},
		{"tx id with error populated", &services.SippyDebitResponse{TransactionID: "tx-1", Error: "declined"}, false, "tx-1", "declined"},
		{"error only", &services.SippyDebitResponse{Error: "insufficient balance"}, false, "", "insufficient balance"},
		{"message fallback", &services.SippyDebitResponse{Message: "account blocked"}, false, "", "account blocked"},
		{"unrecognized status", &services.SippyDebitResponse{Status: "maybe"}, false, "", `ledger status "maybe"`},
		{"unrecognized result", &services.SippyDebitResponse{Result: "0"}, false, "", `ledger result "0"`},
		{"empty response body", &services.SippyDebitResponse{}, false, "", "ledger response carried no transaction id or status"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := interpretLedgerResponse(tc.resp)
			assert.Equal(t, tc.success, outcome.Success)
			assert.Equal(t, tc.txID, outcome.TransactionID)
			if !tc.success {
				assert.Equal(t, tc.reason, outcome.Reason)
			}
		})
	}
}
