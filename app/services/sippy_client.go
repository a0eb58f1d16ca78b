package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"sms-backend/config"
)

// SippyClient talks to the external billing ledger.
type SippyClient interface {
	AccountInfo(ctx context.Context, accountID int64) (*SippyAccountInfo, error)
	Debit(ctx context.Context, accountID int64, amount float64, currency, memo string) (*SippyDebitResponse, error)
	// FindTransactionByMemo looks for a previously issued debit with the given
	// memo, used to reconcile charges interrupted mid-flight.
	FindTransactionByMemo(ctx context.Context, accountID int64, memo string, since time.Time) (*SippyTransaction, error)
}

// SippyAccountInfo is the subset of the account record the billing run needs
type SippyAccountInfo struct {
	AccountID       int64      `json:"i_account"`
	PaymentCurrency string     `json:"payment_currency"`
	Balance         FlexNumber `json:"balance"`
	Blocked         bool       `json:"blocked"`
}

// SippyDebitResponse mirrors the ledger's debit answer. The ledger is not
// consistent about how it signals success: sometimes a status string, sometimes
// a transaction id, sometimes both, occasionally neither. Every field is
// decoded leniently and interpretation is left to the caller.
type SippyDebitResponse struct {
	TransactionID FlexString `json:"tx_id"`
	Status        FlexString `json:"status"`
	Result        FlexString `json:"result"`
	Error         string     `json:"error"`
	Message       string     `json:"message"`
}

// SippyTransaction is one entry of the ledger's transaction listing
type SippyTransaction struct {
	TransactionID FlexString `json:"tx_id"`
	Amount        FlexNumber `json:"amount"`
	Currency      string     `json:"currency"`
	Memo          string     `json:"description"`
	IssuedAt      string     `json:"issued_at"`
}

// FlexString decodes a JSON string or number into a string. The ledger emits
// "1", 1, and "OK" for the same field depending on the endpoint version.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexNumber decodes a JSON number or numeric string into a float64
type FlexNumber float64

func (f *FlexNumber) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	*f = FlexNumber(v)
	return nil
}

// SippyClientImpl implements SippyClient over the ledger's HTTP API
type SippyClientImpl struct {
	config *config.SippyConfig
	client *http.Client
}

// NewSippyClient creates a new ledger client instance
func NewSippyClient(cfg *config.SippyConfig) SippyClient {
	return &SippyClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// AccountInfo fetches the ledger account record
func (c *SippyClientImpl) AccountInfo(ctx context.Context, accountID int64) (*SippyAccountInfo, error) {
	body := map[string]any{"i_account": accountID}
	var info SippyAccountInfo
	if err := c.post(ctx, "/xmlapi/getAccountInfo", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Debit issues a single balance debit carrying a human-readable memo
func (c *SippyClientImpl) Debit(ctx context.Context, accountID int64, amount float64, currency, memo string) (*SippyDebitResponse, error) {
	body := map[string]any{
		"i_account":   accountID,
		"amount":      amount,
		"currency":    currency,
		"description": memo,
	}
	var resp SippyDebitResponse
	if err := c.post(ctx, "/xmlapi/accountDebit", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindTransactionByMemo lists recent account transactions and returns the
// first whose memo matches, or nil when none does.
func (c *SippyClientImpl) FindTransactionByMemo(ctx context.Context, accountID int64, memo string, since time.Time) (*SippyTransaction, error) {
	body := map[string]any{
		"i_account":  accountID,
		"start_date": since.UTC().Format(time.RFC3339),
	}
	var listing struct {
		Transactions []SippyTransaction `json:"transactions"`
	}
	if err := c.post(ctx, "/xmlapi/listAccountTransactions", body, &listing); err != nil {
		return nil, err
	}
	for i := range listing.Transactions {
		if listing.Transactions[i].Memo == memo {
			return &listing.Transactions[i], nil
		}
	}
	return nil, nil
}

func (c *SippyClientImpl) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger request: %w", err)
	}

	url := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ledger response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ledger returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode ledger response: %w", err)
	}
	return nil
}
