package utils

import (
	"time"
)

// Dispatch constants
const (
	// DefaultMaxRetries is the retry budget for transient send failures
	DefaultMaxRetries = 3

	// DispatchBatchSize is how many contacts a campaign drainer claims per page
	DispatchBatchSize = 200

	// GatewaySendTimeout bounds a single gateway call; expiry is a transient failure
	GatewaySendTimeout = 30 * time.Second

	// RetryBackoffBase is the base for exponential retry backoff
	RetryBackoffBase = 2 * time.Second
)

// Billing constants
const (
	// DefaultCurrency is used when neither the rate deck nor the ledger supplies one
	DefaultCurrency = "USD"

	// ChargeBatchSize bounds how many pending billing records one charge run touches
	ChargeBatchSize = 20

	// LedgerRequestTimeout bounds ledger account-info and debit calls
	LedgerRequestTimeout = 30 * time.Second

	// ProcessingStrayCutoff is how old a record stuck in processing must be
	// before the billing runner attempts reconciliation
	ProcessingStrayCutoff = 30 * time.Minute
)

// AggregationPageSize is the page size for streaming messages during rollup
const AggregationPageSize = 1000

// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
const CORSMaxAge = 86400
