package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("connection to exchange failed")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Trade Invariant Errors
	// These indicate a logic or upstream-data bug, never a transient
	// condition, and must abort the triggering call.
	ErrTradeFinalized      = errors.New("trade is finalized and cannot be mutated")
	ErrEmptyTrade          = errors.New("trade holds no position")
	ErrNegativeQuantity    = errors.New("exit quantity exceeds position quantity")
	ErrNoTradeAssociated   = errors.New("order has no trade associated with it")
	ErrMissingCollaborator = errors.New("required collaborator is missing")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
