package types

import "errors"

// Domain errors. The API layer owns the mapping to HTTP status codes;
// everything below it matches with errors.Is.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrOrderNotFound      = errors.New("order not found")

	ErrInvalidAuthFormat = errors.New("invalid authorization format")
	ErrInvalidAPIKey     = errors.New("invalid api key")
	ErrAccessDenied      = errors.New("access denied")
	ErrAdminRequired     = errors.New("admin rights required")

	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientLiquidity = errors.New("not enough liquidity for market order")
	ErrInvalidOrderState     = errors.New("invalid order state")
	ErrValidation            = errors.New("validation failed")
	ErrConflict              = errors.New("already exists")

	// ErrInsufficientReserved means a release exceeded the reserved amount.
	// Reservations are created by this engine, so hitting it indicates an
	// accounting bug, not a client mistake.
	ErrInsufficientReserved = errors.New("insufficient reserved funds")
)
