package models

import "errors"

var (
	ErrWalletUnavailable   = errors.New("wallet unavailable")
	ErrConnectionRejected  = errors.New("connection rejected")
	ErrChainRead           = errors.New("chain read failed")
	ErrChainWrite          = errors.New("chain write failed")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrUnauthorized        = errors.New("unauthorized")

	ErrOperationInProgress = errors.New("operation already in progress")
	ErrNotConnected        = errors.New("no account connected")
	ErrMalformedTip        = errors.New("malformed tip record")
	ErrConfig              = errors.New("invalid configuration")
)

// ErrorKind returns the short name of the taxonomy entry err belongs to.
// Unauthorized is checked before reverted since it is the more specific outcome.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrWalletUnavailable):
		return "wallet_unavailable"
	case errors.Is(err, ErrConnectionRejected):
		return "connection_rejected"
	case errors.Is(err, ErrTransactionRejected):
		return "transaction_rejected"
	case errors.Is(err, ErrTransactionReverted):
		return "transaction_reverted"
	case errors.Is(err, ErrChainWrite):
		return "chain_write"
	case errors.Is(err, ErrChainRead):
		return "chain_read"
	case errors.Is(err, ErrOperationInProgress):
		return "busy"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	default:
		return "unknown"
	}
}
