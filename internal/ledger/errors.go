package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Ledger error taxonomy. Returned errors wrap one of these and can be matched
// with errors.Is.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrRatioMismatch         = errors.New("deposit ratio mismatch")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrTransferFailure       = errors.New("transfer failure")
	ErrReentrancy            = errors.New("reentrant call")
	ErrLockTimeout           = errors.New("pool lock timeout")
	// ErrUnconfirmedTransfer marks a transfer that was submitted but whose
	// outcome is not known yet.
	ErrUnconfirmedTransfer   = errors.New("transfer unconfirmed")
	ErrOverflow              = fmt.Errorf("%w: arithmetic overflow", ErrInvalidInput)
)

// Kind maps an error to a short taxonomy name used in logs, metrics and
// request error records.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRatioMismatch):
		return "ratio_mismatch"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrUnconfirmedTransfer):
		return "unconfirmed_transfer"
	case errors.Is(err, ErrTransferFailure):
		return "transfer_failure"
	case errors.Is(err, ErrReentrancy):
		return "reentrancy"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
