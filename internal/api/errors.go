package api

import (
	"errors"

	"pairLedger/internal/ledger"
)

// JSON-RPC error codes for rejected ledger operations.
const (
	codeInvalidParams         = -32602
	codeRatioMismatch         = -32010
	codeInsufficientLiquidity = -32011
	codeSlippageExceeded      = -32012
	codeInsufficientShares    = -32013
	codeTransferFailure       = -32014
	codeReentrancy            = -32015
	codeCanceled              = -32016
	codeUnconfirmedTransfer   = -32017
	codeLockTimeout           = -32018
	codeInternal              = -32603
)

// Error is returned to RPC clients. The error kind travels as error data.
type Error struct {
	code int
	kind string
	msg  string
}

func (e *Error) Error() string          { return e.msg }
func (e *Error) ErrorCode() int         { return e.code }
func (e *Error) ErrorData() interface{} { return e.kind }

func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return err
	}

	kind := ledger.Kind(err)
	code := codeInternal
	switch kind {
	case "invalid_input", "overflow":
		code = codeInvalidParams
	case "ratio_mismatch":
		code = codeRatioMismatch
	case "insufficient_liquidity":
		code = codeInsufficientLiquidity
	case "slippage_exceeded":
		code = codeSlippageExceeded
	case "insufficient_shares":
		code = codeInsufficientShares
	case "transfer_failure":
		code = codeTransferFailure
	case "reentrancy":
		code = codeReentrancy
	case "canceled":
		code = codeCanceled
	case "unconfirmed_transfer":
		code = codeUnconfirmedTransfer
	case "lock_timeout":
		code = codeLockTimeout
	}
	return &Error{code: code, kind: kind, msg: err.Error()}
}
