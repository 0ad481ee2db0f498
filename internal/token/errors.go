// internal/token/errors.go
package token

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/ledger"
)

var (
	ErrUnauthorized           = access.ErrUnauthorized
	ErrInsufficientBalance    = ledger.ErrInsufficientBalance
	ErrTradingClosed          = errors.New("trading is not open")
	ErrInsufficientAllowance  = errors.New("insufficient allowance")
	ErrMaxBalanceExceeded     = errors.New("recipient would exceed the max balance")
	ErrSelfRecoveryForbidden  = errors.New("cannot recover the token from itself")
	ErrInvalidRecipient       = errors.New("invalid recipient")
	ErrNativeTransferRejected = errors.New("native currency transfers are rejected")
	ErrExcludedDeliver        = errors.New("excluded accounts cannot deliver")
	ErrInvalidParameter       = errors.New("invalid parameter")
)

// Stage names a step of the transfer pipeline.
type Stage string

const (
	StageValidateAddresses  Stage = "validate_addresses"
	StageValidateAllowance  Stage = "validate_allowance"
	StageValidateOpen       Stage = "validate_open"
	StageValidateBalance    Stage = "validate_balance"
	StageComputeTax         Stage = "compute_tax"
	StageApplySplit         Stage = "apply_split"
	StageValidateMaxBalance Stage = "validate_max_balance"
	StageCommit             Stage = "commit"
)

// TransferError reports the pipeline stage a transfer failed in. Nothing is
// applied when a transfer fails.
type TransferError struct {
	Stage Stage
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed at %s: %v", e.Stage, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func fail(stage Stage, err error) error {
	return &TransferError{Stage: stage, Err: err}
}

func invalidParam(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
