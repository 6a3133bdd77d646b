package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Stable machine-readable error codes. The web adapter maps these to HTTP
// statuses; callers can branch on them without parsing messages.
const (
	CodeNotFound                = "NOT_FOUND"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeAlreadyFinalized        = "ALREADY_FINALIZED"
	CodeVoucherNotActive        = "VOUCHER_NOT_ACTIVE"
	CodeVoucherNotTransferable  = "VOUCHER_NOT_TRANSFERABLE"
	CodeInsufficientBalance     = "INSUFFICIENT_BALANCE"
	CodeValidation              = "VALIDATION_ERROR"
	CodeGenerationExhausted     = "CODE_GENERATION_EXHAUSTED"
	CodeStorageFailure          = "STORAGE_FAILURE"
)

// NotFoundError reports that a referenced entity does not exist within
// the caller's tenant scope.
type NotFoundError struct {
	Entity string // "refund", "voucher", "sale", "product", "customer"
	Ref    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Ref)
}

// InvalidTransitionError reports a state-machine violation.
type InvalidTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot be %s: status is %s", e.Entity, e.Action, e.From)
}

// AlreadyFinalizedError reports an operation attempted on a record in a
// terminal state.
type AlreadyFinalizedError struct {
	Entity string
	Status string
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("%s is already finalized with status %s", e.Entity, e.Status)
}

// VoucherNotActiveError reports a redemption or cancellation attempt
// against a non-active voucher.
type VoucherNotActiveError struct {
	Code   string
	Status VoucherStatus
}

func (e *VoucherNotActiveError) Error() string {
	return fmt.Sprintf("voucher %s is not active: status is %s", e.Code, e.Status)
}

// VoucherNotTransferableError reports a holder mismatch on a
// non-transferable voucher.
type VoucherNotTransferableError struct {
	Code string
}

func (e *VoucherNotTransferableError) Error() string {
	return fmt.Sprintf("voucher %s is not transferable and the presented document does not match the holder", e.Code)
}

// InsufficientBalanceError reports a redemption that exceeds the
// voucher's current balance. Available is exposed so the caller can
// render a precise message.
type InsufficientBalanceError struct {
	Code      string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient voucher balance: available %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// ValidationError reports malformed input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// CodeGenerationError reports that voucher code generation exhausted its
// collision-retry budget.
type CodeGenerationError struct {
	Attempts int
}

func (e *CodeGenerationError) Error() string {
	return fmt.Sprintf("voucher code generation exhausted after %d attempts", e.Attempts)
}

// StorageError wraps an underlying persistence failure. The enclosing
// operation has been fully rolled back. Details stay server-side; the
// web adapter returns only the stable code to clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storagef(err error, format string, args ...any) *StorageError {
	return &StorageError{Op: fmt.Sprintf(format, args...), Err: err}
}

// ErrorCode returns the stable machine-readable code for err, or
// CodeStorageFailure for anything unrecognized (unknown failures are
// treated as storage-level so no internals leak).
func ErrorCode(err error) string {
	var (
		nf  *NotFoundError
		it  *InvalidTransitionError
		af  *AlreadyFinalizedError
		vna *VoucherNotActiveError
		vnt *VoucherNotTransferableError
		ib  *InsufficientBalanceError
		ve  *ValidationError
		cg  *CodeGenerationError
	)
	switch {
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &it):
		return CodeInvalidTransition
	case errors.As(err, &af):
		return CodeAlreadyFinalized
	case errors.As(err, &vna):
		return CodeVoucherNotActive
	case errors.As(err, &vnt):
		return CodeVoucherNotTransferable
	case errors.As(err, &ib):
		return CodeInsufficientBalance
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &cg):
		return CodeGenerationExhausted
	default:
		return CodeStorageFailure
	}
}
