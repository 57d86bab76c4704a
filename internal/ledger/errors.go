package ledger

import (
	"errors"

	"confidential-ledger/internal/cve"
)

// Code is a machine-readable rejection code.
type Code string

const (
	CodeAlreadyRegistered   Code = "ALREADY_REGISTERED"
	CodeNotRegistered       Code = "NOT_REGISTERED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInvalidAssetID      Code = "INVALID_ASSET_ID"
	CodeAssetNotActive      Code = "ASSET_NOT_ACTIVE"
	CodeValueMismatch       Code = "VALUE_MISMATCH"
	CodeInvalidUnitAmount   Code = "INVALID_UNIT_AMOUNT"
	CodeInsufficientUnits   Code = "INSUFFICIENT_UNITS"
	CodeInsufficientPayment Code = "INSUFFICIENT_PAYMENT"
	CodeDuplicatePosition   Code = "DUPLICATE_POSITION"
	CodeInsufficientFunds   Code = "INSUFFICIENT_FUNDS"
	CodeTransferFailed      Code = "TRANSFER_FAILED"
	CodeInvalidInput        Code = "INVALID_INPUT"

	// Engine boundary. PermissionDenied means a grant was missing on the engine side.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeEngineFault      Code = "ENGINE_FAULT"
)

// Error is a ledger rejection.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrAlreadyRegistered   = &Error{Code: CodeAlreadyRegistered, Message: "participant already registered"}
	ErrNotRegistered       = &Error{Code: CodeNotRegistered, Message: "participant not registered"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "administrator capability required"}
	ErrInvalidAssetID      = &Error{Code: CodeInvalidAssetID, Message: "invalid asset id"}
	ErrAssetNotActive      = &Error{Code: CodeAssetNotActive, Message: "asset not active"}
	ErrValueMismatch       = &Error{Code: CodeValueMismatch, Message: "unit price times total units does not equal total valuation"}
	ErrInvalidUnitAmount   = &Error{Code: CodeInvalidUnitAmount, Message: "unit amount must be positive"}
	ErrInsufficientUnits   = &Error{Code: CodeInsufficientUnits, Message: "not enough units available"}
	ErrInsufficientPayment = &Error{Code: CodeInsufficientPayment, Message: "payment below required amount"}
	ErrDuplicatePosition   = &Error{Code: CodeDuplicatePosition, Message: "position already exists"}
	ErrInsufficientFunds   = &Error{Code: CodeInsufficientFunds, Message: "payer cannot cover payment"}
	ErrTransferFailed      = &Error{Code: CodeTransferFailed, Message: "escrow transfer failed"}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput, Message: "encrypted input rejected"}
	ErrPermissionDenied    = &Error{Code: CodePermissionDenied, Message: "engine permission denied"}
	ErrEngineFault         = &Error{Code: CodeEngineFault, Message: "engine fault"}
)

func reject(base *Error, metadata map[string]string) *Error {
	return &Error{Code: base.Code, Message: base.Message, Metadata: metadata}
}

func wrap(base *Error, cause error) *Error {
	return &Error{Code: base.Code, Message: base.Message, Cause: cause}
}

// engineError classifies an engine failure at the ledger boundary.
func engineError(err error) *Error {
	if errors.Is(err, cve.ErrPermissionDenied) {
		return wrap(ErrPermissionDenied, err)
	}
	if errors.Is(err, cve.ErrInvalidInput) {
		return wrap(ErrInvalidInput, err)
	}
	return wrap(ErrEngineFault, err)
}

// CodeOf returns the rejection code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
