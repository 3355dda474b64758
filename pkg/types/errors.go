package types

import (
	"errors"
	"fmt"
)

// Common errors shared across packages.
var (
	// Parameter validation errors
	ErrNilRPC         = errors.New("rpc client is nil")
	ErrNilFeePayer    = errors.New("fee payer is nil")
	ErrZeroAmount     = errors.New("amount must be greater than 0")
	ErrNoInstructions = errors.New("requires at least one instruction")

	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrWalletNotFound  = errors.New("wallet not found")

	// Transaction errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// Bundle errors
	ErrBundleRejected = errors.New("bundle rejected")
	ErrEmptyBundle    = errors.New("bundle requires at least one transaction")

	// Launch errors
	ErrRunNotFound   = errors.New("launch run not found")
	ErrRunTerminated = errors.New("launch run already terminated")
)

// RPCError wraps RPC failures with operation context.
type RPCError struct {
	Op  string
	Err error
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e RPCError) Unwrap() error {
	return e.Err
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// ShortfallError reports that the master wallet cannot cover the launch
// budget. All amounts are lamports.
type ShortfallError struct {
	Required  uint64
	Available uint64
}

func (e ShortfallError) Error() string {
	shortfall := e.Required - e.Available
	return fmt.Sprintf("insufficient master balance: need %d lamports, have %d (short %d, %.4f SOL)",
		e.Required, e.Available, shortfall, float64(shortfall)/1e9)
}

func (e ShortfallError) Unwrap() error {
	return ErrInsufficientBalance
}

// Shortfall returns the missing amount in lamports.
func (e ShortfallError) Shortfall() uint64 {
	return e.Required - e.Available
}
