package entities

import "errors"

// Validation errors: reported synchronously, investor corrects input.
var (
	ErrAmountNotPositive  = errors.New("withdrawal amount must be positive")
	ErrAmountBelowMinimum = errors.New("withdrawal amount below minimum")
	ErrAmountAboveMaximum = errors.New("withdrawal amount above maximum")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInvalidDestination = errors.New("invalid withdrawal destination")
)

// Concurrency and state-conflict errors.
var (
	// ErrInsufficientFundsAtApproval is distinct from the submission-time
	// check: the balance moved between submission and approval.
	ErrInsufficientFundsAtApproval = errors.New("insufficient balance at approval")
	ErrInvalidStatusTransition     = errors.New("invalid status transition")
	ErrInvalidWithdrawalStatus     = errors.New("invalid withdrawal status")
	ErrDuplicateDebit              = errors.New("withdrawal already debited")
	ErrWrongDestinationType        = errors.New("operation not valid for this destination type")
)

// Lookup errors.
var (
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrBalanceNotFound    = errors.New("investor balance not found")
)
