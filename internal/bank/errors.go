package bank

import (
	"errors"
	"fmt"
)

// Business-rule violations. Every one is returned before any state changes.
var (
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrWithdrawalLimitReached   = errors.New("withdrawal limit reached")
	ErrPerWithdrawalCapExceeded = errors.New("amount exceeds per-withdrawal cap")
	ErrSameAccount              = errors.New("source and destination are the same account")
	ErrUnknownAccount           = errors.New("account not found")
	ErrUnknownClient            = errors.New("client not found")
	ErrDuplicateClient          = errors.New("client already exists")
	ErrInvalidIdentifier        = errors.New("client identifier must not be empty")
	ErrAccountAlreadyExists     = errors.New("client already has an account")
	ErrNoAccount                = errors.New("client has no account")
	ErrInvalidCredential        = errors.New("password cannot be used as a credential")
	// ErrAuthenticationFailed covers both an unknown identifier and a wrong
	// password.
	ErrAuthenticationFailed = errors.New("invalid identifier or password")
)

var ruleViolations = []error{
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrWithdrawalLimitReached,
	ErrPerWithdrawalCapExceeded,
	ErrSameAccount,
	ErrUnknownAccount,
	ErrUnknownClient,
	ErrDuplicateClient,
	ErrInvalidIdentifier,
	ErrAccountAlreadyExists,
	ErrNoAccount,
	ErrInvalidCredential,
	ErrAuthenticationFailed,
}

// IsRuleViolation reports whether err is a business-rule rejection rather
// than a persistence or system failure.
func IsRuleViolation(err error) bool {
	for _, target := range ruleViolations {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FlushError reports that a mutation was applied in memory but writing the
// store afterwards failed.
type FlushError struct {
	Op  Op
	Err error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("saving store after %s: %v", e.Op, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}
