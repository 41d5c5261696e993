package bank

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/model"
)

// Limits are the withdrawal rules applied to every account in a store.
type Limits struct {
	MaxWithdrawals   int
	PerWithdrawalCap decimal.Decimal
}

// DefaultLimits returns three withdrawals of at most 500.00 each.
func DefaultLimits() Limits {
	return Limits{
		MaxWithdrawals:   3,
		PerWithdrawalCap: decimal.NewFromInt(500),
	}
}

// Account is a guarded ledger cell. All mutable fields are protected by mu.
type Account struct {
	mu          sync.Mutex
	number      string
	owner       string
	variant     model.Variant
	limits      Limits
	balance     decimal.Decimal
	movements   []model.Movement
	withdrawals int
	now         func() time.Time
}

func newAccount(rec model.AccountRecord, limits Limits, now func() time.Time) *Account {
	movements := make([]model.Movement, len(rec.Movements))
	copy(movements, rec.Movements)
	return &Account{
		number:      rec.Number,
		owner:       rec.Owner,
		variant:     rec.VariantValue(),
		limits:      limits,
		balance:     rec.Balance,
		movements:   movements,
		withdrawals: rec.WithdrawalCount,
		now:         now,
	}
}

// Number returns the account number.
func (a *Account) Number() string { return a.number }

// Owner returns the identifier of the owning client.
func (a *Account) Owner() string { return a.owner }

// Variant returns the account's withdrawal rule.
func (a *Account) Variant() model.Variant { return a.variant }

// Balance returns the current balance.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// WithdrawalCount returns the number of successful withdrawals so far.
func (a *Account) WithdrawalCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.withdrawals
}

// Deposit credits amount and records a deposit movement.
func (a *Account) Deposit(amount decimal.Decimal) (model.Movement, error) {
	if !amount.IsPositive() {
		return model.Movement{}, ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance = a.balance.Add(amount)
	return a.appendLocked(model.KindDeposit, amount, "", uuid.Nil), nil
}

// Withdraw debits amount. The checks run in a fixed order so the same
// inputs always produce the same rejection: withdrawal count, per-withdrawal
// cap, available funds, then amount sign.
func (a *Account) Withdraw(amount decimal.Decimal) (model.Movement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.withdrawals >= a.limits.MaxWithdrawals {
		return model.Movement{}, ErrWithdrawalLimitReached
	}
	if amount.GreaterThan(a.limits.PerWithdrawalCap) {
		return model.Movement{}, ErrPerWithdrawalCapExceeded
	}
	if amount.GreaterThan(a.variant.Available(a.balance)) {
		return model.Movement{}, ErrInsufficientFunds
	}
	if !amount.IsPositive() {
		return model.Movement{}, ErrInvalidAmount
	}

	a.balance = a.balance.Sub(amount)
	a.withdrawals++
	return a.appendLocked(model.KindWithdrawal, amount, "", uuid.Nil), nil
}

// TransferTo moves amount from a to dst. It neither counts against the
// withdrawal limit nor is bound by the per-withdrawal cap. Both accounts
// stay locked from validation until both movements are appended.
func (a *Account) TransferTo(dst *Account, amount decimal.Decimal) (model.Movement, error) {
	if a == dst || a.number == dst.number {
		return model.Movement{}, ErrSameAccount
	}
	if !amount.IsPositive() {
		return model.Movement{}, ErrInvalidAmount
	}

	first, second := a, dst
	if numberLess(dst.number, a.number) {
		first, second = dst, a
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if amount.GreaterThan(a.variant.Available(a.balance)) {
		return model.Movement{}, ErrInsufficientFunds
	}

	transferID := uuid.New()
	a.balance = a.balance.Sub(amount)
	dst.balance = dst.balance.Add(amount)
	out := a.appendLocked(model.KindTransferOut, amount, dst.number, transferID)
	dst.appendLocked(model.KindTransferIn, amount, a.number, transferID)
	return out, nil
}

// Statement returns a copy of the account's history and balance.
func (a *Account) Statement() Statement {
	a.mu.Lock()
	defer a.mu.Unlock()

	movements := make([]model.Movement, len(a.movements))
	copy(movements, a.movements)
	return Statement{
		Number:          a.number,
		Owner:           a.owner,
		Variant:         a.variant,
		Balance:         a.balance,
		WithdrawalCount: a.withdrawals,
		Movements:       movements,
	}
}

func (a *Account) appendLocked(kind model.MovementKind, amount decimal.Decimal, counterparty string, transferID uuid.UUID) model.Movement {
	m := model.Movement{
		ID:           uuid.New(),
		Seq:          len(a.movements) + 1,
		Kind:         kind,
		Amount:       amount,
		Counterparty: counterparty,
		TransferID:   transferID,
		At:           a.now(),
	}
	a.movements = append(a.movements, m)
	return m
}

// recordLocked returns the persisted form. Caller holds a.mu.
func (a *Account) recordLocked() model.AccountRecord {
	movements := make([]model.Movement, len(a.movements))
	copy(movements, a.movements)
	rec := model.AccountRecord{
		Number:          a.number,
		Owner:           a.owner,
		Balance:         a.balance,
		Variant:         a.variant.Kind,
		WithdrawalCount: a.withdrawals,
		Movements:       movements,
	}
	if a.variant.Kind == model.VariantOverdraft {
		rec.OverdraftLimit = a.variant.Limit
	}
	return rec
}

// numberLess orders account numbers numerically: shorter numbers first,
// then lexically among equal widths.
func numberLess(x, y string) bool {
	if len(x) != len(y) {
		return len(x) < len(y)
	}
	return x < y
}

// Statement is a point-in-time view of one account.
type Statement struct {
	Number          string
	Owner           string
	OwnerName       string
	Variant         model.Variant
	Balance         decimal.Decimal
	WithdrawalCount int
	Movements       []model.Movement
}

// Recent returns at most the last n movements. n <= 0 returns all of them.
func (s Statement) Recent(n int) []model.Movement {
	if n <= 0 || len(s.Movements) <= n {
		return s.Movements
	}
	return s.Movements[len(s.Movements)-n:]
}
