package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementKind classifies one recorded effect on an account balance.
type MovementKind string

const (
	KindDeposit     MovementKind = "deposit"
	KindWithdrawal  MovementKind = "withdrawal"
	KindTransferOut MovementKind = "transfer_out"
	KindTransferIn  MovementKind = "transfer_in"
)

// Valid reports whether k is one of the known kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransferOut, KindTransferIn:
		return true
	}
	return false
}

// IsTransfer reports whether k is either leg of a transfer.
func (k MovementKind) IsTransfer() bool {
	return k == KindTransferOut || k == KindTransferIn
}

// IsDebit reports whether k reduces the balance.
func (k MovementKind) IsDebit() bool {
	return k == KindWithdrawal || k == KindTransferOut
}

// Movement is an immutable entry in an account's history.
// Amount is always positive; Kind carries the direction.
type Movement struct {
	ID           uuid.UUID       `json:"id"`
	Seq          int             `json:"seq"` // per-account, starts at 1
	Kind         MovementKind    `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"` // account number, transfers only
	TransferID   uuid.UUID       `json:"transfer_id,omitzero"`   // shared by both legs of a transfer
	At           time.Time       `json:"at"`
}

// Signed returns the amount with the sign of its effect on the balance.
func (m Movement) Signed() decimal.Decimal {
	if m.Kind.IsDebit() {
		return m.Amount.Neg()
	}
	return m.Amount
}

// Describe renders the movement as a single statement line.
func (m Movement) Describe() string {
	amt := m.Amount.StringFixed(2)
	switch m.Kind {
	case KindDeposit:
		return "Deposit: +" + amt
	case KindWithdrawal:
		return "Withdrawal: -" + amt
	case KindTransferOut:
		return fmt.Sprintf("Transfer to %s: -%s", m.Counterparty, amt)
	case KindTransferIn:
		return fmt.Sprintf("Transfer from %s: +%s", m.Counterparty, amt)
	default:
		return fmt.Sprintf("%s: %s", m.Kind, amt)
	}
}
