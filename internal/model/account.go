package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VariantKind tags the withdrawal rule an account follows.
type VariantKind string

const (
	VariantStandard  VariantKind = "standard"
	VariantOverdraft VariantKind = "overdraft"
)

// ParseVariantKind validates a variant name from config or a document.
func ParseVariantKind(s string) (VariantKind, error) {
	switch k := VariantKind(s); k {
	case VariantStandard, VariantOverdraft:
		return k, nil
	}
	return "", fmt.Errorf("unknown account variant %q", s)
}

// Variant is Standard, or Overdraft with a limit below zero the balance may reach.
type Variant struct {
	Kind  VariantKind
	Limit decimal.Decimal // Overdraft only
}

// Standard returns the variant whose balance never goes negative.
func Standard() Variant {
	return Variant{Kind: VariantStandard}
}

// Overdraft returns a variant that may go down to -limit.
func Overdraft(limit decimal.Decimal) Variant {
	return Variant{Kind: VariantOverdraft, Limit: limit}
}

// Floor is the lowest balance the variant allows.
func (v Variant) Floor() decimal.Decimal {
	if v.Kind == VariantOverdraft {
		return v.Limit.Neg()
	}
	return decimal.Zero
}

// Available returns the funds a withdrawal or transfer may draw on.
func (v Variant) Available(balance decimal.Decimal) decimal.Decimal {
	if v.Kind == VariantOverdraft {
		return balance.Add(v.Limit)
	}
	return balance
}

// AccountRecord is the persisted shape of an account.
type AccountRecord struct {
	Number          string          `json:"number"`
	Owner           string          `json:"owner_identifier"`
	Balance         decimal.Decimal `json:"balance"`
	Variant         VariantKind     `json:"variant"`
	OverdraftLimit  decimal.Decimal `json:"overdraft_limit,omitzero"`
	WithdrawalCount int             `json:"withdrawal_count"`
	Movements       []Movement      `json:"movements"`
}

// VariantValue reassembles the tagged variant from the flat record fields.
func (r AccountRecord) VariantValue() Variant {
	if r.Variant == VariantOverdraft {
		return Overdraft(r.OverdraftLimit)
	}
	return Standard()
}
