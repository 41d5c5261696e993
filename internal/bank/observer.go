package bank

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Op names a store operation.
type Op string

const (
	OpRegisterClient Op = "register_client"
	OpOpenAccount    Op = "open_account"
	OpAuthenticate   Op = "authenticate"
	OpDeposit        Op = "deposit"
	OpWithdraw       Op = "withdraw"
	OpTransfer       Op = "transfer"
)

// Event describes one finished store operation.
type Event struct {
	Op                  Op
	Client              string
	Account             string
	Counterparty        string
	Amount              decimal.Decimal
	Balance             decimal.Decimal // Account balance afterwards, when Applied
	CounterpartyBalance decimal.Decimal // transfers only
	// Applied is true when in-memory state changed, even if the flush that
	// followed failed.
	Applied bool
	Err     error
	Elapsed time.Duration
	At      time.Time
}

// Observer is notified after every store operation. Observe is called
// outside all store and account locks and must not call back into the
// store's mutating methods.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Outcome values reported by Event.Outcome.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeFlushFailed = "flush_failed"
)

// Outcome classifies the event as ok, rejected, or flush_failed.
func (e Event) Outcome() string {
	var fe *FlushError
	switch {
	case e.Err == nil:
		return OutcomeOK
	case errors.As(e.Err, &fe):
		return OutcomeFlushFailed
	default:
		return OutcomeRejected
	}
}
