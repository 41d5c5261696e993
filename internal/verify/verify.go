// Package verify checks a persisted store snapshot against the ledger's
// structural invariants.
package verify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/credential"
	"github.com/passbook-dev/passbook/internal/id"
	"github.com/passbook-dev/passbook/internal/model"
)

// Invariant numbers reported in ValidationError.
const (
	UniqueAccountNumbers = 1
	UniqueClients        = 2
	OwnerExists          = 3
	OneAccountPerClient  = 4
	BalanceWithinFloor   = 5
	MovementWellFormed   = 6
	SeqIncreasing        = 7
	BalanceMatchesReplay = 8
	NumberWellFormed     = 9
	CredentialReadable   = 10
)

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Invariant   int
	Subject     string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invariant %d [%s]: %s", e.Invariant, e.Subject, e.Description)
}

// Structural reports whether a violation makes a document unloadable.
// Replay mismatches are informational: migrated accounts may carry an
// opening balance with no movement behind it.
func (e ValidationError) Structural() bool {
	return e.Invariant != BalanceMatchesReplay
}

// Validate checks every invariant and returns all violations found.
func Validate(state model.State) []ValidationError {
	var errs []ValidationError

	clients := make(map[string]bool, len(state.Clients))
	for _, c := range state.Clients {
		if clients[c.Identifier] {
			errs = append(errs, ValidationError{
				Invariant:   UniqueClients,
				Subject:     c.Identifier,
				Description: "client identifier appears more than once",
			})
		}
		clients[c.Identifier] = true

		// An empty hash is a client that cannot log in yet; a present one
		// must be something bcrypt can read.
		if len(c.CredentialHash) > 0 {
			if err := credential.Check(c.CredentialHash); err != nil {
				errs = append(errs, ValidationError{
					Invariant:   CredentialReadable,
					Subject:     c.Identifier,
					Description: err.Error(),
				})
			}
		}
	}

	numbers := make(map[string]bool, len(state.Accounts))
	owners := make(map[string]string, len(state.Accounts))
	for _, acct := range state.Accounts {
		if numbers[acct.Number] {
			errs = append(errs, ValidationError{
				Invariant:   UniqueAccountNumbers,
				Subject:     acct.Number,
				Description: "account number appears more than once",
			})
		}
		numbers[acct.Number] = true

		if _, err := id.ParseAccountNumber(acct.Number); err != nil {
			errs = append(errs, ValidationError{
				Invariant:   NumberWellFormed,
				Subject:     acct.Number,
				Description: err.Error(),
			})
		}

		if !clients[acct.Owner] {
			errs = append(errs, ValidationError{
				Invariant:   OwnerExists,
				Subject:     acct.Number,
				Description: fmt.Sprintf("owner %q is not a registered client", acct.Owner),
			})
		}
		if other, ok := owners[acct.Owner]; ok {
			errs = append(errs, ValidationError{
				Invariant:   OneAccountPerClient,
				Subject:     acct.Number,
				Description: fmt.Sprintf("client %q already owns %s", acct.Owner, other),
			})
		} else {
			owners[acct.Owner] = acct.Number
		}

		errs = append(errs, validateAccount(acct)...)
	}

	return errs
}

func validateAccount(acct model.AccountRecord) []ValidationError {
	var errs []ValidationError

	if floor := acct.VariantValue().Floor(); acct.Balance.LessThan(floor) {
		errs = append(errs, ValidationError{
			Invariant:   BalanceWithinFloor,
			Subject:     acct.Number,
			Description: fmt.Sprintf("balance %s below floor %s", acct.Balance.StringFixed(2), floor.StringFixed(2)),
		})
	}

	replay := decimal.Zero
	lastSeq := 0
	for _, m := range acct.Movements {
		subject := fmt.Sprintf("%s#%d", acct.Number, m.Seq)

		switch {
		case !m.Kind.Valid():
			errs = append(errs, ValidationError{
				Invariant:   MovementWellFormed,
				Subject:     subject,
				Description: fmt.Sprintf("unknown movement kind %q", m.Kind),
			})
		case !m.Amount.IsPositive():
			errs = append(errs, ValidationError{
				Invariant:   MovementWellFormed,
				Subject:     subject,
				Description: fmt.Sprintf("amount %s is not positive", m.Amount),
			})
		case m.Kind.IsTransfer() && m.Counterparty == "":
			errs = append(errs, ValidationError{
				Invariant:   MovementWellFormed,
				Subject:     subject,
				Description: "transfer movement has no counterparty",
			})
		}

		if m.Seq <= lastSeq {
			errs = append(errs, ValidationError{
				Invariant:   SeqIncreasing,
				Subject:     subject,
				Description: fmt.Sprintf("seq %d does not follow %d", m.Seq, lastSeq),
			})
		}
		lastSeq = m.Seq
		replay = replay.Add(m.Signed())
	}

	if !replay.Equal(acct.Balance) {
		errs = append(errs, ValidationError{
			Invariant:   BalanceMatchesReplay,
			Subject:     acct.Number,
			Description: fmt.Sprintf("balance %s != replayed movements %s", acct.Balance.StringFixed(2), replay.StringFixed(2)),
		})
	}
	return errs
}

// Structural filters errs down to the violations that make a document invalid.
func Structural(errs []ValidationError) []ValidationError {
	var out []ValidationError
	for _, e := range errs {
		if e.Structural() {
			out = append(out, e)
		}
	}
	return out
}
