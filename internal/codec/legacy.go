package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/model"
)

// Hasher turns a plaintext password into a stored credential.
type Hasher interface {
	Hash(password string) ([]byte, error)
}

type legacyDoc struct {
	Contas   map[string]legacyAccount `json:"contas"`
	Usuarios map[string]legacyUser    `json:"usuarios"`
}

type legacyAccount struct {
	Cliente string          `json:"cliente"`
	Saldo   decimal.Decimal `json:"saldo"`
	Extrato []string        `json:"extrato"`
	Saques  int             `json:"saques"`
}

type legacyUser struct {
	Senha string  `json:"senha"`
	Conta *string `json:"conta"`
}

var (
	legacyDeposit     = regexp.MustCompile(`^Depósito: \+R\$ ([0-9]+(?:\.[0-9]+)?)$`)
	legacyWithdrawal  = regexp.MustCompile(`^Saque: -R\$ ([0-9]+(?:\.[0-9]+)?)$`)
	legacyTransferOut = regexp.MustCompile(`^Transferência para ([0-9]+): -R\$ ([0-9]+(?:\.[0-9]+)?)$`)
	legacyTransferIn  = regexp.MustCompile(`^Transferência de ([0-9]+): \+R\$ ([0-9]+(?:\.[0-9]+)?)$`)
)

// DecodeLegacy converts a banco.json document from the earlier single-file
// program. Plaintext passwords are hashed with h. Matching transfer legs are
// linked by a shared transfer id, in order of appearance.
func DecodeLegacy(data []byte, h Hasher) (model.State, error) {
	var doc legacyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.State{}, fmt.Errorf("%w: legacy document: %v", ErrStoreCorrupt, err)
	}

	at := now()
	state := model.State{
		Clients:  make([]model.Client, 0, len(doc.Usuarios)),
		Accounts: make([]model.AccountRecord, 0, len(doc.Contas)),
	}

	for _, ident := range sortedKeys(doc.Usuarios) {
		u := doc.Usuarios[ident]
		hash, err := h.Hash(u.Senha)
		if err != nil {
			return model.State{}, fmt.Errorf("hashing password for %s: %w", ident, err)
		}
		state.Clients = append(state.Clients, model.Client{
			Identifier:     ident,
			DisplayName:    ident,
			CredentialHash: hash,
		})
		if u.Conta != nil {
			acct, ok := doc.Contas[*u.Conta]
			if !ok {
				return model.State{}, fmt.Errorf("%w: client %s refers to missing account %s", ErrStoreCorrupt, ident, *u.Conta)
			}
			if acct.Cliente != ident {
				return model.State{}, fmt.Errorf("%w: account %s belongs to %s, not %s", ErrStoreCorrupt, *u.Conta, acct.Cliente, ident)
			}
		}
	}

	// Pending outgoing legs keyed by src|dst|amount, waiting for their
	// incoming counterpart.
	pending := make(map[string][]uuid.UUID)
	legKey := func(src, dst string, amount decimal.Decimal) string {
		return src + "|" + dst + "|" + amount.String()
	}

	numbers := sortedKeys(doc.Contas)
	for _, num := range numbers {
		acct := doc.Contas[num]
		rec := model.AccountRecord{
			Number:          num,
			Owner:           acct.Cliente,
			Balance:         acct.Saldo,
			Variant:         model.VariantStandard,
			WithdrawalCount: acct.Saques,
			Movements:       make([]model.Movement, 0, len(acct.Extrato)),
		}
		for i, line := range acct.Extrato {
			m, err := parseLegacyMovement(line)
			if err != nil {
				return model.State{}, fmt.Errorf("%w: account %s line %d: %v", ErrStoreCorrupt, num, i+1, err)
			}
			m.ID = uuid.New()
			m.Seq = i + 1
			m.At = at
			if m.Kind == model.KindTransferOut {
				m.TransferID = uuid.New()
				key := legKey(num, m.Counterparty, m.Amount)
				pending[key] = append(pending[key], m.TransferID)
			}
			rec.Movements = append(rec.Movements, m)
		}
		state.Accounts = append(state.Accounts, rec)
	}

	// Second pass: give each incoming leg the id of its outgoing leg.
	for a := range state.Accounts {
		rec := &state.Accounts[a]
		for i := range rec.Movements {
			m := &rec.Movements[i]
			if m.Kind != model.KindTransferIn {
				continue
			}
			key := legKey(m.Counterparty, rec.Number, m.Amount)
			if q := pending[key]; len(q) > 0 {
				m.TransferID = q[0]
				pending[key] = q[1:]
			}
		}
	}

	if err := checkStructure(state); err != nil {
		return model.State{}, err
	}
	return state, nil
}

func parseLegacyMovement(line string) (model.Movement, error) {
	var (
		kind         model.MovementKind
		counterparty string
		amount       string
	)
	if m := legacyDeposit.FindStringSubmatch(line); m != nil {
		kind, amount = model.KindDeposit, m[1]
	} else if m := legacyWithdrawal.FindStringSubmatch(line); m != nil {
		kind, amount = model.KindWithdrawal, m[1]
	} else if m := legacyTransferOut.FindStringSubmatch(line); m != nil {
		kind, counterparty, amount = model.KindTransferOut, m[1], m[2]
	} else if m := legacyTransferIn.FindStringSubmatch(line); m != nil {
		kind, counterparty, amount = model.KindTransferIn, m[1], m[2]
	} else {
		return model.Movement{}, fmt.Errorf("unrecognized movement %q", line)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return model.Movement{Kind: kind, Amount: d, Counterparty: counterparty}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
