package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/id"
	"github.com/passbook-dev/passbook/internal/model"
)

// LegacyCheckingLimit is the overdraft limit every ContaCorrente account had
// in the object-oriented program.
var LegacyCheckingLimit = decimal.NewFromInt(500)

type pooDoc struct {
	Clientes []pooClient  `json:"clientes"`
	Contas   []pooAccount `json:"contas"`
}

type pooClient struct {
	Nome string `json:"nome"`
	CPF  string `json:"cpf"`
}

type pooAccount struct {
	Numero int             `json:"numero"`
	CPF    string          `json:"cpf"`
	Saldo  decimal.Decimal `json:"saldo"`
	Tipo   string          `json:"tipo"`
}

// DecodeLegacyPOO converts a banco_dados.json document from the
// object-oriented program. That program kept no passwords and no movement
// history: clients authenticated with their CPF and account number, so each
// migrated client's initial password is the account number without padding
// ("7" for account 0007). A client without an account gets no credential.
// Balances are carried over as they are.
func DecodeLegacyPOO(data []byte, h Hasher) (model.State, error) {
	var doc pooDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.State{}, fmt.Errorf("%w: legacy document: %v", ErrStoreCorrupt, err)
	}

	known := make(map[string]bool, len(doc.Clientes))
	for _, c := range doc.Clientes {
		if c.CPF == "" {
			return model.State{}, fmt.Errorf("%w: client %q has no cpf", ErrStoreCorrupt, c.Nome)
		}
		known[c.CPF] = true
	}

	passwords := make(map[string]string)
	state := model.State{
		Clients:  make([]model.Client, 0, len(doc.Clientes)),
		Accounts: make([]model.AccountRecord, 0, len(doc.Contas)),
	}
	for i, a := range doc.Contas {
		if a.Numero < 1 {
			return model.State{}, fmt.Errorf("%w: account %d has number %d", ErrStoreCorrupt, i+1, a.Numero)
		}
		if !known[a.CPF] {
			return model.State{}, fmt.Errorf("%w: account %d belongs to unknown cpf %q", ErrStoreCorrupt, a.Numero, a.CPF)
		}
		rec := model.AccountRecord{
			Number:    id.FormatAccountNumber(a.Numero),
			Owner:     a.CPF,
			Balance:   a.Saldo,
			Variant:   model.VariantStandard,
			Movements: []model.Movement{},
		}
		switch a.Tipo {
		case "ContaCorrente":
			rec.Variant = model.VariantOverdraft
			rec.OverdraftLimit = LegacyCheckingLimit
		case "Conta", "":
		default:
			return model.State{}, fmt.Errorf("%w: account %d has unknown type %q", ErrStoreCorrupt, a.Numero, a.Tipo)
		}
		if _, ok := passwords[a.CPF]; !ok {
			passwords[a.CPF] = strconv.Itoa(a.Numero)
		}
		state.Accounts = append(state.Accounts, rec)
	}
	sort.Slice(state.Accounts, func(i, j int) bool {
		return state.Accounts[i].Number < state.Accounts[j].Number
	})

	for _, c := range doc.Clientes {
		client := model.Client{Identifier: c.CPF, DisplayName: c.Nome}
		if client.DisplayName == "" {
			client.DisplayName = c.CPF
		}
		if pw, ok := passwords[c.CPF]; ok {
			hash, err := h.Hash(pw)
			if err != nil {
				return model.State{}, fmt.Errorf("hashing password for %s: %w", c.CPF, err)
			}
			client.CredentialHash = hash
		}
		state.Clients = append(state.Clients, client)
	}
	sort.Slice(state.Clients, func(i, j int) bool {
		return state.Clients[i].Identifier < state.Clients[j].Identifier
	})

	if err := checkStructure(state); err != nil {
		return model.State{}, err
	}
	return state, nil
}

// DecodeAnyLegacy picks DecodeLegacyPOO for documents with a top-level
// "clientes" list and DecodeLegacy for everything else.
func DecodeAnyLegacy(data []byte, h Hasher) (model.State, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err == nil {
		if raw, ok := top["clientes"]; ok && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			return DecodeLegacyPOO(data, h)
		}
	}
	return DecodeLegacy(data, h)
}
