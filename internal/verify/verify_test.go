package verify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/passbook-dev/passbook/internal/credential"
	"github.com/passbook-dev/passbook/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validState() model.State {
	return model.State{
		Clients: []model.Client{{Identifier: "alice"}, {Identifier: "bob"}},
		Accounts: []model.AccountRecord{
			{
				Number:          "0001",
				Owner:           "alice",
				Balance:         dec("60"),
				Variant:         model.VariantStandard,
				WithdrawalCount: 1,
				Movements: []model.Movement{
					{Seq: 1, Kind: model.KindDeposit, Amount: dec("100")},
					{Seq: 2, Kind: model.KindWithdrawal, Amount: dec("30")},
					{Seq: 3, Kind: model.KindTransferOut, Amount: dec("10"), Counterparty: "0002"},
				},
			},
			{
				Number:  "0002",
				Owner:   "bob",
				Balance: dec("10"),
				Variant: model.VariantStandard,
				Movements: []model.Movement{
					{Seq: 1, Kind: model.KindTransferIn, Amount: dec("10"), Counterparty: "0001"},
				},
			},
		},
	}
}

func invariants(errs []ValidationError) []int {
	var out []int
	for _, e := range errs {
		out = append(out, e.Invariant)
	}
	return out
}

func TestValidate_Clean(t *testing.T) {
	assert.Empty(t, Validate(validState()))
	assert.Empty(t, Validate(model.State{}))
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.State)
		want   int
	}{
		{"duplicate client", func(s *model.State) {
			s.Clients = append(s.Clients, model.Client{Identifier: "alice"})
		}, UniqueClients},
		{"duplicate number", func(s *model.State) {
			s.Clients = append(s.Clients, model.Client{Identifier: "carol"})
			s.Accounts = append(s.Accounts, model.AccountRecord{Number: "0001", Owner: "carol", Variant: model.VariantStandard})
		}, UniqueAccountNumbers},
		{"unknown owner", func(s *model.State) {
			s.Accounts[1].Owner = "ghost"
		}, OwnerExists},
		{"two accounts one owner", func(s *model.State) {
			s.Accounts = append(s.Accounts, model.AccountRecord{Number: "0003", Owner: "alice", Variant: model.VariantStandard})
		}, OneAccountPerClient},
		{"negative standard balance", func(s *model.State) {
			s.Accounts[1].Balance = dec("-1")
			s.Accounts[1].Movements = nil
		}, BalanceWithinFloor},
		{"zero amount", func(s *model.State) {
			s.Accounts[0].Movements[0].Amount = decimal.Zero
		}, MovementWellFormed},
		{"unknown kind", func(s *model.State) {
			s.Accounts[0].Movements[0].Kind = "refund"
		}, MovementWellFormed},
		{"transfer without counterparty", func(s *model.State) {
			s.Accounts[1].Movements[0].Counterparty = ""
		}, MovementWellFormed},
		{"seq repeats", func(s *model.State) {
			s.Accounts[0].Movements[2].Seq = 2
		}, SeqIncreasing},
		{"short account number", func(s *model.State) {
			s.Accounts[1].Number = "2"
			s.Accounts[0].Movements[2].Counterparty = "2"
		}, NumberWellFormed},
		{"non-digit account number", func(s *model.State) {
			s.Accounts[1].Number = "00x2"
		}, NumberWellFormed},
		{"unreadable credential hash", func(s *model.State) {
			s.Clients[0].CredentialHash = []byte("plaintext-password")
		}, CredentialReadable},
		{"replay mismatch", func(s *model.State) {
			s.Accounts[0].Balance = dec("61")
		}, BalanceMatchesReplay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validState()
			tt.mutate(&state)
			errs := Validate(state)
			require.NotEmpty(t, errs)
			assert.Contains(t, invariants(errs), tt.want)
		})
	}
}

func TestValidate_CredentialHash(t *testing.T) {
	h := credential.NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("pw")
	require.NoError(t, err)

	state := validState()
	state.Clients[0].CredentialHash = hash
	assert.Empty(t, Validate(state), "a real hash and an empty hash are both accepted")

	state.Clients[1].CredentialHash = hash[:20]
	errs := Validate(state)
	assert.Equal(t, []int{CredentialReadable}, invariants(errs))
	assert.Equal(t, "bob", errs[0].Subject)
	assert.True(t, errs[0].Structural())
}

func TestValidate_OverdraftFloor(t *testing.T) {
	state := model.State{
		Clients: []model.Client{{Identifier: "alice"}},
		Accounts: []model.AccountRecord{{
			Number:         "0001",
			Owner:          "alice",
			Balance:        dec("-100"),
			Variant:        model.VariantOverdraft,
			OverdraftLimit: dec("100"),
			Movements: []model.Movement{
				{Seq: 1, Kind: model.KindWithdrawal, Amount: dec("100")},
			},
		}},
	}
	assert.Empty(t, Validate(state))

	state.Accounts[0].Balance = dec("-100.01")
	state.Accounts[0].Movements[0].Amount = dec("100.01")
	assert.Equal(t, []int{BalanceWithinFloor}, invariants(Validate(state)))
}

func TestStructural(t *testing.T) {
	state := validState()
	state.Accounts[0].Balance = dec("75")

	errs := Validate(state)
	require.Len(t, errs, 1)
	assert.False(t, errs[0].Structural())
	assert.Empty(t, Structural(errs))

	state.Accounts[0].Movements[0].Seq = 5
	assert.NotEmpty(t, Structural(Validate(state)))
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Invariant: 5, Subject: "0001", Description: "balance -1.00 below floor 0.00"}
	assert.Equal(t, "invariant 5 [0001]: balance -1.00 below floor 0.00", e.Error())
}
