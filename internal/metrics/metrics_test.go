package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

func TestObserve_Counts(t *testing.T) {
	c := NewCollector(nil)

	c.Observe(bank.Event{Op: bank.OpDeposit, Account: "0001", Applied: true, Balance: decimal.NewFromInt(200), Elapsed: time.Millisecond})
	c.Observe(bank.Event{Op: bank.OpWithdraw, Account: "0001", Err: bank.ErrInsufficientFunds})
	c.Observe(bank.Event{Op: bank.OpWithdraw, Account: "0001", Applied: true, Balance: decimal.NewFromInt(150),
		Err: &bank.FlushError{Op: bank.OpWithdraw, Err: errors.New("disk full")}})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("deposit", bank.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("withdraw", bank.OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("withdraw", bank.OutcomeFlushFailed)))
	assert.Equal(t, 150.0, testutil.ToFloat64(c.balance.WithLabelValues("0001")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestObserve_TransferSetsBothBalances(t *testing.T) {
	c := NewCollector(nil)
	c.Observe(bank.Event{
		Op:                  bank.OpTransfer,
		Account:             "0001",
		Counterparty:        "0002",
		Applied:             true,
		Balance:             decimal.RequireFromString("60.5"),
		CounterpartyBalance: decimal.RequireFromString("39.5"),
	})

	assert.Equal(t, 60.5, testutil.ToFloat64(c.balance.WithLabelValues("0001")))
	assert.Equal(t, 39.5, testutil.ToFloat64(c.balance.WithLabelValues("0002")))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector(nil)
	c.Observe(bank.Event{Op: bank.OpOpenAccount, Account: "0003", Applied: true})

	path := filepath.Join(t.TempDir(), "passbook.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `passbook_operations_total{op="open_account",outcome="ok"} 1`)
	assert.Contains(t, s, `passbook_account_balance{account="0003"} 0`)
}

func TestSeed(t *testing.T) {
	c := NewCollector(nil)
	c.Seed(model.State{Accounts: []model.AccountRecord{
		{Number: "0001", Balance: decimal.RequireFromString("12.25")},
		{Number: "0002", Balance: decimal.RequireFromString("-3")},
	}})

	assert.Equal(t, 12.25, testutil.ToFloat64(c.balance.WithLabelValues("0001")))
	assert.Equal(t, -3.0, testutil.ToFloat64(c.balance.WithLabelValues("0002")))
}
