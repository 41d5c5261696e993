package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbook-dev/passbook/internal/bank"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, MovementEvent) error {
	p.calls++
	return errors.New("broker unavailable")
}

func (p *failingPublisher) Close() error { return nil }

var at = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func TestFromEvent(t *testing.T) {
	ev, ok := FromEvent(bank.Event{
		Op:                  bank.OpTransfer,
		Account:             "0001",
		Counterparty:        "0002",
		Amount:              decimal.NewFromInt(10),
		Balance:             decimal.NewFromInt(90),
		CounterpartyBalance: decimal.NewFromInt(10),
		Applied:             true,
		At:                  at,
	})
	require.True(t, ok)
	assert.Equal(t, "transfer", ev.Op)
	assert.Equal(t, "0002", ev.Counterparty)
	assert.True(t, ev.Balance.Equal(decimal.NewFromInt(90)))

	skipped := []bank.Event{
		{Op: bank.OpDeposit, Err: bank.ErrInvalidAmount},
		{Op: bank.OpDeposit, Applied: true, Err: &bank.FlushError{Op: bank.OpDeposit, Err: errors.New("x")}},
		{Op: bank.OpOpenAccount, Applied: true},
		{Op: bank.OpAuthenticate},
	}
	for _, e := range skipped {
		_, ok := FromEvent(e)
		assert.False(t, ok, "%s should not publish", e.Op)
	}
}

func TestForwarder_Publishes(t *testing.T) {
	rec := &Recorder{}
	f := NewForwarder(rec, time.Second, nil)

	f.Observe(bank.Event{Op: bank.OpDeposit, Account: "0001", Amount: decimal.NewFromInt(5), Applied: true, At: at})
	f.Observe(bank.Event{Op: bank.OpWithdraw, Account: "0001", Err: bank.ErrInsufficientFunds})

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, "deposit", got[0].Op)
	assert.True(t, got[0].At.Equal(at))
	require.NoError(t, f.Close())
}

func TestForwarder_SwallowsPublishErrors(t *testing.T) {
	pub := &failingPublisher{}
	f := NewForwarder(pub, 0, nil)

	assert.NotPanics(t, func() {
		f.Observe(bank.Event{Op: bank.OpDeposit, Account: "0001", Amount: decimal.NewFromInt(5), Applied: true})
	})
	assert.Equal(t, 1, pub.calls)
}

func TestMovementEventJSON(t *testing.T) {
	ev := MovementEvent{
		Op:      "deposit",
		Account: "0001",
		Amount:  decimal.RequireFromString("10.50"),
		Balance: decimal.RequireFromString("10.50"),
		At:      at,
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"amount":"10.5"`)
	assert.NotContains(t, s, "counterparty")
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "passbook.movements")
	assert.Equal(t, "passbook.movements", p.writer.Topic)
	assert.Equal(t, "localhost:9092", p.writer.Addr.String())
	require.NoError(t, p.Close())
}
