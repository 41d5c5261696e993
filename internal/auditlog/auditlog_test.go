package auditlog

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbook-dev/passbook/internal/bank"
)

var testTime = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func testEntry() Entry {
	return Entry{
		Timestamp:    testTime,
		Op:           "transfer",
		Account:      "0001",
		Counterparty: "0002",
		Amount:       "10.00",
		Outcome:      "ok",
	}
}

func TestAppend_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.csv")
	require.NoError(t, Append(path, []Entry{testEntry()}))

	entries, err := Read(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer", entries[0].Op)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), Header+"\n")
}

func TestAppend_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	require.NoError(t, Append(path, []Entry{testEntry()}))

	e2 := testEntry()
	e2.Op = "withdraw"
	e2.Outcome = "rejected"
	e2.Error = "insufficient funds"
	require.NoError(t, Append(path, []Entry{e2}))

	entries, err := Read(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "transfer", entries[0].Op)
	assert.Equal(t, "insufficient funds", entries[1].Error)
}

func TestRead_NotFound(t *testing.T) {
	entries, err := Read(filepath.Join(t.TempDir(), "audit.csv"))
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestMarshalUnmarshal(t *testing.T) {
	e := testEntry()
	row := MarshalEntry(e)
	assert.Len(t, row, 7)
	assert.Equal(t, "2026-01-15T10:30:00Z", row[0])

	got, err := UnmarshalEntry(row)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	got.Timestamp = e.Timestamp
	assert.Equal(t, e, got)
}

func TestUnmarshalEntry_BadFieldCount(t *testing.T) {
	_, err := UnmarshalEntry([]string{"one", "two"})
	assert.ErrorContains(t, err, "expected 7 fields")
}

func TestFromEvent(t *testing.T) {
	e := FromEvent(bank.Event{
		Op:      bank.OpWithdraw,
		Account: "0003",
		Amount:  decimal.RequireFromString("12.5"),
		Err:     bank.ErrWithdrawalLimitReached,
		At:      testTime,
	})
	assert.Equal(t, "withdraw", e.Op)
	assert.Equal(t, "12.50", e.Amount)
	assert.Equal(t, bank.OutcomeRejected, e.Outcome)
	assert.Equal(t, "withdrawal limit reached", e.Error)

	auth := FromEvent(bank.Event{Op: bank.OpAuthenticate, Client: "alice", Err: bank.ErrAuthenticationFailed})
	assert.Equal(t, "alice", auth.Account)
	assert.Empty(t, auth.Amount)

	flush := FromEvent(bank.Event{Op: bank.OpDeposit, Err: &bank.FlushError{Op: bank.OpDeposit, Err: errors.New("disk full")}})
	assert.Equal(t, bank.OutcomeFlushFailed, flush.Outcome)
}

func TestWriter_ConcurrentObserve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	w := NewWriter(path, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Observe(bank.Event{Op: bank.OpDeposit, Account: "0001", Amount: decimal.NewFromInt(1), At: testTime})
		}()
	}
	wg.Wait()

	entries, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestAppend_WriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	err := Append("/dev/full", []Entry{testEntry()})
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOSPC)
}

func TestWriter_LogsWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	var buf bytes.Buffer
	w := NewWriter("/dev/full", slog.New(slog.NewTextHandler(&buf, nil)))
	w.Observe(bank.Event{Op: bank.OpDeposit, Account: "0001", Amount: decimal.NewFromInt(1), At: testTime})

	assert.Contains(t, buf.String(), "audit log write failed")
	assert.Contains(t, buf.String(), "op=deposit")
}
