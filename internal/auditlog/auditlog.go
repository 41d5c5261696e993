// Package auditlog appends one CSV row per store operation.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/passbook-dev/passbook/internal/bank"
)

// Entry is one row in the audit log.
type Entry struct {
	Timestamp    time.Time
	Op           string
	Account      string
	Counterparty string
	Amount       string
	Outcome      string
	Error        string
}

// Header is the CSV header for the audit log.
const Header = "timestamp,op,account,counterparty,amount,outcome,error"

const (
	numFields       = 7
	colTimestamp    = 0
	colOp           = 1
	colAccount      = 2
	colCounterparty = 3
	colAmount       = 4
	colOutcome      = 5
	colError        = 6
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colOp] = e.Op
	row[colAccount] = e.Account
	row[colCounterparty] = e.Counterparty
	row[colAmount] = e.Amount
	row[colOutcome] = e.Outcome
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	return Entry{
		Timestamp:    ts,
		Op:           record[colOp],
		Account:      record[colAccount],
		Counterparty: record[colCounterparty],
		Amount:       record[colAmount],
		Outcome:      record[colOutcome],
		Error:        record[colError],
	}, nil
}

// FromEvent builds the audit row for a store event. Authentication rows
// carry the client identifier in the account column when no account
// resolved.
func FromEvent(e bank.Event) Entry {
	entry := Entry{
		Timestamp:    e.At,
		Op:           string(e.Op),
		Account:      e.Account,
		Counterparty: e.Counterparty,
		Outcome:      e.Outcome(),
	}
	if entry.Account == "" {
		entry.Account = e.Client
	}
	if !e.Amount.IsZero() {
		entry.Amount = e.Amount.StringFixed(2)
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
	}
	return entry
}

// Append writes entries to path, creating the file and header if needed.
func Append(path string, entries []Entry) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating audit log dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing audit log: %w", cerr)
		}
	}()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// Read returns all entries from path. Returns an empty slice if the file
// does not exist.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Writer is a bank.Observer that appends every event to a CSV file.
// Write failures are logged, never returned to the operation.
type Writer struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewWriter returns a Writer appending to path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{path: path, logger: logger}
}

// Observe implements bank.Observer.
func (w *Writer) Observe(e bank.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := Append(w.path, []Entry{FromEvent(e)}); err != nil {
		w.logger.Warn("audit log write failed",
			slog.String("path", w.path),
			slog.String("op", string(e.Op)),
			slog.String("error", err.Error()))
	}
}
