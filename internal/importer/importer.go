// Package importer reads batches of ledger operations from CSV and applies
// them to a store with a bounded pool of workers.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/model"
)

// Header is the CSV header for an intents file.
const Header = "op,account,counterparty,amount"

const (
	numFields = 4
	colOp     = 0
	colAcct   = 1
	colCparty = 2
	colAmount = 3
)

// Op is an operation an intent can request.
type Op string

const (
	OpDeposit  Op = "deposit"
	OpWithdraw Op = "withdraw"
	OpTransfer Op = "transfer"
)

// Intent is one requested operation from a batch file.
type Intent struct {
	Line         int // 1-based line in the source file
	Op           Op
	Account      string
	Counterparty string
	Amount       decimal.Decimal
}

// ParseIntents reads an intents CSV. The header row is required.
func ParseIntents(r io.Reader) ([]Intent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading intents CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if got := strings.Join(records[0], ","); got != Header {
		return nil, fmt.Errorf("unexpected header %q, want %q", got, Header)
	}

	var intents []Intent
	for i, rec := range records[1:] {
		in, err := parseIntent(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		in.Line = i + 2
		intents = append(intents, in)
	}
	return intents, nil
}

func parseIntent(rec []string) (Intent, error) {
	op := Op(strings.ToLower(strings.TrimSpace(rec[colOp])))
	switch op {
	case OpDeposit, OpWithdraw, OpTransfer:
	default:
		return Intent{}, fmt.Errorf("unknown op %q", rec[colOp])
	}

	in := Intent{
		Op:           op,
		Account:      strings.TrimSpace(rec[colAcct]),
		Counterparty: strings.TrimSpace(rec[colCparty]),
	}
	if in.Account == "" {
		return Intent{}, errors.New("account is required")
	}
	if op == OpTransfer && in.Counterparty == "" {
		return Intent{}, errors.New("transfer requires a counterparty")
	}
	if op != OpTransfer && in.Counterparty != "" {
		return Intent{}, fmt.Errorf("%s does not take a counterparty", op)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(rec[colAmount]))
	if err != nil {
		return Intent{}, fmt.Errorf("parsing amount %q: %w", rec[colAmount], err)
	}
	in.Amount = amount
	return in, nil
}

// Ledger is the subset of the store a batch drives.
type Ledger interface {
	Deposit(number string, amount decimal.Decimal) (model.Movement, error)
	Withdraw(number string, amount decimal.Decimal) (model.Movement, error)
	Transfer(src, dst string, amount decimal.Decimal) (model.Movement, error)
}

// Result pairs an intent with what applying it produced.
type Result struct {
	Intent   Intent
	Movement model.Movement
	Err      error
}

// Runner applies intents concurrently. Intents touching the same account
// may apply in any order; each one is still atomic.
type Runner struct {
	ledger  Ledger
	workers int
}

// NewRunner returns a Runner with at most workers concurrent operations.
func NewRunner(ledger Ledger, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{ledger: ledger, workers: workers}
}

// Run applies every intent and returns results in input order. Intents not
// started before ctx is done get ctx's error.
func (r *Runner) Run(ctx context.Context, intents []Intent) []Result {
	results := make([]Result, len(intents))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i, in := range intents {
		results[i].Intent = in

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(intents); j++ {
				results[j] = Result{Intent: intents[j], Err: ctx.Err()}
			}
			wg.Wait()
			return results
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return
			}
			results[i].Movement, results[i].Err = r.apply(in)
		}()
	}

	wg.Wait()
	return results
}

func (r *Runner) apply(in Intent) (model.Movement, error) {
	switch in.Op {
	case OpDeposit:
		return r.ledger.Deposit(in.Account, in.Amount)
	case OpWithdraw:
		return r.ledger.Withdraw(in.Account, in.Amount)
	case OpTransfer:
		return r.ledger.Transfer(in.Account, in.Counterparty, in.Amount)
	}
	return model.Movement{}, fmt.Errorf("unknown op %q", in.Op)
}

// processedDir is the subdirectory processed batch files move to.
const processedDir = "processed"

// FileInfo describes a CSV file in a batch inbox directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// Scan returns the CSV files directly inside dir.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading batch dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves dir/fileName to dir/processed/.
func MarkProcessed(dir, fileName string) error {
	dstDir := filepath.Join(dir, processedDir)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	src := filepath.Join(dir, fileName)
	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
