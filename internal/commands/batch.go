package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/importer"
)

func newBatchCommand(a *app) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch <file.csv|directory>",
		Short: "Apply a CSV file of deposits, withdrawals and transfers",
		Long: `Apply a CSV file of deposits, withdrawals and transfers.

The file has the header op,account,counterparty,amount. Given a
directory, every .csv file in it is applied and then moved to
processed/. Batches run as the operator and skip client authentication.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Batch.Workers
			}

			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("batch input: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return a.withStore(func(s *bank.Store) error {
				runner := importer.NewRunner(s, workers)
				apply := func(path string) (batchSummary, error) {
					f, err := os.Open(path)
					if err != nil {
						return batchSummary{}, fmt.Errorf("opening %s: %w", path, err)
					}
					defer f.Close()
					intents, err := importer.ParseIntents(f)
					if err != nil {
						return batchSummary{}, fmt.Errorf("%s: %w", path, err)
					}
					results := runner.Run(ctx, intents)
					sum := summarize(results)
					for _, r := range results {
						if r.Err != nil {
							printf(cmd, "%s:%d %s %s: %v\n", filepath.Base(path), r.Intent.Line, r.Intent.Op, r.Intent.Account, r.Err)
						}
					}
					a.logger.Info("batch applied",
						slog.String("file", path),
						slog.Int("applied", sum.applied),
						slog.Int("rejected", sum.rejected),
						slog.Int("failed", sum.failed))
					return sum, nil
				}

				if !info.IsDir() {
					sum, err := apply(args[0])
					if err != nil {
						return err
					}
					printf(cmd, "%s\n", sum)
					return sum.err()
				}

				files, err := importer.Scan(args[0])
				if err != nil {
					return err
				}
				var total batchSummary
				for _, fi := range files {
					sum, err := apply(fi.Path)
					if err != nil {
						return err
					}
					total.add(sum)
					if err := importer.MarkProcessed(args[0], fi.Name); err != nil {
						return err
					}
				}
				printf(cmd, "%d files: %s\n", len(files), total)
				return total.err()
			})
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent operations (default batch.workers)")

	return cmd
}

type batchSummary struct {
	applied  int
	rejected int
	failed   int
	first    error
}

func summarize(results []importer.Result) batchSummary {
	var s batchSummary
	for _, r := range results {
		switch {
		case r.Err == nil:
			s.applied++
		case bank.IsRuleViolation(r.Err) && !isFlushFailure(r.Err):
			s.rejected++
		default:
			s.failed++
		}
		if r.Err != nil && s.first == nil {
			s.first = r.Err
		}
	}
	return s
}

func (s *batchSummary) add(o batchSummary) {
	s.applied += o.applied
	s.rejected += o.rejected
	s.failed += o.failed
	if s.first == nil {
		s.first = o.first
	}
}

func (s batchSummary) String() string {
	return fmt.Sprintf("%d applied, %d rejected, %d failed", s.applied, s.rejected, s.failed)
}

// err is nil when every intent applied. Any failure makes it a persistence
// error; rejections alone keep the first rule violation.
func (s batchSummary) err() error {
	switch {
	case s.failed > 0:
		return fmt.Errorf("batch: %d intents failed", s.failed)
	case s.rejected > 0:
		return fmt.Errorf("batch: %d intents rejected: %w", s.rejected, s.first)
	}
	return nil
}
