package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/export"
)

func newStatementCommand(a *app) *cobra.Command {
	var (
		auth   authFlags
		all    bool
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Show your account statement",
		Long: `Show your account statement.

Text output lists the most recent movements (statement.display_last in
passbook.yaml) unless --all is given. CSV and XLSX always contain the
full history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "csv":
			case "xlsx":
				if out == "" {
					return errors.New("--format xlsx requires --out")
				}
			default:
				return fmt.Errorf("unknown format %q (want text, csv, or xlsx)", format)
			}

			return a.withStore(func(s *bank.Store) error {
				number, err := auth.account(s)
				if err != nil {
					return err
				}
				st, err := s.Statement(number)
				if err != nil {
					return err
				}

				if out == "" {
					return writeStatement(cmd.OutOrStdout(), st, format, a.displayLast(all))
				}
				if err := writeStatementFile(out, st, format, a.displayLast(all)); err != nil {
					return err
				}
				printf(cmd, "Wrote %d movements to %s\n", len(st.Movements), out)
				return nil
			})
		},
	}

	auth.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "show every movement")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, csv, or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")

	return cmd
}

func writeStatement(w io.Writer, st bank.Statement, format string, last int) error {
	switch format {
	case "csv":
		return export.WriteCSV(w, st.Movements)
	case "xlsx":
		return export.WriteXLSX(w, st)
	default:
		return export.WriteText(w, st, last)
	}
}

// writeStatementFile writes the statement to path. A failed write or close
// is an error.
func writeStatementFile(path string, st bank.Statement, format string, last int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	werr := writeStatement(f, st, format, last)
	cerr := f.Close()
	if werr == nil && cerr != nil {
		werr = fmt.Errorf("closing %s: %w", path, cerr)
	}
	if werr != nil {
		return fmt.Errorf("writing %s: %w", path, werr)
	}
	return nil
}

func (a *app) displayLast(all bool) int {
	if all {
		return 0
	}
	return a.cfg.Statement.DisplayLast
}
