package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/codec"
	"github.com/passbook-dev/passbook/internal/model"
	"github.com/passbook-dev/passbook/internal/verify"
)

func newMigrateCommand(a *app) *cobra.Command {
	var (
		force  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "migrate <banco.json|banco_dados.json>",
		Short: "Convert a legacy bank document into the store",
		Long: `Convert a legacy bank document into the store.

Two formats are understood. banco.json from the procedural program has
plaintext passwords, which are hashed, and movement lines, which are
parsed into typed movements. banco_dados.json from the object-oriented
program has clients and accounts only; each client's initial password is
their account number without leading zeros, and ContaCorrente accounts
become overdraft accounts with a limit of 500.

--format auto picks the format from the document. An existing store is
left alone unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading legacy document: %w", err)
			}

			flusher := a.flusher()
			if a.file.Exists() && !force {
				return fmt.Errorf("store %s already exists (use --force to replace it)", a.file.Path())
			}

			var state model.State
			switch format {
			case "auto":
				state, err = codec.DecodeAnyLegacy(data, a.hasher())
			case "banco":
				state, err = codec.DecodeLegacy(data, a.hasher())
			case "poo":
				state, err = codec.DecodeLegacyPOO(data, a.hasher())
			default:
				return fmt.Errorf("unknown legacy format %q (want auto, banco, or poo)", format)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			for _, e := range verify.Validate(state) {
				if e.Structural() {
					return fmt.Errorf("%s: %w: %v", args[0], codec.ErrStoreCorrupt, e)
				}
				a.logger.Warn("migrated account", slog.String("issue", e.Error()))
			}

			s := bank.NewStore(bank.WithLimits(a.policy.Limits), bank.WithFlusher(flusher))
			if err := s.Restore(state); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := s.Flush(); err != nil {
				return err
			}

			printf(cmd, "Migrated %d clients and %d accounts into %s\n",
				len(state.Clients), len(state.Accounts), a.file.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing store")
	cmd.Flags().StringVar(&format, "format", "auto", "legacy format: auto, banco, or poo")

	return cmd
}
