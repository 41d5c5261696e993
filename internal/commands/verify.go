package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/codec"
	"github.com/passbook-dev/passbook/internal/verify"
)

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the store document against the ledger invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := codec.NewFile(a.cfg.Store.Path)
			state, err := file.ReadRaw()
			if err != nil {
				return err
			}

			errs := verify.Validate(state)
			for _, e := range errs {
				if e.Structural() {
					printf(cmd, "FAIL %s\n", e)
				} else {
					printf(cmd, "WARN %s\n", e)
				}
			}

			structural := verify.Structural(errs)
			if len(structural) > 0 {
				return fmt.Errorf("%w: %d invariant violations in %s",
					codec.ErrStoreCorrupt, len(structural), file.Path())
			}
			if len(errs) > 0 {
				a.logger.Warn("balances differ from movement replay",
					slog.Int("warnings", len(errs)))
			}
			printf(cmd, "OK: %d clients, %d accounts\n", len(state.Clients), len(state.Accounts))
			return nil
		},
	}
}
