package commands

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

func newClientCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage clients",
	}
	cmd.AddCommand(newClientRegisterCommand(a))
	return cmd
}

func newClientRegisterCommand(a *app) *cobra.Command {
	var name, pw string

	cmd := &cobra.Command{
		Use:   "register <identifier>",
		Short: "Register a new client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := password(pw)
			if err != nil {
				return err
			}
			return a.withStore(func(s *bank.Store) error {
				if err := s.RegisterClient(args[0], name, secret); err != nil {
					return err
				}
				c, _ := s.Client(args[0])
				printf(cmd, "Registered client %s (%s)\n", c.Identifier, c.DisplayName)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the identifier)")
	cmd.Flags().StringVarP(&pw, "password", "p", "", "client password")

	return cmd
}

func newAccountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newAccountOpenCommand(a))
	return cmd
}

func newAccountOpenCommand(a *app) *cobra.Command {
	var overdraft string

	cmd := &cobra.Command{
		Use:   "open <identifier>",
		Short: "Open the account for a registered client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant := a.policy.DefaultVariant
			if cmd.Flags().Changed("overdraft") {
				limit, err := parseLimit(overdraft)
				if err != nil {
					return err
				}
				variant = model.Overdraft(limit)
			}

			return a.withStore(func(s *bank.Store) error {
				number, err := s.OpenAccountWith(args[0], variant)
				if err != nil {
					return err
				}
				if variant.Kind == model.VariantOverdraft {
					printf(cmd, "Opened account %s for %s (overdraft limit %s)\n",
						number, args[0], variant.Limit.StringFixed(2))
				} else {
					printf(cmd, "Opened account %s for %s\n", number, args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&overdraft, "overdraft", "", "open an overdraft account with this limit")

	return cmd
}

// parseLimit reads a non-negative overdraft limit. Zero is allowed.
func parseLimit(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: --overdraft %q must be a non-negative amount", bank.ErrInvalidAmount, s)
	}
	return d, nil
}
