package commands

import (
	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

func newLoginCommand(a *app) *cobra.Command {
	var pw string

	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Check credentials and print the bound account number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := authFlags{user: args[0], password: pw}
			return a.withStore(func(s *bank.Store) error {
				number, err := auth.account(s)
				if err != nil {
					return err
				}
				printf(cmd, "Logged in as %s, account %s\n", args[0], number)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&pw, "password", "p", "", "client password")

	return cmd
}

func newDepositCommand(a *app) *cobra.Command {
	var auth authFlags

	cmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit into your account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(s *bank.Store) error {
				number, err := auth.account(s)
				if err != nil {
					return err
				}
				return report(cmd, s, number)(s.Deposit(number, amount))
			})
		},
	}
	auth.register(cmd)

	return cmd
}

func newWithdrawCommand(a *app) *cobra.Command {
	var auth authFlags

	cmd := &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Withdraw from your account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(s *bank.Store) error {
				number, err := auth.account(s)
				if err != nil {
					return err
				}
				return report(cmd, s, number)(s.Withdraw(number, amount))
			})
		},
	}
	auth.register(cmd)

	return cmd
}

func newTransferCommand(a *app) *cobra.Command {
	var auth authFlags

	cmd := &cobra.Command{
		Use:   "transfer <destination> <amount>",
		Short: "Transfer from your account to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return a.withStore(func(s *bank.Store) error {
				number, err := auth.account(s)
				if err != nil {
					return err
				}
				return report(cmd, s, number)(s.Transfer(number, args[0], amount))
			})
		},
	}
	auth.register(cmd)

	return cmd
}

// report prints the movement and the resulting balance. A flush failure
// still prints, since the movement was applied.
func report(cmd *cobra.Command, s *bank.Store, number string) func(model.Movement, error) error {
	return func(m model.Movement, err error) error {
		if err != nil && !isFlushFailure(err) {
			return err
		}
		printf(cmd, "%s\n", m.Describe())
		if acct, aerr := s.Account(number); aerr == nil {
			printf(cmd, "Balance: %s\n", acct.Balance().StringFixed(2))
		}
		return err
	}
}
