package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/buildinfo"
	"github.com/passbook-dev/passbook/internal/config"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "passbook",
		Short:   "Personal banking ledger",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.FileName, "path to passbook.yaml")
	flags.StringVar(&a.storeOverride, "store", "", "path to the store document (overrides config)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newInitCommand(a),
		newClientCommand(a),
		newAccountCommand(a),
		newLoginCommand(a),
		newDepositCommand(a),
		newWithdrawCommand(a),
		newTransferCommand(a),
		newStatementCommand(a),
		newVerifyCommand(a),
		newBatchCommand(a),
		newMigrateCommand(a),
	)

	return rootCmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		slog.Debug("command failed", slog.String("error", err.Error()))
	}
	return ExitCode(err)
}

func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
