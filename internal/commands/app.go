package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/auditlog"
	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/codec"
	"github.com/passbook-dev/passbook/internal/config"
	"github.com/passbook-dev/passbook/internal/credential"
	"github.com/passbook-dev/passbook/internal/events"
	"github.com/passbook-dev/passbook/internal/gitops"
	"github.com/passbook-dev/passbook/internal/metrics"
)

// app carries what every subcommand shares: flags, config, logger, and
// the store once opened.
type app struct {
	configPath    string
	storeOverride string
	verbose       bool

	cfg    *config.Config
	policy config.Policy
	logger *slog.Logger

	file      *codec.File
	collector *metrics.Collector
	forwarder *events.Forwarder
}

func (a *app) setup(cmd *cobra.Command) error {
	a.logger = newLogger(cmd, a.verbose)

	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return err
	}

	base := filepath.Dir(a.configPath)
	cfg.Store.Path = resolve(base, cfg.Store.Path)
	cfg.Audit.Path = resolve(base, cfg.Audit.Path)
	cfg.Metrics.Textfile = resolve(base, cfg.Metrics.Textfile)

	cfg.ApplyEnv()
	if a.storeOverride != "" {
		cfg.Store.Path = a.storeOverride
	}

	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", a.configPath, err)
	}
	a.cfg = cfg
	a.policy = policy
	a.logger.Debug("config loaded",
		slog.String("config", a.configPath),
		slog.String("store", cfg.Store.Path))
	return nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func (a *app) hasher() *credential.Hasher {
	return credential.NewHasher(a.cfg.Security.BcryptCost)
}

// flusher returns the store file, wrapped in a git committer when
// auto-commit is on and the store lives in a work tree.
func (a *app) flusher() bank.Flusher {
	a.file = codec.NewFile(a.cfg.Store.Path)
	if !a.cfg.Git.AutoCommit {
		return a.file
	}
	dir := filepath.Dir(a.cfg.Store.Path)
	if !gitops.IsRepo(dir) {
		a.logger.Warn("git.auto_commit is on but the store is not in a git repository", slog.String("dir", dir))
		return a.file
	}
	return gitops.NewCommitter(a.file, a.cfg.Store.Path, gitops.Author{
		Name:  a.cfg.Git.AuthorName,
		Email: a.cfg.Git.AuthorEmail,
	})
}

// openStore loads the store document and wires the configured observers.
// Callers must defer a.close().
func (a *app) openStore() (*bank.Store, error) {
	flusher := a.flusher()
	state, err := a.file.Load()
	if err != nil {
		return nil, err
	}

	opts := []bank.Option{
		bank.WithLimits(a.policy.Limits),
		bank.WithDefaultVariant(a.policy.DefaultVariant),
		bank.WithHasher(a.hasher()),
		bank.WithFlusher(flusher),
	}
	if a.cfg.Audit.Path != "" {
		opts = append(opts, bank.WithObserver(auditlog.NewWriter(a.cfg.Audit.Path, a.logger)))
	}
	if a.cfg.Metrics.Textfile != "" {
		a.collector = metrics.NewCollector(a.logger)
		a.collector.Seed(state)
		opts = append(opts, bank.WithObserver(a.collector))
	}
	if len(a.cfg.Events.Brokers) > 0 {
		pub := events.NewKafkaPublisher(a.cfg.Events.Brokers, a.cfg.Events.Topic)
		a.forwarder = events.NewForwarder(pub, 0, a.logger)
		opts = append(opts, bank.WithObserver(a.forwarder))
	}

	s := bank.NewStore(opts...)
	if err := s.Restore(state); err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.Store.Path, err)
	}
	a.logger.Debug("store opened",
		slog.Int("clients", len(state.Clients)),
		slog.Int("accounts", len(state.Accounts)))
	return s, nil
}

func (a *app) close() {
	if a.collector != nil {
		_ = a.collector.WriteTextfile(a.cfg.Metrics.Textfile)
	}
	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			a.logger.Warn("closing event publisher", slog.String("error", err.Error()))
		}
	}
}

// withStore opens the store, runs fn, and releases observers afterwards.
func (a *app) withStore(fn func(*bank.Store) error) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(s)
}

// password returns the flag value, falling back to PASSBOOK_PASSWORD.
func password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(config.EnvPassword); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("password required: use --password or set %s", config.EnvPassword)
}

// authFlags are the credentials account-scoped commands take.
type authFlags struct {
	user     string
	password string
}

func (f *authFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "client identifier (required)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "client password (or "+config.EnvPassword+")")
	_ = cmd.MarkFlagRequired("user")
}

// account authenticates and returns the caller's account number.
func (f *authFlags) account(s *bank.Store) (string, error) {
	pw, err := password(f.password)
	if err != nil {
		return "", err
	}
	return s.Authenticate(f.user, pw)
}

// parseAmount reads a positive amount with at most two decimal places.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", bank.ErrInvalidAmount, s)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: %s has more than two decimal places", bank.ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", bank.ErrInvalidAmount, s)
	}
	return d, nil
}

// Exit codes.
const (
	ExitOK            = 0
	ExitRuleViolation = 1
	ExitFailure       = 2
)

// ExitCode maps a command error to the process exit code: business-rule
// rejections are 1, everything else (persistence, config, usage) is 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case isFlushFailure(err):
		return ExitFailure
	case bank.IsRuleViolation(err):
		return ExitRuleViolation
	default:
		return ExitFailure
	}
}

func isFlushFailure(err error) bool {
	var fe *bank.FlushError
	return errors.As(err, &fe)
}
