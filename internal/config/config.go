package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

// FileName is the config file created by `passbook init`.
const FileName = "passbook.yaml"

// Environment overrides.
const (
	EnvStore        = "PASSBOOK_STORE"
	EnvKafkaBrokers = "PASSBOOK_KAFKA_BROKERS"
	EnvPassword     = "PASSBOOK_PASSWORD"
)

// Config represents the top-level passbook.yaml configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Limits    LimitsConfig    `yaml:"limits"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	Security  SecurityConfig  `yaml:"security"`
	Statement StatementConfig `yaml:"statement"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
	Git       GitConfig       `yaml:"git"`
	Batch     BatchConfig     `yaml:"batch"`
}

// StoreConfig locates the ledger document.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LimitsConfig holds the withdrawal rules. Amounts are strings so they
// survive YAML without float rounding.
type LimitsConfig struct {
	MaxWithdrawals   int    `yaml:"max_withdrawals"`
	PerWithdrawalCap string `yaml:"per_withdrawal_cap"`
}

// AccountsConfig controls the variant new accounts get.
type AccountsConfig struct {
	DefaultVariant string `yaml:"default_variant"`
	OverdraftLimit string `yaml:"overdraft_limit,omitempty"`
}

// SecurityConfig controls credential hashing.
type SecurityConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// StatementConfig controls statement rendering.
type StatementConfig struct {
	DisplayLast int `yaml:"display_last"`
}

// AuditConfig enables the CSV audit log when Path is set.
type AuditConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MetricsConfig enables the Prometheus textfile when Textfile is set.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// EventsConfig enables movement events when Brokers is non-empty.
type EventsConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// BatchConfig controls the batch runner.
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// Load reads a passbook.yaml file from disk. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with the standard withdrawal rules.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "passbook.json"},
		Limits: LimitsConfig{
			MaxWithdrawals:   3,
			PerWithdrawalCap: "500.00",
		},
		Accounts: AccountsConfig{
			DefaultVariant: string(model.VariantStandard),
		},
		Security:  SecurityConfig{BcryptCost: 12},
		Statement: StatementConfig{DisplayLast: 10},
		Events:    EventsConfig{Topic: "passbook.movements"},
		Git: GitConfig{
			AutoCommit:  false,
			AuthorName:  "Passbook",
			AuthorEmail: "passbook@localhost",
		},
		Batch: BatchConfig{Workers: 4},
	}
}

// LoadEnv reads .env files into the process environment. Missing files
// are ignored; variables already set are not overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("loading env: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Events.Brokers = brokers
	}
}

// Policy is the parsed, validated form of the rule settings.
type Policy struct {
	Limits         bank.Limits
	DefaultVariant model.Variant
}

// Policy parses the limit and variant settings.
func (c *Config) Policy() (Policy, error) {
	if c.Limits.MaxWithdrawals < 0 {
		return Policy{}, fmt.Errorf("limits.max_withdrawals must not be negative, got %d", c.Limits.MaxWithdrawals)
	}
	capAmt, err := decimal.NewFromString(c.Limits.PerWithdrawalCap)
	if err != nil {
		return Policy{}, fmt.Errorf("limits.per_withdrawal_cap: %w", err)
	}
	if capAmt.IsNegative() {
		return Policy{}, fmt.Errorf("limits.per_withdrawal_cap must not be negative, got %s", capAmt)
	}

	kind, err := model.ParseVariantKind(c.Accounts.DefaultVariant)
	if err != nil {
		return Policy{}, fmt.Errorf("accounts.default_variant: %w", err)
	}
	variant := model.Standard()
	if kind == model.VariantOverdraft {
		limit, err := c.OverdraftLimit()
		if err != nil {
			return Policy{}, err
		}
		variant = model.Overdraft(limit)
	}

	return Policy{
		Limits:         bank.Limits{MaxWithdrawals: c.Limits.MaxWithdrawals, PerWithdrawalCap: capAmt},
		DefaultVariant: variant,
	}, nil
}

// OverdraftLimit parses accounts.overdraft_limit; empty means zero.
func (c *Config) OverdraftLimit() (decimal.Decimal, error) {
	if c.Accounts.OverdraftLimit == "" {
		return decimal.Zero, nil
	}
	limit, err := decimal.NewFromString(c.Accounts.OverdraftLimit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("accounts.overdraft_limit: %w", err)
	}
	if limit.IsNegative() {
		return decimal.Zero, fmt.Errorf("accounts.overdraft_limit must not be negative, got %s", limit)
	}
	return limit, nil
}
