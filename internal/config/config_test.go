package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbook-dev/passbook/internal/model"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/var/lib/passbook/store.json"
	cfg.Accounts.DefaultVariant = "overdraft"
	cfg.Accounts.OverdraftLimit = "250.00"
	cfg.Events.Brokers = []string{"kafka-1:9092", "kafka-2:9092"}
	cfg.Audit.Path = "audit.csv"

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "passbook.json", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Limits.MaxWithdrawals)
	assert.Equal(t, "500.00", cfg.Limits.PerWithdrawalCap)
	assert.Equal(t, "standard", cfg.Accounts.DefaultVariant)
	assert.Equal(t, 10, cfg.Statement.DisplayLast)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.False(t, cfg.Git.AutoCommit)
	assert.Empty(t, cfg.Events.Brokers)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  max_withdrawals: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Limits.MaxWithdrawals)
	assert.Equal(t, "500.00", cfg.Limits.PerWithdrawalCap)
	assert.Equal(t, "passbook.json", cfg.Store.Path)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("limits: [unclosed\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing config")
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, Default()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "max_withdrawals: 3")
	assert.Contains(t, contents, `per_withdrawal_cap: "500.00"`)
	assert.Contains(t, contents, "default_variant: standard")
	assert.Contains(t, contents, "auto_commit: false")
	assert.NotContains(t, contents, "brokers")
}

func TestPolicy(t *testing.T) {
	p, err := Default().Policy()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Limits.MaxWithdrawals)
	assert.Equal(t, "500", p.Limits.PerWithdrawalCap.String())
	assert.Equal(t, model.VariantStandard, p.DefaultVariant.Kind)

	cfg := Default()
	cfg.Accounts.DefaultVariant = "overdraft"
	cfg.Accounts.OverdraftLimit = "100"
	p, err = cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, model.VariantOverdraft, p.DefaultVariant.Kind)
	assert.Equal(t, "-100", p.DefaultVariant.Floor().String())
}

func TestPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max", func(c *Config) { c.Limits.MaxWithdrawals = -1 }},
		{"cap not a number", func(c *Config) { c.Limits.PerWithdrawalCap = "lots" }},
		{"negative cap", func(c *Config) { c.Limits.PerWithdrawalCap = "-1" }},
		{"unknown variant", func(c *Config) { c.Accounts.DefaultVariant = "gold" }},
		{"negative overdraft", func(c *Config) {
			c.Accounts.DefaultVariant = "overdraft"
			c.Accounts.OverdraftLimit = "-5"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			_, err := cfg.Policy()
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvStore, "/tmp/other.json")
	t.Setenv(EnvKafkaBrokers, " a:9092, b:9092 ,")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "/tmp/other.json", cfg.Store.Path)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Brokers)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PASSBOOK_STORE=from-dotenv.json\n"), 0o600))

	// t.Setenv registers the restore; unset so godotenv can fill it in.
	t.Setenv(EnvStore, "")
	require.NoError(t, os.Unsetenv(EnvStore))

	require.NoError(t, LoadEnv(envFile))
	assert.Equal(t, "from-dotenv.json", os.Getenv(EnvStore))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
}
