// Package metrics records store operations as Prometheus metrics.
package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

// Collector is a bank.Observer backed by a private registry.
type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	balance    *prometheus.GaugeVec
	logger     *slog.Logger
}

// NewCollector creates a Collector with its own registry.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "passbook_operations_total",
			Help: "Store operations by type and outcome",
		}, []string{"op", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passbook_operation_duration_seconds",
			Help:    "Time taken by a store operation, including the flush",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		balance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "passbook_account_balance",
			Help: "Balance of an account after its last applied operation",
		}, []string{"account"}),
		logger: logger,
	}
}

// Seed sets the balance gauge for every account in state, so the exported
// file covers accounts this process never touched.
func (c *Collector) Seed(state model.State) {
	for _, a := range state.Accounts {
		c.balance.WithLabelValues(a.Number).Set(a.Balance.InexactFloat64())
	}
}

// Observe implements bank.Observer.
func (c *Collector) Observe(e bank.Event) {
	c.operations.WithLabelValues(string(e.Op), e.Outcome()).Inc()
	c.duration.WithLabelValues(string(e.Op)).Observe(e.Elapsed.Seconds())

	if !e.Applied || e.Account == "" {
		return
	}
	switch e.Op {
	case bank.OpDeposit, bank.OpWithdraw, bank.OpTransfer:
		c.balance.WithLabelValues(e.Account).Set(e.Balance.InexactFloat64())
	case bank.OpOpenAccount:
		c.balance.WithLabelValues(e.Account).Set(0)
	}
	if e.Op == bank.OpTransfer && e.Counterparty != "" {
		c.balance.WithLabelValues(e.Counterparty).Set(e.CounterpartyBalance.InexactFloat64())
	}
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		c.logger.Warn("writing metrics textfile failed", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}
	return nil
}
