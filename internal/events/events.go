// Package events publishes applied money movements to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/passbook-dev/passbook/internal/bank"
)

// MovementEvent is the message body for one applied deposit, withdrawal
// or transfer.
type MovementEvent struct {
	ID                  uuid.UUID       `json:"id"`
	Op                  string          `json:"op"`
	Account             string          `json:"account"`
	Counterparty        string          `json:"counterparty,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Balance             decimal.Decimal `json:"balance"`
	CounterpartyBalance decimal.Decimal `json:"counterparty_balance,omitzero"`
	At                  time.Time       `json:"at"`
}

// Publisher delivers movement events.
type Publisher interface {
	Publish(ctx context.Context, ev MovementEvent) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by account
// number so one account's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev MovementEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Account),
		Value: data,
		Time:  ev.At,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Recorder is a Publisher that keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []MovementEvent
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev MovementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []MovementEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MovementEvent(nil), r.events...)
}

// Forwarder is a bank.Observer that publishes successful movements.
// Publish failures are logged and never reach the operation.
type Forwarder struct {
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewForwarder returns a Forwarder over pub. Each publish gets timeout.
func NewForwarder(pub Publisher, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{pub: pub, timeout: timeout, logger: logger}
}

// Observe implements bank.Observer.
func (f *Forwarder) Observe(e bank.Event) {
	ev, ok := FromEvent(e)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.pub.Publish(ctx, ev); err != nil {
		f.logger.Warn("movement event not published",
			slog.String("op", ev.Op),
			slog.String("account", ev.Account),
			slog.String("error", err.Error()))
		return
	}
	f.logger.Debug("movement event published", slog.String("id", ev.ID.String()), slog.String("op", ev.Op))
}

// Close closes the underlying publisher.
func (f *Forwarder) Close() error {
	return f.pub.Close()
}

// FromEvent converts a store event into a movement event. Only money
// movements that completed without error are reported.
func FromEvent(e bank.Event) (MovementEvent, bool) {
	if !e.Applied || e.Err != nil {
		return MovementEvent{}, false
	}
	switch e.Op {
	case bank.OpDeposit, bank.OpWithdraw, bank.OpTransfer:
	default:
		return MovementEvent{}, false
	}
	return MovementEvent{
		ID:                  uuid.New(),
		Op:                  string(e.Op),
		Account:             e.Account,
		Counterparty:        e.Counterparty,
		Amount:              e.Amount,
		Balance:             e.Balance,
		CounterpartyBalance: e.CounterpartyBalance,
		At:                  e.At,
	}, true
}
