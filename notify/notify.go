// Package notify delivers invoice status changes to logs and Kafka.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/yourusername/billdesk/billing"
)

// LogNotifier writes every status change as a structured log event.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) InvoiceStatusChanged(ctx context.Context, change billing.StatusChange) error {
	n.log.Info().
		Str("invoice_id", change.InvoiceID.String()).
		Str("invoice_number", change.InvoiceNumber).
		Str("client_id", change.ClientID.String()).
		Str("operation", change.Operation).
		Str("from", string(change.From)).
		Str("to", string(change.To)).
		Time("at", change.At).
		Msg("invoice status notification")
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes status changes as JSON, keyed by invoice id so the
// changes of one invoice stay ordered within a partition.
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

func NewKafkaNotifier(brokers []string, topic string, timeout time.Duration) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka notifier requires a topic")
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic:   topic,
		timeout: timeout,
	}, nil
}

type statusChangeEvent struct {
	Type string `json:"type"`
	billing.StatusChange
}

func (n *KafkaNotifier) InvoiceStatusChanged(ctx context.Context, change billing.StatusChange) error {
	payload, err := json.Marshal(statusChangeEvent{Type: "invoice.status_changed", StatusChange: change})
	if err != nil {
		return err
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Topic: n.topic,
		Key:   []byte(change.InvoiceID.String()),
		Value: payload,
		Time:  change.At,
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// Multi fans a change out to several notifiers and joins their errors.
type Multi []billing.Notifier

func (m Multi) InvoiceStatusChanged(ctx context.Context, change billing.StatusChange) error {
	var errs []error
	for _, n := range m {
		if err := n.InvoiceStatusChanged(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
