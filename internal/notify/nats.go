package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NatsDispatcher publishes events to a NATS server.
type NatsDispatcher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

var _ Dispatcher = (*NatsDispatcher)(nil)

// NewNatsDispatcher connects to the NATS server at url. The
// connection reconnects automatically until Close is called.
func NewNatsDispatcher(url string, logger zerolog.Logger) (*NatsDispatcher, error) {
	conn, err := nats.Connect(url,
		nats.Name("njord"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NatsDispatcher{conn: conn, logger: logger}, nil
}

func (d *NatsDispatcher) PublishOrderEvent(ctx context.Context, subject string, event OrderEvent) error {
	return d.publish(subject, event)
}

func (d *NatsDispatcher) PublishPaymentEvent(ctx context.Context, subject string, event PaymentEvent) error {
	return d.publish(subject, event)
}

func (d *NatsDispatcher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := d.conn.Publish(subject, data); err != nil {
		d.logger.Error().Err(err).Str("subject", subject).Msg("failed to publish event")
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (d *NatsDispatcher) Close() {
	if err := d.conn.Drain(); err != nil {
		d.logger.Warn().Err(err).Msg("draining nats connection")
	}
}
