package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tipjar/pkg/controller"

	"github.com/nats-io/nats.go"
)

// Conn is the slice of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher forwards controller notices and ledger updates to NATS.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Connect dials natsURL and returns a publisher for subjects under subject.
func Connect(natsURL, subject string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("tipjar-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := NewPublisher(nc, subject, logger)
	p.logger.Info("NATS publisher initialized", "url", natsURL, "subject", subject)
	return p, nil
}

func NewPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// Subject returns the subject events of type t are published to.
func (p *Publisher) Subject(t controller.EventType) string {
	return p.subject + "." + string(t)
}

// Run publishes events from sub until ctx is done or sub is closed.
func (p *Publisher) Run(ctx context.Context, sub controller.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.logger.Warn("failed to publish event", "type", ev.Type, "err", err)
			}
		}
	}
}

// Publish sends ev if it is a notice or a ledger update; other types are skipped.
func (p *Publisher) Publish(ev controller.Event) error {
	switch ev.Type {
	case controller.EventNotice, controller.EventTipsUpdated:
	default:
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	subject := p.Subject(ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	p.logger.Debug("published event", "subject", subject)
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		return err
	}
	p.logger.Info("NATS publisher closed")
	return nil
}
