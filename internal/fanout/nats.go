package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const DefaultNATSSubject = "realtime.events"

// NATSBus publishes each event on "<prefix>.<channel>" with core NATS.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

var _ Bus = (*NATSBus)(nil)

func NewNATSBus(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSBus {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	return &NATSBus{conn: conn, prefix: prefix, logger: logger.With("component", "fanout.nats")}
}

func (b *NATSBus) subject(channel string) string {
	return fmt.Sprintf("%s.%s", b.prefix, channel)
}

func (b *NATSBus) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subject(ev.Channel), data)
}

func (b *NATSBus) Run(ctx context.Context, d Deliverer) error {
	sub, err := b.conn.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn("dropping malformed event", "subject", msg.Subject, "error", err)
			return
		}
		d.Deliver(ev.Channel, ev.Name, ev.Payload)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", b.prefix, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	b.logger.Info("listening for events", "subject", b.prefix+".>")
	<-ctx.Done()
	return nil
}
