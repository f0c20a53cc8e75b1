// Package fanout carries conversation events from whichever instance handled
// a write to every instance holding subscribed sockets.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	EventNewMessage   = "new-message"
	EventMessagesRead = "messages-read"
)

const DefaultChannelPrefix = "presence-conversation-"

type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Deliverer hands an event to the sockets subscribed to channel on this
// instance.
type Deliverer interface {
	Deliver(channel, event string, payload []byte)
}

// Bus moves events between instances. Delivery is best effort and nothing is
// persisted.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Run feeds every event seen on the bus to d until ctx is done.
	Run(ctx context.Context, d Deliverer) error
}

// Channels maps conversation ids to channel names and back.
type Channels struct {
	Prefix string
}

func NewChannels(prefix string) Channels {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return Channels{Prefix: prefix}
}

func (c Channels) Name(conversationID uuid.UUID) string {
	return c.Prefix + conversationID.String()
}

func (c Channels) Parse(channel string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(channel, c.Prefix)
	if !ok || rest == "" {
		return uuid.Nil, fmt.Errorf("channel %q does not start with %q", channel, c.Prefix)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, fmt.Errorf("channel %q: bad conversation id: %w", channel, err)
	}
	return id, nil
}

type Gateway struct {
	bus      Bus
	channels Channels
	logger   *slog.Logger
}

func NewGateway(bus Bus, channels Channels, logger *slog.Logger) *Gateway {
	return &Gateway{bus: bus, channels: channels, logger: logger.With("component", "fanout")}
}

func (g *Gateway) Channels() Channels { return g.channels }

// Publish sends event with payload to the conversation's channel.
func (g *Gateway) Publish(ctx context.Context, conversationID uuid.UUID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	ev := Event{Channel: g.channels.Name(conversationID), Name: event, Payload: data}
	if err := g.bus.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, ev.Channel, err)
	}

	g.logger.Debug("event published", "channel", ev.Channel, "event", event)
	return nil
}
