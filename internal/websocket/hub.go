package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thereayou/dealroom-chat/internal/fanout"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

type FrameType string

const (
	TypeConnectionEstablished FrameType = "connection_established"
	TypeSubscribe             FrameType = "subscribe"
	TypeSubscriptionSucceeded FrameType = "subscription_succeeded"
	TypeSubscriptionError     FrameType = "subscription_error"
	TypeUnsubscribe           FrameType = "unsubscribe"
	TypeEvent                 FrameType = "event"
	TypeMemberAdded           FrameType = "member_added"
	TypeMemberRemoved         FrameType = "member_removed"
	TypePing                  FrameType = "ping"
	TypePong                  FrameType = "pong"
	TypeError                 FrameType = "error"
)

// Frame is the envelope for everything exchanged over a socket.
type Frame struct {
	Type      FrameType       `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Event     string          `json:"event,omitempty"`
	Auth      string          `json:"auth,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type GrantVerifier interface {
	Verify(grant, socketID, channel string) (*auth.GrantClaims, error)
}

type Presence struct {
	IDs   []string                   `json:"ids"`
	Hash  map[string]auth.MemberInfo `json:"hash"`
	Count int                        `json:"count"`
}

const pingInterval = 30 * time.Second

// Hub tracks the sockets connected to this instance and the channels they
// subscribed to. Events from the fan-out bus are delivered through it.
type Hub struct {
	clients map[string]*Client

	// channel -> socket id -> client
	channels map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client

	verifier GrantVerifier
	logger   *slog.Logger

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

var _ fanout.Deliverer = (*Hub)(nil)

func NewHub(verifier GrantVerifier, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		verifier:   verifier,
		logger:     logger.With("component", "hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run serves registrations until ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return

		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop closes every connection and makes later Register calls fail.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.closeSend()
		_ = client.Conn.Close()
		delete(h.clients, id)
	}
	h.channels = make(map[string]map[string]*Client)
}

func (h *Hub) Register(client *Client) error {
	if h.ctx.Err() != nil {
		return ErrHubStopped
	}
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Debug("client registered", "socket_id", client.ID, "user_id", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	for _, channel := range client.ChannelNames() {
		h.removeFromChannelUnsafe(client, channel)
	}
	delete(h.clients, client.ID)
	client.closeSend()

	h.logger.Debug("client unregistered", "socket_id", client.ID, "user_id", client.UserID)
}

// Subscribe joins client to channel once grant proves it was issued for this
// socket, this channel and this user.
func (h *Hub) Subscribe(client *Client, channel, grant string) error {
	claims, err := h.verifier.Verify(grant, client.ID, channel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Member.UserID != client.UserID.String() {
		return fmt.Errorf("%w: grant belongs to another user", ErrUnauthorized)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if client.isClosed() {
		return ErrClientClosed
	}

	alreadyPresent := h.userInChannelUnsafe(channel, client.UserID.String())

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[string]*Client)
	}
	h.channels[channel][client.ID] = client
	client.addChannel(channel, claims.Member)

	_ = client.SendFrame(TypeSubscriptionSucceeded, channel, "", h.presenceUnsafe(channel))
	if !alreadyPresent {
		h.broadcastFrameExceptUnsafe(channel, client.ID, TypeMemberAdded, claims.Member)
	}

	h.logger.Debug("subscribed", "socket_id", client.ID, "channel", channel)
	return nil
}

func (h *Hub) Unsubscribe(client *Client, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !client.IsSubscribed(channel) {
		return ErrNotSubscribed
	}
	h.removeFromChannelUnsafe(client, channel)
	return nil
}

func (h *Hub) removeFromChannelUnsafe(client *Client, channel string) {
	member, ok := client.removeChannel(channel)
	if !ok {
		return
	}

	subs, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(subs, client.ID)
	if len(subs) == 0 {
		delete(h.channels, channel)
		return
	}
	if !h.userInChannelUnsafe(channel, member.UserID) {
		h.broadcastFrameExceptUnsafe(channel, client.ID, TypeMemberRemoved, member)
	}
}

// Deliver pushes an event to every local socket subscribed to channel. Slow
// sockets miss the event rather than hold up the rest.
func (h *Hub) Deliver(channel, event string, payload []byte) {
	frame := Frame{
		Type:      TypeEvent,
		Channel:   channel,
		Event:     event,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Warn("failed to encode event", "channel", channel, "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.channels[channel] {
		if err := client.enqueue(data); err != nil {
			h.logger.Warn("dropping event for client", "socket_id", client.ID, "channel", channel, "error", err)
		}
	}
}

// Members lists the distinct users subscribed to channel on this instance.
func (h *Hub) Members(channel string) []auth.ChannelMember {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := map[string]bool{}
	var members []auth.ChannelMember
	for _, client := range h.channels[channel] {
		m, ok := client.member(channel)
		if !ok || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		members = append(members, m)
	}
	return members
}

func (h *Hub) presenceUnsafe(channel string) Presence {
	p := Presence{IDs: []string{}, Hash: map[string]auth.MemberInfo{}}
	for _, client := range h.channels[channel] {
		m, ok := client.member(channel)
		if !ok {
			continue
		}
		if _, dup := p.Hash[m.UserID]; dup {
			continue
		}
		p.IDs = append(p.IDs, m.UserID)
		p.Hash[m.UserID] = m.UserInfo
	}
	p.Count = len(p.IDs)
	return p
}

func (h *Hub) userInChannelUnsafe(channel, userID string) bool {
	for _, client := range h.channels[channel] {
		if client.UserID.String() == userID {
			return true
		}
	}
	return false
}

func (h *Hub) broadcastFrameExceptUnsafe(channel, excludeID string, t FrameType, data any) {
	for id, client := range h.channels[channel] {
		if id == excludeID {
			continue
		}
		if err := client.SendFrame(t, channel, "", data); err != nil {
			h.logger.Warn("failed to notify client", "socket_id", id, "type", t, "error", err)
		}
	}
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		_ = client.SendFrame(TypePing, "", "", nil)
	}
}

// Attach registers a freshly upgraded connection, starts its pumps and tells
// the client its socket id.
func (h *Hub) Attach(conn *websocket.Conn, userID uuid.UUID) (*Client, error) {
	client := NewClient(h, conn, userID)
	if err := h.Register(client); err != nil {
		return nil, err
	}

	go client.WritePump()
	go client.ReadPump()

	err := client.SendFrame(TypeConnectionEstablished, "", "", map[string]string{"socket_id": client.ID})
	return client, err
}
