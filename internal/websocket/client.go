package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thereayou/dealroom-chat/pkg/auth"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

type Client struct {
	ID       string
	UserID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Channels map[string]auth.ChannelMember
	Hub      *Hub
	mu       sync.RWMutex
	closed   bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Channels: make(map[string]auth.ChannelMember),
		Hub:      hub,
	}
}

// ReadPump handles frames coming from the client until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.Conn.ReadJSON(&frame); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.SendError(ErrInvalidFrame.Error())
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Info("websocket closed unexpectedly", "socket_id", c.ID, "error", err)
			}
			return
		}

		switch frame.Type {
		case TypePong:

		case TypePing:
			_ = c.SendFrame(TypePong, "", "", nil)

		case TypeSubscribe:
			if err := c.Hub.Subscribe(c, frame.Channel, frame.Auth); err != nil {
				_ = c.SendFrame(TypeSubscriptionError, frame.Channel, "", map[string]string{"error": err.Error()})
			}

		case TypeUnsubscribe:
			if err := c.Hub.Unsubscribe(c, frame.Channel); err != nil {
				c.SendError(err.Error())
			}

		default:
			c.SendError(ErrInvalidFrame.Error())
		}
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// flush whatever queued up meanwhile
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendFrame(t FrameType, channel, event string, data any) error {
	frame := Frame{
		Type:      t,
		Channel:   channel,
		Event:     event,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		frame.Data = raw
	}

	msg, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	return c.enqueue(msg)
}

func (c *Client) enqueue(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- msg:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) SendError(message string) {
	_ = c.SendFrame(TypeError, "", "", map[string]string{"error": message})
}

func (c *Client) IsSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.Channels[channel]
	return ok
}

func (c *Client) ChannelNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		names = append(names, name)
	}
	return names
}

func (c *Client) member(channel string) (auth.ChannelMember, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.Channels[channel]
	return m, ok
}

func (c *Client) addChannel(channel string, m auth.ChannelMember) {
	c.mu.Lock()
	c.Channels[channel] = m
	c.mu.Unlock()
}

func (c *Client) removeChannel(channel string) (auth.ChannelMember, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.Channels[channel]
	if ok {
		delete(c.Channels, channel)
	}
	return m, ok
}
