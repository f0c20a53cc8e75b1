package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/dealroom-chat/internal/database/databasetest"
	"github.com/thereayou/dealroom-chat/internal/fanout"
	"github.com/thereayou/dealroom-chat/internal/handlers"
	"github.com/thereayou/dealroom-chat/internal/middleware"
	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/internal/services"
	"github.com/thereayou/dealroom-chat/internal/websocket"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

// hubBus hands events straight to the hub.
type hubBus struct{ hub *websocket.Hub }

func (b hubBus) Publish(_ context.Context, ev fanout.Event) error {
	b.hub.Deliver(ev.Channel, ev.Name, ev.Payload)
	return nil
}

func (b hubBus) Run(ctx context.Context, _ fanout.Deliverer) error {
	<-ctx.Done()
	return nil
}

type app struct {
	router  *gin.Engine
	jwt     *auth.JWTManager
	mr      *miniredis.Miniredis
	hub     *websocket.Hub
	chat    *services.ConversationService
	subject models.Subject
	users   map[string]models.User
}

func newApp(t *testing.T, messagesPerWindow int) *app {
	t.Helper()

	store := databasetest.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	jwtMgr := auth.NewJWTManager("access-secret", time.Hour)
	grants := auth.NewGrantSigner("grant-secret", time.Minute)
	channels := fanout.NewChannels("")

	hub := websocket.NewHub(grants, discard)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	registry := services.NewRegistry(store, store, store, time.Now, discard)
	chat := services.NewConversationService(registry, store, store, fanout.NewGateway(hubBus{hub}, channels, discard), channels, services.Options{}, discard)
	t.Cleanup(func() {
		chat.Wait()
		cancel()
	})

	router := APIEndpoints(routerDeps{
		Auth:      middleware.NewAuthenticator(jwtMgr, middleware.NewRedisBlacklist(rdb), store, discard),
		RateLimit: middleware.NewRateLimiter(rdb, "messages", messagesPerWindow, time.Minute, discard),
		Conv:      handlers.NewConversationHandler(chat),
		Realtime:  handlers.NewRealtimeHandler(services.NewChannelAuthorizer(registry, grants, channels, discard), chat, hub),
		WS:        handlers.NewWebSocketHandler(hub, nil, discard),
		User:      handlers.NewUserHandler(),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": store,
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}),
	}, discard)

	return &app{
		router:  router,
		jwt:     jwtMgr,
		mr:      mr,
		hub:     hub,
		chat:    chat,
		subject: databasetest.Subject(t, store, "Acme Robotics"),
		users: map[string]models.User{
			"provider": databasetest.User(t, store, "Paula", models.RoleProvider),
			"owner":    databasetest.User(t, store, "Oscar", models.RoleOwner),
			"outsider": databasetest.User(t, store, "Uma", models.RoleProvider),
			"owner2":   databasetest.User(t, store, "Olga", models.RoleOwner),
		},
	}
}

func (a *app) token(t *testing.T, who string) string {
	t.Helper()
	tok, err := a.jwt.Generate(a.users[who].ID.String())
	require.NoError(t, err)
	return tok
}

func (a *app) do(t *testing.T, who, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, who))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type conversationResponse struct {
	Conversation services.ConversationView `json:"conversation"`
	Created      bool                      `json:"created"`
}

func (a *app) openConversation(t *testing.T) services.ConversationView {
	t.Helper()
	w := a.do(t, "provider", http.MethodPost, "/api/v1/conversations", gin.H{
		"recipient_id":   a.users["owner"].ID,
		"recipient_role": "owner",
		"subject_id":     a.subject.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[conversationResponse](t, w).Conversation
}

func TestCreateConversationIsIdempotent(t *testing.T) {
	a := newApp(t, 30)
	first := a.openConversation(t)

	w := a.do(t, "provider", http.MethodPost, "/api/v1/conversations", gin.H{
		"recipient_id":   a.users["owner"].ID,
		"recipient_role": "owner",
		"subject_id":     a.subject.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[conversationResponse](t, w)
	assert.False(t, again.Created)
	assert.Equal(t, first.ID, again.Conversation.ID)
	assert.Len(t, again.Conversation.Participants, 2)
}

func TestCreateConversationRejections(t *testing.T) {
	a := newApp(t, 30)

	tests := []struct {
		name string
		who  string
		body gin.H
		code int
	}{
		{"owner cannot approach owner", "owner", gin.H{"recipient_id": a.users["owner2"].ID, "recipient_role": "owner", "subject_id": a.subject.ID}, http.StatusForbidden},
		{"self", "provider", gin.H{"recipient_id": a.users["provider"].ID, "recipient_role": "provider", "subject_id": a.subject.ID}, http.StatusBadRequest},
		{"role mismatch", "provider", gin.H{"recipient_id": a.users["owner"].ID, "recipient_role": "team-member", "subject_id": a.subject.ID}, http.StatusBadRequest},
		{"unknown role", "provider", gin.H{"recipient_id": a.users["owner"].ID, "recipient_role": "investor", "subject_id": a.subject.ID}, http.StatusBadRequest},
		{"malformed recipient", "provider", gin.H{"recipient_id": "nope", "recipient_role": "owner", "subject_id": a.subject.ID}, http.StatusBadRequest},
		{"missing subject", "provider", gin.H{"recipient_id": a.users["owner"].ID, "recipient_role": "owner"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.who, http.MethodPost, "/api/v1/conversations", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestMessagingFlow(t *testing.T) {
	a := newApp(t, 30)
	conv := a.openConversation(t)
	base := "/api/v1/conversations/" + conv.ID.String()

	w := a.do(t, "owner", http.MethodPost, base+"/messages", gin.H{"text": "hello?"})
	assert.Equal(t, http.StatusForbidden, w.Code, "owner may not start the thread")

	w = a.do(t, "provider", http.MethodPost, base+"/messages", gin.H{"text": "  Interested in your round  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sent := decode[struct {
		Message services.MessageView `json:"message"`
	}](t, w).Message
	assert.Equal(t, "Interested in your round", sent.Text)

	w = a.do(t, "owner", http.MethodPost, base+"/messages", gin.H{"text": "Let's talk"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, "owner", http.MethodGet, base+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[services.MessagePage](t, w)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "Interested in your round", page.Messages[0].Text)
	assert.Equal(t, "Let's talk", page.Messages[1].Text)
	assert.False(t, page.HasMore)

	w = a.do(t, "owner", http.MethodPost, base+"/read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[services.ReadReceipt](t, w).Marked)

	w = a.do(t, "provider", http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Conversations []services.ConversationView `json:"conversations"`
	}](t, w).Conversations
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "Let's talk", list[0].LastMessage.Content)
	assert.True(t, list[0].FirstMessageSent)
}

func TestConversationAccess(t *testing.T) {
	a := newApp(t, 30)
	conv := a.openConversation(t)
	base := "/api/v1/conversations/" + conv.ID.String()

	for _, path := range []string{base, base + "/messages", base + "/presence"} {
		w := a.do(t, "outsider", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
	w := a.do(t, "outsider", http.MethodPost, base+"/messages", gin.H{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, "provider", http.MethodGet, "/api/v1/conversations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, "provider", http.MethodGet, base+"/messages?before=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, "provider", http.MethodGet, base+"/messages?page=1&before=2025-01-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, "provider", http.MethodGet, base+"/messages?page=1&before_seq=4", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, "provider", http.MethodGet, base+"/messages?before_seq=4", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, "", http.MethodGet, base, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageIsRateLimited(t *testing.T) {
	a := newApp(t, 2)
	conv := a.openConversation(t)
	path := "/api/v1/conversations/" + conv.ID.String() + "/messages"

	for i := 0; i < 2; i++ {
		w := a.do(t, "provider", http.MethodPost, path, gin.H{"text": "ping"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := a.do(t, "provider", http.MethodPost, path, gin.H{"text": "ping"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = a.do(t, "owner", http.MethodPost, path, gin.H{"text": "still fine"})
	assert.Equal(t, http.StatusCreated, w.Code, "limits are per user")
}

func TestRealtimeAuth(t *testing.T) {
	a := newApp(t, 30)
	conv := a.openConversation(t)

	w := a.do(t, "owner", http.MethodPost, "/api/v1/realtime/auth", gin.H{"socket_id": "1.2", "channel_name": conv.Channel})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	grant := decode[services.ChannelGrant](t, w)
	assert.NotEmpty(t, grant.Auth)
	assert.Contains(t, grant.ChannelData, a.users["owner"].ID.String())

	w = a.do(t, "outsider", http.MethodPost, "/api/v1/realtime/auth", gin.H{"socket_id": "1.2", "channel_name": conv.Channel})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, "owner", http.MethodPost, "/api/v1/realtime/auth", gin.H{"socket_id": "1.2", "channel_name": "private-other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRealtimeAuthAcceptsFormBodies(t *testing.T) {
	a := newApp(t, 30)
	conv := a.openConversation(t)

	body := strings.NewReader("socket_id=3.4&channel_name=" + conv.Channel)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/auth", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+a.token(t, "provider"))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestMeAndHealth(t *testing.T) {
	a := newApp(t, 30)

	w := a.do(t, "owner", http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]any](t, w)
	assert.Equal(t, "owner", me["role"])
	assert.Equal(t, "Oscar", me["display_name"])

	w = a.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	a.mr.SetError("LOADING")
	w = a.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestSocketReceivesConversationEvents(t *testing.T) {
	a := newApp(t, 30)
	conv := a.openConversation(t)

	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + a.token(t, "owner")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	next := func() websocket.Frame {
		for {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var f websocket.Frame
			require.NoError(t, conn.ReadJSON(&f))
			if f.Type != websocket.TypePing {
				return f
			}
		}
	}

	hello := next()
	require.Equal(t, websocket.TypeConnectionEstablished, hello.Type)
	var data map[string]string
	require.NoError(t, json.Unmarshal(hello.Data, &data))

	w := a.do(t, "owner", http.MethodPost, "/api/v1/realtime/auth", gin.H{"socket_id": data["socket_id"], "channel_name": conv.Channel})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	grant := decode[services.ChannelGrant](t, w)

	require.NoError(t, conn.WriteJSON(websocket.Frame{Type: websocket.TypeSubscribe, Channel: conv.Channel, Auth: grant.Auth}))
	require.Equal(t, websocket.TypeSubscriptionSucceeded, next().Type)

	w = a.do(t, "provider", http.MethodGet, "/api/v1/conversations/"+conv.ID.String()+"/presence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = a.do(t, "provider", http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/messages", gin.H{"text": "live"})
	require.Equal(t, http.StatusCreated, w.Code)

	ev := next()
	assert.Equal(t, websocket.TypeEvent, ev.Type)
	assert.Equal(t, fanout.EventNewMessage, ev.Event)
	assert.Equal(t, conv.Channel, ev.Channel)
	assert.Contains(t, string(ev.Data), `"text":"live"`)
}

func TestSocketRequiresToken(t *testing.T) {
	a := newApp(t, 30)
	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	_, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, errors.Is(err, gorilla.ErrBadHandshake))
}
