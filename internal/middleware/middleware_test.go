package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

type userMap map[uuid.UUID]*models.User

func (m userMap) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user")
}

type authFixture struct {
	jwt    *auth.JWTManager
	mr     *miniredis.Miniredis
	client *redis.Client
	user   *models.User
	router *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	user := &models.User{ID: uuid.New(), DisplayName: "Paula", Email: "paula@example.com", Role: models.RoleProvider}
	jwt := auth.NewJWTManager("secret", time.Hour)
	a := NewAuthenticator(jwt, NewRedisBlacklist(client), userMap{user.ID: user}, discard)

	r := gin.New()
	r.Use(ErrorHandler(discard))
	whoami := func(c *gin.Context) {
		u, ok := CurrentUser(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": u.ID, "role": u.Role, "name": u.Name})
	}
	r.GET("/me", a.RequireAuth(), whoami)
	r.GET("/ws", a.RequireSocketAuth(), whoami)

	return &authFixture{jwt: jwt, mr: mr, client: client, user: user, router: r}
}

func (f *authFixture) do(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.jwt.Generate(f.user.ID.String())
	require.NoError(t, err)

	w := f.do(t, "/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"provider"`)

	w = f.do(t, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthenticated: missing or invalid token"}`, w.Body.String())

	w = f.do(t, "/me", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	stranger, err := f.jwt.Generate(uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "/me", stranger).Code)
}

func TestRequireAuthHonoursBlacklist(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.jwt.Generate(f.user.ID.String())
	require.NoError(t, err)

	require.NoError(t, f.mr.Set("blacklist:"+token, "1"))
	w := f.do(t, "/me", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "blacklisted")

	f.mr.Del("blacklist:" + token)
	f.mr.Close()
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "/me", token).Code, "fails closed without redis")
}

func TestRequireSocketAuthAcceptsQueryToken(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.jwt.Generate(f.user.ID.String())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, f.do(t, "/ws?token="+token, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "/ws", token).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, "/ws", "").Code)
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRateLimiter(client, "send", 2, time.Minute, discard)
	r := gin.New()
	r.Use(ErrorHandler(discard))
	r.POST("/send", limiter.PerUser(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
		return w
	}

	assert.Equal(t, http.StatusNoContent, hit().Code)
	w := hit()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = hit()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusNoContent, hit().Code)

	mr.Close()
	assert.Equal(t, http.StatusNoContent, hit().Code, "fails open without redis")
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(discard))
	r.GET("/boom", func(c *gin.Context) { Abort(c, errors.New("pq: relation does not exist")) })
	r.GET("/denied", func(c *gin.Context) { Abort(c, apperrors.ErrAccessDenied) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/denied", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"conversation not accessible"}`, w.Body.String())
}
