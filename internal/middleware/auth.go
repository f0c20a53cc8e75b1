package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/internal/services"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

const CurrentUserKey = "currentUser"

type TokenBlacklist interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RedisBlacklist reads the revocation list the identity service writes under
// "blacklist:<token>".
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Authenticator turns a bearer token into a services.CurrentUser stored on
// the gin context.
type Authenticator struct {
	jwt       *auth.JWTManager
	blacklist TokenBlacklist
	users     UserLookup
	logger    *slog.Logger
}

func NewAuthenticator(jwt *auth.JWTManager, blacklist TokenBlacklist, users UserLookup, logger *slog.Logger) *Authenticator {
	return &Authenticator{jwt: jwt, blacklist: blacklist, users: users, logger: logger.With("component", "auth")}
}

// RequireAuth accepts the token from the Authorization header only.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			Abort(c, fmt.Errorf("%w: missing or invalid token", apperrors.ErrUnauthenticated))
			return
		}
		a.authenticate(c, token)
	}
}

// RequireSocketAuth also accepts ?token= since browsers cannot set headers on
// websocket handshakes.
func (a *Authenticator) RequireSocketAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		if token == "" {
			Abort(c, fmt.Errorf("%w: missing token", apperrors.ErrUnauthenticated))
			return
		}
		a.authenticate(c, token)
	}
}

func (a *Authenticator) authenticate(c *gin.Context, token string) {
	user, err := a.resolve(c.Request.Context(), token)
	if err != nil {
		Abort(c, err)
		return
	}
	c.Set(CurrentUserKey, user)
	c.Next()
}

func (a *Authenticator) resolve(ctx context.Context, token string) (services.CurrentUser, error) {
	revoked, err := a.blacklist.IsRevoked(ctx, token)
	if err != nil {
		// without the revocation list we cannot tell, so refuse
		a.logger.Error("blacklist lookup failed", "error", err)
		return services.CurrentUser{}, fmt.Errorf("%w: token check unavailable", apperrors.ErrUnauthenticated)
	}
	if revoked {
		return services.CurrentUser{}, fmt.Errorf("%w: token is blacklisted", apperrors.ErrUnauthenticated)
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		return services.CurrentUser{}, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthenticated)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return services.CurrentUser{}, fmt.Errorf("%w: invalid user id", apperrors.ErrUnauthenticated)
	}

	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return services.CurrentUser{}, fmt.Errorf("%w: unknown user", apperrors.ErrUnauthenticated)
	}
	if err != nil {
		return services.CurrentUser{}, err
	}
	if !user.Role.Valid() {
		a.logger.Warn("user has unknown role", "user_id", user.ID, "role", user.Role)
		return services.CurrentUser{}, fmt.Errorf("%w: account has no chat role", apperrors.ErrUnauthenticated)
	}

	return services.CurrentUserFrom(user), nil
}

func CurrentUser(c *gin.Context) (services.CurrentUser, bool) {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return services.CurrentUser{}, false
	}
	u, ok := v.(services.CurrentUser)
	return u, ok
}
