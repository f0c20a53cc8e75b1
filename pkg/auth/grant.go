package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrGrantMismatch = errors.New("grant does not match socket or channel")

type MemberInfo struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// ChannelMember is the presence payload bound into a grant.
type ChannelMember struct {
	UserID   string     `json:"user_id"`
	UserInfo MemberInfo `json:"user_info"`
}

type GrantClaims struct {
	SocketID string        `json:"socket_id"`
	Channel  string        `json:"channel"`
	Member   ChannelMember `json:"member"`
	jwt.RegisteredClaims
}

// GrantSigner issues and checks short-lived subscription grants binding a
// socket to a single channel.
type GrantSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewGrantSigner(secret string, ttl time.Duration) *GrantSigner {
	return &GrantSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *GrantSigner) Sign(socketID, channel string, member ChannelMember) (string, error) {
	now := s.now()
	claims := GrantClaims{
		SocketID: socketID,
		Channel:  channel,
		Member:   member,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   member.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry, then that the grant was issued for
// exactly this socket and channel.
func (s *GrantSigner) Verify(grant, socketID, channel string) (*GrantClaims, error) {
	token, err := jwt.ParseWithClaims(grant, &GrantClaims{}, hmacKey(string(s.secret)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*GrantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SocketID != socketID || claims.Channel != channel {
		return nil, ErrGrantMismatch
	}
	return claims, nil
}
