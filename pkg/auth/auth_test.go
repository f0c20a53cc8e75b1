package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManagerRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	token, err := m.Generate("user-1")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	_, err = NewJWTManager("other", time.Minute).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManagerRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute)

	token, err := m.Generate("user-1")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromHeader(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromHeader(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromHeader(r)
	assert.Error(t, err)
}

func TestGrantBindsSocketAndChannel(t *testing.T) {
	s := NewGrantSigner("grant-secret", time.Minute)
	member := ChannelMember{UserID: "u1", UserInfo: MemberInfo{Name: "Paula", Role: "provider"}}

	grant, err := s.Sign("1.2", "presence-conversation-c1", member)
	require.NoError(t, err)

	claims, err := s.Verify(grant, "1.2", "presence-conversation-c1")
	require.NoError(t, err)
	assert.Equal(t, member, claims.Member)

	_, err = s.Verify(grant, "9.9", "presence-conversation-c1")
	assert.ErrorIs(t, err, ErrGrantMismatch)

	_, err = s.Verify(grant, "1.2", "presence-conversation-c2")
	assert.ErrorIs(t, err, ErrGrantMismatch)

	_, err = NewGrantSigner("forged", time.Minute).Verify(grant, "1.2", "presence-conversation-c1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGrantExpires(t *testing.T) {
	s := NewGrantSigner("grant-secret", time.Minute)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }

	grant, err := s.Sign("1.2", "presence-conversation-c1", ChannelMember{UserID: "u1"})
	require.NoError(t, err)

	_, err = s.Verify(grant, "1.2", "presence-conversation-c1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
