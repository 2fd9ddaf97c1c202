package auth

import (
	"context"
	"testing"
	"time"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "perito1",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStatic_ReturnsToken(t *testing.T) {
	p := NewStatic("opaque-token")
	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", tok)
}

func TestStatic_EmptyIsStale(t *testing.T) {
	p := NewStatic("")
	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTokenStale)
}

func TestRefreshable_OpaqueTokenPassesThrough(t *testing.T) {
	p := NewRefreshable("not-a-jwt")
	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not-a-jwt", tok)
}

func TestRefreshable_ExpiredJWTIsStaleWithoutNetworkCall(t *testing.T) {
	p := NewRefreshable(signedToken(t, time.Now().Add(-time.Minute)))

	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTokenStale)
}

func TestRefreshable_ValidJWTIsReturned(t *testing.T) {
	tok := signedToken(t, time.Now().Add(time.Hour))
	p := NewRefreshable(tok)

	got, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestRefreshable_SetTokenUnblocks(t *testing.T) {
	p := NewRefreshable(signedToken(t, time.Now().Add(-time.Minute)))
	_, err := p.Token(context.Background())
	require.ErrorIs(t, err, common.ErrTokenStale)

	fresh := signedToken(t, time.Now().Add(time.Hour))
	p.SetToken(fresh)

	got, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}
