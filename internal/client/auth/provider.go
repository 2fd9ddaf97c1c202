// Package auth holds the device-side token providers. Token acquisition
// itself (the OAuth dance) happens outside the sync engine; these providers
// only hand out what they were given and detect staleness early.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Static returns a fixed token on every call.
type Static struct {
	token string
}

func NewStatic(token string) *Static {
	return &Static{token: token}
}

func (s *Static) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("%w: no token configured", common.ErrTokenStale)
	}
	return s.token, nil
}

// Refreshable holds a replaceable bearer token and, when the token is a JWT,
// pre-checks its exp claim so staleness surfaces before a network round trip.
// The sync engine does not retry items failing with ErrTokenStale until
// SetToken supplies a fresh value.
type Refreshable struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewRefreshable(token string) *Refreshable {
	return &Refreshable{token: token, now: time.Now}
}

// SetToken swaps in a freshly acquired token.
func (r *Refreshable) SetToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

func (r *Refreshable) Token(_ context.Context) (string, error) {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()

	if token == "" {
		return "", fmt.Errorf("%w: no token supplied yet", common.ErrTokenStale)
	}

	if exp, ok := expiryOf(token); ok && !r.now().Before(exp) {
		return "", fmt.Errorf("%w: token expired at %s", common.ErrTokenStale, exp.Format(time.RFC3339))
	}

	return token, nil
}

// expiryOf extracts the exp claim without verifying the signature (the Blob
// Store verifies; we only want to skip calls that are certain to 401).
// Opaque non-JWT tokens pass through untouched.
func expiryOf(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
