package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ringsideapp/ringside/internal/common"
)

// How close to expiry a token is refreshed proactively.
const refreshLeeway = 30 * time.Second

// session holds the token pair. Access is guarded: the push listener and the
// sync pusher share one client across goroutines.
type session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func (s *session) set(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func (s *session) access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *session) refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// expiresSoon inspects the access token's exp claim without verifying the
// signature (verification is the server's job; we only need the timestamp).
// Tokens without an exp claim or that fail to parse never read as expiring,
// so a malformed token still reaches the server and fails loudly there.
func (s *session) expiresSoon(now time.Time) bool {
	token := s.access()
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.Add(refreshLeeway).After(exp.Time)
}

// refreshIfExpiring swaps the token pair when the access token is about to
// lapse. A missing refresh token surfaces as ErrSessionExpired so the shell
// can re-authenticate the user.
func (c *HTTPClient) refreshIfExpiring(ctx context.Context) error {
	if !c.session.expiresSoon(time.Now()) {
		return nil
	}

	refresh := c.session.refresh()
	if refresh == "" {
		return common.ErrSessionExpired
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}

	// Bypass send(): the refresh call itself must not recurse into the
	// expiry check.
	req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+"/api/session/refresh",
		map[string]string{"refresh_token": refresh})
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("session refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return common.ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("session refresh: unexpected status %d", resp.StatusCode)
	}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return fmt.Errorf("session refresh: %w", err)
	}

	c.session.set(out.AccessToken, out.RefreshToken)
	c.log.Debug(ctx, "session tokens refreshed")
	return nil
}
