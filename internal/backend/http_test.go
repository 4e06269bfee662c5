package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ringsideapp/ringside/internal/common"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "steward-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestShowInfoRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(ShowInfo{LicenseKey: "2024-1234", Name: "Spring Classic"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewDiscard())
	c.SetSession(signedToken(t, time.Now().Add(time.Hour)), "refresh-1")

	info, err := c.ShowInfo(context.Background(), "2024-1234")
	require.NoError(t, err)
	assert.Equal(t, "/api/shows/2024-1234", gotPath)
	assert.Contains(t, gotAuth, "Bearer ")
	assert.Equal(t, "Spring Classic", info.Name)
}

func TestEntriesPagePassesPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shows/2024-1234/entries", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("offset"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":101,"class_id":7,"status":"checked-in","armband":"12A"}]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewDiscard())

	rows, err := c.EntriesPage(context.Background(), "2024-1234", 100, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(101), rows[0].ID)
	assert.Equal(t, int64(7), rows[0].ClassID)
	assert.Equal(t, "12A", rows[0].Fields["armband"])
}

func TestPushEntryUpdateSendsBody(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		assert.Equal(t, "/api/entries/42", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewDiscard())

	err := c.PushEntryUpdate(context.Background(), 42, map[string]any{"score": float64(85)})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, float64(85), gotBody["score"])
}

func TestErrorIncludesStatusAndBodySnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"show not licensed"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewDiscard())

	_, err := c.ShowCounts(context.Background(), "2024-1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "show not licensed")
}

func TestProactiveRefreshBeforeRequest(t *testing.T) {
	fresh := ""
	var refreshCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/refresh":
			refreshCalls++
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "refresh-1", body["refresh_token"])
			_ = json.NewEncoder(w).Encode(map[string]string{
				"access_token": fresh, "refresh_token": "refresh-2",
			})
		case "/api/shows/2024-1234/counts":
			assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"classes":1,"trials":1,"entries":1}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	fresh = signedToken(t, time.Now().Add(time.Hour))

	c := NewHTTPClient(srv.URL, logging.NewDiscard())
	c.SetSession(signedToken(t, time.Now().Add(5*time.Second)), "refresh-1")

	counts, err := c.ShowCounts(context.Background(), "2024-1234")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Entries)
	assert.Equal(t, 1, refreshCalls)

	// The next request uses the refreshed token without another round trip.
	_, err = c.ShowCounts(context.Background(), "2024-1234")
	require.NoError(t, err)
	assert.Equal(t, 1, refreshCalls)
}

func TestRefreshRejectionSurfacesSessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/session/refresh", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, logging.NewDiscard())
	c.SetSession(signedToken(t, time.Now().Add(-time.Minute)), "refresh-1")

	_, err := c.ShowCounts(context.Background(), "2024-1234")
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestExpiresSoon(t *testing.T) {
	s := &session{}
	now := time.Now()

	// No token: nothing to refresh.
	assert.False(t, s.expiresSoon(now))

	// Opaque non-JWT token: let the server decide.
	s.set("opaque-token", "")
	assert.False(t, s.expiresSoon(now))

	s.set(signedToken(t, now.Add(time.Hour)), "")
	assert.False(t, s.expiresSoon(now))

	s.set(signedToken(t, now.Add(10*time.Second)), "")
	assert.True(t, s.expiresSoon(now))

	s.set(signedToken(t, now.Add(-time.Minute)), "")
	assert.True(t, s.expiresSoon(now))
}
