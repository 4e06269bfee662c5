package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
)

// HTTPClient talks JSON to the managed scoring API. Session handling: a
// short-lived access token plus a refresh token; the access token's expiry
// is inspected locally (see token.go) and refreshed ahead of a request, so
// a request made after a long offline stretch does not burn a round trip on
// a guaranteed 401.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	session *session
	log     logging.Logger
}

// NewHTTPClient returns a client for the API at baseURL.
func NewHTTPClient(baseURL string, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		session: &session{},
		log:     log,
	}
}

// SetSession installs the token pair obtained from the application shell's
// login flow (authentication itself is outside the core).
func (c *HTTPClient) SetSession(accessToken, refreshToken string) {
	c.session.set(accessToken, refreshToken)
}

func (c *HTTPClient) ShowInfo(ctx context.Context, licenseKey string) (*ShowInfo, error) {
	var info ShowInfo
	path := fmt.Sprintf("/api/shows/%s", url.PathEscape(licenseKey))
	if err := c.getJSON(ctx, path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) ShowCounts(ctx context.Context, licenseKey string) (models.ShowCounts, error) {
	var counts models.ShowCounts
	path := fmt.Sprintf("/api/shows/%s/counts", url.PathEscape(licenseKey))
	if err := c.getJSON(ctx, path, &counts); err != nil {
		return models.ShowCounts{}, err
	}
	return counts, nil
}

func (c *HTTPClient) Classes(ctx context.Context, licenseKey string) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	path := fmt.Sprintf("/api/shows/%s/classes", url.PathEscape(licenseKey))
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) Trials(ctx context.Context, licenseKey string) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	path := fmt.Sprintf("/api/shows/%s/trials", url.PathEscape(licenseKey))
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) EntriesPage(ctx context.Context, licenseKey string, offset, limit int) ([]models.Entry, error) {
	var rows []models.Entry
	path := fmt.Sprintf("/api/shows/%s/entries?offset=%s&limit=%s",
		url.PathEscape(licenseKey), strconv.Itoa(offset), strconv.Itoa(limit))
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) PushEntryUpdate(ctx context.Context, entryID int64, data map[string]any) error {
	path := fmt.Sprintf("/api/entries/%d", entryID)
	return c.send(ctx, http.MethodPut, path, data, nil)
}

// getJSON issues an authenticated GET and decodes the JSON response into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body, out any) error {
	if err := c.refreshIfExpiring(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.access(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", path, err)
	}
	return nil
}

func newJSONRequest(ctx context.Context, method, fullURL string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}
