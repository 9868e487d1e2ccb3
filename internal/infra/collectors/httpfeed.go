// Package collectors provides the HTTP-backed Collector implementations.
// Each source is a JSON endpoint on a personal data gateway; content
// parsing and scoring live behind that gateway, not here.
package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"daybrief/internal/domain/digest"
)

// HTTPFeed fetches one source endpoint. It keeps no cross-call state.
type HTTPFeed struct {
	name   string
	url    string
	token  string
	client *http.Client
}

func NewHTTPFeed(name, endpoint, token string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFeed{
		name:   name,
		url:    endpoint,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch GETs the endpoint with the look-back window as a query parameter.
// An empty or 204 response means "no data", not an error.
func (c *HTTPFeed) Fetch(ctx context.Context, window time.Duration) (digest.Data, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid endpoint: %w", c.name, err)
	}
	q := u.Query()
	q.Set("window_hours", strconv.Itoa(int(window.Hours())))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", c.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.name, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	var data digest.Data
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%s: decode body: %w", c.name, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
