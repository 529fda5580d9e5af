// Package stookalert fetches the RIVM "stookalert" advisory: a daily,
// per-province flag telling people not to burn wood because of poor air
// quality or wind conditions.
package stookalert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"hubadapters/internal/clock"
)

// DefaultBaseURL is where RIVM publishes the daily feed files.
const DefaultBaseURL = "https://www.rivm.nl/media/lml/stookalert"

// Provinces are the regions the feed reports on.
var Provinces = []string{
	"Drenthe",
	"Flevoland",
	"Friesland",
	"Gelderland",
	"Groningen",
	"Limburg",
	"Noord-Brabant",
	"Noord-Holland",
	"Overijssel",
	"Utrecht",
	"Zeeland",
	"Zuid-Holland",
}

// ErrUnknownProvince is returned for a province the feed does not cover.
var ErrUnknownProvince = errors.New("unknown province")

// IsProvince reports whether name is one of Provinces
func IsProvince(name string) bool {
	return slices.Contains(Provinces, name)
}

// Client polls the feed for one province.
type Client struct {
	province   string
	baseURL    string
	httpClient *http.Client
	clock      clock.Clock

	mu          sync.RWMutex
	state       int
	lastUpdated time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another feed location.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock sets the clock used to pick the daily file and stamp updates.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// New creates a client for province
func New(province string, opts ...Option) (*Client, error) {
	if !IsProvince(province) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvince, province)
	}

	c := &Client{
		province:   province,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		clock:      clock.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// feedItem is one province row of the daily feed.
type feedItem struct {
	Name  string `json:"naam"`
	Value int    `json:"waarde"`
}

// Refresh downloads today's feed and stores the province's value.
// On error the previous state is kept.
func (c *Client) Refresh(ctx context.Context) error {
	now := c.clock.Now()
	url := fmt.Sprintf("%s/stookalert_%s.json", c.baseURL, now.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching stookalert feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stookalert feed returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return fmt.Errorf("decoding stookalert feed: %w", err)
	}

	for _, item := range items {
		if item.Name != c.province {
			continue
		}

		c.mu.Lock()
		c.state = item.Value
		c.lastUpdated = now
		c.mu.Unlock()
		return nil
	}

	return fmt.Errorf("%w: %q missing from feed", ErrUnknownProvince, c.province)
}

// Province returns the province this client reports on
func (c *Client) Province() string {
	return c.province
}

// State returns the last fetched advisory code; 1 means an alert is active.
func (c *Client) State() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastUpdated returns when State was last refreshed, zero if never
func (c *Client) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}
