// Package ephemeris fetches two-line element sets from the SatNOGS DB API.
package ephemeris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/w1xm/k3ng_interface/k3ng"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://db.satnogs.org"

// Client is a SatNOGS DB client.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// MaxTries bounds attempts on server errors and timeouts. Zero means 3.
	MaxTries uint
	Logger   *zap.Logger
}

func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

// entry is one element of the /api/tle/ response.
type entry struct {
	Tle0       string `json:"tle0"`
	Tle1       string `json:"tle1"`
	Tle2       string `json:"tle2"`
	NoradCatID int    `json:"norad_cat_id"`
	Source     string `json:"tle_source"`
	Updated    string `json:"updated"`
}

// Fetch returns the current element set for a NORAD catalog number.
func (c *Client) Fetch(ctx context.Context, noradID int) (k3ng.TLE, error) {
	if noradID <= 0 {
		return k3ng.TLE{}, fmt.Errorf("invalid NORAD id %d", noradID)
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return k3ng.TLE{}, fmt.Errorf("parsing base URL: %w", err)
	}
	u = u.JoinPath("api", "tle/")
	u.RawQuery = url.Values{
		"norad_cat_id": {strconv.Itoa(noradID)},
		"format":       {"json"},
	}.Encode()

	tries := c.MaxTries
	if tries == 0 {
		tries = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	entries, err := backoff.Retry(ctx, func() ([]entry, error) {
		return c.get(ctx, u.String())
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries), backoff.WithNotify(func(err error, d time.Duration) {
		c.logger().Warn("retrying TLE fetch", zap.Int("norad_id", noradID), zap.Duration("in", d), zap.Error(err))
	}))
	if err != nil {
		return k3ng.TLE{}, fmt.Errorf("fetching TLE for %d: %w", noradID, err)
	}
	if len(entries) == 0 {
		return k3ng.TLE{}, fmt.Errorf("no TLE for NORAD id %d", noradID)
	}
	e := entries[0]
	tle, err := k3ng.NewTLE(e.Tle0, e.Tle1, e.Tle2)
	if err != nil {
		return k3ng.TLE{}, fmt.Errorf("TLE for %d: %w", noradID, err)
	}
	c.logger().Info("fetched TLE", zap.Int("norad_id", noradID), zap.String("title", tle.Title), zap.String("source", e.Source), zap.String("updated", e.Updated))
	return tle, nil
}

func (c *Client) get(ctx context.Context, u string) ([]entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s: %s", resp.Status, body)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	var entries []entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	return entries, nil
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
