// Package wolt talks to the public Wolt restaurant API.
//
// Two endpoints are used: free-text venue search (location biased) and
// per-venue status. The client is deliberately thin: no retries, no caching;
// polling policy lives in the monitor loop.
package wolt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "woltbot/pkg/logx"
)

const (
	DefaultBaseURL = "https://restaurant-api.wolt.com"

	// Search requires a location since late 2021. Defaults are Dizengoff
	// Center, Tel Aviv.
	DefaultLat = 32.075409
	DefaultLon = 34.775134
)

const maxBodyBytes = 4 << 20

// Restaurant is one venue as the directory reports it. Slug is the stable
// upstream key; Name is display-only and never used for identity.
type Restaurant struct {
	Name string
	Slug string
}

type Config struct {
	BaseURL string
	Lat     float64
	Lon     float64
	Timeout time.Duration
}

type Client struct {
	hc   *http.Client
	base string
	lat  string
	lon  string
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	lat, lon := cfg.Lat, cfg.Lon
	if lat == 0 && lon == 0 {
		lat, lon = DefaultLat, DefaultLon
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		hc:   &http.Client{Timeout: timeout},
		base: base,
		lat:  strconv.FormatFloat(lat, 'f', -1, 64),
		lon:  strconv.FormatFloat(lon, 'f', -1, 64),
		log:  log,
	}
}

type searchResponse struct {
	Sections []struct {
		Name  string       `json:"name"`
		Items []searchItem `json:"items"`
	} `json:"sections"`
}

type searchItem struct {
	Title string `json:"title"`
	Venue *struct {
		Slug string `json:"slug"`
	} `json:"venue"`
}

// Search resolves a free-text query to venue candidates, in upstream order.
// Zero matches is a valid outcome and returns an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]Restaurant, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("lat", c.lat)
	q.Set("lon", c.lon)

	var sr searchResponse
	if err := c.getJSON(ctx, "search", c.base+"/v1/pages/search?"+q.Encode(), &sr); err != nil {
		return nil, err
	}
	if len(sr.Sections) == 0 {
		return nil, dirErr("search", fmt.Errorf("response has no sections"))
	}

	// The response always carries a single meaningful section; a section
	// named "no-content" is the upstream's zero-results sentinel.
	sec := sr.Sections[0]
	if sec.Name == "no-content" {
		return nil, nil
	}

	out := make([]Restaurant, 0, len(sec.Items))
	for i, it := range sec.Items {
		if it.Title == "" || it.Venue == nil || it.Venue.Slug == "" {
			return nil, dirErr("search", fmt.Errorf("item %d missing title or venue slug", i))
		}
		out = append(out, Restaurant{Name: it.Title, Slug: it.Venue.Slug})
	}
	return out, nil
}

type statusResponse struct {
	Results []struct {
		Online        *bool `json:"online"`
		DeliverySpecs *struct {
			DeliveryEnabled *bool `json:"delivery_enabled"`
		} `json:"delivery_specs"`
	} `json:"results"`
}

// CheckOnline reports whether a venue is currently accepting delivery
// orders. Both flags must hold: a venue that is open for pickup but not
// delivering counts as offline.
//
// Pointer fields distinguish "flag absent" (a DirectoryError) from an
// explicit false.
func (c *Client) CheckOnline(ctx context.Context, r Restaurant) (bool, error) {
	var sr statusResponse
	if err := c.getJSON(ctx, "status", c.base+"/v3/venues/slug/"+url.PathEscape(r.Slug), &sr); err != nil {
		return false, err
	}
	if len(sr.Results) == 0 {
		return false, dirErr("status", fmt.Errorf("%s: response has no results", r.Slug))
	}
	res := sr.Results[0]
	if res.Online == nil {
		return false, dirErr("status", fmt.Errorf("%s: missing online flag", r.Slug))
	}
	if res.DeliverySpecs == nil || res.DeliverySpecs.DeliveryEnabled == nil {
		return false, dirErr("status", fmt.Errorf("%s: missing delivery_specs.delivery_enabled", r.Slug))
	}
	return *res.Online && *res.DeliverySpecs.DeliveryEnabled, nil
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("wolt %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		// No response at all. Keep context cancellation visible to callers;
		// everything else stays in the unexpected class.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wolt %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return dirErr(op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dirErr(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return dirErr(op, fmt.Errorf("decode response: %w", err))
	}

	c.log.Debug("directory request",
		logx.String("op", op),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}
