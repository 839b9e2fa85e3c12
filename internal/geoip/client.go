// Package geoip is a best-effort client for the external IP lookup service.
// Every call is time-boxed; callers must tolerate nil results.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Location is a coarse city-level position for an IP address.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// String renders "City, Country" for session display, degrading to whichever
// part is present.
func (l Location) String() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.Country != "":
		return l.Country
	default:
		return l.City
	}
}

// Client queries the lookup endpoint. A zero endpoint disables lookups.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Lookup resolves ip to a location. Returns nil without error when lookups
// are disabled or the address is empty.
func (c *Client) Lookup(ctx context.Context, ip string) (*Location, error) {
	if c == nil || c.endpoint == "" || ip == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return nil, fmt.Errorf("build geoip request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip lookup: unexpected status %d", resp.StatusCode)
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return nil, fmt.Errorf("decode geoip response: %w", err)
	}
	return &loc, nil
}

// BestEffort resolves ip and logs instead of failing. The write paths that
// call this must succeed with a nil location.
func (c *Client) BestEffort(ctx context.Context, ip string) *Location {
	loc, err := c.Lookup(ctx, ip)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		}
		return nil
	}
	return loc
}
