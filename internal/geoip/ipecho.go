package geoip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EchoResolver asks an external echo service for our public address. Used as
// the audit trail's fallback when a write happens outside a request. An empty
// endpoint yields a resolver that always misses.
func EchoResolver(endpoint string, timeout time.Duration) func(ctx context.Context) (string, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context) (string, error) {
		if endpoint == "" {
			return "", nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", fmt.Errorf("build ip echo request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("ip echo lookup: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("ip echo lookup: unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
		if err != nil {
			return "", fmt.Errorf("read ip echo response: %w", err)
		}
		return strings.TrimSpace(string(body)), nil
	}
}
