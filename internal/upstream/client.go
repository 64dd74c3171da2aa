// Package upstream holds the HTTP clients for the two marketplace APIs:
// the seller API (postings, finance transactions) and the performance API
// (ad-spend reports). Only server-side 5xx responses are retried; every
// other failure is terminal for the current scope.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/domain"
)

const (
	maxRetries  = 6
	baseBackoff = 1500 * time.Millisecond
)

func isRetryable(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// postJSON POSTs a JSON payload and decodes the JSON response into out,
// retrying transient server errors with exponential backoff plus jitter.
func postJSON(ctx context.Context, client *http.Client, log zerolog.Logger,
	url string, headers map[string]string, payload, out any) error {

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff*(1<<(attempt-1)) +
				time.Duration(rand.Int63n(int64(500*time.Millisecond)))
			log.Debug().Dur("backoff", backoff).Int("attempt", attempt).
				Str("url", url).Msg("retrying upstream call")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("post %s: %w", url, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return &domain.FatalUpstreamError{
					StatusCode: resp.StatusCode,
					Body:       fmt.Sprintf("malformed response: %v", err),
				}
			}
			return nil
		}

		if isRetryable(resp.StatusCode) {
			lastErr = &domain.TransientUpstreamError{
				StatusCode: resp.StatusCode,
				Body:       truncate(respBody),
			}
			continue
		}

		return &domain.FatalUpstreamError{
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody),
		}
	}

	return fmt.Errorf("retries exhausted: %w", lastErr)
}

// getJSON GETs a URL and decodes the JSON response into out. No retries:
// the callers poll these endpoints in their own loops.
func getJSON(ctx context.Context, client *http.Client, url string,
	headers map[string]string, out any) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if isRetryable(resp.StatusCode) {
			return &domain.TransientUpstreamError{StatusCode: resp.StatusCode, Body: truncate(body)}
		}
		return &domain.FatalUpstreamError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &domain.FatalUpstreamError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("malformed response: %v", err),
		}
	}
	return nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
