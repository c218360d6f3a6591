package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
	defaultMaxTokens  = 4096
)

// transport posts JSON to a vendor endpoint, retrying transport errors,
// rate limits and 5xx responses with quadratic backoff.
type transport struct {
	client     *http.Client
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func newTransport(timeout time.Duration, maxRetries int) transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return transport{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// postJSON returns the status and body of the final attempt. Non-retryable
// statuses are returned to the caller without error.
func (t transport) postJSON(ctx context.Context, url string, headers map[string]string, body []byte) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(t.backoff(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
		default:
			return resp.StatusCode, respBody, nil
		}
	}
	return 0, nil, lastErr
}

func completionDefaults(req CompletionRequest) (maxTokens int, temperature float64) {
	maxTokens = req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return maxTokens, req.Temperature
}
