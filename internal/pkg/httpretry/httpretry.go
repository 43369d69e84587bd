// Package httpretry wraps an HTTP client with retry, exponential backoff
// and jitter for calls against the phishing server's API.
package httpretry

import (
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests. Both *http.Client
// and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries transient failures: retryable status codes (429 and
// 5xx except 501) and transport errors. Client errors and context
// cancellation are returned immediately.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryClient wraps client with up to maxRetries retry attempts. A nil
// client defaults to an http.Client with a 30s timeout.
func NewRetryClient(client HTTPDoer, maxRetries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do executes the request, retrying transient failures. The final
// response is returned as-is so callers can inspect status and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
			delay := rc.backoff(attempt)
			log.Printf("[httpretry] retry %d/%d %s %s (waiting %s)",
				attempt, rc.maxRetries, req.Method, req.URL.Path, delay)
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !retryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}
		// Drain before closing so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = nil
	}

	return nil, lastErr
}

// backoff computes an exponential delay with up to 25% jitter.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(rc.baseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > rc.maxDelay {
		delay = rc.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
