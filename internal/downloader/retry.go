package downloader

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// retryPolicy bounds how the native engine's HTTP transport retries.
type retryPolicy struct {
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var defaultRetryPolicy = retryPolicy{
	Retries:   3,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  8 * time.Second,
}

// retryTransport retries throttled and transient responses with
// exponential backoff. Requests whose body cannot be replayed are sent once.
type retryTransport struct {
	next   http.RoundTripper
	policy retryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(next http.RoundTripper, policy retryPolicy) *retryTransport {
	return &retryTransport{next: next, policy: policy, sleep: sleepContext}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; attempt <= t.policy.Retries; attempt++ {
		if !shouldRetry(resp, err) {
			break
		}
		if req.Body != nil && req.GetBody == nil {
			break
		}
		retry, cloneErr := replay(req)
		if cloneErr != nil {
			break
		}
		if waitErr := t.sleep(req.Context(), t.delay(attempt)); waitErr != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, waitErr
		}
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = t.next.RoundTrip(retry)
	}
	return resp, err
}

func (t *retryTransport) delay(attempt int) time.Duration {
	d := t.policy.BaseDelay << (attempt - 1)
	if d <= 0 || d > t.policy.MaxDelay {
		d = t.policy.MaxDelay
	}
	// ±20% jitter.
	spread := float64(d) * 0.2
	return time.Duration(float64(d) + spread*(rand.Float64()*2-1)) //nolint:gosec
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		var opErr *net.OpError
		return errors.As(err, &opErr)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func replay(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
