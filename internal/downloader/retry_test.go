package downloader

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryTransport(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		wantCalls int
		wantCode  int
	}{
		{name: "success first try", responses: []int{200}, wantCalls: 1, wantCode: 200},
		{name: "recovers after 502s", responses: []int{502, 502, 200}, wantCalls: 3, wantCode: 200},
		{name: "429 retried", responses: []int{429, 200}, wantCalls: 2, wantCode: 200},
		{name: "404 not retried", responses: []int{404, 200}, wantCalls: 1, wantCode: 404},
		{name: "gives up after retries", responses: []int{503, 503, 503, 503, 200}, wantCalls: 4, wantCode: 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			transport := newRetryTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
				code := tt.responses[calls]
				calls++
				return &http.Response{StatusCode: code, Body: http.NoBody}, nil
			}), retryPolicy{Retries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
			transport.sleep = noSleep

			req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
			resp, err := transport.RoundTrip(req)
			if err != nil {
				t.Fatalf("RoundTrip: %v", err)
			}
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryTransportNetworkError(t *testing.T) {
	calls := 0
	transport := newRetryTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}), defaultRetryPolicy)
	transport.sleep = noSleep

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	if _, err := transport.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryTransportUnreplayableBody(t *testing.T) {
	calls := 0
	transport := newRetryTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 503, Body: http.NoBody}, nil
	}), defaultRetryPolicy)
	transport.sleep = noSleep

	req, _ := http.NewRequest(http.MethodPost, "https://example.com", strings.NewReader("x"))
	req.GetBody = nil
	if _, err := transport.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want a single attempt", calls)
	}
}

func TestRetryTransportCancelledWait(t *testing.T) {
	transport := newRetryTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 503, Body: http.NoBody}, nil
	}), defaultRetryPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://example.com", nil)
	if _, err := transport.RoundTrip(req); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	transport := newRetryTransport(nil, retryPolicy{Retries: 10, BaseDelay: time.Second, MaxDelay: 2 * time.Second})
	if d := transport.delay(6); d > 2*time.Second+400*time.Millisecond {
		t.Fatalf("delay = %s, want capped near 2s", d)
	}
}
