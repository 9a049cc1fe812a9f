// Package transport wraps outbound HTTP calls with a per-attempt timeout and a
// bounded retry restricted to transient failures.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the retry/timeout configuration for a Client.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
	// Backoff is the delay before retry n. The last value repeats.
	Backoff []time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Timeout:    15 * time.Second,
		Backoff:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Budget is the longest a single Do call can take: every attempt running to
// its timeout plus every retry delay.
func (p Policy) Budget() time.Duration {
	total := time.Duration(p.MaxRetries+1) * p.Timeout
	s := &schedule{delays: p.Backoff, max: p.MaxRetries}
	for d := s.NextBackOff(); d != backoff.Stop; d = s.NextBackOff() {
		total += d
	}
	return total
}

// TransientTransportError is returned once every attempt failed transiently.
type TransientTransportError struct {
	Attempts int
	Err      error
}

func (e *TransientTransportError) Error() string {
	return fmt.Sprintf("transport failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientTransportError) Unwrap() error { return e.Err }

// statusError marks a retryable upstream status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.code)
}

// Doer is the subset of *http.Client the transport needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	http   Doer
	policy Policy
}

func New(httpClient Doer, policy Policy) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, policy: policy}
}

// Do sends req, retrying transient failures per the policy. Responses other
// than 502/503/504 are returned as-is, including 4xx. The request body is
// buffered so it can be replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	ctx := req.Context()
	attempts := 0
	var resp *http.Response

	op := func() error {
		attempts++
		r, err := c.attempt(ctx, req, body)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		switch r.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return &statusError{code: r.StatusCode}
		}
		resp = r
		return nil
	}

	notify := func(err error, d time.Duration) {
		log.Printf("WARNING: %s %s attempt %d failed, retrying in %s: %v", req.Method, req.URL, attempts, d, err)
	}

	var b backoff.BackOff = &schedule{delays: c.policy.Backoff, max: c.policy.MaxRetries}
	b = backoff.WithContext(b, ctx)

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return resp, nil
	}
	if IsTransient(err) {
		return nil, &TransientTransportError{Attempts: attempts, Err: err}
	}
	return nil, err
}

func (c *Client) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	r := req.Clone(attemptCtx)
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	resp, err := c.http.Do(r)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the attempt context once the caller is done reading.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// IsTransient reports whether err is worth retrying: timeouts, refused or
// reset connections, and retryable upstream statuses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// schedule is a backoff.BackOff that walks a fixed delay list and stops after
// max retries.
type schedule struct {
	delays []time.Duration
	max    int
	n      int
}

func (s *schedule) NextBackOff() time.Duration {
	if s.n >= s.max {
		return backoff.Stop
	}
	var d time.Duration
	if len(s.delays) > 0 {
		i := s.n
		if i >= len(s.delays) {
			i = len(s.delays) - 1
		}
		d = s.delays[i]
	}
	s.n++
	return d
}

func (s *schedule) Reset() { s.n = 0 }
