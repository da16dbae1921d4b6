package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"MedMonitor/internal/ports"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultDelay     = 200 * time.Millisecond
	defaultRetries   = 2
	defaultUserAgent = "MedMonitor/1.0"
	backoffInitial   = 500 * time.Millisecond
	backoffMax       = 15 * time.Second

	throttledBackoffFactor = 2
)

// ErrorKind classifies terminal fetch failures.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindHTTPStatus       ErrorKind = "http_status"
	KindConnectionFailed ErrorKind = "connection_failed"
)

// Error is returned when a request exhausts its retry budget or hits a
// non-retryable response.
type Error struct {
	Kind     ErrorKind
	Status   int
	Attempts int
	URL      string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d, %d attempts)", e.URL, e.Kind, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempts: %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures one per-source fetcher instance.
type Options struct {
	Delay      time.Duration
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
	Headers    map[string]string
}

// Client enforces a minimum inter-request delay per source and retries
// transient failures with exponential backoff. The delay timer is owned per
// fetcher instance; within one collector page fetches are sequential, so the
// limiter blocks the pagination loop rather than dropping requests.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger
}

var _ ports.Fetcher = (*Client)(nil)

// New wires an HTTP client; zero option fields fall back to defaults.
func New(client *http.Client, opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		http:    client,
		limiter: rate.NewLimiter(rate.Every(opts.Delay), 1),
		opts:    opts,
		logger:  logger,
	}
}

// Fetch performs a GET with rate limiting and bounded retries. Transient
// failures (timeouts, connection resets, 5xx) consume the retry budget; 4xx
// other than 429 fail immediately, and 429 extends the next backoff interval.
func (c *Client) Fetch(ctx context.Context, req ports.FetchRequest) (ports.FetchResponse, error) {
	target, err := buildURL(req.URL, req.Params)
	if err != nil {
		return ports.FetchResponse{}, fmt.Errorf("build request url: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitial
	bo.MaxInterval = backoffMax
	bo.Reset()

	maxAttempts := c.opts.MaxRetries + 1
	var lastErr *Error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.FetchResponse{}, err
		}

		resp, fetchErr := c.doOnce(ctx, target, req.Headers)
		if fetchErr == nil {
			return resp, nil
		}
		fetchErr.Attempts = attempt
		lastErr = fetchErr

		if !c.retryable(fetchErr) || attempt == maxAttempts {
			break
		}

		wait := bo.NextBackOff()
		if fetchErr.Status == http.StatusTooManyRequests {
			wait *= throttledBackoffFactor
		}
		c.debug("retrying fetch", "url", target, "attempt", attempt, "wait", wait, "error", fetchErr)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ports.FetchResponse{}, ctx.Err()
		}
	}

	return ports.FetchResponse{}, lastErr
}

func (c *Client) doOnce(ctx context.Context, target string, headers map[string]string) (ports.FetchResponse, *Error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return ports.FetchResponse{}, &Error{Kind: KindConnectionFailed, URL: target, Err: err}
	}
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range c.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ports.FetchResponse{}, &Error{Kind: classifyNetError(err), URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ports.FetchResponse{}, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.FetchResponse{}, &Error{Kind: classifyNetError(err), URL: target, Err: err}
	}

	return ports.FetchResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

func (c *Client) retryable(err *Error) bool {
	switch err.Kind {
	case KindTimeout, KindConnectionFailed:
		return true
	case KindHTTPStatus:
		return err.Status >= 500 || err.Status == http.StatusTooManyRequests
	}
	return false
}

func classifyNetError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnectionFailed
}

func buildURL(base string, params map[string]string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", base, err)
	}
	if len(params) == 0 {
		return parsed.String(), nil
	}
	query := parsed.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
