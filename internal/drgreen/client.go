package drgreen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"storefront/internal/metrics"
)

const (
	HeaderAPIKey    = "x-auth-apikey"
	HeaderSignature = "x-auth-signature"

	maxResponseBytes = 10 << 20
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("drgreen: upstream circuit open")

// Credentials is one tenant's decrypted key pair.
type Credentials struct {
	APIKey    string
	SecretKey string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &MissingCredentialsError{Field: "apiKey"}
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return &MissingCredentialsError{Field: "secretKey"}
	}
	return nil
}

type BreakerConfig struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	Interval    time.Duration
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit caps outbound requests per second; zero disables throttling.
	RateLimit float64
	Burst     int
	Breaker   BreakerConfig
	HTTP      *http.Client
	Logger    *slog.Logger
}

// Request describes one upstream call. Body may be nil, []byte, string,
// json.RawMessage or any JSON-encodable value.
type Request struct {
	Method         string
	Path           string
	Query          url.Values
	Body           any
	Headers        map[string]string
	RequireSuccess bool
}

type Response struct {
	StatusCode int
	Header     http.Header
	// Body is the decoded JSON, or the raw text when the body is not JSON.
	Body any
	Raw  []byte
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error { return json.Unmarshal(r.Raw, v) }

// Client calls the Dr. Green API on behalf of tenants. It holds no credentials
// itself; each call carries the caller's.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("drgreen: base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("drgreen: invalid base URL: %w", err)
	}
	c := &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: cfg.HTTP, log: cfg.Logger}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "drgreen")
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, c.log)
	}
	return c, nil
}

func newBreaker(bc BreakerConfig, log *slog.Logger) *gobreaker.CircuitBreaker {
	minReq := bc.MinRequests
	if minReq == 0 {
		minReq = 5
	}
	ratio := bc.FailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "drgreen",
		Interval: bc.Interval,
		Timeout:  bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minReq {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		// Client errors say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *ExternalAPIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			var logicErr *UpstreamLogicError
			return errors.As(err, &logicErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			switch to {
			case gobreaker.StateClosed:
				metrics.DrGreenBreakerState.Set(0)
			case gobreaker.StateHalfOpen:
				metrics.DrGreenBreakerState.Set(1)
			case gobreaker.StateOpen:
				metrics.DrGreenBreakerState.Set(2)
			}
		},
	})
}

// Do sends req with creds. Missing credentials and signing failures are
// reported before any network I/O. Non-2xx responses yield *ExternalAPIError;
// with RequireSuccess a body lacking "success": true yields *UpstreamLogicError.
// Do never retries.
func (c *Client) Do(ctx context.Context, req Request, creds Credentials) (*Response, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("drgreen: encode body: %w", err)
	}
	var signature string
	if method != http.MethodGet && len(body) > 0 {
		if signature, err = Sign(string(body), creds.SecretKey); err != nil {
			return nil, err
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("drgreen: rate limit: %w", err)
		}
	}

	start := time.Now()
	call := func() (any, error) { return c.send(ctx, method, req, body, creds.APIKey, signature) }
	var out any
	if c.breaker != nil {
		out, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
	} else {
		out, err = call()
	}
	metrics.DrGreenDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.DrGreenRequests.WithLabelValues(method, outcome(err)).Inc()
	if err != nil {
		c.log.Warn("drgreen request failed", "method", method, "path", req.Path, "err", err)
		return nil, err
	}
	resp, _ := out.(*Response)
	return resp, nil
}

func (c *Client) send(ctx context.Context, method string, req Request, body []byte, apiKey, signature string) (*Response, error) {
	target := c.base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("drgreen: build request: %w", err)
	}
	hreq.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		hreq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	hreq.Header.Set(HeaderAPIKey, apiKey)
	if signature != "" {
		hreq.Header.Set(HeaderSignature, signature)
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("drgreen: %s %s: %w", method, req.Path, err)
	}
	defer func() { _ = hresp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(hresp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("drgreen: read response: %w", err)
	}
	resp := &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Raw: raw, Body: parseBody(raw)}

	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		return nil, &ExternalAPIError{
			StatusCode: hresp.StatusCode,
			StatusText: http.StatusText(hresp.StatusCode),
			Body:       resp.Body,
			Raw:        string(raw),
		}
	}
	if req.RequireSuccess {
		m, ok := resp.Body.(map[string]any)
		if !ok || m["success"] != true {
			return nil, &UpstreamLogicError{Message: messageOf(resp.Body), Body: resp.Body}
		}
	}
	return resp, nil
}

func encodeBody(b any) ([]byte, error) {
	switch v := b.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func parseBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func outcome(err error) string {
	var apiErr *ExternalAPIError
	var logicErr *UpstreamLogicError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr):
		return "http_error"
	case errors.As(err, &logicErr):
		return "logic_error"
	default:
		return "transport_error"
	}
}
