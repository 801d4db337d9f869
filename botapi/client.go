// Package botapi implements the Telegram Bot API HTTP client. It is the
// fetch collaborator behind the polling listener and carries the send-side
// calls a bot needs beyond receiving updates.
package botapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/berkus/teloxide/config"
	"github.com/berkus/teloxide/errs"
	"github.com/berkus/teloxide/lib/observability"
)

const (
	defaultBaseURL        = "https://api.telegram.org"
	defaultRequestTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read; a full
	// hundred-update batch stays far below this.
	maxResponseBytes = 8 << 20
)

// Client talks to one bot's API surface. The zero value is not usable;
// construct with New. Safe for concurrent use: all mutable state lives in
// the shared http.Client and the rate limiter, both concurrency-safe.
type Client struct {
	token          string
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	requestTimeout time.Duration
}

// Option adjusts one client parameter at construction time.
type Option func(*Client)

// WithBaseURL points the client at a different API host, usually a local
// test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient injects the transport. The client must not carry its own
// Timeout; per-call deadlines are applied through the request context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestTimeout bounds non-polling calls and pads the long-poll hold
// on getUpdates.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRateLimit gates every outgoing call through a token bucket.
// Non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSettings applies the bot and rate-limit configuration sections. The
// token still comes from the New argument.
func WithSettings(cfg config.Settings) Option {
	return func(c *Client) {
		WithBaseURL(cfg.Bot.APIEndpoint)(c)
		WithRequestTimeout(cfg.Bot.HTTPTimeout)(c)
		WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)(c)
	}
}

// New constructs a client for the given bot token.
func New(token string, opts ...Option) *Client {
	if strings.TrimSpace(token) == "" {
		panic("botapi: token must not be empty")
	}
	c := &Client{
		token:          token,
		baseURL:        defaultBaseURL,
		httpClient:     &http.Client{},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// invokeJSON posts the payload as JSON and decodes the envelope result into
// out. A nil payload sends an empty body.
func (c *Client) invokeJSON(ctx context.Context, method string, payload, out any) error {
	op := "botapi/" + method
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errs.New(op, errs.CodeInvalid,
				errs.WithMessage("encode request"), errs.WithCause(err))
		}
		body = encoded
	}
	return c.do(ctx, method, "application/json", bytes.NewReader(body), out)
}

// do performs one API round trip: throttle, send, decode, classify.
func (c *Client) do(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	op := "botapi/" + method
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errs.Canceled(op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), body)
	if err != nil {
		return errs.New(op, errs.CodeInvalid,
			errs.WithMessage("build request"), errs.WithCause(err))
	}
	req.Header.Set("Content-Type", contentType)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errs.Canceled(op, err)
		}
		return errs.New(op, errs.CodeNetwork,
			errs.WithMessage("transport failure"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	observability.Log().Debug("botapi request completed",
		observability.F("method", method),
		observability.F("request_id", requestID),
		observability.F("status", resp.StatusCode),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errs.New(op, errs.CodeNetwork,
			errs.WithMessage("read response"), errs.WithCause(err))
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			// The status alone is enough to classify; the body is garbage.
			return classify(op, resp.StatusCode, apiResponse{})
		}
		return errs.New(op, errs.CodeDecode,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("malformed response envelope"),
			errs.WithCause(err))
	}
	if !env.OK {
		return classify(op, resp.StatusCode, env)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errs.New(op, errs.CodeDecode,
				errs.WithHTTP(resp.StatusCode),
				errs.WithMessage("malformed result payload"),
				errs.WithCause(err))
		}
	}
	return nil
}
