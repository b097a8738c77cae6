// Package token exchanges a (room, identity) pair for a short-lived access
// token at the token endpoint.
package token

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
)

const (
	// DefaultPath is the token endpoint path relative to the base URL.
	DefaultPath    = "/api/Users/getToken"
	DefaultTimeout = 15 * time.Second

	maxBodySize = 1 << 20
)

// Client requests access tokens. Concurrent requests for the same room and
// identity share one network call. Failures are returned as is; the client
// never retries on its own.
type Client struct {
	baseURL  string
	path     string
	endpoint string
	http     *http.Client
	timeout  time.Duration
	log      *slog.Logger
	group    singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds a single network call, independent of caller contexts.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPath overrides DefaultPath.
func WithPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.path = "/" + strings.TrimLeft(path, "/")
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    DefaultPath,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.endpoint = c.baseURL + c.path
	return c
}

// RequestToken resolves a token for room and identity. Empty arguments fail
// with KindInvalidArgument before any network call. If ctx ends first the
// caller gets ctx.Err(); the shared network call keeps running for any other
// callers waiting on the same pair.
func (c *Client) RequestToken(ctx context.Context, room, identity string) (domain.Token, error) {
	req := domain.NewTokenRequest(room, identity)
	if err := req.Validate(); err != nil {
		return domain.Token{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Token{}, err
	}

	ch := c.group.DoChan(req.Key(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, req)
	})

	select {
	case <-ctx.Done():
		return domain.Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Token{}, res.Err
		}
		return res.Val.(domain.Token), nil
	}
}

type tokenPayload struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type tokenResponse struct {
	tokenPayload
	Data *tokenPayload `json:"data,omitempty"`
}

func (c *Client) fetch(ctx context.Context, req domain.TokenRequest) (domain.Token, error) {
	const op = "token.client.fetch"
	log := c.log.With(
		slog.String("op", op),
		slog.String("room", req.Room),
		slog.String("identity", req.Identity),
	)

	form := url.Values{}
	form.Set("roomName", req.Room)
	form.Set("identity", req.Identity)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Token{}, domain.WrapError(domain.KindInvalidArgument, "build token request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	log.Debug("requesting token")
	started := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Warn("token request failed", sl.Err(err))
		return domain.Token{}, domain.WrapError(domain.KindTransportFailure, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		log.Warn("reading token response failed", sl.Err(err))
		return domain.Token{}, domain.WrapError(domain.KindTransportFailure, "read token response", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		log.Warn("token endpoint refused request", slog.Int("status", resp.StatusCode), sl.Err(err))
		return domain.Token{}, err
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		log.Warn("malformed token response", sl.Err(err))
		return domain.Token{}, domain.WrapError(domain.KindTransportFailure, "malformed token response", err)
	}

	payload := decoded.tokenPayload
	if payload.Token == "" && decoded.Data != nil {
		payload = *decoded.Data
	}
	if payload.Token == "" {
		return domain.Token{}, domain.NewError(domain.KindRejected, "token endpoint returned no token")
	}

	token := domain.Token{Value: payload.Token, ExpiresAt: payload.ExpiresAt}
	if token.ExpiresAt == nil {
		token.ExpiresAt = jwtExpiry(payload.Token)
	}

	log.Info("token issued", slog.Duration("took", time.Since(started)))
	return token, nil
}

// classifyStatus maps non-2xx statuses: timeouts, throttling and server
// errors are transport failures the caller may retry; other client errors
// mean the credential was refused.
func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := fmt.Sprintf("token endpoint returned %d", status)
	if detail := strings.TrimSpace(string(body)); detail != "" {
		if len(detail) > 200 {
			detail = detail[:200]
		}
		msg += ": " + detail
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return domain.NewError(domain.KindTransportFailure, msg)
	case status >= 400:
		return domain.NewError(domain.KindRejected, msg)
	default:
		return domain.NewError(domain.KindTransportFailure, msg)
	}
}

// jwtExpiry reads the exp claim without verifying the signature; the token
// is opaque to this client and only the launcher's peer validates it.
func jwtExpiry(raw string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time.UTC()
	return &t
}
