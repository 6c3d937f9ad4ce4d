package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/token"
)

const (
	apiPrefix = "/api"

	maxErrorBody = 64 << 10
)

// Session is the shared session context every pipeline instance reads the
// credential from and reports invalid credentials to.
type Session interface {
	// Stored reads the persisted credential. auth.ErrNoCredential means none.
	Stored() (*auth.Credential, error)
	// Invalidate clears the credential carrying tok and publishes the
	// session-expired event, at most once per token.
	Invalidate(tok, reason, source string) bool
}

// Client represents an HTTP client for one chat API backend. All requests
// pass through the same credential checks.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	codec      *token.Codec
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithClock sets the clock used for local expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.codec = token.NewCodec(now) }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a new API client for the server at serverURL. Every backend
// gets its own Client; all of them should share one Session.
func New(serverURL string, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(serverURL, "/") + apiPrefix,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		session: session,
		codec:   token.NewCodec(nil),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	// public requests never carry a credential and never invalidate one.
	public bool
}

func jsonRequest(op, method, path string, payload any) (*request, error) {
	req := &request{op: op, method: method, path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		req.body = bytes.NewReader(data)
		req.contentType = "application/json"
	}
	return req, nil
}

// call is the single choke point every API operation goes through.
func (c *Client) call(ctx context.Context, r *request, out any) error {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}

	requestID := ulid.Make().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	log := c.logger.With().
		Str("op", r.op).
		Str("request_id", requestID).
		Str("base_url", c.baseURL).
		Logger()

	var sentToken string
	if !r.public {
		tok, err := c.attach(req, log)
		if err != nil {
			return &Error{Kind: KindTokenExpired, Op: r.op, Err: err}
		}
		sentToken = tok
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Request failed")
		return &Error{Kind: KindNetwork, Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &Error{
			Kind:       KindServer,
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Message:    backendMessage(body),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Kind = KindUnauthenticated
			if sentToken != "" {
				log.Info().Msg("Backend rejected session token")
				c.session.Invalidate(sentToken, "unauthorized", c.baseURL)
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Kind:       KindServer,
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// attach re-reads the stored credential and sets the bearer header. It
// returns ErrTokenExpired, after invalidating the session, when the stored
// token must not be sent.
func (c *Client) attach(req *http.Request, log zerolog.Logger) (string, error) {
	cred, err := c.session.Stored()
	if err != nil {
		if !errors.Is(err, auth.ErrNoCredential) {
			log.Warn().Err(err).Msg("Failed to read stored credential, sending unauthenticated")
		}
		return "", nil
	}

	if c.codec.IsExpired(cred.Token) {
		log.Info().Msg("Stored session token expired, request not sent")
		c.session.Invalidate(cred.Token, "token expired", c.baseURL)
		return "", ErrTokenExpired
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cred.Token))
	return cred.Token, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	r, _ := jsonRequest(op, http.MethodGet, path, nil)
	return c.call(ctx, r, out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, payload, out any) error {
	r, err := jsonRequest(op, method, path, payload)
	if err != nil {
		return err
	}
	return c.call(ctx, r, out)
}
