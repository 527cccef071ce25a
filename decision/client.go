package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/botcore/snapshot"
)

var (
	ErrNetwork        = errors.New("decision service unreachable")
	ErrNetworkTimeout = errors.New("decision service timeout")
)

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("decision %s: status %d: %s", e.Path, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrNetwork }

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// RatePerMinute caps outgoing requests; 0 means unlimited.
	RatePerMinute int
}

// Client talks to the decision service over HTTP JSON.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		limiter:    limiter,
		log:        log.With().Str("component", "decision").Logger(),
	}
}

// Decide sends the snapshot for an analysis cycle and returns the raw
// response body for the directive parser.
func (c *Client) Decide(ctx context.Context, kind Kind, s snapshot.Snapshot) ([]byte, error) {
	return c.Post(ctx, kind.Path(), NewRequest(kind, s))
}

// ConfirmExecution reports a placed ENTER.
func (c *Client) ConfirmExecution(ctx context.Context, e Execution) error {
	_, err := c.Post(ctx, PathExecute, e)
	return err
}

// Post sends body as JSON to path. Transport failures wrap ErrNetwork or
// ErrNetworkTimeout; a non-2xx status is a *StatusError.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("decision %s: rate limit: %w", path, classify(ctx, err))
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("decision %s: encode request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decision %s: create request: %w", path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Str("request_id", reqID).Msg("request failed")
		return nil, fmt.Errorf("decision %s: %w", path, classify(ctx, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decision %s: read response: %w", path, classify(ctx, err))
	}

	c.log.Debug().
		Str("path", path).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Int("bytes", len(data)).
		Msg("decision response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, nil
}

// classify maps a transport error onto ErrNetworkTimeout or ErrNetwork,
// keeping the original error in the chain.
func classify(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrNetworkTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
