// Package autorag is a client for the Cloudflare AutoRAG search endpoint that
// backs the document corpus.
package autorag

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

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/telo-ai/server/pkg/tracing"
)

var (
	// ErrRejected marks 4xx answers; they are not retried.
	ErrRejected = errors.New("autorag rejected request")
	// ErrUnavailable marks transport failures and 5xx answers.
	ErrUnavailable = errors.New("autorag unavailable")
)

type Config struct {
	AccountID        string        `split_words:"true" required:"true"`
	APIToken         string        `envconfig:"AUTORAG_API_TOKEN" required:"true"`
	Name             string        `default:"tgxai-rag"`
	BaseURL          string        `split_words:"true" default:"https://api.cloudflare.com/client/v4"`
	Timeout          time.Duration `default:"20s"`
	MaxResults       int           `split_words:"true" default:"10"`
	RetryAttempts    int           `split_words:"true" default:"2"`
	RetryDelay       time.Duration `split_words:"true" default:"250ms"`
	BreakerThreshold int           `split_words:"true" default:"5"`
	BreakerCooldown  time.Duration `split_words:"true" default:"30s"`
}

// Client performs searches with a per-call deadline, retries on transient
// failures and a circuit breaker shared by all callers.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker circuitbreaker.CircuitBreaker[*SearchResponse]
	retrier retry.Retry[*SearchResponse]
}

type Option func(*Client)

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.AccountID == "" || cfg.Name == "" {
		return nil, fmt.Errorf("autorag: account id and rag name are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	threshold := cfg.BreakerThreshold
	if threshold < 1 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
		breaker: circuitbreaker.New[*SearchResponse](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cooldown,
			Timeout:     cooldown,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold >= 1
			},
			IsSuccessful: breakerSuccess,
		}),
		retrier: retry.New[*SearchResponse](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       cfg.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{ErrRejected},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// breakerSuccess counts only upstream outages against the breaker. Rejected
// queries and caller cancellation say nothing about the service's health.
func breakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, context.Canceled)
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/accounts/%s/autorag/rags/%s/search",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountID, c.cfg.Name)
}

// Search runs one query against the index.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrRejected)
	}
	if req.MaxNumResults == 0 {
		req.MaxNumResults = c.cfg.MaxResults
	}

	ctx, span := tracing.Tracer().Start(ctx, "autorag.search")
	defer span.End()
	span.SetAttributes(attribute.String("autorag.query", req.Query))
	if req.Filters != nil {
		span.SetAttributes(attribute.String("autorag.filter."+req.Filters.Key, req.Filters.Value))
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	resp, err := c.breaker.Execute(ctx, func(ctx context.Context) (*SearchResponse, error) {
		return c.retrier.Do(ctx, func(ctx context.Context) (*SearchResponse, error) {
			return c.do(ctx, payload)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("autorag.results", len(resp.Data)))
	return resp, nil
}

func (c *Client) do(ctx context.Context, payload []byte) (*SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, httpResp.StatusCode, snippet(body))
	case httpResp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, httpResp.StatusCode, snippet(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRejected, err)
	}
	if !env.Success || env.Result == nil {
		msgs := make([]string, 0, len(env.Errors))
		for _, m := range env.Errors {
			msgs = append(msgs, m.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, strings.Join(msgs, "; "))
	}
	if env.Result.Data == nil {
		env.Result.Data = []Document{}
	}
	return env.Result, nil
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
