package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/focusflow/splitd/internal/circuitbreaker"
	"github.com/focusflow/splitd/internal/metrics"
	"github.com/focusflow/splitd/internal/models"
)

// Client proposes child steps for a node. The natural-language capability
// behind it is opaque; implementations only honor the request/response
// shapes and the error taxonomy.
type Client interface {
	Propose(ctx context.Context, req Request) ([]Candidate, error)
}

// ClientConfig holds the knobs for the HTTP reasoning client.
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RateLimitRPS float64
	RateBurst    int
	Breaker      circuitbreaker.Config
}

// HTTPClient calls the reasoning service over HTTP/JSON with a per-call
// timeout, a client-side rate limiter and a circuit breaker. It performs no
// retries; retry policy belongs to the caller.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPClient creates a reasoning client. A zero rate limit disables
// client-side throttling.
func NewHTTPClient(cfg ClientConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{Timeout: timeout},
		limiter: limiter,
		breaker: circuitbreaker.New("reasoning", cfg.Breaker, logger),
		logger:  logger,
	}
}

// Propose sends one decomposition request and returns validated candidates.
// Failures map onto the taxonomy: deadline expiry and cancellation become
// Timeout, transport and status failures become ServiceUnavailable, and any
// schema-invalid body becomes MalformedResponse.
func (c *HTTPClient) Propose(ctx context.Context, req Request) ([]Candidate, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, mapTransportErr(err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeInvalidInput, err, "encode reasoning request")
	}

	start := time.Now()
	var candidates []Candidate
	err = c.breaker.Execute(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/propose", c.baseURL), bytes.NewReader(body))
		if err != nil {
			return models.WrapError(models.ErrCodeServiceUnavailable, err, "build reasoning request")
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			return mapTransportErr(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return models.NewError(models.ErrCodeServiceUnavailable, "reasoning service returned status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
			return models.WrapError(models.ErrCodeMalformedResponse, err, "decode reasoning response")
		}
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ReasoningRequests.WithLabelValues(status).Inc()
	metrics.ReasoningLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, models.WrapError(models.ErrCodeServiceUnavailable, err, "reasoning service circuit open")
		}
		if models.CodeOf(err) != "" {
			return nil, err
		}
		return nil, models.WrapError(models.ErrCodeServiceUnavailable, err, "reasoning call failed")
	}

	if err := validate(candidates); err != nil {
		c.logger.Warn("Rejected malformed reasoning response",
			zap.String("node_text", req.NodeText),
			zap.Error(err),
		)
		return nil, err
	}
	return candidates, nil
}

// mapTransportErr folds transport errors into the taxonomy. Cancellation is
// not a third outcome; it collapses into Timeout so every caller path sees a
// plain job failure.
func mapTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.WrapError(models.ErrCodeTimeout, err, "reasoning call aborted")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return models.WrapError(models.ErrCodeTimeout, err, "reasoning call timed out")
	}
	return models.WrapError(models.ErrCodeServiceUnavailable, err, "reasoning service unreachable")
}
