// Package ai implements the ordered inference fallback chain and its backends.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/internal/outcome"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

const (
	defaultAttemptTimeout = 30 * time.Second
	defaultMaxTokens      = 150
)

var (
	// ErrNoBackends is reported when the chain has nothing configured.
	ErrNoBackends = errors.New("ai: no inference backends configured")
	// ErrEmptyResponse is reported when a backend answers with blank text.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Backend is one entry of the ordered chain.
type Backend struct {
	Name   string
	Model  string
	Client LLMClient
}

// Chain tries each backend in order and short-circuits on the first usable answer.
type Chain struct {
	backends  []Backend
	timeout   time.Duration
	maxTokens int32
	logger    *logging.Logger
	metrics   *metrics.AIMetrics
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithAttemptTimeout bounds every individual backend call.
func WithAttemptTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxTokens sets the completion budget sent to each backend.
func WithMaxTokens(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.maxTokens = int32(n)
		}
	}
}

// WithMetrics records attempts per backend.
func WithMetrics(m *metrics.AIMetrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// NewChain builds a chain over backends in the given order. Entries without a
// client are skipped.
func NewChain(backends []Backend, logger *logging.Logger, opts ...ChainOption) *Chain {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Chain{
		timeout:   defaultAttemptTimeout,
		maxTokens: defaultMaxTokens,
		logger:    logger,
	}
	for _, b := range backends {
		if b.Client == nil {
			continue
		}
		c.backends = append(c.backends, b)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names lists the configured backends in attempt order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.backends))
	for _, b := range c.backends {
		names = append(names, b.Name)
	}
	return names
}

// Respond asks each backend in turn. A failing backend is logged and skipped;
// the result is Unavailable only when every attempt failed or none exist.
func (c *Chain) Respond(ctx context.Context, prompt, systemContext string) outcome.Result[string] {
	if c == nil || len(c.backends) == 0 {
		return outcome.Unavailable[string](ErrNoBackends)
	}

	req := LLMRequest{
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
		TopP:        0.9,
	}
	if strings.TrimSpace(systemContext) != "" {
		req.System = []string{systemContext}
	}

	var errs []error
	for _, backend := range c.backends {
		text, err := c.attempt(ctx, backend, req)
		if err != nil {
			c.logger.Warn("inference backend failed, trying next",
				"backend", backend.Name,
				"error", err.Error(),
			)
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name, err))
			continue
		}
		c.logger.Debug("inference backend answered", "backend", backend.Name)
		return outcome.OK(text)
	}
	return outcome.Unavailable[string](errors.Join(errs...))
}

// RespondOr returns the chain's answer, or fallback when no backend answered.
func (c *Chain) RespondOr(ctx context.Context, prompt, systemContext, fallback string) string {
	res := c.Respond(ctx, prompt, systemContext)
	if !res.Ok() {
		return fallback
	}
	return res.Value
}

// RespondStructured asks for a JSON answer and decodes the first object found
// in the reply into dst. It reports false when no backend answered or the
// answer held no decodable object.
func (c *Chain) RespondStructured(ctx context.Context, prompt, systemContext string, dst any) bool {
	res := c.Respond(ctx, prompt, systemContext)
	if !res.Ok() {
		return false
	}
	if err := DecodeStructured(res.Value, dst); err != nil {
		c.logger.Info("inference answer had no structured payload", "error", err.Error())
		return false
	}
	return true
}

func (c *Chain) attempt(ctx context.Context, backend Backend, req LLMRequest) (text string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ai: backend panicked: %v", r)
		}
		status := "ok"
		if err != nil {
			status = "error"
			if errors.Is(err, context.DeadlineExceeded) {
				status = "timeout"
			}
		}
		c.metrics.ObserveAttempt(backend.Name, status, time.Since(start).Seconds())
	}()

	req.Model = backend.Model
	resp, err := backend.Client.Complete(attemptCtx, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
