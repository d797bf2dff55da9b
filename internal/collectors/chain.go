package collectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/models"
)

// ChainLink pairs a constructed provider with the config entry that selected
// it, so per-provider model overrides and params travel with the provider.
type ChainLink struct {
	Provider Provider
	Ref      models.ProviderRef
}

// Chain tries an engine's providers in priority order until one returns a
// usable result or the list is exhausted. Transient failures fall through to
// the next provider; hard failures stop the chain immediately.
type Chain struct {
	engine  string
	links   []ChainLink
	timeout time.Duration
	logger  arbor.ILogger
}

// NewChain builds a chain over the given links, already sorted by priority.
// The timeout applies per provider call.
func NewChain(engine string, links []ChainLink, timeout time.Duration, logger arbor.ILogger) *Chain {
	return &Chain{
		engine:  engine,
		links:   links,
		timeout: timeout,
		logger:  logger,
	}
}

// Engine returns the answer engine this chain services
func (c *Chain) Engine() string {
	return c.engine
}

// Execute runs the request down the provider chain. Each call carries the
// model override and params from the provider's config entry. It returns the
// response, the name of the provider that produced it, and the attempt trail
// covering every provider call made, including failed ones.
func (c *Chain) Execute(ctx context.Context, req *Request) (*Response, string, []models.ProviderAttempt, error) {
	if len(c.links) == 0 {
		return nil, "", nil, fmt.Errorf("no enabled providers for engine %s", c.engine)
	}

	var attempts []models.ProviderAttempt
	var lastErr error

	for _, link := range c.links {
		callReq := *req
		callReq.Model = link.Ref.Model
		callReq.Params = link.Ref.Params

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		resp, err := link.Provider.Execute(callCtx, &callReq)
		cancel()

		attempt := models.ProviderAttempt{
			Provider:  link.Provider.Name(),
			StartedAt: start,
			Duration:  time.Since(start),
		}

		if err == nil {
			attempts = append(attempts, attempt)
			return resp, link.Provider.Name(), attempts, nil
		}

		// A per-call deadline counts as a transient failure eligible for
		// fallback; parent context cancellation aborts the whole chain.
		if ctx.Err() != nil {
			attempt.Error = ctx.Err().Error()
			attempts = append(attempts, attempt)
			return nil, "", attempts, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = Transient(link.Provider.Name(), err)
		}

		transient := IsTransient(err)
		attempt.Error = err.Error()
		attempt.Transient = transient
		attempts = append(attempts, attempt)
		lastErr = err

		if !transient {
			c.logger.Warn().
				Str("engine", c.engine).
				Str("provider", link.Provider.Name()).
				Err(err).
				Msg("Hard provider failure, not falling through")
			return nil, "", attempts, err
		}

		c.logger.Warn().
			Str("engine", c.engine).
			Str("provider", link.Provider.Name()).
			Err(err).
			Msg("Transient provider failure, trying next provider")
	}

	return nil, "", attempts, fmt.Errorf("all providers exhausted for engine %s: %w", c.engine, lastErr)
}
