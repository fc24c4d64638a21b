package provider

import (
	"context"
	"time"

	"github.com/haasonsaas/relay/internal/backoff"
	"github.com/haasonsaas/relay/internal/observability"
)

// acquireTimeout bounds how long one chat request may wait for a poll
// slot before giving up and returning the last known state.
const acquireTimeout = 5 * time.Second

// Retriever fetches the current state of a response by id.
type Retriever interface {
	Retrieve(ctx context.Context, responseID string) (map[string]any, error)
}

// PollerConfig configures the shared response poller.
type PollerConfig struct {
	// MaxConcurrency bounds simultaneous retrieve calls process-wide.
	MaxConcurrency int

	// Delay is the pause between consecutive polls of one response.
	Delay time.Duration

	// MaxPolls caps retrieve calls per response.
	MaxPolls int

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Poller drives a response to a terminal status. One Poller is shared
// by all chat requests so the semaphore bounds the whole process.
//
// Polling is best-effort by design: semaphore starvation and retrieve
// errors degrade to returning the last known payload instead of
// failing the chat request.
type Poller struct {
	sem      chan struct{}
	delay    time.Duration
	maxPolls int
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewPoller creates a poller with the given bounds.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxPolls < 1 {
		cfg.MaxPolls = 1
	}
	return &Poller{
		sem:      make(chan struct{}, cfg.MaxConcurrency),
		delay:    cfg.Delay,
		maxPolls: cfg.MaxPolls,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Await polls until the response reaches a terminal status, the poll
// budget is spent, or the context is cancelled. It always returns the
// most recent payload it has seen.
func (p *Poller) Await(ctx context.Context, r Retriever, initial map[string]any, responseID string) map[string]any {
	last := initial

	for polls := 0; polls < p.maxPolls; polls++ {
		if IsTerminal(Status(last)) {
			return last
		}

		release, ok := p.acquire(ctx)
		if !ok {
			if p.logger != nil {
				p.logger.Warn(ctx, "poll slot unavailable, returning last known state",
					"response_id", responseID, "status", Status(last))
			}
			return last
		}

		next, err := r.Retrieve(ctx, responseID)
		release()

		if err != nil {
			if ctx.Err() != nil {
				return last
			}
			if p.logger != nil {
				p.logger.Warn(ctx, "poll returned no new information",
					"response_id", responseID, "error", err)
			}
		} else if next != nil {
			last = next
		}

		if IsTerminal(Status(last)) {
			return last
		}

		if err := backoff.Sleep(ctx, p.delay); err != nil {
			return last
		}
	}

	if p.logger != nil {
		p.logger.Warn(ctx, "poll budget exhausted before terminal status",
			"response_id", responseID, "status", Status(last), "max_polls", p.maxPolls)
	}
	return last
}

// acquire takes a poll slot, waiting up to acquireTimeout. The returned
// release function must be called exactly once when ok is true.
func (p *Poller) acquire(ctx context.Context) (func(), bool) {
	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		if p.metrics != nil {
			p.metrics.PollsInFlight.Inc()
		}
		return func() {
			<-p.sem
			if p.metrics != nil {
				p.metrics.PollsInFlight.Dec()
			}
		}, true
	case <-ctx.Done():
		return nil, false
	case <-timer.C:
		return nil, false
	}
}
