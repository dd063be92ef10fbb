package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/bhairavmehta/financial-ai-swarm/internal/agent"
)

// DefaultTimeout bounds each collaborator invocation.
const DefaultTimeout = 5 * time.Second

// retryBackoff is the wait before the single retry of an invalid response.
const retryBackoff = 100 * time.Millisecond

// errCallerCancelled marks an invocation abandoned because the caller's
// context ended: the compliance short-circuit cancelling in-flight advisory
// work, or the client going away. The collaborator did nothing wrong, so the
// breaker must not count it.
var errCallerCancelled = errors.New("caller cancelled")

// invokeFn is one collaborator call bound to a transaction view.
type invokeFn func(ctx context.Context) (agent.Verdict, error)

// invoker runs collaborator calls under a bounded wait, a per-collaborator
// circuit breaker, and a single-retry policy for invalid responses. Every
// failure mode collapses into a degraded verdict; invoke never returns an
// error to the supervisor.
type invoker struct {
	timeout  time.Duration
	breakers map[agent.Kind]*gobreaker.CircuitBreaker
}

func newInvoker(timeout time.Duration) *invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	breakers := make(map[agent.Kind]*gobreaker.CircuitBreaker, len(agent.ScoringKinds))
	for _, kind := range agent.ScoringKinds {
		breakers[kind] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(kind),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errCallerCancelled)
			},
		})
	}
	return &invoker{timeout: timeout, breakers: breakers}
}

// invoke runs fn for kind and always produces a verdict: the collaborator's
// own on success, a degraded one on timeout, unavailability, or a twice-
// invalid response.
func (i *invoker) invoke(ctx context.Context, kind agent.Kind, fn invokeFn) agent.Verdict {
	verdict, err := i.attempt(ctx, kind, fn)
	if errors.Is(err, agent.ErrInvalidResponse) {
		// One short-backoff retry, then degrade.
		slog.Warn("collaborator returned invalid verdict, retrying once", "kind", kind, "error", err)
		select {
		case <-time.After(nextRetryDelay()):
		case <-ctx.Done():
			return agent.Degraded(kind, agent.ErrKind(agent.ErrTimeout))
		}
		verdict, err = i.attempt(ctx, kind, fn)
	}
	if err != nil {
		slog.Warn("collaborator failed, substituting degraded verdict",
			"kind", kind,
			"err_kind", agent.ErrKind(err),
			"error", err,
		)
		return agent.Degraded(kind, agent.ErrKind(err))
	}
	return verdict
}

// nextRetryDelay yields the single retry delay. Routed through backoff so
// jitter behavior matches the rest of the stack.
func nextRetryDelay() time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBackoff
	return b.NextBackOff()
}

// attempt makes one bounded invocation through the kind's circuit breaker.
func (i *invoker) attempt(ctx context.Context, kind agent.Kind, fn invokeFn) (agent.Verdict, error) {
	breaker, ok := i.breakers[kind]
	if !ok {
		return i.bounded(ctx, kind, fn)
	}

	result, err := breaker.Execute(func() (any, error) {
		return i.bounded(ctx, kind, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return agent.Verdict{}, fmt.Errorf("%w: circuit open for %s", agent.ErrUnavailable, kind)
		}
		return agent.Verdict{}, err
	}
	return result.(agent.Verdict), nil
}

// bounded runs fn in its own goroutine and enforces the invocation timeout
// even against a collaborator that ignores context cancellation.
func (i *invoker) bounded(parent context.Context, kind agent.Kind, fn invokeFn) (agent.Verdict, error) {
	ctx, cancel := context.WithTimeout(parent, i.timeout)
	defer cancel()

	type result struct {
		verdict agent.Verdict
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		if parent.Err() != nil {
			return agent.Verdict{}, fmt.Errorf("%w: %w", agent.ErrUnavailable, errCallerCancelled)
		}
		return agent.Verdict{}, fmt.Errorf("%w: %s exceeded %v", agent.ErrTimeout, kind, i.timeout)
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.Canceled) && parent.Err() != nil {
				return agent.Verdict{}, fmt.Errorf("%w: %w", agent.ErrUnavailable, errCallerCancelled)
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				return agent.Verdict{}, fmt.Errorf("%w: %s exceeded %v", agent.ErrTimeout, kind, i.timeout)
			}
			if errors.Is(r.err, agent.ErrInvalidResponse) {
				return agent.Verdict{}, r.err
			}
			return agent.Verdict{}, fmt.Errorf("%w: %v", agent.ErrUnavailable, r.err)
		}
		if err := agent.ValidateVerdict(r.verdict); err != nil {
			return agent.Verdict{}, err
		}
		return r.verdict, nil
	}
}
