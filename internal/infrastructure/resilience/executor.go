package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Verdict tells the executor what a failed call means.
type Verdict struct {
	// Retry reports that repeating the call may succeed.
	Retry bool
	// Trip reports that the failure counts against the breaker.
	Trip bool
}

var (
	Transient = Verdict{Retry: true, Trip: true}
	Permanent = Verdict{Trip: true}
	Ignore    = Verdict{}
)

type Classifier func(err error) Verdict

// Executor runs outbound calls with bounded retries behind one circuit
// breaker per operation name.
type Executor struct {
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		policy:   policy.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Do calls fn until it succeeds, classify rejects the failure, the attempts
// run out or ctx cannot fit the next pause.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: nil call")
	}
	if classify == nil {
		classify = func(error) Verdict { return Permanent }
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "outbound"
	}

	if e.policy.Breaker.Disabled {
		return e.retry(ctx, op, fn, classify)
	}
	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classify)
	})
	return err
}

// BreakerState reports the breaker state of an operation; operations that
// never ran are closed.
func (e *Executor) BreakerState(operation string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operation]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= e.policy.Attempts || !classify(err).Retry {
			return err
		}

		wait := e.policy.delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return err
		}
		e.logger.Warn("outbound_retry",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.policy.Attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}

func (e *Executor) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: bp.Probes,
		Timeout:     bp.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= bp.MinCalls && float64(c.TotalFailures) >= bp.TripRatio*float64(c.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("outbound_breaker_state", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = cb
	return cb
}

// IsCircuitOpen reports whether err came from a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
