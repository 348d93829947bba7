package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/congo-pay/walletcore/internal/metrics"
)

// BreakerConfig tunes the circuit breaker in front of the gateway.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	OpenTimeout         time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after five consecutive failures and probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxRequests: 1, Interval: time.Minute, OpenTimeout: 30 * time.Second, ConsecutiveFailures: 5}
}

// Resilient wraps a Gateway with a per-call timeout and a circuit breaker. Every
// timeout, transport failure and open-breaker rejection surfaces as ErrUnavailable.
type Resilient struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResilient wraps next.
func NewResilient(next Gateway, timeout time.Duration, cfg BreakerConfig, logger *slog.Logger, m *metrics.Metrics) *Resilient {
	r := &Resilient{next: next, timeout: timeout, metrics: m, logger: logger}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Rejections are the caller's problem, not gateway health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected) || errors.Is(err, ErrUnknownIntent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return r
}

// CreateIntent opens an intent through the breaker.
func (r *Resilient) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	return r.call(ctx, "create_intent", func(ctx context.Context) (Intent, error) {
		return r.next.CreateIntent(ctx, req)
	})
}

// RetrieveIntent fetches an intent through the breaker.
func (r *Resilient) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	return r.call(ctx, "retrieve_intent", func(ctx context.Context) (Intent, error) {
		return r.next.RetrieveIntent(ctx, intentID)
	})
}

func (r *Resilient) call(ctx context.Context, op string, fn func(context.Context) (Intent, error)) (Intent, error) {
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.cb.Execute(func() (interface{}, error) {
		type outcome struct {
			intent Intent
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			intent, err := fn(ctx)
			done <- outcome{intent, err}
		}()

		select {
		case o := <-done:
			if o.err == nil {
				return o.intent, nil
			}
			if ctx.Err() != nil && !errors.Is(o.err, ErrUnavailable) {
				return nil, fmt.Errorf("%s: %v: %w", op, o.err, ErrUnavailable)
			}
			return nil, o.err
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %v: %w", op, ctx.Err(), ErrUnavailable)
		}
	})
	took := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.metrics.GatewayCall(op, "circuit_open", took)
			r.logger.Warn("gateway call rejected by open circuit", slog.String("operation", op))
			return Intent{}, fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		r.metrics.GatewayCall(op, resultLabel(err), took)
		return Intent{}, err
	}
	r.metrics.GatewayCall(op, "ok", took)
	return result.(Intent), nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnknownIntent):
		return "not_found"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}
