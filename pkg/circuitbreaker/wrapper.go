package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"rulegov/pkg/metrics"
)

type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	ReadyToTrip func(counts gobreaker.Counts) bool
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.5
		},
	}
}

// Wrapper guards an unreliable dependency with a circuit breaker and keeps
// the breaker's state visible in metrics.
type Wrapper struct {
	cb *gobreaker.CircuitBreaker
}

func NewWrapper(cfg Config) *Wrapper {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			recordState(name, to)
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	recordState(cfg.Name, cb.State())
	return &Wrapper{cb: cb}
}

func (w *Wrapper) Execute(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := w.cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, fn()
		}
	})

	metrics.CircuitBreakerRequests.WithLabelValues(w.cb.Name(), w.cb.State().String()).Inc()
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(w.cb.Name()).Inc()
	}
	return err
}

func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *Wrapper) IsOpen() bool {
	return w.cb.State() == gobreaker.StateOpen
}

func recordState(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(value)
}
