package quotesource

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/quote"
)

// CircuitBreakerSettings configures the breaker wrapping a Source.
// MinRequests and FailureRatio together decide ReadyToTrip: the breaker
// trips once a rolling window has seen at least MinRequests calls and
// failures make up at least FailureRatio of them.
type CircuitBreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings trips after 5 consecutive-ish failures
// out of a rolling window of at least 10 requests, and allows the
// source to be retried after a 30s cooldown.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  1,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  10,
	FailureRatio: 0.5,
}

// CircuitBreaker wraps a Source so that a struggling quote vendor stops
// receiving new calls for a cooldown period once it is clearly failing,
// rather than piling up timeouts on every order.
type CircuitBreaker struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker wraps source with DefaultCircuitBreakerSettings.
func NewCircuitBreaker(source Source) *CircuitBreaker {
	return NewCircuitBreakerWithSettings(source, DefaultCircuitBreakerSettings)
}

// NewCircuitBreakerWithSettings wraps source with explicit settings.
func NewCircuitBreakerWithSettings(source Source, settings CircuitBreakerSettings) *CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "quotesource",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
	})
	return &CircuitBreaker{source: source, breaker: cb}
}

// State exposes the breaker's current state for health checks/dashboards.
func (c *CircuitBreaker) State() gobreaker.State {
	return c.breaker.State()
}

func execute[T any](c *CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, fmt.Errorf("%w: quote source circuit breaker open: %v", apperr.ErrQuoteUnavailable, err)
		}
		return zero, err
	}
	return result.(T), nil
}

func (c *CircuitBreaker) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	return execute(c, func() (quote.Quote, error) { return c.source.GetQuote(ctx, symbol) })
}

func (c *CircuitBreaker) GetQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	return execute(c, func() (map[string]quote.Quote, error) { return c.source.GetQuotes(ctx, symbols) })
}

func (c *CircuitBreaker) GetOptionsChain(ctx context.Context, underlying string, expiration *time.Time) (Chain, error) {
	return execute(c, func() (Chain, error) { return c.source.GetOptionsChain(ctx, underlying, expiration) })
}

func (c *CircuitBreaker) GetExpirationDates(ctx context.Context, underlying string) ([]time.Time, error) {
	return execute(c, func() ([]time.Time, error) { return c.source.GetExpirationDates(ctx, underlying) })
}

func (c *CircuitBreaker) IsPriceableOn(ctx context.Context, symbol string, date time.Time) (bool, error) {
	return execute(c, func() (bool, error) { return c.source.IsPriceableOn(ctx, symbol, date) })
}

var _ Source = (*CircuitBreaker)(nil)
