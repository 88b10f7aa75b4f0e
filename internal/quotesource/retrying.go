package quotesource

import (
	"context"
	"time"

	"github.com/scranton-trading/paperbroker/internal/quote"
	"github.com/scranton-trading/paperbroker/internal/retryx"
)

// Retrying wraps a Source so that transient vendor failures (timeouts,
// connection resets) are retried with backoff before surfacing to the
// caller, instead of every blip propagating straight into a failed
// order or a skipped expiration sweep.
type Retrying struct {
	source Source
	client *retryx.Client
}

// NewRetrying wraps source with client's retry policy.
func NewRetrying(source Source, client *retryx.Client) *Retrying {
	return &Retrying{source: source, client: client}
}

func (r *Retrying) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	var q quote.Quote
	err := r.client.Do(ctx, func(ctx context.Context) error {
		var err error
		q, err = r.source.GetQuote(ctx, symbol)
		return err
	})
	return q, err
}

func (r *Retrying) GetQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	var quotes map[string]quote.Quote
	err := r.client.Do(ctx, func(ctx context.Context) error {
		var err error
		quotes, err = r.source.GetQuotes(ctx, symbols)
		return err
	})
	return quotes, err
}

func (r *Retrying) GetOptionsChain(ctx context.Context, underlying string, expiration *time.Time) (Chain, error) {
	var chain Chain
	err := r.client.Do(ctx, func(ctx context.Context) error {
		var err error
		chain, err = r.source.GetOptionsChain(ctx, underlying, expiration)
		return err
	})
	return chain, err
}

func (r *Retrying) GetExpirationDates(ctx context.Context, underlying string) ([]time.Time, error) {
	var dates []time.Time
	err := r.client.Do(ctx, func(ctx context.Context) error {
		var err error
		dates, err = r.source.GetExpirationDates(ctx, underlying)
		return err
	})
	return dates, err
}

func (r *Retrying) IsPriceableOn(ctx context.Context, symbol string, date time.Time) (bool, error) {
	var ok bool
	err := r.client.Do(ctx, func(ctx context.Context) error {
		var err error
		ok, err = r.source.IsPriceableOn(ctx, symbol, date)
		return err
	})
	return ok, err
}
