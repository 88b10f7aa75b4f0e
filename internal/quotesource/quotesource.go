// Package quotesource defines the external quote-source collaborator's
// interface (the engine never talks to a market-data vendor directly)
// and resilience decorators around it: a circuit breaker and a batched,
// deduplicated fetch helper.
package quotesource

import (
	"context"
	"time"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Chain is an option chain for one underlying and (optionally) one
// expiration date.
type Chain struct {
	Underlying string
	Expiration time.Time
	Options    []quote.Quote
}

// Source is the quote-source collaborator's consumed interface, named
// directly from the engine's external-interfaces contract: every
// operation may fail (network, vendor outage, symbol unknown) and every
// failure propagates as a typed error the caller maps to
// apperr.ErrQuoteUnavailable.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (quote.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error)
	GetOptionsChain(ctx context.Context, underlying string, expiration *time.Time) (Chain, error)
	GetExpirationDates(ctx context.Context, underlying string) ([]time.Time, error)
	IsPriceableOn(ctx context.Context, symbol string, date time.Time) (bool, error)
}
