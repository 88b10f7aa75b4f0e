// Package quotemock provides a deterministic in-memory quote source for
// tests and local runs, adapted from the teacher's mock broker data
// fixtures but generalised to the generic quotesource.Source interface.
package quotemock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/quote"
	"github.com/scranton-trading/paperbroker/internal/quotesource"
)

// Source is a fixed quote table keyed by symbol, safe for concurrent
// reads and writes (tests frequently mutate quotes between steps of a
// scenario to simulate price movement).
type Source struct {
	mu     sync.RWMutex
	quotes map[string]quote.Quote

	// expirations maps an underlying to the option expiration dates it
	// offers, used by GetExpirationDates and GetOptionsChain.
	expirations map[string][]time.Time
}

var _ quotesource.Source = (*Source)(nil)

func New() *Source {
	return &Source{
		quotes:      make(map[string]quote.Quote),
		expirations: make(map[string][]time.Time),
	}
}

// Set installs or replaces the quote for an asset's symbol. If the
// asset is an option, its expiration is also registered so
// GetExpirationDates/GetOptionsChain can find it.
func (s *Source) Set(q quote.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbol := q.Asset.Symbol()
	s.quotes[symbol] = q
	if q.Asset.IsOption() {
		underlying := q.Asset.Underlying()
		for _, existing := range s.expirations[underlying] {
			if existing.Equal(q.Asset.Expiration()) {
				return
			}
		}
		s.expirations[underlying] = append(s.expirations[underlying], q.Asset.Expiration())
	}
}

func (s *Source) GetQuote(_ context.Context, symbol string) (quote.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return quote.Quote{}, fmt.Errorf("quotemock: no quote set for %s", symbol)
	}
	return q, nil
}

func (s *Source) GetQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	out := make(map[string]quote.Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := s.GetQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out[symbol] = q
	}
	return out, nil
}

func (s *Source) GetOptionsChain(_ context.Context, underlying string, expiration *time.Time) (quotesource.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := quotesource.Chain{Underlying: underlying}
	if expiration != nil {
		chain.Expiration = *expiration
	}
	for symbol, q := range s.quotes {
		if !q.Asset.IsOption() || q.Asset.Underlying() != underlying {
			continue
		}
		if expiration != nil && !q.Asset.Expiration().Equal(*expiration) {
			continue
		}
		_ = symbol
		chain.Options = append(chain.Options, q)
	}
	sort.Slice(chain.Options, func(i, j int) bool {
		return chain.Options[i].Asset.Symbol() < chain.Options[j].Asset.Symbol()
	})
	return chain, nil
}

func (s *Source) GetExpirationDates(_ context.Context, underlying string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := append([]time.Time(nil), s.expirations[underlying]...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *Source) IsPriceableOn(ctx context.Context, symbol string, date time.Time) (bool, error) {
	a, err := asset.For(symbol)
	if err != nil {
		return false, err
	}
	return a.IsPriceableOn(date), nil
}

// decimalPtr is a small helper for fixture construction in tests.
func decimalPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

// QuoteFixture is a convenience builder used by tests across packages
// to install a simple bid/ask/last stock or option quote.
func (s *Source) QuoteFixture(symbol string, bid, ask, last float64) error {
	a, err := asset.For(symbol)
	if err != nil {
		return err
	}
	s.Set(quote.Quote{Asset: a, Bid: decimalPtr(bid), Ask: decimalPtr(ask), Last: decimalPtr(last)})
	return nil
}
