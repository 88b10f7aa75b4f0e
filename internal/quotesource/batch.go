package quotesource

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// BatchFetcher fetches many symbols concurrently against a Source,
// collapsing duplicate in-flight requests for the same symbol (a
// position set routinely repeats an underlying across several option
// legs) through a singleflight group.
type BatchFetcher struct {
	source Source
	group  singleflight.Group
}

// NewBatchFetcher wraps source.
func NewBatchFetcher(source Source) *BatchFetcher {
	return &BatchFetcher{source: source}
}

// FetchMany fetches a quote per symbol concurrently. A failure on one
// symbol does not cancel the others; it is simply omitted from the
// returned map, mirroring the tolerant "mark what you can" discipline
// the façade's margin/summary reads rely on.
func (f *BatchFetcher) FetchMany(ctx context.Context, symbols []string) map[string]quote.Quote {
	results := make(map[string]quote.Quote, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	type fetched struct {
		symbol string
		quote  quote.Quote
	}
	out := make(chan fetched, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbol := symbol
		g.Go(func() error {
			v, err, _ := f.group.Do(symbol, func() (interface{}, error) {
				return f.source.GetQuote(gctx, symbol)
			})
			if err != nil {
				return nil //nolint:nilerr // per-symbol failures are tolerated, not fatal to the batch
			}
			out <- fetched{symbol: symbol, quote: v.(quote.Quote)}
			return nil
		})
	}

	_ = g.Wait()
	close(out)
	for item := range out {
		results[item.symbol] = item.quote
	}
	return results
}
