package quotesource

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

type countingSource struct {
	fakeSource
	calls int64
}

func (c *countingSource) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.fakeSource.GetQuote(ctx, symbol)
}

func TestBatchFetcher_FetchesAllSymbols(t *testing.T) {
	source := &countingSource{}
	f := NewBatchFetcher(source)

	out := f.FetchMany(context.Background(), []string{"AAPL", "MSFT", "GOOG"})
	assert.Len(t, out, 3)
}

func TestBatchFetcher_DedupesDuplicateSymbols(t *testing.T) {
	source := &countingSource{}
	f := NewBatchFetcher(source)

	out := f.FetchMany(context.Background(), []string{"AAPL", "AAPL", "AAPL"})
	assert.Len(t, out, 1)
	assert.Equal(t, int64(1), atomic.LoadInt64(&source.calls))
}

func TestBatchFetcher_EmptyInput(t *testing.T) {
	f := NewBatchFetcher(&countingSource{})
	out := f.FetchMany(context.Background(), nil)
	assert.Empty(t, out)
}

func TestBatchFetcher_ToleratesPerSymbolFailure(t *testing.T) {
	source := &countingSource{fakeSource: fakeSource{failTimes: 100}}
	f := NewBatchFetcher(source)

	out := f.FetchMany(context.Background(), []string{"AAPL"})
	assert.Empty(t, out)
}
