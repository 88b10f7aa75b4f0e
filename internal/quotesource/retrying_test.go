package quotesource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton-trading/paperbroker/internal/quote"
	"github.com/scranton-trading/paperbroker/internal/retryx"
)

type fakeSource struct {
	quoteCalls int
	failTimes  int
	quote      quote.Quote
}

func (f *fakeSource) GetQuote(_ context.Context, _ string) (quote.Quote, error) {
	f.quoteCalls++
	if f.quoteCalls <= f.failTimes {
		return quote.Quote{}, errors.New("connection reset")
	}
	return f.quote, nil
}

func (f *fakeSource) GetQuotes(_ context.Context, symbols []string) (map[string]quote.Quote, error) {
	out := make(map[string]quote.Quote, len(symbols))
	for _, s := range symbols {
		out[s] = f.quote
	}
	return out, nil
}

func (f *fakeSource) GetOptionsChain(_ context.Context, underlying string, _ *time.Time) (Chain, error) {
	return Chain{Underlying: underlying}, nil
}

func (f *fakeSource) GetExpirationDates(_ context.Context, _ string) ([]time.Time, error) {
	return nil, nil
}

func (f *fakeSource) IsPriceableOn(_ context.Context, _ string, _ time.Time) (bool, error) {
	return true, nil
}

func TestRetrying_RetriesTransientFailureThenSucceeds(t *testing.T) {
	fake := &fakeSource{failTimes: 2, quote: quote.Quote{}}
	r := NewRetrying(fake, retryx.NewClient(retryx.Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second}))

	_, err := r.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.quoteCalls)
}

func TestRetrying_GetQuotesDelegates(t *testing.T) {
	fake := &fakeSource{quote: quote.Quote{}}
	r := NewRetrying(fake, retryx.NewClient(retryx.Config{}))

	out, err := r.GetQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
