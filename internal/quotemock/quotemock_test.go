package quotemock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteFixture_RoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.QuoteFixture("AAPL", 149.5, 150.5, 150.0))

	q, err := s.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	mid, ok := q.Mid()
	require.True(t, ok)
	assert.Equal(t, "150", mid.String())
}

func TestGetQuote_Missing(t *testing.T) {
	s := New()
	_, err := s.GetQuote(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestGetQuotes_Batch(t *testing.T) {
	s := New()
	require.NoError(t, s.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	require.NoError(t, s.QuoteFixture("MSFT", 299.5, 300.5, 300.0))

	out, err := s.GetQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGetOptionsChain_FiltersByUnderlyingAndExpiration(t *testing.T) {
	s := New()
	exp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.QuoteFixture("AAPL260918C00150000", 4.5, 4.8, 4.6))
	require.NoError(t, s.QuoteFixture("AAPL260918P00150000", 3.5, 3.8, 3.6))
	require.NoError(t, s.QuoteFixture("MSFT260918C00300000", 6.5, 6.8, 6.6))

	chain, err := s.GetOptionsChain(context.Background(), "AAPL", &exp)
	require.NoError(t, err)
	assert.Len(t, chain.Options, 2)
}

func TestGetExpirationDates_SortedAndDeduped(t *testing.T) {
	s := New()
	require.NoError(t, s.QuoteFixture("AAPL260918C00150000", 4.5, 4.8, 4.6))
	require.NoError(t, s.QuoteFixture("AAPL260918P00150000", 3.5, 3.8, 3.6))
	require.NoError(t, s.QuoteFixture("AAPL261016C00150000", 5.5, 5.8, 5.6))

	dates, err := s.GetExpirationDates(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.True(t, dates[0].Before(dates[1]))
}

func TestIsPriceableOn_InvalidSymbol(t *testing.T) {
	s := New()
	_, err := s.IsPriceableOn(context.Background(), "not a symbol", time.Now())
	assert.Error(t, err)
}
