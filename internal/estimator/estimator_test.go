package estimator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/quote"
)

func d(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

func symmetricQuote(t *testing.T) quote.Quote {
	t.Helper()
	stk, err := asset.For("AAPL")
	require.NoError(t, err)
	return quote.Quote{Asset: stk, Bid: d(149.50), Ask: d(150.50)}
}

func TestMidpoint_SymmetricBidAsk(t *testing.T) {
	q := symmetricQuote(t)
	buy, err := Midpoint{}.Estimate(q, 100)
	require.NoError(t, err)
	sell, err := Midpoint{}.Estimate(q, -100)
	require.NoError(t, err)
	assert.True(t, buy.Equal(sell))
	assert.True(t, buy.Equal(decimal.NewFromFloat(150.0)))
}

func TestMidpoint_FallsBackToLast(t *testing.T) {
	stk, _ := asset.For("AAPL")
	q := quote.Quote{Asset: stk, Last: d(151.0)}
	price, err := Midpoint{}.Estimate(q, 1)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(151.0)))
}

func TestMidpoint_ErrorsWithNoQuote(t *testing.T) {
	stk, _ := asset.For("AAPL")
	_, err := Midpoint{}.Estimate(quote.Quote{Asset: stk}, 1)
	assert.Error(t, err)
}

func TestMarket_BuySellSides(t *testing.T) {
	q := symmetricQuote(t)
	buy, err := Market{}.Estimate(q, 1)
	require.NoError(t, err)
	assert.True(t, buy.Equal(decimal.NewFromFloat(150.50)))

	sell, err := Market{}.Estimate(q, -1)
	require.NoError(t, err)
	assert.True(t, sell.Equal(decimal.NewFromFloat(149.50)))
}

func TestSlippage_SymmetricAroundMid(t *testing.T) {
	q := symmetricQuote(t)
	pos, err := NewSlippage(decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	neg, err := NewSlippage(decimal.NewFromFloat(-0.5))
	require.NoError(t, err)

	buyPos, _ := pos.Estimate(q, 1)
	buyNeg, _ := neg.Estimate(q, 1)

	mid := decimal.NewFromFloat(150.0)
	assert.True(t, mid.Sub(buyPos).Equal(buyNeg.Sub(mid)))
}

func TestSlippage_RejectsOutOfRange(t *testing.T) {
	_, err := NewSlippage(decimal.NewFromFloat(1.5))
	assert.Error(t, err)
}

func TestFixed_AlwaysReturnsConfiguredPrice(t *testing.T) {
	f := Fixed{Price: decimal.Zero}
	q := symmetricQuote(t)
	price, err := f.Estimate(q, 1)
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestVolumeWeighted_FallsBackWithoutSize(t *testing.T) {
	q := symmetricQuote(t)
	vw, err := NewVolumeWeighted(decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	price, err := vw.Estimate(q, 1)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(150.50)))
}

func TestVolumeWeighted_WorsensWithSize(t *testing.T) {
	q := symmetricQuote(t)
	q.AskSize = 100
	vw, err := NewVolumeWeighted(decimal.NewFromFloat(1.0))
	require.NoError(t, err)
	price, err := vw.Estimate(q, 50)
	require.NoError(t, err)
	assert.True(t, price.GreaterThan(decimal.NewFromFloat(150.50)))
}

func TestOptions_TickRounding(t *testing.T) {
	stk, _ := asset.For("AAPL250221C00150000")
	qLow := quote.Quote{Asset: stk, Bid: d(1.00), Ask: d(1.10)}
	o, err := NewOptions(decimal.Zero)
	require.NoError(t, err)
	price, err := o.Estimate(qLow, 1)
	require.NoError(t, err)
	assert.True(t, price.Mod(decimal.NewFromFloat(0.05)).IsZero())

	qHigh := quote.Quote{Asset: stk, Bid: d(5.00), Ask: d(5.20)}
	price, err = o.Estimate(qHigh, 1)
	require.NoError(t, err)
	assert.True(t, price.Mod(decimal.NewFromFloat(0.10)).IsZero())
}

func TestRandomWalk_DeterministicUnderSeed(t *testing.T) {
	q := symmetricQuote(t)
	rw1, err := NewRandomWalk(decimal.NewFromFloat(0.3), 42)
	require.NoError(t, err)
	rw2, err := NewRandomWalk(decimal.NewFromFloat(0.3), 42)
	require.NoError(t, err)

	p1, err := rw1.Estimate(q, 1)
	require.NoError(t, err)
	p2, err := rw2.Estimate(q, 1)
	require.NoError(t, err)
	assert.True(t, p1.Equal(p2))
}

func TestRandomWalk_ClampedToBand(t *testing.T) {
	q := symmetricQuote(t)
	rw, err := NewRandomWalk(decimal.NewFromFloat(50), 7)
	require.NoError(t, err)
	price, err := rw.Estimate(q, 1)
	require.NoError(t, err)
	assert.True(t, price.GreaterThanOrEqual(decimal.NewFromFloat(120.0)))
	assert.True(t, price.LessThanOrEqual(decimal.NewFromFloat(180.0)))
}

func TestMulti_RenormalisesOnPartialFailure(t *testing.T) {
	stk, _ := asset.For("AAPL")
	q := quote.Quote{Asset: stk, Last: d(151.0)} // no bid/ask, so Market-like fails for bid-dependent estimators
	m, err := NewMulti([]WeightedEstimator{
		{Name: "midpoint", Estimator: Midpoint{}, Weight: decimal.NewFromFloat(0.5)},
		{Name: "fixed", Estimator: Fixed{Price: decimal.NewFromFloat(200)}, Weight: decimal.NewFromFloat(0.5)},
	})
	require.NoError(t, err)
	price, err := m.Estimate(q, 1)
	require.NoError(t, err)
	// midpoint falls back to last (151), fixed always returns 200; average.
	assert.True(t, price.Equal(decimal.NewFromFloat(175.5)))
}

func TestMulti_RejectsBadWeights(t *testing.T) {
	_, err := NewMulti([]WeightedEstimator{
		{Name: "midpoint", Estimator: Midpoint{}, Weight: decimal.NewFromFloat(0.4)},
	})
	assert.Error(t, err)
}
