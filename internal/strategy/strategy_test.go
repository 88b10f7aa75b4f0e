package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/asset"
)

func mustOption(t *testing.T, underlying string, expiration time.Time, optType asset.OptionType, strike float64) asset.Asset {
	t.Helper()
	symbol := asset.FormatOptionSymbol(underlying, expiration, optType, decimal.NewFromFloat(strike))
	a, err := asset.For(symbol)
	require.NoError(t, err)
	return a
}

func mustStock(t *testing.T, symbol string) asset.Asset {
	t.Helper()
	a, err := asset.NewStock(symbol)
	require.NoError(t, err)
	return a
}

func pos(a asset.Asset, qty int64) *account.Position {
	return &account.Position{Asset: a, Quantity: qty, AvgPrice: decimal.NewFromInt(1), CreatedAt: time.Now()}
}

func exp(daysOut int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, daysOut)
}

func kindsOf(strategies []Strategy) []Kind {
	out := make([]Kind, len(strategies))
	for i, s := range strategies {
		out[i] = s.Kind
	}
	return out
}

func TestRecognise_CoveredCall(t *testing.T) {
	stock := pos(mustStock(t, "AAPL"), 100)
	call := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)
	out := Recognise([]*account.Position{stock, call})
	require.Len(t, out, 1)
	assert.Equal(t, CoveredCall, out[0].Kind)
	assert.True(t, out[0].ShortStrike.Equal(decimal.NewFromInt(160)))
}

func TestRecognise_CoveredPut(t *testing.T) {
	stock := pos(mustStock(t, "AAPL"), -100)
	put := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), -1)
	out := Recognise([]*account.Position{stock, put})
	require.Len(t, out, 1)
	assert.Equal(t, CoveredPut, out[0].Kind)
}

func TestRecognise_ProtectivePut(t *testing.T) {
	stock := pos(mustStock(t, "AAPL"), 100)
	put := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), 1)
	out := Recognise([]*account.Position{stock, put})
	require.Len(t, out, 1)
	assert.Equal(t, ProtectivePut, out[0].Kind)
	assert.True(t, out[0].LongStrike.Equal(decimal.NewFromInt(140)))
}

func TestRecognise_ProtectiveCall(t *testing.T) {
	stock := pos(mustStock(t, "AAPL"), -100)
	call := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), 1)
	out := Recognise([]*account.Position{stock, call})
	require.Len(t, out, 1)
	assert.Equal(t, ProtectiveCall, out[0].Kind)
}

func TestRecognise_VerticalCallSpread(t *testing.T) {
	long := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), 1)
	short := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)
	out := Recognise([]*account.Position{long, short})
	require.Len(t, out, 1)
	assert.Equal(t, VerticalCallSpread, out[0].Kind)
	assert.True(t, out[0].Bullish)
	assert.True(t, out[0].Width.Equal(decimal.NewFromInt(10)))
}

func TestRecognise_VerticalPutSpread(t *testing.T) {
	short := pos(mustOption(t, "AAPL", exp(30), asset.Put, 150), -1)
	long := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), 1)
	out := Recognise([]*account.Position{short, long})
	require.Len(t, out, 1)
	assert.Equal(t, VerticalPutSpread, out[0].Kind)
	assert.True(t, out[0].Bullish)
}

func TestRecognise_CalendarSpread(t *testing.T) {
	short := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	long := pos(mustOption(t, "AAPL", exp(60), asset.Call, 150), 1)
	out := Recognise([]*account.Position{short, long})
	require.Len(t, out, 1)
	assert.Equal(t, CalendarSpread, out[0].Kind)
}

func TestRecognise_DiagonalSpread(t *testing.T) {
	short := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	long := pos(mustOption(t, "AAPL", exp(60), asset.Call, 160), 1)
	out := Recognise([]*account.Position{short, long})
	require.Len(t, out, 1)
	assert.Equal(t, DiagonalSpread, out[0].Kind)
}

func TestRecognise_Straddle(t *testing.T) {
	call := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	put := pos(mustOption(t, "AAPL", exp(30), asset.Put, 150), -1)
	out := Recognise([]*account.Position{call, put})
	require.Len(t, out, 1)
	assert.Equal(t, Straddle, out[0].Kind)
}

func TestRecognise_Strangle(t *testing.T) {
	call := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)
	put := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), -1)
	out := Recognise([]*account.Position{call, put})
	require.Len(t, out, 1)
	assert.Equal(t, Strangle, out[0].Kind)
}

func TestRecognise_Butterfly(t *testing.T) {
	low := pos(mustOption(t, "AAPL", exp(30), asset.Call, 140), 1)
	mid := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -2)
	high := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), 1)
	out := Recognise([]*account.Position{low, mid, high})
	require.Len(t, out, 1)
	assert.Equal(t, Butterfly, out[0].Kind)
	assert.True(t, out[0].Width.Equal(decimal.NewFromInt(10)))
}

// Iron condor legs are, pairwise, also a valid put vertical spread and a
// valid call vertical spread, and vertical spreads sit earlier in
// detection order. Greedy first-match-wins therefore always resolves a
// four-leg iron condor shape into two vertical spreads before
// matchIronStructures ever sees it, so the iron match itself is
// exercised directly against a pool rather than through Recognise.
func TestMatchIronStructures_IronCondor(t *testing.T) {
	longPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 130), 1)
	shortPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), -1)
	shortCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)
	longCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 170), 1)
	p := newPool([]*account.Position{longPut, shortPut, shortCall, longCall})
	out := matchIronStructures("AAPL", p)
	require.Len(t, out, 1)
	assert.Equal(t, IronCondor, out[0].Kind)
	assert.Len(t, out[0].Positions, 4)
	assert.Empty(t, p.options())
}

func TestMatchIronStructures_IronButterfly(t *testing.T) {
	longPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 130), 1)
	shortPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 150), -1)
	shortCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	longCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 170), 1)
	p := newPool([]*account.Position{longPut, shortPut, shortCall, longCall})
	out := matchIronStructures("AAPL", p)
	require.Len(t, out, 1)
	assert.Equal(t, IronButterfly, out[0].Kind)
}

// Through the full pipeline, the same iron condor shape is consumed by
// the earlier vertical-spread step instead: a put vertical and a call
// vertical, not an iron structure.
func TestRecognise_IronCondorShapeDecomposesIntoVerticalSpreads(t *testing.T) {
	longPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 130), 1)
	shortPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), -1)
	shortCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)
	longCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 170), 1)
	out := Recognise([]*account.Position{longPut, shortPut, shortCall, longCall})
	require.Len(t, out, 2)
	assert.ElementsMatch(t, []Kind{VerticalPutSpread, VerticalCallSpread}, kindsOf(out))
}

func TestRecognise_BareStockPositions(t *testing.T) {
	long := pos(mustStock(t, "AAPL"), 50)
	out := Recognise([]*account.Position{long})
	require.Len(t, out, 1)
	assert.Equal(t, LongStock, out[0].Kind)

	short := pos(mustStock(t, "MSFT"), -50)
	out = Recognise([]*account.Position{short})
	require.Len(t, out, 1)
	assert.Equal(t, ShortStock, out[0].Kind)
}

func TestRecognise_BareOptionPositions(t *testing.T) {
	longCall := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), 1)
	shortCall := pos(mustOption(t, "AAPL", exp(45), asset.Call, 160), -1)
	longPut := pos(mustOption(t, "AAPL", exp(30), asset.Put, 140), 1)
	shortPut := pos(mustOption(t, "AAPL", exp(45), asset.Put, 130), -1)

	out := Recognise([]*account.Position{longCall})
	require.Len(t, out, 1)
	assert.Equal(t, LongCall, out[0].Kind)

	out = Recognise([]*account.Position{shortCall})
	require.Len(t, out, 1)
	assert.Equal(t, ShortCall, out[0].Kind)

	out = Recognise([]*account.Position{longPut})
	require.Len(t, out, 1)
	assert.Equal(t, LongPut, out[0].Kind)

	out = Recognise([]*account.Position{shortPut})
	require.Len(t, out, 1)
	assert.Equal(t, ShortPut, out[0].Kind)
}

// Legs that share no detection step's required shape (here: two short
// calls at the same strike and expiration, which can pair into neither a
// vertical spread nor a butterfly without a third leg) fall through every
// step and each becomes its own single-leg strategy — the spec's "one
// strategy per leftover position" rule, realised here via each leg's own
// specific bare kind rather than a generic catch-all tag.
func TestRecognise_UnmatchedLegsEachBecomeSingleLegStrategies(t *testing.T) {
	a := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	b := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	out := Recognise([]*account.Position{a, b})
	require.Len(t, out, 2)
	for _, s := range out {
		assert.Equal(t, ShortCall, s.Kind)
		assert.Len(t, s.Positions, 1)
	}
}

// matchCoveredPositions runs before matchVerticalSpreads in detection
// order: with a covered-call shape AND a second short call present, the
// covered pairing must consume the stock before any vertical spread
// logic gets a chance to run on the options.
func TestRecognise_DetectionOrder_CoveredBeforeVertical(t *testing.T) {
	stock := pos(mustStock(t, "AAPL"), 100)
	coveredLeg := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)
	spreadLong := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), 1)
	out := Recognise([]*account.Position{stock, coveredLeg, spreadLong})
	kinds := kindsOf(out)
	assert.Contains(t, kinds, CoveredCall)
	assert.NotContains(t, kinds, VerticalCallSpread)
}

// Tie-break rule: lowest strike first, then earliest expiration, then
// alphabetic symbol. Three otherwise-unpaired short calls at different
// strikes must come out of Recognise pre-sorted by strike within their
// underlying's group, regardless of input order.
func TestRecognise_TieBreak_LowestStrikeFirst(t *testing.T) {
	high := pos(mustOption(t, "AAPL", exp(30), asset.Call, 170), -1)
	low := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)
	mid := pos(mustOption(t, "AAPL", exp(30), asset.Call, 160), -1)

	out := Recognise([]*account.Position{high, mid, low})
	require.Len(t, out, 3)
	assert.True(t, out[0].Positions[0].Asset.Strike().Equal(decimal.NewFromInt(150)))
	assert.True(t, out[1].Positions[0].Asset.Strike().Equal(decimal.NewFromInt(160)))
	assert.True(t, out[2].Positions[0].Asset.Strike().Equal(decimal.NewFromInt(170)))
}

func TestRecognise_TieBreak_EarliestExpirationThenSameStrike(t *testing.T) {
	later := pos(mustOption(t, "AAPL", exp(60), asset.Call, 150), -1)
	earlier := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)

	out := Recognise([]*account.Position{later, earlier})
	require.Len(t, out, 2)
	assert.True(t, out[0].Positions[0].Asset.Expiration().Before(out[1].Positions[0].Asset.Expiration()))
}

func TestRecognise_TieBreak_AlphabeticSymbolLast(t *testing.T) {
	// Same underlying, same strike, same expiration: a call and a put tied
	// at the first two tie-break keys. Mismatched magnitude (1 vs 2) keeps
	// them from pairing into a straddle, so the final symbol comparison
	// (the option-type character: 'C' sorts before 'P') decides the order.
	put := pos(mustOption(t, "AAPL", exp(30), asset.Put, 150), -2)
	call := pos(mustOption(t, "AAPL", exp(30), asset.Call, 150), -1)

	out := Recognise([]*account.Position{put, call})
	require.Len(t, out, 2)
	assert.Equal(t, ShortCall, out[0].Kind)
	assert.Equal(t, ShortPut, out[1].Kind)
}

func TestRecognise_MultipleUnderlyingsAreIndependentGroups(t *testing.T) {
	aapl := pos(mustStock(t, "AAPL"), 100)
	msft := pos(mustStock(t, "MSFT"), -50)
	out := Recognise([]*account.Position{msft, aapl})
	require.Len(t, out, 2)
	assert.Equal(t, "AAPL", out[0].Underlying)
	assert.Equal(t, LongStock, out[0].Kind)
	assert.Equal(t, "MSFT", out[1].Underlying)
	assert.Equal(t, ShortStock, out[1].Kind)
}
