// Package quote represents market quotes for stocks and options, and the
// Black-Scholes evaluator used to derive Greeks for option quotes.
package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/asset"
)

// Greeks holds the option sensitivities. A nil pointer on Quote means
// "not computed" — never zeroed or guessed.
type Greeks struct {
	Delta decimal.Decimal
	Gamma decimal.Decimal
	Theta decimal.Decimal
	Vega  decimal.Decimal
	Rho   decimal.Decimal
	IV    decimal.Decimal
}

// Quote is an asset's market snapshot at a point in time.
type Quote struct {
	Asset    asset.Asset
	QuoteAt  time.Time
	Bid      *decimal.Decimal
	Ask      *decimal.Decimal
	Last     *decimal.Decimal
	BidSize  int64
	AskSize  int64
	Volume   int64

	// UnderlyingPrice is the underlying's concurrent last price; only
	// meaningful (and only ever set) for option quotes.
	UnderlyingPrice *decimal.Decimal

	// Greeks is populated only when the quote is priceable and
	// UnderlyingPrice is known; nil otherwise.
	Greeks *Greeks

	// IV, when known from the quote source directly (as opposed to
	// solved-for), seeds the Black-Scholes evaluator's vega/rho/theta
	// calculations. Never inverted by this package.
	IV *decimal.Decimal
}

// HasValidBidAsk reports whether both sides are present, positive, and
// bid <= ask.
func (q Quote) HasValidBidAsk() bool {
	if q.Bid == nil || q.Ask == nil {
		return false
	}
	if q.Bid.Sign() <= 0 || q.Ask.Sign() <= 0 {
		return false
	}
	return q.Bid.LessThanOrEqual(*q.Ask)
}

// Mid returns (bid+ask)/2 when both sides are valid.
func (q Quote) Mid() (decimal.Decimal, bool) {
	if !q.HasValidBidAsk() {
		return decimal.Zero, false
	}
	return q.Bid.Add(*q.Ask).Div(decimal.NewFromInt(2)), true
}

// Price is the quote's authoritative price: last trade if known, else
// mid of a valid bid/ask, else undefined.
func (q Quote) Price() (decimal.Decimal, bool) {
	if q.Last != nil && q.Last.Sign() > 0 {
		return *q.Last, true
	}
	return q.Mid()
}

// IsPriceable reports whether a usable mid or last price exists.
func (q Quote) IsPriceable() bool {
	_, ok := q.Price()
	return ok
}

// HalfSpread returns (ask-bid)/2 when both sides are valid.
func (q Quote) HalfSpread() (decimal.Decimal, bool) {
	if !q.HasValidBidAsk() {
		return decimal.Zero, false
	}
	return q.Ask.Sub(*q.Bid).Div(decimal.NewFromInt(2)), true
}

// WithGreeks returns a copy of q with Greeks computed via Black-Scholes,
// provided the quote is priceable and the underlying price is known. If
// either precondition fails, or if the evaluator does not converge to a
// finite result, Greeks is left nil rather than populated with zeros.
func (q Quote) WithGreeks(asOf time.Time) Quote {
	if !q.Asset.IsOption() || !q.IsPriceable() || q.UnderlyingPrice == nil {
		return q
	}
	price, _ := q.Price()
	dte := q.Asset.DaysToExpiration(asOf)
	if dte < 0 {
		return q
	}
	var ivSeed *decimal.Decimal
	if q.IV != nil {
		ivSeed = q.IV
	}
	greeks, ok := Evaluate(q.Asset.OptionType(), q.Asset.Strike(), *q.UnderlyingPrice, dte, price, ivSeed)
	if !ok {
		return q
	}
	q.Greeks = greeks
	return q
}
