package quote

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/scranton-trading/paperbroker/internal/asset"
)

var standardNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Evaluate runs the Black-Scholes model for one option, parameterised by
// (option_type, strike, underlying_price, days_to_expiration, option_price,
// dividend=0) per the spec's open question: dividend is always zero and
// the risk-free rate is treated as zero, matching the reference
// implementation's universal dividend=0 convention. ivSeed must be
// supplied by the caller (from the quote source) — this evaluator never
// inverts option_price to solve for implied volatility. Returns ok=false
// (no Greeks) when ivSeed is nil, non-positive, or the inputs do not
// produce a finite result.
func Evaluate(optType asset.OptionType, strike, underlying decimal.Decimal, daysToExpiration int, optionPrice decimal.Decimal, ivSeed *decimal.Decimal) (*Greeks, bool) {
	if ivSeed == nil {
		return nil, false
	}
	sigma, _ := ivSeed.Float64()
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, false
	}
	s, _ := underlying.Float64()
	k, _ := strike.Float64()
	if s <= 0 || k <= 0 {
		return nil, false
	}

	if daysToExpiration <= 0 {
		return expirationDayGreeks(optType, s, k)
	}

	t := float64(daysToExpiration) / 365.0
	sqrtT := math.Sqrt(t)

	d1 := (math.Log(s/k) + 0.5*sigma*sigma*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	nd1 := standardNormal.Prob(d1)
	Nd1 := standardNormal.CDF(d1)
	Nd2 := standardNormal.CDF(d2)

	var delta, rho float64
	if optType == asset.Call {
		delta = Nd1
		rho = k * t * Nd2
	} else {
		delta = Nd1 - 1
		rho = -k * t * standardNormal.CDF(-d2)
	}

	gamma := nd1 / (s * sigma * sqrtT)
	vega := s * nd1 * sqrtT
	thetaAnnual := -(s * nd1 * sigma) / (2 * sqrtT)
	thetaPerDay := thetaAnnual / 365.0

	if !allFinite(delta, gamma, thetaPerDay, vega, rho) {
		return nil, false
	}

	return &Greeks{
		Delta: decimal.NewFromFloat(delta).Round(6),
		Gamma: decimal.NewFromFloat(gamma).Round(6),
		Theta: decimal.NewFromFloat(thetaPerDay).Round(6),
		Vega:  decimal.NewFromFloat(vega / 100).Round(6),
		Rho:   decimal.NewFromFloat(rho / 100).Round(6),
		IV:    ivSeed.Round(6),
	}, true
}

// expirationDayGreeks handles the degenerate days_to_expiration == 0
// case, where time value collapses: delta is 1 for an in-the-money call,
// -1 for an in-the-money put and 0 otherwise, the
// remaining Greeks are zero.
func expirationDayGreeks(optType asset.OptionType, s, k float64) (*Greeks, bool) {
	var delta float64
	switch {
	case optType == asset.Call && s > k:
		delta = 1
	case optType == asset.Put && s < k:
		delta = -1
	default:
		delta = 0
	}
	return &Greeks{
		Delta: decimal.NewFromFloat(delta),
		Gamma: decimal.Zero,
		Theta: decimal.Zero,
		Vega:  decimal.Zero,
		Rho:   decimal.Zero,
	}, true
}

func allFinite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
