// Package estimator implements the price-estimation models described in
// the engine's fill-pricing component: each turns a quote and a signed
// order quantity into a fill price.
package estimator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Estimator turns a quote and a signed leg quantity (positive = buy,
// negative = sell) into a fill price. Implementations are pure with
// respect to their own configuration; RandomWalk is the one exception
// documented on its type.
type Estimator interface {
	Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error)
}

// isBuy reports whether a signed leg quantity represents a buy side.
func isBuy(signedQuantity int) bool { return signedQuantity > 0 }

// roundCents rounds to two decimal places, the default tick for every
// estimator except Options (which has its own sub-cent-aware rule).
func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// roundOptionTick applies the spec's options tick rule: below $3, round
// to the nearest $0.05; at or above $3, round to the nearest $0.10.
func roundOptionTick(d decimal.Decimal) decimal.Decimal {
	f, _ := d.Float64()
	af := math.Abs(f)
	var tick float64
	if af < 3.0 {
		tick = 0.05
	} else {
		tick = 0.10
	}
	rounded := math.Round(f/tick) * tick
	return decimal.NewFromFloat(rounded).Round(2)
}

var two = decimal.NewFromInt(2)

// Factory builds a named estimator from its parameters, mirroring the
// engine's configuration-driven estimator selection (config names an
// estimator by string; cmd/server and cmd/accountctl resolve it once at
// startup and hand the result to the facade).
func Factory(name string, params map[string]decimal.Decimal) (Estimator, error) {
	switch name {
	case "midpoint":
		return Midpoint{}, nil
	case "market":
		return Market{}, nil
	case "fixed":
		p, ok := params["price"]
		if !ok {
			return nil, fmt.Errorf("estimator: fixed requires a price param")
		}
		return Fixed{Price: p}, nil
	case "slippage":
		s, ok := params["slippage"]
		if !ok {
			return nil, fmt.Errorf("estimator: slippage requires a slippage param")
		}
		return NewSlippage(s)
	case "volume_weighted":
		k, ok := params["impact"]
		if !ok {
			return nil, fmt.Errorf("estimator: volume_weighted requires an impact param")
		}
		return NewVolumeWeighted(k)
	case "realistic":
		return NewRealistic(params["base"], params["size"], params["volatility"])
	case "options":
		f, ok := params["spread_factor"]
		if !ok {
			return nil, fmt.Errorf("estimator: options requires a spread_factor param")
		}
		return NewOptions(f)
	case "random_walk":
		sigma, ok := params["volatility"]
		if !ok {
			return nil, fmt.Errorf("estimator: random_walk requires a volatility param")
		}
		seed := int64(1)
		if s, ok := params["seed"]; ok {
			seed = s.IntPart()
		}
		return NewRandomWalk(sigma, seed)
	default:
		return nil, fmt.Errorf("estimator: unknown estimator %q", name)
	}
}
