package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Options prices option fills by capturing a configurable fraction of
// the spread back from the adverse quote side, then rounds to the
// exchange's sub-$3 nickel / at-or-above-$3 dime tick.
type Options struct {
	SpreadFactor decimal.Decimal
}

func NewOptions(spreadFactor decimal.Decimal) (Options, error) {
	if spreadFactor.Sign() < 0 || spreadFactor.GreaterThan(decimal.NewFromInt(1)) {
		return Options{}, fmt.Errorf("estimator: options spread_factor %s out of [0,1]", spreadFactor)
	}
	return Options{SpreadFactor: spreadFactor}, nil
}

func (e Options) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	if !q.HasValidBidAsk() {
		if q.Last != nil && q.Last.Sign() > 0 {
			return roundOptionTick(*q.Last), nil
		}
		return decimal.Zero, fmt.Errorf("estimator: options requires a valid bid/ask or last price")
	}

	spread := q.Ask.Sub(*q.Bid)
	var price decimal.Decimal
	if isBuy(signedQuantity) {
		price = q.Ask.Sub(spread.Mul(e.SpreadFactor))
	} else {
		price = q.Bid.Add(spread.Mul(e.SpreadFactor))
	}
	return roundOptionTick(price), nil
}
