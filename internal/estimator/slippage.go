package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Slippage fills at the midpoint adjusted by a signed slippage factor in
// [-1, 1]: positive s favours the trader. Requires a valid bid/ask.
type Slippage struct {
	S decimal.Decimal
}

func NewSlippage(s decimal.Decimal) (Slippage, error) {
	if s.LessThan(decimal.NewFromInt(-1)) || s.GreaterThan(decimal.NewFromInt(1)) {
		return Slippage{}, fmt.Errorf("estimator: slippage factor %s out of [-1,1]", s)
	}
	return Slippage{S: s}, nil
}

func (e Slippage) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	mid, ok := q.Mid()
	if !ok {
		return decimal.Zero, fmt.Errorf("estimator: slippage requires a valid bid/ask")
	}
	halfSpread, _ := q.HalfSpread()

	if isBuy(signedQuantity) {
		return roundCents(mid.Sub(halfSpread.Mul(e.S))), nil
	}
	return roundCents(mid.Add(halfSpread.Mul(e.S))), nil
}
