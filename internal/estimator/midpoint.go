package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Midpoint fills at the mid of bid/ask, falling back to last price, and
// erroring if neither is available.
type Midpoint struct{}

func (Midpoint) Estimate(q quote.Quote, _ int) (decimal.Decimal, error) {
	if mid, ok := q.Mid(); ok {
		return roundCents(mid), nil
	}
	if q.Last != nil && q.Last.Sign() > 0 {
		return roundCents(*q.Last), nil
	}
	return decimal.Zero, fmt.Errorf("estimator: midpoint requires a valid bid/ask or last price")
}
