package estimator

import (
	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Market fills buys at the ask and sells at the bid, falling back to
// Midpoint when the quote has no usable bid/ask.
type Market struct{}

func (Market) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	if !q.HasValidBidAsk() {
		return Midpoint{}.Estimate(q, signedQuantity)
	}
	if isBuy(signedQuantity) {
		return roundCents(*q.Ask), nil
	}
	return roundCents(*q.Bid), nil
}
