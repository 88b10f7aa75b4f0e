package estimator

import (
	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Fixed always returns its configured price, regardless of the quote.
// Used for worthless-expiration settlement and other forced fills.
type Fixed struct {
	Price decimal.Decimal
}

func (f Fixed) Estimate(_ quote.Quote, _ int) (decimal.Decimal, error) {
	return roundCents(f.Price), nil
}
