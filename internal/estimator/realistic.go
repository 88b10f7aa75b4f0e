package estimator

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

const realisticTypicalSize = 100

// Realistic combines base slippage, a size-impact term scaled by the
// square root of relative order size, and a volatility uplift, then
// applies a time-of-day multiplier for the session's volatile open and
// close windows.
type Realistic struct {
	BaseSlippage decimal.Decimal
	SizeImpact   decimal.Decimal
	VolImpact    decimal.Decimal
}

func NewRealistic(base, size, vol decimal.Decimal) (Realistic, error) {
	return Realistic{BaseSlippage: base, SizeImpact: size, VolImpact: vol}, nil
}

func (e Realistic) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	mid, ok := q.Mid()
	if !ok {
		return Midpoint{}.Estimate(q, signedQuantity)
	}
	spread := decimal.Zero
	if q.HasValidBidAsk() {
		spread = q.Ask.Sub(*q.Bid)
	}

	orderSize := float64(abs64(int64(signedQuantity)))
	var availableSize int64
	if isBuy(signedQuantity) {
		availableSize = q.AskSize
	} else {
		availableSize = q.BidSize
	}

	var sizeRatio float64
	if availableSize > 0 {
		denom := math.Max(float64(availableSize), realisticTypicalSize)
		sizeRatio = math.Min(orderSize/denom, 2.0)
	} else {
		sizeRatio = orderSize / realisticTypicalSize
	}

	baseImpact := spread.Mul(e.BaseSlippage).Mul(decimal.NewFromFloat(0.5))
	sizeImpact := spread.Mul(e.SizeImpact).Mul(decimal.NewFromFloat(math.Sqrt(sizeRatio)))

	var volFactor decimal.Decimal
	if q.IV != nil {
		volFactor = decimal.NewFromInt(1).Add(q.IV.Mul(e.VolImpact))
	} else if !mid.IsZero() && spread.Div(mid).GreaterThan(decimal.NewFromFloat(0.05)) {
		volFactor = decimal.NewFromFloat(1.2)
	} else {
		volFactor = decimal.NewFromInt(1)
	}

	timeFactor := decimal.NewFromFloat(timeOfDayFactor(q.QuoteAt))

	totalImpact := baseImpact.Add(sizeImpact).Mul(volFactor).Mul(timeFactor)

	if isBuy(signedQuantity) {
		return roundCents(mid.Add(totalImpact)), nil
	}
	return roundCents(mid.Sub(totalImpact)), nil
}

// timeOfDayFactor returns 1.3 during the first and last half-hour of the
// regular session (9:30-10:00 and 15:30-16:00 Eastern) and 1.0 otherwise.
// A zero QuoteAt (no timestamp supplied) is treated as outside those
// windows.
func timeOfDayFactor(at time.Time) float64 {
	if at.IsZero() {
		return 1.0
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	open := 9*60 + 30
	openEnd := 10 * 60
	closeStart := 15*60 + 30
	closeEnd := 16 * 60
	if (minutes >= open && minutes < openEnd) || (minutes >= closeStart && minutes < closeEnd) {
		return 1.3
	}
	return 1.0
}
