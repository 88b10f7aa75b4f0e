package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// WeightedEstimator pairs a sub-estimator with its contribution weight.
type WeightedEstimator struct {
	Name      string
	Estimator Estimator
	Weight    decimal.Decimal
}

// Multi combines several estimators by weighted average. Weights must
// sum to (approximately) 1 at construction. A sub-estimator that errors
// is skipped and the remaining weights renormalised; Multi itself errors
// only when every sub-estimator fails.
type Multi struct {
	members []WeightedEstimator
}

var weightTolerance = decimal.NewFromFloat(0.001)

func NewMulti(members []WeightedEstimator) (Multi, error) {
	if len(members) == 0 {
		return Multi{}, fmt.Errorf("estimator: multi requires at least one member")
	}
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.Weight)
	}
	if total.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(weightTolerance) {
		return Multi{}, fmt.Errorf("estimator: multi weights must sum to 1, got %s", total)
	}
	return Multi{members: members}, nil
}

func (m Multi) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	weightedPrice := decimal.Zero
	totalWeight := decimal.Zero

	for _, member := range m.members {
		price, err := member.Estimator.Estimate(q, signedQuantity)
		if err != nil {
			continue
		}
		weightedPrice = weightedPrice.Add(price.Mul(member.Weight))
		totalWeight = totalWeight.Add(member.Weight)
	}

	if totalWeight.IsZero() {
		return decimal.Zero, fmt.Errorf("estimator: multi failed, every sub-estimator errored")
	}
	return roundCents(weightedPrice.Div(totalWeight)), nil
}
