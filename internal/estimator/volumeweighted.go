package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// VolumeWeighted starts at the ask (buy) or bid (sell) and worsens the
// price proportionally to how much of the visible size the order
// consumes, scaled by an impact factor k in [0,1]. Falls back to Market
// when the relevant size is unknown or non-positive.
type VolumeWeighted struct {
	K decimal.Decimal
}

func NewVolumeWeighted(k decimal.Decimal) (VolumeWeighted, error) {
	if k.Sign() < 0 || k.GreaterThan(decimal.NewFromInt(1)) {
		return VolumeWeighted{}, fmt.Errorf("estimator: volume_weighted impact %s out of [0,1]", k)
	}
	return VolumeWeighted{K: k}, nil
}

func (e VolumeWeighted) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	if !q.HasValidBidAsk() {
		return Market{}.Estimate(q, signedQuantity)
	}

	buy := isBuy(signedQuantity)
	var visibleSize int64
	if buy {
		visibleSize = q.AskSize
	} else {
		visibleSize = q.BidSize
	}
	if visibleSize <= 0 {
		return Market{}.Estimate(q, signedQuantity)
	}

	spread := q.Ask.Sub(*q.Bid)
	orderSize := decimal.NewFromInt(abs64(int64(signedQuantity)))
	sizeRatio := orderSize.Div(decimal.NewFromInt(visibleSize))
	if sizeRatio.GreaterThan(decimal.NewFromInt(1)) {
		sizeRatio = decimal.NewFromInt(1)
	}
	impact := spread.Mul(sizeRatio).Mul(e.K)

	if buy {
		return roundCents(q.Ask.Add(impact)), nil
	}
	return roundCents(q.Bid.Sub(impact)), nil
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
