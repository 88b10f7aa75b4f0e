package estimator

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/quote"
)

// RandomWalk multiplies the quote's midpoint by 1+N(0, sigma/sqrt(252*6.5)),
// clamped to +-20% of the base price. It owns a seeded RNG for
// reproducibility: per the engine's concurrency model, this makes it the
// one estimator whose state is not safe to share across concurrent
// callers who need deterministic output — instantiate one per test or
// per serialised caller.
type RandomWalk struct {
	Sigma decimal.Decimal

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomWalk(sigma decimal.Decimal, seed int64) (*RandomWalk, error) {
	if sigma.Sign() < 0 {
		return nil, fmt.Errorf("estimator: random_walk volatility must be >= 0")
	}
	return &RandomWalk{
		Sigma: sigma,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// tradingPeriodsPerYear approximates 252 trading days of 6.5 hours each,
// matching the reference implementation's intraday volatility scaling.
const tradingPeriodsPerYear = 252 * 6.5

func (e *RandomWalk) Estimate(q quote.Quote, signedQuantity int) (decimal.Decimal, error) {
	base, err := Midpoint{}.Estimate(q, signedQuantity)
	if err != nil {
		return decimal.Zero, err
	}

	sigma, _ := e.Sigma.Float64()
	intradayVol := sigma / math.Sqrt(tradingPeriodsPerYear)

	e.mu.Lock()
	randomFactor := e.rng.NormFloat64() * intradayVol
	e.mu.Unlock()

	baseF, _ := base.Float64()
	adjusted := baseF * (1 + randomFactor)

	lower := baseF * 0.8
	upper := baseF * 1.2
	if adjusted < lower {
		adjusted = lower
	}
	if adjusted > upper {
		adjusted = upper
	}

	return roundCents(decimal.NewFromFloat(adjusted)), nil
}
