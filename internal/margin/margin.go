// Package margin computes Reg-T-style maintenance margin for a
// recognised strategy set, following the teacher's account-level margin
// recalculation pattern: the whole account is re-evaluated after every
// mutation rather than incrementally patched.
package margin

import (
	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/strategy"
)

var (
	hundred             = decimal.NewFromInt(100)
	shortStockRatio     = decimal.NewFromFloat(0.30)
	shortStockPerShare  = decimal.NewFromInt(5)
)

// Calculate recognises the account's positions into strategies and sums
// each one's maintenance margin requirement. The total is not persisted
// by this package; callers (the execution engine's commit step) stamp
// it onto Account.MaintenanceMargin themselves.
func Calculate(positions []*account.Position, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, s := range strategy.Recognise(positions) {
		total = total.Add(forStrategy(s, prices))
	}
	return total
}

// forStrategy dispatches to the formula for one recognised structure.
// prices maps a position's symbol to its current mark, used only where
// the formula needs a live market value (short stock, naked options,
// calendar/diagonal long-leg cost, straddle/strangle premium).
func forStrategy(s strategy.Strategy, prices map[string]decimal.Decimal) decimal.Decimal {
	switch s.Kind {
	case strategy.LongStock, strategy.LongCall, strategy.LongPut,
		strategy.CoveredCall, strategy.CoveredPut,
		strategy.ProtectivePut, strategy.ProtectiveCall:
		return decimal.Zero

	case strategy.ShortStock:
		return shortStockMargin(s.Positions[0], prices)

	case strategy.VerticalCallSpread, strategy.VerticalPutSpread:
		return verticalSpreadMargin(s)

	case strategy.CalendarSpread, strategy.DiagonalSpread:
		return longOptionCostMargin(s, prices)

	case strategy.Straddle, strategy.Strangle:
		return straddleStrangleMargin(s, prices)

	case strategy.Butterfly, strategy.IronCondor, strategy.IronButterfly:
		return wingSpreadMargin(s)

	case strategy.ShortCall, strategy.ShortPut:
		return nakedOptionMargin(s.Positions[0], prices)

	default: // Custom
		total := decimal.Zero
		for _, p := range s.Positions {
			if p.Quantity < 0 && p.Asset.IsOption() {
				total = total.Add(nakedOptionMargin(p, prices))
			}
		}
		return total
	}
}

// shortStockMargin: max(30% of market value, $5 per share).
func shortStockMargin(p *account.Position, prices map[string]decimal.Decimal) decimal.Decimal {
	shares := abs64(p.Quantity)
	price := markPrice(p, prices)
	byValue := price.Mul(decimal.NewFromInt(shares)).Mul(shortStockRatio)
	byShare := shortStockPerShare.Mul(decimal.NewFromInt(shares))
	if byValue.GreaterThan(byShare) {
		return byValue
	}
	return byShare
}

// verticalSpreadMargin: debit spreads require no additional margin
// (the long leg is already paid for); credit spreads require
// (width * 100 * contracts) - net credit received.
func verticalSpreadMargin(s strategy.Strategy) decimal.Decimal {
	if !s.Bullish && s.Kind == strategy.VerticalCallSpread {
		return creditSpreadMargin(s)
	}
	if s.Bullish && s.Kind == strategy.VerticalPutSpread {
		return creditSpreadMargin(s)
	}
	return decimal.Zero
}

func creditSpreadMargin(s strategy.Strategy) decimal.Decimal {
	contracts := decimal.NewFromInt(abs64(s.Positions[0].Quantity))
	maxLoss := s.Width.Mul(hundred).Mul(contracts)
	netCredit := netPremium(s.Positions)
	requirement := maxLoss.Sub(netCredit)
	if requirement.IsNegative() {
		return decimal.Zero
	}
	return requirement
}

// longOptionCostMargin: a calendar or diagonal's risk is bounded by
// what was paid for the long leg, which is already committed cash.
func longOptionCostMargin(s strategy.Strategy, prices map[string]decimal.Decimal) decimal.Decimal {
	for _, p := range s.Positions {
		if p.Quantity > 0 {
			return markPrice(p, prices).Mul(hundred).Mul(decimal.NewFromInt(p.Quantity))
		}
	}
	return decimal.Zero
}

// straddleStrangleMargin: the greater of the two sides' naked margin,
// plus the other side's premium, for short structures; long structures
// require nothing beyond the premium paid.
func straddleStrangleMargin(s strategy.Strategy, prices map[string]decimal.Decimal) decimal.Decimal {
	a, b := s.Positions[0], s.Positions[1]
	if a.Quantity > 0 {
		return decimal.Zero
	}
	aMargin := nakedOptionMargin(a, prices)
	bMargin := nakedOptionMargin(b, prices)
	greater, other := aMargin, b
	if bMargin.GreaterThan(aMargin) {
		greater, other = bMargin, a
	}
	return greater.Add(markPrice(other, prices).Mul(hundred).Mul(decimal.NewFromInt(abs64(other.Quantity))))
}

// wingSpreadMargin: the worst-case loss at any wing, which for a
// symmetric or asymmetric butterfly/condor/iron-butterfly is the widest
// adjacent strike gap times contracts times 100, less any net credit
// collected on construction.
func wingSpreadMargin(s strategy.Strategy) decimal.Decimal {
	widest := decimal.Zero
	for i := 1; i < len(s.Positions); i++ {
		gap := s.Positions[i].Asset.Strike().Sub(s.Positions[i-1].Asset.Strike()).Abs()
		if gap.GreaterThan(widest) {
			widest = gap
		}
	}
	contracts := decimal.NewFromInt(abs64(s.Positions[0].Quantity))
	maxLoss := widest.Mul(hundred).Mul(contracts)
	netCredit := netPremium(s.Positions)
	requirement := maxLoss.Sub(netCredit)
	if requirement.IsNegative() {
		return decimal.Zero
	}
	return requirement
}

// nakedOptionMargin: max(20% of underlying notional + option market
// value - OTM amount, 10% of strike notional + option market value),
// per 100-share contract. The OTM amount discounts the first branch for
// options trading far out of the money; the second branch floors
// in-the-money naked margin at 10% of the strike.
func nakedOptionMargin(p *account.Position, prices map[string]decimal.Decimal) decimal.Decimal {
	contracts := decimal.NewFromInt(abs64(p.Quantity))
	underlying := underlyingPrice(p, prices)
	strikeNotional := p.Asset.Strike().Mul(hundred).Mul(contracts)
	underlyingNotional := underlying.Mul(hundred).Mul(contracts)
	optionMarketValue := markPrice(p, prices).Mul(hundred).Mul(contracts)
	otmAmount := outOfMoneyAmount(p, underlying).Mul(hundred).Mul(contracts)

	byUnderlying := underlyingNotional.Mul(decimal.NewFromFloat(0.20)).Add(optionMarketValue).Sub(otmAmount)
	byStrike := strikeNotional.Mul(decimal.NewFromFloat(0.10)).Add(optionMarketValue)

	if byUnderlying.GreaterThan(byStrike) {
		return byUnderlying
	}
	return byStrike
}

// outOfMoneyAmount is how far out of the money p's option is, per share:
// strike minus underlying for a call, underlying minus strike for a put,
// floored at zero for in-the-money options.
func outOfMoneyAmount(p *account.Position, underlying decimal.Decimal) decimal.Decimal {
	var diff decimal.Decimal
	if p.Asset.OptionType() == asset.Call {
		diff = p.Asset.Strike().Sub(underlying)
	} else {
		diff = underlying.Sub(p.Asset.Strike())
	}
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// underlyingPrice resolves the live mark for p's underlying, falling back
// to the option's own strike (a neutral assumption of at-the-money) when
// the quote source could not price the underlying.
func underlyingPrice(p *account.Position, prices map[string]decimal.Decimal) decimal.Decimal {
	if prices != nil {
		if price, ok := prices[p.Asset.Underlying()]; ok {
			return price
		}
	}
	return p.Asset.Strike()
}

// netPremium sums signed cost basis across a strategy's legs: negative
// for legs opened short (premium received), positive for legs opened
// long (premium paid). Used to offset a credit structure's max loss.
func netPremium(positions []*account.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		cost := p.AvgPrice.Mul(hundred).Mul(decimal.NewFromInt(abs64(p.Quantity)))
		if p.Quantity < 0 {
			total = total.Sub(cost)
		} else {
			total = total.Add(cost)
		}
	}
	return total.Neg()
}

func markPrice(p *account.Position, prices map[string]decimal.Decimal) decimal.Decimal {
	if prices != nil {
		if price, ok := prices[p.Asset.Symbol()]; ok {
			return price
		}
	}
	if p.CurrentPrice != nil {
		return *p.CurrentPrice
	}
	return p.AvgPrice
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
