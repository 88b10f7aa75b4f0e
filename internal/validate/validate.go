// Package validate implements the engine's two-layer order validator:
// structural (static, no account context) and contextual (runtime,
// requires current cash/positions/estimated cash impact).
package validate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/order"
)

// Limits bundles the optional policy thresholds contextual validation
// enforces only when the caller supplies them (a nil field means "no
// limit").
type Limits struct {
	MaxPositionNotional *decimal.Decimal
	MaxGrossExposure    *decimal.Decimal
	MaxDailyRealizedLoss *decimal.Decimal
	MaxAbsPortfolioDelta *decimal.Decimal
}

// Structural validates an order's static shape: non-empty, distinct
// assets, non-zero quantities, signs consistent with each leg's order
// type, and (for option legs) a non-expired option with a positive
// strike — the last guaranteed by asset.For's own parsing, re-checked
// here for the expiration date against asOf.
func Structural(o order.MultiLegOrder, asOf time.Time) error {
	if len(o.Legs) == 0 {
		return fmt.Errorf("%w: order must have at least one leg", apperr.ErrValidationFailed)
	}

	seen := make(map[string]bool, len(o.Legs))
	for i, leg := range o.Legs {
		symbol := leg.Asset.Symbol()
		if seen[symbol] {
			return fmt.Errorf("%w: leg %d: duplicate asset %s not allowed in a multi-leg order", apperr.ErrValidationFailed, i, symbol)
		}
		seen[symbol] = true

		if err := validateLeg(leg, i); err != nil {
			return err
		}

		if leg.Asset.IsOption() {
			if leg.Asset.DaysToExpiration(asOf) < 0 {
				return fmt.Errorf("%w: leg %d: option %s is expired as of %s", apperr.ErrValidationFailed, i, symbol, asOf.Format("2006-01-02"))
			}
			if leg.Asset.Strike().Sign() <= 0 {
				return fmt.Errorf("%w: leg %d: option %s has a non-positive strike", apperr.ErrValidationFailed, i, symbol)
			}
		}
	}
	return nil
}

func validateLeg(leg order.Leg, index int) error {
	if leg.Quantity == 0 {
		return fmt.Errorf("%w: leg %d: quantity cannot be zero", apperr.ErrValidationFailed, index)
	}

	if leg.Type.IsBuySide() {
		if leg.Quantity < 0 {
			return fmt.Errorf("%w: leg %d: %s requires positive quantity", apperr.ErrValidationFailed, index, leg.Type)
		}
		if leg.LimitPrice != nil && leg.LimitPrice.Sign() < 0 {
			return fmt.Errorf("%w: leg %d: %s requires a positive price", apperr.ErrValidationFailed, index, leg.Type)
		}
		return nil
	}

	// Sell-side: SELL, STO, STC.
	if leg.Quantity > 0 {
		return fmt.Errorf("%w: leg %d: %s requires negative quantity", apperr.ErrValidationFailed, index, leg.Type)
	}
	if leg.LimitPrice != nil && leg.LimitPrice.Sign() > 0 {
		return fmt.Errorf("%w: leg %d: %s requires a negative price", apperr.ErrValidationFailed, index, leg.Type)
	}
	return nil
}

// Contextual validates an order against current account state: it
// requires sufficient closable positions for BTC/STC legs, and that
// post-trade cash (current + estimatedCashDelta) is non-negative. It
// then applies any policy limits the caller supplied. Nothing in this
// package mutates the account; it is read-only.
func Contextual(acct *account.Account, o order.MultiLegOrder, estimatedCashDelta decimal.Decimal, limits Limits) error {
	for i, leg := range o.Legs {
		if !leg.Type.IsClosing() {
			continue
		}
		pos, ok := acct.Positions[leg.Asset.Symbol()]
		if !ok || !opposesSign(pos.Quantity, leg.Quantity) {
			return fmt.Errorf("%w: leg %d: no open position to close for %s", apperr.ErrInsufficientPosition, i, leg.Asset.Symbol())
		}
		available := abs64(pos.Quantity)
		required := abs64(leg.Quantity)
		if available < required {
			return fmt.Errorf("%w: leg %d: closing %d of %s but only %d available", apperr.ErrInsufficientPosition, i, required, leg.Asset.Symbol(), available)
		}
	}

	if acct.CashBalance.Add(estimatedCashDelta).Sign() < 0 {
		return fmt.Errorf("%w: post-trade cash would be %s", apperr.ErrInsufficientCash, acct.CashBalance.Add(estimatedCashDelta))
	}

	return applyLimits(acct, limits)
}

func applyLimits(acct *account.Account, limits Limits) error {
	if limits.MaxPositionNotional != nil {
		for _, p := range acct.PositionList() {
			notional := p.MarketValue().Abs()
			if notional.GreaterThan(*limits.MaxPositionNotional) {
				return fmt.Errorf("%w: position %s notional %s exceeds limit %s", apperr.ErrValidationFailed, p.Asset.Symbol(), notional, *limits.MaxPositionNotional)
			}
		}
	}

	if limits.MaxGrossExposure != nil {
		total := decimal.Zero
		for _, p := range acct.PositionList() {
			total = total.Add(p.MarketValue().Abs())
		}
		if total.GreaterThan(*limits.MaxGrossExposure) {
			return fmt.Errorf("%w: total exposure %s exceeds limit %s", apperr.ErrValidationFailed, total, *limits.MaxGrossExposure)
		}
	}

	if limits.MaxDailyRealizedLoss != nil {
		total := decimal.Zero
		for _, p := range acct.PositionList() {
			total = total.Add(p.RealizedPnL)
		}
		if total.LessThan(limits.MaxDailyRealizedLoss.Neg()) {
			return fmt.Errorf("%w: daily realized loss %s exceeds limit %s", apperr.ErrValidationFailed, total, *limits.MaxDailyRealizedLoss)
		}
	}

	if limits.MaxAbsPortfolioDelta != nil {
		total := decimal.Zero
		for _, p := range acct.PositionList() {
			if p.Greeks != nil {
				total = total.Add(p.Greeks.Delta.Mul(decimal.NewFromInt(p.Quantity)))
			}
		}
		if total.Abs().GreaterThan(*limits.MaxAbsPortfolioDelta) {
			return fmt.Errorf("%w: portfolio delta %s exceeds limit %s", apperr.ErrValidationFailed, total, *limits.MaxAbsPortfolioDelta)
		}
	}

	return nil
}

func opposesSign(a, b int64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
