// Package execution implements the order execution engine: the single
// path every order — market, limit, or stop, single- or multi-leg —
// runs through to become a fill, a rejection, or a hold. It loads an
// account, prices and validates the order, applies it to an in-memory
// copy, and persists the result in one suspending write at the end; no
// I/O happens between the cash and position mutations in between.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/estimator"
	"github.com/scranton-trading/paperbroker/internal/margin"
	"github.com/scranton-trading/paperbroker/internal/order"
	"github.com/scranton-trading/paperbroker/internal/quotesource"
	"github.com/scranton-trading/paperbroker/internal/validate"
)

// Outcome is the closed set of ways an order attempt can resolve. There
// is deliberately no fourth, uncategorised failure path: every expected
// rejection is NotFilled or Failed, never a bare Go error bubbling out
// of Submit.
type Outcome int

const (
	Filled Outcome = iota
	NotFilled
	Failed
)

// FilledLeg records one leg's resolved fill price alongside the leg
// itself, for callers that want a fill confirmation to show the user.
type FilledLeg struct {
	Leg         order.Leg
	Price       decimal.Decimal // unsigned magnitude
	SignedPrice decimal.Decimal // signed to match leg.Quantity's direction
}

// Result is the sum type every order attempt resolves to.
type Result struct {
	Outcome    Outcome
	Account    *account.Account
	CashDelta  decimal.Decimal
	FilledLegs []FilledLeg
	Reason     string // set on NotFilled
	Err        error  // set on Failed
}

// Engine is the execution engine. Estimator prices every leg; Limits
// bounds contextual validation; ExpirationHook, when set, runs the
// expiration engine against the loaded account before processing (the
// engine's own first step, kept as an injected collaborator so this
// package need not import internal/expiration).
type Engine struct {
	Store          account.Store
	Source         quotesource.Source
	Estimator      estimator.Estimator
	Limits         validate.Limits
	Logger         *logrus.Logger
	Now            func() time.Time
	ExpirationHook func(ctx context.Context, acct *account.Account) (*account.Account, error)
}

func New(store account.Store, source quotesource.Source, est estimator.Estimator, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{Store: store, Source: source, Estimator: est, Logger: logger, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Submit runs one order through the full engine. It never returns a Go
// error: every failure mode, expected or not, comes back as a Result
// with Outcome Failed or NotFilled.
func (e *Engine) Submit(ctx context.Context, accountID string, o order.MultiLegOrder) Result {
	acct, err := e.Store.Load(ctx, accountID)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("%w: loading account %s: %v", apperr.ErrPersistenceError, accountID, err)}
	}
	acct = acct.Clone()

	if e.ExpirationHook != nil {
		acct, err = e.ExpirationHook(ctx, acct)
		if err != nil {
			return Result{Outcome: Failed, Err: err}
		}
	}

	asOf := e.now()

	if err := validate.Structural(o, asOf); err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	priced, err := e.priceLegs(ctx, o)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	orderPrice := aggregateOrderPrice(priced)

	if !fillDecision(o, orderPrice) {
		return Result{Outcome: NotFilled, Reason: "limit price not met"}
	}

	cashDelta := aggregateCashDelta(priced)

	if err := validate.Contextual(acct, o, cashDelta, e.Limits); err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	applyFills(acct, priced, asOf)

	acct.CashBalance = acct.CashBalance.Add(cashDelta)
	acct.UpdatedAt = asOf
	acct.MaintenanceMargin = margin.Calculate(acct.PositionList(), pricesBySymbol(priced))

	if acct.CashBalance.IsNegative() {
		return Result{Outcome: Failed, Err: fmt.Errorf("%w: post-fill cash balance went negative", apperr.ErrInternal)}
	}

	if err := e.Store.Save(ctx, acct); err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("%w: persisting account %s: %v", apperr.ErrPersistenceError, accountID, err)}
	}

	return Result{Outcome: Filled, Account: acct, CashDelta: cashDelta, FilledLegs: toFilledLegs(priced)}
}

// pricedLeg is one leg with its resolved fill price attached.
type pricedLeg struct {
	leg         order.Leg
	price       decimal.Decimal // unsigned magnitude
	signedPrice decimal.Decimal
}

// priceLegs resolves every leg's fill price: an explicit limit price (or
// stop price, for stop orders — the core treats a stop as a market order
// at the stated stop price) wins over the configured estimator.
func (e *Engine) priceLegs(ctx context.Context, o order.MultiLegOrder) ([]pricedLeg, error) {
	out := make([]pricedLeg, 0, len(o.Legs))
	for _, leg := range o.Legs {
		var price decimal.Decimal

		switch {
		case leg.LimitPrice != nil:
			price = leg.LimitPrice.Abs()
		case o.Condition == order.Stop && leg.StopPrice != nil:
			price = leg.StopPrice.Abs()
		default:
			q, err := e.Source.GetQuote(ctx, leg.Asset.Symbol())
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", apperr.ErrQuoteUnavailable, leg.Asset.Symbol(), err)
			}
			est, err := e.Estimator.Estimate(q, int(leg.Quantity))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", apperr.ErrQuoteUnavailable, leg.Asset.Symbol(), err)
			}
			price = est.Abs()
		}

		signed := price
		if leg.Quantity < 0 {
			signed = price.Neg()
		}
		out = append(out, pricedLeg{leg: leg, price: price, signedPrice: signed})
	}
	return out, nil
}

// aggregateOrderPrice sums |leg_price| * |qty| across every leg.
func aggregateOrderPrice(priced []pricedLeg) decimal.Decimal {
	total := decimal.Zero
	for _, p := range priced {
		total = total.Add(p.price.Mul(decimal.NewFromInt(abs64(p.leg.Quantity))))
	}
	return total
}

// fillDecision applies the order's condition against the aggregate
// order price. Market and stop orders always fill (a stop's "touch"
// detection is an external collaborator's job, not this engine's).
// Limit orders fill iff net_limit is at least as generous as
// order_price in the direction the sign of net_limit implies: a
// non-negative net limit is a debit ceiling (fill when the limit is at
// least the cost), a negative net limit is a credit floor (fill when
// the limit is at most the cost).
func fillDecision(o order.MultiLegOrder, orderPrice decimal.Decimal) bool {
	switch o.Condition {
	case order.Market, order.Stop:
		return true
	case order.Limit:
		if o.NetLimit == nil {
			return true
		}
		if o.NetLimit.Sign() >= 0 {
			return o.NetLimit.GreaterThanOrEqual(orderPrice)
		}
		return o.NetLimit.LessThanOrEqual(orderPrice)
	default:
		return true
	}
}

// aggregateCashDelta sums each leg's cash impact:
// -sign(qty) * |price| * |qty| * multiplier. A buy (positive qty) is
// negative (cash out); a sell (negative qty) is positive (cash in).
func aggregateCashDelta(priced []pricedLeg) decimal.Decimal {
	total := decimal.Zero
	for _, p := range priced {
		mag := p.price.Mul(decimal.NewFromInt(abs64(p.leg.Quantity))).Mul(decimal.NewFromInt(int64(p.leg.Asset.Multiplier())))
		if p.leg.Quantity > 0 {
			mag = mag.Neg()
		}
		total = total.Add(mag)
	}
	return total
}

func pricesBySymbol(priced []pricedLeg) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(priced))
	for _, p := range priced {
		out[p.leg.Asset.Symbol()] = p.price
	}
	return out
}

func toFilledLegs(priced []pricedLeg) []FilledLeg {
	out := make([]FilledLeg, 0, len(priced))
	for _, p := range priced {
		out = append(out, FilledLeg{Leg: p.leg, Price: p.price, SignedPrice: p.signedPrice})
	}
	return out
}

// applyFills mutates acct in place: opening legs create a position or
// merge into an existing same-side one at a weighted-average price;
// closing legs reduce a matching opposite-side position, booking
// realised P&L, and remove it once it reaches zero. Every leg here has
// already passed contextual validation, so insufficient-position and
// insufficient-cash cases cannot occur at this point.
func applyFills(acct *account.Account, priced []pricedLeg, asOf time.Time) {
	for _, p := range priced {
		if isOpeningIntent(p.leg, acct) {
			applyOpen(acct, p, asOf)
		} else {
			applyClose(acct, p)
		}
	}
}

// isOpeningIntent resolves BTO/STO as opening and BTC/STC as closing
// directly from the leg's tag. A direction-only BUY/SELL tag is opening
// unless an opposite-signed position already exists for that symbol, in
// which case it resolves to closing it.
func isOpeningIntent(leg order.Leg, acct *account.Account) bool {
	if leg.Type.IsOpening() {
		return true
	}
	if leg.Type.IsClosing() {
		return false
	}
	pos, ok := acct.Positions[leg.Asset.Symbol()]
	if ok && opposesSign(pos.Quantity, leg.Quantity) {
		return false
	}
	return true
}

func applyOpen(acct *account.Account, p pricedLeg, asOf time.Time) {
	symbol := p.leg.Asset.Symbol()
	pos, ok := acct.Positions[symbol]
	if !ok {
		acct.Positions[symbol] = &account.Position{
			Asset:     p.leg.Asset,
			Quantity:  p.leg.Quantity,
			AvgPrice:  p.price,
			CreatedAt: asOf,
		}
		return
	}

	// Same-side merge: new weighted-average cost basis.
	oldQty := decimal.NewFromInt(pos.Quantity)
	newQty := decimal.NewFromInt(p.leg.Quantity)
	totalQty := pos.Quantity + p.leg.Quantity
	weightedCost := pos.AvgPrice.Mul(oldQty.Abs()).Add(p.price.Mul(newQty.Abs()))
	pos.AvgPrice = weightedCost.Div(decimal.NewFromInt(abs64(totalQty)))
	pos.Quantity = totalQty
}

func applyClose(acct *account.Account, p pricedLeg) {
	symbol := p.leg.Asset.Symbol()
	pos := acct.Positions[symbol]

	qtyToClose := abs64(p.leg.Quantity)
	mult := decimal.NewFromInt(int64(p.leg.Asset.Multiplier()))

	realized := p.price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(qtyToClose)).Mul(mult)
	if pos.Quantity < 0 {
		realized = realized.Neg()
	}
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)

	if pos.Quantity > 0 {
		pos.Quantity -= qtyToClose
	} else {
		pos.Quantity += qtyToClose
	}

	if pos.Quantity == 0 {
		delete(acct.Positions, symbol)
	}
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
