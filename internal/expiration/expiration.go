// Package expiration implements the expiration engine: at end of day it
// settles every option position whose expiration has arrived, exercising
// or assigning in-the-money contracts into stock and retiring worthless
// ones, booking realised P&L and cash as it goes.
package expiration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/margin"
	"github.com/scranton-trading/paperbroker/internal/quotesource"
)

// EventKind classifies how one option position settled.
type EventKind int

const (
	ExpireWorthless EventKind = iota
	LongCallExercise
	LongPutExercise
	ShortCallAssignment
	ShortPutAssignment
	SkippedNoQuote
	SkippedInsufficientCash
)

func (k EventKind) String() string {
	switch k {
	case ExpireWorthless:
		return "expire_worthless"
	case LongCallExercise:
		return "long_call_exercise"
	case LongPutExercise:
		return "long_put_exercise"
	case ShortCallAssignment:
		return "short_call_assignment"
	case ShortPutAssignment:
		return "short_put_assignment"
	case SkippedNoQuote:
		return "skipped_no_quote"
	case SkippedInsufficientCash:
		return "skipped_insufficient_cash"
	default:
		return "unknown"
	}
}

// Event records one option position's settlement outcome.
type Event struct {
	Symbol         string
	Kind           EventKind
	IntrinsicValue decimal.Decimal
	RealizedPnL    decimal.Decimal
	CashImpact     decimal.Decimal
	Err            error
}

// Result is the outcome of one expiration sweep over an account: each
// option considered gets exactly one Event, whether it settled or was
// skipped for lack of a quote.
type Result struct {
	AccountID string
	Events    []Event
}

// Engine settles expiring option positions. Source supplies the
// underlying's price at settlement time; positions for underlyings the
// source cannot quote are skipped (recorded as SkippedNoQuote) rather
// than failing the whole sweep — a vendor outage on one name must not
// block every other account from settling.
type Engine struct {
	Store  account.Store
	Source quotesource.Source
	Logger *logrus.Logger
	Now    func() time.Time
}

func New(store account.Store, source quotesource.Source, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{Store: store, Source: source, Logger: logger, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run loads an account, settles every option at or past expiration,
// recomputes margin, persists once, and returns the settlement events.
func (e *Engine) Run(ctx context.Context, accountID string) (Result, error) {
	acct, err := e.Store.Load(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: loading account %s: %v", apperr.ErrPersistenceError, accountID, err)
	}
	acct = acct.Clone()

	acct, events := e.settle(ctx, acct)

	acct.MaintenanceMargin = margin.Calculate(acct.PositionList(), nil)
	if err := e.Store.Save(ctx, acct); err != nil {
		return Result{}, fmt.Errorf("%w: persisting account %s: %v", apperr.ErrPersistenceError, accountID, err)
	}
	return Result{AccountID: accountID, Events: events}, nil
}

// ProcessAccount settles an already-loaded, already-cloned account
// in-memory without persisting, and returns it. This is the shape the
// execution engine's ExpirationHook expects, so the two engines compose
// without either importing the other's package.
func (e *Engine) ProcessAccount(ctx context.Context, acct *account.Account) (*account.Account, error) {
	acct, _ = e.settle(ctx, acct)
	return acct, nil
}

func (e *Engine) settle(ctx context.Context, acct *account.Account) (*account.Account, []Event) {
	asOf := e.now()
	var events []Event

	for _, pos := range acct.PositionList() {
		if !pos.Asset.IsOption() {
			continue
		}
		if pos.Asset.DaysToExpiration(asOf) > 0 {
			continue
		}

		event, err := e.settleOne(ctx, acct, pos)
		if err != nil {
			kind := SkippedNoQuote
			reason := "no underlying quote"
			if errors.Is(err, apperr.ErrInsufficientCash) {
				kind = SkippedInsufficientCash
				reason = "would overdraw cash balance"
			}
			events = append(events, Event{Symbol: pos.Asset.Symbol(), Kind: kind, Err: err})
			e.Logger.WithError(err).WithField("symbol", pos.Asset.Symbol()).Warnf("expiration: skipping position, %s", reason)
			continue
		}
		events = append(events, event)
	}

	acct.UpdatedAt = asOf
	return acct, events
}

func (e *Engine) settleOne(ctx context.Context, acct *account.Account, pos *account.Position) (Event, error) {
	underlyingQuote, err := e.Source.GetQuote(ctx, pos.Asset.Underlying())
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", apperr.ErrQuoteUnavailable, err)
	}
	underlyingPrice, ok := underlyingQuote.Price()
	if !ok {
		return Event{}, fmt.Errorf("%w: underlying %s has no usable price", apperr.ErrQuoteUnavailable, pos.Asset.Underlying())
	}

	intrinsic := pos.Asset.IntrinsicValue(underlyingPrice)
	mult := decimal.NewFromInt(pos.Multiplier())
	qty := abs64(pos.Quantity)

	realized := intrinsic.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(qty)).Mul(mult)
	if pos.Quantity < 0 {
		realized = realized.Neg()
	}

	symbol := pos.Asset.Symbol()

	if intrinsic.IsZero() {
		delete(acct.Positions, symbol)
		return Event{Symbol: symbol, Kind: ExpireWorthless, IntrinsicValue: intrinsic, RealizedPnL: realized}, nil
	}

	isCall := pos.Asset.OptionType() == asset.Call
	strikeNotional := pos.Asset.Strike().Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(qty))

	var kind EventKind
	var cashImpact decimal.Decimal
	var shares int64

	switch {
	case isCall && pos.Quantity > 0: // long call exercise: buy stock at strike
		kind = LongCallExercise
		cashImpact = strikeNotional.Neg()
		shares = qty * 100
	case !isCall && pos.Quantity > 0: // long put exercise: sell stock at strike
		kind = LongPutExercise
		cashImpact = strikeNotional
		shares = -qty * 100
	case isCall && pos.Quantity < 0: // short call assignment: deliver stock at strike
		kind = ShortCallAssignment
		cashImpact = strikeNotional
		shares = -qty * 100
	default: // short put assignment: forced to buy stock at strike
		kind = ShortPutAssignment
		cashImpact = strikeNotional.Neg()
		shares = qty * 100
	}

	newCashBalance := acct.CashBalance.Add(cashImpact)
	if newCashBalance.IsNegative() {
		return Event{}, fmt.Errorf("%w: settling %s would bring cash balance to %s", apperr.ErrInsufficientCash, symbol, newCashBalance.String())
	}

	delete(acct.Positions, symbol)
	acct.CashBalance = newCashBalance
	settleIntoStock(acct, pos.Asset.Underlying(), shares, pos.Asset.Strike(), e.now())

	return Event{Symbol: symbol, Kind: kind, IntrinsicValue: intrinsic, RealizedPnL: realized, CashImpact: cashImpact}, nil
}

// settleIntoStock opens or merges a stock position created by an
// exercise or assignment, at the strike price that settled it.
func settleIntoStock(acct *account.Account, underlying string, shares int64, strike decimal.Decimal, now time.Time) {
	stock, err := asset.NewStock(underlying)
	if err != nil {
		return
	}
	pos, ok := acct.Positions[underlying]
	if !ok {
		acct.Positions[underlying] = &account.Position{Asset: stock, Quantity: shares, AvgPrice: strike, CreatedAt: now}
		return
	}
	oldQty := decimal.NewFromInt(pos.Quantity)
	newQty := decimal.NewFromInt(shares)
	total := pos.Quantity + shares
	if total == 0 {
		delete(acct.Positions, underlying)
		return
	}
	if opposesSign(pos.Quantity, shares) {
		// Settlement closes into an existing opposite-sign stock
		// position rather than merging; realised P&L on that partial
		// close is folded into the position's existing RealizedPnL.
		qtyClosed := minInt64(abs64(pos.Quantity), abs64(shares))
		realized := strike.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(qtyClosed))
		if pos.Quantity < 0 {
			realized = realized.Neg()
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.Quantity = total
		if pos.Quantity == 0 {
			delete(acct.Positions, underlying)
		}
		return
	}
	weighted := pos.AvgPrice.Mul(oldQty.Abs()).Add(strike.Mul(newQty.Abs()))
	pos.AvgPrice = weighted.Div(decimal.NewFromInt(abs64(total)))
	pos.Quantity = total
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

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
