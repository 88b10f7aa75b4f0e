// Package facade is the broker façade: the single entry point the REST
// surface and CLI tools call through. It owns per-account
// serialisation, composes the execution and expiration engines, and
// answers the portfolio/strategy/margin read queries.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/estimator"
	"github.com/scranton-trading/paperbroker/internal/execution"
	"github.com/scranton-trading/paperbroker/internal/expiration"
	"github.com/scranton-trading/paperbroker/internal/margin"
	"github.com/scranton-trading/paperbroker/internal/order"
	"github.com/scranton-trading/paperbroker/internal/quotesource"
	"github.com/scranton-trading/paperbroker/internal/strategy"
	"github.com/scranton-trading/paperbroker/internal/validate"
)

// Broker is the paper-trading broker façade.
type Broker struct {
	store  account.Store
	source quotesource.Source
	quotes *quotesource.BatchFetcher

	execEngine *execution.Engine
	expEngine  *expiration.Engine

	locks  *keyedMutex
	logger *logrus.Logger
}

// New wires a Broker from its collaborators. est prices every leg the
// execution engine fills; limits bounds contextual validation.
func New(store account.Store, source quotesource.Source, est estimator.Estimator, limits validate.Limits, logger *logrus.Logger) *Broker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	expEngine := expiration.New(store, source, logger)
	execEngine := execution.New(store, source, est, logger)
	execEngine.Limits = limits
	execEngine.ExpirationHook = expEngine.ProcessAccount

	return &Broker{
		store:      store,
		source:     source,
		quotes:     quotesource.NewBatchFetcher(source),
		execEngine: execEngine,
		expEngine:  expEngine,
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// CreateAccount opens a new account with a generated ID and the given
// starting balance, which becomes immutable once set.
func (b *Broker) CreateAccount(ctx context.Context, owner string, startingBalance decimal.Decimal) (*account.Account, error) {
	id := uuid.NewString()
	acct := account.New(id, owner, startingBalance, time.Now())
	if err := b.store.Save(ctx, acct); err != nil {
		return nil, fmt.Errorf("%w: creating account: %v", apperr.ErrPersistenceError, err)
	}
	return acct, nil
}

// GetAccount loads an account by ID.
func (b *Broker) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	return b.store.Load(ctx, accountID)
}

// ListAccountIDs returns every known account ID.
func (b *Broker) ListAccountIDs(ctx context.Context) ([]string, error) {
	return b.store.ListIDs(ctx)
}

// SubmitOrder serialises and runs one order against an account's live,
// persisted state.
func (b *Broker) SubmitOrder(ctx context.Context, accountID string, o order.MultiLegOrder) execution.Result {
	var result execution.Result
	b.locks.withLock(accountID, func() {
		result = b.execEngine.Submit(ctx, accountID, o)
	})
	return result
}

// SimulateOrder runs the exact same execution algorithm an order would
// take, against a throwaway in-memory copy of the account, and never
// persists. The caller gets back the fill/no-fill/failure decision and
// the would-be resulting account without committing it.
func (b *Broker) SimulateOrder(ctx context.Context, accountID string, o order.MultiLegOrder) execution.Result {
	var result execution.Result
	b.locks.withLock(accountID, func() {
		acct, err := b.store.Load(ctx, accountID)
		if err != nil {
			result = execution.Result{Outcome: execution.Failed, Err: fmt.Errorf("%w: loading account %s: %v", apperr.ErrPersistenceError, accountID, err)}
			return
		}
		sandbox := &memStore{acct: acct.Clone()}
		eng := execution.New(sandbox, b.source, b.execEngine.Estimator, b.logger)
		eng.Limits = b.execEngine.Limits
		eng.Now = b.execEngine.Now
		eng.ExpirationHook = b.execEngine.ExpirationHook
		result = eng.Submit(ctx, accountID, o)
	})
	return result
}

// ClosePosition is a convenience operation: it builds a market order
// that fully closes the named symbol's current position and submits it.
func (b *Broker) ClosePosition(ctx context.Context, accountID, symbol string) execution.Result {
	acct, err := b.store.Load(ctx, accountID)
	if err != nil {
		return execution.Result{Outcome: execution.Failed, Err: fmt.Errorf("%w: loading account %s: %v", apperr.ErrPersistenceError, accountID, err)}
	}
	pos, ok := acct.Positions[symbol]
	if !ok {
		return execution.Result{Outcome: execution.Failed, Err: fmt.Errorf("%w: no open position for %s", apperr.ErrInsufficientPosition, symbol)}
	}

	closingType := order.STC
	closingQty := -pos.Quantity
	if pos.Quantity < 0 {
		closingType = order.BTC
	}

	o := order.Single(uuid.NewString(), order.Leg{Asset: pos.Asset, Quantity: closingQty, Type: closingType}, order.Market, nil)
	return b.SubmitOrder(ctx, accountID, o)
}

// RunExpirations settles every position past expiration for one account.
func (b *Broker) RunExpirations(ctx context.Context, accountID string) (expiration.Result, error) {
	var result expiration.Result
	var err error
	b.locks.withLock(accountID, func() {
		result, err = b.expEngine.Run(ctx, accountID)
	})
	return result, err
}

// GetPositions returns the account's positions, each annotated with its
// latest mark and Greeks where a quote is available.
func (b *Broker) GetPositions(ctx context.Context, accountID string) ([]*account.Position, error) {
	acct, err := b.store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	positions := acct.PositionList()
	b.annotateMarks(ctx, positions)
	return positions, nil
}

// GetStrategies recognises the account's positions into composite
// structures.
func (b *Broker) GetStrategies(ctx context.Context, accountID string) ([]strategy.Strategy, error) {
	acct, err := b.store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return strategy.Recognise(acct.PositionList()), nil
}

// GetMaintenanceMargin recomputes the account's maintenance margin
// against live marks (rather than returning the cached value stamped
// at the last mutation, which may be stale).
func (b *Broker) GetMaintenanceMargin(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := b.store.Load(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	positions := acct.PositionList()
	prices := b.annotateMarks(ctx, positions)
	return margin.Calculate(positions, prices), nil
}

// PortfolioSummary is a supplemented read-model focused on valuation:
// cash plus the market value of every position, broken down per
// position, rather than GetAccountSummary's account-level aggregate
// with margin and equity headroom folded in.
type PortfolioSummary struct {
	AccountID      string
	CashBalance    decimal.Decimal
	PositionsValue decimal.Decimal
	TotalValue     decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Positions      []PositionValue
}

// PositionValue is one position's contribution to portfolio value.
type PositionValue struct {
	Symbol        string
	Quantity      int64
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// GetPortfolioValue is a supplemented operation returning the
// position-level valuation breakdown behind a portfolio's total value.
func (b *Broker) GetPortfolioValue(ctx context.Context, accountID string) (PortfolioSummary, error) {
	acct, err := b.store.Load(ctx, accountID)
	if err != nil {
		return PortfolioSummary{}, err
	}
	positions := acct.PositionList()
	b.annotateMarks(ctx, positions)

	breakdown := make([]PositionValue, 0, len(positions))
	positionsValue := decimal.Zero
	unrealized := decimal.Zero
	for _, p := range positions {
		mv := p.MarketValue()
		upnl := p.UnrealizedPnL()
		positionsValue = positionsValue.Add(mv)
		unrealized = unrealized.Add(upnl)
		breakdown = append(breakdown, PositionValue{
			Symbol:        p.Asset.Symbol(),
			Quantity:      p.Quantity,
			MarketValue:   mv,
			UnrealizedPnL: upnl,
		})
	}

	return PortfolioSummary{
		AccountID:      accountID,
		CashBalance:    acct.CashBalance,
		PositionsValue: positionsValue,
		TotalValue:     acct.CashBalance.Add(positionsValue),
		UnrealizedPnL:  unrealized,
		Positions:      breakdown,
	}, nil
}

// AccountSummary is a supplemented read-model for clients that want one
// call covering cash, equity, and margin headroom rather than composing
// several façade calls themselves.
type AccountSummary struct {
	AccountID          string
	CashBalance        decimal.Decimal
	PositionsValue     decimal.Decimal
	UnrealizedPnL      decimal.Decimal
	RealizedPnL        decimal.Decimal
	MaintenanceMargin  decimal.Decimal
	TotalEquity        decimal.Decimal
	ExcessLiquidity    decimal.Decimal
	PositionCount      int
}

// GetAccountSummary is a supplemented operation (not named directly in
// the distilled component list) aggregating the figures a portfolio
// dashboard needs in one read.
func (b *Broker) GetAccountSummary(ctx context.Context, accountID string) (AccountSummary, error) {
	acct, err := b.store.Load(ctx, accountID)
	if err != nil {
		return AccountSummary{}, err
	}
	positions := acct.PositionList()
	prices := b.annotateMarks(ctx, positions)
	margin := margin.Calculate(positions, prices)

	positionsValue := decimal.Zero
	unrealized := decimal.Zero
	realized := decimal.Zero
	for _, p := range positions {
		positionsValue = positionsValue.Add(p.MarketValue())
		unrealized = unrealized.Add(p.UnrealizedPnL())
		realized = realized.Add(p.RealizedPnL)
	}

	equity := acct.CashBalance.Add(positionsValue)
	return AccountSummary{
		AccountID:         accountID,
		CashBalance:       acct.CashBalance,
		PositionsValue:    positionsValue,
		UnrealizedPnL:     unrealized,
		RealizedPnL:       realized,
		MaintenanceMargin: margin,
		TotalEquity:       equity,
		ExcessLiquidity:   equity.Sub(margin),
		PositionCount:     len(positions),
	}, nil
}

// annotateMarks fetches the latest quote for each position's symbol and
// stamps CurrentPrice/Greeks onto it, returning the price map used for
// margin calculation. The map is keyed by both position symbols and (for
// options) their underlyings, since the naked-margin formula needs the
// underlying's own market price, not the option's. A symbol the source
// cannot quote is simply left unmarked — its AvgPrice is used as a
// conservative fallback by margin and UnrealizedPnL reports zero for it.
func (b *Broker) annotateMarks(ctx context.Context, positions []*account.Position) map[string]decimal.Decimal {
	symbols := make([]string, 0, len(positions))
	underlyings := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Asset.Symbol())
		if p.Asset.IsOption() {
			underlyings = append(underlyings, p.Asset.Underlying())
		}
	}

	quotes := b.quotes.FetchMany(ctx, symbols)
	underlyingQuotes := b.quotes.FetchMany(ctx, underlyings)

	prices := make(map[string]decimal.Decimal, len(positions)+len(underlyingQuotes))
	for symbol, q := range underlyingQuotes {
		if price, ok := q.Price(); ok {
			prices[symbol] = price
		}
	}
	for _, p := range positions {
		q, ok := quotes[p.Asset.Symbol()]
		if !ok {
			continue
		}
		price, ok := q.Price()
		if !ok {
			continue
		}
		cp := price
		p.CurrentPrice = &cp
		prices[p.Asset.Symbol()] = price

		if p.Asset.IsOption() {
			if q.UnderlyingPrice == nil {
				if u, ok := underlyingQuotes[p.Asset.Underlying()]; ok {
					if up, ok := u.Price(); ok {
						q.UnderlyingPrice = &up
					}
				}
			}
			withGreeks := q.WithGreeks(time.Now())
			p.Greeks = withGreeks.Greeks
		}
	}
	return prices
}

// memStore is a one-account in-memory Store used only by SimulateOrder
// so it can exercise the real execution engine without persisting.
type memStore struct {
	acct *account.Account
}

func (m *memStore) Load(_ context.Context, accountID string) (*account.Account, error) {
	if m.acct.ID != accountID {
		return nil, account.ErrNotFound
	}
	return m.acct.Clone(), nil
}

func (m *memStore) Save(_ context.Context, acct *account.Account) error {
	m.acct = acct.Clone()
	return nil
}

func (m *memStore) ListIDs(_ context.Context) ([]string, error) {
	return []string{m.acct.ID}, nil
}
