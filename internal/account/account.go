// Package account holds the Account and Position data model: the book
// the execution and expiration engines mutate, and the persisted-state
// shape the account store serialises.
package account

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/quote"
)

// Position is one asset holding within an account. At most one Position
// exists per symbol in an Account at any time (same-side opens merge
// into it; opposite-side closes reduce it; it is removed at zero).
type Position struct {
	Asset       asset.Asset
	Quantity    int64 // signed; 0 means "closed, remove"
	AvgPrice    decimal.Decimal // always >= 0
	RealizedPnL decimal.Decimal
	CurrentPrice *decimal.Decimal
	Greeks      *quote.Greeks

	// CreatedAt is stamped when the position is first opened and
	// preserved across weighted-average merges in memory. It is not
	// persisted: a position loaded from the store carries the account's
	// UpdatedAt instead.
	CreatedAt time.Time
}

// Multiplier returns the position's share multiplier: 100 for options, 1
// for stock.
func (p Position) Multiplier() int64 { return int64(p.Asset.Multiplier()) }

// UnrealizedPnL computes (current - avg) * quantity * multiplier. The
// sign of Quantity already encodes long vs short, so this single formula
// is correct for both: a short position's negative quantity flips the
// sign of the price delta automatically.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if p.CurrentPrice == nil {
		return decimal.Zero
	}
	delta := p.CurrentPrice.Sub(p.AvgPrice)
	return delta.Mul(decimal.NewFromInt(p.Quantity)).Mul(decimal.NewFromInt(p.Multiplier()))
}

// MarketValue is the position's signed market value: current price *
// quantity * multiplier.
func (p Position) MarketValue() decimal.Decimal {
	if p.CurrentPrice == nil {
		return decimal.Zero
	}
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity)).Mul(decimal.NewFromInt(p.Multiplier()))
}

// IsLong/IsShort read the sign of Quantity.
func (p Position) IsLong() bool  { return p.Quantity > 0 }
func (p Position) IsShort() bool { return p.Quantity < 0 }

// Account is the unit the execution and expiration engines mutate and
// the store persists. It exclusively owns its positions; the Strategy
// recogniser holds references into Positions, never copies.
type Account struct {
	ID               string
	Owner            string
	StartingBalance  decimal.Decimal // immutable after creation
	CashBalance      decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Positions        map[string]*Position // keyed by asset symbol

	// MaintenanceMargin is a cache, recomputed whole-account after every
	// successful execution or expiration step (see internal/margin).
	MaintenanceMargin decimal.Decimal
}

// New constructs a fresh account with no positions.
func New(id, owner string, startingBalance decimal.Decimal, now time.Time) *Account {
	return &Account{
		ID:              id,
		Owner:           owner,
		StartingBalance: startingBalance,
		CashBalance:     startingBalance,
		CreatedAt:       now,
		UpdatedAt:       now,
		Positions:       make(map[string]*Position),
	}
}

// Clone performs a defensive deep copy, matching the teacher's
// clone-on-read/write discipline: no caller receives a pointer into the
// account store's live state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Positions = make(map[string]*Position, len(a.Positions))
	for symbol, pos := range a.Positions {
		p := *pos
		if pos.CurrentPrice != nil {
			cp := *pos.CurrentPrice
			p.CurrentPrice = &cp
		}
		if pos.Greeks != nil {
			g := *pos.Greeks
			p.Greeks = &g
		}
		out.Positions[symbol] = &p
	}
	return &out
}

// PositionList returns the account's positions as a slice, in a
// deterministic (symbol-sorted) order, for callers that need a stable
// iteration order (the recogniser, persistence encoding, tests).
func (a *Account) PositionList() []*Position {
	out := make([]*Position, 0, len(a.Positions))
	for _, p := range a.Positions {
		out = append(out, p)
	}
	sortPositionsBySymbol(out)
	return out
}

func sortPositionsBySymbol(positions []*Position) {
	for i := 1; i < len(positions); i++ {
		for j := i; j > 0 && positions[j-1].Asset.Symbol() > positions[j].Asset.Symbol(); j-- {
			positions[j-1], positions[j] = positions[j], positions[j-1]
		}
	}
}
