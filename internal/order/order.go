// Package order defines the wire shape of orders: legs, order-type
// tags, and the multi-leg container every order — single- or multi-leg —
// is normalised into before it reaches the validator or execution engine.
package order

import (
	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/asset"
)

// Type tags both the direction and opening/closing intent of a leg.
type Type int

const (
	Buy Type = iota
	Sell
	BTO // buy-to-open
	STO // sell-to-open
	BTC // buy-to-close
	STC // sell-to-close
)

func (t Type) String() string {
	switch t {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case BTO:
		return "BTO"
	case STO:
		return "STO"
	case BTC:
		return "BTC"
	case STC:
		return "STC"
	default:
		return "UNKNOWN"
	}
}

// IsBuySide reports whether this tag represents a buy-direction leg
// (BUY, BTO, BTC) as opposed to a sell-direction leg (SELL, STO, STC).
func (t Type) IsBuySide() bool {
	return t == Buy || t == BTO || t == BTC
}

// IsOpening reports whether this tag opens a new position (BTO/STO) as
// opposed to closing one (BTC/STC). BUY/SELL are direction-only and are
// resolved to opening or closing by the execution engine based on
// whether an offsetting position exists.
func (t Type) IsOpening() bool { return t == BTO || t == STO }

// IsClosing reports whether this tag always closes (BTC/STC).
func (t Type) IsClosing() bool { return t == BTC || t == STC }

// Condition is the fill condition for a whole order.
type Condition int

const (
	Market Condition = iota
	Limit
	Stop
)

// Leg is one component of an order: exactly one asset, a signed
// quantity (positive = long/open-buy or close-short; negative =
// short/open-sell or close-long), its order-type tag, and optional
// per-leg limit/stop prices.
type Leg struct {
	Asset        asset.Asset
	Quantity     int64
	Type         Type
	LimitPrice   *decimal.Decimal
	StopPrice    *decimal.Decimal
}

// MultiLegOrder is a non-empty list of legs over distinct assets, a
// fill condition, and an optional net limit price.
type MultiLegOrder struct {
	ID         string
	Legs       []Leg
	Condition  Condition
	NetLimit   *decimal.Decimal
}

// Single builds a one-leg MultiLegOrder, the normalised form every
// single-leg Order is a view over.
func Single(id string, leg Leg, condition Condition, limit *decimal.Decimal) MultiLegOrder {
	return MultiLegOrder{ID: id, Legs: []Leg{leg}, Condition: condition, NetLimit: limit}
}
