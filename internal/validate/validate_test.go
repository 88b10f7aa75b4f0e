package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/order"
)

func mustAsset(t *testing.T, symbol string) asset.Asset {
	t.Helper()
	a, err := asset.For(symbol)
	require.NoError(t, err)
	return a
}

func TestStructural_EmptyLegs(t *testing.T) {
	err := Structural(order.MultiLegOrder{}, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestStructural_DuplicateAsset(t *testing.T) {
	a := mustAsset(t, "AAPL")
	o := order.MultiLegOrder{Legs: []order.Leg{
		{Asset: a, Quantity: 100, Type: order.Buy},
		{Asset: a, Quantity: -100, Type: order.Sell},
	}}
	err := Structural(o, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestStructural_SignMismatch(t *testing.T) {
	a := mustAsset(t, "AAPL")
	o := order.MultiLegOrder{Legs: []order.Leg{{Asset: a, Quantity: -100, Type: order.BTO}}}
	err := Structural(o, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestStructural_ExpiredOption(t *testing.T) {
	opt := mustAsset(t, "AAPL250221C00150000")
	o := order.MultiLegOrder{Legs: []order.Leg{{Asset: opt, Quantity: -1, Type: order.STO}}}
	err := Structural(o, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestStructural_Valid(t *testing.T) {
	a := mustAsset(t, "AAPL")
	o := order.MultiLegOrder{Legs: []order.Leg{{Asset: a, Quantity: 100, Type: order.Buy}}}
	assert.NoError(t, Structural(o, time.Now()))
}

func TestContextual_ClosingWithoutPosition(t *testing.T) {
	a := mustAsset(t, "AAPL")
	acct := account.New("acct-1", "alice", decimal.NewFromInt(10000), time.Now())
	o := order.MultiLegOrder{Legs: []order.Leg{{Asset: a, Quantity: -100, Type: order.STC}}}
	err := Contextual(acct, o, decimal.Zero, Limits{})
	assert.ErrorIs(t, err, apperr.ErrInsufficientPosition)
}

func TestContextual_InsufficientCash(t *testing.T) {
	a := mustAsset(t, "AAPL")
	acct := account.New("acct-1", "alice", decimal.NewFromInt(1000), time.Now())
	o := order.MultiLegOrder{Legs: []order.Leg{{Asset: a, Quantity: 100, Type: order.Buy}}}
	err := Contextual(acct, o, decimal.NewFromInt(-15000), Limits{})
	assert.ErrorIs(t, err, apperr.ErrInsufficientCash)
}

func TestContextual_SufficientPositionToClose(t *testing.T) {
	a := mustAsset(t, "AAPL")
	acct := account.New("acct-1", "alice", decimal.NewFromInt(10000), time.Now())
	acct.Positions["AAPL"] = &account.Position{Asset: a, Quantity: 100, AvgPrice: decimal.NewFromInt(150)}
	o := order.MultiLegOrder{Legs: []order.Leg{{Asset: a, Quantity: -100, Type: order.STC}}}
	assert.NoError(t, Contextual(acct, o, decimal.Zero, Limits{}))
}

func TestContextual_MaxPositionNotional(t *testing.T) {
	a := mustAsset(t, "AAPL")
	acct := account.New("acct-1", "alice", decimal.NewFromInt(10000), time.Now())
	cur := decimal.NewFromInt(150)
	acct.Positions["AAPL"] = &account.Position{Asset: a, Quantity: 100, AvgPrice: decimal.NewFromInt(150), CurrentPrice: &cur}
	limit := decimal.NewFromInt(1000)
	err := Contextual(acct, order.MultiLegOrder{Legs: []order.Leg{{Asset: a, Quantity: 0, Type: order.Buy}}}, decimal.Zero, Limits{MaxPositionNotional: &limit})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}
