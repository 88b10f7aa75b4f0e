package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton-trading/paperbroker/internal/asset"
)

func TestUnrealizedPnL_Long(t *testing.T) {
	stk, err := asset.For("AAPL")
	require.NoError(t, err)
	cur := decimal.NewFromInt(160)
	p := Position{Asset: stk, Quantity: 100, AvgPrice: decimal.NewFromInt(150), CurrentPrice: &cur}
	assert.True(t, decimal.NewFromInt(1000).Equal(p.UnrealizedPnL()))
}

func TestUnrealizedPnL_Short(t *testing.T) {
	stk, err := asset.For("AAPL")
	require.NoError(t, err)
	cur := decimal.NewFromInt(140)
	p := Position{Asset: stk, Quantity: -100, AvgPrice: decimal.NewFromInt(150), CurrentPrice: &cur}
	assert.True(t, decimal.NewFromInt(1000).Equal(p.UnrealizedPnL()))
}

func TestClone_IsDeep(t *testing.T) {
	stk, _ := asset.For("AAPL")
	a := New("acct-1", "alice", decimal.NewFromInt(10000), time.Now())
	a.Positions["AAPL"] = &Position{Asset: stk, Quantity: 100, AvgPrice: decimal.NewFromInt(150)}

	clone := a.Clone()
	clone.Positions["AAPL"].Quantity = 999
	assert.Equal(t, int64(100), a.Positions["AAPL"].Quantity)
}

func TestPositionList_SortedBySymbol(t *testing.T) {
	a := New("acct-1", "alice", decimal.NewFromInt(10000), time.Now())
	zsym, _ := asset.For("ZYX")
	asym, _ := asset.For("AAPL")
	a.Positions["ZYX"] = &Position{Asset: zsym, Quantity: 1}
	a.Positions["AAPL"] = &Position{Asset: asym, Quantity: 1}

	list := a.PositionList()
	require.Len(t, list, 2)
	assert.Equal(t, "AAPL", list[0].Asset.Symbol())
	assert.Equal(t, "ZYX", list[1].Asset.Symbol())
}
