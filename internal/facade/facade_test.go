package facade

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/estimator"
	"github.com/scranton-trading/paperbroker/internal/execution"
	"github.com/scranton-trading/paperbroker/internal/order"
	"github.com/scranton-trading/paperbroker/internal/quotemock"
	"github.com/scranton-trading/paperbroker/internal/validate"
)

func newBroker(t *testing.T) (*Broker, *quotemock.Source) {
	t.Helper()
	store, err := account.NewJSONStore(t.TempDir())
	require.NoError(t, err)
	source := quotemock.New()
	b := New(store, source, estimator.Market{}, validate.Limits{}, nil)
	return b, source
}

func leg(t *testing.T, symbol string, qty int64, typ order.Type) order.Leg {
	t.Helper()
	a, err := asset.For(symbol)
	require.NoError(t, err)
	return order.Leg{Asset: a, Quantity: qty, Type: typ}
}

func TestCreateAccount_PersistsStartingBalance(t *testing.T) {
	b, _ := newBroker(t)
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)

	reloaded, err := b.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "50000", reloaded.StartingBalance.String())
}

func TestSimulateOrder_DoesNotPersist(t *testing.T) {
	b, source := newBroker(t)
	require.NoError(t, source.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)

	result := b.SimulateOrder(context.Background(), acct.ID, order.Single("o1", leg(t, "AAPL", 10, order.BTO), order.Market, nil))
	require.Equal(t, execution.Filled, result.Outcome)

	reloaded, err := b.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Positions)
}

func TestSubmitOrder_Persists(t *testing.T) {
	b, source := newBroker(t)
	require.NoError(t, source.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)

	result := b.SubmitOrder(context.Background(), acct.ID, order.Single("o1", leg(t, "AAPL", 10, order.BTO), order.Market, nil))
	require.Equal(t, execution.Filled, result.Outcome)

	reloaded, err := b.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Contains(t, reloaded.Positions, "AAPL")
}

func TestClosePosition_ClosesFullQuantity(t *testing.T) {
	b, source := newBroker(t)
	require.NoError(t, source.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)

	require.Equal(t, execution.Filled, b.SubmitOrder(context.Background(), acct.ID, order.Single("o1", leg(t, "AAPL", 10, order.BTO), order.Market, nil)).Outcome)

	result := b.ClosePosition(context.Background(), acct.ID, "AAPL")
	require.Equal(t, execution.Filled, result.Outcome)

	reloaded, err := b.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.NotContains(t, reloaded.Positions, "AAPL")
}

func TestGetAccountSummary_ReflectsPositions(t *testing.T) {
	b, source := newBroker(t)
	require.NoError(t, source.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)
	require.Equal(t, execution.Filled, b.SubmitOrder(context.Background(), acct.ID, order.Single("o1", leg(t, "AAPL", 10, order.BTO), order.Market, nil)).Outcome)

	summary, err := b.GetAccountSummary(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PositionCount)
	assert.True(t, summary.TotalEquity.GreaterThan(decimal.Zero))
}

func TestGetPortfolioValue_BreaksDownByPosition(t *testing.T) {
	b, source := newBroker(t)
	require.NoError(t, source.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)
	require.Equal(t, execution.Filled, b.SubmitOrder(context.Background(), acct.ID, order.Single("o1", leg(t, "AAPL", 10, order.BTO), order.Market, nil)).Outcome)

	summary, err := b.GetPortfolioValue(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)
	assert.Equal(t, "AAPL", summary.Positions[0].Symbol)
	assert.True(t, summary.PositionsValue.Equal(summary.Positions[0].MarketValue))
	assert.True(t, summary.TotalValue.Equal(summary.CashBalance.Add(summary.PositionsValue)))
}

func TestRunExpirations_SettlesExpiredOptions(t *testing.T) {
	b, source := newBroker(t)
	require.NoError(t, source.QuoteFixture("AAPL", 149.5, 150.5, 150.0))
	acct, err := b.CreateAccount(context.Background(), "alice", decimal.NewFromInt(50000))
	require.NoError(t, err)

	reloaded, err := b.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	a, err := asset.For("AAPL260101C00200000")
	require.NoError(t, err)
	reloaded.Positions[a.Symbol()] = &account.Position{Asset: a, Quantity: 1, AvgPrice: decimal.NewFromFloat(2.0), CreatedAt: time.Now()}

	b.expEngine.Now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, b.store.Save(context.Background(), reloaded))

	result, err := b.RunExpirations(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
}
