package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/apperr"
	"github.com/scranton-trading/paperbroker/internal/asset"
	"github.com/scranton-trading/paperbroker/internal/execution"
	"github.com/scranton-trading/paperbroker/internal/order"
	"github.com/scranton-trading/paperbroker/internal/strategy"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps an engine error to an HTTP status using the
// apperr sentinels, falling back to 500 for anything unrecognised.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isAny(err, apperr.ErrInvalidSymbol, apperr.ErrValidationFailed):
		return http.StatusBadRequest
	case isAny(err, account.ErrNotFound):
		return http.StatusNotFound
	case isAny(err, apperr.ErrInsufficientCash, apperr.ErrInsufficientPosition, apperr.ErrOrderConditionNotMet):
		return http.StatusUnprocessableEntity
	case isAny(err, apperr.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// --- accounts ---

type createAccountRequest struct {
	Owner           string          `json:"owner"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	acct, err := s.broker.CreateAccount(r.Context(), req.Owner, req.StartingBalance)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toAccountView(acct))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.broker.ListAccountIDs(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"account_ids": ids})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.broker.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(acct))
}

func (s *Server) handleGetAccountSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.broker.GetAccountSummary(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.broker.GetPositions(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toPositionViews(positions))
}

func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := s.broker.GetStrategies(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toStrategyViews(strategies))
}

func (s *Server) handleGetMargin(w http.ResponseWriter, r *http.Request) {
	m, err := s.broker.GetMaintenanceMargin(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"maintenance_margin": m})
}

// --- orders ---

type legRequest struct {
	Symbol     string           `json:"symbol"`
	Quantity   int64            `json:"quantity"`
	Type       string           `json:"type"` // BUY|SELL|BTO|STO|BTC|STC
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
}

type orderRequest struct {
	ID        string           `json:"id"`
	Legs      []legRequest     `json:"legs"`
	Condition string           `json:"condition"` // market|limit|stop
	NetLimit  *decimal.Decimal `json:"net_limit,omitempty"`
}

func parseLegType(s string) (order.Type, error) {
	switch s {
	case "BUY":
		return order.Buy, nil
	case "SELL":
		return order.Sell, nil
	case "BTO":
		return order.BTO, nil
	case "STO":
		return order.STO, nil
	case "BTC":
		return order.BTC, nil
	case "STC":
		return order.STC, nil
	default:
		return 0, fmt.Errorf("unknown leg type %q", s)
	}
}

func parseCondition(s string) (order.Condition, error) {
	switch s {
	case "", "market":
		return order.Market, nil
	case "limit":
		return order.Limit, nil
	case "stop":
		return order.Stop, nil
	default:
		return 0, fmt.Errorf("unknown order condition %q", s)
	}
}

func (req orderRequest) toOrder() (order.MultiLegOrder, error) {
	if len(req.Legs) == 0 {
		return order.MultiLegOrder{}, fmt.Errorf("order must have at least one leg")
	}

	condition, err := parseCondition(req.Condition)
	if err != nil {
		return order.MultiLegOrder{}, err
	}

	legs := make([]order.Leg, 0, len(req.Legs))
	for i, lr := range req.Legs {
		a, err := asset.For(lr.Symbol)
		if err != nil {
			return order.MultiLegOrder{}, fmt.Errorf("leg %d: %w", i, err)
		}
		typ, err := parseLegType(lr.Type)
		if err != nil {
			return order.MultiLegOrder{}, fmt.Errorf("leg %d: %w", i, err)
		}
		legs = append(legs, order.Leg{
			Asset:      a,
			Quantity:   lr.Quantity,
			Type:       typ,
			LimitPrice: lr.LimitPrice,
			StopPrice:  lr.StopPrice,
		})
	}

	return order.MultiLegOrder{ID: req.ID, Legs: legs, Condition: condition, NetLimit: req.NetLimit}, nil
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, func(accountID string, o order.MultiLegOrder) execution.Result {
		return s.broker.SubmitOrder(r.Context(), accountID, o)
	})
}

func (s *Server) handleSimulateOrder(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, func(accountID string, o order.MultiLegOrder) execution.Result {
		return s.broker.SimulateOrder(r.Context(), accountID, o)
	})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, run func(accountID string, o order.MultiLegOrder) execution.Result) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := req.toOrder()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := run(chi.URLParam(r, "accountID"), o)
	writeOrderResult(w, result)
}

func writeOrderResult(w http.ResponseWriter, result execution.Result) {
	switch result.Outcome {
	case execution.Filled:
		writeJSON(w, http.StatusOK, toResultView(result))
	case execution.NotFilled:
		writeJSON(w, http.StatusOK, toResultView(result))
	case execution.Failed:
		status := http.StatusUnprocessableEntity
		if result.Err != nil {
			status = statusForError(result.Err)
		}
		writeJSON(w, status, toResultView(result))
	}
}

type resultView struct {
	Outcome   string          `json:"outcome"`
	CashDelta decimal.Decimal `json:"cash_delta,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func toResultView(result execution.Result) resultView {
	v := resultView{CashDelta: result.CashDelta, Reason: result.Reason}
	switch result.Outcome {
	case execution.Filled:
		v.Outcome = "filled"
	case execution.NotFilled:
		v.Outcome = "not_filled"
	case execution.Failed:
		v.Outcome = "failed"
	}
	if result.Err != nil {
		v.Error = result.Err.Error()
	}
	return v
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	result := s.broker.ClosePosition(r.Context(), chi.URLParam(r, "accountID"), chi.URLParam(r, "symbol"))
	writeOrderResult(w, result)
}

func (s *Server) handleRunExpirations(w http.ResponseWriter, r *http.Request) {
	result, err := s.broker.RunExpirations(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- view models ---

type positionView struct {
	Symbol       string           `json:"symbol"`
	Quantity     int64            `json:"quantity"`
	AvgPrice     decimal.Decimal  `json:"avg_price"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
	RealizedPnL  decimal.Decimal  `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarketValue  decimal.Decimal  `json:"market_value"`
}

func toPositionView(p *account.Position) positionView {
	return positionView{
		Symbol:        p.Asset.Symbol(),
		Quantity:      p.Quantity,
		AvgPrice:      p.AvgPrice,
		CurrentPrice:  p.CurrentPrice,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL(),
		MarketValue:   p.MarketValue(),
	}
}

func toPositionViews(positions []*account.Position) []positionView {
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	return views
}

type accountView struct {
	ID                string          `json:"id"`
	Owner             string          `json:"owner"`
	StartingBalance   decimal.Decimal `json:"starting_balance"`
	CashBalance       decimal.Decimal `json:"cash_balance"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin"`
	Positions         []positionView  `json:"positions"`
}

func toAccountView(acct *account.Account) accountView {
	return accountView{
		ID:                acct.ID,
		Owner:             acct.Owner,
		StartingBalance:   acct.StartingBalance,
		CashBalance:       acct.CashBalance,
		MaintenanceMargin: acct.MaintenanceMargin,
		Positions:         toPositionViews(acct.PositionList()),
	}
}

type strategyView struct {
	Kind        string   `json:"kind"`
	Underlying  string   `json:"underlying"`
	Symbols     []string `json:"symbols"`
	LongStrike  string   `json:"long_strike,omitempty"`
	ShortStrike string   `json:"short_strike,omitempty"`
	Width       string   `json:"width,omitempty"`
	Bullish     bool     `json:"bullish,omitempty"`
}

func toStrategyViews(strategies []strategy.Strategy) []strategyView {
	views := make([]strategyView, 0, len(strategies))
	for _, st := range strategies {
		symbols := make([]string, 0, len(st.Positions))
		for _, p := range st.Positions {
			symbols = append(symbols, p.Asset.Symbol())
		}
		views = append(views, strategyView{
			Kind:        st.Kind.String(),
			Underlying:  st.Underlying,
			Symbols:     symbols,
			LongStrike:  nonZeroDecimal(st.LongStrike),
			ShortStrike: nonZeroDecimal(st.ShortStrike),
			Width:       nonZeroDecimal(st.Width),
			Bullish:     st.Bullish,
		})
	}
	return views
}

func nonZeroDecimal(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
