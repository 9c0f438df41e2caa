package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/openalpha/spotex/api/middleware"
	apitypes "github.com/openalpha/spotex/api/types"
	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/types"
)

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", types.ErrValidation)
	}
	return apitypes.Validate(dst)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req apitypes.RegisterRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.accounts.Register(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.UserResponse{
		ID:     u.ID,
		Name:   u.Name,
		Role:   u.Role.String(),
		APIKey: u.APIKey,
	})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.accounts.ListInstruments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]apitypes.InstrumentResponse, 0, len(instruments))
	for _, in := range instruments {
		out = append(out, apitypes.InstrumentResponse{Name: in.Name, Ticker: in.Ticker})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	snap, err := s.engine.Orderbook(r.Context(), ticker, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTape(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	trades, err := s.engine.Tape(r.Context(), ticker, queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]apitypes.TradeResponse, 0, len(trades))
	for _, tr := range trades {
		out = append(out, apitypes.NewTradeResponse(tr))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFrom(r.Context())
	balances, err := s.accounts.Balances(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFrom(r.Context())

	var req apitypes.OrderRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	// The validator's omitempty treats a present zero as absent, so the
	// explicit-but-invalid price is checked by hand.
	if req.Price != nil && *req.Price <= 0 {
		s.writeError(w, r, fmt.Errorf("price must be positive: %w", types.ErrValidation))
		return
	}

	side, err := types.ParseSide(req.Direction)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%s: %w", err.Error(), types.ErrValidation))
		return
	}

	placeReq := engine.PlaceRequest{
		Ticker: req.Ticker,
		Side:   side,
		Type:   types.OrderTypeMarket,
		Qty:    req.Qty,
	}
	if req.Price != nil {
		placeReq.Type = types.OrderTypeLimit
		placeReq.Price = *req.Price
	}

	o, err := s.engine.PlaceOrder(r.Context(), user.ID, placeReq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.PlaceOrderResponse{Success: true, OrderID: o.ID})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFrom(r.Context())
	orders, err := s.engine.OrdersForUser(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]apitypes.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, apitypes.NewOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFrom(r.Context())
	orderID, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		s.writeError(w, r, types.ErrOrderNotFound)
		return
	}

	o, err := s.engine.OrderForUser(r.Context(), user.ID, orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.NewOrderResponse(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFrom(r.Context())
	orderID, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		s.writeError(w, r, types.ErrOrderNotFound)
		return
	}

	if _, err := s.engine.CancelOrder(r.Context(), user.ID, orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.OKResponse{Success: true})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req apitypes.BalanceChangeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.Deposit(r.Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.OKResponse{Success: true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req apitypes.BalanceChangeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.Withdraw(r.Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.OKResponse{Success: true})
}

func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req apitypes.InstrumentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.accounts.CreateInstrument(r.Context(), req.Name, req.Ticker); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.OKResponse{Success: true})
}

func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	if err := s.accounts.DeleteInstrument(r.Context(), ticker); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.OKResponse{Success: true})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		s.writeError(w, r, types.ErrUserNotFound)
		return
	}

	deleted, err := s.accounts.DeleteUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.auth.Evict(deleted.APIKey)
	writeJSON(w, http.StatusOK, apitypes.UserResponse{
		ID:     deleted.ID,
		Name:   deleted.Name,
		Role:   deleted.Role.String(),
		APIKey: deleted.APIKey,
	})
}
