// Package api is the HTTP surface of the exchange: routing, request
// validation, authentication and the error taxonomy. All domain behaviour
// lives in the engine and account packages.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/account"
	"github.com/openalpha/spotex/api/middleware"
	"github.com/openalpha/spotex/api/websocket"
	"github.com/openalpha/spotex/config"
	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/metrics"
)

// Server wires the router, middleware chain and handlers.
type Server struct {
	engine   *engine.Engine
	accounts *account.Service
	hub      *websocket.Hub
	auth     *middleware.Auth
	col      *metrics.Collector
	log      *zap.Logger

	httpServer *http.Server
}

// NewServer builds the server and its router.
func NewServer(cfg *config.Config, eng *engine.Engine, accounts *account.Service, hub *websocket.Hub, col *metrics.Collector, log *zap.Logger) *Server {
	s := &Server{
		engine:   eng,
		accounts: accounts,
		hub:      hub,
		col:      col,
		log:      log.Named("api"),
	}
	s.auth = middleware.NewAuth(accounts.UserByAPIKey, cfg.AuthCacheTTL, log)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, col)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.AccessLog(log))
	router.Use(middleware.Metrics(col))
	router.Use(limiter.Middleware)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Public surface.
	v1.HandleFunc("/public/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/public/instrument", s.handleListInstruments).Methods(http.MethodGet)
	v1.HandleFunc("/public/orderbook/{ticker}", s.handleOrderbook).Methods(http.MethodGet)
	v1.HandleFunc("/public/transactions/{ticker}", s.handleTape).Methods(http.MethodGet)

	// Authenticated surface.
	authed := v1.NewRoute().Subrouter()
	authed.Use(s.auth.Require)
	authed.HandleFunc("/balance", s.handleBalances).Methods(http.MethodGet)
	authed.HandleFunc("/order", s.handlePlaceOrder).Methods(http.MethodPost)
	authed.HandleFunc("/order", s.handleListOrders).Methods(http.MethodGet)
	authed.HandleFunc("/order/{order_id}", s.handleGetOrder).Methods(http.MethodGet)
	authed.HandleFunc("/order/{order_id}", s.handleCancelOrder).Methods(http.MethodDelete)

	// Admin surface.
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.auth.RequireAdmin)
	admin.HandleFunc("/balance/deposit", s.handleDeposit).Methods(http.MethodPost)
	admin.HandleFunc("/balance/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	admin.HandleFunc("/instrument", s.handleCreateInstrument).Methods(http.MethodPost)
	admin.HandleFunc("/instrument/{ticker}", s.handleDeleteInstrument).Methods(http.MethodDelete)
	admin.HandleFunc("/user/{user_id}", s.handleDeleteUser).Methods(http.MethodDelete)

	// Ops surface.
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", col.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
