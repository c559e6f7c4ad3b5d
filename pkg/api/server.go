package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hftgate/params"
	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/gateway"
	"github.com/uhyunpark/hftgate/pkg/market"
	"github.com/uhyunpark/hftgate/pkg/metrics"
	"github.com/uhyunpark/hftgate/pkg/storage"
	"github.com/uhyunpark/hftgate/pkg/stream"
)

type Submitter interface {
	Submit(ctx context.Context, cmd gateway.Command) gateway.Result
}

type AssetPairs interface {
	List(ctx context.Context) ([]market.AssetPair, error)
	Get(ctx context.Context, id string) (market.AssetPair, bool, error)
}

type RequestValidator interface {
	ValidateAssetPair(ctx context.Context, id string) error
	ValidateOrdersRequest(ctx context.Context, id string, offset, take int) error
}

type History interface {
	Order(wallet, orderID string) (feed.Order, bool, error)
	ClosedOrders(wallet, assetPairID string, offset, take int) ([]feed.Order, error)
	Trades(wallet string, q storage.TradeQuery) ([]feed.Trade, error)
	OrderTrades(wallet, orderID string) ([]feed.Trade, error)
}

type Authenticator interface {
	Verify(token string) (string, error)
}

// Deps are the collaborators behind the request surface. History and Auth
// may be nil: history queries then answer with empty lists, and a nil Auth
// requires auth to be disabled in the config.
type Deps struct {
	Streams   *stream.Engine
	Tables    *feed.Tables
	Orders    Submitter
	Pairs     AssetPairs
	Validator RequestValidator
	History   History
	Auth      Authenticator
	Metrics   *metrics.Metrics
	Logger    *zap.SugaredLogger
}

// Server handles REST requests and websocket streams
type Server struct {
	Deps
	cfg    params.API
	noAuth bool
	router *mux.Router
}

func NewServer(cfg *params.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		Deps:   deps,
		cfg:    cfg.API,
		noAuth: cfg.Auth.Disabled,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// public market data
	api.HandleFunc("/assetpairs", s.handleGetAssetPairs).Methods("GET")
	api.HandleFunc("/assetpairs/{assetPairId}", s.handleGetAssetPair).Methods("GET")
	api.HandleFunc("/orderbooks", s.handleGetOrderbooks).Methods("GET")
	api.HandleFunc("/tickers", s.handleGetTickers).Methods("GET")
	api.HandleFunc("/prices", s.handleGetPrices).Methods("GET")

	// account
	api.HandleFunc("/balances", s.private(s.handleGetBalances)).Methods("GET")
	api.HandleFunc("/orders/active", s.private(s.handleGetActiveOrders)).Methods("GET")
	api.HandleFunc("/orders/closed", s.private(s.handleGetClosedOrders)).Methods("GET")
	api.HandleFunc("/orders/{orderId}", s.private(s.handleGetOrder)).Methods("GET")
	api.HandleFunc("/trades", s.private(s.handleGetTrades)).Methods("GET")
	api.HandleFunc("/trades/order/{orderId}", s.private(s.handleGetOrderTrades)).Methods("GET")

	// order commands
	api.HandleFunc("/orders/limit", s.private(s.handlePlaceLimitOrder)).Methods("POST")
	api.HandleFunc("/orders/market", s.private(s.handlePlaceMarketOrder)).Methods("POST")
	api.HandleFunc("/orders", s.private(s.handleMassCancel)).Methods("DELETE")
	api.HandleFunc("/orders/{orderId}", s.private(s.handleCancelOrder)).Methods("DELETE")

	// streams
	ws := s.router.PathPrefix("/ws").Subrouter()
	ws.HandleFunc("/prices", s.handleStream(stream.TopicPrices, streamPublic)).Methods("GET")
	ws.HandleFunc("/tickers", s.handleStream(stream.TopicTickers, streamPublic)).Methods("GET")
	ws.HandleFunc("/orderbooks", s.handleStream(stream.TopicOrderbooks, streamByPair)).Methods("GET")
	ws.HandleFunc("/balances", s.private(s.handleStream(stream.TopicBalances, streamByAccount))).Methods("GET")
	ws.HandleFunc("/orders", s.private(s.handleStream(stream.TopicOrders, streamByAccount))).Methods("GET")
	ws.HandleFunc("/trades", s.private(s.handleStream(stream.TopicTrades, streamByAccount))).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.Metrics != nil {
		s.router.Handle("/metrics", s.Metrics.Handler()).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", headerAccount},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves on the configured address until ctx is done, then shuts down.
// Open streams observe ctx through their request context.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infow("api_listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, Response{Payload: payload})
}

func respondError(w http.ResponseWriter, err *gateway.Error) {
	writeJSON(w, httpStatus(err), ErrorResponse{Error: ErrorBody{
		Code:    int(err.Code),
		Message: err.Message,
		Field:   err.Field,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// httpStatus is the only place order error kinds meet HTTP.
func httpStatus(err *gateway.Error) int {
	if err.Field == fieldAuthorization {
		return http.StatusUnauthorized
	}
	switch err.Kind() {
	case gateway.KindValidationRejected:
		if err.Code == gateway.CodeItemNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case gateway.KindEngineRejected:
		return http.StatusBadRequest
	case gateway.KindEngineUnavailable:
		return http.StatusServiceUnavailable
	case gateway.KindSuccess:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// asError converts collaborator failures into the response taxonomy.
func asError(err error) *gateway.Error {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return &gateway.Error{Code: gateway.CodeRuntimeError, Message: "Internal error"}
}
