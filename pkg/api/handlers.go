package api

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/gateway"
	"github.com/uhyunpark/hftgate/pkg/storage"
)

const (
	defaultTake  = 100
	maxBodyBytes = 1 << 16
)

// ==============================
// Market data
// ==============================

func (s *Server) handleGetAssetPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.Pairs.List(r.Context())
	if err != nil {
		s.Logger.Errorw("assetpairs_load_failed", "err", err)
		respondError(w, asError(err))
		return
	}
	respondJSON(w, http.StatusOK, pairs)
}

func (s *Server) handleGetAssetPair(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["assetPairId"]
	pair, ok, err := s.Pairs.Get(r.Context(), id)
	if err != nil {
		respondError(w, asError(err))
		return
	}
	if !ok {
		respondError(w, gateway.NotFound("assetPairId", "Asset pair not found"))
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (s *Server) handleGetOrderbooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := q.Get("assetPairId")
	depth, perr := intParam(r, "depth", 0)
	if perr != nil {
		respondError(w, perr)
		return
	}
	if depth < 0 {
		respondError(w, gateway.InvalidField("depth", "Depth must be greater or equal to 0"))
		return
	}
	if pair != "" {
		if err := s.Validator.ValidateAssetPair(r.Context(), pair); err != nil {
			respondError(w, asError(err))
			return
		}
	}

	books := s.Tables.Orderbooks.List(pair)
	for i := range books {
		books[i] = books[i].Depth(depth)
	}
	respondJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetTickers(w http.ResponseWriter, r *http.Request) {
	keep := pairFilter(r)
	respondJSON(w, http.StatusOK, filterRows(s.Tables.Tickers.List(""), keep, func(t feed.TickerUpdate) string { return t.AssetPairID }))
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	keep := pairFilter(r)
	respondJSON(w, http.StatusOK, filterRows(s.Tables.Prices.List(""), keep, func(p feed.PriceUpdate) string { return p.AssetPairID }))
}

// ==============================
// Account
// ==============================

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Tables.Balances.List(AccountFrom(r.Context())))
}

func (s *Server) handleGetActiveOrders(w http.ResponseWriter, r *http.Request) {
	pair, offset, take, perr := s.paging(r)
	if perr != nil {
		respondError(w, perr)
		return
	}

	orders := s.Tables.Orders.List(AccountFrom(r.Context()))
	orders = filterRows(orders, pairSet(pair), func(o feed.Order) string { return o.AssetPairID })
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	respondJSON(w, http.StatusOK, page(orders, offset, take))
}

func (s *Server) handleGetClosedOrders(w http.ResponseWriter, r *http.Request) {
	pair, offset, take, perr := s.paging(r)
	if perr != nil {
		respondError(w, perr)
		return
	}
	if s.History == nil {
		respondJSON(w, http.StatusOK, []feed.Order{})
		return
	}
	orders, err := s.History.ClosedOrders(AccountFrom(r.Context()), pair, offset, take)
	if err != nil {
		s.Logger.Errorw("history_query_failed", "query", "closed_orders", "err", err)
		respondError(w, asError(err))
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	account := AccountFrom(r.Context())
	id := mux.Vars(r)["orderId"]

	if o, ok := s.Tables.Orders.Get(account, id); ok {
		respondJSON(w, http.StatusOK, o)
		return
	}
	if s.History != nil {
		o, ok, err := s.History.Order(account, id)
		if err != nil {
			respondError(w, asError(err))
			return
		}
		if ok {
			respondJSON(w, http.StatusOK, o)
			return
		}
	}
	respondError(w, gateway.NotFound("orderId", "Order not found"))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	pair, offset, take, perr := s.paging(r)
	if perr != nil {
		respondError(w, perr)
		return
	}
	q := storage.TradeQuery{AssetPairID: pair, Offset: offset, Take: take}

	if raw := r.URL.Query().Get("side"); raw != "" {
		side, ok := gateway.ParseSide(raw)
		if !ok || side == gateway.SideNone {
			respondError(w, gateway.InvalidField("side", "Side must be buy or sell"))
			return
		}
		q.Side = feedSide(side)
	}
	var terr *gateway.Error
	if q.From, terr = timeParam(r, "from"); terr != nil {
		respondError(w, terr)
		return
	}
	if q.To, terr = timeParam(r, "to"); terr != nil {
		respondError(w, terr)
		return
	}

	if s.History == nil {
		respondJSON(w, http.StatusOK, []feed.Trade{})
		return
	}
	trades, err := s.History.Trades(AccountFrom(r.Context()), q)
	if err != nil {
		s.Logger.Errorw("history_query_failed", "query", "trades", "err", err)
		respondError(w, asError(err))
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

func (s *Server) handleGetOrderTrades(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		respondJSON(w, http.StatusOK, []feed.Trade{})
		return
	}
	trades, err := s.History.OrderTrades(AccountFrom(r.Context()), mux.Vars(r)["orderId"])
	if err != nil {
		s.Logger.Errorw("history_query_failed", "query", "order_trades", "err", err)
		respondError(w, asError(err))
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

// ==============================
// Order commands
// ==============================

func (s *Server) handlePlaceLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if perr := decodeBody(r, &req); perr != nil {
		respondError(w, perr)
		return
	}
	side, ok := gateway.ParseSide(req.Side)
	if !ok {
		respondError(w, gateway.InvalidField("side", "Side must be buy or sell"))
		return
	}

	res := s.Orders.Submit(r.Context(), gateway.PlaceLimit{
		Account:     AccountFrom(r.Context()),
		AssetPairID: req.AssetPairID,
		Side:        side,
		Price:       req.Price,
		Volume:      req.Volume,
	})
	if !res.OK() {
		respondError(w, res.Err)
		return
	}
	respondJSON(w, http.StatusOK, LimitOrderResponse{OrderID: res.OrderID})
}

func (s *Server) handlePlaceMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if perr := decodeBody(r, &req); perr != nil {
		respondError(w, perr)
		return
	}
	side, ok := gateway.ParseSide(req.Side)
	if !ok {
		respondError(w, gateway.InvalidField("side", "Side must be buy or sell"))
		return
	}

	res := s.Orders.Submit(r.Context(), gateway.PlaceMarket{
		Account:     AccountFrom(r.Context()),
		AssetPairID: req.AssetPairID,
		Side:        side,
		Volume:      req.Volume,
	})
	if !res.OK() {
		respondError(w, res.Err)
		return
	}
	respondJSON(w, http.StatusOK, MarketOrderResponse{OrderID: res.OrderID, Price: res.Price})
}

func (s *Server) handleMassCancel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side, ok := gateway.ParseSide(q.Get("side"))
	if !ok {
		respondError(w, gateway.InvalidField("side", "Side must be buy or sell"))
		return
	}
	res := s.Orders.Submit(r.Context(), gateway.MassCancel{
		Account:     AccountFrom(r.Context()),
		AssetPairID: q.Get("assetPairId"),
		Side:        side,
	})
	if !res.OK() {
		respondError(w, res.Err)
		return
	}
	respondJSON(w, http.StatusOK, true)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	res := s.Orders.Submit(r.Context(), gateway.Cancel{
		Account: AccountFrom(r.Context()),
		OrderID: mux.Vars(r)["orderId"],
	})
	if !res.OK() {
		respondError(w, res.Err)
		return
	}
	respondJSON(w, http.StatusOK, true)
}

// ==============================
// Helpers
// ==============================

func decodeBody(r *http.Request, v any) *gateway.Error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return gateway.InvalidField("body", "Failed to read request body")
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return gateway.InvalidField("body", "Invalid JSON body")
	}
	return nil
}

func (s *Server) paging(r *http.Request) (pair string, offset, take int, perr *gateway.Error) {
	pair = r.URL.Query().Get("assetPairId")
	if offset, perr = intParam(r, "offset", 0); perr != nil {
		return
	}
	if take, perr = intParam(r, "take", defaultTake); perr != nil {
		return
	}
	if err := s.Validator.ValidateOrdersRequest(r.Context(), pair, offset, take); err != nil {
		perr = asError(err)
	}
	return
}

func intParam(r *http.Request, name string, def int) (int, *gateway.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, gateway.InvalidField(name, name+" must be an integer")
	}
	return n, nil
}

// timeParam accepts RFC 3339 or unix milliseconds.
func timeParam(r *http.Request, name string) (time.Time, *gateway.Error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, gateway.InvalidField(name, name+" must be RFC 3339 or unix milliseconds")
	}
	return t, nil
}

// pairFilter reads assetPairIds as a comma list or repeated parameter.
func pairFilter(r *http.Request) map[string]struct{} {
	var ids []string
	for _, v := range r.URL.Query()["assetPairIds"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return pairSet(ids...)
}

func pairSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// filterRows keeps rows whose pair is in keep; an empty keep keeps all.
func filterRows[T any](rows []T, keep map[string]struct{}, pair func(T) string) []T {
	if len(keep) == 0 {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if _, ok := keep[pair(row)]; ok {
			out = append(out, row)
		}
	}
	return out
}

func page[T any](rows []T, offset, take int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if len(rows) > take {
		rows = rows[:take]
	}
	return rows
}

func feedSide(s gateway.Side) string {
	if s == gateway.SideSell {
		return "Sell"
	}
	return "Buy"
}
