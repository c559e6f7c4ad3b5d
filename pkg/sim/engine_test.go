package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hftgate/pkg/engine"
	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/market"
	"github.com/uhyunpark/hftgate/pkg/stream"
	"github.com/uhyunpark/hftgate/pkg/util"
)

type recorder struct {
	mu   sync.Mutex
	docs map[string][][]byte
}

func (r *recorder) Publish(_ context.Context, topic string, doc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs == nil {
		r.docs = make(map[string][][]byte)
	}
	r.docs[topic] = append(r.docs[topic], doc)
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.docs = nil
	r.mu.Unlock()
}

func decodeAll[E any](t *testing.T, r *recorder, topic string) []E {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []E
	for _, raw := range r.docs[topic] {
		if raw[0] == '[' {
			var batch []E
			require.NoError(t, sonic.Unmarshal(raw, &batch))
			out = append(out, batch...)
			continue
		}
		var one E
		require.NoError(t, sonic.Unmarshal(raw, &one))
		out = append(out, one)
	}
	return out
}

var topics = Topics{
	Balances: "balances", Orders: "orders", Trades: "trades",
	Orderbooks: "orderbooks", Prices: "prices", Tickers: "tickers",
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newSim(t *testing.T, out Publisher) *Engine {
	t.Helper()
	reg := market.NewRegistry()
	require.NoError(t, reg.Register(market.AssetPair{
		ID: "BTCUSD", Name: "BTC/USD", BaseAssetID: "BTC", QuotingAssetID: "USD",
		Accuracy: 2, VolumeAccuracy: 8, MinVolume: d("0.0001"),
	}))
	require.NoError(t, reg.Register(market.AssetPair{
		ID: "OFF", BaseAssetID: "A", QuotingAssetID: "B", Accuracy: 2, VolumeAccuracy: 2, Disabled: true,
	}))
	return New(Config{
		Pairs:    reg,
		Out:      out,
		Topics:   topics,
		Deposits: map[string]decimal.Decimal{"BTC": d("10"), "USD": d("100000")},
		Clock:    util.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
}

func limit(id, wallet string, action engine.OrderAction, price, volume float64) engine.LimitOrder {
	return engine.LimitOrder{ID: id, AssetPairID: "BTCUSD", ClientID: wallet, Price: price, Volume: volume, OrderAction: action}
}

func place(t *testing.T, e *Engine, o engine.LimitOrder) *engine.Response {
	t.Helper()
	res, err := e.PlaceLimitOrder(context.Background(), o)
	require.NoError(t, err)
	return res
}

func holdingOf(e *Engine, wallet, asset string) holding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.ledger.get(wallet, asset)
}

func TestLimitOrdersCross(t *testing.T) {
	out := &recorder{}
	e := newSim(t, out)

	res := place(t, e, limit("s1", "maker", engine.Sell, 50000, 1))
	require.Equal(t, engine.StatusOK, res.Status)
	assert.Equal(t, "s1", res.TransactionID)
	assert.True(t, holdingOf(e, "maker", "BTC").Reserved.Equal(d("1")))

	out.reset()
	res = place(t, e, limit("b1", "taker", engine.Buy, 50100, 0.4))
	require.Equal(t, engine.StatusOK, res.Status)

	trades := decodeAll[feed.TradeEntity](t, out, "trades")
	require.Len(t, trades, 2)
	assert.Equal(t, "Taker", trades[0].Role)
	assert.Equal(t, "taker", trades[0].WalletID)
	assert.Equal(t, "Buy", trades[0].Side)
	assert.Equal(t, "Maker", trades[1].Role)
	assert.Equal(t, "s1", trades[1].OrderID)
	assert.True(t, trades[0].Price.Equal(d("50000")), "fills at the maker price")
	assert.True(t, trades[0].QuoteVolume.Equal(d("20000")))

	orders := decodeAll[feed.OrderEntity](t, out, "orders")
	byID := map[string]feed.OrderEntity{}
	for _, o := range orders {
		byID[o.ID] = o
	}
	assert.Equal(t, feed.StatusPartiallyMatched, byID["s1"].Status)
	assert.True(t, byID["s1"].RemainingVolume.Equal(d("0.6")))
	assert.NotNil(t, byID["s1"].LastMatchTime)
	assert.Equal(t, feed.StatusMatched, byID["b1"].Status)

	maker := holdingOf(e, "maker", "BTC")
	assert.True(t, maker.Balance.Equal(d("9.6")))
	assert.True(t, maker.Reserved.Equal(d("0.6")))
	assert.True(t, holdingOf(e, "maker", "USD").Balance.Equal(d("120000")))
	assert.True(t, holdingOf(e, "taker", "BTC").Balance.Equal(d("10.4")))
	assert.True(t, holdingOf(e, "taker", "USD").Balance.Equal(d("80000")))

	books := decodeAll[feed.OrderbookEntity](t, out, "orderbooks")
	require.Len(t, books, 1)
	assert.Empty(t, books[0].Bids)
	require.Len(t, books[0].Asks, 1)
	assert.True(t, books[0].Asks[0].Volume.Equal(d("0.6")))

	tickers := decodeAll[feed.TickerEntity](t, out, "tickers")
	require.Len(t, tickers, 1)
	assert.True(t, tickers[0].LastPrice.Equal(d("50000")))
	assert.True(t, tickers[0].VolumeBase.Equal(d("0.4")))
}

func TestPriceTimePriority(t *testing.T) {
	out := &recorder{}
	e := newSim(t, out)
	place(t, e, limit("a", "m1", engine.Sell, 101, 1))
	place(t, e, limit("b", "m2", engine.Sell, 100, 1))
	place(t, e, limit("c", "m3", engine.Sell, 100, 1))

	out.reset()
	place(t, e, limit("x", "t", engine.Buy, 101, 2.5))

	var makers []string
	for _, tr := range decodeAll[feed.TradeEntity](t, out, "trades") {
		if tr.Role == "Maker" {
			makers = append(makers, tr.OrderID)
		}
	}
	assert.Equal(t, []string{"b", "c", "a"}, makers)
}

func TestRejections(t *testing.T) {
	e := newSim(t, nil)
	place(t, e, limit("dup", "w", engine.Buy, 1, 1))

	cases := []struct {
		name string
		o    engine.LimitOrder
		want engine.Status
	}{
		{"duplicate id", limit("dup", "w", engine.Buy, 1, 1), engine.StatusDuplicate},
		{"missing id", limit("", "w", engine.Buy, 1, 1), engine.StatusBadRequest},
		{"unknown pair", engine.LimitOrder{ID: "u", AssetPairID: "NOPE", ClientID: "w", Price: 1, Volume: 1}, engine.StatusUnknownAsset},
		{"disabled pair", engine.LimitOrder{ID: "off", AssetPairID: "OFF", ClientID: "w", Price: 1, Volume: 1}, engine.StatusDisabledAsset},
		{"zero volume", limit("z", "w", engine.Buy, 1, 0), engine.StatusInvalidVolume},
		{"volume accuracy", limit("va", "w", engine.Buy, 1, 0.000000001), engine.StatusInvalidVolumeAccuracy},
		{"too small", limit("ts", "w", engine.Buy, 1, 0.00001), engine.StatusTooSmallVolume},
		{"zero price", limit("zp", "w", engine.Buy, 0, 1), engine.StatusInvalidPrice},
		{"price accuracy", limit("pa", "w", engine.Buy, 1.001, 1), engine.StatusInvalidPriceAccuracy},
		{"funds", limit("nf", "w", engine.Sell, 1, 11), engine.StatusNotEnoughFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, place(t, e, tc.o).Status)
		})
	}
}

func TestMarketOrder(t *testing.T) {
	e := newSim(t, nil)
	ctx := context.Background()
	place(t, e, limit("a1", "m", engine.Sell, 100, 1))
	place(t, e, limit("a2", "m", engine.Sell, 110, 1))

	res, err := e.PlaceMarketOrder(ctx, engine.MarketOrder{ID: "big", AssetPairID: "BTCUSD", ClientID: "t", Volume: 3, OrderAction: engine.Buy, Straight: true})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusNoLiquidity, res.Status)

	res, err = e.PlaceMarketOrder(ctx, engine.MarketOrder{ID: "mk", AssetPairID: "BTCUSD", ClientID: "t", Volume: 2, OrderAction: engine.Buy, Straight: true})
	require.NoError(t, err)
	require.Equal(t, engine.StatusOK, res.Status)
	assert.Equal(t, "mk", res.TransactionID)
	assert.InDelta(t, 105.0, res.Price, 1e-9)

	assert.True(t, holdingOf(e, "m", "BTC").Reserved.IsZero())
	assert.True(t, holdingOf(e, "t", "USD").Balance.Equal(d("99790")))
}

func TestCancel(t *testing.T) {
	out := &recorder{}
	e := newSim(t, out)
	ctx := context.Background()
	place(t, e, limit("o1", "w", engine.Buy, 100, 2))
	assert.True(t, holdingOf(e, "w", "USD").Reserved.Equal(d("200")))

	res, err := e.CancelLimitOrder(ctx, engine.CancelOrder{ID: "c0", LimitOrderID: "o1", ClientID: "other"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusNotFound, res.Status)

	out.reset()
	res, err = e.CancelLimitOrder(ctx, engine.CancelOrder{ID: "c1", LimitOrderID: "o1", ClientID: "w"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOK, res.Status)
	assert.True(t, holdingOf(e, "w", "USD").Reserved.IsZero())

	orders := decodeAll[feed.OrderEntity](t, out, "orders")
	require.Len(t, orders, 1)
	assert.Equal(t, feed.StatusCancelled, orders[0].Status)
	balances := decodeAll[feed.BalanceEntity](t, out, "balances")
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Reserved.IsZero())

	res, err = e.CancelLimitOrder(ctx, engine.CancelOrder{ID: "c2", LimitOrderID: "o1", ClientID: "w"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusNotFound, res.Status)
}

func TestMassCancelBySide(t *testing.T) {
	e := newSim(t, nil)
	ctx := context.Background()
	place(t, e, limit("b1", "w", engine.Buy, 90, 1))
	place(t, e, limit("b2", "w", engine.Buy, 91, 1))
	place(t, e, limit("s1", "w", engine.Sell, 120, 1))
	place(t, e, limit("x1", "other", engine.Buy, 92, 1))

	buy := true
	res, err := e.MassCancelLimitOrders(ctx, engine.MassCancel{ID: "m1", ClientID: "w", AssetPairID: "BTCUSD", IsBuy: &buy})
	require.NoError(t, err)
	require.Equal(t, engine.StatusOK, res.Status)

	var left []string
	for _, o := range e.book("BTCUSD").orders() {
		left = append(left, o.ID)
	}
	assert.ElementsMatch(t, []string{"s1", "x1"}, left)

	res, err = e.MassCancelLimitOrders(ctx, engine.MassCancel{ID: "m2", ClientID: "w", AssetPairID: "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusUnknownAsset, res.Status)

	res, err = e.MassCancelLimitOrders(ctx, engine.MassCancel{ID: "m3", ClientID: "w"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOK, res.Status)
	assert.Len(t, e.book("BTCUSD").orders(), 1)
}

func TestBookLevels(t *testing.T) {
	b := newBook()
	for i, p := range []string{"10", "12", "11", "12"} {
		b.rest(&restingOrder{ID: string(rune('a' + i)), Buy: true, Price: d(p), Remaining: d("1")})
	}
	b.rest(&restingOrder{ID: "s", Price: d("13"), Remaining: d("2")})

	bids := b.bids.levels(2)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(d("12")))
	assert.True(t, bids[0].Volume.Equal(d("2")))
	assert.True(t, bids[1].Price.Equal(d("11")))

	_, ok := b.cancel("b")
	require.True(t, ok)
	_, ok = b.cancel("d")
	require.True(t, ok)
	bid, ask := b.best()
	assert.True(t, bid.Equal(d("11")))
	assert.True(t, ask.Equal(d("13")))

	filled, cost := b.quote(false, d("5"), nil)
	assert.True(t, filled.Equal(d("2")))
	assert.True(t, cost.Equal(d("21")))
}

// chanPublisher hands documents to in-process feed sources.
type chanPublisher map[string]*feed.ChanSource

func (c chanPublisher) Publish(ctx context.Context, topic string, doc []byte) error {
	select {
	case c[topic].C <- [][]byte{doc}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestFeedsReachTables(t *testing.T) {
	srcs := chanPublisher{}
	for _, name := range []string{"balances", "orders", "trades", "orderbooks", "prices", "tickers"} {
		srcs[name] = feed.NewChanSource(name, 64)
	}
	streams := stream.NewEngine(stream.Config{BufferSize: 16, Shards: 2})
	defer streams.Close()
	tables := feed.NewTables()
	tables.Declare(streams)
	bridge := feed.NewBridge(streams, nil, nil).
		Route(feed.BalancesRoute(srcs["balances"])).
		Route(feed.OrdersRoute(srcs["orders"])).
		Route(feed.TradesRoute(srcs["trades"])).
		Route(feed.OrderbooksRoute(srcs["orderbooks"])).
		Route(feed.PricesRoute(srcs["prices"])).
		Route(feed.TickersRoute(srcs["tickers"]))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridge.Run(ctx) }()

	e := newSim(t, srcs)
	place(t, e, limit("s1", "maker", engine.Sell, 100, 1))
	place(t, e, limit("b1", "taker", engine.Buy, 99, 1))

	require.Eventually(t, func() bool {
		_, ok := tables.Orders.Get("taker", "b1")
		books := tables.Orderbooks.List("BTCUSD")
		return ok && len(books) == 1 && len(books[0].Bids) == 1 && len(books[0].Asks) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, tables.Orderbooks.List("BTCUSD")[0].Bids[0].Price.Equal(d("99")))

	require.Eventually(t, func() bool {
		prices := tables.Prices.List("")
		return len(prices) == 1 && prices[0].Bid.Equal(d("99")) && prices[0].Ask.Equal(d("100"))
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, b := range tables.Balances.List("maker") {
			if b.AssetID == "BTC" {
				return b.Available.Equal(d("9"))
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseDeposits(t *testing.T) {
	got, err := ParseDeposits([]string{"BTC:1.5", "USD:100"})
	require.NoError(t, err)
	assert.True(t, got["BTC"].Equal(d("1.5")))
	assert.Len(t, got, 2)

	for _, bad := range []string{"BTC", ":1", "BTC:x", "BTC:-1"} {
		_, err := ParseDeposits([]string{bad})
		assert.Error(t, err, bad)
	}
}
