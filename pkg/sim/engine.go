// Package sim is an in-process matching engine for local development. It
// serves the engine command API, settles trades against a simple balance
// ledger and publishes the resulting state changes as change-feed documents,
// the same shape the gateway consumes from the real venue.
package sim

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/hftgate/pkg/engine"
	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/market"
	"github.com/uhyunpark/hftgate/pkg/util"
)

// Publisher sends one change document on a feed topic. p2p.Node implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, doc []byte) error
}

// Topics names the feed topic of each entity type.
type Topics struct {
	Balances   string
	Orders     string
	Trades     string
	Orderbooks string
	Prices     string
	Tickers    string
}

type Pairs interface {
	Get(id string) (market.AssetPair, bool)
}

type Config struct {
	Pairs  Pairs
	Out    Publisher
	Topics Topics
	// Deposits credited to every wallet on its first command.
	Deposits       map[string]decimal.Decimal
	OrderbookDepth int
	Clock          util.Clock
	Logger         *zap.SugaredLogger
}

type ticker struct {
	open, last, high, low   decimal.Decimal
	volumeBase, volumeQuote decimal.Decimal
}

// Engine implements engine.Client. Commands are applied one at a time.
type Engine struct {
	cfg Config
	log *zap.SugaredLogger

	mu      sync.Mutex
	books   map[string]*book
	orders  map[string]*feed.OrderEntity
	seen    map[string]struct{}
	ledger  *ledger
	tickers map[string]*ticker

	// pending changes of the current command
	touchedOrders []string
	touchedPairs  map[string]struct{}
	traded        map[string]struct{}
	trades        []feed.TradeEntity
}

var _ engine.Client = (*Engine)(nil)

func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.OrderbookDepth <= 0 {
		cfg.OrderbookDepth = 50
	}
	return &Engine{
		cfg:          cfg,
		log:          cfg.Logger,
		books:        make(map[string]*book),
		orders:       make(map[string]*feed.OrderEntity),
		seen:         make(map[string]struct{}),
		ledger:       newLedger(cfg.Deposits),
		tickers:      make(map[string]*ticker),
		touchedPairs: make(map[string]struct{}),
		traded:       make(map[string]struct{}),
	}
}

func reply(id string, st engine.Status, reason string) *engine.Response {
	return &engine.Response{ID: id, Status: st, StatusReason: reason}
}

// ==============================
// Commands
// ==============================

func (e *Engine) PlaceLimitOrder(ctx context.Context, o engine.LimitOrder) (*engine.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.flush()

	if res := e.admit(o.ID); res != nil {
		return res, nil
	}
	price := decimal.NewFromFloat(o.Price)
	volume := decimal.NewFromFloat(o.Volume)
	pair, res := e.checkOrder(o.ID, o.AssetPairID, volume)
	if res != nil {
		return res, nil
	}
	if !price.IsPositive() {
		return reply(o.ID, engine.StatusInvalidPrice, "price must be positive"), nil
	}
	if !price.Equal(price.Truncate(pair.Accuracy)) {
		return reply(o.ID, engine.StatusInvalidPriceAccuracy, ""), nil
	}

	buy := o.OrderAction == engine.Buy
	if e.ledger.available(o.ClientID, spendAsset(pair, buy)).LessThan(spendFor(buy, price, volume)) {
		return reply(o.ID, engine.StatusNotEnoughFunds, ""), nil
	}
	if o.CancelPreviousOrders {
		e.cancelWhere(o.ClientID, o.AssetPairID, &buy)
	}

	now := e.cfg.Clock.Now().UTC()
	taker := &restingOrder{ID: o.ID, Wallet: o.ClientID, Buy: buy, Price: price, Remaining: volume}
	e.orders[o.ID] = &feed.OrderEntity{
		ID:              o.ID,
		WalletID:        o.ClientID,
		AssetPairID:     o.AssetPairID,
		Type:            "Limit",
		Side:            sideName(buy),
		Price:           price,
		Volume:          volume,
		RemainingVolume: volume,
		CreatedAt:       now,
	}

	b := e.book(o.AssetPairID)
	e.settle(pair, taker, b.match(taker, &price), now)
	if taker.Remaining.IsPositive() {
		b.rest(taker)
		e.ledger.reserve(taker.Wallet, spendAsset(pair, buy), spendFor(buy, price, taker.Remaining))
	}
	e.updateOrder(o.ID, taker.Remaining, now)
	e.touchedPairs[o.AssetPairID] = struct{}{}

	return &engine.Response{ID: o.ID, Status: engine.StatusOK, TransactionID: o.ID}, nil
}

// PlaceMarketOrder fills completely against resting liquidity or is rejected.
func (e *Engine) PlaceMarketOrder(ctx context.Context, o engine.MarketOrder) (*engine.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.flush()

	if res := e.admit(o.ID); res != nil {
		return res, nil
	}
	volume := decimal.NewFromFloat(o.Volume)
	pair, res := e.checkOrder(o.ID, o.AssetPairID, volume)
	if res != nil {
		return res, nil
	}

	buy := o.OrderAction == engine.Buy
	b := e.book(o.AssetPairID)
	filled, cost := b.quote(buy, volume, nil)
	if filled.LessThan(volume) {
		return reply(o.ID, engine.StatusNoLiquidity, ""), nil
	}
	need := volume
	if buy {
		need = cost
	}
	if e.ledger.available(o.ClientID, spendAsset(pair, buy)).LessThan(need) {
		return reply(o.ID, engine.StatusNotEnoughFunds, ""), nil
	}

	now := e.cfg.Clock.Now().UTC()
	avg := cost.DivRound(volume, pair.Accuracy)
	taker := &restingOrder{ID: o.ID, Wallet: o.ClientID, Buy: buy, Remaining: volume}
	e.orders[o.ID] = &feed.OrderEntity{
		ID:              o.ID,
		WalletID:        o.ClientID,
		AssetPairID:     o.AssetPairID,
		Type:            "Market",
		Side:            sideName(buy),
		Price:           avg,
		Volume:          volume,
		RemainingVolume: volume,
		CreatedAt:       now,
	}
	e.settle(pair, taker, b.match(taker, nil), now)
	e.updateOrder(o.ID, taker.Remaining, now)
	e.touchedPairs[o.AssetPairID] = struct{}{}

	return &engine.Response{ID: o.ID, Status: engine.StatusOK, TransactionID: o.ID, Price: avg.InexactFloat64()}, nil
}

func (e *Engine) CancelLimitOrder(ctx context.Context, c engine.CancelOrder) (*engine.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.flush()

	if res := e.admit(c.ID); res != nil {
		return res, nil
	}
	o, ok := e.orders[c.LimitOrderID]
	if !ok || (c.ClientID != "" && o.WalletID != c.ClientID) {
		return reply(c.ID, engine.StatusNotFound, "order not found"), nil
	}
	if !e.cancel(o.AssetPairID, o.ID) {
		return reply(c.ID, engine.StatusNotFound, "order is not active"), nil
	}
	return &engine.Response{ID: c.ID, Status: engine.StatusOK}, nil
}

func (e *Engine) MassCancelLimitOrders(ctx context.Context, c engine.MassCancel) (*engine.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.flush()

	if res := e.admit(c.ID); res != nil {
		return res, nil
	}
	if c.AssetPairID != "" {
		if _, ok := e.cfg.Pairs.Get(c.AssetPairID); !ok {
			return reply(c.ID, engine.StatusUnknownAsset, ""), nil
		}
	}
	n := e.cancelWhere(c.ClientID, c.AssetPairID, c.IsBuy)
	e.log.Debugw("mass_cancel", "wallet", c.ClientID, "pair", c.AssetPairID, "cancelled", n)
	return &engine.Response{ID: c.ID, Status: engine.StatusOK}, nil
}

// ==============================
// Internals (caller holds mu)
// ==============================

func (e *Engine) admit(id string) *engine.Response {
	if id == "" {
		return reply(id, engine.StatusBadRequest, "missing id")
	}
	if _, dup := e.seen[id]; dup {
		return reply(id, engine.StatusDuplicate, "")
	}
	e.seen[id] = struct{}{}
	return nil
}

func (e *Engine) checkOrder(id, pairID string, volume decimal.Decimal) (market.AssetPair, *engine.Response) {
	pair, ok := e.cfg.Pairs.Get(pairID)
	switch {
	case !ok:
		return pair, reply(id, engine.StatusUnknownAsset, "")
	case pair.Disabled:
		return pair, reply(id, engine.StatusDisabledAsset, "")
	case !volume.IsPositive():
		return pair, reply(id, engine.StatusInvalidVolume, "")
	case !volume.Equal(volume.Truncate(pair.VolumeAccuracy)):
		return pair, reply(id, engine.StatusInvalidVolumeAccuracy, "")
	case volume.LessThan(pair.MinVolume):
		return pair, reply(id, engine.StatusTooSmallVolume, "")
	}
	return pair, nil
}

func (e *Engine) book(pairID string) *book {
	b, ok := e.books[pairID]
	if !ok {
		b = newBook()
		e.books[pairID] = b
	}
	return b
}

func spendAsset(p market.AssetPair, buy bool) string {
	if buy {
		return p.QuotingAssetID
	}
	return p.BaseAssetID
}

func spendFor(buy bool, price, volume decimal.Decimal) decimal.Decimal {
	if buy {
		return price.Mul(volume)
	}
	return volume
}

func sideName(buy bool) string {
	if buy {
		return "Buy"
	}
	return "Sell"
}

// settle moves funds for every fill and records both sides of each trade.
func (e *Engine) settle(pair market.AssetPair, taker *restingOrder, fills []fill, now time.Time) {
	if len(fills) == 0 {
		return
	}
	base, quote := pair.BaseAssetID, pair.QuotingAssetID
	for _, f := range fills {
		value := f.Price.Mul(f.Volume)
		maker := f.Maker
		if taker.Buy {
			e.ledger.credit(taker.Wallet, base, f.Volume)
			e.ledger.credit(taker.Wallet, quote, value.Neg())
			e.ledger.release(maker.Wallet, base, f.Volume)
			e.ledger.credit(maker.Wallet, base, f.Volume.Neg())
			e.ledger.credit(maker.Wallet, quote, value)
		} else {
			e.ledger.credit(taker.Wallet, base, f.Volume.Neg())
			e.ledger.credit(taker.Wallet, quote, value)
			e.ledger.release(maker.Wallet, quote, value)
			e.ledger.credit(maker.Wallet, quote, value.Neg())
			e.ledger.credit(maker.Wallet, base, f.Volume)
		}
		e.updateOrder(maker.ID, maker.Remaining, now)

		trade := feed.TradeEntity{
			AssetPairID:  pair.ID,
			Price:        f.Price,
			BaseVolume:   f.Volume,
			QuoteVolume:  value,
			BaseAssetID:  base,
			QuoteAssetID: quote,
			Timestamp:    now,
		}
		takerSide := trade
		takerSide.ID, takerSide.WalletID, takerSide.OrderID = uuid.NewString(), taker.Wallet, taker.ID
		takerSide.Role, takerSide.Side = "Taker", sideName(taker.Buy)
		makerSide := trade
		makerSide.ID, makerSide.WalletID, makerSide.OrderID = uuid.NewString(), maker.Wallet, maker.ID
		makerSide.Role, makerSide.Side = "Maker", sideName(maker.Buy)
		e.trades = append(e.trades, takerSide, makerSide)

		e.recordTicker(pair.ID, f.Price, f.Volume, value)
	}
}

func (e *Engine) updateOrder(id string, remaining decimal.Decimal, now time.Time) {
	o, ok := e.orders[id]
	if !ok {
		return
	}
	if remaining.LessThan(o.RemainingVolume) {
		t := now
		o.LastMatchTime = &t
	}
	o.RemainingVolume = remaining
	switch {
	case remaining.IsZero():
		o.Status = feed.StatusMatched
	case remaining.Equal(o.Volume):
		o.Status = feed.StatusPlaced
	default:
		o.Status = feed.StatusPartiallyMatched
	}
	e.touchedOrders = append(e.touchedOrders, id)
}

func (e *Engine) cancel(pairID, orderID string) bool {
	pair, ok := e.cfg.Pairs.Get(pairID)
	if !ok {
		return false
	}
	r, ok := e.book(pairID).cancel(orderID)
	if !ok {
		return false
	}
	e.ledger.release(r.Wallet, spendAsset(pair, r.Buy), spendFor(r.Buy, r.Price, r.Remaining))
	o := e.orders[orderID]
	o.Status = feed.StatusCancelled
	e.touchedOrders = append(e.touchedOrders, orderID)
	e.touchedPairs[pairID] = struct{}{}
	return true
}

// cancelWhere cancels the wallet's resting orders, optionally limited to one
// pair and one side, and reports how many were cancelled.
func (e *Engine) cancelWhere(wallet, pairID string, isBuy *bool) int {
	n := 0
	for id, b := range e.books {
		if pairID != "" && id != pairID {
			continue
		}
		for _, r := range b.orders() {
			if r.Wallet != wallet || (isBuy != nil && r.Buy != *isBuy) {
				continue
			}
			if e.cancel(id, r.ID) {
				n++
			}
		}
	}
	return n
}

func (e *Engine) recordTicker(pairID string, price, base, quote decimal.Decimal) {
	t, ok := e.tickers[pairID]
	if !ok {
		t = &ticker{open: price, high: price, low: price}
		e.tickers[pairID] = t
	}
	t.last = price
	t.high = decimal.Max(t.high, price)
	t.low = decimal.Min(t.low, price)
	t.volumeBase = t.volumeBase.Add(base)
	t.volumeQuote = t.volumeQuote.Add(quote)
	e.traded[pairID] = struct{}{}
}

// ==============================
// Change feeds
// ==============================

// flush publishes everything the current command changed, one document per
// topic, and resets the pending sets.
func (e *Engine) flush() {
	now := e.cfg.Clock.Now().UTC()

	if dirty := e.ledger.takeDirty(); len(dirty) > 0 {
		docs := make([]feed.BalanceEntity, 0, len(dirty))
		for k, h := range dirty {
			docs = append(docs, feed.BalanceEntity{WalletID: k.wallet, AssetID: k.asset, Balance: h.Balance, Reserved: h.Reserved, Timestamp: now})
		}
		sort.Slice(docs, func(i, j int) bool {
			if docs[i].WalletID != docs[j].WalletID {
				return docs[i].WalletID < docs[j].WalletID
			}
			return docs[i].AssetID < docs[j].AssetID
		})
		e.publish(e.cfg.Topics.Balances, docs)
	}

	if len(e.touchedOrders) > 0 {
		seen := make(map[string]struct{}, len(e.touchedOrders))
		docs := make([]feed.OrderEntity, 0, len(e.touchedOrders))
		// latest state only, in first-touched order
		for _, id := range e.touchedOrders {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			docs = append(docs, *e.orders[id])
		}
		e.publish(e.cfg.Topics.Orders, docs)
		e.touchedOrders = e.touchedOrders[:0]
	}

	if len(e.trades) > 0 {
		e.publish(e.cfg.Topics.Trades, e.trades)
		e.trades = nil
	}

	for pairID := range e.touchedPairs {
		b := e.book(pairID)
		e.publish(e.cfg.Topics.Orderbooks, feed.OrderbookEntity{
			AssetPairID: pairID,
			Timestamp:   now,
			Bids:        levelEntities(b.bids.levels(e.cfg.OrderbookDepth)),
			Asks:        levelEntities(b.asks.levels(e.cfg.OrderbookDepth)),
		})
		bid, ask := b.best()
		e.publish(e.cfg.Topics.Prices, feed.PriceEntity{AssetPairID: pairID, Bid: bid, Ask: ask, UpdatedAt: now})
	}
	clear(e.touchedPairs)

	for pairID := range e.traded {
		t := e.tickers[pairID]
		e.publish(e.cfg.Topics.Tickers, feed.TickerEntity{
			AssetPairID: pairID,
			VolumeBase:  t.volumeBase,
			VolumeQuote: t.volumeQuote,
			PriceChange: t.last.Sub(t.open),
			LastPrice:   t.last,
			High:        t.high,
			Low:         t.low,
			UpdatedAt:   now,
		})
	}
	clear(e.traded)
}

func levelEntities(in []level) []feed.VolumePriceEntity {
	out := make([]feed.VolumePriceEntity, len(in))
	for i, l := range in {
		out[i] = feed.VolumePriceEntity{Price: l.Price, Volume: l.Volume}
	}
	return out
}

func (e *Engine) publish(topic string, doc any) {
	if e.cfg.Out == nil || topic == "" {
		return
	}
	raw, err := sonic.Marshal(doc)
	if err != nil {
		e.log.Errorw("sim_encode_failed", "topic", topic, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.cfg.Out.Publish(ctx, topic, raw); err != nil {
		e.log.Warnw("sim_publish_failed", "topic", topic, "err", err)
	}
}
