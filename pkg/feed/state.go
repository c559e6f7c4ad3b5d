package feed

import "github.com/uhyunpark/hftgate/pkg/stream"

// Tables is the latest-state replica kept from the feeds. It backs stream
// snapshots and the read-only REST queries.
type Tables struct {
	Balances   *stream.Table[Balance]
	Orders     *stream.Table[Order]
	Orderbooks *stream.Table[Orderbook]
	Prices     *stream.Table[PriceUpdate]
	Tickers    *stream.Table[TickerUpdate]
}

func NewTables() *Tables {
	return &Tables{
		Balances: stream.NewTable(
			func(b Balance) string { return b.WalletID },
			func(b Balance) string { return b.AssetID },
		),
		// only active orders are kept
		Orders: stream.NewTable(
			func(o Order) string { return o.WalletID },
			func(o Order) string { return o.ID },
		).WithDrop(func(o Order) bool { return !o.Active() }),
		Orderbooks: stream.NewTable(
			func(o Orderbook) string { return o.AssetPairID },
			func(Orderbook) string { return "" },
		),
		Prices: stream.NewTable[PriceUpdate](nil, func(p PriceUpdate) string { return p.AssetPairID }),
		Tickers: stream.NewTable[TickerUpdate](nil, func(t TickerUpdate) string { return t.AssetPairID }),
	}
}

// Declare adds every feed topic to eng with its table.
func (t *Tables) Declare(eng *stream.Engine) {
	eng.AddTopic(stream.TopicBalances, t.Balances)
	eng.AddTopic(stream.TopicOrders, t.Orders)
	eng.AddTopic(stream.TopicTrades, nil)
	eng.AddTopic(stream.TopicOrderbooks, t.Orderbooks)
	eng.AddTopic(stream.TopicPrices, t.Prices)
	eng.AddTopic(stream.TopicTickers, t.Tickers)
}
