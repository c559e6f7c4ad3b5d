package feed

import "github.com/uhyunpark/hftgate/pkg/stream"

// Publication is one Publish call produced from a change batch.
type Publication struct {
	Topic   stream.Topic
	Key     string
	Payload any
}

func MapBalance(e BalanceEntity) Balance {
	return Balance{
		WalletID:  e.WalletID,
		AssetID:   e.AssetID,
		Available: e.Balance.Sub(e.Reserved),
		Reserved:  e.Reserved,
		Timestamp: e.Timestamp,
	}
}

func MapOrder(e OrderEntity) Order {
	filled := e.Volume.Sub(e.RemainingVolume)
	return Order{
		ID:              e.ID,
		WalletID:        e.WalletID,
		AssetPairID:     e.AssetPairID,
		Type:            e.Type,
		Side:            e.Side,
		Status:          e.Status,
		Price:           e.Price,
		Volume:          e.Volume,
		FilledVolume:    filled,
		RemainingVolume: e.RemainingVolume,
		Cost:            filled.Mul(e.Price),
		CreatedAt:       e.CreatedAt,
		LastTradeAt:     e.LastMatchTime,
	}
}

func MapTrade(e TradeEntity) Trade {
	t := Trade{
		ID:           e.ID,
		WalletID:     e.WalletID,
		AssetPairID:  e.AssetPairID,
		OrderID:      e.OrderID,
		Role:         e.Role,
		Side:         e.Side,
		Price:        e.Price,
		BaseVolume:   e.BaseVolume,
		QuoteVolume:  e.QuoteVolume,
		BaseAssetID:  e.BaseAssetID,
		QuoteAssetID: e.QuoteAssetID,
		Timestamp:    e.Timestamp,
	}
	if e.FeeAssetID != "" {
		t.Fee = &TradeFee{AssetID: e.FeeAssetID, Size: e.FeeSize}
	}
	return t
}

func MapOrderbook(e OrderbookEntity) Orderbook {
	return Orderbook{
		AssetPairID: e.AssetPairID,
		Timestamp:   e.Timestamp,
		Bids:        mapLevels(e.Bids),
		Asks:        mapLevels(e.Asks),
	}
}

func mapLevels(in []VolumePriceEntity) []PriceVolume {
	out := make([]PriceVolume, len(in))
	for i, l := range in {
		out[i] = PriceVolume{Price: l.Price, Volume: l.Volume.Abs()}
	}
	return out
}

func MapPrice(e PriceEntity) PriceUpdate {
	return PriceUpdate{AssetPairID: e.AssetPairID, Bid: e.Bid, Ask: e.Ask, Timestamp: e.UpdatedAt}
}

func MapTicker(e TickerEntity) TickerUpdate {
	return TickerUpdate{
		AssetPairID: e.AssetPairID,
		VolumeBase:  e.VolumeBase,
		VolumeQuote: e.VolumeQuote,
		PriceChange: e.PriceChange,
		LastPrice:   e.LastPrice,
		High:        e.High,
		Low:         e.Low,
		Timestamp:   e.UpdatedAt,
	}
}

// groupByWallet keeps the first-seen order of wallets and the batch order
// within each wallet.
func groupByWallet[T any](items []T, wallet func(T) string) ([]string, map[string][]T) {
	var order []string
	groups := make(map[string][]T)
	for _, it := range items {
		w := wallet(it)
		if _, ok := groups[w]; !ok {
			order = append(order, w)
		}
		groups[w] = append(groups[w], it)
	}
	return order, groups
}

func BalancePublications(batch []BalanceEntity) []Publication {
	rows := make([]Balance, len(batch))
	for i, e := range batch {
		rows[i] = MapBalance(e)
	}
	wallets, groups := groupByWallet(rows, func(b Balance) string { return b.WalletID })
	out := make([]Publication, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, Publication{
			Topic:   stream.TopicBalances,
			Key:     w,
			Payload: BalanceUpdate{WalletID: w, Balances: groups[w]},
		})
	}
	return out
}

func OrderPublications(batch []OrderEntity) []Publication {
	rows := make([]Order, len(batch))
	for i, e := range batch {
		rows[i] = MapOrder(e)
	}
	wallets, groups := groupByWallet(rows, func(o Order) string { return o.WalletID })
	out := make([]Publication, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, Publication{
			Topic:   stream.TopicOrders,
			Key:     w,
			Payload: OrderUpdate{WalletID: w, Orders: groups[w]},
		})
	}
	return out
}

func TradePublications(batch []TradeEntity) []Publication {
	rows := make([]Trade, len(batch))
	for i, e := range batch {
		rows[i] = MapTrade(e)
	}
	wallets, groups := groupByWallet(rows, func(t Trade) string { return t.WalletID })
	out := make([]Publication, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, Publication{
			Topic:   stream.TopicTrades,
			Key:     w,
			Payload: TradeUpdate{WalletID: w, Trades: groups[w]},
		})
	}
	return out
}

func OrderbookPublications(batch []OrderbookEntity) []Publication {
	out := make([]Publication, len(batch))
	for i, e := range batch {
		out[i] = Publication{Topic: stream.TopicOrderbooks, Key: e.AssetPairID, Payload: MapOrderbook(e)}
	}
	return out
}

func PricePublications(batch []PriceEntity) []Publication {
	out := make([]Publication, len(batch))
	for i, e := range batch {
		out[i] = Publication{Topic: stream.TopicPrices, Payload: MapPrice(e)}
	}
	return out
}

func TickerPublications(batch []TickerEntity) []Publication {
	out := make([]Publication, len(batch))
	for i, e := range batch {
		out[i] = Publication{Topic: stream.TopicTickers, Payload: MapTicker(e)}
	}
	return out
}
