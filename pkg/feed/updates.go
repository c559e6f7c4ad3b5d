package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wire models pushed to clients. Routing fields that the client already
// knows (its own wallet) are kept out of the JSON.

type Balance struct {
	WalletID  string          `json:"-"`
	AssetID   string          `json:"assetId"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Timestamp time.Time       `json:"timestamp"`
}

type BalanceUpdate struct {
	WalletID string    `json:"-"`
	Balances []Balance `json:"balances"`
}

func (u BalanceUpdate) Rows() []Balance { return u.Balances }

type Order struct {
	ID              string          `json:"id"`
	WalletID        string          `json:"-"`
	AssetPairID     string          `json:"assetPairId"`
	Type            string          `json:"type"`
	Side            string          `json:"side"`
	Status          string          `json:"status"`
	Price           decimal.Decimal `json:"price"`
	Volume          decimal.Decimal `json:"volume"`
	FilledVolume    decimal.Decimal `json:"filledVolume"`
	RemainingVolume decimal.Decimal `json:"remainingVolume"`
	Cost            decimal.Decimal `json:"cost"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastTradeAt     *time.Time      `json:"lastTradeTimestamp,omitempty"`
}

// Active reports whether the order can still trade.
func (o Order) Active() bool {
	return o.Status == StatusPlaced || o.Status == StatusPartiallyMatched
}

const (
	StatusPlaced           = "Placed"
	StatusPartiallyMatched = "PartiallyMatched"
	StatusMatched          = "Matched"
	StatusCancelled        = "Cancelled"
	StatusRejected         = "Rejected"
	StatusReplaced         = "Replaced"
)

type OrderUpdate struct {
	WalletID string  `json:"-"`
	Orders   []Order `json:"orders"`
}

func (u OrderUpdate) Rows() []Order { return u.Orders }

type TradeFee struct {
	AssetID string          `json:"assetId"`
	Size    decimal.Decimal `json:"size"`
}

type Trade struct {
	ID           string          `json:"id"`
	WalletID     string          `json:"-"`
	AssetPairID  string          `json:"assetPairId"`
	OrderID      string          `json:"orderId"`
	Role         string          `json:"role"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	BaseVolume   decimal.Decimal `json:"baseVolume"`
	QuoteVolume  decimal.Decimal `json:"quoteVolume"`
	BaseAssetID  string          `json:"baseAssetId"`
	QuoteAssetID string          `json:"quoteAssetId"`
	Fee          *TradeFee       `json:"fee,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

type TradeUpdate struct {
	WalletID string  `json:"-"`
	Trades   []Trade `json:"trades"`
}

func (u TradeUpdate) Rows() []Trade { return u.Trades }

type PriceVolume struct {
	Price  decimal.Decimal `json:"p"`
	Volume decimal.Decimal `json:"v"`
}

type Orderbook struct {
	AssetPairID string        `json:"assetPairId"`
	Timestamp   time.Time     `json:"timestamp"`
	Bids        []PriceVolume `json:"bids"`
	Asks        []PriceVolume `json:"asks"`
}

// Depth returns a copy limited to the best n levels per side. n <= 0 keeps everything.
func (o Orderbook) Depth(n int) Orderbook {
	if n <= 0 {
		return o
	}
	out := o
	if len(out.Bids) > n {
		out.Bids = out.Bids[:n:n]
	}
	if len(out.Asks) > n {
		out.Asks = out.Asks[:n:n]
	}
	return out
}

type PriceUpdate struct {
	AssetPairID string          `json:"assetPairId"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	Timestamp   time.Time       `json:"timestamp"`
}

type TickerUpdate struct {
	AssetPairID string          `json:"assetPairId"`
	VolumeBase  decimal.Decimal `json:"volumeBase"`
	VolumeQuote decimal.Decimal `json:"volumeQuote"`
	PriceChange decimal.Decimal `json:"priceChange"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Timestamp   time.Time       `json:"timestamp"`
}
