package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entities as published by the upstream replicas. Field names follow the
// upstream JSON documents.

type BalanceEntity struct {
	WalletID  string          `json:"walletId"`
	AssetID   string          `json:"assetId"`
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Timestamp time.Time       `json:"timestamp"`
}

type OrderEntity struct {
	ID              string          `json:"id"`
	WalletID        string          `json:"walletId"`
	AssetPairID     string          `json:"assetPairId"`
	Type            string          `json:"type"`   // Limit, Market
	Side            string          `json:"side"`   // Buy, Sell
	Status          string          `json:"status"` // Placed, PartiallyMatched, Matched, Cancelled, Rejected, Replaced
	Price           decimal.Decimal `json:"price"`
	Volume          decimal.Decimal `json:"volume"`
	RemainingVolume decimal.Decimal `json:"remainingVolume"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastMatchTime   *time.Time      `json:"lastMatchTime,omitempty"`
}

type TradeEntity struct {
	ID           string          `json:"id"`
	WalletID     string          `json:"walletId"`
	AssetPairID  string          `json:"assetPairId"`
	OrderID      string          `json:"orderId"`
	Role         string          `json:"role"` // Maker, Taker
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	BaseVolume   decimal.Decimal `json:"baseVolume"`
	QuoteVolume  decimal.Decimal `json:"quoteVolume"`
	BaseAssetID  string          `json:"baseAssetId"`
	QuoteAssetID string          `json:"quoteAssetId"`
	FeeAssetID   string          `json:"feeAssetId,omitempty"`
	FeeSize      decimal.Decimal `json:"feeSize"`
	Timestamp    time.Time       `json:"timestamp"`
}

type VolumePriceEntity struct {
	Price  decimal.Decimal `json:"p"`
	Volume decimal.Decimal `json:"v"`
}

type OrderbookEntity struct {
	AssetPairID string              `json:"assetPairId"`
	Timestamp   time.Time           `json:"timestamp"`
	Bids        []VolumePriceEntity `json:"bids"`
	Asks        []VolumePriceEntity `json:"asks"`
}

type PriceEntity struct {
	AssetPairID string          `json:"assetPairId"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	UpdatedAt   time.Time       `json:"updatedDt"`
}

type TickerEntity struct {
	AssetPairID string          `json:"assetPairId"`
	VolumeBase  decimal.Decimal `json:"volumeBase"`
	VolumeQuote decimal.Decimal `json:"volumeQuote"`
	PriceChange decimal.Decimal `json:"priceChange"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	UpdatedAt   time.Time       `json:"updatedDt"`
}
