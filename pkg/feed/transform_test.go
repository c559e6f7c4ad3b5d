package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hftgate/pkg/stream"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMapOrder(t *testing.T) {
	o := MapOrder(OrderEntity{
		ID: "o1", WalletID: "w", AssetPairID: "BTCUSD", Type: "Limit", Side: "Buy",
		Status: StatusPartiallyMatched, Price: dec("100"), Volume: dec("2"), RemainingVolume: dec("0.5"),
	})
	assert.True(t, dec("1.5").Equal(o.FilledVolume))
	assert.True(t, dec("150").Equal(o.Cost))
	assert.True(t, o.Active())

	o.Status = StatusCancelled
	assert.False(t, o.Active())
}

func TestMapTradeFee(t *testing.T) {
	withFee := MapTrade(TradeEntity{ID: "t1", FeeAssetID: "USD", FeeSize: dec("0.1")})
	require.NotNil(t, withFee.Fee)
	assert.Equal(t, "USD", withFee.Fee.AssetID)

	assert.Nil(t, MapTrade(TradeEntity{ID: "t2"}).Fee)
}

func TestOrderPublicationsGroupByWallet(t *testing.T) {
	now := time.Now()
	pubs := OrderPublications([]OrderEntity{
		{ID: "1", WalletID: "b", CreatedAt: now},
		{ID: "2", WalletID: "a", CreatedAt: now},
		{ID: "3", WalletID: "b", CreatedAt: now},
	})
	require.Len(t, pubs, 2)
	assert.Equal(t, "b", pubs[0].Key)
	assert.Equal(t, stream.TopicOrders, pubs[0].Topic)
	orders := pubs[0].Payload.(OrderUpdate).Orders
	assert.Equal(t, "1", orders[0].ID)
	assert.Equal(t, "3", orders[1].ID)
	assert.Equal(t, "a", pubs[1].Key)
}

func TestTickerAndPricePublicationsAreKeyless(t *testing.T) {
	for _, p := range append(
		TickerPublications([]TickerEntity{{AssetPairID: "BTCUSD"}}),
		PricePublications([]PriceEntity{{AssetPairID: "BTCUSD"}})...,
	) {
		assert.Empty(t, p.Key)
	}
}

func TestOrderbookDepth(t *testing.T) {
	book := Orderbook{
		Bids: []PriceVolume{{Price: dec("3")}, {Price: dec("2")}, {Price: dec("1")}},
		Asks: []PriceVolume{{Price: dec("4")}},
	}
	d := book.Depth(2)
	assert.Len(t, d.Bids, 2)
	assert.Len(t, d.Asks, 1)
	assert.Len(t, book.Depth(0).Bids, 3)
}

func TestActiveOrdersTableDropsClosedOrders(t *testing.T) {
	tables := NewTables()
	tables.Orders.Apply(stream.Event{Payload: OrderUpdate{WalletID: "w", Orders: []Order{
		{ID: "1", WalletID: "w", Status: StatusPlaced},
		{ID: "2", WalletID: "w", Status: StatusPlaced},
	}}})
	tables.Orders.Apply(stream.Event{Payload: OrderUpdate{WalletID: "w", Orders: []Order{
		{ID: "1", WalletID: "w", Status: StatusMatched},
	}}})

	active := tables.Orders.List("w")
	require.Len(t, active, 1)
	assert.Equal(t, "2", active[0].ID)
}
