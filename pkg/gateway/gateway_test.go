package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hftgate/pkg/engine"
)

type stubEngine struct {
	mu     sync.Mutex
	resp   *engine.Response
	err    error
	limits []engine.LimitOrder
	market []engine.MarketOrder
	cancel []engine.CancelOrder
	masses []engine.MassCancel
}

func (s *stubEngine) reply() (*engine.Response, error) {
	if s.resp == nil {
		return nil, s.err
	}
	r := *s.resp
	return &r, s.err
}

func (s *stubEngine) PlaceLimitOrder(_ context.Context, o engine.LimitOrder) (*engine.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, o)
	return s.reply()
}

func (s *stubEngine) PlaceMarketOrder(_ context.Context, o engine.MarketOrder) (*engine.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = append(s.market, o)
	return s.reply()
}

func (s *stubEngine) CancelLimitOrder(_ context.Context, o engine.CancelOrder) (*engine.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = append(s.cancel, o)
	return s.reply()
}

func (s *stubEngine) MassCancelLimitOrders(_ context.Context, o engine.MassCancel) (*engine.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masses = append(s.masses, o)
	return s.reply()
}

type stubValidator struct {
	err error
}

func (v stubValidator) ValidateAssetPair(context.Context, string) error { return v.err }

func (v stubValidator) ValidateLimitOrder(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return v.err
}

func (v stubValidator) ValidateMarketOrder(context.Context, string, decimal.Decimal) error {
	return v.err
}

func limit() PlaceLimit {
	return PlaceLimit{
		Account:     "0xabc",
		AssetPairID: "BTCUSD",
		Side:        SideBuy,
		Price:       decimal.RequireFromString("50000.5"),
		Volume:      decimal.RequireFromString("0.25"),
	}
}

func TestSubmitLimitAccepted(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK, TransactionID: "tx-1"}}
	g := New(eng, stubValidator{})

	res := g.Submit(context.Background(), limit())
	require.True(t, res.OK())
	assert.Equal(t, "tx-1", res.OrderID)

	require.Len(t, eng.limits, 1)
	o := eng.limits[0]
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "BTCUSD", o.AssetPairID)
	assert.Equal(t, "0xabc", o.ClientID)
	assert.Equal(t, 50000.5, o.Price)
	assert.Equal(t, 0.25, o.Volume)
	assert.Equal(t, engine.Buy, o.OrderAction)
}

func TestSubmitGeneratesDistinctIDs(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK}}
	g := New(eng, nil)

	first := g.Submit(context.Background(), limit())
	second := g.Submit(context.Background(), limit())
	require.True(t, first.OK())
	require.True(t, second.OK())

	require.Len(t, eng.limits, 2)
	assert.NotEqual(t, eng.limits[0].ID, eng.limits[1].ID)
	// Without a transaction id the command id is the order id.
	assert.Equal(t, eng.limits[0].ID, first.OrderID)
	assert.Equal(t, eng.limits[1].ID, second.OrderID)
}

func TestSubmitUnavailable(t *testing.T) {
	cases := map[string]*stubEngine{
		"no response":     {},
		"transport error": {err: errors.New("connection refused")},
		"deadline":        {err: context.DeadlineExceeded},
	}
	for name, eng := range cases {
		t.Run(name, func(t *testing.T) {
			g := New(eng, stubValidator{})
			for _, cmd := range []Command{
				limit(),
				PlaceMarket{Account: "0xabc", AssetPairID: "BTCUSD", Side: SideSell, Volume: decimal.NewFromInt(1)},
				Cancel{Account: "0xabc", OrderID: "o-1"},
				MassCancel{Account: "0xabc"},
			} {
				res := g.Submit(context.Background(), cmd)
				require.False(t, res.OK())
				assert.Equal(t, CodeMeUnavailable, res.Err.Code)
				assert.Equal(t, KindEngineUnavailable, res.Err.Kind())
				assert.Equal(t, "ME not available", res.Err.Message)
			}
		})
	}
}

func TestSubmitEngineRejection(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusNotEnoughFunds, StatusReason: "need 10 USD"}}
	g := New(eng, stubValidator{})

	res := g.Submit(context.Background(), limit())
	require.False(t, res.OK())
	assert.Equal(t, CodeMeNotEnoughFunds, res.Err.Code)
	assert.Equal(t, KindEngineRejected, res.Err.Kind())
	assert.Contains(t, res.Err.Message, "need 10 USD")
	assert.Empty(t, res.OrderID)
}

func TestSubmitValidationStopsBeforeEngine(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK}}
	g := New(eng, stubValidator{err: InvalidField("price", "Price must be positive")})

	res := g.Submit(context.Background(), limit())
	require.False(t, res.OK())
	assert.Equal(t, KindValidationRejected, res.Err.Kind())
	assert.Equal(t, "price", res.Err.Field)
	assert.Empty(t, eng.limits)

	bad := limit()
	bad.Side = SideNone
	res = New(eng, nil).Submit(context.Background(), bad)
	require.False(t, res.OK())
	assert.Equal(t, "side", res.Err.Field)
	assert.Empty(t, eng.limits)
}

func TestSubmitValidatorFailureIsInternal(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK}}
	g := New(eng, stubValidator{err: errors.New("redis: connection refused")})

	res := g.Submit(context.Background(), limit())
	require.False(t, res.OK())
	assert.Equal(t, CodeRuntimeError, res.Err.Code)
	assert.Equal(t, KindInternal, res.Err.Kind())
	assert.Empty(t, eng.limits)
}

func TestSubmitMarketReturnsPrice(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK, Price: 49999.75}}
	g := New(eng, stubValidator{}, WithIDs(func() string { return "fixed-id" }))

	res := g.Submit(context.Background(), &PlaceMarket{
		Account:     "0xabc",
		AssetPairID: "BTCUSD",
		Side:        SideSell,
		Volume:      decimal.RequireFromString("-2"),
	})
	require.True(t, res.OK())
	assert.Equal(t, "fixed-id", res.OrderID)
	assert.True(t, decimal.RequireFromString("49999.75").Equal(res.Price))

	require.Len(t, eng.market, 1)
	assert.Equal(t, 2.0, eng.market[0].Volume)
	assert.Equal(t, engine.Sell, eng.market[0].OrderAction)
	assert.True(t, eng.market[0].Straight)
}

func TestSubmitCancels(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK, TransactionID: "ignored"}}
	g := New(eng, stubValidator{})

	res := g.Submit(context.Background(), Cancel{Account: "0xabc", OrderID: "o-1"})
	require.True(t, res.OK())
	assert.Empty(t, res.OrderID)
	require.Len(t, eng.cancel, 1)
	assert.Equal(t, "o-1", eng.cancel[0].LimitOrderID)

	res = g.Submit(context.Background(), Cancel{Account: "0xabc"})
	require.False(t, res.OK())
	assert.Equal(t, "orderId", res.Err.Field)

	res = g.Submit(context.Background(), Cancel{OrderID: "o-1"})
	require.False(t, res.OK())
	assert.Equal(t, "account", res.Err.Field)
	assert.Equal(t, KindValidationRejected, res.Err.Kind())
	require.Len(t, eng.cancel, 1)

	require.True(t, g.Submit(context.Background(), MassCancel{Account: "0xabc", AssetPairID: "BTCUSD", Side: SideSell}).OK())
	require.True(t, g.Submit(context.Background(), MassCancel{Account: "0xabc"}).OK())
	require.Len(t, eng.masses, 2)
	require.NotNil(t, eng.masses[0].IsBuy)
	assert.False(t, *eng.masses[0].IsBuy)
	assert.Nil(t, eng.masses[1].IsBuy)
	assert.Empty(t, eng.masses[1].AssetPairID)
}

func TestMassCancelValidatesAssetPair(t *testing.T) {
	eng := &stubEngine{resp: &engine.Response{Status: engine.StatusOK}}
	g := New(eng, stubValidator{err: NotFound("assetPairId", "Asset pair not found")})

	res := g.Submit(context.Background(), MassCancel{Account: "0xabc", AssetPairID: "NOPE"})
	require.False(t, res.OK())
	assert.Equal(t, CodeItemNotFound, res.Err.Code)
	assert.Empty(t, eng.masses)

	// Single cancels carry no asset pair and skip validation.
	require.True(t, g.Submit(context.Background(), Cancel{Account: "0xabc", OrderID: "o-9"}).OK())
}

func TestFromStatusIsTotal(t *testing.T) {
	seen := make(map[Code]engine.Status)
	for _, s := range engine.Statuses() {
		code, msg := FromStatus(s, "")
		if s == engine.StatusOK {
			assert.Equal(t, CodeSuccess, code)
			continue
		}
		assert.Equal(t, KindEngineRejected, code.Kind(), s.String())
		assert.NotEmpty(t, msg, s.String())
		prev, dup := seen[code]
		assert.False(t, dup, "%s and %s share %s", s, prev, code)
		seen[code] = s
	}

	code, msg := FromStatus(engine.Status(999), "")
	assert.Equal(t, CodeMeUnknownStatus, code)
	assert.Equal(t, KindEngineRejected, code.Kind())
	assert.Contains(t, msg, "999")
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"": SideNone, "buy": SideBuy, "Sell": SideSell} {
		got, ok := ParseSide(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseSide("long")
	assert.False(t, ok)
}
