package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/hftgate/pkg/engine"
	"github.com/uhyunpark/hftgate/pkg/metrics"
)

type Side int

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

func ParseSide(s string) (Side, bool) {
	switch s {
	case "", "none", "None":
		return SideNone, true
	case "buy", "Buy", "BUY":
		return SideBuy, true
	case "sell", "Sell", "SELL":
		return SideSell, true
	}
	return SideNone, false
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return "none"
}

func (s Side) action() engine.OrderAction {
	if s == SideSell {
		return engine.Sell
	}
	return engine.Buy
}

// Command is one of PlaceLimit, PlaceMarket, Cancel or MassCancel.
type Command interface {
	name() string
}

type PlaceLimit struct {
	Account     string
	AssetPairID string
	Side        Side
	Price       decimal.Decimal
	Volume      decimal.Decimal
}

type PlaceMarket struct {
	Account     string
	AssetPairID string
	Side        Side
	Volume      decimal.Decimal
}

type Cancel struct {
	Account string
	OrderID string
}

// MassCancel cancels the account's active orders, optionally narrowed to
// one asset pair and one side.
type MassCancel struct {
	Account     string
	AssetPairID string
	Side        Side
}

func (PlaceLimit) name() string  { return "limit" }
func (PlaceMarket) name() string { return "market" }
func (Cancel) name() string      { return "cancel" }
func (MassCancel) name() string  { return "mass_cancel" }

// Result is the engine's synchronous acknowledgment. Err is nil on success.
// OrderID is set for placements, Price only for market orders.
type Result struct {
	OrderID string
	Price   decimal.Decimal
	Err     *Error
}

func (r Result) OK() bool { return r.Err == nil }

func (r Result) Code() Code {
	if r.Err == nil {
		return CodeSuccess
	}
	return r.Err.Code
}

// Validator checks commands against market metadata before they reach the
// engine. Errors of type *Error are returned to the caller as-is.
type Validator interface {
	ValidateAssetPair(ctx context.Context, assetPairID string) error
	ValidateLimitOrder(ctx context.Context, assetPairID string, price, volume decimal.Decimal) error
	ValidateMarketOrder(ctx context.Context, assetPairID string, volume decimal.Decimal) error
}

type Option func(*Gateway)

func WithLogger(l *zap.SugaredLogger) Option { return func(g *Gateway) { g.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// WithTimeout bounds each engine call independently of the client's own
// deadline handling.
func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

// WithIDs replaces the identifier generator.
func WithIDs(f func() string) Option { return func(g *Gateway) { g.newID = f } }

type Gateway struct {
	engine    engine.Client
	validator Validator
	newID     func() string
	timeout   time.Duration
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// New builds a gateway. A nil validator skips validation.
func New(c engine.Client, v Validator, opts ...Option) *Gateway {
	g := &Gateway{
		engine:    c,
		validator: v,
		newID:     uuid.NewString,
		timeout:   10 * time.Second,
		log:       zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Submit sends one command to the matching engine and translates the
// acknowledgment. Every call uses a fresh identifier and is tried once.
func (g *Gateway) Submit(ctx context.Context, cmd Command) Result {
	id := g.newID()
	start := time.Now()
	res, account := g.submit(ctx, id, cmd)
	elapsed := time.Since(start)

	code := res.Code()
	g.metrics.Submission(cmd.name(), code.String(), elapsed)
	if res.OK() {
		g.log.Infow("order_command_accepted", "command", cmd.name(), "id", id,
			"account", account, "order_id", res.OrderID, "took", elapsed)
	} else {
		g.log.Infow("order_command_rejected", "command", cmd.name(), "id", id,
			"account", account, "code", int(code), "kind", code.Kind().String(),
			"message", res.Err.Message, "field", res.Err.Field)
	}
	return res
}

func (g *Gateway) submit(ctx context.Context, id string, cmd Command) (Result, string) {
	switch c := cmd.(type) {
	case PlaceLimit:
		return g.placeLimit(ctx, id, c), c.Account
	case *PlaceLimit:
		return g.placeLimit(ctx, id, *c), c.Account
	case PlaceMarket:
		return g.placeMarket(ctx, id, c), c.Account
	case *PlaceMarket:
		return g.placeMarket(ctx, id, *c), c.Account
	case Cancel:
		return g.cancel(ctx, id, c), c.Account
	case *Cancel:
		return g.cancel(ctx, id, *c), c.Account
	case MassCancel:
		return g.massCancel(ctx, id, c), c.Account
	case *MassCancel:
		return g.massCancel(ctx, id, *c), c.Account
	}
	return Result{Err: &Error{Code: CodeRuntimeError, Message: "unsupported command"}}, ""
}

func (g *Gateway) placeLimit(ctx context.Context, id string, c PlaceLimit) Result {
	if err := checkOrder(c.Account, c.AssetPairID, c.Side); err != nil {
		return Result{Err: err}
	}
	if err := g.validate(func(v Validator) error {
		return v.ValidateLimitOrder(ctx, c.AssetPairID, c.Price, c.Volume)
	}); err != nil {
		return Result{Err: err}
	}

	resp, err := g.call(ctx, func(ctx context.Context) (*engine.Response, error) {
		return g.engine.PlaceLimitOrder(ctx, engine.LimitOrder{
			ID:          id,
			AssetPairID: c.AssetPairID,
			ClientID:    c.Account,
			Price:       c.Price.InexactFloat64(),
			Volume:      c.Volume.Abs().InexactFloat64(),
			OrderAction: c.Side.action(),
		})
	})
	if err != nil {
		return Result{Err: err}
	}
	orderID := resp.TransactionID
	if orderID == "" {
		orderID = id
	}
	return Result{OrderID: orderID}
}

func (g *Gateway) placeMarket(ctx context.Context, id string, c PlaceMarket) Result {
	if err := checkOrder(c.Account, c.AssetPairID, c.Side); err != nil {
		return Result{Err: err}
	}
	if err := g.validate(func(v Validator) error {
		return v.ValidateMarketOrder(ctx, c.AssetPairID, c.Volume)
	}); err != nil {
		return Result{Err: err}
	}

	resp, err := g.call(ctx, func(ctx context.Context) (*engine.Response, error) {
		return g.engine.PlaceMarketOrder(ctx, engine.MarketOrder{
			ID:          id,
			AssetPairID: c.AssetPairID,
			ClientID:    c.Account,
			Volume:      c.Volume.Abs().InexactFloat64(),
			OrderAction: c.Side.action(),
			Straight:    true,
		})
	})
	if err != nil {
		return Result{Err: err}
	}
	return Result{OrderID: id, Price: decimal.NewFromFloat(resp.Price)}
}

func (g *Gateway) cancel(ctx context.Context, id string, c Cancel) Result {
	if c.Account == "" {
		return Result{Err: InvalidField("account", "Account is required")}
	}
	if c.OrderID == "" {
		return Result{Err: InvalidField("orderId", "Order id is required")}
	}
	_, err := g.call(ctx, func(ctx context.Context) (*engine.Response, error) {
		return g.engine.CancelLimitOrder(ctx, engine.CancelOrder{
			ID:           id,
			LimitOrderID: c.OrderID,
			ClientID:     c.Account,
		})
	})
	if err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func (g *Gateway) massCancel(ctx context.Context, id string, c MassCancel) Result {
	if c.Account == "" {
		return Result{Err: InvalidField("account", "Account is required")}
	}
	if c.AssetPairID != "" {
		if err := g.validate(func(v Validator) error {
			return v.ValidateAssetPair(ctx, c.AssetPairID)
		}); err != nil {
			return Result{Err: err}
		}
	}

	req := engine.MassCancel{ID: id, AssetPairID: c.AssetPairID, ClientID: c.Account}
	switch c.Side {
	case SideBuy:
		buy := true
		req.IsBuy = &buy
	case SideSell:
		buy := false
		req.IsBuy = &buy
	}
	_, err := g.call(ctx, func(ctx context.Context) (*engine.Response, error) {
		return g.engine.MassCancelLimitOrders(ctx, req)
	})
	if err != nil {
		return Result{Err: err}
	}
	return Result{}
}

func checkOrder(account, assetPairID string, side Side) *Error {
	switch {
	case account == "":
		return InvalidField("account", "Account is required")
	case assetPairID == "":
		return InvalidField("assetPairId", "Asset pair is required")
	case side != SideBuy && side != SideSell:
		return InvalidField("side", "Side must be buy or sell")
	}
	return nil
}

func (g *Gateway) validate(fn func(Validator) error) *Error {
	if g.validator == nil {
		return nil
	}
	err := fn(g.validator)
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	g.log.Warnw("order_validation_failed", "err", err)
	return &Error{Code: CodeRuntimeError, Message: "validation unavailable"}
}

// call runs one engine request. Any missing response, whatever the reason,
// is reported as the engine being unavailable.
func (g *Gateway) call(ctx context.Context, fn func(context.Context) (*engine.Response, error)) (*engine.Response, *Error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := fn(ctx)
	if err != nil || resp == nil {
		if err != nil {
			g.log.Warnw("engine_call_failed", "err", err)
		}
		return nil, unavailable()
	}
	code, msg := FromStatus(resp.Status, resp.StatusReason)
	if code != CodeSuccess {
		return nil, &Error{Code: code, Message: msg}
	}
	return resp, nil
}
