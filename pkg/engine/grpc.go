package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

const (
	serviceName = "matching.MatchingEngine"
	codecName   = "json"
)

// jsonCodec carries the engine's JSON documents over gRPC framing.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return sonic.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return sonic.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GRPCConfig struct {
	Target      string
	Timeout     time.Duration
	Logger      *zap.SugaredLogger
	DialOptions []grpc.DialOption
}

// GRPCClient bounds every call by Timeout. Transport failures and expired
// deadlines come back as a nil response together with a wrapped error, so
// callers can report the engine as unavailable.
type GRPCClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	log     *zap.SugaredLogger
}

func DialGRPC(cfg GRPCConfig) (*GRPCClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", cfg.Target, err)
	}
	return &GRPCClient{conn: conn, timeout: cfg.Timeout, log: cfg.Logger}, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) PlaceLimitOrder(ctx context.Context, o LimitOrder) (*Response, error) {
	return c.invoke(ctx, "PlaceLimitOrder", o.ID, o)
}

func (c *GRPCClient) PlaceMarketOrder(ctx context.Context, o MarketOrder) (*Response, error) {
	return c.invoke(ctx, "PlaceMarketOrder", o.ID, o)
}

func (c *GRPCClient) CancelLimitOrder(ctx context.Context, o CancelOrder) (*Response, error) {
	return c.invoke(ctx, "CancelLimitOrder", o.ID, o)
}

func (c *GRPCClient) MassCancelLimitOrders(ctx context.Context, o MassCancel) (*Response, error) {
	return c.invoke(ctx, "MassCancelLimitOrders", o.ID, o)
}

func (c *GRPCClient) invoke(ctx context.Context, method, id string, req any) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp Response
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, &resp); err != nil {
		c.log.Warnw("matching_engine_call_failed", "method", method, "id", id, "err", err)
		return nil, fmt.Errorf("engine: %s: %w", method, err)
	}
	return &resp, nil
}

var _ Client = (*GRPCClient)(nil)
