// Command engine-sim runs the development matching engine: the engine gRPC
// service on SIM_LISTEN and the change feeds over gossipsub. Point a gateway
// at it with FEED_TRANSPORT=gossip and GOSSIP_PEERS set to the logged
// multiaddr.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/uhyunpark/hftgate/params"
	"github.com/uhyunpark/hftgate/pkg/engine"
	"github.com/uhyunpark/hftgate/pkg/market"
	"github.com/uhyunpark/hftgate/pkg/p2p"
	"github.com/uhyunpark/hftgate/pkg/sim"
	"github.com/uhyunpark/hftgate/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := market.ParseStatic(cfg.Assets.Static)
	if err != nil {
		sugar.Fatalw("assetpairs_invalid", "err", err)
	}
	pairs := market.NewRegistry()
	loaded, _ := src.Load(ctx)
	pairs.Replace(loaded)

	deposits, err := sim.ParseDeposits(cfg.Sim.Deposits)
	if err != nil {
		sugar.Fatalw("deposits_invalid", "err", err)
	}

	node, err := p2p.NewNode(ctx, p2p.NodeConfig{ListenAddr: cfg.Sim.GossipListen, Logger: sugar.Named("p2p")})
	if err != nil {
		sugar.Fatalw("libp2p_init_failed", "err", err)
	}
	defer node.Close()
	for _, a := range node.Host().Addrs() {
		sugar.Infow("gossip_peer_addr", "addr", a.String()+"/p2p/"+node.Host().ID().String())
	}

	me := sim.New(sim.Config{
		Pairs: pairs,
		Out:   node,
		Topics: sim.Topics{
			Balances:   cfg.Feed.BalancesTopic,
			Orders:     cfg.Feed.OrdersTopic,
			Trades:     cfg.Feed.TradesTopic,
			Orderbooks: cfg.Feed.OrderbooksTopic,
			Prices:     cfg.Feed.PricesTopic,
			Tickers:    cfg.Feed.TickersTopic,
		},
		Deposits:       deposits,
		OrderbookDepth: cfg.Sim.Depth,
		Logger:         sugar.Named("sim"),
	})

	lis, err := net.Listen("tcp", cfg.Sim.Listen)
	if err != nil {
		sugar.Fatalw("listen_failed", "addr", cfg.Sim.Listen, "err", err)
	}
	srv := grpc.NewServer()
	engine.RegisterServer(srv, me)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	sugar.Infow("engine_sim_listening", "addr", cfg.Sim.Listen, "pairs", pairs.Count())
	if err := srv.Serve(lis); err != nil {
		sugar.Errorw("engine_sim_stopped", "err", err)
	}
}
