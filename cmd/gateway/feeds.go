package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/hftgate/params"
	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/p2p"
)

// wireFeeds attaches one route per feed topic using the configured
// transport. The returned func releases the transport's connection.
func wireFeeds(ctx context.Context, cfg params.Config, b *feed.Bridge, log *zap.SugaredLogger) (func(), error) {
	f := cfg.Feed
	var source func(topic string) feed.Source
	release := func() {}

	switch f.Transport {
	case "", "none":
		log.Warn("feed_disabled - streams only carry what is published locally")
		return release, nil

	case "kafka":
		source = func(topic string) feed.Source {
			return feed.NewKafkaSource(feed.KafkaConfig{
				Brokers:   f.KafkaBrokers,
				GroupID:   f.KafkaGroupID,
				Topic:     topic,
				BatchSize: f.BatchSize,
				BatchWait: f.BatchWait,
				Logger:    log.Named("kafka"),
			})
		}

	case "amqp":
		conn, err := feed.DialAMQP(f.AMQPURL)
		if err != nil {
			return nil, err
		}
		release = func() { _ = conn.Close() }
		source = func(queue string) feed.Source {
			return feed.NewAMQPSource(conn, queue, f.BatchSize, log.Named("amqp"))
		}

	case "gossip":
		node, err := p2p.NewNode(ctx, p2p.NodeConfig{
			ListenAddr: f.GossipListen,
			Bootstrap:  f.GossipPeers,
			Logger:     log.Named("p2p"),
		})
		if err != nil {
			return nil, err
		}
		release = func() { _ = node.Close() }
		source = func(topic string) feed.Source { return p2p.NewGossipSource(node, topic) }

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownTransport, f.Transport)
	}

	b.Route(feed.BalancesRoute(source(f.BalancesTopic))).
		Route(feed.OrdersRoute(source(f.OrdersTopic))).
		Route(feed.TradesRoute(source(f.TradesTopic))).
		Route(feed.OrderbooksRoute(source(f.OrderbooksTopic))).
		Route(feed.PricesRoute(source(f.PricesTopic))).
		Route(feed.TickersRoute(source(f.TickersTopic)))
	return release, nil
}
