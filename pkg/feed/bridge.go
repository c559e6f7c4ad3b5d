package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/hftgate/pkg/metrics"
	"github.com/uhyunpark/hftgate/pkg/stream"
)

var ErrFeedTerminated = errors.New("feed: change feed terminated")

// Publisher is the part of the stream engine the bridge drives.
type Publisher interface {
	Publish(topic stream.Topic, key string, payload any) int
	CloseTopic(topic stream.Topic, cause error)
}

// Tap observes every publication after it has been handed to the engine.
type Tap interface {
	Observe(p Publication) error
}

// Route binds one source to one topic through a decoder and a pure transform.
type Route struct {
	topic  stream.Topic
	source Source
	handle func(batch [][]byte) (pubs []Publication, bad int)
}

func NewRoute[E any](topic stream.Topic, src Source, transform func([]E) []Publication) *Route {
	return &Route{
		topic:  topic,
		source: src,
		handle: func(batch [][]byte) ([]Publication, int) {
			var (
				items []E
				bad   int
			)
			for _, raw := range batch {
				decoded, err := decodeEntities[E](raw)
				if err != nil {
					bad++
					continue
				}
				items = append(items, decoded...)
			}
			if len(items) == 0 {
				return nil, bad
			}
			return transform(items), bad
		},
	}
}

func BalancesRoute(src Source) *Route {
	return NewRoute(stream.TopicBalances, src, BalancePublications)
}

func OrdersRoute(src Source) *Route {
	return NewRoute(stream.TopicOrders, src, OrderPublications)
}

func TradesRoute(src Source) *Route {
	return NewRoute(stream.TopicTrades, src, TradePublications)
}

func OrderbooksRoute(src Source) *Route {
	return NewRoute(stream.TopicOrderbooks, src, OrderbookPublications)
}

func PricesRoute(src Source) *Route {
	return NewRoute(stream.TopicPrices, src, PricePublications)
}

func TickersRoute(src Source) *Route {
	return NewRoute(stream.TopicTickers, src, TickerPublications)
}

// decodeEntities accepts either one JSON document or an array of them.
func decodeEntities[E any](raw []byte) ([]E, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("feed: empty document")
	}
	if raw[0] == '[' {
		var items []E
		if err := sonic.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var item E
	if err := sonic.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return []E{item}, nil
}

// Bridge turns upstream change batches into Publish calls.
type Bridge struct {
	pub     Publisher
	routes  []*Route
	taps    []Tap
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewBridge(pub Publisher, logger *zap.SugaredLogger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bridge{pub: pub, log: logger, metrics: m}
}

func (b *Bridge) Route(r *Route) *Bridge {
	b.routes = append(b.routes, r)
	return b
}

func (b *Bridge) Tap(t Tap) *Bridge {
	b.taps = append(b.taps, t)
	return b
}

// Run subscribes every route and blocks. It returns nil once ctx is done.
// If any feed ends first, every topic fed by the bridge is closed and the
// returned error wraps ErrFeedTerminated; the bridge cannot be restarted.
func (b *Bridge) Run(ctx context.Context) error {
	if len(b.routes) == 0 {
		<-ctx.Done()
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range b.routes {
		g.Go(func() error {
			b.log.Infow("feed_subscribed", "source", r.source.Name(), "topic", r.topic)
			err := r.source.SubscribeToChanges(gctx, func(batch [][]byte) { b.dispatch(r, batch) })
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = ErrSourceClosed
			}
			return fmt.Errorf("%w: %s: %w", ErrFeedTerminated, r.source.Name(), err)
		})
	}
	err := g.Wait()
	if err == nil {
		return nil
	}

	b.log.Errorw("feed_terminated", "err", err)
	for _, r := range b.routes {
		b.pub.CloseTopic(r.topic, err)
	}
	return err
}

func (b *Bridge) dispatch(r *Route, batch [][]byte) {
	b.metrics.FeedBatch(r.source.Name())
	pubs, bad := r.handle(batch)
	if bad > 0 {
		b.log.Warnw("feed_decode_failed", "source", r.source.Name(), "messages", bad, "batch", len(batch))
	}
	for _, p := range pubs {
		b.pub.Publish(p.Topic, p.Key, p.Payload)
		for _, t := range b.taps {
			if err := t.Observe(p); err != nil {
				b.log.Warnw("feed_tap_failed", "topic", p.Topic, "key", p.Key, "err", err)
			}
		}
	}
}
