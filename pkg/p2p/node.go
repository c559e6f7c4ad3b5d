package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

type NodeConfig struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

// Node is a libp2p host running gossipsub. Change-feed producers publish
// documents on per-source topics; gateways subscribe through GossipSource.
type Node struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewNode(ctx context.Context, cfg NodeConfig) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	n := &Node{h: h, ps: ps, log: cfg.Logger, topics: make(map[string]*pubsub.Topic)}
	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			n.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}
	n.log.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return n, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Node) Host() host.Host { return n.h }

func (n *Node) Close() error { return n.h.Close() }

// topic joins name once; pubsub rejects a second Join of the same topic.
func (n *Node) topic(name string) (*pubsub.Topic, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.topics[name]; ok {
		return t, nil
	}
	t, err := n.ps.Join(name)
	if err != nil {
		return nil, err
	}
	n.topics[name] = t
	return t, nil
}

// Publish sends one change document (a JSON object or array) on topic.
func (n *Node) Publish(ctx context.Context, topic string, doc []byte) error {
	t, err := n.topic(topic)
	if err != nil {
		return err
	}
	return t.Publish(ctx, doc)
}
