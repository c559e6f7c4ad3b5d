package p2p

import (
	"context"
)

// GossipSource is a feed.Source reading one gossipsub topic. Every message
// is delivered as a batch of one document.
type GossipSource struct {
	node  *Node
	topic string
}

func NewGossipSource(node *Node, topic string) *GossipSource {
	return &GossipSource{node: node, topic: topic}
}

func (s *GossipSource) Name() string { return "gossip:" + s.topic }

func (s *GossipSource) SubscribeToChanges(ctx context.Context, onBatch func([][]byte)) error {
	t, err := s.node.topic(s.topic)
	if err != nil {
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Cancel()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		onBatch([][]byte{msg.Data})
	}
}
