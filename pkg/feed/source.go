package feed

import (
	"context"
	"errors"
)

var ErrSourceClosed = errors.New("feed: source closed")

// Source is an upstream change feed for one entity kind. SubscribeToChanges
// blocks, calling onBatch for every batch of raw documents in arrival order,
// and returns when ctx is done or the feed itself ends. Any return while ctx
// is still live means the feed is gone.
type Source interface {
	Name() string
	SubscribeToChanges(ctx context.Context, onBatch func(batch [][]byte)) error
}

// ChanSource is an in-process Source. Closing C terminates the feed.
type ChanSource struct {
	name string
	C    chan [][]byte
}

func NewChanSource(name string, size int) *ChanSource {
	return &ChanSource{name: name, C: make(chan [][]byte, size)}
}

func (s *ChanSource) Name() string { return s.name }

func (s *ChanSource) SubscribeToChanges(ctx context.Context, onBatch func([][]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-s.C:
			if !ok {
				return ErrSourceClosed
			}
			onBatch(batch)
		}
	}
}
