package market

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/uhyunpark/hftgate/pkg/util"
)

// Cache keeps a Registry filled from a Source and reloads it once the TTL
// has passed. Concurrent reloads collapse into one Source call. When a
// reload fails and pairs were loaded before, the stale set keeps serving.
type Cache struct {
	src   Source
	reg   *Registry
	ttl   time.Duration
	clock util.Clock
	log   *zap.SugaredLogger
	group singleflight.Group

	mu       sync.Mutex
	loadedAt time.Time
	loaded   bool
}

func NewCache(src Source, ttl time.Duration, clock util.Clock, logger *zap.SugaredLogger) *Cache {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{src: src, reg: NewRegistry(), ttl: ttl, clock: clock, log: logger}
}

func (c *Cache) Registry() *Registry { return c.reg }

func (c *Cache) Get(ctx context.Context, id string) (AssetPair, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return AssetPair{}, false, err
	}
	p, ok := c.reg.Get(id)
	return p, ok, nil
}

func (c *Cache) List(ctx context.Context) ([]AssetPair, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	return c.reg.List(), nil
}

// Refresh reloads unconditionally.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("load", func() (any, error) {
		pairs, err := c.src.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.reg.Replace(pairs)

		c.mu.Lock()
		c.loadedAt = c.clock.Now()
		c.loaded = true
		c.mu.Unlock()

		c.log.Debugw("asset_pairs_loaded", "count", len(pairs))
		return nil, nil
	})
	return err
}

func (c *Cache) ensure(ctx context.Context) error {
	c.mu.Lock()
	fresh := c.loaded && (c.ttl <= 0 || c.clock.Now().Sub(c.loadedAt) < c.ttl)
	stale := c.loaded
	c.mu.Unlock()
	if fresh {
		return nil
	}

	err := c.Refresh(ctx)
	if err != nil && stale {
		c.log.Warnw("asset_pairs_refresh_failed", "err", err)
		return nil
	}
	return err
}
