package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/uhyunpark/hftgate/pkg/metrics"
)

type Config struct {
	BufferSize int
	Shards     int
	Logger     *zap.SugaredLogger
	Metrics    *metrics.Metrics
}

// Engine owns one hub per declared topic.
type Engine struct {
	bufSize int
	nShards int
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	nextID  atomic.Uint64

	mu     sync.RWMutex
	topics map[Topic]*hub
}

// hub holds the subscriptions of one topic. Keyed subscriptions live in
// shards chosen by key hash; keyless ones in a separate broadcast set.
//
// Lock order is shards by index, then bmu. closed and cause are written only
// while holding every lock, so reading them under any single one is safe.
type hub struct {
	topic  Topic
	state  State
	shards []*shard

	bmu   sync.RWMutex
	bcast map[uint64]*Subscription

	closed bool
	cause  error
}

type shard struct {
	mu    sync.RWMutex
	byKey map[string]map[uint64]*Subscription
}

func NewEngine(cfg Config) *Engine {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		bufSize: cfg.BufferSize,
		nShards: cfg.Shards,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		topics:  make(map[Topic]*hub),
	}
}

// AddTopic declares a topic with an optional state view. Declaring an
// existing topic is a no-op.
func (e *Engine) AddTopic(topic Topic, st State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.topics[topic]; ok {
		return
	}
	h := &hub{
		topic:  topic,
		state:  st,
		shards: make([]*shard, e.nShards),
		bcast:  make(map[uint64]*Subscription),
	}
	for i := range h.shards {
		h.shards[i] = &shard{byKey: make(map[string]map[uint64]*Subscription)}
	}
	e.topics[topic] = h
}

// State returns the state view attached to topic, if any.
func (e *Engine) State(topic Topic) State {
	if h, ok := e.hub(topic); ok {
		return h.state
	}
	return nil
}

func (e *Engine) hub(topic Topic) (*hub, bool) {
	e.mu.RLock()
	h, ok := e.topics[topic]
	e.mu.RUnlock()
	return h, ok
}

// Register creates a subscription and adds it to its topic. The subscription
// is removed automatically when ctx is done.
func (e *Engine) Register(ctx context.Context, opts Options) (*Subscription, error) {
	h, ok := e.hub(opts.Topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, opts.Topic)
	}
	size := opts.BufferSize
	if size <= 0 {
		size = e.bufSize
	}
	sub := &Subscription{
		id:    e.nextID.Add(1),
		topic: opts.Topic,
		key:   opts.Key,
		peer:  opts.Peer,
		ctx:   ctx,
		buf:   make(chan Event, size),
		done:  make(chan struct{}),
		eng:   e,
		hub:   h,
	}

	sub.watchMu.Lock()
	sub.stopWatch = context.AfterFunc(ctx, func() { e.remove(sub, ErrCanceled) })
	sub.watchMu.Unlock()

	var err error
	switch {
	case opts.Key != "":
		sh := h.shardFor(opts.Key)
		sh.mu.Lock()
		err = e.insertLocked(h, sh, sub, opts.Snapshot)
		sh.mu.Unlock()
	case opts.Snapshot:
		// a keyless snapshot covers every key, so keyed publishers must be excluded too
		h.lockAll()
		err = e.insertLocked(h, nil, sub, true)
		h.unlockAll()
	default:
		h.bmu.Lock()
		err = e.insertLocked(h, nil, sub, false)
		h.bmu.Unlock()
	}
	if err != nil {
		sub.cancel(err)
		sub.releaseWatch()
		return nil, err
	}

	e.log.Debugw("stream_registered", "topic", sub.topic, "key", sub.key, "peer", sub.peer, "id", sub.id)
	return sub, nil
}

// insertLocked requires the shard lock (keyed) or bmu (keyless) to be held.
func (e *Engine) insertLocked(h *hub, sh *shard, sub *Subscription, withSnapshot bool) error {
	if h.closed {
		return h.closeErr()
	}
	if sub.canceled() || sub.ctx.Err() != nil {
		return ErrCanceled
	}
	if withSnapshot && h.state != nil {
		if snap, ok := h.state.Snapshot(sub.key); ok {
			// buffer is empty and has room for at least one event
			sub.buf <- Event{Topic: h.topic, Key: sub.key, Payload: snap, Snapshot: true}
		}
	}
	if sh == nil {
		h.bcast[sub.id] = sub
	} else {
		set := sh.byKey[sub.key]
		if set == nil {
			set = make(map[uint64]*Subscription)
			sh.byKey[sub.key] = set
		}
		set[sub.id] = sub
	}
	e.metrics.SubscriptionAdded(string(h.topic))
	return nil
}

// Unregister removes sub. Unregistering twice is a no-op.
func (e *Engine) Unregister(sub *Subscription) {
	if sub != nil {
		e.remove(sub, ErrCanceled)
	}
}

func (e *Engine) remove(sub *Subscription, cause error) {
	sub.cancel(cause)

	h := sub.hub
	found := false
	if sub.key == "" {
		h.bmu.Lock()
		if _, found = h.bcast[sub.id]; found {
			delete(h.bcast, sub.id)
		}
		h.bmu.Unlock()
	} else {
		sh := h.shardFor(sub.key)
		sh.mu.Lock()
		if set := sh.byKey[sub.key]; set != nil {
			if _, found = set[sub.id]; found {
				delete(set, sub.id)
				if len(set) == 0 {
					delete(sh.byKey, sub.key)
				}
			}
		}
		sh.mu.Unlock()
	}
	sub.releaseWatch()
	if !found {
		return
	}

	e.metrics.SubscriptionRemoved(string(h.topic), reason(sub.err))
	e.log.Debugw("stream_removed", "topic", sub.topic, "key", sub.key, "peer", sub.peer, "id", sub.id, "reason", reason(sub.err))
}

// Lookup returns the subscriptions that a publish with key would reach:
// those registered for key plus every keyless subscription of the topic.
func (e *Engine) Lookup(topic Topic, key string) []*Subscription {
	h, ok := e.hub(topic)
	if !ok {
		return nil
	}
	var out []*Subscription
	if key != "" {
		sh := h.shardFor(key)
		sh.mu.RLock()
		set := sh.byKey[key]
		out = make([]*Subscription, 0, len(set))
		for _, sub := range set {
			out = append(out, sub)
		}
		sh.mu.RUnlock()
	}
	h.bmu.RLock()
	for _, sub := range h.bcast {
		out = append(out, sub)
	}
	h.bmu.RUnlock()
	return out
}

type failure struct {
	sub *Subscription
	err error
}

// Publish queues payload for every matching subscription and returns how
// many accepted it. A subscription that cannot take the event is removed
// before Publish returns; publishers never see per-subscriber errors.
// Publishing to a closed or undeclared topic is a no-op.
//
// Ordering per key holds only with a single publisher per topic, as Bridge
// does; concurrent calls for one key may apply and queue in different orders.
func (e *Engine) Publish(topic Topic, key string, payload any) int {
	h, ok := e.hub(topic)
	if !ok {
		return 0
	}
	ev := Event{Topic: topic, Key: key, Payload: payload}

	var (
		n      int
		failed []failure
	)
	deliver := func(set map[uint64]*Subscription) {
		for _, sub := range set {
			if err := sub.offer(ev); err != nil {
				failed = append(failed, failure{sub, err})
				continue
			}
			n++
		}
	}

	if key != "" {
		sh := h.shardFor(key)
		sh.mu.RLock()
		h.bmu.RLock()
		if !h.closed {
			if h.state != nil {
				h.state.Apply(ev)
			}
			deliver(sh.byKey[key])
			deliver(h.bcast)
		}
		h.bmu.RUnlock()
		sh.mu.RUnlock()
	} else {
		h.bmu.RLock()
		if !h.closed {
			if h.state != nil {
				h.state.Apply(ev)
			}
			deliver(h.bcast)
		}
		h.bmu.RUnlock()
	}

	for _, f := range failed {
		if f.err == ErrSlowConsumer {
			e.log.Warnw("stream_slow_consumer", "topic", topic, "key", f.sub.key, "peer", f.sub.peer, "id", f.sub.id)
		}
		e.remove(f.sub, f.err)
	}
	e.metrics.Published(string(topic), n)
	return n
}

// CloseTopic stops topic for good: every subscription is canceled with an
// error wrapping ErrTopicClosed and cause, and later registrations fail.
func (e *Engine) CloseTopic(topic Topic, cause error) {
	h, ok := e.hub(topic)
	if !ok {
		return
	}
	h.lockAll()
	if h.closed {
		h.unlockAll()
		return
	}
	h.closed = true
	h.cause = cause
	var subs []*Subscription
	for _, sh := range h.shards {
		for key, set := range sh.byKey {
			for _, sub := range set {
				subs = append(subs, sub)
			}
			delete(sh.byKey, key)
		}
	}
	for id, sub := range h.bcast {
		subs = append(subs, sub)
		delete(h.bcast, id)
	}
	err := h.closeErr()
	h.unlockAll()

	for _, sub := range subs {
		sub.cancel(err)
		sub.releaseWatch()
		e.metrics.SubscriptionRemoved(string(topic), reason(err))
	}
	e.log.Warnw("stream_topic_closed", "topic", topic, "subscriptions", len(subs), "cause", cause)
}

// Close shuts every topic down.
func (e *Engine) Close() {
	e.mu.RLock()
	topics := make([]Topic, 0, len(e.topics))
	for t := range e.topics {
		topics = append(topics, t)
	}
	e.mu.RUnlock()
	for _, t := range topics {
		e.CloseTopic(t, ErrEngineClosed)
	}
}

// Count returns the number of live subscriptions on topic.
func (e *Engine) Count(topic Topic) int {
	h, ok := e.hub(topic)
	if !ok {
		return 0
	}
	n := 0
	for _, sh := range h.shards {
		sh.mu.RLock()
		for _, set := range sh.byKey {
			n += len(set)
		}
		sh.mu.RUnlock()
	}
	h.bmu.RLock()
	n += len(h.bcast)
	h.bmu.RUnlock()
	return n
}

func (h *hub) shardFor(key string) *shard {
	return h.shards[xxhash.Sum64String(key)%uint64(len(h.shards))]
}

func (h *hub) lockAll() {
	for _, sh := range h.shards {
		sh.mu.Lock()
	}
	h.bmu.Lock()
}

func (h *hub) unlockAll() {
	h.bmu.Unlock()
	for i := len(h.shards) - 1; i >= 0; i-- {
		h.shards[i].mu.Unlock()
	}
}

func (h *hub) closeErr() error {
	if h.cause == nil || h.cause == ErrTopicClosed {
		return fmt.Errorf("%w: %s", ErrTopicClosed, h.topic)
	}
	return fmt.Errorf("%w: %s: %w", ErrTopicClosed, h.topic, h.cause)
}
