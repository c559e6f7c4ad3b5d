package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Subscription is one live output channel. Its buffer is written only by the
// engine and read only by the consumer; it is never closed, cancellation is
// signalled through Done.
type Subscription struct {
	id    uint64
	topic Topic
	key   string
	peer  string

	ctx  context.Context // registration context
	buf  chan Event
	done chan struct{}
	once sync.Once
	err  error // set before done is closed

	eng *Engine
	hub *hub

	watchMu   sync.Mutex
	stopWatch func() bool
}

func (s *Subscription) ID() uint64   { return s.id }
func (s *Subscription) Topic() Topic { return s.topic }
func (s *Subscription) Key() string  { return s.key }
func (s *Subscription) Peer() string { return s.peer }

// Events exposes the buffer for consumers that run their own loop.
func (s *Subscription) Events() <-chan Event { return s.buf }

// Done is closed once the subscription is canceled for any reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended, or nil while it is live.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Cancel removes the subscription from the registry. Safe to call repeatedly
// and from any goroutine; when it returns the subscription is no longer
// reachable by Publish.
func (s *Subscription) Cancel() { s.eng.remove(s, ErrCanceled) }

// Serve forwards queued events to send until ctx ends, the subscription is
// canceled, or send fails. The subscription is always removed on return.
// A plain cancellation returns nil; removal by the engine returns its cause.
func (s *Subscription) Serve(ctx context.Context, send func(Event) error) error {
	defer s.Cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return s.stopErr()
		case ev := <-s.buf:
			select {
			case <-s.done:
				return s.stopErr()
			default:
			}
			if ctx.Err() != nil || s.ctx.Err() != nil {
				return nil
			}
			if err := send(ev); err != nil {
				err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
				s.eng.remove(s, err)
				return err
			}
		}
	}
}

func (s *Subscription) stopErr() error {
	if errors.Is(s.err, ErrCanceled) {
		return nil
	}
	return s.err
}

func (s *Subscription) cancel(cause error) {
	s.once.Do(func() {
		s.err = cause
		close(s.done)
	})
}

func (s *Subscription) canceled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer queues ev without blocking. A done registration context counts as
// canceled even before its AfterFunc has run.
func (s *Subscription) offer(ev Event) error {
	select {
	case <-s.done:
		return ErrCanceled
	default:
	}
	if s.ctx.Err() != nil {
		return ErrCanceled
	}
	select {
	case s.buf <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (s *Subscription) releaseWatch() {
	s.watchMu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.watchMu.Unlock()
	if stop != nil {
		stop()
	}
}
