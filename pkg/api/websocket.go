package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by the router)
		return true
	},
}

type streamKind int

const (
	// every event of the topic, optionally filtered by assetPairIds
	streamPublic streamKind = iota
	// keyed by the assetPairId query parameter; empty means all pairs
	streamByPair
	// keyed by the authenticated account
	streamByAccount
)

// snapshotTopics start with the current state before live updates.
var snapshotTopics = map[stream.Topic]bool{
	stream.TopicBalances:   true,
	stream.TopicOrderbooks: true,
	stream.TopicPrices:     true,
	stream.TopicTickers:    true,
}

// handleStream serves one subscription over one websocket. The writer runs
// in the handler goroutine through Subscription.Serve; a reader goroutine
// only watches for the client going away.
func (s *Server) handleStream(topic stream.Topic, kind streamKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := stream.Options{Topic: topic, Peer: r.RemoteAddr, Snapshot: snapshotTopics[topic]}
		var keep map[string]struct{}
		switch kind {
		case streamByAccount:
			opts.Key = AccountFrom(r.Context())
		case streamByPair:
			opts.Key = r.URL.Query().Get("assetPairId")
		default:
			keep = pairFilter(r)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub, err := s.Streams.Register(ctx, opts)
		if err != nil {
			s.Logger.Warnw("stream_rejected", "topic", topic, "peer", r.RemoteAddr, "err", err)
			http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			sub.Cancel()
			s.Logger.Debugw("ws_upgrade_failed", "peer", r.RemoteAddr, "err", err)
			return
		}
		defer conn.Close()

		s.Logger.Infow("stream_opened", "topic", topic, "key", opts.Key, "peer", r.RemoteAddr, "id", sub.ID())
		go s.readPump(conn, cancel)
		go s.pingPump(ctx, conn)

		err = sub.Serve(ctx, func(ev stream.Event) error {
			payload, ok := filterPayload(ev.Payload, keep)
			if !ok {
				return nil
			}
			frame, err := sonic.Marshal(Frame{Topic: ev.Topic, Snapshot: ev.Snapshot, Payload: payload})
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			return conn.WriteMessage(websocket.TextMessage, frame)
		})

		code, text := websocket.CloseNormalClosure, ""
		switch {
		case errors.Is(err, stream.ErrSlowConsumer):
			code, text = websocket.CloseTryAgainLater, "slow consumer"
		case errors.Is(err, stream.ErrTopicClosed), errors.Is(err, stream.ErrEngineClosed):
			code, text = websocket.CloseGoingAway, "stream closed"
		case err == nil && r.Context().Err() != nil:
			code = websocket.CloseGoingAway
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text),
			time.Now().Add(s.cfg.WriteWait))
		s.Logger.Infow("stream_closed", "topic", topic, "key", opts.Key, "peer", r.RemoteAddr, "id", sub.ID(), "err", err)
	}
}

// readPump discards client messages and cancels the stream once the
// connection fails or misses a pong.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Debugw("ws_read_failed", "peer", conn.RemoteAddr().String(), "err", err)
			}
			return
		}
	}
}

// pingPump uses WriteControl, which may run concurrently with the writer.
func (s *Server) pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}

// filterPayload applies an assetPairIds filter to price and ticker
// payloads, both live updates and snapshot lists. ok is false when nothing
// is left to send.
func filterPayload(payload any, keep map[string]struct{}) (any, bool) {
	if len(keep) == 0 {
		return payload, true
	}
	has := func(id string) bool { _, ok := keep[id]; return ok }
	switch p := payload.(type) {
	case feed.PriceUpdate:
		return p, has(p.AssetPairID)
	case feed.TickerUpdate:
		return p, has(p.AssetPairID)
	case []feed.PriceUpdate:
		return filterRows(p, keep, func(u feed.PriceUpdate) string { return u.AssetPairID }), true
	case []feed.TickerUpdate:
		return filterRows(p, keep, func(u feed.TickerUpdate) string { return u.AssetPairID }), true
	}
	return payload, true
}
