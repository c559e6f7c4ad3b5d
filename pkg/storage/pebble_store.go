package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/hftgate/pkg/feed"
)

// HistoryStore keeps per-wallet order and trade history on Pebble. It is
// fed by the change-feed bridge as a tap.
type HistoryStore struct {
	db *pebble.DB
}

// TradeQuery narrows a trade listing. Zero values mean no filter; From is
// inclusive and To exclusive.
type TradeQuery struct {
	AssetPairID string
	Side        string
	From        time.Time
	To          time.Time
	Offset      int
	Take        int
}

func NewHistoryStore(path string) (*HistoryStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error { return s.db.Close() }

// Observe records order and trade publications and ignores everything else.
func (s *HistoryStore) Observe(p feed.Publication) error {
	switch u := p.Payload.(type) {
	case feed.OrderUpdate:
		for _, o := range u.Orders {
			if err := s.RecordOrder(o); err != nil {
				return err
			}
		}
	case feed.TradeUpdate:
		for _, t := range u.Trades {
			if err := s.RecordTrade(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordOrder stores the latest state of an order. Closed orders are also
// indexed by creation time for ClosedOrders.
func (s *HistoryStore) RecordOrder(o feed.Order) error {
	if o.WalletID == "" || o.ID == "" {
		return fmt.Errorf("record order: missing wallet or id")
	}
	data, err := encode(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(orderKey(o.WalletID, o.ID), data, nil); err != nil {
		return err
	}
	if !o.Active() {
		if err := b.Set(closedKey(o.WalletID, o.CreatedAt, o.ID), data, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// RecordTrade stores a trade under the wallet timeline and the order index.
func (s *HistoryStore) RecordTrade(t feed.Trade) error {
	if t.WalletID == "" || t.ID == "" {
		return fmt.Errorf("record trade: missing wallet or id")
	}
	data, err := encode(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(tradeKey(t.WalletID, t.Timestamp, t.ID), data, nil); err != nil {
		return err
	}
	if t.OrderID != "" {
		if err := b.Set(orderTradeKey(t.WalletID, t.OrderID, t.Timestamp, t.ID), data, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// Order loads one order of the wallet.
func (s *HistoryStore) Order(wallet, orderID string) (feed.Order, bool, error) {
	data, closer, err := s.db.Get(orderKey(wallet, orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return feed.Order{}, false, nil
	}
	if err != nil {
		return feed.Order{}, false, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var o feed.Order
	if err := decode(data, &o); err != nil {
		return feed.Order{}, false, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	o.WalletID = wallet
	return o, true, nil
}

// ClosedOrders lists closed orders newest first.
func (s *HistoryStore) ClosedOrders(wallet, assetPairID string, offset, take int) ([]feed.Order, error) {
	prefix := closedPrefix(wallet)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]feed.Order, 0)
	skipped := 0
	for iter.Last(); iter.Valid() && len(out) < take; iter.Prev() {
		var o feed.Order
		if err := decode(iter.Value(), &o); err != nil {
			continue
		}
		if assetPairID != "" && o.AssetPairID != assetPairID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		o.WalletID = wallet
		out = append(out, o)
	}
	return out, iter.Error()
}

// Trades lists trades of the wallet newest first.
func (s *HistoryStore) Trades(wallet string, q TradeQuery) ([]feed.Trade, error) {
	prefix := tradePrefix(wallet)
	opts := &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	}
	if !q.From.IsZero() {
		opts.LowerBound = tradeBound(wallet, q.From)
	}
	if !q.To.IsZero() {
		opts.UpperBound = tradeBound(wallet, q.To)
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]feed.Trade, 0)
	skipped := 0
	for iter.Last(); iter.Valid() && len(out) < q.Take; iter.Prev() {
		var t feed.Trade
		if err := decode(iter.Value(), &t); err != nil {
			continue
		}
		if q.AssetPairID != "" && t.AssetPairID != q.AssetPairID {
			continue
		}
		if q.Side != "" && t.Side != q.Side {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		t.WalletID = wallet
		out = append(out, t)
	}
	return out, iter.Error()
}

// OrderTrades lists the trades of one order oldest first.
func (s *HistoryStore) OrderTrades(wallet, orderID string) ([]feed.Trade, error) {
	prefix := orderTradePrefix(wallet, orderID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]feed.Trade, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var t feed.Trade
		if err := decode(iter.Value(), &t); err != nil {
			continue
		}
		t.WalletID = wallet
		out = append(out, t)
	}
	return out, iter.Error()
}

var _ feed.Tap = (*HistoryStore)(nil)
