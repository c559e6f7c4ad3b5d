package sim

import (
	"container/heap"

	"github.com/shopspring/decimal"
)

type restingOrder struct {
	ID        string
	Wallet    string
	Buy       bool
	Price     decimal.Decimal
	Remaining decimal.Decimal
}

type fill struct {
	Maker  restingOrder // state after the fill
	Price  decimal.Decimal
	Volume decimal.Decimal
}

type level struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// side is one half of a book: FIFO queues per price plus a heap of the
// populated prices.
type side struct {
	best   *priceHeap
	queues map[string][]*restingOrder // price.String() -> FIFO
}

func newSide(bids bool) *side {
	return &side{best: &priceHeap{max: bids}, queues: make(map[string][]*restingOrder)}
}

func (s *side) add(o *restingOrder) {
	k := o.Price.String()
	if len(s.queues[k]) == 0 {
		heap.Push(s.best, o.Price)
	}
	s.queues[k] = append(s.queues[k], o)
}

func (s *side) remove(o *restingOrder) bool {
	k := o.Price.String()
	q := s.queues[k]
	for i, r := range q {
		if r.ID == o.ID {
			s.queues[k] = append(q[:i:i], q[i+1:]...)
			s.dropIfEmpty(o.Price)
			return true
		}
	}
	return false
}

func (s *side) dropIfEmpty(price decimal.Decimal) {
	k := price.String()
	if len(s.queues[k]) > 0 {
		return
	}
	delete(s.queues, k)
	for i, p := range s.best.prices {
		if p.Equal(price) {
			heap.Remove(s.best, i)
			return
		}
	}
}

func (s *side) levels(depth int) []level {
	prices := make([]decimal.Decimal, len(s.best.prices))
	copy(prices, s.best.prices)
	h := &priceHeap{prices: prices, max: s.best.max}
	heap.Init(h)

	var out []level
	for h.Len() > 0 && (depth <= 0 || len(out) < depth) {
		p := heap.Pop(h).(decimal.Decimal)
		vol := decimal.Zero
		for _, o := range s.queues[p.String()] {
			vol = vol.Add(o.Remaining)
		}
		out = append(out, level{Price: p, Volume: vol})
	}
	return out
}

// book is a price-time priority order book for one asset pair.
type book struct {
	bids, asks *side
	index      map[string]*restingOrder
}

func newBook() *book {
	return &book{bids: newSide(true), asks: newSide(false), index: make(map[string]*restingOrder)}
}

func (b *book) opposite(buy bool) *side {
	if buy {
		return b.asks
	}
	return b.bids
}

func (b *book) own(buy bool) *side {
	if buy {
		return b.bids
	}
	return b.asks
}

func crosses(buy bool, limit, price decimal.Decimal) bool {
	if buy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

// quote walks the opposite side without changing it and reports how much of
// volume is available and its cost. A nil limit walks every price.
func (b *book) quote(buy bool, volume decimal.Decimal, limit *decimal.Decimal) (filled, cost decimal.Decimal) {
	left := volume
	for _, l := range b.opposite(buy).levels(0) {
		if left.IsZero() || (limit != nil && !crosses(buy, *limit, l.Price)) {
			break
		}
		take := decimal.Min(left, l.Volume)
		left = left.Sub(take)
		cost = cost.Add(take.Mul(l.Price))
	}
	return volume.Sub(left), cost
}

// match takes liquidity for the taker until its volume is used up or the
// best opposite price no longer crosses limit (nil for market orders).
// Fully filled makers leave the book.
func (b *book) match(taker *restingOrder, limit *decimal.Decimal) []fill {
	opp := b.opposite(taker.Buy)
	var fills []fill
	for taker.Remaining.IsPositive() {
		p, ok := opp.best.Peek()
		if !ok || (limit != nil && !crosses(taker.Buy, *limit, p)) {
			break
		}
		q := opp.queues[p.String()]
		maker := q[0]
		vol := decimal.Min(taker.Remaining, maker.Remaining)
		taker.Remaining = taker.Remaining.Sub(vol)
		maker.Remaining = maker.Remaining.Sub(vol)
		fills = append(fills, fill{Maker: *maker, Price: p, Volume: vol})

		if maker.Remaining.IsZero() {
			opp.queues[p.String()] = q[1:]
			delete(b.index, maker.ID)
			opp.dropIfEmpty(p)
		}
	}
	return fills
}

func (b *book) rest(o *restingOrder) {
	b.own(o.Buy).add(o)
	b.index[o.ID] = o
}

func (b *book) cancel(id string) (restingOrder, bool) {
	o, ok := b.index[id]
	if !ok {
		return restingOrder{}, false
	}
	b.own(o.Buy).remove(o)
	delete(b.index, id)
	return *o, true
}

func (b *book) best() (bid, ask decimal.Decimal) {
	bid, _ = b.bids.best.Peek()
	ask, _ = b.asks.best.Peek()
	return bid, ask
}

func (b *book) orders() []restingOrder {
	out := make([]restingOrder, 0, len(b.index))
	for _, o := range b.index {
		out = append(out, *o)
	}
	return out
}
