package sim

import "github.com/shopspring/decimal"

// priceHeap keeps the best price of one book side on top. Use
// container/heap to manipulate it.
type priceHeap struct {
	prices []decimal.Decimal
	max    bool // bids
}

func (h priceHeap) Len() int { return len(h.prices) }
func (h priceHeap) Less(i, j int) bool {
	if h.max {
		return h.prices[i].GreaterThan(h.prices[j])
	}
	return h.prices[i].LessThan(h.prices[j])
}
func (h priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	h.prices = append(h.prices, x.(decimal.Decimal))
}

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// Peek returns the top element without removing it
func (h priceHeap) Peek() (decimal.Decimal, bool) {
	if len(h.prices) == 0 {
		return decimal.Decimal{}, false
	}
	return h.prices[0], true
}
