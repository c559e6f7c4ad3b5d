package storage

import (
	"fmt"
	"time"
)

// Key schema:
//
//	ord:{wallet}:{orderID}                   → Order (latest state)
//	cls:{wallet}:{createdAt}:{orderID}       → Order, written once it is closed
//	trd:{wallet}:{timestamp}:{tradeID}       → Trade
//	tro:{wallet}:{orderID}:{timestamp}:{id}  → Trade, per-order index
//
// Timestamps are unix nanoseconds zero-padded to 20 digits so that
// lexicographic order is time order.
const (
	prefixOrder       = "ord:"
	prefixClosed      = "cls:"
	prefixTrade       = "trd:"
	prefixOrderTrades = "tro:"
)

func orderKey(wallet, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, wallet, orderID))
}

func closedKey(wallet string, createdAt time.Time, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixClosed, wallet, tsKey(createdAt), orderID))
}

func closedPrefix(wallet string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixClosed, wallet))
}

func tradeKey(wallet string, ts time.Time, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixTrade, wallet, tsKey(ts), tradeID))
}

func tradePrefix(wallet string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, wallet))
}

// tradeBound is the first key at or after ts.
func tradeBound(wallet string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixTrade, wallet, tsKey(ts)))
}

func orderTradeKey(wallet, orderID string, ts time.Time, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s:%s", prefixOrderTrades, wallet, orderID, tsKey(ts), tradeID))
}

func orderTradePrefix(wallet, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixOrderTrades, wallet, orderID))
}

func tsKey(t time.Time) string {
	n := t.UnixNano()
	if t.IsZero() || n < 0 {
		n = 0
	}
	return fmt.Sprintf("%020d", n)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
