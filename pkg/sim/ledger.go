package sim

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDeposits reads asset:amount entries.
func ParseDeposits(entries []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		asset, raw, ok := strings.Cut(e, ":")
		if !ok || asset == "" {
			return nil, fmt.Errorf("sim: bad deposit %q", e)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil || amount.IsNegative() {
			return nil, fmt.Errorf("sim: bad deposit amount %q", e)
		}
		out[asset] = amount
	}
	return out, nil
}

type holding struct {
	Balance  decimal.Decimal
	Reserved decimal.Decimal
}

func (h holding) available() decimal.Decimal { return h.Balance.Sub(h.Reserved) }

type assetKey struct{ wallet, asset string }

// ledger holds per-wallet asset balances. Wallets seen for the first time
// are credited with the configured deposits. Every mutation marks the
// holding dirty so the next flush publishes it.
type ledger struct {
	deposits map[string]decimal.Decimal
	funded   map[string]bool
	holdings map[assetKey]*holding
	dirty    map[assetKey]struct{}
}

func newLedger(deposits map[string]decimal.Decimal) *ledger {
	return &ledger{
		deposits: deposits,
		funded:   make(map[string]bool),
		holdings: make(map[assetKey]*holding),
		dirty:    make(map[assetKey]struct{}),
	}
}

func (l *ledger) get(wallet, asset string) *holding {
	if !l.funded[wallet] {
		l.funded[wallet] = true
		for a, amount := range l.deposits {
			k := assetKey{wallet, a}
			l.holdings[k] = &holding{Balance: amount}
			l.dirty[k] = struct{}{}
		}
	}
	k := assetKey{wallet, asset}
	h, ok := l.holdings[k]
	if !ok {
		h = &holding{}
		l.holdings[k] = h
	}
	return h
}

func (l *ledger) available(wallet, asset string) decimal.Decimal {
	return l.get(wallet, asset).available()
}

func (l *ledger) credit(wallet, asset string, amount decimal.Decimal) {
	h := l.get(wallet, asset)
	h.Balance = h.Balance.Add(amount)
	l.dirty[assetKey{wallet, asset}] = struct{}{}
}

func (l *ledger) reserve(wallet, asset string, amount decimal.Decimal) {
	h := l.get(wallet, asset)
	h.Reserved = h.Reserved.Add(amount)
	l.dirty[assetKey{wallet, asset}] = struct{}{}
}

// release gives back a reservation, never going below zero.
func (l *ledger) release(wallet, asset string, amount decimal.Decimal) {
	h := l.get(wallet, asset)
	h.Reserved = decimal.Max(h.Reserved.Sub(amount), decimal.Zero)
	l.dirty[assetKey{wallet, asset}] = struct{}{}
}

// takeDirty returns and clears the holdings changed since the last call.
func (l *ledger) takeDirty() map[assetKey]holding {
	out := make(map[assetKey]holding, len(l.dirty))
	for k := range l.dirty {
		out[k] = *l.holdings[k]
	}
	clear(l.dirty)
	return out
}
