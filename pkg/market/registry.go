package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// AssetPair describes one tradable instrument. Accuracy is the number of
// price decimals, VolumeAccuracy the number of base-asset volume decimals.
type AssetPair struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	BaseAssetID       string          `json:"baseAssetId"`
	QuotingAssetID    string          `json:"quotingAssetId"`
	Accuracy          int32           `json:"accuracy"`
	InvertedAccuracy  int32           `json:"invertedAccuracy"`
	VolumeAccuracy    int32           `json:"volumeAccuracy"`
	MinVolume         decimal.Decimal `json:"minVolume"`
	MinInvertedVolume decimal.Decimal `json:"minInvertedVolume"`
	Disabled          bool            `json:"disabled,omitempty"`
}

// Registry holds the known asset pairs in a thread-safe manner
type Registry struct {
	mu    sync.RWMutex
	pairs map[string]AssetPair // id -> pair
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[string]AssetPair)}
}

// Register adds a new pair.
// Returns error if a pair with the same id already exists
func (r *Registry) Register(p AssetPair) error {
	if p.ID == "" {
		return fmt.Errorf("cannot register asset pair without id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[p.ID]; exists {
		return fmt.Errorf("asset pair %s already registered", p.ID)
	}
	r.pairs[p.ID] = p
	return nil
}

// Replace swaps the whole set in one step, so readers never observe a
// partially loaded registry.
func (r *Registry) Replace(pairs []AssetPair) {
	next := make(map[string]AssetPair, len(pairs))
	for _, p := range pairs {
		if p.ID != "" {
			next[p.ID] = p
		}
	}

	r.mu.Lock()
	r.pairs = next
	r.mu.Unlock()
}

// Get retrieves a pair by id
func (r *Registry) Get(id string) (AssetPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[id]
	return p, ok
}

// List returns all pairs ordered by id
func (r *Registry) List() []AssetPair {
	r.mu.RLock()
	out := make([]AssetPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}

func (r *Registry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}
