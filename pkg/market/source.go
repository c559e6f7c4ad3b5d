package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

var ErrBadAssetPair = errors.New("market: malformed asset pair")

// Source loads the full set of asset pairs.
type Source interface {
	Load(ctx context.Context) ([]AssetPair, error)
}

// StaticSource serves a fixed list.
type StaticSource []AssetPair

func (s StaticSource) Load(context.Context) ([]AssetPair, error) {
	out := make([]AssetPair, len(s))
	copy(out, s)
	return out, nil
}

// ParseStatic parses entries of the form
// id:base:quote:accuracy:invAccuracy:minVolume:minInvVolume[:volumeAccuracy].
func ParseStatic(entries []string) (StaticSource, error) {
	out := make(StaticSource, 0, len(entries))
	for _, e := range entries {
		p, err := parsePair(strings.TrimSpace(e))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePair(s string) (AssetPair, error) {
	f := strings.Split(s, ":")
	if len(f) != 7 && len(f) != 8 {
		return AssetPair{}, fmt.Errorf("%w: %q has %d fields", ErrBadAssetPair, s, len(f))
	}
	acc, err := strconv.ParseInt(f[3], 10, 32)
	if err != nil {
		return AssetPair{}, fmt.Errorf("%w: %q accuracy: %w", ErrBadAssetPair, s, err)
	}
	inv, err := strconv.ParseInt(f[4], 10, 32)
	if err != nil {
		return AssetPair{}, fmt.Errorf("%w: %q inverted accuracy: %w", ErrBadAssetPair, s, err)
	}
	minVol, err := decimal.NewFromString(f[5])
	if err != nil {
		return AssetPair{}, fmt.Errorf("%w: %q min volume: %w", ErrBadAssetPair, s, err)
	}
	minInv, err := decimal.NewFromString(f[6])
	if err != nil {
		return AssetPair{}, fmt.Errorf("%w: %q min inverted volume: %w", ErrBadAssetPair, s, err)
	}
	volAcc := int64(8)
	if len(f) == 8 {
		if volAcc, err = strconv.ParseInt(f[7], 10, 32); err != nil {
			return AssetPair{}, fmt.Errorf("%w: %q volume accuracy: %w", ErrBadAssetPair, s, err)
		}
	}
	return AssetPair{
		ID:                f[0],
		Name:              f[1] + "/" + f[2],
		BaseAssetID:       f[1],
		QuotingAssetID:    f[2],
		Accuracy:          int32(acc),
		InvertedAccuracy:  int32(inv),
		VolumeAccuracy:    int32(volAcc),
		MinVolume:         minVol,
		MinInvertedVolume: minInv,
	}, nil
}

// RedisSource reads a hash whose fields are pair ids and whose values are
// JSON-encoded AssetPair documents.
type RedisSource struct {
	client *redis.Client
	key    string
}

func NewRedisSource(client *redis.Client, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

func (s *RedisSource) Load(ctx context.Context) ([]AssetPair, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("market: load %s: %w", s.key, err)
	}
	out := make([]AssetPair, 0, len(vals))
	for id, raw := range vals {
		var p AssetPair
		if err := sonic.UnmarshalString(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadAssetPair, id, err)
		}
		if p.ID == "" {
			p.ID = id
		}
		if p.Name == "" {
			p.Name = p.BaseAssetID + "/" + p.QuotingAssetID
		}
		out = append(out, p)
	}
	return out, nil
}

// Store writes pairs into the hash. Used by operators and tests to seed
// the metadata.
func (s *RedisSource) Store(ctx context.Context, pairs ...AssetPair) error {
	if len(pairs) == 0 {
		return nil
	}
	fields := make([]any, 0, 2*len(pairs))
	for _, p := range pairs {
		raw, err := sonic.MarshalString(p)
		if err != nil {
			return err
		}
		fields = append(fields, p.ID, raw)
	}
	return s.client.HSet(ctx, s.key, fields...).Err()
}
