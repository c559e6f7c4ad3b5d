package market

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hftgate/pkg/gateway"
)

// MaxTake caps the page size of history queries.
const MaxTake = 500

type Lookup interface {
	Get(ctx context.Context, id string) (AssetPair, bool, error)
}

// Validator checks requests against asset-pair metadata. Rule violations
// come back as *gateway.Error; lookup failures are returned unwrapped.
type Validator struct {
	pairs Lookup
}

func NewValidator(pairs Lookup) *Validator {
	return &Validator{pairs: pairs}
}

func (v *Validator) ValidateAssetPair(ctx context.Context, id string) error {
	_, err := v.pair(ctx, id)
	return err
}

func (v *Validator) ValidateLimitOrder(ctx context.Context, id string, price, volume decimal.Decimal) error {
	if !price.IsPositive() {
		return gateway.InvalidField("price", "Price must be greater than 0")
	}
	if !volume.IsPositive() {
		return gateway.InvalidField("volume", "Volume must be greater than 0")
	}
	p, err := v.pair(ctx, id)
	if err != nil {
		return err
	}
	if !fits(price, p.Accuracy) {
		return gateway.InvalidField("price", fmt.Sprintf("Price accuracy is %d", p.Accuracy))
	}
	return checkVolume(p, volume)
}

func (v *Validator) ValidateMarketOrder(ctx context.Context, id string, volume decimal.Decimal) error {
	if !volume.IsPositive() {
		return gateway.InvalidField("volume", "Volume must be greater than 0")
	}
	p, err := v.pair(ctx, id)
	if err != nil {
		return err
	}
	return checkVolume(p, volume)
}

// ValidateOrdersRequest checks history paging. The asset pair is optional.
func (v *Validator) ValidateOrdersRequest(ctx context.Context, id string, offset, take int) error {
	if offset < 0 {
		return gateway.InvalidField("offset", "Offset must be greater or equal to 0")
	}
	if take <= 0 || take > MaxTake {
		return gateway.InvalidField("take", fmt.Sprintf("Take must be between 1 and %d", MaxTake))
	}
	if id == "" {
		return nil
	}
	_, err := v.pair(ctx, id)
	return err
}

func (v *Validator) pair(ctx context.Context, id string) (AssetPair, error) {
	if id == "" {
		return AssetPair{}, gateway.InvalidField("assetPairId", "Asset pair is required")
	}
	p, ok, err := v.pairs.Get(ctx, id)
	if err != nil {
		return AssetPair{}, err
	}
	if !ok {
		return AssetPair{}, gateway.NotFound("assetPairId", "Asset pair not found")
	}
	if p.Disabled {
		return AssetPair{}, gateway.InvalidField("assetPairId", "Asset pair is disabled")
	}
	return p, nil
}

func checkVolume(p AssetPair, volume decimal.Decimal) error {
	if !fits(volume, p.VolumeAccuracy) {
		return gateway.InvalidField("volume", fmt.Sprintf("Volume accuracy is %d", p.VolumeAccuracy))
	}
	if volume.LessThan(p.MinVolume) {
		return gateway.InvalidField("volume", fmt.Sprintf("The minimum volume of the asset pair is %s", p.MinVolume))
	}
	return nil
}

func fits(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}
