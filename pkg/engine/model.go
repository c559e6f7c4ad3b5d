// Package engine is the client side of the matching engine. Only the
// synchronous command acknowledgement is modelled here; execution results
// arrive later through the change feeds.
package engine

import "context"

// Status is the matching engine's native result code.
type Status int

const (
	StatusOK                              Status = 0
	StatusBadRequest                      Status = 400
	StatusLowBalance                      Status = 401
	StatusAlreadyProcessed                Status = 402
	StatusDisabledAsset                   Status = 403
	StatusUnknownAsset                    Status = 410
	StatusNoLiquidity                     Status = 411
	StatusNotEnoughFunds                  Status = 412
	StatusDust                            Status = 413
	StatusReservedVolumeHigherThanBalance Status = 414
	StatusNotFound                        Status = 415
	StatusBalanceLowerThanReserved        Status = 416
	StatusLeadToNegativeSpread            Status = 417
	StatusTooSmallVolume                  Status = 418
	StatusInvalidFee                      Status = 419
	StatusInvalidPrice                    Status = 420
	StatusReplaced                        Status = 421
	StatusNotFoundPrevious                Status = 422
	StatusDuplicate                       Status = 430
	StatusInvalidVolumeAccuracy           Status = 431
	StatusInvalidPriceAccuracy            Status = 432
	StatusInvalidVolume                   Status = 434
	StatusTooHighPriceDeviation           Status = 435
	StatusInvalidOrderValue               Status = 436
	StatusRuntime                         Status = 500
)

var statusNames = map[Status]string{
	StatusOK:                              "Ok",
	StatusBadRequest:                      "BadRequest",
	StatusLowBalance:                      "LowBalance",
	StatusAlreadyProcessed:                "AlreadyProcessed",
	StatusDisabledAsset:                   "DisabledAsset",
	StatusUnknownAsset:                    "UnknownAsset",
	StatusNoLiquidity:                     "NoLiquidity",
	StatusNotEnoughFunds:                  "NotEnoughFunds",
	StatusDust:                            "Dust",
	StatusReservedVolumeHigherThanBalance: "ReservedVolumeHigherThanBalance",
	StatusNotFound:                        "NotFound",
	StatusBalanceLowerThanReserved:        "BalanceLowerThanReserved",
	StatusLeadToNegativeSpread:            "LeadToNegativeSpread",
	StatusTooSmallVolume:                  "TooSmallVolume",
	StatusInvalidFee:                      "InvalidFee",
	StatusInvalidPrice:                    "InvalidPrice",
	StatusReplaced:                        "Replaced",
	StatusNotFoundPrevious:                "NotFoundPrevious",
	StatusDuplicate:                       "Duplicate",
	StatusInvalidVolumeAccuracy:           "InvalidVolumeAccuracy",
	StatusInvalidPriceAccuracy:            "InvalidPriceAccuracy",
	StatusInvalidVolume:                   "InvalidVolume",
	StatusTooHighPriceDeviation:           "TooHighPriceDeviation",
	StatusInvalidOrderValue:               "InvalidOrderValue",
	StatusRuntime:                         "Runtime",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Statuses lists every known native status.
func Statuses() []Status {
	out := make([]Status, 0, len(statusNames))
	for s := range statusNames {
		out = append(out, s)
	}
	return out
}

type OrderAction int

const (
	Buy OrderAction = iota
	Sell
)

type LimitOrder struct {
	ID                   string      `json:"id"`
	AssetPairID          string      `json:"assetPairId"`
	ClientID             string      `json:"clientId"`
	Price                float64     `json:"price"`
	Volume               float64     `json:"volume"`
	OrderAction          OrderAction `json:"orderAction"`
	CancelPreviousOrders bool        `json:"cancelPreviousOrders"`
}

type MarketOrder struct {
	ID          string      `json:"id"`
	AssetPairID string      `json:"assetPairId"`
	ClientID    string      `json:"clientId"`
	Volume      float64     `json:"volume"`
	OrderAction OrderAction `json:"orderAction"`
	Straight    bool        `json:"straight"`
}

type CancelOrder struct {
	ID           string `json:"id"`
	LimitOrderID string `json:"limitOrderId"`
	ClientID     string `json:"clientId,omitempty"`
}

// MassCancel with a nil IsBuy cancels both sides.
type MassCancel struct {
	ID          string `json:"id"`
	AssetPairID string `json:"assetPairId,omitempty"`
	ClientID    string `json:"clientId"`
	IsBuy       *bool  `json:"isBuy,omitempty"`
}

type Response struct {
	ID            string  `json:"id"`
	Status        Status  `json:"status"`
	StatusReason  string  `json:"statusReason,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`
	Price         float64 `json:"price,omitempty"`
}

// Client submits commands. A nil response with a nil error is never
// returned; a nil response means the engine could not be reached in time.
type Client interface {
	PlaceLimitOrder(ctx context.Context, o LimitOrder) (*Response, error)
	PlaceMarketOrder(ctx context.Context, o MarketOrder) (*Response, error)
	CancelLimitOrder(ctx context.Context, c CancelOrder) (*Response, error)
	MassCancelLimitOrders(ctx context.Context, c MassCancel) (*Response, error)
}
