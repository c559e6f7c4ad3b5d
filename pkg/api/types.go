package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hftgate/pkg/stream"
)

// Response envelopes. Every REST reply carries exactly one of payload or
// error.

type Response struct {
	Payload any `json:"payload"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Order requests. Decimals accept JSON numbers or strings.

type LimitOrderRequest struct {
	AssetPairID string          `json:"assetPairId"`
	Side        string          `json:"side"`
	Volume      decimal.Decimal `json:"volume"`
	Price       decimal.Decimal `json:"price"`
}

type MarketOrderRequest struct {
	AssetPairID string          `json:"assetPairId"`
	Side        string          `json:"side"`
	Volume      decimal.Decimal `json:"volume"`
}

type LimitOrderResponse struct {
	OrderID string `json:"orderId"`
}

type MarketOrderResponse struct {
	OrderID string          `json:"orderId"`
	Price   decimal.Decimal `json:"price"`
}

// Frame is one websocket text message. Snapshot frames carry the current
// state as a list; live frames carry a single update.
type Frame struct {
	Topic    stream.Topic `json:"topic"`
	Snapshot bool         `json:"snapshot,omitempty"`
	Payload  any          `json:"payload"`
}
