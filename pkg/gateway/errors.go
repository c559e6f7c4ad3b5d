package gateway

import (
	"fmt"

	"github.com/uhyunpark/hftgate/pkg/engine"
)

// Code is the client-facing result code of an order command.
type Code int

const (
	CodeSuccess      Code = 0
	CodeRuntimeError Code = 1001

	CodeItemNotFound Code = 1100
	CodeInvalidField Code = 1101

	CodeMeBadRequest                      Code = 2000
	CodeMeLowBalance                      Code = 2001
	CodeMeAlreadyProcessed                Code = 2002
	CodeMeDisabledAsset                   Code = 2003
	CodeMeUnknownAsset                    Code = 2004
	CodeMeNoLiquidity                     Code = 2005
	CodeMeNotEnoughFunds                  Code = 2006
	CodeMeDust                            Code = 2007
	CodeMeReservedVolumeHigherThanBalance Code = 2008
	CodeMeNotFound                        Code = 2009
	CodeMeBalanceLowerThanReserved        Code = 2010
	CodeMeLeadToNegativeSpread            Code = 2011
	CodeMeTooSmallVolume                  Code = 2012
	CodeMeInvalidFee                      Code = 2013
	CodeMeInvalidPrice                    Code = 2014
	CodeMeReplaced                        Code = 2015
	CodeMeNotFoundPrevious                Code = 2016
	CodeMeDuplicate                       Code = 2017
	CodeMeInvalidVolumeAccuracy           Code = 2018
	CodeMeInvalidPriceAccuracy            Code = 2019
	CodeMeInvalidVolume                   Code = 2020
	CodeMeTooHighPriceDeviation           Code = 2021
	CodeMeInvalidOrderValue               Code = 2022
	CodeMeRuntime                         Code = 2023
	CodeMeUnknownStatus                   Code = 2024

	CodeMeUnavailable Code = 2100
)

var codeNames = map[Code]string{
	CodeSuccess:                           "Success",
	CodeRuntimeError:                      "RuntimeError",
	CodeItemNotFound:                      "ItemNotFound",
	CodeInvalidField:                      "InvalidField",
	CodeMeBadRequest:                      "MeBadRequest",
	CodeMeLowBalance:                      "MeLowBalance",
	CodeMeAlreadyProcessed:                "MeAlreadyProcessed",
	CodeMeDisabledAsset:                   "MeDisabledAsset",
	CodeMeUnknownAsset:                    "MeUnknownAsset",
	CodeMeNoLiquidity:                     "MeNoLiquidity",
	CodeMeNotEnoughFunds:                  "MeNotEnoughFunds",
	CodeMeDust:                            "MeDust",
	CodeMeReservedVolumeHigherThanBalance: "MeReservedVolumeHigherThanBalance",
	CodeMeNotFound:                        "MeNotFound",
	CodeMeBalanceLowerThanReserved:        "MeBalanceLowerThanReserved",
	CodeMeLeadToNegativeSpread:            "MeLeadToNegativeSpread",
	CodeMeTooSmallVolume:                  "MeTooSmallVolume",
	CodeMeInvalidFee:                      "MeInvalidFee",
	CodeMeInvalidPrice:                    "MeInvalidPrice",
	CodeMeReplaced:                        "MeReplaced",
	CodeMeNotFoundPrevious:                "MeNotFoundPrevious",
	CodeMeDuplicate:                       "MeDuplicate",
	CodeMeInvalidVolumeAccuracy:           "MeInvalidVolumeAccuracy",
	CodeMeInvalidPriceAccuracy:            "MeInvalidPriceAccuracy",
	CodeMeInvalidVolume:                   "MeInvalidVolume",
	CodeMeTooHighPriceDeviation:           "MeTooHighPriceDeviation",
	CodeMeInvalidOrderValue:               "MeInvalidOrderValue",
	CodeMeRuntime:                         "MeRuntime",
	CodeMeUnknownStatus:                   "MeUnknownStatus",
	CodeMeUnavailable:                     "MeUnavailable",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Kind groups codes into the four outcomes callers branch on, plus
// internal failures outside the order path.
type Kind int

const (
	KindSuccess Kind = iota
	KindValidationRejected
	KindEngineUnavailable
	KindEngineRejected
	KindInternal
)

func (c Code) Kind() Kind {
	switch {
	case c == CodeSuccess:
		return KindSuccess
	case c == CodeItemNotFound || c == CodeInvalidField:
		return KindValidationRejected
	case c == CodeMeUnavailable:
		return KindEngineUnavailable
	case c >= CodeMeBadRequest && c <= CodeMeUnknownStatus:
		return KindEngineRejected
	default:
		return KindInternal
	}
}

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindValidationRejected:
		return "ValidationRejected"
	case KindEngineUnavailable:
		return "EngineRuntimeUnavailable"
	case KindEngineRejected:
		return "EngineRejected"
	default:
		return "Internal"
	}
}

var statusCodes = map[engine.Status]Code{
	engine.StatusOK:                              CodeSuccess,
	engine.StatusBadRequest:                      CodeMeBadRequest,
	engine.StatusLowBalance:                      CodeMeLowBalance,
	engine.StatusAlreadyProcessed:                CodeMeAlreadyProcessed,
	engine.StatusDisabledAsset:                   CodeMeDisabledAsset,
	engine.StatusUnknownAsset:                    CodeMeUnknownAsset,
	engine.StatusNoLiquidity:                     CodeMeNoLiquidity,
	engine.StatusNotEnoughFunds:                  CodeMeNotEnoughFunds,
	engine.StatusDust:                            CodeMeDust,
	engine.StatusReservedVolumeHigherThanBalance: CodeMeReservedVolumeHigherThanBalance,
	engine.StatusNotFound:                        CodeMeNotFound,
	engine.StatusBalanceLowerThanReserved:        CodeMeBalanceLowerThanReserved,
	engine.StatusLeadToNegativeSpread:            CodeMeLeadToNegativeSpread,
	engine.StatusTooSmallVolume:                  CodeMeTooSmallVolume,
	engine.StatusInvalidFee:                      CodeMeInvalidFee,
	engine.StatusInvalidPrice:                    CodeMeInvalidPrice,
	engine.StatusReplaced:                        CodeMeReplaced,
	engine.StatusNotFoundPrevious:                CodeMeNotFoundPrevious,
	engine.StatusDuplicate:                       CodeMeDuplicate,
	engine.StatusInvalidVolumeAccuracy:           CodeMeInvalidVolumeAccuracy,
	engine.StatusInvalidPriceAccuracy:            CodeMeInvalidPriceAccuracy,
	engine.StatusInvalidVolume:                   CodeMeInvalidVolume,
	engine.StatusTooHighPriceDeviation:           CodeMeTooHighPriceDeviation,
	engine.StatusInvalidOrderValue:               CodeMeInvalidOrderValue,
	engine.StatusRuntime:                         CodeMeRuntime,
}

var statusMessages = map[engine.Status]string{
	engine.StatusBadRequest:                      "Bad request",
	engine.StatusLowBalance:                      "Low balance",
	engine.StatusAlreadyProcessed:                "Already processed",
	engine.StatusDisabledAsset:                   "Disabled asset",
	engine.StatusUnknownAsset:                    "Unknown asset",
	engine.StatusNoLiquidity:                     "No liquidity",
	engine.StatusNotEnoughFunds:                  "Not enough funds",
	engine.StatusDust:                            "Dust",
	engine.StatusReservedVolumeHigherThanBalance: "Reserved volume higher than balance",
	engine.StatusNotFound:                        "Not found",
	engine.StatusBalanceLowerThanReserved:        "Balance lower than reserved",
	engine.StatusLeadToNegativeSpread:            "Lead to negative spread",
	engine.StatusTooSmallVolume:                  "Too small volume",
	engine.StatusInvalidFee:                      "Invalid fee",
	engine.StatusInvalidPrice:                    "Invalid price",
	engine.StatusReplaced:                        "Replaced",
	engine.StatusNotFoundPrevious:                "Not found previous",
	engine.StatusDuplicate:                       "Duplicate",
	engine.StatusInvalidVolumeAccuracy:           "Invalid volume accuracy",
	engine.StatusInvalidPriceAccuracy:            "Invalid price accuracy",
	engine.StatusInvalidVolume:                   "Invalid volume",
	engine.StatusTooHighPriceDeviation:           "Too high price deviation",
	engine.StatusInvalidOrderValue:               "Invalid order value",
	engine.StatusRuntime:                         "ME runtime error",
}

// FromStatus translates a native engine status. It is total: statuses it
// does not know are reported as CodeMeUnknownStatus rejections.
func FromStatus(s engine.Status, reason string) (Code, string) {
	code, ok := statusCodes[s]
	if !ok {
		return CodeMeUnknownStatus, fmt.Sprintf("Unknown ME status: %d", int(s))
	}
	if code == CodeSuccess {
		return CodeSuccess, ""
	}
	msg := statusMessages[s]
	if reason != "" {
		msg = msg + ": " + reason
	}
	return code, msg
}

// Error is a typed order failure. Field names the offending input for
// validation errors.
type Error struct {
	Code    Code
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%d %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *Error) Kind() Kind { return e.Code.Kind() }

func InvalidField(field, message string) *Error {
	return &Error{Code: CodeInvalidField, Message: message, Field: field}
}

func NotFound(field, message string) *Error {
	return &Error{Code: CodeItemNotFound, Message: message, Field: field}
}

func unavailable() *Error {
	return &Error{Code: CodeMeUnavailable, Message: "ME not available"}
}
