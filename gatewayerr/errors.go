// Package gatewayerr defines the stable, wire-agnostic error kinds used
// across the gateway (§7) and maps each to an HTTP status code, the way
// the teacher's rpc package maps internal errors to JSON-RPC codes.
package gatewayerr

import "fmt"

// Kind is a stable error-kind name, safe to serialize to clients.
type Kind string

const (
	InvalidSlot         Kind = "InvalidSlot"
	InvalidChainId      Kind = "InvalidChainId"
	InvalidSignature    Kind = "InvalidSignature"
	InvalidTxSignature  Kind = "InvalidTxSignature"
	DeadlineExpired     Kind = "DeadlineExpired"
	NoValidatorInSlot   Kind = "NoValidatorInSlot"

	MaxCommitmentsExceeded Kind = "MaxCommitmentsExceeded"
	MaxGasExceeded         Kind = "MaxGasExceeded"
	MaxBlobCountExceeded   Kind = "MaxBlobCountExceeded"

	NonceTooLow                   Kind = "NonceTooLow"
	NonceTooHigh                  Kind = "NonceTooHigh"
	InsufficientBalance           Kind = "InsufficientBalance"
	AccountHasCode                Kind = "AccountHasCode"
	TransactionSizeTooHigh        Kind = "TransactionSizeTooHigh"
	GasLimitTooHigh               Kind = "GasLimitTooHigh"
	MaxPriorityFeePerGasTooHigh   Kind = "MaxPriorityFeePerGasTooHigh"
	MaxPriorityFeePerGasTooLow    Kind = "MaxPriorityFeePerGasTooLow"
	BaseFeeTooLow                 Kind = "BaseFeeTooLow"
	BlobBaseFeeTooLow             Kind = "BlobBaseFeeTooLow"
	Eip4844Limit                  Kind = "Eip4844Limit"
	DuplicateTransaction          Kind = "DuplicateTransaction"

	PricingExceeds         Kind = "PricingExceeds"
	PricingInsufficientGas Kind = "PricingInsufficientGas"
	PricingInvalid         Kind = "PricingInvalid"
	PricingTipTooLow       Kind = "PricingTipTooLow"

	RelayResponse               Kind = "RelayResponse"
	RelayTimeout                Kind = "RelayTimeout"
	JsonDecode                  Kind = "JsonDecode"
	FailedGettingHeader         Kind = "FailedGettingHeader"
	FailedGettingPayload        Kind = "FailedGettingPayload"
	FailedRegisterValidators    Kind = "FailedRegisterValidators"
	FailedSubmittingConstraints Kind = "FailedSubmittingConstraints"
	FailedDelegating            Kind = "FailedDelegating"
	FailedRevoking              Kind = "FailedRevoking"

	InvalidEngineHint            Kind = "InvalidEngineHint"
	EngineBuildExceededIterations Kind = "EngineBuildExceededIterations"

	FieldMismatch    Kind = "FieldMismatch"
	ChannelOverflow  Kind = "ChannelOverflow"
	Internal         Kind = "Internal"
)

// Error is the gateway's concrete error type: a stable Kind plus a
// human-readable message and optional structured fields. Clients receive
// Kind and Message, never a stack trace (§7 policy).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Fields)
}

// New creates a plain Error with no structured fields.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a plain Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewBaseFeeTooLow builds the BaseFeeTooLow(min) variant.
func NewBaseFeeTooLow(minWei string) *Error {
	return &Error{Kind: BaseFeeTooLow, Message: "max_fee_per_gas below projected basefee", Fields: map[string]string{"min": minWei}}
}

// NewBlobBaseFeeTooLow builds the BlobBaseFeeTooLow(min) variant.
func NewBlobBaseFeeTooLow(minWei string) *Error {
	return &Error{Kind: BlobBaseFeeTooLow, Message: "max_fee_per_blob_gas below projected blob basefee", Fields: map[string]string{"min": minWei}}
}

// NewMaxPriorityFeeTooLow builds the MaxPriorityFeePerGasTooLow(tip,min) variant.
func NewMaxPriorityFeeTooLow(tipWei, minWei string) *Error {
	return &Error{Kind: MaxPriorityFeePerGasTooLow, Message: "priority fee below inclusion-pricing floor", Fields: map[string]string{"tip": tipWei, "min": minWei}}
}

// NewRelayResponse builds the RelayResponse{code,msg} variant.
func NewRelayResponse(code int, msg string) *Error {
	return &Error{Kind: RelayResponse, Message: msg, Fields: map[string]string{"code": fmt.Sprint(code)}}
}

// NewFieldMismatch builds the FieldMismatch{name,expected,got} variant used
// when a relay-signed header disagrees with the locally built fallback.
func NewFieldMismatch(name, expected, got string) *Error {
	return &Error{
		Kind:    FieldMismatch,
		Message: fmt.Sprintf("field %q mismatch", name),
		Fields:  map[string]string{"name": name, "expected": expected, "got": got},
	}
}

// HTTPStatus maps a Kind to the HTTP status code the gateway's HTTP
// surfaces return for it (§6-7).
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidSlot, InvalidChainId, InvalidSignature, InvalidTxSignature,
		DeadlineExpired, NoValidatorInSlot,
		MaxCommitmentsExceeded, MaxGasExceeded, MaxBlobCountExceeded,
		NonceTooLow, NonceTooHigh, InsufficientBalance, AccountHasCode,
		TransactionSizeTooHigh, GasLimitTooHigh, MaxPriorityFeePerGasTooHigh,
		MaxPriorityFeePerGasTooLow, BaseFeeTooLow, BlobBaseFeeTooLow, Eip4844Limit,
		PricingExceeds, PricingInsufficientGas, PricingInvalid, PricingTipTooLow:
		return 400
	case DuplicateTransaction:
		return 409
	case ChannelOverflow:
		return 503
	case RelayTimeout:
		return 555
	case RelayResponse, JsonDecode, FailedGettingHeader, FailedGettingPayload,
		FailedRegisterValidators, FailedSubmittingConstraints, FailedDelegating, FailedRevoking:
		return 502
	case InvalidEngineHint, EngineBuildExceededIterations, FieldMismatch, Internal:
		return 500
	default:
		return 500
	}
}
