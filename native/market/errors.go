package market

import (
	"errors"

	nativecommon "nftmarket/native/common"
)

var (
	errNilState  = errors.New("market engine: state not configured")
	errNilAssets = errors.New("market engine: asset service not configured")
	errNilFunds  = errors.New("market engine: payment service not configured")
	errNilParams = errors.New("market engine: params not initialised")

	// Validation failures. Reported to the caller, never retried.
	ErrUnsupportedAsset       = errors.New("market: unsupported asset kind")
	ErrInvalidQuantity        = errors.New("market: invalid quantity")
	ErrExpirationInPast       = errors.New("market: expiration not in the future")
	ErrPriceBelowFloor        = errors.New("market: price below minimum floor")
	ErrPaymentAssetMismatch   = errors.New("market: payment asset mismatch")
	ErrCollectionBidMultiUnit = errors.New("market: collection bids unsupported for multi-unit assets")
	ErrNativeUnsupported      = errors.New("market: native settlement unsupported for payment asset")

	// Authorization failures.
	ErrUnauthorized           = errors.New("market: caller lacks required authority")
	ErrOwnershipCheckFailed   = errors.New("market: caller does not own the asset")
	ErrNotApprovedForTransfer = errors.New("market: marketplace not approved to transfer asset")
	ErrPaymentNotApproved     = errors.New("market: marketplace not approved to pull payment")

	// State failures. The caller may resubmit with corrected parameters.
	ErrListingNotFound   = errors.New("market: listing unavailable")
	ErrBidNotFound       = errors.New("market: bid unavailable")
	ErrOfferExpired      = errors.New("market: offer expired")
	ErrQuantityExceeded  = errors.New("market: requested quantity exceeds offer")
	ErrMaxPriceExceeded  = errors.New("market: listing price above buyer ceiling")
	ErrPriceMismatch     = errors.New("market: bid price mismatch")
	ErrSelfTrade         = errors.New("market: caller cannot trade against own offer")
	ErrInsufficientFunds = errors.New("market: insufficient payment balance")
	ErrNativeValue       = errors.New("market: attached native value does not match batch total")
	ErrAlreadySet        = errors.New("market: reference already set")
	ErrFeeAboveCap       = errors.New("market: fee exceeds cap")
	ErrInvalidRecipient  = errors.New("market: recipient must not be zero")

	// Operational: the call is rejected while an in-progress invocation or
	// an admin switch holds the marketplace closed.
	ErrReentrantCall = errors.New("market: reentrant call rejected")
)

// ErrorClass buckets engine failures for callers that need to distinguish
// permanently-invalid requests from temporarily-closed operation.
type ErrorClass uint8

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassAuthorization
	ClassState
	ClassOperational
	ClassExternal
)

// Classify maps an engine error onto its taxonomy bucket. Collaborator
// failures (transfers, lookups, the price tracker) arrive wrapped and
// classify as ClassExternal.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrUnsupportedAsset),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrExpirationInPast),
		errors.Is(err, ErrPriceBelowFloor),
		errors.Is(err, ErrPaymentAssetMismatch),
		errors.Is(err, ErrCollectionBidMultiUnit),
		errors.Is(err, ErrNativeUnsupported):
		return ClassValidation
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrOwnershipCheckFailed),
		errors.Is(err, ErrNotApprovedForTransfer),
		errors.Is(err, ErrPaymentNotApproved):
		return ClassAuthorization
	case errors.Is(err, ErrListingNotFound),
		errors.Is(err, ErrBidNotFound),
		errors.Is(err, ErrOfferExpired),
		errors.Is(err, ErrQuantityExceeded),
		errors.Is(err, ErrMaxPriceExceeded),
		errors.Is(err, ErrPriceMismatch),
		errors.Is(err, ErrSelfTrade),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrNativeValue),
		errors.Is(err, ErrAlreadySet),
		errors.Is(err, ErrFeeAboveCap),
		errors.Is(err, ErrInvalidRecipient):
		return ClassState
	case errors.Is(err, ErrReentrantCall),
		errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, nativecommon.ErrBiddingClosed):
		return ClassOperational
	case errors.Is(err, errExternalCall):
		return ClassExternal
	default:
		return ClassInternal
	}
}

// errExternalCall wraps collaborator failures so the taxonomy can identify
// them without losing the underlying cause.
var errExternalCall = errors.New("market: external call failed")
