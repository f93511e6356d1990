package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nftmarket/core/types"
)

const (
	EventTypeListingCreated           = "market.listing.created"
	EventTypeListingUpdated           = "market.listing.updated"
	EventTypeListingCancelled         = "market.listing.cancelled"
	EventTypeTokenBidCreated          = "market.bid.token.created"
	EventTypeTokenBidUpdated          = "market.bid.token.updated"
	EventTypeTokenBidCancelled        = "market.bid.token.cancelled"
	EventTypeCollectionBidCreated     = "market.bid.collection.created"
	EventTypeCollectionBidUpdated     = "market.bid.collection.updated"
	EventTypeCollectionBidCancelled   = "market.bid.collection.cancelled"
	EventTypeItemSold                 = "market.trade.sold"
	EventTypeBidAccepted              = "market.trade.accepted"
	EventTypeFeeUpdated               = "market.admin.fee_updated"
	EventTypeFeeRecipientUpdated      = "market.admin.fee_recipient_updated"
	EventTypeCollectionFeeUpdated     = "market.admin.collection_fee_updated"
	EventTypeCollectionPaymentUpdated = "market.admin.collection_payment_updated"
	EventTypePriceTrackerUpdated      = "market.admin.price_tracker_updated"
	EventTypeWrappedNativeSet         = "market.admin.wrapped_native_set"
	EventTypeBiddingToggled           = "market.admin.bidding_toggled"
	EventTypePaused                   = "market.admin.paused"
	EventTypeUnpaused                 = "market.admin.unpaused"
	EventTypeRoleGranted              = "market.admin.role_granted"
	EventTypeRoleRevoked              = "market.admin.role_revoked"
)

// NewListingCreatedEvent returns the canonical payload for a freshly
// created listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCreated, l)
}

// NewListingUpdatedEvent returns the payload emitted when an upsert replaced
// a live listing.
func NewListingUpdatedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListingUpdated, l)
}

// NewListingCancelledEvent returns the payload for a listing cancellation.
// The payload carries only the key; the record itself is gone.
func NewListingCancelledEvent(collection [20]byte, tokenID *big.Int, seller [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["collection"] = hex.EncodeToString(collection[:])
	attrs["tokenId"] = tokenIDString(tokenID)
	attrs["seller"] = hex.EncodeToString(seller[:])
	return &types.Event{Type: EventTypeListingCancelled, Attributes: attrs}
}

// NewTokenBidCreatedEvent returns the payload for a freshly created token
// bid.
func NewTokenBidCreatedEvent(b *TokenBid) *types.Event {
	return newTokenBidEvent(EventTypeTokenBidCreated, b)
}

// NewTokenBidUpdatedEvent returns the payload emitted when an upsert
// replaced a live token bid.
func NewTokenBidUpdatedEvent(b *TokenBid) *types.Event {
	return newTokenBidEvent(EventTypeTokenBidUpdated, b)
}

// NewTokenBidCancelledEvent returns the payload for a token bid
// cancellation.
func NewTokenBidCancelledEvent(collection [20]byte, tokenID *big.Int, bidder [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["collection"] = hex.EncodeToString(collection[:])
	attrs["tokenId"] = tokenIDString(tokenID)
	attrs["bidder"] = hex.EncodeToString(bidder[:])
	return &types.Event{Type: EventTypeTokenBidCancelled, Attributes: attrs}
}

// NewCollectionBidCreatedEvent returns the payload for a freshly created
// collection bid.
func NewCollectionBidCreatedEvent(b *CollectionBid) *types.Event {
	return newCollectionBidEvent(EventTypeCollectionBidCreated, b)
}

// NewCollectionBidUpdatedEvent returns the payload emitted when an upsert
// replaced a live collection bid.
func NewCollectionBidUpdatedEvent(b *CollectionBid) *types.Event {
	return newCollectionBidEvent(EventTypeCollectionBidUpdated, b)
}

// NewCollectionBidCancelledEvent returns the payload for a collection bid
// cancellation.
func NewCollectionBidCancelledEvent(collection [20]byte, bidder [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["collection"] = hex.EncodeToString(collection[:])
	attrs["bidder"] = hex.EncodeToString(bidder[:])
	return &types.Event{Type: EventTypeCollectionBidCancelled, Attributes: attrs}
}

// NewItemSoldEvent returns the payload for one settled purchase against a
// listing, including the full fee split.
func NewItemSoldEvent(collection [20]byte, tokenID *big.Int, seller, buyer [20]byte, quantity uint64, pricePerUnit *big.Int, paymentAsset [20]byte, split *FeeBreakdown) *types.Event {
	attrs := newTradeAttrs(collection, tokenID, quantity, pricePerUnit, paymentAsset, split)
	attrs["seller"] = hex.EncodeToString(seller[:])
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	return &types.Event{Type: EventTypeItemSold, Attributes: attrs}
}

// NewBidAcceptedEvent returns the payload for one settled supply against a
// bid, including the full fee split.
func NewBidAcceptedEvent(collection [20]byte, tokenID *big.Int, bidder, seller [20]byte, quantity uint64, pricePerUnit *big.Int, paymentAsset [20]byte, split *FeeBreakdown) *types.Event {
	attrs := newTradeAttrs(collection, tokenID, quantity, pricePerUnit, paymentAsset, split)
	attrs["bidder"] = hex.EncodeToString(bidder[:])
	attrs["seller"] = hex.EncodeToString(seller[:])
	return &types.Event{Type: EventTypeBidAccepted, Attributes: attrs}
}

// NewFeeUpdatedEvent returns the payload emitted when the global fee rates
// change.
func NewFeeUpdatedEvent(feeBps, feeWithOverrideBps uint32) *types.Event {
	attrs := make(map[string]string)
	attrs["feeBps"] = strconv.FormatUint(uint64(feeBps), 10)
	attrs["feeWithOverrideBps"] = strconv.FormatUint(uint64(feeWithOverrideBps), 10)
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: attrs}
}

// NewFeeRecipientUpdatedEvent returns the payload emitted when the protocol
// fee recipient changes.
func NewFeeRecipientUpdatedEvent(recipient [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["recipient"] = hex.EncodeToString(recipient[:])
	return &types.Event{Type: EventTypeFeeRecipientUpdated, Attributes: attrs}
}

// NewCollectionFeeUpdatedEvent returns the payload for a per-collection fee
// override being set or cleared. A zero recipient signals a clear.
func NewCollectionFeeUpdatedEvent(collection [20]byte, feeBps uint32, recipient [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["collection"] = hex.EncodeToString(collection[:])
	attrs["feeBps"] = strconv.FormatUint(uint64(feeBps), 10)
	attrs["recipient"] = hex.EncodeToString(recipient[:])
	return &types.Event{Type: EventTypeCollectionFeeUpdated, Attributes: attrs}
}

// NewCollectionPaymentUpdatedEvent returns the payload for a per-collection
// payment override being set or cleared. A zero asset signals a clear.
func NewCollectionPaymentUpdatedEvent(collection [20]byte, asset [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["collection"] = hex.EncodeToString(collection[:])
	attrs["asset"] = hex.EncodeToString(asset[:])
	return &types.Event{Type: EventTypeCollectionPaymentUpdated, Attributes: attrs}
}

// NewPriceTrackerUpdatedEvent returns the payload emitted when the sale
// price tracker reference changes.
func NewPriceTrackerUpdatedEvent(tracker [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["tracker"] = hex.EncodeToString(tracker[:])
	return &types.Event{Type: EventTypePriceTrackerUpdated, Attributes: attrs}
}

// NewWrappedNativeSetEvent returns the payload emitted on the one-time
// wrapped native configuration.
func NewWrappedNativeSetEvent(asset [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["asset"] = hex.EncodeToString(asset[:])
	return &types.Event{Type: EventTypeWrappedNativeSet, Attributes: attrs}
}

// NewBiddingToggledEvent returns the payload emitted when the bidding
// switch changes.
func NewBiddingToggledEvent(active bool) *types.Event {
	attrs := make(map[string]string)
	attrs["active"] = strconv.FormatBool(active)
	return &types.Event{Type: EventTypeBiddingToggled, Attributes: attrs}
}

// NewPausedEvent returns the payload emitted when the marketplace pauses.
func NewPausedEvent() *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: make(map[string]string)}
}

// NewUnpausedEvent returns the payload emitted when the marketplace
// resumes.
func NewUnpausedEvent() *types.Event {
	return &types.Event{Type: EventTypeUnpaused, Attributes: make(map[string]string)}
}

// NewRoleGrantedEvent returns the payload for a role grant.
func NewRoleGrantedEvent(role string, addr [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["role"] = role
	attrs["address"] = hex.EncodeToString(addr[:])
	return &types.Event{Type: EventTypeRoleGranted, Attributes: attrs}
}

// NewRoleRevokedEvent returns the payload for a role revocation.
func NewRoleRevokedEvent(role string, addr [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["role"] = role
	attrs["address"] = hex.EncodeToString(addr[:])
	return &types.Event{Type: EventTypeRoleRevoked, Attributes: attrs}
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(l.Collection[:])
	attrs["tokenId"] = tokenIDString(l.TokenID)
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	offerAttrs(attrs, &l.Offer)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newTokenBidEvent(eventType string, b *TokenBid) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(b.Collection[:])
	attrs["tokenId"] = tokenIDString(b.TokenID)
	attrs["bidder"] = hex.EncodeToString(b.Bidder[:])
	offerAttrs(attrs, &b.Offer)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newCollectionBidEvent(eventType string, b *CollectionBid) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(b.Collection[:])
	attrs["bidder"] = hex.EncodeToString(b.Bidder[:])
	offerAttrs(attrs, &b.Offer)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newTradeAttrs(collection [20]byte, tokenID *big.Int, quantity uint64, pricePerUnit *big.Int, paymentAsset [20]byte, split *FeeBreakdown) map[string]string {
	attrs := make(map[string]string)
	attrs["collection"] = hex.EncodeToString(collection[:])
	attrs["tokenId"] = tokenIDString(tokenID)
	attrs["quantity"] = strconv.FormatUint(quantity, 10)
	attrs["pricePerUnit"] = bigString(pricePerUnit)
	attrs["paymentAsset"] = hex.EncodeToString(paymentAsset[:])
	if split != nil {
		attrs["protocolFee"] = bigString(split.ProtocolFee)
		attrs["collectionFee"] = bigString(split.CollectionFee)
		attrs["proceeds"] = bigString(split.Proceeds)
		if split.CollectionFee != nil && split.CollectionFee.Sign() > 0 {
			attrs["collectionFeeRecipient"] = hex.EncodeToString(split.CollectionRecipient[:])
		}
	}
	return attrs
}

func offerAttrs(attrs map[string]string, o *Offer) {
	attrs["quantity"] = strconv.FormatUint(o.Quantity, 10)
	attrs["pricePerUnit"] = bigString(o.PricePerUnit)
	attrs["expiresAt"] = strconv.FormatUint(o.ExpiresAt, 10)
	attrs["paymentAsset"] = hex.EncodeToString(o.PaymentAsset[:])
}

func tokenIDString(tokenID *big.Int) string {
	if tokenID == nil {
		return "0"
	}
	return tokenID.String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
