package market

import (
	"fmt"
	"math/big"
)

// AssetKind classifies the transfer interface a collection supports.
type AssetKind uint8

const (
	AssetKindUnsupported AssetKind = iota
	// AssetKindSingleton is a collection where each identifier has exactly
	// one unit and one exclusive owner.
	AssetKindSingleton
	// AssetKindMultiUnit is a collection where each identifier carries a
	// per-holder balance divisible among many holders.
	AssetKindMultiUnit
)

// Valid reports whether the kind is one of the supported classes.
func (k AssetKind) Valid() bool {
	return k == AssetKindSingleton || k == AssetKindMultiUnit
}

// Offer is the shared shape of a listing and a bid. Quantity > 0 marks the
// offer live; zero quantity is the cancellation signal.
type Offer struct {
	Quantity     uint64
	PricePerUnit *big.Int
	ExpiresAt    uint64
	PaymentAsset [20]byte
}

// Live reports whether the offer can still be consumed (expiry is checked
// separately at consumption time).
func (o Offer) Live() bool {
	return o.Quantity > 0
}

func (o Offer) cloneInto(dst *Offer) {
	*dst = o
	if o.PricePerUnit != nil {
		dst.PricePerUnit = new(big.Int).Set(o.PricePerUnit)
	} else {
		dst.PricePerUnit = big.NewInt(0)
	}
}

// Listing is a seller offer keyed by (collection, tokenId, seller).
type Listing struct {
	Collection [20]byte
	TokenID    *big.Int
	Seller     [20]byte
	Offer
}

// Clone returns a deep copy so callers can mutate the copy without touching
// the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := &Listing{Collection: l.Collection, Seller: l.Seller}
	clone.TokenID = cloneBig(l.TokenID)
	l.Offer.cloneInto(&clone.Offer)
	return clone
}

// TokenBid is a buyer offer for a specific token, keyed by
// (collection, tokenId, bidder).
type TokenBid struct {
	Collection [20]byte
	TokenID    *big.Int
	Bidder     [20]byte
	Offer
}

func (b *TokenBid) Clone() *TokenBid {
	if b == nil {
		return nil
	}
	clone := &TokenBid{Collection: b.Collection, Bidder: b.Bidder}
	clone.TokenID = cloneBig(b.TokenID)
	b.Offer.cloneInto(&clone.Offer)
	return clone
}

// CollectionBid is a buyer offer for any token of a singleton collection,
// keyed by (collection, bidder). Quantity counts how many distinct tokens
// the bidder will accept across possibly-separate trades.
type CollectionBid struct {
	Collection [20]byte
	Bidder     [20]byte
	Offer
}

func (b *CollectionBid) Clone() *CollectionBid {
	if b == nil {
		return nil
	}
	clone := &CollectionBid{Collection: b.Collection, Bidder: b.Bidder}
	b.Offer.cloneInto(&clone.Offer)
	return clone
}

// CollectionFee is the per-collection fee override. A non-zero recipient
// activates the override schedule; clearing the override reverts the
// collection to the standard protocol fee.
type CollectionFee struct {
	FeeBps    uint32
	Recipient [20]byte
}

// Params holds the process-wide marketplace scalars. They are read fresh on
// every operation; the admin path is the only writer.
type Params struct {
	FeeBps              uint32
	FeeWithOverrideBps  uint32
	FeeRecipient        [20]byte
	MinPriceFloor       *big.Int
	DefaultPaymentAsset [20]byte
	WrappedNative       [20]byte
	PriceTracker        [20]byte
	Paused              bool
	BiddingActive       bool
}

// Clone returns a deep copy of the params record.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	clone.MinPriceFloor = cloneBig(p.MinPriceFloor)
	return &clone
}

// ListingInput is the request shape shared by listing and token bid upserts.
type ListingInput struct {
	Collection   [20]byte
	TokenID      *big.Int
	Quantity     uint64
	PricePerUnit *big.Int
	ExpiresAt    uint64
	PaymentAsset [20]byte
}

// CollectionBidInput is the request shape for a collection-level bid.
type CollectionBidInput struct {
	Collection   [20]byte
	Quantity     uint64
	PricePerUnit *big.Int
	ExpiresAt    uint64
	PaymentAsset [20]byte
}

// CancelInput identifies a listing or token bid to cancel.
type CancelInput struct {
	Collection [20]byte
	TokenID    *big.Int
}

// BuyOrder is one item of a buy-against-listing batch.
type BuyOrder struct {
	Collection      [20]byte
	TokenID         *big.Int
	Seller          [20]byte
	Quantity        uint64
	MaxPricePerUnit *big.Int
	PaymentAsset    [20]byte
	UseNative       bool
}

// BidRef selects which bid store an accept order consumes from.
type BidRef uint8

const (
	BidRefToken BidRef = iota
	BidRefCollection
)

// AcceptOrder is one item of a supply-against-bid batch. TokenID names the
// token being supplied; for collection bids it selects which token of the
// collection the seller delivers.
type AcceptOrder struct {
	Kind         BidRef
	Collection   [20]byte
	TokenID      *big.Int
	Bidder       [20]byte
	Quantity     uint64
	PricePerUnit *big.Int
	PaymentAsset [20]byte
}

const maxAmountBits = 128

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func sanitizeAmount(label string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("market: %s must not be nil", label)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("market: %s must be non-negative", label)
	}
	if v.BitLen() > maxAmountBits {
		return nil, fmt.Errorf("market: %s exceeds 128 bits", label)
	}
	return new(big.Int).Set(v), nil
}

func sanitizeTokenID(v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("market: token id must not be nil")
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("market: token id must be non-negative")
	}
	return new(big.Int).Set(v), nil
}

var zeroAddress [20]byte

func isZeroAddress(addr [20]byte) bool {
	return addr == zeroAddress
}
