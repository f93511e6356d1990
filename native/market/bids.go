package market

import (
	"fmt"
	"math/big"

	"nftmarket/core/events"
)

// UpsertTokenBid creates or overwrites the caller's bid for one token. Bid
// creation requires the bidding-active switch; the bidder must hold the
// full payment balance and have approved the marketplace to pull it.
func (e *Engine) UpsertTokenBid(bidder [20]byte, in ListingInput) error {
	return e.runMutation(func(q *events.Queue) error {
		params, err := e.params()
		if err != nil {
			return err
		}
		return e.upsertTokenBid(q, params, bidder, in)
	})
}

func (e *Engine) upsertTokenBid(q *events.Queue, params *Params, bidder [20]byte, in ListingInput) error {
	if err := e.guardBidding(params); err != nil {
		return err
	}
	tokenID, err := sanitizeTokenID(in.TokenID)
	if err != nil {
		return err
	}
	kind, err := e.resolveKind(in.Collection)
	if err != nil {
		return err
	}
	switch kind {
	case AssetKindSingleton:
		if in.Quantity != 1 {
			return ErrInvalidQuantity
		}
	case AssetKindMultiUnit:
		if in.Quantity == 0 {
			return ErrInvalidQuantity
		}
	}
	declared, price, err := e.checkBidFunding(params, bidder, in.Collection, in.Quantity, in.PricePerUnit, in.ExpiresAt, in.PaymentAsset)
	if err != nil {
		return err
	}
	prior, ok, err := e.state.TokenBidGet(in.Collection, tokenID, bidder)
	if err != nil {
		return err
	}
	updated := ok && prior.Live()
	bid := &TokenBid{
		Collection: in.Collection,
		TokenID:    tokenID,
		Bidder:     bidder,
		Offer: Offer{
			Quantity:     in.Quantity,
			PricePerUnit: price,
			ExpiresAt:    in.ExpiresAt,
			PaymentAsset: declared,
		},
	}
	if err := e.state.TokenBidPut(bid); err != nil {
		return err
	}
	if updated {
		q.Emit(marketEvent{evt: NewTokenBidUpdatedEvent(bid)})
	} else {
		q.Emit(marketEvent{evt: NewTokenBidCreatedEvent(bid)})
	}
	return nil
}

// UpsertCollectionBid creates or overwrites the caller's collection-level
// bid. Collection bids are rejected for multi-unit collections, where "any
// token" is ambiguous for divisible balances.
func (e *Engine) UpsertCollectionBid(bidder [20]byte, in CollectionBidInput) error {
	return e.runMutation(func(q *events.Queue) error {
		params, err := e.params()
		if err != nil {
			return err
		}
		return e.upsertCollectionBid(q, params, bidder, in)
	})
}

func (e *Engine) upsertCollectionBid(q *events.Queue, params *Params, bidder [20]byte, in CollectionBidInput) error {
	if err := e.guardBidding(params); err != nil {
		return err
	}
	kind, err := e.resolveKind(in.Collection)
	if err != nil {
		return err
	}
	if kind != AssetKindSingleton {
		return ErrCollectionBidMultiUnit
	}
	if in.Quantity == 0 {
		return ErrInvalidQuantity
	}
	declared, price, err := e.checkBidFunding(params, bidder, in.Collection, in.Quantity, in.PricePerUnit, in.ExpiresAt, in.PaymentAsset)
	if err != nil {
		return err
	}
	prior, ok, err := e.state.CollectionBidGet(in.Collection, bidder)
	if err != nil {
		return err
	}
	updated := ok && prior.Live()
	bid := &CollectionBid{
		Collection: in.Collection,
		Bidder:     bidder,
		Offer: Offer{
			Quantity:     in.Quantity,
			PricePerUnit: price,
			ExpiresAt:    in.ExpiresAt,
			PaymentAsset: declared,
		},
	}
	if err := e.state.CollectionBidPut(bid); err != nil {
		return err
	}
	if updated {
		q.Emit(marketEvent{evt: NewCollectionBidUpdatedEvent(bid)})
	} else {
		q.Emit(marketEvent{evt: NewCollectionBidCreatedEvent(bid)})
	}
	return nil
}

// checkBidFunding validates the shared bid-side rules: expiry, price floor,
// payment-asset agreement, and the bidder presently holding balance and
// allowance covering price * quantity.
func (e *Engine) checkBidFunding(params *Params, bidder [20]byte, collection [20]byte, quantity uint64, pricePerUnit *big.Int, expiresAt uint64, paymentAsset [20]byte) ([20]byte, *big.Int, error) {
	if e.funds == nil {
		return zeroAddress, nil, errNilFunds
	}
	price, err := sanitizeAmount("price per unit", pricePerUnit)
	if err != nil {
		return zeroAddress, nil, err
	}
	if expiresAt <= e.now() {
		return zeroAddress, nil, ErrExpirationInPast
	}
	if price.Cmp(params.MinPriceFloor) < 0 {
		return zeroAddress, nil, ErrPriceBelowFloor
	}
	collectionAsset, err := e.resolveCollectionPayment(params, collection)
	if err != nil {
		return zeroAddress, nil, err
	}
	declared := resolveOfferPayment(params, paymentAsset)
	if err := checkPaymentAgreement(declared, collectionAsset, declared); err != nil {
		return zeroAddress, nil, err
	}
	total := paymentTotal(price, quantity)
	balance, err := e.funds.BalanceOf(declared, bidder)
	if err != nil {
		return zeroAddress, nil, fmt.Errorf("%w: balance lookup: %v", errExternalCall, err)
	}
	if balance == nil || balance.Cmp(total) < 0 {
		return zeroAddress, nil, ErrInsufficientFunds
	}
	allowance, err := e.funds.Allowance(declared, bidder, e.marketAcc)
	if err != nil {
		return zeroAddress, nil, fmt.Errorf("%w: allowance lookup: %v", errExternalCall, err)
	}
	if allowance == nil || allowance.Cmp(total) < 0 {
		return zeroAddress, nil, ErrPaymentNotApproved
	}
	return declared, price, nil
}

// CancelTokenBid zeroes the caller's token bid. Idempotent; the record
// stays addressable with zero quantity. Not gated by pause or the bidding
// switch so bidders can always withdraw.
func (e *Engine) CancelTokenBid(bidder [20]byte, in CancelInput) error {
	return e.runMutation(func(q *events.Queue) error {
		tokenID, err := sanitizeTokenID(in.TokenID)
		if err != nil {
			return err
		}
		bid, ok, err := e.state.TokenBidGet(in.Collection, tokenID, bidder)
		if err != nil {
			return err
		}
		if ok && bid.Quantity > 0 {
			bid.Quantity = 0
			if err := e.state.TokenBidPut(bid); err != nil {
				return err
			}
		}
		q.Emit(marketEvent{evt: NewTokenBidCancelledEvent(in.Collection, tokenID, bidder)})
		return nil
	})
}

// CancelCollectionBid zeroes the caller's collection bid. Idempotent.
func (e *Engine) CancelCollectionBid(bidder [20]byte, collection [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		bid, ok, err := e.state.CollectionBidGet(collection, bidder)
		if err != nil {
			return err
		}
		if ok && bid.Quantity > 0 {
			bid.Quantity = 0
			if err := e.state.CollectionBidPut(bid); err != nil {
				return err
			}
		}
		q.Emit(marketEvent{evt: NewCollectionBidCancelledEvent(collection, bidder)})
		return nil
	})
}
