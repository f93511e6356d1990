package market

import (
	"fmt"
	"math/big"

	"nftmarket/core/events"
)

// UpsertListing creates or overwrites the caller's listing for one token.
// The emitted signal distinguishes creation from update based on whether a
// live listing already occupied the key.
func (e *Engine) UpsertListing(seller [20]byte, in ListingInput) error {
	return e.runMutation(func(q *events.Queue) error {
		params, err := e.params()
		if err != nil {
			return err
		}
		return e.upsertListing(q, params, seller, in)
	})
}

// UpsertListingBatch processes the items strictly in order; any failure
// aborts the whole batch with no effects.
func (e *Engine) UpsertListingBatch(seller [20]byte, items []ListingInput) error {
	return e.runMutation(func(q *events.Queue) error {
		params, err := e.params()
		if err != nil {
			return err
		}
		for _, in := range items {
			if err := e.upsertListing(q, params, seller, in); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) upsertListing(q *events.Queue, params *Params, seller [20]byte, in ListingInput) error {
	if err := e.guardPause(params); err != nil {
		return err
	}
	tokenID, err := sanitizeTokenID(in.TokenID)
	if err != nil {
		return err
	}
	price, err := sanitizeAmount("price per unit", in.PricePerUnit)
	if err != nil {
		return err
	}
	kind, err := e.resolveKind(in.Collection)
	if err != nil {
		return err
	}
	if err := e.checkSellerHolding(kind, in.Collection, tokenID, seller, in.Quantity); err != nil {
		return err
	}
	if in.ExpiresAt <= e.now() {
		return ErrExpirationInPast
	}
	if price.Cmp(params.MinPriceFloor) < 0 {
		return ErrPriceBelowFloor
	}
	collectionAsset, err := e.resolveCollectionPayment(params, in.Collection)
	if err != nil {
		return err
	}
	declared := resolveOfferPayment(params, in.PaymentAsset)
	if err := checkPaymentAgreement(declared, collectionAsset, declared); err != nil {
		return err
	}
	prior, ok, err := e.state.ListingGet(in.Collection, tokenID, seller)
	if err != nil {
		return err
	}
	updated := ok && prior.Live()
	listing := &Listing{
		Collection: in.Collection,
		TokenID:    tokenID,
		Seller:     seller,
		Offer: Offer{
			Quantity:     in.Quantity,
			PricePerUnit: price,
			ExpiresAt:    in.ExpiresAt,
			PaymentAsset: declared,
		},
	}
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if updated {
		q.Emit(marketEvent{evt: NewListingUpdatedEvent(listing)})
	} else {
		q.Emit(marketEvent{evt: NewListingCreatedEvent(listing)})
	}
	return nil
}

// checkSellerHolding verifies present ownership (singleton) or balance
// (multi-unit) plus transfer approval for the marketplace, and applies the
// per-kind quantity rules.
func (e *Engine) checkSellerHolding(kind AssetKind, collection [20]byte, tokenID *big.Int, seller [20]byte, quantity uint64) error {
	if e.assets == nil {
		return errNilAssets
	}
	switch kind {
	case AssetKindSingleton:
		if quantity != 1 {
			return ErrInvalidQuantity
		}
		owner, err := e.assets.OwnerOf(collection, tokenID)
		if err != nil {
			return fmt.Errorf("%w: owner lookup: %v", errExternalCall, err)
		}
		if owner != seller {
			return ErrOwnershipCheckFailed
		}
	case AssetKindMultiUnit:
		if quantity == 0 {
			return ErrInvalidQuantity
		}
		balance, err := e.assets.BalanceOf(collection, tokenID, seller)
		if err != nil {
			return fmt.Errorf("%w: balance lookup: %v", errExternalCall, err)
		}
		if balance < quantity {
			return ErrOwnershipCheckFailed
		}
	default:
		return ErrUnsupportedAsset
	}
	approved, err := e.assets.IsApprovedForAll(collection, seller, e.marketAcc)
	if err != nil {
		return fmt.Errorf("%w: approval lookup: %v", errExternalCall, err)
	}
	if !approved {
		return ErrNotApprovedForTransfer
	}
	return nil
}

// CancelListing clears the caller's listing for the token. It is a no-op on
// an absent listing and always emits a cancellation signal. Cancellation
// stays available while the marketplace is paused.
func (e *Engine) CancelListing(seller [20]byte, in CancelInput) error {
	return e.runMutation(func(q *events.Queue) error {
		return e.cancelListing(q, seller, in)
	})
}

// CancelListingBatch cancels the items strictly in order with whole-batch
// semantics.
func (e *Engine) CancelListingBatch(seller [20]byte, items []CancelInput) error {
	return e.runMutation(func(q *events.Queue) error {
		for _, in := range items {
			if err := e.cancelListing(q, seller, in); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) cancelListing(q *events.Queue, seller [20]byte, in CancelInput) error {
	tokenID, err := sanitizeTokenID(in.TokenID)
	if err != nil {
		return err
	}
	if err := e.state.ListingDelete(in.Collection, tokenID, seller); err != nil {
		return err
	}
	q.Emit(marketEvent{evt: NewListingCancelledEvent(in.Collection, tokenID, seller)})
	return nil
}
