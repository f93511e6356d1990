package market

import (
	"fmt"
	"math/big"

	"nftmarket/core/events"
)

// BuyItems executes a buyer-initiated batch of purchases against stored
// listings. The batch is processed strictly in order and commits or aborts
// as a whole. attachedNative is the native value the caller attached; it
// must equal the summed price of the native-settled items exactly.
func (e *Engine) BuyItems(buyer [20]byte, orders []BuyOrder, attachedNative *big.Int) error {
	return e.runMutation(func(q *events.Queue) error {
		params, err := e.params()
		if err != nil {
			return err
		}
		if err := e.guardPause(params); err != nil {
			return err
		}
		attached, err := sanitizeAmount("attached native value", orValueZero(attachedNative))
		if err != nil {
			return err
		}
		if attached.Sign() > 0 {
			if isZeroAddress(params.WrappedNative) {
				return ErrNativeUnsupported
			}
			if e.funds == nil {
				return errNilFunds
			}
			// Wrap the attached value into the marketplace settlement
			// account; distribution below uses ordinary transfers.
			if err := e.funds.Deposit(params.WrappedNative, e.marketAcc, attached); err != nil {
				return fmt.Errorf("%w: native deposit: %v", errExternalCall, err)
			}
		}
		nativeSpent := big.NewInt(0)
		for _, order := range orders {
			if err := e.buyItem(q, params, buyer, order, attached, nativeSpent); err != nil {
				return err
			}
		}
		if nativeSpent.Cmp(attached) != 0 {
			return ErrNativeValue
		}
		return nil
	})
}

func (e *Engine) buyItem(q *events.Queue, params *Params, buyer [20]byte, order BuyOrder, attached, nativeSpent *big.Int) error {
	tokenID, err := sanitizeTokenID(order.TokenID)
	if err != nil {
		return err
	}
	maxPrice, err := sanitizeAmount("max price per unit", order.MaxPricePerUnit)
	if err != nil {
		return err
	}
	if order.Quantity == 0 {
		return ErrInvalidQuantity
	}
	if buyer == order.Seller {
		return ErrSelfTrade
	}
	listing, ok, err := e.state.ListingGet(order.Collection, tokenID, order.Seller)
	if err != nil {
		return err
	}
	if !ok || !listing.Live() {
		return ErrListingNotFound
	}
	if listing.ExpiresAt <= e.now() {
		return ErrOfferExpired
	}
	if order.Quantity > listing.Quantity {
		return ErrQuantityExceeded
	}
	// The ceiling compares against the stored listing price at call time.
	if listing.PricePerUnit.Cmp(maxPrice) > 0 {
		return ErrMaxPriceExceeded
	}
	kind, err := e.resolveKind(order.Collection)
	if err != nil {
		return err
	}
	if kind == AssetKindSingleton && order.Quantity != 1 {
		return ErrInvalidQuantity
	}
	collectionAsset, err := e.resolveCollectionPayment(params, order.Collection)
	if err != nil {
		return err
	}
	offerAsset := resolveOfferPayment(params, listing.PaymentAsset)
	declared := resolveOfferPayment(params, order.PaymentAsset)
	if err := checkPaymentAgreement(offerAsset, collectionAsset, declared); err != nil {
		return err
	}
	payFrom := buyer
	gross := paymentTotal(listing.PricePerUnit, order.Quantity)
	if order.UseNative {
		if collectionAsset != params.WrappedNative || isZeroAddress(params.WrappedNative) {
			return ErrNativeUnsupported
		}
		remaining := new(big.Int).Sub(attached, nativeSpent)
		if remaining.Cmp(gross) < 0 {
			return ErrNativeValue
		}
		payFrom = e.marketAcc
	}
	if err := e.transferAsset(order.Collection, order.Seller, buyer, tokenID, order.Quantity); err != nil {
		return err
	}
	split, err := e.computeFees(params, order.Collection, gross)
	if err != nil {
		return err
	}
	if err := e.payOut(collectionAsset, payFrom, order.Seller, params.FeeRecipient, split); err != nil {
		return err
	}
	if order.UseNative {
		nativeSpent.Add(nativeSpent, gross)
	}
	if err := e.recordSale(params, order.Collection, tokenID, listing.PricePerUnit); err != nil {
		return err
	}
	// Deplete: full consumption removes the listing from the store.
	if order.Quantity == listing.Quantity {
		if err := e.state.ListingDelete(order.Collection, tokenID, order.Seller); err != nil {
			return err
		}
	} else {
		listing.Quantity -= order.Quantity
		if err := e.state.ListingPut(listing); err != nil {
			return err
		}
	}
	q.Emit(marketEvent{evt: NewItemSoldEvent(order.Collection, tokenID, order.Seller, buyer, order.Quantity, listing.PricePerUnit, collectionAsset, split)})
	return nil
}

// AcceptBids executes a seller-initiated batch supplying assets against
// stored bids. Bids require an exact price match because the bidder is the
// price-setter, and can never be oversupplied.
func (e *Engine) AcceptBids(seller [20]byte, orders []AcceptOrder) error {
	return e.runMutation(func(q *events.Queue) error {
		params, err := e.params()
		if err != nil {
			return err
		}
		if err := e.guardPause(params); err != nil {
			return err
		}
		if err := e.guardBidding(params); err != nil {
			return err
		}
		for _, order := range orders {
			if err := e.acceptBid(q, params, seller, order); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) acceptBid(q *events.Queue, params *Params, seller [20]byte, order AcceptOrder) error {
	tokenID, err := sanitizeTokenID(order.TokenID)
	if err != nil {
		return err
	}
	declaredPrice, err := sanitizeAmount("price per unit", order.PricePerUnit)
	if err != nil {
		return err
	}
	if order.Quantity == 0 {
		return ErrInvalidQuantity
	}
	if seller == order.Bidder {
		return ErrSelfTrade
	}
	kind, err := e.resolveKind(order.Collection)
	if err != nil {
		return err
	}
	var bid Offer
	switch order.Kind {
	case BidRefToken:
		stored, ok, err := e.state.TokenBidGet(order.Collection, tokenID, order.Bidder)
		if err != nil {
			return err
		}
		if !ok || !stored.Live() {
			return ErrBidNotFound
		}
		bid = stored.Offer
	case BidRefCollection:
		if kind != AssetKindSingleton {
			return ErrCollectionBidMultiUnit
		}
		stored, ok, err := e.state.CollectionBidGet(order.Collection, order.Bidder)
		if err != nil {
			return err
		}
		if !ok || !stored.Live() {
			return ErrBidNotFound
		}
		bid = stored.Offer
	default:
		return fmt.Errorf("market: unknown bid reference %d", order.Kind)
	}
	if bid.ExpiresAt <= e.now() {
		return ErrOfferExpired
	}
	if order.Quantity > bid.Quantity {
		return ErrQuantityExceeded
	}
	if kind == AssetKindSingleton && order.Quantity != 1 {
		return ErrInvalidQuantity
	}
	if bid.PricePerUnit.Cmp(declaredPrice) != 0 {
		return ErrPriceMismatch
	}
	collectionAsset, err := e.resolveCollectionPayment(params, order.Collection)
	if err != nil {
		return err
	}
	offerAsset := resolveOfferPayment(params, bid.PaymentAsset)
	declared := resolveOfferPayment(params, order.PaymentAsset)
	if err := checkPaymentAgreement(offerAsset, collectionAsset, declared); err != nil {
		return err
	}
	if err := e.checkSellerHolding(kind, order.Collection, tokenID, seller, order.Quantity); err != nil {
		return err
	}
	gross := paymentTotal(bid.PricePerUnit, order.Quantity)
	if e.funds == nil {
		return errNilFunds
	}
	balance, err := e.funds.BalanceOf(collectionAsset, order.Bidder)
	if err != nil {
		return fmt.Errorf("%w: balance lookup: %v", errExternalCall, err)
	}
	if balance == nil || balance.Cmp(gross) < 0 {
		return ErrInsufficientFunds
	}
	allowance, err := e.funds.Allowance(collectionAsset, order.Bidder, e.marketAcc)
	if err != nil {
		return fmt.Errorf("%w: allowance lookup: %v", errExternalCall, err)
	}
	if allowance == nil || allowance.Cmp(gross) < 0 {
		return ErrPaymentNotApproved
	}
	if err := e.transferAsset(order.Collection, seller, order.Bidder, tokenID, order.Quantity); err != nil {
		return err
	}
	split, err := e.computeFees(params, order.Collection, gross)
	if err != nil {
		return err
	}
	if err := e.payOut(collectionAsset, order.Bidder, seller, params.FeeRecipient, split); err != nil {
		return err
	}
	if err := e.recordSale(params, order.Collection, tokenID, bid.PricePerUnit); err != nil {
		return err
	}
	remaining := bid.Quantity - order.Quantity
	switch order.Kind {
	case BidRefToken:
		updated := &TokenBid{Collection: order.Collection, TokenID: tokenID, Bidder: order.Bidder, Offer: bid}
		updated.Quantity = remaining
		if err := e.state.TokenBidPut(updated); err != nil {
			return err
		}
	case BidRefCollection:
		updated := &CollectionBid{Collection: order.Collection, Bidder: order.Bidder, Offer: bid}
		updated.Quantity = remaining
		if err := e.state.CollectionBidPut(updated); err != nil {
			return err
		}
	}
	q.Emit(marketEvent{evt: NewBidAcceptedEvent(order.Collection, tokenID, order.Bidder, seller, order.Quantity, bid.PricePerUnit, collectionAsset, split)})
	return nil
}

// payOut distributes one settled gross amount: protocol fee, collection fee,
// then counterparty proceeds. The split always sums to the gross amount.
func (e *Engine) payOut(asset [20]byte, from, proceedsTo, feeRecipient [20]byte, split *FeeBreakdown) error {
	if err := e.transferFunds(asset, from, feeRecipient, split.ProtocolFee); err != nil {
		return err
	}
	if split.CollectionFee.Sign() > 0 {
		if err := e.transferFunds(asset, from, split.CollectionRecipient, split.CollectionFee); err != nil {
			return err
		}
	}
	return e.transferFunds(asset, from, proceedsTo, split.Proceeds)
}

func orValueZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
