package market

import "math/big"

// resolveCollectionPayment returns the collection's settlement asset: the
// per-collection override when present, else the global default.
func (e *Engine) resolveCollectionPayment(params *Params, collection [20]byte) ([20]byte, error) {
	asset, ok, err := e.state.CollectionPaymentGet(collection)
	if err != nil {
		return zeroAddress, err
	}
	if ok && !isZeroAddress(asset) {
		return asset, nil
	}
	return params.DefaultPaymentAsset, nil
}

// resolveOfferPayment returns the offer's recorded asset, falling back to
// the global default for legacy offers recorded before per-collection
// payment existed.
func resolveOfferPayment(params *Params, recorded [20]byte) [20]byte {
	if isZeroAddress(recorded) {
		return params.DefaultPaymentAsset
	}
	return recorded
}

// checkPaymentAgreement enforces the three-way rule: the offer's resolved
// asset, the collection's resolved asset and the caller-declared asset must
// all agree. Changing a collection's settlement asset therefore silently
// invalidates stale offers denominated in the old one.
func checkPaymentAgreement(offerAsset, collectionAsset, declared [20]byte) error {
	if offerAsset != collectionAsset || declared != collectionAsset {
		return ErrPaymentAssetMismatch
	}
	return nil
}

// paymentTotal is price * quantity, the gross amount of one trade leg.
func paymentTotal(pricePerUnit *big.Int, quantity uint64) *big.Int {
	return new(big.Int).Mul(pricePerUnit, new(big.Int).SetUint64(quantity))
}
