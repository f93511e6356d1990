package state

import (
	"math/big"

	"nftmarket/native/market"
)

// ParamsGet loads the marketplace scalar record.
func (m *Manager) ParamsGet() (*market.Params, bool, error) {
	params := new(market.Params)
	ok, err := m.loadRLP(paramsKey, params)
	if err != nil || !ok {
		return nil, false, err
	}
	return params, true, nil
}

// ParamsPut stores the marketplace scalar record.
func (m *Manager) ParamsPut(params *market.Params) error {
	return m.writeRLP(paramsKey, params)
}

// ListingGet loads the listing stored under (collection, tokenId, seller).
func (m *Manager) ListingGet(collection [20]byte, tokenID *big.Int, seller [20]byte) (*market.Listing, bool, error) {
	listing := new(market.Listing)
	ok, err := m.loadRLP(listingKey(collection, tokenID, seller), listing)
	if err != nil || !ok {
		return nil, false, err
	}
	return listing, true, nil
}

// ListingPut stores the listing under its composite key.
func (m *Manager) ListingPut(listing *market.Listing) error {
	return m.writeRLP(listingKey(listing.Collection, listing.TokenID, listing.Seller), listing)
}

// ListingDelete removes the listing record entirely.
func (m *Manager) ListingDelete(collection [20]byte, tokenID *big.Int, seller [20]byte) error {
	m.delete(listingKey(collection, tokenID, seller))
	return nil
}

// TokenBidGet loads the token bid stored under (collection, tokenId, bidder).
func (m *Manager) TokenBidGet(collection [20]byte, tokenID *big.Int, bidder [20]byte) (*market.TokenBid, bool, error) {
	bid := new(market.TokenBid)
	ok, err := m.loadRLP(tokenBidKey(collection, tokenID, bidder), bid)
	if err != nil || !ok {
		return nil, false, err
	}
	return bid, true, nil
}

// TokenBidPut stores the token bid under its composite key.
func (m *Manager) TokenBidPut(bid *market.TokenBid) error {
	return m.writeRLP(tokenBidKey(bid.Collection, bid.TokenID, bid.Bidder), bid)
}

// CollectionBidGet loads the collection bid stored under (collection, bidder).
func (m *Manager) CollectionBidGet(collection [20]byte, bidder [20]byte) (*market.CollectionBid, bool, error) {
	bid := new(market.CollectionBid)
	ok, err := m.loadRLP(collectionBidKey(collection, bidder), bid)
	if err != nil || !ok {
		return nil, false, err
	}
	return bid, true, nil
}

// CollectionBidPut stores the collection bid under its composite key.
func (m *Manager) CollectionBidPut(bid *market.CollectionBid) error {
	return m.writeRLP(collectionBidKey(bid.Collection, bid.Bidder), bid)
}

// CollectionFeeGet loads the collection's fee override.
func (m *Manager) CollectionFeeGet(collection [20]byte) (*market.CollectionFee, bool, error) {
	fee := new(market.CollectionFee)
	ok, err := m.loadRLP(collectionFeeKey(collection), fee)
	if err != nil || !ok {
		return nil, false, err
	}
	return fee, true, nil
}

// CollectionFeePut stores the collection's fee override.
func (m *Manager) CollectionFeePut(collection [20]byte, fee *market.CollectionFee) error {
	return m.writeRLP(collectionFeeKey(collection), fee)
}

// CollectionFeeDelete clears the collection's fee override.
func (m *Manager) CollectionFeeDelete(collection [20]byte) error {
	m.delete(collectionFeeKey(collection))
	return nil
}

// CollectionPaymentGet loads the collection's payment-asset override.
func (m *Manager) CollectionPaymentGet(collection [20]byte) ([20]byte, bool, error) {
	var asset [20]byte
	data, ok, err := m.get(collectionPaymentKey(collection))
	if err != nil || !ok {
		return asset, false, err
	}
	copy(asset[:], data)
	return asset, true, nil
}

// CollectionPaymentPut stores the collection's payment-asset override.
func (m *Manager) CollectionPaymentPut(collection [20]byte, asset [20]byte) error {
	value := make([]byte, len(asset))
	copy(value, asset[:])
	m.put(collectionPaymentKey(collection), value)
	return nil
}

// CollectionPaymentDelete clears the collection's payment-asset override.
func (m *Manager) CollectionPaymentDelete(collection [20]byte) error {
	m.delete(collectionPaymentKey(collection))
	return nil
}
