package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"nftmarket/native/market"
)

type listingItemParams struct {
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Quantity     uint64 `json:"quantity"`
	PricePerUnit string `json:"pricePerUnit"`
	ExpiresAt    uint64 `json:"expiresAt"`
	PaymentAsset string `json:"paymentAsset,omitempty"`
}

type listTokenParams struct {
	Caller string `json:"caller"`
	listingItemParams
}

type listTokenBatchParams struct {
	Caller string              `json:"caller"`
	Items  []listingItemParams `json:"items"`
}

type cancelItemParams struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
}

type cancelParams struct {
	Caller string `json:"caller"`
	cancelItemParams
}

type cancelBatchParams struct {
	Caller string             `json:"caller"`
	Items  []cancelItemParams `json:"items"`
}

type collectionBidParams struct {
	Caller       string `json:"caller"`
	Collection   string `json:"collection"`
	Quantity     uint64 `json:"quantity"`
	PricePerUnit string `json:"pricePerUnit"`
	ExpiresAt    uint64 `json:"expiresAt"`
	PaymentAsset string `json:"paymentAsset,omitempty"`
}

type cancelCollectionBidParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
}

type buyOrderParams struct {
	Collection      string `json:"collection"`
	TokenID         string `json:"tokenId"`
	Seller          string `json:"seller"`
	Quantity        uint64 `json:"quantity"`
	MaxPricePerUnit string `json:"maxPricePerUnit"`
	PaymentAsset    string `json:"paymentAsset,omitempty"`
	UseNative       bool   `json:"useNative,omitempty"`
}

type buyItemsParams struct {
	Caller        string           `json:"caller"`
	AttachedValue string           `json:"attachedValue,omitempty"`
	Orders        []buyOrderParams `json:"orders"`
}

type acceptOrderParams struct {
	Bid          string `json:"bid"`
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	Bidder       string `json:"bidder"`
	Quantity     uint64 `json:"quantity"`
	PricePerUnit string `json:"pricePerUnit"`
	PaymentAsset string `json:"paymentAsset,omitempty"`
}

type acceptBidsParams struct {
	Caller string              `json:"caller"`
	Orders []acceptOrderParams `json:"orders"`
}

type listingQueryParams struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Seller     string `json:"seller"`
}

type tokenBidQueryParams struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Bidder     string `json:"bidder"`
}

type collectionBidQueryParams struct {
	Collection string `json:"collection"`
	Bidder     string `json:"bidder"`
}

type offerJSON struct {
	Quantity     uint64 `json:"quantity"`
	PricePerUnit string `json:"pricePerUnit"`
	ExpiresAt    uint64 `json:"expiresAt"`
	PaymentAsset string `json:"paymentAsset"`
}

type listingJSON struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Seller     string `json:"seller"`
	offerJSON
}

type tokenBidJSON struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Bidder     string `json:"bidder"`
	offerJSON
}

type collectionBidJSON struct {
	Collection string `json:"collection"`
	Bidder     string `json:"bidder"`
	offerJSON
}

type paramsJSON struct {
	FeeBps              uint32 `json:"feeBps"`
	FeeWithOverrideBps  uint32 `json:"feeWithOverrideBps"`
	FeeRecipient        string `json:"feeRecipient"`
	MinPriceFloor       string `json:"minPriceFloor"`
	DefaultPaymentAsset string `json:"defaultPaymentAsset"`
	WrappedNative       string `json:"wrappedNative"`
	PriceTracker        string `json:"priceTracker"`
	Paused              bool   `json:"paused"`
	BiddingActive       bool   `json:"biddingActive"`
}

func parseAddress(label, value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("%s required", label)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 20 {
		return addr, fmt.Errorf("%s must be a 20-byte hex address", label)
	}
	copy(addr[:], raw)
	return addr, nil
}

// parseOptionalAddress accepts the empty string as the zero address, which
// downstream resolution treats as "use the default".
func parseOptionalAddress(label, value string) ([20]byte, error) {
	var addr [20]byte
	if strings.TrimSpace(value) == "" {
		return addr, nil
	}
	return parseAddress(label, value)
}

func parseBigInt(label, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", label)
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative decimal", label)
	}
	return parsed, nil
}

func parseOptionalBigInt(label, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseBigInt(label, value)
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func listingInputFromParams(item listingItemParams) (market.ListingInput, error) {
	var in market.ListingInput
	collection, err := parseAddress("collection", item.Collection)
	if err != nil {
		return in, err
	}
	tokenID, err := parseBigInt("tokenId", item.TokenID)
	if err != nil {
		return in, err
	}
	price, err := parseBigInt("pricePerUnit", item.PricePerUnit)
	if err != nil {
		return in, err
	}
	payment, err := parseOptionalAddress("paymentAsset", item.PaymentAsset)
	if err != nil {
		return in, err
	}
	in = market.ListingInput{
		Collection:   collection,
		TokenID:      tokenID,
		Quantity:     item.Quantity,
		PricePerUnit: price,
		ExpiresAt:    item.ExpiresAt,
		PaymentAsset: payment,
	}
	return in, nil
}

func cancelInputFromParams(item cancelItemParams) (market.CancelInput, error) {
	var in market.CancelInput
	collection, err := parseAddress("collection", item.Collection)
	if err != nil {
		return in, err
	}
	tokenID, err := parseBigInt("tokenId", item.TokenID)
	if err != nil {
		return in, err
	}
	in = market.CancelInput{Collection: collection, TokenID: tokenID}
	return in, nil
}

func addrString(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func offerToJSON(o market.Offer) offerJSON {
	price := "0"
	if o.PricePerUnit != nil {
		price = o.PricePerUnit.String()
	}
	return offerJSON{
		Quantity:     o.Quantity,
		PricePerUnit: price,
		ExpiresAt:    o.ExpiresAt,
		PaymentAsset: addrString(o.PaymentAsset),
	}
}

func (s *Server) handleListToken(w http.ResponseWriter, req *RPCRequest) string {
	var params listTokenParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	in, err := listingInputFromParams(params.listingItemParams)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.UpsertListing(caller, in) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleListTokenBatch(w http.ResponseWriter, req *RPCRequest) string {
	var params listTokenBatchParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if len(params.Items) == 0 {
		return s.writeParamError(w, req, fmt.Errorf("items required"))
	}
	items := make([]market.ListingInput, 0, len(params.Items))
	for _, item := range params.Items {
		in, err := listingInputFromParams(item)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		items = append(items, in)
	}
	if err := s.mutate(func() error { return s.engine.UpsertListingBatch(caller, items) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleCancelListing(w http.ResponseWriter, req *RPCRequest) string {
	var params cancelParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	in, err := cancelInputFromParams(params.cancelItemParams)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.CancelListing(caller, in) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleCancelListingBatch(w http.ResponseWriter, req *RPCRequest) string {
	var params cancelBatchParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if len(params.Items) == 0 {
		return s.writeParamError(w, req, fmt.Errorf("items required"))
	}
	items := make([]market.CancelInput, 0, len(params.Items))
	for _, item := range params.Items {
		in, err := cancelInputFromParams(item)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		items = append(items, in)
	}
	if err := s.mutate(func() error { return s.engine.CancelListingBatch(caller, items) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handlePlaceTokenBid(w http.ResponseWriter, req *RPCRequest) string {
	var params listTokenParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	in, err := listingInputFromParams(params.listingItemParams)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.UpsertTokenBid(caller, in) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handlePlaceCollectionBid(w http.ResponseWriter, req *RPCRequest) string {
	var params collectionBidParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	price, err := parseBigInt("pricePerUnit", params.PricePerUnit)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	payment, err := parseOptionalAddress("paymentAsset", params.PaymentAsset)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	in := market.CollectionBidInput{
		Collection:   collection,
		Quantity:     params.Quantity,
		PricePerUnit: price,
		ExpiresAt:    params.ExpiresAt,
		PaymentAsset: payment,
	}
	if err := s.mutate(func() error { return s.engine.UpsertCollectionBid(caller, in) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleCancelTokenBid(w http.ResponseWriter, req *RPCRequest) string {
	var params cancelParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	in, err := cancelInputFromParams(params.cancelItemParams)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.CancelTokenBid(caller, in) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleCancelCollectionBid(w http.ResponseWriter, req *RPCRequest) string {
	var params cancelCollectionBidParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.CancelCollectionBid(caller, collection) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleBuyItems(w http.ResponseWriter, req *RPCRequest) string {
	var params buyItemsParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if len(params.Orders) == 0 {
		return s.writeParamError(w, req, fmt.Errorf("orders required"))
	}
	attached, err := parseOptionalBigInt("attachedValue", params.AttachedValue)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	orders := make([]market.BuyOrder, 0, len(params.Orders))
	for _, order := range params.Orders {
		collection, err := parseAddress("collection", order.Collection)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		tokenID, err := parseBigInt("tokenId", order.TokenID)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		seller, err := parseAddress("seller", order.Seller)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		maxPrice, err := parseBigInt("maxPricePerUnit", order.MaxPricePerUnit)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		payment, err := parseOptionalAddress("paymentAsset", order.PaymentAsset)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		orders = append(orders, market.BuyOrder{
			Collection:      collection,
			TokenID:         tokenID,
			Seller:          seller,
			Quantity:        order.Quantity,
			MaxPricePerUnit: maxPrice,
			PaymentAsset:    payment,
			UseNative:       order.UseNative,
		})
	}
	if err := s.mutate(func() error { return s.engine.BuyItems(caller, orders, attached) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.metrics.ObserveTrade("buy", len(orders))
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleAcceptBids(w http.ResponseWriter, req *RPCRequest) string {
	var params acceptBidsParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if len(params.Orders) == 0 {
		return s.writeParamError(w, req, fmt.Errorf("orders required"))
	}
	orders := make([]market.AcceptOrder, 0, len(params.Orders))
	for _, order := range params.Orders {
		var kind market.BidRef
		switch strings.ToLower(strings.TrimSpace(order.Bid)) {
		case "token", "":
			kind = market.BidRefToken
		case "collection":
			kind = market.BidRefCollection
		default:
			return s.writeParamError(w, req, fmt.Errorf("bid must be %q or %q", "token", "collection"))
		}
		collection, err := parseAddress("collection", order.Collection)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		tokenID, err := parseBigInt("tokenId", order.TokenID)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		bidder, err := parseAddress("bidder", order.Bidder)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		price, err := parseBigInt("pricePerUnit", order.PricePerUnit)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		payment, err := parseOptionalAddress("paymentAsset", order.PaymentAsset)
		if err != nil {
			return s.writeParamError(w, req, err)
		}
		orders = append(orders, market.AcceptOrder{
			Kind:         kind,
			Collection:   collection,
			TokenID:      tokenID,
			Bidder:       bidder,
			Quantity:     order.Quantity,
			PricePerUnit: price,
			PaymentAsset: payment,
		})
	}
	if err := s.mutate(func() error { return s.engine.AcceptBids(caller, orders) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	s.metrics.ObserveTrade("accept", len(orders))
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleGetListing(w http.ResponseWriter, req *RPCRequest) string {
	var params listingQueryParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	tokenID, err := parseBigInt("tokenId", params.TokenID)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	seller, err := parseAddress("seller", params.Seller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	var listing *market.Listing
	var found bool
	err = s.query(func() error {
		var inner error
		listing, found, inner = s.engine.GetListing(collection, tokenID, seller)
		return inner
	})
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	if !found {
		return s.writeEngineError(w, req, market.ErrListingNotFound)
	}
	result := listingJSON{
		Collection: addrString(listing.Collection),
		TokenID:    listing.TokenID.String(),
		Seller:     addrString(listing.Seller),
		offerJSON:  offerToJSON(listing.Offer),
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleGetTokenBid(w http.ResponseWriter, req *RPCRequest) string {
	var params tokenBidQueryParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	tokenID, err := parseBigInt("tokenId", params.TokenID)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	bidder, err := parseAddress("bidder", params.Bidder)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	var bid *market.TokenBid
	var found bool
	err = s.query(func() error {
		var inner error
		bid, found, inner = s.engine.GetTokenBid(collection, tokenID, bidder)
		return inner
	})
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	if !found {
		return s.writeEngineError(w, req, market.ErrBidNotFound)
	}
	result := tokenBidJSON{
		Collection: addrString(bid.Collection),
		TokenID:    bid.TokenID.String(),
		Bidder:     addrString(bid.Bidder),
		offerJSON:  offerToJSON(bid.Offer),
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleGetCollectionBid(w http.ResponseWriter, req *RPCRequest) string {
	var params collectionBidQueryParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	collection, err := parseAddress("collection", params.Collection)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	bidder, err := parseAddress("bidder", params.Bidder)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	var bid *market.CollectionBid
	var found bool
	err = s.query(func() error {
		var inner error
		bid, found, inner = s.engine.GetCollectionBid(collection, bidder)
		return inner
	})
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	if !found {
		return s.writeEngineError(w, req, market.ErrBidNotFound)
	}
	result := collectionBidJSON{
		Collection: addrString(bid.Collection),
		Bidder:     addrString(bid.Bidder),
		offerJSON:  offerToJSON(bid.Offer),
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleGetParams(w http.ResponseWriter, req *RPCRequest) string {
	var params *market.Params
	err := s.query(func() error {
		var inner error
		params, inner = s.engine.Params()
		return inner
	})
	if err != nil {
		return s.writeEngineError(w, req, err)
	}
	floor := "0"
	if params.MinPriceFloor != nil {
		floor = params.MinPriceFloor.String()
	}
	result := paramsJSON{
		FeeBps:              params.FeeBps,
		FeeWithOverrideBps:  params.FeeWithOverrideBps,
		FeeRecipient:        addrString(params.FeeRecipient),
		MinPriceFloor:       floor,
		DefaultPaymentAsset: addrString(params.DefaultPaymentAsset),
		WrappedNative:       addrString(params.WrappedNative),
		PriceTracker:        addrString(params.PriceTracker),
		Paused:              params.Paused,
		BiddingActive:       params.BiddingActive,
	}
	writeResult(w, req.ID, result)
	return "ok"
}
