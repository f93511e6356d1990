package rpc

import "net/http"

type setFeeParams struct {
	Caller             string `json:"caller"`
	FeeBps             uint32 `json:"feeBps"`
	FeeWithOverrideBps uint32 `json:"feeWithOverrideBps"`
}

type addressParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type setCollectionFeeParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	FeeBps     uint32 `json:"feeBps"`
	Recipient  string `json:"recipient,omitempty"`
}

type setCollectionPaymentParams struct {
	Caller     string `json:"caller"`
	Collection string `json:"collection"`
	Asset      string `json:"asset,omitempty"`
}

type setBiddingActiveParams struct {
	Caller string `json:"caller"`
	Active bool   `json:"active"`
}

type callerParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handleSetFee(w http.ResponseWriter, req *RPCRequest) string {
	var params setFeeParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error {
		return s.engine.SetFee(caller, params.FeeBps, params.FeeWithOverrideBps)
	}); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	recipient, err := parseAddress("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.SetFeeRecipient(caller, recipient) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetCollectionFee(w http.ResponseWriter, req *RPCRequest) string {
	var params setCollectionFeeParams
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
	recipient, err := parseOptionalAddress("recipient", params.Recipient)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error {
		return s.engine.SetCollectionFee(caller, collection, params.FeeBps, recipient)
	}); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetCollectionPayment(w http.ResponseWriter, req *RPCRequest) string {
	var params setCollectionPaymentParams
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
	asset, err := parseOptionalAddress("asset", params.Asset)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error {
		return s.engine.SetCollectionPayment(caller, collection, asset)
	}); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetPriceTracker(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	tracker, err := parseOptionalAddress("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.SetPriceTracker(caller, tracker) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetWrappedNative(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	asset, err := parseAddress("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.SetWrappedNative(caller, asset) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleSetBiddingActive(w http.ResponseWriter, req *RPCRequest) string {
	var params setBiddingActiveParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.SetBiddingActive(caller, params.Active) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handlePause(w http.ResponseWriter, req *RPCRequest) string {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.Pause(caller) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleUnpause(w http.ResponseWriter, req *RPCRequest) string {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.Unpause(caller) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleGrantRole(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.GrantRole(caller, addr) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.writeParamError(w, req, err)
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return s.writeParamError(w, req, err)
	}
	if err := s.mutate(func() error { return s.engine.RevokeRole(caller, addr) }); err != nil {
		return s.writeEngineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return "ok"
}
