package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/core/types"
	"nftmarket/native/market"
	"nftmarket/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	maxStoredEvents = 4096
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

const (
	codeMarketInvalidParams = -32041
	codeMarketNotFound      = -32042
	codeMarketForbidden     = -32043
	codeMarketConflict      = -32044
	codeMarketUnavailable   = -32045
	codeMarketInternal      = -32046
)

// Server exposes the marketplace over JSON-RPC 2.0. A single mutex
// serialises mutating calls so each one observes and commits a consistent
// state overlay.
type Server struct {
	engine  *market.Engine
	st      *state.Manager
	log     *slog.Logger
	metrics *observability.RPCMetrics

	mu      sync.Mutex
	pending []*types.Event
	stored  []StoredEvent
	nextSeq uint64
}

// StoredEvent is one committed marketplace event with its global sequence
// number.
type StoredEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewServer wires the RPC surface to the engine and its state manager. The
// server registers itself as the engine's emitter so committed events become
// queryable through market_events.
func NewServer(engine *market.Engine, st *state.Manager, log *slog.Logger) *Server {
	s := &Server{
		engine:  engine,
		st:      st,
		log:     log,
		metrics: observability.Metrics(),
		nextSeq: 1,
	}
	engine.SetEmitter(s)
	return s
}

// Emit buffers an engine event until the surrounding call commits.
func (s *Server) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	s.pending = append(s.pending, payload)
}

// Start serves the RPC endpoint and the Prometheus scrape handler.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	started := time.Now()
	outcome := s.dispatch(w, req)
	s.metrics.ObserveRequest(req.Method, outcome, time.Since(started))
}

func (s *Server) dispatch(w http.ResponseWriter, req *RPCRequest) string {
	switch req.Method {
	case "market_listToken":
		return s.handleListToken(w, req)
	case "market_listTokenBatch":
		return s.handleListTokenBatch(w, req)
	case "market_cancelListing":
		return s.handleCancelListing(w, req)
	case "market_cancelListingBatch":
		return s.handleCancelListingBatch(w, req)
	case "market_placeTokenBid":
		return s.handlePlaceTokenBid(w, req)
	case "market_placeCollectionBid":
		return s.handlePlaceCollectionBid(w, req)
	case "market_cancelTokenBid":
		return s.handleCancelTokenBid(w, req)
	case "market_cancelCollectionBid":
		return s.handleCancelCollectionBid(w, req)
	case "market_buyItems":
		return s.handleBuyItems(w, req)
	case "market_acceptBids":
		return s.handleAcceptBids(w, req)
	case "market_getListing":
		return s.handleGetListing(w, req)
	case "market_getTokenBid":
		return s.handleGetTokenBid(w, req)
	case "market_getCollectionBid":
		return s.handleGetCollectionBid(w, req)
	case "market_getParams":
		return s.handleGetParams(w, req)
	case "market_events":
		return s.handleEvents(w, req)
	case "marketadmin_setFee":
		return s.handleSetFee(w, req)
	case "marketadmin_setFeeRecipient":
		return s.handleSetFeeRecipient(w, req)
	case "marketadmin_setCollectionFee":
		return s.handleSetCollectionFee(w, req)
	case "marketadmin_setCollectionPayment":
		return s.handleSetCollectionPayment(w, req)
	case "marketadmin_setPriceTracker":
		return s.handleSetPriceTracker(w, req)
	case "marketadmin_setWrappedNative":
		return s.handleSetWrappedNative(w, req)
	case "marketadmin_setBiddingActive":
		return s.handleSetBiddingActive(w, req)
	case "marketadmin_pause":
		return s.handlePause(w, req)
	case "marketadmin_unpause":
		return s.handleUnpause(w, req)
	case "marketadmin_grantRole":
		return s.handleGrantRole(w, req)
	case "marketadmin_revokeRole":
		return s.handleRevokeRole(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return "not_found"
	}
}

// mutate runs one engine mutation under the server lock, committing the
// state overlay and publishing buffered events only when both the engine
// call and the commit succeed.
func (s *Server) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if err := fn(); err != nil {
		s.st.Discard()
		s.pending = nil
		return err
	}
	if err := s.st.Commit(); err != nil {
		s.st.Discard()
		s.pending = nil
		return err
	}
	for _, evt := range s.pending {
		s.stored = append(s.stored, StoredEvent{
			Sequence:   s.nextSeq,
			Type:       evt.Type,
			Attributes: evt.Attributes,
		})
		s.nextSeq++
	}
	if overflow := len(s.stored) - maxStoredEvents; overflow > 0 {
		s.stored = append([]StoredEvent(nil), s.stored[overflow:]...)
	}
	s.pending = nil
	return nil
}

// query runs a read-only engine call under the server lock.
func (s *Server) query(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// writeEngineError maps an engine failure onto the module's error-code
// space and records it.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) string {
	status := http.StatusBadRequest
	code := codeMarketInternal
	switch market.Classify(err) {
	case market.ClassValidation:
		code = codeMarketInvalidParams
	case market.ClassAuthorization:
		status = http.StatusForbidden
		code = codeMarketForbidden
	case market.ClassState:
		if errors.Is(err, market.ErrListingNotFound) || errors.Is(err, market.ErrBidNotFound) {
			status = http.StatusNotFound
			code = codeMarketNotFound
		} else {
			status = http.StatusConflict
			code = codeMarketConflict
		}
	case market.ClassOperational:
		status = http.StatusServiceUnavailable
		code = codeMarketUnavailable
	case market.ClassExternal:
		status = http.StatusConflict
		code = codeMarketConflict
	default:
		status = http.StatusInternalServerError
	}
	s.metrics.ObserveError(req.Method, strconv.Itoa(code))
	s.log.Warn("rpc call failed", "method", req.Method, "code", code, "err", err)
	writeError(w, status, req.ID, code, err.Error(), nil)
	return "error"
}

func (s *Server) writeParamError(w http.ResponseWriter, req *RPCRequest, err error) string {
	s.metrics.ObserveError(req.Method, strconv.Itoa(codeInvalidParams))
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	return "error"
}

// handleEvents returns committed events after the given sequence number.
func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) string {
	var params struct {
		AfterSequence uint64 `json:"afterSequence"`
		Limit         int    `json:"limit"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			return s.writeParamError(w, req, fmt.Errorf("invalid events params: %w", err))
		}
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	s.mu.Lock()
	out := make([]StoredEvent, 0, limit)
	for _, evt := range s.stored {
		if evt.Sequence <= params.AfterSequence {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	s.mu.Unlock()
	writeResult(w, req.ID, out)
	return "ok"
}
