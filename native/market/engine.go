package market

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	nativecommon "nftmarket/native/common"
)

const moduleName = "market"

// RoleMarketAdmin is the single privileged marketplace role. It is
// self-administering: holders grant and revoke membership.
const RoleMarketAdmin = "ROLE_MARKET_ADMIN"

type engineState interface {
	ParamsGet() (*Params, bool, error)
	ParamsPut(*Params) error
	ListingGet(collection [20]byte, tokenID *big.Int, seller [20]byte) (*Listing, bool, error)
	ListingPut(*Listing) error
	ListingDelete(collection [20]byte, tokenID *big.Int, seller [20]byte) error
	TokenBidGet(collection [20]byte, tokenID *big.Int, bidder [20]byte) (*TokenBid, bool, error)
	TokenBidPut(*TokenBid) error
	CollectionBidGet(collection [20]byte, bidder [20]byte) (*CollectionBid, bool, error)
	CollectionBidPut(*CollectionBid) error
	CollectionFeeGet(collection [20]byte) (*CollectionFee, bool, error)
	CollectionFeePut(collection [20]byte, fee *CollectionFee) error
	CollectionFeeDelete(collection [20]byte) error
	CollectionPaymentGet(collection [20]byte) ([20]byte, bool, error)
	CollectionPaymentPut(collection [20]byte, asset [20]byte) error
	CollectionPaymentDelete(collection [20]byte) error
	HasRole(role string, addr [20]byte) bool
	GrantRole(role string, addr [20]byte) error
	RevokeRole(role string, addr [20]byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine is the marketplace settlement engine. It validates and executes
// offer mutations and trades against external state, asset and payment
// services, emitting one event per committed transition.
type Engine struct {
	state     engineState
	assets    AssetOwnership
	funds     FungibleToken
	recorder  SalePriceRecorder
	emitter   events.Emitter
	nowFn     func() uint64
	marketAcc [20]byte
	busy      atomic.Bool
}

// NewEngine creates a marketplace engine with a no-op emitter. Callers
// configure the collaborators via the setters before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the asset ownership/transfer service.
func (e *Engine) SetAssets(assets AssetOwnership) { e.assets = assets }

// SetFunds configures the fungible payment service.
func (e *Engine) SetFunds(funds FungibleToken) { e.funds = funds }

// SetRecorder configures the optional sale-price recorder. The recorder
// fires only while the persisted tracker reference is also non-zero.
func (e *Engine) SetRecorder(rec SalePriceRecorder) { e.recorder = rec }

// SetMarketAccount configures the settlement account the marketplace acts
// as when pulling approved funds and holding wrapped native value.
func (e *Engine) SetMarketAccount(addr [20]byte) { e.marketAcc = addr }

// SetEmitter configures the event emitter. Passing nil resets the emitter
// to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

// runMutation executes one externally invoked state-mutating operation as an
// indivisible unit: a guard flag rejects re-entrant invocation for the
// duration of the call tree, all state effects revert on failure, and
// buffered events flush to the emitter only after success.
func (e *Engine) runMutation(fn func(q *events.Queue) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	defer e.busy.Store(false)
	q := events.NewQueue()
	snap := e.state.Snapshot()
	if err := fn(q); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	q.Flush(e.emitter)
	return nil
}

func (e *Engine) params() (*Params, error) {
	params, ok, err := e.state.ParamsGet()
	if err != nil {
		return nil, err
	}
	if !ok || params == nil {
		return nil, errNilParams
	}
	return params, nil
}

type paramsView struct {
	p *Params
}

func (v paramsView) IsPaused(string) bool { return v.p != nil && v.p.Paused }
func (v paramsView) BiddingActive() bool  { return v.p != nil && v.p.BiddingActive }

func (e *Engine) guardPause(params *Params) error {
	return nativecommon.Guard(paramsView{p: params}, moduleName)
}

func (e *Engine) guardBidding(params *Params) error {
	return nativecommon.BidGuard(paramsView{p: params})
}

// transferAsset moves units of a collection token with the marketplace as
// operator, wrapping collaborator failures for the error taxonomy.
func (e *Engine) transferAsset(collection [20]byte, from, to [20]byte, tokenID *big.Int, quantity uint64) error {
	if e.assets == nil {
		return errNilAssets
	}
	if err := e.assets.TransferFrom(collection, e.marketAcc, from, to, tokenID, quantity); err != nil {
		return fmt.Errorf("%w: asset transfer: %v", errExternalCall, err)
	}
	return nil
}

// transferFunds moves payment value with the marketplace as spender. Zero
// amounts are skipped.
func (e *Engine) transferFunds(asset [20]byte, from, to [20]byte, amount *big.Int) error {
	if e.funds == nil {
		return errNilFunds
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.funds.TransferFrom(asset, e.marketAcc, from, to, amount); err != nil {
		return fmt.Errorf("%w: payment transfer: %v", errExternalCall, err)
	}
	return nil
}

// recordSale notifies the external price tracker when one is configured.
func (e *Engine) recordSale(params *Params, collection [20]byte, tokenID *big.Int, pricePerUnit *big.Int) error {
	if e.recorder == nil || isZeroAddress(params.PriceTracker) {
		return nil
	}
	if err := e.recorder.RecordSale(params.PriceTracker, collection, tokenID, pricePerUnit); err != nil {
		return fmt.Errorf("%w: price tracker: %v", errExternalCall, err)
	}
	return nil
}

// GetListing returns a copy of the stored listing, if present.
func (e *Engine) GetListing(collection [20]byte, tokenID *big.Int, seller [20]byte) (*Listing, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	listing, ok, err := e.state.ListingGet(collection, tokenID, seller)
	if err != nil || !ok {
		return nil, false, err
	}
	return listing.Clone(), true, nil
}

// GetTokenBid returns a copy of the stored token bid, if present.
func (e *Engine) GetTokenBid(collection [20]byte, tokenID *big.Int, bidder [20]byte) (*TokenBid, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	bid, ok, err := e.state.TokenBidGet(collection, tokenID, bidder)
	if err != nil || !ok {
		return nil, false, err
	}
	return bid.Clone(), true, nil
}

// GetCollectionBid returns a copy of the stored collection bid, if present.
func (e *Engine) GetCollectionBid(collection [20]byte, bidder [20]byte) (*CollectionBid, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	bid, ok, err := e.state.CollectionBidGet(collection, bidder)
	if err != nil || !ok {
		return nil, false, err
	}
	return bid.Clone(), true, nil
}

// Params returns a copy of the current marketplace scalars.
func (e *Engine) Params() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	return params.Clone(), nil
}
