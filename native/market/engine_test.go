package market

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"nftmarket/core/events"
	nativecommon "nftmarket/native/common"
)

var (
	testMarketAcc    = [20]byte{0xff, 0x01}
	testSeller       = [20]byte{0x01}
	testBuyer        = [20]byte{0x02}
	testBidder       = [20]byte{0x03}
	testFeeRecipient = [20]byte{0x04}
	testAsset        = [20]byte{0x05}
	testWrapped      = [20]byte{0x06}
	testSingleton    = [20]byte{0x10}
	testMultiUnit    = [20]byte{0x11}
	testColAdmin     = [20]byte{0x12}
)

type mockState struct {
	params         *Params
	listings       map[string]*Listing
	tokenBids      map[string]*TokenBid
	collectionBids map[string]*CollectionBid
	fees           map[[20]byte]*CollectionFee
	payments       map[[20]byte][20]byte
	roles          map[string]map[[20]byte]bool
	snapshots      []*mockState
}

func newMockState(params *Params) *mockState {
	return &mockState{
		params:         params,
		listings:       make(map[string]*Listing),
		tokenBids:      make(map[string]*TokenBid),
		collectionBids: make(map[string]*CollectionBid),
		fees:           make(map[[20]byte]*CollectionFee),
		payments:       make(map[[20]byte][20]byte),
		roles:          make(map[string]map[[20]byte]bool),
	}
}

func offerKey(collection [20]byte, tokenID *big.Int, addr [20]byte) string {
	return fmt.Sprintf("%x/%s/%x", collection, tokenID, addr)
}

func pairKey(collection [20]byte, addr [20]byte) string {
	return fmt.Sprintf("%x/%x", collection, addr)
}

func (m *mockState) copy() *mockState {
	clone := newMockState(m.params.Clone())
	for k, v := range m.listings {
		clone.listings[k] = v.Clone()
	}
	for k, v := range m.tokenBids {
		clone.tokenBids[k] = v.Clone()
	}
	for k, v := range m.collectionBids {
		clone.collectionBids[k] = v.Clone()
	}
	for k, v := range m.fees {
		fee := *v
		clone.fees[k] = &fee
	}
	for k, v := range m.payments {
		clone.payments[k] = v
	}
	for role, members := range m.roles {
		copied := make(map[[20]byte]bool, len(members))
		for addr := range members {
			copied[addr] = true
		}
		clone.roles[role] = copied
	}
	return clone
}

func (m *mockState) restore(from *mockState) {
	m.params = from.params
	m.listings = from.listings
	m.tokenBids = from.tokenBids
	m.collectionBids = from.collectionBids
	m.fees = from.fees
	m.payments = from.payments
	m.roles = from.roles
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.copy())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.restore(m.snapshots[id])
	m.snapshots = m.snapshots[:id]
}

func (m *mockState) ParamsGet() (*Params, bool, error) {
	if m.params == nil {
		return nil, false, nil
	}
	return m.params.Clone(), true, nil
}

func (m *mockState) ParamsPut(p *Params) error {
	m.params = p.Clone()
	return nil
}

func (m *mockState) ListingGet(collection [20]byte, tokenID *big.Int, seller [20]byte) (*Listing, bool, error) {
	l, ok := m.listings[offerKey(collection, tokenID, seller)]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (m *mockState) ListingPut(l *Listing) error {
	m.listings[offerKey(l.Collection, l.TokenID, l.Seller)] = l.Clone()
	return nil
}

func (m *mockState) ListingDelete(collection [20]byte, tokenID *big.Int, seller [20]byte) error {
	delete(m.listings, offerKey(collection, tokenID, seller))
	return nil
}

func (m *mockState) TokenBidGet(collection [20]byte, tokenID *big.Int, bidder [20]byte) (*TokenBid, bool, error) {
	b, ok := m.tokenBids[offerKey(collection, tokenID, bidder)]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockState) TokenBidPut(b *TokenBid) error {
	m.tokenBids[offerKey(b.Collection, b.TokenID, b.Bidder)] = b.Clone()
	return nil
}

func (m *mockState) CollectionBidGet(collection [20]byte, bidder [20]byte) (*CollectionBid, bool, error) {
	b, ok := m.collectionBids[pairKey(collection, bidder)]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockState) CollectionBidPut(b *CollectionBid) error {
	m.collectionBids[pairKey(b.Collection, b.Bidder)] = b.Clone()
	return nil
}

func (m *mockState) CollectionFeeGet(collection [20]byte) (*CollectionFee, bool, error) {
	fee, ok := m.fees[collection]
	if !ok {
		return nil, false, nil
	}
	clone := *fee
	return &clone, true, nil
}

func (m *mockState) CollectionFeePut(collection [20]byte, fee *CollectionFee) error {
	clone := *fee
	m.fees[collection] = &clone
	return nil
}

func (m *mockState) CollectionFeeDelete(collection [20]byte) error {
	delete(m.fees, collection)
	return nil
}

func (m *mockState) CollectionPaymentGet(collection [20]byte) ([20]byte, bool, error) {
	asset, ok := m.payments[collection]
	return asset, ok, nil
}

func (m *mockState) CollectionPaymentPut(collection [20]byte, asset [20]byte) error {
	m.payments[collection] = asset
	return nil
}

func (m *mockState) CollectionPaymentDelete(collection [20]byte) error {
	delete(m.payments, collection)
	return nil
}

func (m *mockState) HasRole(role string, addr [20]byte) bool {
	return m.roles[role][addr]
}

func (m *mockState) GrantRole(role string, addr [20]byte) error {
	if m.roles[role] == nil {
		m.roles[role] = make(map[[20]byte]bool)
	}
	m.roles[role][addr] = true
	return nil
}

func (m *mockState) RevokeRole(role string, addr [20]byte) error {
	delete(m.roles[role], addr)
	return nil
}

type mockCollection struct {
	kind     AssetKind
	admin    [20]byte
	owners   map[string][20]byte
	balances map[string]uint64
}

type mockAssets struct {
	collections map[[20]byte]*mockCollection
	approvals   map[string]bool
	// transferHook runs before every transfer; used to simulate a hostile
	// token contract calling back into the engine.
	transferHook func() error
	// ownerErr, when set, fails every owner lookup.
	ownerErr error
}

func newMockAssets() *mockAssets {
	return &mockAssets{
		collections: make(map[[20]byte]*mockCollection),
		approvals:   make(map[string]bool),
	}
}

func (a *mockAssets) register(collection [20]byte, kind AssetKind, admin [20]byte) {
	a.collections[collection] = &mockCollection{
		kind:     kind,
		admin:    admin,
		owners:   make(map[string][20]byte),
		balances: make(map[string]uint64),
	}
}

func (a *mockAssets) mint(collection [20]byte, tokenID *big.Int, to [20]byte, quantity uint64) {
	col := a.collections[collection]
	if col.kind == AssetKindSingleton {
		col.owners[tokenID.String()] = to
		return
	}
	col.balances[tokenID.String()+"/"+fmt.Sprintf("%x", to)] += quantity
}

func (a *mockAssets) approve(collection [20]byte, owner, operator [20]byte) {
	a.approvals[fmt.Sprintf("%x/%x/%x", collection, owner, operator)] = true
}

func (a *mockAssets) Kind(collection [20]byte) (AssetKind, error) {
	col, ok := a.collections[collection]
	if !ok {
		return AssetKindUnsupported, nil
	}
	return col.kind, nil
}

func (a *mockAssets) CollectionAdmin(collection [20]byte) ([20]byte, bool, error) {
	col, ok := a.collections[collection]
	if !ok {
		return [20]byte{}, false, nil
	}
	return col.admin, true, nil
}

func (a *mockAssets) OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error) {
	if a.ownerErr != nil {
		return [20]byte{}, a.ownerErr
	}
	col, ok := a.collections[collection]
	if !ok {
		return [20]byte{}, errors.New("unknown collection")
	}
	owner, ok := col.owners[tokenID.String()]
	if !ok {
		return [20]byte{}, errors.New("no owner")
	}
	return owner, nil
}

func (a *mockAssets) BalanceOf(collection [20]byte, tokenID *big.Int, holder [20]byte) (uint64, error) {
	col, ok := a.collections[collection]
	if !ok {
		return 0, errors.New("unknown collection")
	}
	return col.balances[tokenID.String()+"/"+fmt.Sprintf("%x", holder)], nil
}

func (a *mockAssets) IsApprovedForAll(collection [20]byte, owner, operator [20]byte) (bool, error) {
	return a.approvals[fmt.Sprintf("%x/%x/%x", collection, owner, operator)], nil
}

func (a *mockAssets) TransferFrom(collection [20]byte, operator, from, to [20]byte, tokenID *big.Int, quantity uint64) error {
	if a.transferHook != nil {
		if err := a.transferHook(); err != nil {
			return err
		}
	}
	col, ok := a.collections[collection]
	if !ok {
		return errors.New("unknown collection")
	}
	if operator != from && !a.approvals[fmt.Sprintf("%x/%x/%x", collection, from, operator)] {
		return errors.New("operator not approved")
	}
	if col.kind == AssetKindSingleton {
		if col.owners[tokenID.String()] != from {
			return errors.New("not the owner")
		}
		col.owners[tokenID.String()] = to
		return nil
	}
	fromKey := tokenID.String() + "/" + fmt.Sprintf("%x", from)
	if col.balances[fromKey] < quantity {
		return errors.New("balance too low")
	}
	col.balances[fromKey] -= quantity
	col.balances[tokenID.String()+"/"+fmt.Sprintf("%x", to)] += quantity
	return nil
}

type mockFunds struct {
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	// balanceErr, when set, fails every balance lookup.
	balanceErr error
}

func newMockFunds() *mockFunds {
	return &mockFunds{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func fundKey(asset, holder [20]byte) string {
	return fmt.Sprintf("%x/%x", asset, holder)
}

func allowKey(asset, owner, spender [20]byte) string {
	return fmt.Sprintf("%x/%x/%x", asset, owner, spender)
}

func (f *mockFunds) fund(asset, holder [20]byte, amount int64) {
	f.balances[fundKey(asset, holder)] = big.NewInt(amount)
}

func (f *mockFunds) approve(asset, owner, spender [20]byte, amount int64) {
	f.allowances[allowKey(asset, owner, spender)] = big.NewInt(amount)
}

func (f *mockFunds) BalanceOf(asset, holder [20]byte) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if bal, ok := f.balances[fundKey(asset, holder)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *mockFunds) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	if allowance, ok := f.allowances[allowKey(asset, owner, spender)]; ok {
		return new(big.Int).Set(allowance), nil
	}
	return big.NewInt(0), nil
}

func (f *mockFunds) TransferFrom(asset [20]byte, spender, from, to [20]byte, amount *big.Int) error {
	if spender != from {
		allowance, ok := f.allowances[allowKey(asset, from, spender)]
		if !ok || allowance.Cmp(amount) < 0 {
			return errors.New("allowance exhausted")
		}
		allowance.Sub(allowance, amount)
	}
	balance, ok := f.balances[fundKey(asset, from)]
	if !ok || balance.Cmp(amount) < 0 {
		return errors.New("balance too low")
	}
	balance.Sub(balance, amount)
	dest, ok := f.balances[fundKey(asset, to)]
	if !ok {
		dest = big.NewInt(0)
		f.balances[fundKey(asset, to)] = dest
	}
	dest.Add(dest, amount)
	return nil
}

func (f *mockFunds) Deposit(asset [20]byte, to [20]byte, amount *big.Int) error {
	dest, ok := f.balances[fundKey(asset, to)]
	if !ok {
		dest = big.NewInt(0)
		f.balances[fundKey(asset, to)] = dest
	}
	dest.Add(dest, amount)
	return nil
}

type captureEmitter struct {
	emitted []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.emitted = append(c.emitted, evt)
}

func (c *captureEmitter) types() []string {
	out := make([]string, 0, len(c.emitted))
	for _, evt := range c.emitted {
		out = append(out, evt.EventType())
	}
	return out
}

func defaultParams() *Params {
	return &Params{
		FeeBps:              100,
		FeeWithOverrideBps:  50,
		FeeRecipient:        testFeeRecipient,
		MinPriceFloor:       big.NewInt(10),
		DefaultPaymentAsset: testAsset,
		BiddingActive:       true,
	}
}

type testEnv struct {
	engine  *Engine
	state   *mockState
	assets  *mockAssets
	funds   *mockFunds
	emitter *captureEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newMockState(defaultParams())
	assets := newMockAssets()
	assets.register(testSingleton, AssetKindSingleton, testColAdmin)
	assets.register(testMultiUnit, AssetKindMultiUnit, testColAdmin)
	funds := newMockFunds()
	emitter := &captureEmitter{}

	engine := NewEngine()
	engine.SetState(st)
	engine.SetAssets(assets)
	engine.SetFunds(funds)
	engine.SetMarketAccount(testMarketAcc)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() uint64 { return 1_000 })
	return &testEnv{engine: engine, state: st, assets: assets, funds: funds, emitter: emitter}
}

func singletonListing(env *testEnv, t *testing.T) ListingInput {
	t.Helper()
	env.assets.mint(testSingleton, big.NewInt(7), testSeller, 1)
	env.assets.approve(testSingleton, testSeller, testMarketAcc)
	return ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(1_000),
		ExpiresAt:    2_000,
	}
}

func TestUpsertListingCreatesThenUpdates(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)

	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	in.PricePerUnit = big.NewInt(2_000)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("update listing: %v", err)
	}

	got := env.emitter.types()
	want := []string{EventTypeListingCreated, EventTypeListingUpdated}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v, want %v", got, want)
	}
	stored, ok, err := env.engine.GetListing(testSingleton, big.NewInt(7), testSeller)
	if err != nil || !ok {
		t.Fatalf("listing missing after upsert: %v", err)
	}
	if stored.PricePerUnit.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("stored price = %s, want 2000", stored.PricePerUnit)
	}
}

func TestUpsertListingValidation(t *testing.T) {
	env := newTestEnv(t)
	base := singletonListing(env, t)

	cases := []struct {
		name    string
		mutate  func(*ListingInput)
		wantErr error
	}{
		{"expired", func(in *ListingInput) { in.ExpiresAt = 999 }, ErrExpirationInPast},
		{"below floor", func(in *ListingInput) { in.PricePerUnit = big.NewInt(5) }, ErrPriceBelowFloor},
		{"singleton quantity", func(in *ListingInput) { in.Quantity = 2 }, ErrInvalidQuantity},
		{"zero quantity", func(in *ListingInput) { in.Quantity = 0 }, ErrInvalidQuantity},
		{"unsupported collection", func(in *ListingInput) { in.Collection = [20]byte{0x99} }, ErrUnsupportedAsset},
		{"payment mismatch", func(in *ListingInput) { in.PaymentAsset = [20]byte{0x77} }, ErrPaymentAssetMismatch},
	}
	for _, tc := range cases {
		in := base
		tc.mutate(&in)
		if err := env.engine.UpsertListing(testSeller, in); !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.wantErr)
		}
	}
	if len(env.emitter.emitted) != 0 {
		t.Fatalf("no events expected after failed upserts, got %v", env.emitter.types())
	}
}

func TestUpsertListingOwnershipAndApproval(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)

	if err := env.engine.UpsertListing(testBuyer, in); !errors.Is(err, ErrOwnershipCheckFailed) {
		t.Fatalf("foreign seller err = %v, want %v", err, ErrOwnershipCheckFailed)
	}

	env.assets.approvals = make(map[string]bool)
	if err := env.engine.UpsertListing(testSeller, in); !errors.Is(err, ErrNotApprovedForTransfer) {
		t.Fatalf("unapproved err = %v, want %v", err, ErrNotApprovedForTransfer)
	}
}

func TestCollaboratorLookupFailureIsExternal(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	env.assets.ownerErr = errors.New("backend unavailable")
	err := env.engine.UpsertListing(testSeller, in)
	if !errors.Is(err, errExternalCall) || Classify(err) != ClassExternal {
		t.Fatalf("owner lookup err = %v, want external call failure", err)
	}
	if errors.Is(err, ErrOwnershipCheckFailed) {
		t.Fatal("lookup failure must not report an ownership mismatch")
	}

	env = newTestEnv(t)
	fundBid(env, 500)
	env.funds.balanceErr = errors.New("backend unavailable")
	bidIn := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	err = env.engine.UpsertTokenBid(testBidder, bidIn)
	if !errors.Is(err, errExternalCall) || Classify(err) != ClassExternal {
		t.Fatalf("balance lookup err = %v, want external call failure", err)
	}
	if errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("lookup failure must not report insufficient funds")
	}
}

func TestListingPauseGates(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.state.params.Paused = true

	if err := env.engine.UpsertListing(testSeller, in); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused upsert err = %v, want %v", err, nativecommon.ErrModulePaused)
	}
	// Cancellation stays available while paused.
	if err := env.engine.CancelListing(testSeller, CancelInput{Collection: testSingleton, TokenID: big.NewInt(7)}); err != nil {
		t.Fatalf("cancel while paused: %v", err)
	}
	if _, ok, _ := env.engine.GetListing(testSingleton, big.NewInt(7), testSeller); ok {
		t.Fatal("listing should be deleted after cancel")
	}
}

func TestCancelListingIdempotent(t *testing.T) {
	env := newTestEnv(t)
	in := CancelInput{Collection: testSingleton, TokenID: big.NewInt(42)}
	if err := env.engine.CancelListing(testSeller, in); err != nil {
		t.Fatalf("cancel absent listing: %v", err)
	}
	got := env.emitter.types()
	if len(got) != 1 || got[0] != EventTypeListingCancelled {
		t.Fatalf("events = %v, want one cancelled", got)
	}
}

func fundBid(env *testEnv, total int64) {
	env.funds.fund(testAsset, testBidder, total)
	env.funds.approve(testAsset, testBidder, testMarketAcc, total)
}

func TestUpsertTokenBidRequiresBiddingActive(t *testing.T) {
	env := newTestEnv(t)
	env.state.params.BiddingActive = false
	fundBid(env, 10_000)
	in := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertTokenBid(testBidder, in); !errors.Is(err, nativecommon.ErrBiddingClosed) {
		t.Fatalf("err = %v, want %v", err, nativecommon.ErrBiddingClosed)
	}
}

func TestUpsertTokenBidFunding(t *testing.T) {
	env := newTestEnv(t)
	in := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}

	if err := env.engine.UpsertTokenBid(testBidder, in); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("unfunded err = %v, want %v", err, ErrInsufficientFunds)
	}
	env.funds.fund(testAsset, testBidder, 500)
	if err := env.engine.UpsertTokenBid(testBidder, in); !errors.Is(err, ErrPaymentNotApproved) {
		t.Fatalf("unapproved err = %v, want %v", err, ErrPaymentNotApproved)
	}
	env.funds.approve(testAsset, testBidder, testMarketAcc, 500)
	if err := env.engine.UpsertTokenBid(testBidder, in); err != nil {
		t.Fatalf("funded bid: %v", err)
	}
	got := env.emitter.types()
	if got[len(got)-1] != EventTypeTokenBidCreated {
		t.Fatalf("last event = %s, want %s", got[len(got)-1], EventTypeTokenBidCreated)
	}
}

func TestUpsertCollectionBidMultiUnitRejected(t *testing.T) {
	env := newTestEnv(t)
	fundBid(env, 10_000)
	in := CollectionBidInput{
		Collection:   testMultiUnit,
		Quantity:     2,
		PricePerUnit: big.NewInt(100),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertCollectionBid(testBidder, in); !errors.Is(err, ErrCollectionBidMultiUnit) {
		t.Fatalf("err = %v, want %v", err, ErrCollectionBidMultiUnit)
	}
}

func TestCancelTokenBidKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	fundBid(env, 500)
	in := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertTokenBid(testBidder, in); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if err := env.engine.CancelTokenBid(testBidder, CancelInput{Collection: testSingleton, TokenID: big.NewInt(7)}); err != nil {
		t.Fatalf("cancel bid: %v", err)
	}
	bid, ok, err := env.engine.GetTokenBid(testSingleton, big.NewInt(7), testBidder)
	if err != nil || !ok {
		t.Fatalf("cancelled bid record should remain: %v", err)
	}
	if bid.Quantity != 0 {
		t.Fatalf("cancelled bid quantity = %d, want 0", bid.Quantity)
	}
	// Cancelling again is a no-op that still signals.
	if err := env.engine.CancelTokenBid(testBidder, CancelInput{Collection: testSingleton, TokenID: big.NewInt(7)}); err != nil {
		t.Fatalf("re-cancel bid: %v", err)
	}
}

func TestBuyItemsSettlesSingleton(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.funds.fund(testAsset, testBuyer, 1_000)
	env.funds.approve(testAsset, testBuyer, testMarketAcc, 1_000)

	order := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
	}
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, nil); err != nil {
		t.Fatalf("buy: %v", err)
	}

	owner, err := env.assets.OwnerOf(testSingleton, big.NewInt(7))
	if err != nil || owner != testBuyer {
		t.Fatalf("owner after sale = %x, want buyer", owner)
	}
	// 1000 gross: 10 protocol fee, 990 proceeds.
	if bal, _ := env.funds.BalanceOf(testAsset, testFeeRecipient); bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fee recipient balance = %s, want 10", bal)
	}
	if bal, _ := env.funds.BalanceOf(testAsset, testSeller); bal.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("seller balance = %s, want 990", bal)
	}
	if _, ok, _ := env.engine.GetListing(testSingleton, big.NewInt(7), testSeller); ok {
		t.Fatal("depleted listing should be deleted")
	}
	got := env.emitter.types()
	if got[len(got)-1] != EventTypeItemSold {
		t.Fatalf("last event = %s, want %s", got[len(got)-1], EventTypeItemSold)
	}
}

func TestBuyItemsPartialFillKeepsListing(t *testing.T) {
	env := newTestEnv(t)
	env.assets.mint(testMultiUnit, big.NewInt(3), testSeller, 10)
	env.assets.approve(testMultiUnit, testSeller, testMarketAcc)
	in := ListingInput{
		Collection:   testMultiUnit,
		TokenID:      big.NewInt(3),
		Quantity:     10,
		PricePerUnit: big.NewInt(100),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.funds.fund(testAsset, testBuyer, 10_000)
	env.funds.approve(testAsset, testBuyer, testMarketAcc, 10_000)

	order := BuyOrder{
		Collection:      testMultiUnit,
		TokenID:         big.NewInt(3),
		Seller:          testSeller,
		Quantity:        4,
		MaxPricePerUnit: big.NewInt(100),
	}
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, nil); err != nil {
		t.Fatalf("buy: %v", err)
	}
	listing, ok, _ := env.engine.GetListing(testMultiUnit, big.NewInt(3), testSeller)
	if !ok {
		t.Fatal("partially filled listing should remain")
	}
	if listing.Quantity != 6 {
		t.Fatalf("remaining quantity = %d, want 6", listing.Quantity)
	}
	if bal, _ := env.assets.BalanceOf(testMultiUnit, big.NewInt(3), testBuyer); bal != 4 {
		t.Fatalf("buyer units = %d, want 4", bal)
	}
}

func TestBuyItemsGuards(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.funds.fund(testAsset, testBuyer, 10_000)
	env.funds.approve(testAsset, testBuyer, testMarketAcc, 10_000)

	base := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
	}

	ceiling := base
	ceiling.MaxPricePerUnit = big.NewInt(999)
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{ceiling}, nil); !errors.Is(err, ErrMaxPriceExceeded) {
		t.Fatalf("ceiling err = %v, want %v", err, ErrMaxPriceExceeded)
	}

	tooMany := base
	tooMany.Quantity = 2
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{tooMany}, nil); !errors.Is(err, ErrQuantityExceeded) {
		t.Fatalf("quantity err = %v, want %v", err, ErrQuantityExceeded)
	}

	if err := env.engine.BuyItems(testSeller, []BuyOrder{base}, nil); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("self trade err = %v, want %v", err, ErrSelfTrade)
	}

	missing := base
	missing.TokenID = big.NewInt(8)
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{missing}, nil); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("missing err = %v, want %v", err, ErrListingNotFound)
	}

	env.engine.SetNowFunc(func() uint64 { return 3_000 })
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{base}, nil); !errors.Is(err, ErrOfferExpired) {
		t.Fatalf("expired err = %v, want %v", err, ErrOfferExpired)
	}
}

func TestBuyItemsBatchAtomicity(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.funds.fund(testAsset, testBuyer, 10_000)
	env.funds.approve(testAsset, testBuyer, testMarketAcc, 10_000)
	env.emitter.emitted = nil

	good := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
	}
	bad := good
	bad.TokenID = big.NewInt(99)

	err := env.engine.BuyItems(testBuyer, []BuyOrder{good, bad}, nil)
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("batch err = %v, want %v", err, ErrListingNotFound)
	}
	// Item one must be rolled back with the batch.
	if _, ok, _ := env.engine.GetListing(testSingleton, big.NewInt(7), testSeller); !ok {
		t.Fatal("listing consumed by aborted batch")
	}
	if len(env.emitter.emitted) != 0 {
		t.Fatalf("aborted batch emitted %v", env.emitter.types())
	}
}

func TestBuyItemsStalePaymentAsset(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	// The collection switches settlement asset after the listing is recorded.
	newAsset := [20]byte{0x66}
	env.state.payments[testSingleton] = newAsset

	env.funds.fund(newAsset, testBuyer, 10_000)
	env.funds.approve(newAsset, testBuyer, testMarketAcc, 10_000)
	order := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
		PaymentAsset:    newAsset,
	}
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, nil); !errors.Is(err, ErrPaymentAssetMismatch) {
		t.Fatalf("stale asset err = %v, want %v", err, ErrPaymentAssetMismatch)
	}
}

func TestBuyItemsNativeSettlement(t *testing.T) {
	env := newTestEnv(t)
	env.state.params.WrappedNative = testWrapped
	env.state.params.DefaultPaymentAsset = testWrapped

	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}

	order := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
		UseNative:       true,
	}

	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, big.NewInt(999)); !errors.Is(err, ErrNativeValue) {
		t.Fatalf("short value err = %v, want %v", err, ErrNativeValue)
	}
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, big.NewInt(1_000)); err != nil {
		t.Fatalf("native buy: %v", err)
	}
	if bal, _ := env.funds.BalanceOf(testWrapped, testSeller); bal.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("seller wrapped balance = %s, want 990", bal)
	}
}

func TestBuyItemsNativeRequiresWrappedConfig(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	order := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
		UseNative:       true,
	}
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, big.NewInt(1_000)); !errors.Is(err, ErrNativeUnsupported) {
		t.Fatalf("err = %v, want %v", err, ErrNativeUnsupported)
	}
}

func TestAcceptBidsSettlesTokenBid(t *testing.T) {
	env := newTestEnv(t)
	fundBid(env, 500)
	bid := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertTokenBid(testBidder, bid); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	env.assets.mint(testSingleton, big.NewInt(7), testSeller, 1)
	env.assets.approve(testSingleton, testSeller, testMarketAcc)

	order := AcceptOrder{
		Kind:         BidRefToken,
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Bidder:       testBidder,
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
	}
	if err := env.engine.AcceptBids(testSeller, []AcceptOrder{order}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	owner, _ := env.assets.OwnerOf(testSingleton, big.NewInt(7))
	if owner != testBidder {
		t.Fatalf("owner = %x, want bidder", owner)
	}
	// 500 gross at 100 bps: 5 fee, 495 proceeds.
	if bal, _ := env.funds.BalanceOf(testAsset, testSeller); bal.Cmp(big.NewInt(495)) != 0 {
		t.Fatalf("seller proceeds = %s, want 495", bal)
	}
	// The consumed bid stays addressable at zero quantity.
	remaining, ok, _ := env.engine.GetTokenBid(testSingleton, big.NewInt(7), testBidder)
	if !ok || remaining.Quantity != 0 {
		t.Fatalf("consumed bid = %+v, want retained zero-quantity record", remaining)
	}
}

func TestAcceptBidsCollectionBid(t *testing.T) {
	env := newTestEnv(t)
	env.funds.fund(testAsset, testBidder, 1_000)
	env.funds.approve(testAsset, testBidder, testMarketAcc, 1_000)
	bid := CollectionBidInput{
		Collection:   testSingleton,
		Quantity:     2,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertCollectionBid(testBidder, bid); err != nil {
		t.Fatalf("place collection bid: %v", err)
	}
	env.assets.mint(testSingleton, big.NewInt(9), testSeller, 1)
	env.assets.approve(testSingleton, testSeller, testMarketAcc)

	order := AcceptOrder{
		Kind:         BidRefCollection,
		Collection:   testSingleton,
		TokenID:      big.NewInt(9),
		Bidder:       testBidder,
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
	}
	if err := env.engine.AcceptBids(testSeller, []AcceptOrder{order}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	remaining, ok, _ := env.engine.GetCollectionBid(testSingleton, testBidder)
	if !ok || remaining.Quantity != 1 {
		t.Fatalf("remaining collection bid quantity = %+v, want 1", remaining)
	}
}

func TestAcceptBidsExactPriceRequired(t *testing.T) {
	env := newTestEnv(t)
	fundBid(env, 500)
	bid := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertTokenBid(testBidder, bid); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	env.assets.mint(testSingleton, big.NewInt(7), testSeller, 1)
	env.assets.approve(testSingleton, testSeller, testMarketAcc)

	order := AcceptOrder{
		Kind:         BidRefToken,
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Bidder:       testBidder,
		Quantity:     1,
		PricePerUnit: big.NewInt(499),
	}
	if err := env.engine.AcceptBids(testSeller, []AcceptOrder{order}); !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("err = %v, want %v", err, ErrPriceMismatch)
	}
}

func TestAcceptBidsBidderFundsGone(t *testing.T) {
	env := newTestEnv(t)
	fundBid(env, 500)
	bid := ListingInput{
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
		ExpiresAt:    2_000,
	}
	if err := env.engine.UpsertTokenBid(testBidder, bid); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	// Bidder spends the balance elsewhere after placing the bid.
	env.funds.fund(testAsset, testBidder, 0)
	env.assets.mint(testSingleton, big.NewInt(7), testSeller, 1)
	env.assets.approve(testSingleton, testSeller, testMarketAcc)

	order := AcceptOrder{
		Kind:         BidRefToken,
		Collection:   testSingleton,
		TokenID:      big.NewInt(7),
		Bidder:       testBidder,
		Quantity:     1,
		PricePerUnit: big.NewInt(500),
	}
	if err := env.engine.AcceptBids(testSeller, []AcceptOrder{order}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want %v", err, ErrInsufficientFunds)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	env := newTestEnv(t)
	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.funds.fund(testAsset, testBuyer, 10_000)
	env.funds.approve(testAsset, testBuyer, testMarketAcc, 10_000)

	// The token contract tries to cancel the listing mid-transfer.
	env.assets.transferHook = func() error {
		return env.engine.CancelListing(testSeller, CancelInput{Collection: testSingleton, TokenID: big.NewInt(7)})
	}

	order := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
	}
	err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, nil)
	if err == nil {
		t.Fatal("nested call should fail the outer operation")
	}
	// The nested attempt is rejected and the outer batch rolls back.
	if _, ok, _ := env.engine.GetListing(testSingleton, big.NewInt(7), testSeller); !ok {
		t.Fatal("listing should survive the aborted purchase")
	}
}

func TestRecordSaleFiresWithTracker(t *testing.T) {
	env := newTestEnv(t)
	tracker := [20]byte{0x55}
	env.state.params.PriceTracker = tracker

	var recorded []*big.Int
	env.engine.SetRecorder(recorderFunc(func(target [20]byte, collection [20]byte, tokenID *big.Int, price *big.Int) error {
		if target != tracker {
			t.Fatalf("tracker = %x, want %x", target, tracker)
		}
		recorded = append(recorded, new(big.Int).Set(price))
		return nil
	}))

	in := singletonListing(env, t)
	if err := env.engine.UpsertListing(testSeller, in); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	env.funds.fund(testAsset, testBuyer, 1_000)
	env.funds.approve(testAsset, testBuyer, testMarketAcc, 1_000)
	order := BuyOrder{
		Collection:      testSingleton,
		TokenID:         big.NewInt(7),
		Seller:          testSeller,
		Quantity:        1,
		MaxPricePerUnit: big.NewInt(1_000),
	}
	if err := env.engine.BuyItems(testBuyer, []BuyOrder{order}, nil); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(recorded) != 1 || recorded[0].Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("recorded sales = %v, want [1000]", recorded)
	}
}

type recorderFunc func(tracker [20]byte, collection [20]byte, tokenID *big.Int, pricePerUnit *big.Int) error

func (f recorderFunc) RecordSale(tracker [20]byte, collection [20]byte, tokenID *big.Int, pricePerUnit *big.Int) error {
	return f(tracker, collection, tokenID, pricePerUnit)
}
