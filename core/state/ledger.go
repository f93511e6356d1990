package state

import (
	"fmt"
	"math/big"

	"nftmarket/native/market"
)

// Ledger is the state-backed asset and payment service the marketplace
// settles against. Every record lives in the same journaled overlay as the
// marketplace's own state, so an aborted trade rolls token movements back
// together with offer mutations.
type Ledger struct {
	m *Manager
}

// NewLedger creates a ledger over the manager's overlay.
func NewLedger(m *Manager) *Ledger {
	return &Ledger{m: m}
}

type collectionMeta struct {
	Kind  uint8
	Admin [20]byte
}

// RegisterCollection records a collection's transfer capability and its
// administrative authority.
func (l *Ledger) RegisterCollection(collection [20]byte, kind market.AssetKind, admin [20]byte) error {
	if !kind.Valid() {
		return fmt.Errorf("state: invalid collection kind %d", kind)
	}
	return l.m.writeRLP(collectionMetaKey(collection), &collectionMeta{Kind: uint8(kind), Admin: admin})
}

func (l *Ledger) meta(collection [20]byte) (*collectionMeta, bool, error) {
	meta := new(collectionMeta)
	ok, err := l.m.loadRLP(collectionMetaKey(collection), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

// Kind classifies the collection, returning the unsupported class for
// unregistered collections.
func (l *Ledger) Kind(collection [20]byte) (market.AssetKind, error) {
	meta, ok, err := l.meta(collection)
	if err != nil {
		return market.AssetKindUnsupported, err
	}
	if !ok {
		return market.AssetKindUnsupported, nil
	}
	return market.AssetKind(meta.Kind), nil
}

// CollectionAdmin returns the collection's registered authority.
func (l *Ledger) CollectionAdmin(collection [20]byte) ([20]byte, bool, error) {
	meta, ok, err := l.meta(collection)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return meta.Admin, true, nil
}

// Mint assigns token units to a holder: ownership for singleton
// collections, a balance credit for multi-unit ones.
func (l *Ledger) Mint(collection [20]byte, tokenID *big.Int, to [20]byte, quantity uint64) error {
	meta, ok, err := l.meta(collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: collection %x not registered", collection)
	}
	switch market.AssetKind(meta.Kind) {
	case market.AssetKindSingleton:
		if quantity != 1 {
			return fmt.Errorf("state: singleton mint quantity must be 1")
		}
		value := make([]byte, 20)
		copy(value, to[:])
		l.m.put(tokenOwnerKey(collection, tokenID), value)
	case market.AssetKindMultiUnit:
		balance, err := l.balance(collection, tokenID, to)
		if err != nil {
			return err
		}
		l.putBalance(collection, tokenID, to, balance+quantity)
	default:
		return fmt.Errorf("state: collection %x has invalid kind", collection)
	}
	return nil
}

// OwnerOf resolves the exclusive owner of a singleton token.
func (l *Ledger) OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error) {
	var owner [20]byte
	data, ok, err := l.m.get(tokenOwnerKey(collection, tokenID))
	if err != nil {
		return owner, err
	}
	if !ok {
		return owner, fmt.Errorf("state: token %s of %x has no owner", tokenID, collection)
	}
	copy(owner[:], data)
	return owner, nil
}

func (l *Ledger) balance(collection [20]byte, tokenID *big.Int, holder [20]byte) (uint64, error) {
	value, err := l.m.getBig(tokenBalanceKey(collection, tokenID, holder))
	if err != nil {
		return 0, err
	}
	return value.Uint64(), nil
}

func (l *Ledger) putBalance(collection [20]byte, tokenID *big.Int, holder [20]byte, balance uint64) {
	l.m.putBig(tokenBalanceKey(collection, tokenID, holder), new(big.Int).SetUint64(balance))
}

// BalanceOf resolves a holder's balance of a multi-unit token.
func (l *Ledger) BalanceOf(collection [20]byte, tokenID *big.Int, holder [20]byte) (uint64, error) {
	return l.balance(collection, tokenID, holder)
}

// SetApprovalForAll records or clears an operator approval.
func (l *Ledger) SetApprovalForAll(collection [20]byte, owner, operator [20]byte, approved bool) {
	key := operatorKey(collection, owner, operator)
	if approved {
		l.m.put(key, []byte{1})
		return
	}
	l.m.delete(key)
}

// IsApprovedForAll reports whether operator may move owner's tokens.
func (l *Ledger) IsApprovedForAll(collection [20]byte, owner, operator [20]byte) (bool, error) {
	data, ok, err := l.m.get(operatorKey(collection, owner, operator))
	if err != nil {
		return false, err
	}
	return ok && len(data) == 1 && data[0] == 1, nil
}

// TransferFrom moves token units, requiring operator approval unless the
// operator is the current holder.
func (l *Ledger) TransferFrom(collection [20]byte, operator, from, to [20]byte, tokenID *big.Int, quantity uint64) error {
	meta, ok, err := l.meta(collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: collection %x not registered", collection)
	}
	if operator != from {
		approved, err := l.IsApprovedForAll(collection, from, operator)
		if err != nil {
			return err
		}
		if !approved {
			return fmt.Errorf("state: operator %x not approved by %x", operator, from)
		}
	}
	switch market.AssetKind(meta.Kind) {
	case market.AssetKindSingleton:
		if quantity != 1 {
			return fmt.Errorf("state: singleton transfer quantity must be 1")
		}
		owner, err := l.OwnerOf(collection, tokenID)
		if err != nil {
			return err
		}
		if owner != from {
			return fmt.Errorf("state: %x does not own token %s of %x", from, tokenID, collection)
		}
		value := make([]byte, 20)
		copy(value, to[:])
		l.m.put(tokenOwnerKey(collection, tokenID), value)
	case market.AssetKindMultiUnit:
		fromBalance, err := l.balance(collection, tokenID, from)
		if err != nil {
			return err
		}
		if fromBalance < quantity {
			return fmt.Errorf("state: %x holds %d of token %s, need %d", from, fromBalance, tokenID, quantity)
		}
		toBalance, err := l.balance(collection, tokenID, to)
		if err != nil {
			return err
		}
		l.putBalance(collection, tokenID, from, fromBalance-quantity)
		l.putBalance(collection, tokenID, to, toBalance+quantity)
	default:
		return fmt.Errorf("state: collection %x has invalid kind", collection)
	}
	return nil
}

// FundAccount credits a holder with payment-asset value. Setup helper.
func (l *Ledger) FundAccount(asset [20]byte, holder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: fund amount must be non-negative")
	}
	balance, err := l.m.getBig(fundBalanceKey(asset, holder))
	if err != nil {
		return err
	}
	l.m.putBig(fundBalanceKey(asset, holder), new(big.Int).Add(balance, amount))
	return nil
}

// Approve sets the spender's allowance over the owner's payment balance.
func (l *Ledger) Approve(asset [20]byte, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	l.m.putBig(fundAllowanceKey(asset, owner, spender), new(big.Int).Set(amount))
	return nil
}

func (l *Ledger) fundBalance(asset, holder [20]byte) (*big.Int, error) {
	return l.m.getBig(fundBalanceKey(asset, holder))
}

// Funds returns the ledger's fungible payment view. Kept as a separate
// value because BalanceOf would otherwise collide with the token-side
// method of the same name.
func (l *Ledger) Funds() *FundLedger {
	return &FundLedger{l: l}
}

// FundLedger is the fungible payment face of the ledger.
type FundLedger struct {
	l *Ledger
}

// BalanceOf returns the holder's balance of the asset.
func (f *FundLedger) BalanceOf(asset, holder [20]byte) (*big.Int, error) {
	return f.l.fundBalance(asset, holder)
}

// Allowance returns the spender's remaining allowance over the owner's
// balance.
func (f *FundLedger) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return f.l.m.getBig(fundAllowanceKey(asset, owner, spender))
}

// TransferFrom moves value, consuming the spender's allowance unless the
// spender is the owner.
func (f *FundLedger) TransferFrom(asset [20]byte, spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m := f.l.m
	if spender != from {
		allowance, err := m.getBig(fundAllowanceKey(asset, from, spender))
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("state: allowance of %x for %x exhausted", spender, from)
		}
		m.putBig(fundAllowanceKey(asset, from, spender), new(big.Int).Sub(allowance, amount))
	}
	fromBalance, err := m.getBig(fundBalanceKey(asset, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("state: balance of %x too low for transfer", from)
	}
	toBalance, err := m.getBig(fundBalanceKey(asset, to))
	if err != nil {
		return err
	}
	m.putBig(fundBalanceKey(asset, from), new(big.Int).Sub(fromBalance, amount))
	m.putBig(fundBalanceKey(asset, to), new(big.Int).Add(toBalance, amount))
	return nil
}

// Deposit mints wrapped value 1:1 against attached native value.
func (f *FundLedger) Deposit(asset [20]byte, to [20]byte, amount *big.Int) error {
	return f.l.FundAccount(asset, to, amount)
}
