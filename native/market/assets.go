package market

import (
	"fmt"
	"math/big"
)

// AssetOwnership is the per-collection asset service the engine settles
// against. Implementations wrap the external token contracts; the capability
// query is re-run on every path because declared capabilities are not
// trusted to stay constant.
type AssetOwnership interface {
	// Kind classifies the collection's transfer interface.
	Kind(collection [20]byte) (AssetKind, error)
	// CollectionAdmin returns the collection's administrative authority,
	// if it exposes one.
	CollectionAdmin(collection [20]byte) ([20]byte, bool, error)
	// OwnerOf resolves the exclusive owner of a singleton token.
	OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error)
	// BalanceOf resolves a holder's balance of a multi-unit token.
	BalanceOf(collection [20]byte, tokenID *big.Int, holder [20]byte) (uint64, error)
	// IsApprovedForAll reports whether operator may move owner's tokens.
	IsApprovedForAll(collection [20]byte, owner, operator [20]byte) (bool, error)
	// TransferFrom moves quantity units of tokenID from from to to on
	// behalf of operator.
	TransferFrom(collection [20]byte, operator, from, to [20]byte, tokenID *big.Int, quantity uint64) error
}

// FungibleToken is the payment-asset service. TransferFrom consumes the
// owner's allowance for the spender unless spender and owner coincide.
type FungibleToken interface {
	BalanceOf(asset, holder [20]byte) (*big.Int, error)
	Allowance(asset, owner, spender [20]byte) (*big.Int, error)
	TransferFrom(asset [20]byte, spender, from, to [20]byte, amount *big.Int) error
	// Deposit credits to with amount of the wrapped-native asset, backed
	// 1:1 by attached native value.
	Deposit(asset [20]byte, to [20]byte, amount *big.Int) error
}

// SalePriceRecorder is the optional external price-tracking collaborator.
type SalePriceRecorder interface {
	RecordSale(tracker [20]byte, collection [20]byte, tokenID *big.Int, pricePerUnit *big.Int) error
}

// resolveKind queries the collection's capability, mapping unknown or
// unclassifiable contracts to ErrUnsupportedAsset.
func (e *Engine) resolveKind(collection [20]byte) (AssetKind, error) {
	if e.assets == nil {
		return AssetKindUnsupported, errNilAssets
	}
	kind, err := e.assets.Kind(collection)
	if err != nil {
		return AssetKindUnsupported, fmt.Errorf("%w: %x", ErrUnsupportedAsset, collection)
	}
	if !kind.Valid() {
		return AssetKindUnsupported, fmt.Errorf("%w: %x", ErrUnsupportedAsset, collection)
	}
	return kind, nil
}
