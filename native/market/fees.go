package market

import (
	"fmt"
	"math/big"
)

const (
	// MaxProtocolFeeBps caps both the standard and the override protocol
	// rate; MaxCollectionFeeBps caps the per-collection share. Enforced by
	// the admin path at write time so settlement never has to clamp.
	MaxProtocolFeeBps   uint32 = 1500
	MaxCollectionFeeBps uint32 = 2000

	feeDenominator = 10_000
)

// FeeBreakdown is the exact split of one gross sale amount. The three parts
// always sum to the gross input.
type FeeBreakdown struct {
	ProtocolFee         *big.Int
	CollectionFee       *big.Int
	Proceeds            *big.Int
	CollectionRecipient [20]byte
}

// ComputeFees splits gross according to the active schedule. With an active
// override (non-zero recipient) the override protocol rate and the
// collection's own rate apply; otherwise the standard rate applies and the
// collection share is zero. Both fee amounts truncate.
func ComputeFees(params *Params, override *CollectionFee, gross *big.Int) (*FeeBreakdown, error) {
	if params == nil {
		return nil, errNilParams
	}
	amount, err := sanitizeAmount("gross amount", gross)
	if err != nil {
		return nil, err
	}
	protocolBps := params.FeeBps
	collectionBps := uint32(0)
	out := &FeeBreakdown{CollectionFee: big.NewInt(0)}
	if override != nil && !isZeroAddress(override.Recipient) {
		protocolBps = params.FeeWithOverrideBps
		collectionBps = override.FeeBps
		out.CollectionRecipient = override.Recipient
	}
	out.ProtocolFee = feeAmount(amount, protocolBps)
	if collectionBps > 0 {
		out.CollectionFee = feeAmount(amount, collectionBps)
	}
	out.Proceeds = new(big.Int).Sub(amount, out.ProtocolFee)
	out.Proceeds.Sub(out.Proceeds, out.CollectionFee)
	if out.Proceeds.Sign() < 0 {
		// Unreachable while the admin path enforces the caps.
		return nil, fmt.Errorf("market: fee split exceeds principal (protocol %d bps, collection %d bps)", protocolBps, collectionBps)
	}
	return out, nil
}

func feeAmount(gross *big.Int, bps uint32) *big.Int {
	if bps == 0 || gross.Sign() == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}

func (e *Engine) computeFees(params *Params, collection [20]byte, gross *big.Int) (*FeeBreakdown, error) {
	override, ok, err := e.state.CollectionFeeGet(collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		override = nil
	}
	return ComputeFees(params, override, gross)
}
