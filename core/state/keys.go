package state

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	paramsKey               = ethcrypto.Keccak256([]byte("market/params"))
	listingPrefix           = []byte("market/listing/")
	tokenBidPrefix          = []byte("market/bid/token/")
	collectionBidPrefix     = []byte("market/bid/collection/")
	collectionFeePrefix     = []byte("market/fee/")
	collectionPaymentPrefix = []byte("market/pay/")
	rolePrefix              = []byte("role/")
	collectionMetaPrefix    = []byte("ledger/collection/")
	tokenOwnerPrefix        = []byte("ledger/token/owner/")
	tokenBalancePrefix      = []byte("ledger/token/balance/")
	operatorPrefix          = []byte("ledger/token/operator/")
	fundBalancePrefix       = []byte("ledger/fund/balance/")
	fundAllowancePrefix     = []byte("ledger/fund/allowance/")
)

// tokenIDBytes left-pads the identifier to 32 bytes so composite keys have a
// fixed layout regardless of magnitude.
func tokenIDBytes(tokenID *big.Int) []byte {
	out := make([]byte, 32)
	if tokenID == nil {
		return out
	}
	raw := tokenID.Bytes()
	if len(raw) > 32 {
		raw = raw[len(raw)-32:]
	}
	copy(out[32-len(raw):], raw)
	return out
}

func compositeKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

func listingKey(collection [20]byte, tokenID *big.Int, seller [20]byte) []byte {
	return compositeKey(listingPrefix, collection[:], tokenIDBytes(tokenID), seller[:])
}

func tokenBidKey(collection [20]byte, tokenID *big.Int, bidder [20]byte) []byte {
	return compositeKey(tokenBidPrefix, collection[:], tokenIDBytes(tokenID), bidder[:])
}

func collectionBidKey(collection [20]byte, bidder [20]byte) []byte {
	return compositeKey(collectionBidPrefix, collection[:], bidder[:])
}

func collectionFeeKey(collection [20]byte) []byte {
	return compositeKey(collectionFeePrefix, collection[:])
}

func collectionPaymentKey(collection [20]byte) []byte {
	return compositeKey(collectionPaymentPrefix, collection[:])
}

func roleKey(role string) []byte {
	return compositeKey(rolePrefix, []byte(role))
}

func collectionMetaKey(collection [20]byte) []byte {
	return compositeKey(collectionMetaPrefix, collection[:])
}

func tokenOwnerKey(collection [20]byte, tokenID *big.Int) []byte {
	return compositeKey(tokenOwnerPrefix, collection[:], tokenIDBytes(tokenID))
}

func tokenBalanceKey(collection [20]byte, tokenID *big.Int, holder [20]byte) []byte {
	return compositeKey(tokenBalancePrefix, collection[:], tokenIDBytes(tokenID), holder[:])
}

func operatorKey(collection [20]byte, owner, operator [20]byte) []byte {
	return compositeKey(operatorPrefix, collection[:], owner[:], operator[:])
}

func fundBalanceKey(asset [20]byte, holder [20]byte) []byte {
	return compositeKey(fundBalancePrefix, asset[:], holder[:])
}

func fundAllowanceKey(asset [20]byte, owner, spender [20]byte) []byte {
	return compositeKey(fundAllowancePrefix, asset[:], owner[:], spender[:])
}
