package auction

import (
	"crypto/rand"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Commit derives the sealed-bid commitment keccak256(uint256(amount) || salt).
// The layout matches the ABI encoding of (uint256, bytes32) so commitments can
// be produced by any client that speaks Ethereum ABI.
func Commit(amount *big.Int, salt [32]byte) ([32]byte, error) {
	var out [32]byte
	if amount == nil || amount.Sign() < 0 {
		return out, ErrAmountOutOfRange
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return out, ErrAmountOutOfRange
	}
	encoded := word.Bytes32()
	digest := ethcrypto.Keccak256(encoded[:], salt[:])
	copy(out[:], digest)
	return out, nil
}

// VerifyCommitment recomputes the commitment for (amount, salt) and compares
// it with the sealed value.
func VerifyCommitment(amount *big.Int, salt [32]byte, commitment [32]byte) bool {
	computed, err := Commit(amount, salt)
	if err != nil {
		return false
	}
	return computed == commitment
}

// NewSalt returns 32 bytes of cryptographic randomness for a fresh bid.
func NewSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, err
	}
	return salt, nil
}
