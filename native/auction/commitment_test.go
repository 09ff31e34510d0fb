package auction

import (
	"encoding/hex"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestCommitMatchesABIEncoding(t *testing.T) {
	salt := testSalt(0x11)
	commitment, err := Commit(big.NewInt(1_000), salt)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	var word [32]byte
	big.NewInt(1_000).FillBytes(word[:])
	want := ethcrypto.Keccak256(word[:], salt[:])
	if hex.EncodeToString(commitment[:]) != hex.EncodeToString(want) {
		t.Fatalf("unexpected commitment %x, want %x", commitment, want)
	}
}

func TestCommitmentBindsAmountAndSalt(t *testing.T) {
	salt := testSalt(0x22)
	commitment, err := Commit(big.NewInt(7), salt)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !VerifyCommitment(big.NewInt(7), salt, commitment) {
		t.Fatalf("commitment did not verify")
	}
	if VerifyCommitment(big.NewInt(8), salt, commitment) {
		t.Fatalf("different amount verified")
	}
	if VerifyCommitment(big.NewInt(7), testSalt(0x23), commitment) {
		t.Fatalf("different salt verified")
	}
	again, _ := Commit(big.NewInt(7), salt)
	if again != commitment {
		t.Fatalf("commit not deterministic")
	}
}

func TestCommitRejectsOutOfRangeAmounts(t *testing.T) {
	var salt [32]byte
	if _, err := Commit(big.NewInt(-1), salt); err != ErrAmountOutOfRange {
		t.Fatalf("expected out of range for negative, got %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := Commit(huge, salt); err != ErrAmountOutOfRange {
		t.Fatalf("expected out of range for 2^256, got %v", err)
	}
	if VerifyCommitment(huge, salt, [32]byte{}) {
		t.Fatalf("out of range amount verified")
	}
	ceiling := new(big.Int).Sub(huge, big.NewInt(1))
	if _, err := Commit(ceiling, salt); err != nil {
		t.Fatalf("2^256-1 must be accepted: %v", err)
	}
}

func TestNewSaltIsRandom(t *testing.T) {
	a, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	b, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	if a == b {
		t.Fatalf("two salts collided")
	}
}

func TestPhaseOf(t *testing.T) {
	a := &Auction{StartTime: 10, EndOfBidPhase: 20, EndOfRevealPhase: 30, EndOfSettlePhase: 40}
	cases := []struct {
		now  int64
		want Phase
	}{
		{9, PhaseCreated},
		{10, PhaseBid},
		{19, PhaseBid},
		{20, PhaseReveal},
		{29, PhaseReveal},
		{30, PhaseSettle},
		{39, PhaseSettle},
		{40, PhaseExpired},
		{1 << 40, PhaseExpired},
	}
	for _, tc := range cases {
		if got := PhaseOf(a, tc.now); got != tc.want {
			t.Fatalf("PhaseOf(%d) = %s, want %s", tc.now, got, tc.want)
		}
	}
	if PhaseOf(nil, 0) != PhaseExpired {
		t.Fatalf("nil auction must be expired")
	}
}
