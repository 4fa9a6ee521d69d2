package crypto

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

const (
	testKeyA = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	testKeyB = "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1"
)

func TestSignAndVerifyProof(t *testing.T) {
	signer, err := NewSigner(testKeyA)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	digest := TransactDigest("deposit", domain.TreasuryAddress(),
		common.HexToAddress("0x0000000000000000000000000000000000000b02"), 500, 1)

	proof, err := signer.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := VerifyProof(signer.Address(), digest, proof); err != nil {
		t.Errorf("verify own proof: %v", err)
	}

	other, err := NewSigner(testKeyB)
	if err != nil {
		t.Fatalf("new signer B: %v", err)
	}
	if err := VerifyProof(other.Address(), digest, proof); !errors.Is(err, domain.ErrInvalidProof) {
		t.Errorf("proof verified against wrong address: %v", err)
	}

	// A proof over a different digest must not verify.
	otherDigest := TransactDigest("deposit", domain.TreasuryAddress(),
		common.HexToAddress("0x0000000000000000000000000000000000000b02"), 500, 2)
	if err := VerifyProof(signer.Address(), otherDigest, proof); !errors.Is(err, domain.ErrInvalidProof) {
		t.Errorf("replayed proof verified: %v", err)
	}

	if err := VerifyProof(signer.Address(), digest, nil); !errors.Is(err, domain.ErrInvalidProof) {
		t.Errorf("missing proof verified: %v", err)
	}
}

func TestTransactDigestDistinguishesOperations(t *testing.T) {
	coparty := common.HexToAddress("0x0000000000000000000000000000000000000b02")
	treasury := domain.TreasuryAddress()

	dep := TransactDigest("deposit", treasury, coparty, 500, 1)
	reimb := TransactDigest("reimburse", treasury, coparty, 500, 1)
	if dep == reimb {
		t.Error("deposit and reimburse digests collide")
	}

	next := TransactDigest("deposit", treasury, coparty, 500, 2)
	if dep == next {
		t.Error("digests for different nonces collide")
	}
}

func TestEncryptDecryptKeyRoundtrip(t *testing.T) {
	blob, err := EncryptKey(testKeyA, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != testKeyA {
		t.Errorf("roundtrip key = %s, want %s", got, testKeyA)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("decrypt with wrong password succeeded")
	}
}
