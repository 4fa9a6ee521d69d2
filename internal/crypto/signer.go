// Package crypto provides key management and the ECDSA authorization
// proofs used by treasury transactions. A proof is a signature over an
// operation digest; both parties to a dual-signed operation supply one.
package crypto

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/authensus/marketd/internal/domain"
)

// Signer holds a private key and produces authorization proofs.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key (with or
// without 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	priv, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}
	return &Signer{
		privateKey: priv,
		address:    ethcrypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// Address returns the signer's derived address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (s *Signer) Sign(digest common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign digest: %w", err)
	}
	return sig, nil
}

// VerifyProof checks that proof is a valid signature over digest made by
// the holder of addr's key. It returns domain.ErrInvalidProof for any
// malformed or mismatching proof, so callers can surface a single stable
// error kind.
func VerifyProof(addr common.Address, digest common.Hash, proof []byte) error {
	if len(proof) != 65 {
		return domain.ErrInvalidProof
	}
	pub, err := ethcrypto.SigToPub(digest.Bytes(), proof)
	if err != nil {
		return domain.ErrInvalidProof
	}
	if ethcrypto.PubkeyToAddress(*pub) != addr {
		return domain.ErrInvalidProof
	}
	return nil
}

// TransactDigest is the digest a treasury transaction proof commits to:
// the operation name, the treasury singleton, the counterparty, the amount
// and the treasury nonce the transaction will consume. Committing to the
// nonce makes every proof single-use.
func TransactDigest(op string, treasury common.Hash, coparty common.Address, amount, nonce uint64) common.Hash {
	var amt, non [8]byte
	binary.BigEndian.PutUint64(amt[:], amount)
	binary.BigEndian.PutUint64(non[:], nonce)
	return common.BytesToHash(ethcrypto.Keccak256(
		[]byte(op),
		treasury.Bytes(),
		coparty.Bytes(),
		amt[:],
		non[:],
	))
}

// ParseAddress parses a hex address, accepting the 0x prefix.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("crypto: invalid address %q", s)
	}
	return common.BytesToAddress(raw), nil
}
