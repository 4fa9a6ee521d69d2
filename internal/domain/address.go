package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Record addresses are content-addressed: keccak256 over a fixed domain tag
// plus the identifying fields. The tags match the record kinds, so two
// record families can never collide even for identical identities.
const (
	tagMarket   = "market"
	tagStake    = "bettor"
	tagTreasury = "treasury"
	tagMint     = "mint"
)

// MarketAddress derives the unique address of the market denominated in the
// given reference token. Creation of a second market for the same token
// therefore collides and is rejected rather than overwriting.
func MarketAddress(referenceToken common.Address) common.Hash {
	return derive(tagMarket, referenceToken.Bytes())
}

// StakeAddress derives the unique address of a bettor's stake on one
// (facet, outcome) pair within a market.
func StakeAddress(referenceToken common.Address, facet Facet, bettor common.Address, outcome string) common.Hash {
	return derive(tagStake, referenceToken.Bytes(), []byte(facet), bettor.Bytes(), []byte(outcome))
}

// TreasuryAddress derives the deployment-wide treasury singleton address.
func TreasuryAddress() common.Hash {
	return derive(tagTreasury)
}

// MintAddress derives the deployment-wide token-mint singleton address.
func MintAddress() common.Hash {
	return derive(tagMint)
}

func derive(tag string, fields ...[]byte) common.Hash {
	parts := make([][]byte, 0, len(fields)+1)
	parts = append(parts, []byte(tag))
	parts = append(parts, fields...)
	return common.BytesToHash(crypto.Keccak256(parts...))
}
