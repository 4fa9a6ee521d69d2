package ledger

import (
	"math/bits"

	"github.com/authensus/marketd/internal/domain"
)

// WinnerPayout computes the parimutuel payout for a winning stake of the
// given amount: the principal plus a pro-rata share of the losing pool,
// truncated toward zero. The truncation remainder stays in the pool, so
// the sum of payouts can never exceed the facet total.
//
// The product amount*losingPool can exceed 64 bits, so the division runs
// on the 128-bit intermediate. amount <= winningPool guarantees the
// quotient fits in a uint64.
func WinnerPayout(amount, winningPool, losingPool uint64) uint64 {
	if winningPool == 0 {
		return amount
	}
	hi, lo := bits.Mul64(amount, losingPool)
	share, _ := bits.Div64(hi, lo, winningPool)
	return amount + share
}

// stakePayout evaluates one stake against its facet's frozen resolution.
// A facet with an empty winning cohort (void, or a winner nobody staked)
// refunds every stake in full.
func stakePayout(s *domain.Stake, res *domain.Resolution) uint64 {
	if res.WinningPool == 0 {
		return s.Amount
	}
	if s.Outcome != res.Winner {
		return 0
	}
	return WinnerPayout(s.Amount, res.WinningPool, res.PoolTotal-res.WinningPool)
}
