package ledger

import "testing"

func TestWinnerPayout(t *testing.T) {
	tests := []struct {
		name        string
		amount      uint64
		winningPool uint64
		losingPool  uint64
		want        uint64
	}{
		// Worked example: stakes 300+100 on the winner, 200 against.
		{"worked example large winner", 300, 400, 200, 450},
		{"worked example small winner", 100, 400, 200, 150},
		// Rounding example: 100+1 on the winner, 10 against. The shares
		// truncate to 9 and 0; one unit stays in the pool.
		{"rounding keeps remainder", 100, 101, 10, 109},
		{"rounding truncates to zero", 1, 101, 10, 1},
		{"empty winning cohort refunds", 250, 0, 600, 250},
		{"no losers returns principal", 500, 500, 0, 500},
		{"sole winner takes whole losing pool", 70, 70, 930, 1000},
		// amount*losingPool overflows 64 bits; the 128-bit intermediate
		// must keep the result exact.
		{"overflowing intermediate", 1 << 40, 1 << 41, 1 << 63, (1 << 40) + (1 << 62)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WinnerPayout(tt.amount, tt.winningPool, tt.losingPool)
			if got != tt.want {
				t.Errorf("WinnerPayout(%d, %d, %d) = %d, want %d",
					tt.amount, tt.winningPool, tt.losingPool, got, tt.want)
			}
		})
	}
}

func TestWinnerPayoutConservation(t *testing.T) {
	// For any split of the winning pool across winners, the distributed
	// total must never exceed winningPool + losingPool.
	cases := []struct {
		name       string
		winners    []uint64
		losingPool uint64
	}{
		{"even split", []uint64{100, 100, 100, 100}, 999},
		{"uneven split", []uint64{1, 2, 3, 5, 8, 13}, 1000},
		{"single unit winners", []uint64{1, 1, 1}, 10},
		{"large pools", []uint64{1 << 50, 1 << 49, 12345}, 1 << 51},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var winningPool uint64
			for _, a := range tc.winners {
				winningPool += a
			}

			var paid uint64
			for _, a := range tc.winners {
				paid += WinnerPayout(a, winningPool, tc.losingPool)
			}

			total := winningPool + tc.losingPool
			if paid > total {
				t.Fatalf("paid %d exceeds pool total %d", paid, total)
			}
		})
	}
}
