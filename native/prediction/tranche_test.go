package prediction

import (
	"math/big"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
)

// splitStake cuts total into k positive tranches.
func splitStake(faker *gofakeit.Faker, total int64, k int) []int64 {
	parts := make([]int64, 0, k)
	remaining := total
	for i := k; i > 1; i-- {
		maxPart := remaining - int64(i-1)
		part := int64(faker.IntRange(1, int(maxPart)))
		parts = append(parts, part)
		remaining -= part
	}
	return append(parts, remaining)
}

func resolvedFixture(t *testing.T, loss, burn uint32, winning, losing, stake int64, side Side) *fixture {
	t.Helper()
	f := newFixture(t)
	f.setParams(t, loss, burn)
	f.submit(t)
	voteIfPositive := func(staker [20]byte, side Side, amount int64) {
		if amount > 0 {
			f.vote(t, staker, side, amount)
		}
	}
	f.vote(t, stakerA, side, stake)
	if side == SideYes {
		voteIfPositive(stakerB, SideYes, winning-stake)
		voteIfPositive(stakerC, SideNo, losing)
	} else {
		voteIfPositive(stakerB, SideNo, losing-stake)
		voteIfPositive(stakerC, SideYes, winning)
	}
	f.oracle[testLoan] = StatusSettled
	return f
}

func TestTranchedWithdrawalsConserveValue(t *testing.T) {
	faker := gofakeit.New(42)
	for round := 0; round < 50; round++ {
		loss := uint32(faker.IntRange(0, 10_000))
		burn := uint32(faker.IntRange(0, 10_000))
		winning := int64(faker.IntRange(10_000, 5_000_000))
		losing := int64(faker.IntRange(0, 5_000_000))
		stake := int64(faker.IntRange(100, int(winning)))
		k := faker.IntRange(2, 8)
		side := SideYes
		if round%2 == 1 {
			side = SideNo
			// stakerA sits on the losing side for odd rounds.
			losing, winning = winning, losing+1
		}

		whole := resolvedFixture(t, loss, burn, winning, losing, stake, side)
		single := whole.withdraw(t, stakerA, stake)

		split := resolvedFixture(t, loss, burn, winning, losing, stake, side)
		payout := big.NewInt(0)
		burned := big.NewInt(0)
		for _, part := range splitStake(faker, stake, k) {
			s := split.withdraw(t, stakerA, part)
			payout.Add(payout, s.Payout)
			burned.Add(burned, s.Burn)
		}

		checks := []struct {
			label     string
			single    *big.Int
			tranched  *big.Int
			tolerance int64
		}{
			{"payout", single.Payout, payout, int64(k - 1)},
			// the burn floors twice per call
			{"burn", single.Burn, burned, int64(2 * (k - 1))},
		}
		for _, c := range checks {
			diff := new(big.Int).Sub(c.single, c.tranched)
			if diff.Sign() < 0 || diff.Cmp(big.NewInt(c.tolerance)) > 0 {
				t.Fatalf("round %d %s: single %s tranched %s (k=%d)", round, c.label, c.single, c.tranched, k)
			}
		}
	}
}
