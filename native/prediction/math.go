package prediction

import (
	"math/big"

	"stakeoracle/native/params"
)

var bpsDenominator = big.NewInt(params.BasisPointsDenominator)

// applyBps returns amount * bps / 10_000 rounded down.
func applyBps(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return out.Quo(out, bpsDenominator)
}

// bonusPool returns the share of the losing aggregate redistributed to
// winners: the loss minus the burned part of the loss.
func bonusPool(losing *big.Int, p params.Redistribution) *big.Int {
	loss := applyBps(losing, p.LossFactorBps)
	burn := applyBps(loss, p.BurnFactorBps)
	return loss.Sub(loss, burn)
}

// winnerPayout returns amount plus its pro-rata share of the bonus pool.
func winnerPayout(amount, winning, losing *big.Int, p params.Redistribution) *big.Int {
	payout := newBigInt(amount)
	if winning == nil || winning.Sign() == 0 {
		return payout
	}
	bonus := new(big.Int).Mul(bonusPool(losing, p), amount)
	bonus.Quo(bonus, winning)
	return payout.Add(payout, bonus)
}

// loserPayout returns what survives of a losing stake.
func loserPayout(amount *big.Int, p params.Redistribution) *big.Int {
	return applyBps(amount, params.BasisPointsDenominator-p.LossFactorBps)
}

// loserBurn returns the part of a losing stake destroyed by the withdrawal.
func loserBurn(amount *big.Int, p params.Redistribution) *big.Int {
	return applyBps(applyBps(amount, p.LossFactorBps), p.BurnFactorBps)
}
