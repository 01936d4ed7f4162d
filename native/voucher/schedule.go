package voucher

import "math/big"

// Evaluate computes the unlocked portion of the tranche at the given unix
// timestamp together with the time-derived status. It is a pure function of
// the tranche definition and the clock; withdrawals do not affect it.
//
// Staged tranches unlock in full the instant now reaches the start timestamp.
// Linear tranches pro-rate between start and end, quantized down to whole
// periods of the tranche's linear type so that the unlocked amount only
// advances at period boundaries.
func (s *Schedule) Evaluate(now int64) (*big.Int, ScheduleStatus) {
	if s == nil {
		return big.NewInt(0), StatusUnvested
	}
	amount := cloneBigInt(s.Amount)
	switch s.VestingType {
	case VestingTypeStaged:
		if now < s.StartTimestamp {
			return big.NewInt(0), StatusUnvested
		}
		return amount, StatusVested
	case VestingTypeLinear:
		if now < s.StartTimestamp {
			return big.NewInt(0), StatusUnvested
		}
		if now >= s.EndTimestamp {
			return amount, StatusVested
		}
		period := s.LinearType.Period()
		if period <= 0 {
			return big.NewInt(0), StatusUnvested
		}
		duration := s.EndTimestamp - s.StartTimestamp
		elapsed := now - s.StartTimestamp
		quantized := (elapsed / period) * period
		if quantized >= duration {
			return amount, StatusVested
		}
		unlocked := new(big.Int).Mul(amount, big.NewInt(quantized))
		unlocked.Quo(unlocked, big.NewInt(duration))
		return unlocked, StatusVesting
	default:
		return big.NewInt(0), StatusUnvested
	}
}

// Claimable returns the unlocked-but-unwithdrawn amount of the tranche at the
// given timestamp, clamped so that data or clock skew can never produce a
// negative value or exceed what is still held.
func (s *Schedule) Claimable(now int64) (*big.Int, ScheduleStatus) {
	unlocked, status := s.Evaluate(now)
	if s == nil {
		return unlocked, status
	}
	withdrawn := new(big.Int).Sub(cloneBigInt(s.Amount), cloneBigInt(s.RemainingAmount))
	claimable := new(big.Int).Sub(unlocked, withdrawn)
	if claimable.Sign() < 0 {
		claimable.SetInt64(0)
	}
	if remaining := cloneBigInt(s.RemainingAmount); claimable.Cmp(remaining) > 0 {
		claimable = remaining
	}
	return claimable, status
}
