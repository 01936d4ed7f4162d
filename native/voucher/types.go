package voucher

import (
	"fmt"
	"math/big"
)

// VestingType selects how a tranche unlocks over time. The wire values match
// the original registry encoding and must not be renumbered.
type VestingType uint8

const (
	VestingTypeLinear VestingType = 1
	VestingTypeStaged VestingType = 2
)

// Valid reports whether the vesting type is within the supported range.
func (t VestingType) Valid() bool {
	switch t {
	case VestingTypeLinear, VestingTypeStaged:
		return true
	default:
		return false
	}
}

func (t VestingType) String() string {
	switch t {
	case VestingTypeLinear:
		return "linear"
	case VestingTypeStaged:
		return "staged"
	default:
		return "unknown"
	}
}

// LinearType is the unlock granularity of a linear tranche. Unlocks only
// advance at whole period boundaries, never continuously.
type LinearType uint8

const (
	LinearTypeNone      LinearType = 0
	LinearTypeDaily     LinearType = 1
	LinearTypeWeekly    LinearType = 2
	LinearTypeMonthly   LinearType = 3
	LinearTypeQuarterly LinearType = 4
)

// Period returns the fixed period length in seconds. Months and quarters are
// fixed 30 and 90 day spans; calendar arithmetic is deliberately not used so
// that unlock boundaries stay deterministic.
func (t LinearType) Period() int64 {
	const day = 24 * 60 * 60
	switch t {
	case LinearTypeDaily:
		return day
	case LinearTypeWeekly:
		return 7 * day
	case LinearTypeMonthly:
		return 30 * day
	case LinearTypeQuarterly:
		return 90 * day
	default:
		return 0
	}
}

// Valid reports whether the linear type is usable on a linear tranche.
func (t LinearType) Valid() bool {
	switch t {
	case LinearTypeDaily, LinearTypeWeekly, LinearTypeMonthly, LinearTypeQuarterly:
		return true
	default:
		return false
	}
}

func (t LinearType) String() string {
	switch t {
	case LinearTypeNone:
		return "none"
	case LinearTypeDaily:
		return "daily"
	case LinearTypeWeekly:
		return "weekly"
	case LinearTypeMonthly:
		return "monthly"
	case LinearTypeQuarterly:
		return "quarterly"
	default:
		return "unknown"
	}
}

// ScheduleStatus is the derived lifecycle state of a tranche. Vested denotes
// fully time-unlocked, not fully paid out. The wire values match the original
// registry encoding.
type ScheduleStatus uint8

const (
	StatusUnvested ScheduleStatus = 0
	StatusVested   ScheduleStatus = 1
	StatusVesting  ScheduleStatus = 2
)

// Valid reports whether the status value is within the supported range.
func (s ScheduleStatus) Valid() bool {
	switch s {
	case StatusUnvested, StatusVested, StatusVesting:
		return true
	default:
		return false
	}
}

func (s ScheduleStatus) String() string {
	switch s {
	case StatusUnvested:
		return "unvested"
	case StatusVested:
		return "vested"
	case StatusVesting:
		return "vesting"
	default:
		return "unknown"
	}
}

// Schedule is one tranche of a vesting plan. Amount is fixed at creation;
// RemainingAmount only ever decreases as the holder withdraws.
type Schedule struct {
	Amount          *big.Int
	VestingType     VestingType
	LinearType      LinearType
	StartTimestamp  int64
	EndTimestamp    int64
	Status          ScheduleStatus
	RemainingAmount *big.Int
}

// Clone returns a deep copy of the schedule so callers can safely mutate the
// copy without affecting the stored instance.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Amount = cloneBigInt(s.Amount)
	clone.RemainingAmount = cloneBigInt(s.RemainingAmount)
	return &clone
}

// Vesting is the accounting payload bound to one voucher identity. Schedule
// order is significant: earlier tranches are drained first on redemption.
type Vesting struct {
	Balance   *big.Int
	Schedules []Schedule
}

// Clone returns a deep copy of the vesting record.
func (v *Vesting) Clone() *Vesting {
	if v == nil {
		return nil
	}
	clone := &Vesting{Balance: cloneBigInt(v.Balance)}
	if v.Schedules != nil {
		clone.Schedules = make([]Schedule, len(v.Schedules))
		for i := range v.Schedules {
			clone.Schedules[i] = *v.Schedules[i].Clone()
		}
	}
	return clone
}

// SanitizeVesting validates a creation request and returns a normalized deep
// copy ready for persistence: every tranche is reset to Unvested with its full
// amount remaining, staged tranches have their end timestamp and linear type
// zeroed, and the declared balance must equal the tranche amount sum.
func SanitizeVesting(v *Vesting) (*Vesting, error) {
	if v == nil {
		return nil, ErrInvalidAmount
	}
	clone := v.Clone()
	if clone.Balance == nil || clone.Balance.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(clone.Schedules) == 0 {
		return nil, ErrInvalidSchedule
	}
	total := big.NewInt(0)
	for i := range clone.Schedules {
		s := &clone.Schedules[i]
		if s.Amount == nil || s.Amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		switch s.VestingType {
		case VestingTypeStaged:
			s.LinearType = LinearTypeNone
			s.EndTimestamp = 0
		case VestingTypeLinear:
			if !s.LinearType.Valid() {
				return nil, fmt.Errorf("%w: linear type %d", ErrInvalidSchedule, s.LinearType)
			}
			if s.EndTimestamp <= s.StartTimestamp {
				return nil, fmt.Errorf("%w: end must be after start", ErrInvalidSchedule)
			}
		default:
			return nil, fmt.Errorf("%w: vesting type %d", ErrInvalidSchedule, s.VestingType)
		}
		s.Status = StatusUnvested
		s.RemainingAmount = cloneBigInt(s.Amount)
		total.Add(total, s.Amount)
	}
	if total.Cmp(clone.Balance) != 0 {
		return nil, fmt.Errorf("%w: balance %s does not match schedule total %s", ErrInvalidAmount, clone.Balance, total)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
