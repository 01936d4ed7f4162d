package voucher

import (
	"math/big"
	"testing"
)

func TestEvaluateStaged(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Amount:          ether(100),
		VestingType:     VestingTypeStaged,
		StartTimestamp:  start,
		RemainingAmount: ether(100),
	}

	unlocked, status := s.Evaluate(start - 1)
	if unlocked.Sign() != 0 || status != StatusUnvested {
		t.Fatalf("before start: unlocked=%s status=%s", unlocked, status)
	}
	unlocked, status = s.Evaluate(start)
	if unlocked.Cmp(ether(100)) != 0 || status != StatusVested {
		t.Fatalf("at start: unlocked=%s status=%s", unlocked, status)
	}
}

func TestEvaluateLinearQuantization(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Amount:          ether(1000),
		VestingType:     VestingTypeLinear,
		LinearType:      LinearTypeDaily,
		StartTimestamp:  start,
		EndTimestamp:    start + 30*day,
		RemainingAmount: ether(1000),
	}

	cases := []struct {
		name string
		now  int64
		want *big.Int
	}{
		{"before start", start - 1, big.NewInt(0)},
		{"at start", start, big.NewInt(0)},
		{"mid first period", start + day/2, big.NewInt(0)},
		{"one period", start + day, new(big.Int).Quo(ether(1000), big.NewInt(30))},
		{"day 15", start + 15*day, ether(500)},
		{"day 15 and a half", start + 15*day + day/2, ether(500)},
		{"last instant", start + 30*day - 1, new(big.Int).Quo(new(big.Int).Mul(ether(1000), big.NewInt(29)), big.NewInt(30))},
		{"at end", start + 30*day, ether(1000)},
		{"after end", start + 60*day, ether(1000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unlocked, _ := s.Evaluate(tc.now)
			if unlocked.Cmp(tc.want) != 0 {
				t.Fatalf("unlocked = %s, want %s", unlocked, tc.want)
			}
		})
	}
}

func TestEvaluateLinearStatus(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Amount:          ether(700),
		VestingType:     VestingTypeLinear,
		LinearType:      LinearTypeWeekly,
		StartTimestamp:  start,
		EndTimestamp:    start + 70*day,
		RemainingAmount: ether(700),
	}
	if _, status := s.Evaluate(start - day); status != StatusUnvested {
		t.Fatalf("before start status = %s", status)
	}
	if _, status := s.Evaluate(start + 7*day); status != StatusVesting {
		t.Fatalf("mid ramp status = %s", status)
	}
	if _, status := s.Evaluate(start + 70*day); status != StatusVested {
		t.Fatalf("at end status = %s", status)
	}
}

func TestEvaluateMonotonic(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Amount:          ether(997),
		VestingType:     VestingTypeLinear,
		LinearType:      LinearTypeDaily,
		StartTimestamp:  start,
		EndTimestamp:    start + 33*day,
		RemainingAmount: ether(997),
	}
	prev := big.NewInt(0)
	for now := start - day; now <= start+40*day; now += day / 3 {
		unlocked, _ := s.Evaluate(now)
		if unlocked.Cmp(prev) < 0 {
			t.Fatalf("unlocked decreased at %d: %s < %s", now, unlocked, prev)
		}
		if unlocked.Cmp(s.Amount) > 0 {
			t.Fatalf("unlocked exceeds amount at %d: %s", now, unlocked)
		}
		prev = unlocked
	}
	if prev.Cmp(ether(997)) != 0 {
		t.Fatalf("final unlocked = %s, want full amount", prev)
	}
}

func TestClaimableClamping(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Amount:          ether(100),
		VestingType:     VestingTypeStaged,
		StartTimestamp:  start,
		RemainingAmount: ether(40),
	}
	// 60 already withdrawn, so only the held remainder is claimable.
	claimable, status := s.Claimable(start)
	if claimable.Cmp(ether(40)) != 0 {
		t.Fatalf("claimable = %s, want %s", claimable, ether(40))
	}
	if status != StatusVested {
		t.Fatalf("status = %s, want vested", status)
	}

	// Nothing left: claimable clamps to zero rather than going negative.
	s.RemainingAmount = big.NewInt(0)
	claimable, _ = s.Claimable(start)
	if claimable.Sign() != 0 {
		t.Fatalf("claimable on drained tranche = %s", claimable)
	}

	// Not yet unlocked past the withdrawn portion.
	linear := &Schedule{
		Amount:          ether(100),
		VestingType:     VestingTypeLinear,
		LinearType:      LinearTypeDaily,
		StartTimestamp:  start,
		EndTimestamp:    start + 10*day,
		RemainingAmount: ether(50),
	}
	claimable, _ = linear.Claimable(start + 3*day)
	if claimable.Sign() != 0 {
		t.Fatalf("claimable = %s, want 0 when withdrawn exceeds unlocked", claimable)
	}
	claimable, _ = linear.Claimable(start + 8*day)
	if claimable.Cmp(ether(30)) != 0 {
		t.Fatalf("claimable = %s, want %s", claimable, ether(30))
	}
}
