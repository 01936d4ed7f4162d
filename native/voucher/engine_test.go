package voucher

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"voucherchain/core/events"
)

const day = int64(24 * 60 * 60)

type mockState struct {
	writers    map[[20]byte]bool
	attrs      map[string][]byte
	owners     map[string][20]byte
	nextID     map[[20]byte]*big.Int
	balances   map[[20]byte]*big.Int
	allowances map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		writers:    map[[20]byte]bool{ModuleAddress(): true},
		attrs:      make(map[string][]byte),
		owners:     make(map[string][20]byte),
		nextID:     make(map[[20]byte]*big.Int),
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func attrKey(collection [20]byte, tokenID *big.Int, key [32]byte) string {
	return fmt.Sprintf("%x/%s/%x", collection, tokenID, key)
}

func ownerKey(collection [20]byte, tokenID *big.Int) string {
	return fmt.Sprintf("%x/%s", collection, tokenID)
}

func allowKey(owner, spender [20]byte) string {
	return fmt.Sprintf("%x/%x", owner, spender)
}

func (m *mockState) WriteAttribute(writer, collection [20]byte, tokenID *big.Int, key [32]byte, value []byte) error {
	if !m.writers[writer] {
		return errors.New("mock: writer not authorized")
	}
	m.attrs[attrKey(collection, tokenID, key)] = append([]byte(nil), value...)
	return nil
}

func (m *mockState) ReadAttribute(collection [20]byte, tokenID *big.Int, key [32]byte) ([]byte, error) {
	return m.attrs[attrKey(collection, tokenID, key)], nil
}

func (m *mockState) MintIdentity(collection, to [20]byte) (*big.Int, error) {
	next, ok := m.nextID[collection]
	if !ok {
		next = big.NewInt(0)
	}
	tokenID := new(big.Int).Set(next)
	m.owners[ownerKey(collection, tokenID)] = to
	m.nextID[collection] = new(big.Int).Add(next, big.NewInt(1))
	return tokenID, nil
}

func (m *mockState) IdentityOwner(collection [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	owner, ok := m.owners[ownerKey(collection, tokenID)]
	return owner, ok, nil
}

func (m *mockState) balanceOf(addr [20]byte) *big.Int {
	if balance, ok := m.balances[addr]; ok {
		return balance
	}
	return big.NewInt(0)
}

func (m *mockState) BalanceOf(addr [20]byte) (*big.Int, error) {
	return new(big.Int).Set(m.balanceOf(addr)), nil
}

func (m *mockState) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if allowance, ok := m.allowances[allowKey(owner, spender)]; ok {
		return new(big.Int).Set(allowance), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	allowance, _ := m.Allowance(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return errors.New("mock: insufficient allowance")
	}
	if err := m.Transfer(owner, to, amount); err != nil {
		return err
	}
	m.allowances[allowKey(owner, spender)] = allowance.Sub(allowance, amount)
	return nil
}

func (m *mockState) Transfer(from, to [20]byte, amount *big.Int) error {
	fromBalance := m.balanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return errors.New("mock: insufficient funds")
	}
	m.balances[from] = new(big.Int).Sub(fromBalance, amount)
	m.balances[to] = new(big.Int).Add(m.balanceOf(to), amount)
	return nil
}

type captureEmitter struct {
	captured []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.captured = append(c.captured, evt)
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func ether(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), wei)
}

func fundAndApprove(st *mockState, addr [20]byte, amount *big.Int) {
	st.balances[addr] = new(big.Int).Set(amount)
	st.allowances[allowKey(addr, ModuleAddress())] = new(big.Int).Set(amount)
}

func newTestEngine(st *mockState, now int64) (*Engine, *captureEmitter) {
	emitter := &captureEmitter{}
	engine := NewEngine()
	engine.SetState(st)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return now })
	return engine, emitter
}

func stagedVesting(start int64) *Vesting {
	return &Vesting{
		Balance: ether(2000),
		Schedules: []Schedule{
			{Amount: ether(1000), VestingType: VestingTypeStaged, StartTimestamp: start},
			{Amount: ether(1000), VestingType: VestingTypeStaged, StartTimestamp: start + 30*day},
		},
	}
}

func linearVesting(start int64) *Vesting {
	return &Vesting{
		Balance: ether(1000),
		Schedules: []Schedule{
			{
				Amount:         ether(1000),
				VestingType:    VestingTypeLinear,
				LinearType:     LinearTypeDaily,
				StartTimestamp: start,
				EndTimestamp:   start + 30*day,
			},
		},
	}
}

func storedSchedules(t *testing.T, st *mockState, engine *Engine, tokenID *big.Int) []Schedule {
	t.Helper()
	data := st.attrs[attrKey(engine.Collection(), tokenID, ScheduleKey)]
	if len(data) == 0 {
		t.Fatalf("no stored schedule for token %s", tokenID)
	}
	schedules, err := DecodeSchedules(data)
	if err != nil {
		t.Fatalf("decode stored schedules: %v", err)
	}
	return schedules
}

func storedBalance(t *testing.T, st *mockState, engine *Engine, tokenID *big.Int) *big.Int {
	t.Helper()
	data := st.attrs[attrKey(engine.Collection(), tokenID, BalanceKey)]
	if len(data) == 0 {
		t.Fatalf("no stored balance for token %s", tokenID)
	}
	balance, err := DecodeBalance(data)
	if err != nil {
		t.Fatalf("decode stored balance: %v", err)
	}
	return balance
}

func TestCreateRequiresApproval(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	st.balances[creator] = ether(5000)

	if _, err := engine.Create(creator, stagedVesting(start)); !errors.Is(err, ErrInsufficientApproval) {
		t.Fatalf("expected ErrInsufficientApproval, got %v", err)
	}
	if got := st.balanceOf(creator); got.Cmp(ether(5000)) != 0 {
		t.Fatalf("creator balance changed on failed create: %s", got)
	}
	if len(st.attrs) != 0 || len(st.owners) != 0 {
		t.Fatalf("failed create touched state")
	}
}

func TestCreateSuccess(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, emitter := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	tokenID, err := engine.Create(creator, stagedVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tokenID.Sign() != 0 {
		t.Fatalf("first token id should be 0, got %s", tokenID)
	}
	if owner, ok, _ := st.IdentityOwner(engine.Collection(), tokenID); !ok || owner != creator {
		t.Fatalf("creator does not own minted identity")
	}
	if got := st.balanceOf(ModuleAddress()); got.Cmp(ether(2000)) != 0 {
		t.Fatalf("custody balance = %s, want %s", got, ether(2000))
	}
	if got := storedBalance(t, st, engine, tokenID); got.Cmp(ether(2000)) != 0 {
		t.Fatalf("stored balance = %s, want %s", got, ether(2000))
	}
	schedules := storedSchedules(t, st, engine, tokenID)
	if len(schedules) != 2 {
		t.Fatalf("stored %d schedules, want 2", len(schedules))
	}
	for i := range schedules {
		if schedules[i].Status != StatusUnvested {
			t.Fatalf("tranche %d initial status = %s, want unvested", i, schedules[i].Status)
		}
		if schedules[i].RemainingAmount.Cmp(schedules[i].Amount) != 0 {
			t.Fatalf("tranche %d remaining != amount", i)
		}
	}
	if len(emitter.captured) != 1 || emitter.captured[0].EventType() != events.TypeVoucherCreated {
		t.Fatalf("expected a single VoucherCreated event, got %v", emitter.captured)
	}
}

func TestCreateValidation(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(10_000))

	cases := []struct {
		name    string
		vesting *Vesting
		want    error
	}{
		{
			name:    "zero balance",
			vesting: &Vesting{Balance: big.NewInt(0), Schedules: []Schedule{{Amount: ether(1), VestingType: VestingTypeStaged}}},
			want:    ErrInvalidAmount,
		},
		{
			name:    "no schedules",
			vesting: &Vesting{Balance: ether(1)},
			want:    ErrInvalidSchedule,
		},
		{
			name: "balance mismatch",
			vesting: &Vesting{Balance: ether(3), Schedules: []Schedule{
				{Amount: ether(1), VestingType: VestingTypeStaged, StartTimestamp: start},
			}},
			want: ErrInvalidAmount,
		},
		{
			name: "unknown vesting type",
			vesting: &Vesting{Balance: ether(1), Schedules: []Schedule{
				{Amount: ether(1), VestingType: VestingType(9), StartTimestamp: start},
			}},
			want: ErrInvalidSchedule,
		},
		{
			name: "linear without duration",
			vesting: &Vesting{Balance: ether(1), Schedules: []Schedule{
				{Amount: ether(1), VestingType: VestingTypeLinear, LinearType: LinearTypeDaily, StartTimestamp: start, EndTimestamp: start},
			}},
			want: ErrInvalidSchedule,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Create(creator, tc.vesting); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGetVoucherNotFound(t *testing.T) {
	st := newMockState()
	engine, _ := newTestEngine(st, 0)
	if _, err := engine.GetVoucher(big.NewInt(1000)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetVoucherHybrid(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	hybrid := &Vesting{
		Balance: ether(2000),
		Schedules: []Schedule{
			{Amount: ether(1000), VestingType: VestingTypeStaged, StartTimestamp: start},
			{
				Amount:         ether(1000),
				VestingType:    VestingTypeLinear,
				LinearType:     LinearTypeDaily,
				StartTimestamp: start + 30*day,
				EndTimestamp:   start + 60*day,
			},
		},
	}
	tokenID, err := engine.Create(creator, hybrid)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	detail, err := engine.GetVoucher(tokenID)
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if detail.TotalRemaining.Cmp(ether(2000)) != 0 {
		t.Fatalf("total remaining = %s, want %s", detail.TotalRemaining, ether(2000))
	}
	// The staged tranche unlocks the instant the clock reaches its start.
	if detail.Claimable.Cmp(ether(1000)) != 0 {
		t.Fatalf("claimable = %s, want %s", detail.Claimable, ether(1000))
	}
	if detail.Schedules[0].Status != StatusVested {
		t.Fatalf("staged tranche status = %s, want vested", detail.Schedules[0].Status)
	}
	if detail.Schedules[1].Status != StatusUnvested {
		t.Fatalf("linear tranche status = %s, want unvested", detail.Schedules[1].Status)
	}

	// Reads never mutate the persisted record.
	stored := storedSchedules(t, st, engine, tokenID)
	if stored[0].Status != StatusUnvested {
		t.Fatalf("read mutated persisted status: %s", stored[0].Status)
	}
}

func TestRedeemUnauthorized(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	stranger := newTestAddress(0x02)
	fundAndApprove(st, creator, ether(2000))

	tokenID, err := engine.Create(creator, stagedVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Redeem(stranger, tokenID, RedeemAll()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := storedBalance(t, st, engine, tokenID); got.Cmp(ether(2000)) != 0 {
		t.Fatalf("failed redeem mutated stored balance: %s", got)
	}
}

func TestRedeemUnknownVoucher(t *testing.T) {
	st := newMockState()
	engine, _ := newTestEngine(st, 0)
	if _, err := engine.Redeem(newTestAddress(0x01), big.NewInt(77), RedeemAll()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeemStagedTwoTranches(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, emitter := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	tokenID, err := engine.Create(creator, stagedVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// At start only the first tranche is unlocked.
	paid, err := engine.Redeem(creator, tokenID, RedeemAll())
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if paid.Cmp(ether(1000)) != 0 {
		t.Fatalf("first redeem paid %s, want %s", paid, ether(1000))
	}
	schedules := storedSchedules(t, st, engine, tokenID)
	if schedules[0].Status != StatusVested || schedules[0].RemainingAmount.Sign() != 0 {
		t.Fatalf("tranche 1 after redeem: status=%s remaining=%s", schedules[0].Status, schedules[0].RemainingAmount)
	}
	if schedules[1].Status != StatusUnvested || schedules[1].RemainingAmount.Cmp(ether(1000)) != 0 {
		t.Fatalf("tranche 2 after redeem: status=%s remaining=%s", schedules[1].Status, schedules[1].RemainingAmount)
	}

	// 45 days later the second tranche has unlocked too.
	engine.SetNowFunc(func() int64 { return start + 45*day })
	paid, err = engine.Redeem(creator, tokenID, RedeemAll())
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if paid.Cmp(ether(1000)) != 0 {
		t.Fatalf("second redeem paid %s, want %s", paid, ether(1000))
	}
	schedules = storedSchedules(t, st, engine, tokenID)
	for i := range schedules {
		if schedules[i].Status != StatusVested || schedules[i].RemainingAmount.Sign() != 0 {
			t.Fatalf("tranche %d not exhausted: status=%s remaining=%s", i, schedules[i].Status, schedules[i].RemainingAmount)
		}
	}
	if got := storedBalance(t, st, engine, tokenID); got.Sign() != 0 {
		t.Fatalf("stored balance after exhaustion = %s, want 0", got)
	}
	if got := st.balanceOf(creator); got.Cmp(ether(2000)) != 0 {
		t.Fatalf("creator received %s in total, want %s", got, ether(2000))
	}

	// Exhausted vouchers stay queryable but cannot be redeemed again.
	if _, err := engine.Redeem(creator, tokenID, RedeemAll()); !errors.Is(err, ErrNothingToRedeem) {
		t.Fatalf("expected ErrNothingToRedeem, got %v", err)
	}
	detail, err := engine.GetVoucher(tokenID)
	if err != nil {
		t.Fatalf("get exhausted voucher: %v", err)
	}
	if detail.TotalRemaining.Sign() != 0 || detail.Claimable.Sign() != 0 {
		t.Fatalf("exhausted voucher reports remaining=%s claimable=%s", detail.TotalRemaining, detail.Claimable)
	}

	redeems := 0
	for _, evt := range emitter.captured {
		if evt.EventType() == events.TypeVoucherRedeem {
			redeems++
		}
	}
	if redeems != 2 {
		t.Fatalf("expected 2 VoucherRedeem events, got %d", redeems)
	}
}

func TestRedeemLinearDaily(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(1000))

	tokenID, err := engine.Create(creator, linearVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Half way through the ramp exactly half is unlocked.
	engine.SetNowFunc(func() int64 { return start + 15*day })
	paid, err := engine.Redeem(creator, tokenID, RedeemAll())
	if err != nil {
		t.Fatalf("redeem at day 15: %v", err)
	}
	if paid.Cmp(ether(500)) != 0 {
		t.Fatalf("paid %s at day 15, want %s", paid, ether(500))
	}
	schedules := storedSchedules(t, st, engine, tokenID)
	if schedules[0].Status != StatusVesting {
		t.Fatalf("mid-ramp status = %s, want vesting", schedules[0].Status)
	}
	if schedules[0].RemainingAmount.Cmp(ether(500)) != 0 {
		t.Fatalf("mid-ramp remaining = %s, want %s", schedules[0].RemainingAmount, ether(500))
	}

	// Past the end everything left is claimable.
	engine.SetNowFunc(func() int64 { return start + 60*day })
	paid, err = engine.Redeem(creator, tokenID, RedeemAll())
	if err != nil {
		t.Fatalf("redeem at day 60: %v", err)
	}
	if paid.Cmp(ether(500)) != 0 {
		t.Fatalf("paid %s at day 60, want %s", paid, ether(500))
	}
	schedules = storedSchedules(t, st, engine, tokenID)
	if schedules[0].Status != StatusVested || schedules[0].RemainingAmount.Sign() != 0 {
		t.Fatalf("tranche not exhausted: status=%s remaining=%s", schedules[0].Status, schedules[0].RemainingAmount)
	}
	if got := st.balanceOf(creator); got.Cmp(ether(1000)) != 0 {
		t.Fatalf("creator received %s in total, want %s", got, ether(1000))
	}
}

func TestRedeemPartialPreservesTrancheOrder(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	// Both tranches staged at start: fully unlocked immediately.
	vesting := &Vesting{
		Balance: ether(2000),
		Schedules: []Schedule{
			{Amount: ether(1000), VestingType: VestingTypeStaged, StartTimestamp: start},
			{Amount: ether(1000), VestingType: VestingTypeStaged, StartTimestamp: start},
		},
	}
	tokenID, err := engine.Create(creator, vesting)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paid, err := engine.Redeem(creator, tokenID, RedeemExact(ether(100)))
	if err != nil {
		t.Fatalf("partial redeem: %v", err)
	}
	if paid.Cmp(ether(100)) != 0 {
		t.Fatalf("paid %s, want %s", paid, ether(100))
	}
	schedules := storedSchedules(t, st, engine, tokenID)
	if schedules[0].RemainingAmount.Cmp(ether(900)) != 0 {
		t.Fatalf("tranche 1 remaining = %s, want %s", schedules[0].RemainingAmount, ether(900))
	}
	if schedules[1].RemainingAmount.Cmp(ether(1000)) != 0 {
		t.Fatalf("tranche 2 touched before tranche 1 drained: remaining = %s", schedules[1].RemainingAmount)
	}
	// Fully time-unlocked tranches report vested even while partially paid.
	if schedules[0].Status != StatusVested {
		t.Fatalf("tranche 1 status = %s, want vested", schedules[0].Status)
	}
}

func TestRedeemCapsAtClaimable(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	tokenID, err := engine.Create(creator, stagedVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Only the first tranche (1000) is unlocked; asking for 9999 caps there.
	paid, err := engine.Redeem(creator, tokenID, RedeemExact(ether(9999)))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if paid.Cmp(ether(1000)) != 0 {
		t.Fatalf("paid %s, want capped %s", paid, ether(1000))
	}
}

func TestRedeemZeroRequest(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	tokenID, err := engine.Create(creator, stagedVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Redeem(creator, tokenID, RedeemExact(big.NewInt(0))); !errors.Is(err, ErrZeroRequest) {
		t.Fatalf("expected ErrZeroRequest, got %v", err)
	}
	if _, err := engine.Redeem(creator, tokenID, RedeemRequest{}); !errors.Is(err, ErrZeroRequest) {
		t.Fatalf("zero value request should be rejected, got %v", err)
	}
}

func TestCreateBatch(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, emitter := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	holder := newTestAddress(0x02)
	fundAndApprove(st, creator, ether(1_000_000))

	template := &Vesting{
		Balance: ether(10),
		Schedules: []Schedule{
			{Amount: ether(10), VestingType: VestingTypeStaged, StartTimestamp: start},
		},
	}
	tokenIDs, err := engine.CreateBatch(creator, template, 50)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if len(tokenIDs) != 50 {
		t.Fatalf("minted %d vouchers, want 50", len(tokenIDs))
	}
	for i, tokenID := range tokenIDs {
		if tokenID.Cmp(big.NewInt(int64(i))) != 0 {
			t.Fatalf("token id %d = %s, want sequential", i, tokenID)
		}
		if owner, ok, _ := st.IdentityOwner(engine.Collection(), tokenID); !ok || owner != creator {
			t.Fatalf("token %s not owned by creator", tokenID)
		}
	}
	if got := st.balanceOf(ModuleAddress()); got.Cmp(ether(500)) != 0 {
		t.Fatalf("custody balance = %s, want %s", got, ether(500))
	}
	if len(emitter.captured) != 50 {
		t.Fatalf("expected 50 VoucherCreated events, got %d", len(emitter.captured))
	}

	// Each voucher is independently owned and redeemable after transfer.
	moved := tokenIDs[7]
	st.owners[ownerKey(engine.Collection(), moved)] = holder
	if _, err := engine.Redeem(creator, moved, RedeemAll()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous owner should be rejected, got %v", err)
	}
	paid, err := engine.Redeem(holder, moved, RedeemAll())
	if err != nil {
		t.Fatalf("redeem by new holder: %v", err)
	}
	if paid.Cmp(ether(10)) != 0 {
		t.Fatalf("paid %s, want %s", paid, ether(10))
	}
	paid, err = engine.Redeem(creator, tokenIDs[8], RedeemAll())
	if err != nil {
		t.Fatalf("redeem of sibling voucher: %v", err)
	}
	if paid.Cmp(ether(10)) != 0 {
		t.Fatalf("sibling voucher paid %s, want %s", paid, ether(10))
	}
}

func TestCreateBatchInvalidQuantity(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(1000))

	if _, err := engine.CreateBatch(creator, linearVesting(start), 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCreateBatchWorkBudget(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	engine.SetBatchWorkBudget(100)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(1_000_000))

	if _, err := engine.CreateBatch(creator, stagedVesting(start), 51); !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}
	// The budget check runs before any funds move or identities mint.
	if got := st.balanceOf(creator); got.Cmp(ether(1_000_000)) != 0 {
		t.Fatalf("failed batch moved funds: %s", got)
	}
	if len(st.owners) != 0 {
		t.Fatalf("failed batch minted identities")
	}

	if _, err := engine.CreateBatch(creator, stagedVesting(start), 50); err != nil {
		t.Fatalf("batch at budget boundary: %v", err)
	}
}

func TestConservationAcrossOperations(t *testing.T) {
	st := newMockState()
	start := int64(1_700_000_000)
	engine, _ := newTestEngine(st, start)
	creator := newTestAddress(0x01)
	fundAndApprove(st, creator, ether(2000))

	tokenID, err := engine.Create(creator, stagedVesting(start))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	checkpoints := []int64{start, start + 10*day, start + 31*day, start + 90*day}
	totalPaid := big.NewInt(0)
	for _, now := range checkpoints {
		now := now
		engine.SetNowFunc(func() int64 { return now })
		paid, err := engine.Redeem(creator, tokenID, RedeemExact(ether(300)))
		if err != nil {
			if errors.Is(err, ErrNothingToRedeem) {
				break
			}
			t.Fatalf("redeem at %d: %v", now, err)
		}
		totalPaid.Add(totalPaid, paid)

		schedules := storedSchedules(t, st, engine, tokenID)
		withdrawn := big.NewInt(0)
		for i := range schedules {
			if schedules[i].RemainingAmount.Sign() < 0 {
				t.Fatalf("negative remaining on tranche %d", i)
			}
			withdrawn.Add(withdrawn, new(big.Int).Sub(schedules[i].Amount, schedules[i].RemainingAmount))
		}
		if withdrawn.Cmp(totalPaid) != 0 {
			t.Fatalf("conservation broken: withdrawn=%s paid=%s", withdrawn, totalPaid)
		}
	}
	if got := st.balanceOf(creator); got.Cmp(totalPaid) != 0 {
		t.Fatalf("ledger balance %s does not match paid total %s", got, totalPaid)
	}
}
