package voucher

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"voucherchain/core/events"
	"voucherchain/core/types"
)

var errNilState = errors.New("voucher engine: state not configured")

// DefaultBatchWorkBudget bounds CreateBatch to quantity x schedule-count work
// units, mirroring the gas ceiling of the original execution environment.
const DefaultBatchWorkBudget = 4096

// DefaultToken is the ledger asset vouchers are denominated in.
const DefaultToken = "VUSD"

// State is the union of the three external collaborators the engine consumes:
// the keyed attribute store, the identity registry and the value transfer
// ledger. Implementations must apply each call atomically.
type State interface {
	// Keyed attribute store. WriteAttribute requires the writer to hold the
	// write capability; ReadAttribute is unrestricted and returns nil for
	// absent attributes.
	WriteAttribute(writer, collection [20]byte, tokenID *big.Int, key [32]byte, value []byte) error
	ReadAttribute(collection [20]byte, tokenID *big.Int, key [32]byte) ([]byte, error)

	// Identity registry. MintIdentity assigns sequential ids starting at 0.
	MintIdentity(collection, to [20]byte) (*big.Int, error)
	IdentityOwner(collection [20]byte, tokenID *big.Int) ([20]byte, bool, error)

	// Value transfer ledger.
	Allowance(owner, spender [20]byte) (*big.Int, error)
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

type voucherEvent struct {
	evt *types.Event
}

func (e voucherEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e voucherEvent) Event() *types.Event { return e.evt }

// ModuleAddress returns the engine's custody address. Funds backing live
// vouchers are held here between creation and redemption.
func ModuleAddress() [20]byte {
	return deriveAddress("voucherchain/module/vesting-engine")
}

// DefaultCollection returns the identity collection address vouchers are
// minted into when none is configured explicitly.
func DefaultCollection() [20]byte {
	return deriveAddress("voucherchain/collection/vouchers")
}

func deriveAddress(name string) [20]byte {
	var out [20]byte
	hash := ethcrypto.Keccak256([]byte(name))
	copy(out[:], hash[12:])
	return out
}

// RedeemRequest selects how much a holder wants to withdraw. Use RedeemAll to
// claim everything currently unlocked or RedeemExact for a specific amount;
// the zero value is rejected as a zero request.
type RedeemRequest struct {
	All    bool
	Amount *big.Int
}

// RedeemAll requests everything currently claimable.
func RedeemAll() RedeemRequest { return RedeemRequest{All: true} }

// RedeemExact requests a specific withdrawal amount. Requests above the
// currently claimable total are capped, not rejected.
func RedeemExact(amount *big.Int) RedeemRequest {
	return RedeemRequest{Amount: cloneBigInt(amount)}
}

// VoucherDetail is the live view returned by GetVoucher. Statuses and the
// claimable total are recomputed against the evaluation clock on every read;
// nothing is mutated.
type VoucherDetail struct {
	TotalRemaining *big.Int
	Claimable      *big.Int
	Schedules      []Schedule
}

// Engine orchestrates voucher creation, retrieval and redemption on top of
// the external state collaborators. Mutating operations must be serialized by
// the caller; the engine itself holds no locks.
type Engine struct {
	state       State
	emitter     events.Emitter
	token       string
	collection  [20]byte
	moduleAddr  [20]byte
	batchBudget uint64
	nowFn       func() int64
}

// NewEngine creates a vesting engine with a no-op emitter and the default
// token, collection and batch budget. Callers override via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		token:       DefaultToken,
		collection:  DefaultCollection(),
		moduleAddr:  ModuleAddress(),
		batchBudget: DefaultBatchWorkBudget,
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetToken overrides the ledger asset symbol reported in events.
func (e *Engine) SetToken(token string) {
	if token != "" {
		e.token = token
	}
}

// SetCollection overrides the identity collection vouchers are minted into.
func (e *Engine) SetCollection(collection [20]byte) { e.collection = collection }

// SetBatchWorkBudget overrides the CreateBatch work ceiling. Zero restores the
// default.
func (e *Engine) SetBatchWorkBudget(budget uint64) {
	if budget == 0 {
		budget = DefaultBatchWorkBudget
	}
	e.batchBudget = budget
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Collection returns the identity collection address vouchers are minted into.
func (e *Engine) Collection() [20]byte { return e.collection }

// Token returns the ledger asset symbol the engine settles in.
func (e *Engine) Token() string { return e.token }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(voucherEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Create validates the vesting plan, pulls the full balance from the creator
// into engine custody, mints a fresh identity owned by the creator and
// persists the initial accounting record.
func (e *Engine) Create(creator [20]byte, vesting *Vesting) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := SanitizeVesting(vesting)
	if err != nil {
		return nil, err
	}
	if err := e.collectFunds(creator, sanitized.Balance); err != nil {
		return nil, err
	}
	tokenID, err := e.writeVoucher(creator, sanitized)
	if err != nil {
		return nil, err
	}
	return tokenID, nil
}

// CreateBatch replicates the same vesting template across quantity vouchers,
// pulling the combined balance once and minting sequential identities. The
// whole batch is bounded by the engine's work budget: quantity multiplied by
// the schedule count must not exceed it, otherwise the batch aborts with
// ErrResourceExhausted before any state is touched. Callers should split
// oversized batches.
func (e *Engine) CreateBatch(creator [20]byte, vesting *Vesting, quantity uint32) ([]*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}
	sanitized, err := SanitizeVesting(vesting)
	if err != nil {
		return nil, err
	}
	work := uint64(quantity) * uint64(len(sanitized.Schedules))
	if work > e.batchBudget {
		return nil, fmt.Errorf("%w: %d units over budget %d", ErrResourceExhausted, work, e.batchBudget)
	}
	total := new(big.Int).Mul(sanitized.Balance, new(big.Int).SetUint64(uint64(quantity)))
	if err := e.collectFunds(creator, total); err != nil {
		return nil, err
	}
	tokenIDs := make([]*big.Int, 0, quantity)
	for i := uint32(0); i < quantity; i++ {
		tokenID, err := e.writeVoucher(creator, sanitized.Clone())
		if err != nil {
			return nil, err
		}
		tokenIDs = append(tokenIDs, tokenID)
	}
	return tokenIDs, nil
}

func (e *Engine) collectFunds(creator [20]byte, total *big.Int) error {
	allowance, err := e.state.Allowance(creator, e.moduleAddr)
	if err != nil {
		return err
	}
	if allowance == nil || allowance.Cmp(total) < 0 {
		return ErrInsufficientApproval
	}
	return e.state.TransferFrom(e.moduleAddr, creator, e.moduleAddr, total)
}

func (e *Engine) writeVoucher(creator [20]byte, sanitized *Vesting) (*big.Int, error) {
	tokenID, err := e.state.MintIdentity(e.collection, creator)
	if err != nil {
		return nil, err
	}
	if err := e.persistRecord(tokenID, sanitized.Schedules); err != nil {
		return nil, err
	}
	e.emit(events.VoucherCreated{
		Creator:     creator,
		Token:       e.token,
		TotalAmount: cloneBigInt(sanitized.Balance),
		Collection:  e.collection,
		TokenID:     tokenID,
	}.Event())
	return tokenID, nil
}

func (e *Engine) persistRecord(tokenID *big.Int, schedules []Schedule) error {
	remaining := big.NewInt(0)
	for i := range schedules {
		remaining.Add(remaining, schedules[i].RemainingAmount)
	}
	balanceValue, err := EncodeBalance(remaining)
	if err != nil {
		return err
	}
	scheduleValue, err := EncodeSchedules(schedules)
	if err != nil {
		return err
	}
	if err := e.state.WriteAttribute(e.moduleAddr, e.collection, tokenID, BalanceKey, balanceValue); err != nil {
		return err
	}
	return e.state.WriteAttribute(e.moduleAddr, e.collection, tokenID, ScheduleKey, scheduleValue)
}

func (e *Engine) loadSchedules(tokenID *big.Int) ([]Schedule, error) {
	data, err := e.state.ReadAttribute(e.collection, tokenID, ScheduleKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return DecodeSchedules(data)
}

// GetVoucher returns the live view of a voucher: the aggregate remaining
// amount, the amount claimable right now and every tranche with its status
// recomputed against the current clock. It never mutates persisted state.
func (e *Engine) GetVoucher(tokenID *big.Int) (*VoucherDetail, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	schedules, err := e.loadSchedules(tokenID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	detail := &VoucherDetail{
		TotalRemaining: big.NewInt(0),
		Claimable:      big.NewInt(0),
		Schedules:      schedules,
	}
	for i := range schedules {
		s := &schedules[i]
		claimable, status := s.Claimable(now)
		s.Status = status
		detail.TotalRemaining.Add(detail.TotalRemaining, s.RemainingAmount)
		detail.Claimable.Add(detail.Claimable, claimable)
	}
	return detail, nil
}

// Redeem withdraws up to the requested amount from the voucher's unlocked
// tranches, draining earlier tranches first, and pays the proceeds to the
// caller. The caller must currently own the voucher identity. Requests above
// the claimable total are capped to it; the actual amount paid is returned.
func (e *Engine) Redeem(caller [20]byte, tokenID *big.Int, req RedeemRequest) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	owner, ok, err := e.state.IdentityOwner(e.collection, tokenID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if owner != caller {
		return nil, ErrUnauthorized
	}
	schedules, err := e.loadSchedules(tokenID)
	if err != nil {
		return nil, err
	}
	totalRemaining := big.NewInt(0)
	for i := range schedules {
		totalRemaining.Add(totalRemaining, schedules[i].RemainingAmount)
	}
	if totalRemaining.Sign() <= 0 {
		return nil, ErrNothingToRedeem
	}
	if !req.All && (req.Amount == nil || req.Amount.Sign() <= 0) {
		return nil, ErrZeroRequest
	}

	now := e.now()
	paid := big.NewInt(0)
	for i := range schedules {
		s := &schedules[i]
		claimable, status := s.Claimable(now)
		s.Status = status
		take := claimable
		if !req.All {
			outstanding := new(big.Int).Sub(req.Amount, paid)
			if take.Cmp(outstanding) > 0 {
				take = outstanding
			}
		}
		if take.Sign() > 0 {
			s.RemainingAmount = new(big.Int).Sub(s.RemainingAmount, take)
			paid.Add(paid, take)
		}
	}

	if err := e.persistRecord(tokenID, schedules); err != nil {
		return nil, err
	}
	if paid.Sign() > 0 {
		if err := e.state.Transfer(e.moduleAddr, caller, paid); err != nil {
			return nil, err
		}
	}
	e.emit(events.VoucherRedeem{
		Redeemer:   caller,
		Token:      e.token,
		AmountPaid: cloneBigInt(paid),
		Collection: e.collection,
		TokenID:    tokenID,
	}.Event())
	return paid, nil
}
