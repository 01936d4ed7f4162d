package core

import (
	"math/big"
	"sync"

	"voucherchain/core/events"
	"voucherchain/core/state"
	"voucherchain/core/types"
	"voucherchain/native/voucher"
	"voucherchain/observability"
	"voucherchain/storage"
)

// Node wires the vesting engine to persisted state and serializes every
// operation. Mutating operations execute against a speculative copy of the
// state manager: on success the copy is committed and adopted, on any error
// it is discarded, so a failed call can never leave a partially applied
// record or custody balance behind.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	engine  *voucher.Engine
	metrics *observability.VoucherMetrics

	events  []types.Event
	pending []types.Event
}

type nodeConfig struct {
	tokenSymbol   string
	tokenDecimals uint8
	mintAuthority [20]byte
	batchBudget   uint64
	nowFn         func() int64
}

// NodeOption customizes node construction.
type NodeOption func(*nodeConfig)

// WithTokenSymbol overrides the ledger token symbol written at genesis.
func WithTokenSymbol(symbol string) NodeOption {
	return func(c *nodeConfig) {
		if symbol != "" {
			c.tokenSymbol = symbol
		}
	}
}

// WithMintAuthority sets the address allowed to mint ledger funds.
func WithMintAuthority(addr [20]byte) NodeOption {
	return func(c *nodeConfig) { c.mintAuthority = addr }
}

// WithBatchWorkBudget overrides the engine's CreateBatch work ceiling.
func WithBatchWorkBudget(budget uint64) NodeOption {
	return func(c *nodeConfig) { c.batchBudget = budget }
}

// WithNowFunc overrides the evaluation clock. Primarily for tests.
func WithNowFunc(now func() int64) NodeOption {
	return func(c *nodeConfig) { c.nowFn = now }
}

type nodeEmitter struct {
	node *Node
}

func (e nodeEmitter) Emit(evt events.Event) {
	type eventCarrier interface {
		Event() *types.Event
	}
	carrier, ok := evt.(eventCarrier)
	if !ok || carrier.Event() == nil {
		return
	}
	e.node.pending = append(e.node.pending, *carrier.Event())
}

// NewNode opens the state over the provided database, grants the engine its
// attribute-store write capability and writes the token metadata if this is a
// fresh database.
func NewNode(db storage.Database, opts ...NodeOption) (*Node, error) {
	cfg := &nodeConfig{
		tokenSymbol:   voucher.DefaultToken,
		tokenDecimals: 18,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	n := &Node{
		db:      db,
		state:   state.NewManager(db),
		engine:  voucher.NewEngine(),
		metrics: observability.Vouchers(),
	}
	n.engine.SetEmitter(nodeEmitter{node: n})
	n.engine.SetToken(cfg.tokenSymbol)
	if cfg.batchBudget != 0 {
		n.engine.SetBatchWorkBudget(cfg.batchBudget)
	}
	if cfg.nowFn != nil {
		n.engine.SetNowFunc(cfg.nowFn)
	}

	if err := n.state.GrantAttributeWriter(voucher.ModuleAddress()); err != nil {
		return nil, err
	}
	if err := n.state.InitializeToken(cfg.tokenSymbol, cfg.tokenDecimals, cfg.mintAuthority); err != nil {
		return nil, err
	}
	if err := n.state.Commit(); err != nil {
		return nil, err
	}
	n.engine.SetState(n.state)
	return n, nil
}

// withMutation runs fn against a speculative state copy and commits it only
// if fn succeeds. Events emitted during fn are published only after commit.
func (n *Node) withMutation(fn func(work *state.Manager) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	work := n.state.Copy()
	n.engine.SetState(work)
	n.pending = n.pending[:0]
	err := fn(work)
	n.engine.SetState(n.state)
	if err != nil {
		n.pending = n.pending[:0]
		return err
	}
	if err := work.Commit(); err != nil {
		n.pending = n.pending[:0]
		return err
	}
	n.state = work
	n.engine.SetState(n.state)
	n.events = append(n.events, n.pending...)
	n.pending = n.pending[:0]
	return nil
}

// CreateVoucher mints a voucher funded by the creator's approved balance.
func (n *Node) CreateVoucher(creator [20]byte, vesting *voucher.Vesting) (*big.Int, error) {
	var tokenID *big.Int
	err := n.withMutation(func(_ *state.Manager) error {
		var innerErr error
		tokenID, innerErr = n.engine.Create(creator, vesting)
		return innerErr
	})
	if err != nil {
		n.metrics.Failures.WithLabelValues("create").Inc()
		return nil, err
	}
	n.metrics.Created.WithLabelValues("single").Inc()
	return tokenID, nil
}

// CreateVoucherBatch mints quantity identical vouchers in one atomic step.
func (n *Node) CreateVoucherBatch(creator [20]byte, vesting *voucher.Vesting, quantity uint32) ([]*big.Int, error) {
	var tokenIDs []*big.Int
	err := n.withMutation(func(_ *state.Manager) error {
		var innerErr error
		tokenIDs, innerErr = n.engine.CreateBatch(creator, vesting, quantity)
		return innerErr
	})
	if err != nil {
		n.metrics.Failures.WithLabelValues("createBatch").Inc()
		return nil, err
	}
	n.metrics.Created.WithLabelValues("batch").Add(float64(len(tokenIDs)))
	return tokenIDs, nil
}

// GetVoucher returns the live voucher view without mutating state.
func (n *Node) GetVoucher(tokenID *big.Int) (*voucher.VoucherDetail, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetVoucher(tokenID)
}

// RedeemVoucher withdraws unlocked funds for the current identity owner.
func (n *Node) RedeemVoucher(caller [20]byte, tokenID *big.Int, req voucher.RedeemRequest) (*big.Int, error) {
	var paid *big.Int
	err := n.withMutation(func(_ *state.Manager) error {
		var innerErr error
		paid, innerErr = n.engine.Redeem(caller, tokenID, req)
		return innerErr
	})
	if err != nil {
		n.metrics.Failures.WithLabelValues("redeem").Inc()
		return nil, err
	}
	n.metrics.Redeemed.Inc()
	return paid, nil
}

// TransferVoucher moves identity ownership. The accounting record is
// untouched; the new holder becomes the redemption credential immediately.
func (n *Node) TransferVoucher(from, to [20]byte, tokenID *big.Int) error {
	return n.withMutation(func(work *state.Manager) error {
		return work.TransferIdentity(n.engine.Collection(), from, to, tokenID)
	})
}

// VoucherOwner returns the current holder of a voucher identity.
func (n *Node) VoucherOwner(tokenID *big.Int) ([20]byte, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.IdentityOwner(n.engine.Collection(), tokenID)
}

// MintToken credits ledger funds; the caller must be the mint authority.
func (n *Node) MintToken(caller, to [20]byte, amount *big.Int) error {
	return n.withMutation(func(work *state.Manager) error {
		return work.MintToken(caller, to, amount)
	})
}

// ApproveToken authorizes a spender over the owner's funds. Creators approve
// the engine's module address before calling CreateVoucher.
func (n *Node) ApproveToken(owner, spender [20]byte, amount *big.Int) error {
	return n.withMutation(func(work *state.Manager) error {
		return work.Approve(owner, spender, amount)
	})
}

// TokenBalance returns the ledger balance of an address.
func (n *Node) TokenBalance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.BalanceOf(addr)
}

// TokenAllowance returns the spender's remaining approval from owner.
func (n *Node) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Allowance(owner, spender)
}

// EngineAddress returns the engine's custody address.
func (n *Node) EngineAddress() [20]byte { return voucher.ModuleAddress() }

// Collection returns the identity collection address.
func (n *Node) Collection() [20]byte { return n.engine.Collection() }

// TokenSymbol returns the ledger asset symbol.
func (n *Node) TokenSymbol() string { return n.engine.Token() }

// Events returns a copy of the committed event log, the authoritative
// externally-visible record of what changed.
func (n *Node) Events() []types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Event, len(n.events))
	copy(out, n.events)
	return out
}
