package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"voucherchain/storage"
)

// Manager provides typed access to the persisted state: the keyed attribute
// store, the identity registry and the token ledger. Writes accumulate in an
// in-memory overlay until Commit flushes them to the backing database, so a
// speculative Copy can be discarded wholesale to roll back a failed
// operation.
//
// Manager is not safe for concurrent use; callers serialize operations.
type Manager struct {
	db    storage.Database
	dirty map[string][]byte
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// Copy returns a manager sharing the same database but with an independent
// overlay. Mutations on the copy are invisible until it is committed.
func (m *Manager) Copy() *Manager {
	dirty := make(map[string][]byte, len(m.dirty))
	for k, v := range m.dirty {
		buf := make([]byte, len(v))
		copy(buf, v)
		dirty[k] = buf
	}
	return &Manager{db: m.db, dirty: dirty}
}

// Commit flushes the overlay to the backing database in deterministic key
// order and clears it.
func (m *Manager) Commit() error {
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.db.Put([]byte(k), m.dirty[k]); err != nil {
			return fmt.Errorf("state: commit %x: %w", k, err)
		}
	}
	m.dirty = make(map[string][]byte)
	return nil
}

func (m *Manager) getKV(key []byte) ([]byte, error) {
	if value, ok := m.dirty[string(key)]; ok {
		buf := make([]byte, len(value))
		copy(buf, value)
		return buf, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) putKV(key, value []byte) {
	buf := make([]byte, len(value))
	copy(buf, value)
	m.dirty[string(key)] = buf
}

func kvKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, err := m.getKV(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) writeBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.putKV(key, encoded)
	return nil
}
