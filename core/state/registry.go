package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrIdentityNotFound is returned when a token id has not been minted.
	ErrIdentityNotFound = errors.New("state: identity not found")
	// ErrNotIdentityOwner is returned when a transfer names a from address
	// that does not currently own the identity.
	ErrNotIdentityOwner = errors.New("state: not identity owner")
)

func identityOwnerKey(collection [20]byte, tokenID *big.Int) []byte {
	return kvKey(identityOwnerPrefix, collection[:], common.LeftPadBytes(tokenID.Bytes(), 32))
}

func identityNextKey(collection [20]byte) []byte {
	return kvKey(identityNextPrefix, collection[:])
}

// NextTokenID returns the id the next mint in the collection will receive.
// Ids are assigned sequentially starting at 0.
func (m *Manager) NextTokenID(collection [20]byte) (*big.Int, error) {
	return m.loadBigInt(identityNextKey(collection))
}

// MintIdentity assigns the next sequential token id in the collection to the
// recipient and returns it.
func (m *Manager) MintIdentity(collection, to [20]byte) (*big.Int, error) {
	tokenID, err := m.NextTokenID(collection)
	if err != nil {
		return nil, err
	}
	m.putKV(identityOwnerKey(collection, tokenID), to[:])
	next := new(big.Int).Add(tokenID, big.NewInt(1))
	if err := m.writeBigInt(identityNextKey(collection), next); err != nil {
		return nil, err
	}
	return tokenID, nil
}

// IdentityOwner returns the current holder of a token id. The second return
// reports whether the id has been minted.
func (m *Manager) IdentityOwner(collection [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	var owner [20]byte
	data, err := m.getKV(identityOwnerKey(collection, tokenID))
	if err != nil {
		return owner, false, err
	}
	if len(data) == 0 {
		return owner, false, nil
	}
	if len(data) != 20 {
		return owner, false, fmt.Errorf("state: corrupt identity owner record: %d bytes", len(data))
	}
	copy(owner[:], data)
	return owner, true, nil
}

// TransferIdentity moves ownership of a token id. The from address must be
// the current holder. Ownership is the sole redemption credential, so a
// transfer immediately redirects future redemptions without touching the
// voucher's accounting record.
func (m *Manager) TransferIdentity(collection, from, to [20]byte, tokenID *big.Int) error {
	owner, ok, err := m.IdentityOwner(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdentityNotFound
	}
	if owner != from {
		return ErrNotIdentityOwner
	}
	m.putKV(identityOwnerKey(collection, tokenID), to[:])
	return nil
}
