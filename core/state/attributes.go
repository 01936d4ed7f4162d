package state

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrWriterNotAuthorized is returned when an address without the write
// capability attempts to mutate the attribute store.
var ErrWriterNotAuthorized = errors.New("state: attribute writer not authorized")

func attributeStorageKey(collection [20]byte, tokenID *big.Int, key [32]byte) []byte {
	return kvKey(attributePrefix, collection[:], common.LeftPadBytes(tokenID.Bytes(), 32), key[:])
}

func writerStorageKey(writer [20]byte) []byte {
	return kvKey(attributeWriterKey, writer[:])
}

// GrantAttributeWriter grants the write capability to the provided address.
// The grant is persisted state; it is normally issued once at genesis to the
// vesting engine's module address.
func (m *Manager) GrantAttributeWriter(writer [20]byte) error {
	m.putKV(writerStorageKey(writer), []byte{1})
	return nil
}

// AttributeWriterGranted reports whether the address holds the write
// capability.
func (m *Manager) AttributeWriterGranted(writer [20]byte) (bool, error) {
	data, err := m.getKV(writerStorageKey(writer))
	if err != nil {
		return false, err
	}
	return len(data) == 1 && data[0] == 1, nil
}

// WriteAttribute stores an opaque attribute blob for (collection, tokenID,
// key). The writer must hold the write capability.
func (m *Manager) WriteAttribute(writer, collection [20]byte, tokenID *big.Int, key [32]byte, value []byte) error {
	granted, err := m.AttributeWriterGranted(writer)
	if err != nil {
		return err
	}
	if !granted {
		return ErrWriterNotAuthorized
	}
	m.putKV(attributeStorageKey(collection, tokenID, key), value)
	return nil
}

// ReadAttribute retrieves an attribute blob. Reads are unrestricted; absent
// attributes yield nil.
func (m *Manager) ReadAttribute(collection [20]byte, tokenID *big.Int, key [32]byte) ([]byte, error) {
	return m.getKV(attributeStorageKey(collection, tokenID, key))
}
