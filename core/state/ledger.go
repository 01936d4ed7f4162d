package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the payer's
	// balance.
	ErrInsufficientFunds = errors.New("state: insufficient funds")
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds
	// the spender's approval.
	ErrInsufficientAllowance = errors.New("state: insufficient allowance")
	// ErrMintNotAuthorized is returned when an address other than the mint
	// authority attempts to mint.
	ErrMintNotAuthorized = errors.New("state: mint not authorized")
	// ErrInvalidTransferAmount is returned for nil or negative amounts.
	ErrInvalidTransferAmount = errors.New("state: invalid transfer amount")
	// ErrTokenNotInitialized is returned when ledger operations run before
	// genesis wrote the token metadata.
	ErrTokenNotInitialized = errors.New("state: token not initialized")
)

// TokenMetadata describes the single fungible asset managed by the ledger.
type TokenMetadata struct {
	Symbol        string
	Decimals      uint8
	MintAuthority []byte
}

func balanceKey(addr [20]byte) []byte {
	return kvKey(tokenBalancePrefix, addr[:])
}

func allowanceKey(owner, spender [20]byte) []byte {
	return kvKey(tokenAllowancePfx, owner[:], spender[:])
}

// InitializeToken writes the ledger's token metadata if it is not already
// present. It is called once during node genesis.
func (m *Manager) InitializeToken(symbol string, decimals uint8, mintAuthority [20]byte) error {
	existing, err := m.TokenMeta()
	if err != nil && !errors.Is(err, ErrTokenNotInitialized) {
		return err
	}
	if existing != nil {
		return nil
	}
	meta := &TokenMetadata{
		Symbol:        symbol,
		Decimals:      decimals,
		MintAuthority: mintAuthority[:],
	}
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	m.putKV(kvKey(tokenMetadataKey), encoded)
	return nil
}

// TokenMeta returns the ledger's token metadata.
func (m *Manager) TokenMeta() (*TokenMetadata, error) {
	data, err := m.getKV(kvKey(tokenMetadataKey))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrTokenNotInitialized
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// BalanceOf returns the fungible balance of an address.
func (m *Manager) BalanceOf(addr [20]byte) (*big.Int, error) {
	return m.loadBigInt(balanceKey(addr))
}

// MintToken credits freshly minted funds to the recipient. Only the
// configured mint authority may call it.
func (m *Manager) MintToken(caller, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	meta, err := m.TokenMeta()
	if err != nil {
		return err
	}
	if len(meta.MintAuthority) != 20 || [20]byte(meta.MintAuthority) != caller {
		return ErrMintNotAuthorized
	}
	balance, err := m.BalanceOf(to)
	if err != nil {
		return err
	}
	return m.writeBigInt(balanceKey(to), new(big.Int).Add(balance, amount))
}

// Approve sets the spender's allowance over the owner's funds, replacing any
// previous approval.
func (m *Manager) Approve(owner, spender [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	return m.writeBigInt(allowanceKey(owner, spender), amount)
}

// Allowance returns how much the spender may still move on the owner's
// behalf.
func (m *Manager) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return m.loadBigInt(allowanceKey(owner, spender))
}

// TransferFrom moves funds from owner to the recipient on the strength of a
// prior approval to the spender, decrementing the allowance.
func (m *Manager) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	allowance, err := m.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := m.Transfer(owner, to, amount); err != nil {
		return err
	}
	return m.writeBigInt(allowanceKey(owner, spender), new(big.Int).Sub(allowance, amount))
}

// Transfer moves funds between two addresses.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	fromBalance, err := m.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := m.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := m.writeBigInt(balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.writeBigInt(balanceKey(to), new(big.Int).Add(toBalance, amount))
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTransferAmount
	}
	return nil
}
