package events

import (
	"encoding/hex"
	"math/big"

	"voucherchain/core/types"
	"voucherchain/crypto"
)

const (
	// TypeVoucherCreated is emitted once per voucher minted through the
	// vesting engine, including every voucher of a batch.
	TypeVoucherCreated = "voucher.created"
	// TypeVoucherRedeem is emitted when a holder withdraws unlocked funds.
	TypeVoucherRedeem = "voucher.redeem"
)

type VoucherCreated struct {
	Creator     [20]byte
	Token       string
	TotalAmount *big.Int
	Collection  [20]byte
	TokenID     *big.Int
}

func (VoucherCreated) EventType() string { return TypeVoucherCreated }

func (e VoucherCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeVoucherCreated,
		Attributes: map[string]string{
			"creator":     crypto.NewAddress(crypto.VCHPrefix, e.Creator[:]).String(),
			"token":       normalizeAsset(e.Token),
			"totalAmount": formatAmount(e.TotalAmount),
			"collection":  "0x" + hex.EncodeToString(e.Collection[:]),
			"tokenId":     formatAmount(e.TokenID),
		},
	}
}

type VoucherRedeem struct {
	Redeemer   [20]byte
	Token      string
	AmountPaid *big.Int
	Collection [20]byte
	TokenID    *big.Int
}

func (VoucherRedeem) EventType() string { return TypeVoucherRedeem }

func (e VoucherRedeem) Event() *types.Event {
	return &types.Event{
		Type: TypeVoucherRedeem,
		Attributes: map[string]string{
			"redeemer":   crypto.NewAddress(crypto.VCHPrefix, e.Redeemer[:]).String(),
			"token":      normalizeAsset(e.Token),
			"amountPaid": formatAmount(e.AmountPaid),
			"collection": "0x" + hex.EncodeToString(e.Collection[:]),
			"tokenId":    formatAmount(e.TokenID),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
