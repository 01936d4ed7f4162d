package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"voucherchain/crypto"
	"voucherchain/native/voucher"
)

// maxUint256 is accepted on the wire as the "claim everything" sentinel for
// compatibility with the original ABI convention; internally redemption uses
// an explicit all-or-exact request value.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type ScheduleParam struct {
	Amount         string `json:"amount"`
	VestingType    uint8  `json:"vestingType"`
	LinearType     uint8  `json:"linearType"`
	StartTimestamp int64  `json:"startTimestamp"`
	EndTimestamp   int64  `json:"endTimestamp"`
}

type VestingParam struct {
	Balance   string          `json:"balance"`
	Schedules []ScheduleParam `json:"schedules"`
}

type CreateParams struct {
	Creator string       `json:"creator"`
	Vesting VestingParam `json:"vesting"`
}

type CreateBatchParams struct {
	Creator  string       `json:"creator"`
	Vesting  VestingParam `json:"vesting"`
	Quantity uint32       `json:"quantity"`
}

type VoucherRefParams struct {
	TokenID string `json:"tokenId"`
}

type RedeemParams struct {
	Caller  string `json:"caller"`
	TokenID string `json:"tokenId"`
	// Amount is a decimal string; "all" or 2^256-1 claims everything
	// currently unlocked.
	Amount string `json:"amount"`
}

type TransferParams struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"tokenId"`
}

type MintParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ApproveParams struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type BalanceParams struct {
	Address string `json:"address"`
}

type ScheduleResult struct {
	Amount          string `json:"amount"`
	VestingType     uint8  `json:"vestingType"`
	LinearType      uint8  `json:"linearType"`
	StartTimestamp  int64  `json:"startTimestamp"`
	EndTimestamp    int64  `json:"endTimestamp"`
	Status          string `json:"status"`
	RemainingAmount string `json:"remainingAmount"`
}

type VoucherResult struct {
	TokenID        string           `json:"tokenId"`
	TotalRemaining string           `json:"totalRemaining"`
	Claimable      string           `json:"claimable"`
	Schedules      []ScheduleResult `json:"schedules"`
}

type RedeemResult struct {
	TokenID    string `json:"tokenId"`
	AmountPaid string `json:"amountPaid"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func parseAddress(field, value string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address: %v", field, err)}
	}
	return addr.Array(), nil
}

func parseAmount(field, value string) (*big.Int, *RPCError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s amount", field)}
	}
	return amount, nil
}

func parseTokenID(value string) (*big.Int, *RPCError) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || id.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid tokenId"}
	}
	return id, nil
}

func parseVesting(param *VestingParam) (*voucher.Vesting, *RPCError) {
	balance, rpcErr := parseAmount("balance", param.Balance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	vesting := &voucher.Vesting{Balance: balance}
	for i := range param.Schedules {
		sp := &param.Schedules[i]
		amount, rpcErr := parseAmount("schedule", sp.Amount)
		if rpcErr != nil {
			return nil, rpcErr
		}
		vesting.Schedules = append(vesting.Schedules, voucher.Schedule{
			Amount:         amount,
			VestingType:    voucher.VestingType(sp.VestingType),
			LinearType:     voucher.LinearType(sp.LinearType),
			StartTimestamp: sp.StartTimestamp,
			EndTimestamp:   sp.EndTimestamp,
		})
	}
	return vesting, nil
}

func scheduleResults(schedules []voucher.Schedule) []ScheduleResult {
	out := make([]ScheduleResult, len(schedules))
	for i := range schedules {
		s := &schedules[i]
		out[i] = ScheduleResult{
			Amount:          s.Amount.String(),
			VestingType:     uint8(s.VestingType),
			LinearType:      uint8(s.LinearType),
			StartTimestamp:  s.StartTimestamp,
			EndTimestamp:    s.EndTimestamp,
			Status:          s.Status.String(),
			RemainingAmount: s.RemainingAmount.String(),
		}
	}
	return out
}

func (s *Server) handleVoucherCreate(req *RPCRequest) (interface{}, *RPCError) {
	var params CreateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	vesting, rpcErr := parseVesting(&params.Vesting)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tokenID, err := s.node.CreateVoucher(creator, vesting)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]string{"tokenId": tokenID.String()}, nil
}

func (s *Server) handleVoucherCreateBatch(req *RPCRequest) (interface{}, *RPCError) {
	var params CreateBatchParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	vesting, rpcErr := parseVesting(&params.Vesting)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tokenIDs, err := s.node.CreateVoucherBatch(creator, vesting, params.Quantity)
	if err != nil {
		return nil, errorToRPC(err)
	}
	ids := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = id.String()
	}
	return map[string][]string{"tokenIds": ids}, nil
}

func (s *Server) handleVoucherGet(req *RPCRequest) (interface{}, *RPCError) {
	var params VoucherRefParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	tokenID, rpcErr := parseTokenID(params.TokenID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	detail, err := s.node.GetVoucher(tokenID)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return &VoucherResult{
		TokenID:        tokenID.String(),
		TotalRemaining: detail.TotalRemaining.String(),
		Claimable:      detail.Claimable.String(),
		Schedules:      scheduleResults(detail.Schedules),
	}, nil
}

func (s *Server) handleVoucherRedeem(req *RPCRequest) (interface{}, *RPCError) {
	var params RedeemParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tokenID, rpcErr := parseTokenID(params.TokenID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var request voucher.RedeemRequest
	if strings.EqualFold(strings.TrimSpace(params.Amount), "all") {
		request = voucher.RedeemAll()
	} else {
		amount, rpcErr := parseAmount("redeem", params.Amount)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if amount.Cmp(maxUint256) == 0 {
			request = voucher.RedeemAll()
		} else {
			request = voucher.RedeemExact(amount)
		}
	}
	paid, err := s.node.RedeemVoucher(caller, tokenID, request)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return &RedeemResult{TokenID: tokenID.String(), AmountPaid: paid.String()}, nil
}

func (s *Server) handleVoucherTransfer(req *RPCRequest) (interface{}, *RPCError) {
	var params TransferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tokenID, rpcErr := parseTokenID(params.TokenID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.TransferVoucher(from, to, tokenID); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTokenMint(req *RPCRequest) (interface{}, *RPCError) {
	var params MintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddress("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("mint", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.MintToken(caller, to, amount); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"ok": true}, nil
}

// handleTokenApprove authorizes the vesting engine's custody address to pull
// the owner's funds; the spender is always the engine.
func (s *Server) handleTokenApprove(req *RPCRequest) (interface{}, *RPCError) {
	var params ApproveParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("approve", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.ApproveToken(owner, s.node.EngineAddress(), amount); err != nil {
		return nil, errorToRPC(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleTokenBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params BalanceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.TokenBalance(addr)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return &BalanceResult{
		Address: crypto.NewAddress(crypto.VCHPrefix, addr[:]).String(),
		Token:   s.node.TokenSymbol(),
		Balance: balance.String(),
	}, nil
}
