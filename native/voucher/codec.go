package voucher

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// The two attribute-store values are ABI encoded so external indexers can
// decode them without linking this package: "BALANCE" is a single uint256 and
// "SCHEDULE" is a (uint256,uint8,uint8,uint256,uint256,uint8,uint256)[] tuple
// array in field order amount, vestingType, linearType, startTimestamp,
// endTimestamp, status, remainingAmount.
var (
	BalanceKey  = attributeKey("BALANCE")
	ScheduleKey = attributeKey("SCHEDULE")
)

func attributeKey(label string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(label)))
	return out
}

var (
	balanceArgs  abi.Arguments
	scheduleArgs abi.Arguments
)

func init() {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	scheduleTy, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "amount", Type: "uint256"},
		{Name: "vestingType", Type: "uint8"},
		{Name: "linearType", Type: "uint8"},
		{Name: "startTimestamp", Type: "uint256"},
		{Name: "endTimestamp", Type: "uint256"},
		{Name: "status", Type: "uint8"},
		{Name: "remainingAmount", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	balanceArgs = abi.Arguments{{Type: uint256Ty}}
	scheduleArgs = abi.Arguments{{Type: scheduleTy}}
}

type abiSchedule struct {
	Amount          *big.Int
	VestingType     uint8
	LinearType      uint8
	StartTimestamp  *big.Int
	EndTimestamp    *big.Int
	Status          uint8
	RemainingAmount *big.Int
}

// EncodeBalance encodes the aggregate remaining amount for the "BALANCE" key.
func EncodeBalance(amount *big.Int) ([]byte, error) {
	return balanceArgs.Pack(cloneBigInt(amount))
}

// DecodeBalance decodes a "BALANCE" attribute value.
func DecodeBalance(data []byte) (*big.Int, error) {
	values, err := balanceArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("voucher: decode balance: %w", err)
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("voucher: decode balance: unexpected type %T", values[0])
	}
	return out, nil
}

// EncodeSchedules encodes the ordered tranche sequence for the "SCHEDULE" key.
func EncodeSchedules(schedules []Schedule) ([]byte, error) {
	encoded := make([]abiSchedule, len(schedules))
	for i := range schedules {
		s := &schedules[i]
		encoded[i] = abiSchedule{
			Amount:          cloneBigInt(s.Amount),
			VestingType:     uint8(s.VestingType),
			LinearType:      uint8(s.LinearType),
			StartTimestamp:  big.NewInt(s.StartTimestamp),
			EndTimestamp:    big.NewInt(s.EndTimestamp),
			Status:          uint8(s.Status),
			RemainingAmount: cloneBigInt(s.RemainingAmount),
		}
	}
	return scheduleArgs.Pack(encoded)
}

// DecodeSchedules decodes a "SCHEDULE" attribute value back into tranches.
func DecodeSchedules(data []byte) ([]Schedule, error) {
	values, err := scheduleArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("voucher: decode schedules: %w", err)
	}
	decoded := *abi.ConvertType(values[0], new([]abiSchedule)).(*[]abiSchedule)
	schedules := make([]Schedule, len(decoded))
	for i := range decoded {
		d := &decoded[i]
		if !d.StartTimestamp.IsInt64() || !d.EndTimestamp.IsInt64() {
			return nil, fmt.Errorf("voucher: decode schedules: timestamp out of range")
		}
		schedules[i] = Schedule{
			Amount:          cloneBigInt(d.Amount),
			VestingType:     VestingType(d.VestingType),
			LinearType:      LinearType(d.LinearType),
			StartTimestamp:  d.StartTimestamp.Int64(),
			EndTimestamp:    d.EndTimestamp.Int64(),
			Status:          ScheduleStatus(d.Status),
			RemainingAmount: cloneBigInt(d.RemainingAmount),
		}
		if !schedules[i].Status.Valid() {
			return nil, fmt.Errorf("voucher: decode schedules: invalid status %d", d.Status)
		}
	}
	return schedules, nil
}
