package voucher

import "errors"

var (
	ErrInsufficientApproval = errors.New("voucher: requester must approve sufficient amount to create voucher")
	ErrInvalidAmount        = errors.New("voucher: amount must be positive")
	ErrInvalidQuantity      = errors.New("voucher: quantity must be positive")
	ErrInvalidSchedule      = errors.New("voucher: invalid schedule")
	ErrNotFound             = errors.New("voucher: voucher not exist")
	ErrUnauthorized         = errors.New("voucher: redeemer must be true owner of voucher")
	ErrNothingToRedeem      = errors.New("voucher: voucher balance must be greater than zero")
	ErrZeroRequest          = errors.New("voucher: want amount must be greater than zero")
	ErrResourceExhausted    = errors.New("voucher: batch exceeds work budget")
)
