package staking

import (
	"errors"
	"fmt"

	"stakeledger/native/token"
)

var (
	ErrNotOwner              = errors.New("staking: caller is not the owner")
	ErrInvalidSignature      = errors.New("staking: signature was not issued by the signature address")
	ErrInsufficientAllowance = errors.New("staking: ledger is not approved to pull this amount")
	ErrInsufficientBalance   = errors.New("staking: insufficient staked balance")
	ErrCooldownActive        = errors.New("staking: cooldown period has not elapsed")
	ErrInvalidParameter      = errors.New("staking: invalid parameter")
	ErrUnknownStakeholder    = errors.New("staking: unknown stakeholder")
	ErrNilState              = errors.New("staking: state not configured")
	ErrNilToken              = errors.New("staking: token ledger not configured")
)

// depositError classifies a failed token pull: a short balance and a missing
// allowance surface as distinct error kinds.
func depositError(err error) error {
	if errors.Is(err, token.ErrInsufficientBalance) {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	return fmt.Errorf("%w: %v", ErrInsufficientAllowance, err)
}
