package staking

import (
	"math/big"

	"stakeledger/core/types"
)

// TokenLedger is the external token collaborator. Transfers are synchronous
// and all-or-nothing; any failure aborts the enclosing staking operation.
type TokenLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) *big.Int
}

// engineState is the persistence surface shared by both engines.
type engineState interface {
	Params() (Params, error)
	PutParams(Params) error
	GetStakeholder(addr [20]byte) (*Stakeholder, bool, error)
	PutStakeholder(addr [20]byte, sh *Stakeholder) error
	TotalStake() (*big.Int, error)
	PutTotalStake(total *big.Int) error
	AppendEvent(evt *types.Event)
}

// periodState extends engineState with the append-only reward period ledger.
type periodState interface {
	engineState
	PeriodCount() (uint64, error)
	GetPeriod(index uint64) (*RewardPeriod, error)
	PutPeriod(index uint64, period *RewardPeriod) error
	AppendPeriod(period *RewardPeriod) (uint64, error)
}
