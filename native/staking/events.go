package staking

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"stakeledger/core/types"
)

const (
	eventStaked              = "staking.staked"
	eventRewardsClaimed      = "staking.rewards.claimed"
	eventWeightUpdated       = "staking.weight.updated"
	eventWithdrawn           = "staking.withdrawn"
	eventWithdrawalRequested = "staking.withdrawal.requested"
	eventPeriodsAdvanced     = "staking.periods.advanced"
	eventParamsUpdated       = "staking.params.updated"
)

func amountAttr(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func newStakedEvent(addr [20]byte, amount *big.Int, instant bool) *types.Event {
	return &types.Event{Type: eventStaked, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"amount":  amountAttr(amount),
		"instant": strconv.FormatBool(instant),
	}}
}

func newRewardsClaimedEvent(addr [20]byte, reward *big.Int, withdrawn bool) *types.Event {
	return &types.Event{Type: eventRewardsClaimed, Attributes: map[string]string{
		"address":   hex.EncodeToString(addr[:]),
		"reward":    amountAttr(reward),
		"withdrawn": strconv.FormatBool(withdrawn),
	}}
}

func newWeightUpdatedEvent(addr [20]byte, weight uint64, instant bool) *types.Event {
	return &types.Event{Type: eventWeightUpdated, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"weight":  strconv.FormatUint(weight, 10),
		"instant": strconv.FormatBool(instant),
	}}
}

func newWithdrawnEvent(addr [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: eventWithdrawn, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"amount":  amountAttr(amount),
	}}
}

func newWithdrawalRequestedEvent(addr [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: eventWithdrawalRequested, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"amount":  amountAttr(amount),
	}}
}

func newPeriodsAdvancedEvent(closed uint64, current uint64) *types.Event {
	return &types.Event{Type: eventPeriodsAdvanced, Attributes: map[string]string{
		"closed":  strconv.FormatUint(closed, 10),
		"current": strconv.FormatUint(current, 10),
	}}
}

func newParamsUpdatedEvent(field string) *types.Event {
	return &types.Event{Type: eventParamsUpdated, Attributes: map[string]string{
		"field": field,
	}}
}
