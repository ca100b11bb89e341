package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeledger/native/token"
	"stakeledger/storage"
)

func TestCompoundLifecycleEmitsEvents(t *testing.T) {
	env := newCompoundEnv(t)
	require.NoError(t, env.engine.Stake(env.user, big.NewInt(500), true))
	env.clock.Advance(100)
	_, err := env.engine.ClaimRewards(env.user, false)
	require.NoError(t, err)
	_, err = env.engine.WithdrawFunds(env.user, big.NewInt(100))
	require.NoError(t, err)

	events := env.store.DrainEvents()
	require.Len(t, events, 3)
	require.Equal(t, eventStaked, events[0].Type)
	require.Equal(t, "500", events[0].Attributes["amount"])
	require.Equal(t, "true", events[0].Attributes["instant"])
	require.Equal(t, eventRewardsClaimed, events[1].Type)
	require.Equal(t, "50", events[1].Attributes["reward"])
	require.Equal(t, eventWithdrawn, events[2].Type)
	require.Equal(t, "100", events[2].Attributes["amount"])
}

func TestPeriodAdvanceEventReportsClosedCount(t *testing.T) {
	a := testAddr(0x01)
	env := newPeriodEnv(t, a)

	env.stake(t, a, 50)
	env.store.DrainEvents()

	env.clock.Advance(250)
	_, err := env.engine.ClaimRewards(a, false)
	require.NoError(t, err)

	events := env.store.DrainEvents()
	require.Len(t, events, 2)
	require.Equal(t, eventPeriodsAdvanced, events[0].Type)
	require.Equal(t, "2", events[0].Attributes["closed"])
	require.Equal(t, "2", events[0].Attributes["current"])
	require.Equal(t, eventRewardsClaimed, events[1].Type)
}

func TestFailedStakeEmitsNothing(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	ledger := token.NewLedger()
	engine := NewCompoundEngine(testAddr(0xAA), testAddr(0xFE), testLedgerID)
	engine.SetState(store)
	engine.SetToken(ledger)

	err := engine.Stake(testAddr(0x01), big.NewInt(10), true)
	require.Error(t, err)
	require.Empty(t, store.DrainEvents())
}
