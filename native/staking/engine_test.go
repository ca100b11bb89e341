package staking

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stakeledger/native/token"
	"stakeledger/storage"
)

func testAddr(suffix byte) [20]byte {
	var a [20]byte
	a[len(a)-1] = suffix
	return a
}

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() time.Time { return time.Unix(c.now, 0).UTC() }

func (c *fakeClock) Advance(seconds int64) { c.now += seconds }

type compoundEnv struct {
	engine *CompoundEngine
	store  *Store
	ledger *token.Ledger
	clock  *fakeClock
	sigKey *ecdsa.PrivateKey
	owner  [20]byte
	module [20]byte
	user   [20]byte
}

const testLedgerID = "stakeledger-test"

// newCompoundEnv builds a compound engine over an in-memory store and token
// ledger: 10% per 100s period, 50s cooldown, user funded and approved.
func newCompoundEnv(t *testing.T) *compoundEnv {
	t.Helper()
	env := &compoundEnv{
		owner:  testAddr(0xAA),
		module: testAddr(0xFE),
		user:   testAddr(0x01),
		clock:  &fakeClock{now: 1000},
	}

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env.sigKey = key

	env.ledger = token.NewLedger()
	if err := env.ledger.Mint(env.user, big.NewInt(10000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.ledger.Approve(env.user, env.module, big.NewInt(10000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	env.store = NewStore(storage.NewMemDB())
	p := DefaultParams()
	p.BaseRate = big.NewInt(100)
	p.ExtraRatePerWeight = big.NewInt(10)
	p.CompoundPeriod = 100
	p.RewardPeriod = 100
	p.Cooldown = 50
	copy(p.SignatureAddress[:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())
	if err := env.store.PutParams(p); err != nil {
		t.Fatalf("put params: %v", err)
	}

	env.engine = NewCompoundEngine(env.owner, env.module, testLedgerID)
	env.engine.SetState(env.store)
	env.engine.SetToken(env.ledger)
	env.engine.SetClock(env.clock.Now)
	return env
}

func (env *compoundEnv) signWeight(t *testing.T, addr [20]byte, weight uint64) []byte {
	t.Helper()
	sig, err := ethcrypto.Sign(WeightChangeDigest(testLedgerID, addr, weight), env.sigKey)
	if err != nil {
		t.Fatalf("sign weight: %v", err)
	}
	return sig
}

func mustClaim(t *testing.T, e *CompoundEngine, addr [20]byte, withdraw bool) *big.Int {
	t.Helper()
	reward, err := e.ClaimRewards(addr, withdraw)
	if err != nil {
		t.Fatalf("claim rewards: %v", err)
	}
	return reward
}

func TestCompoundAccrualAcrossPeriods(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}

	env.clock.Advance(100)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 50 {
		t.Fatalf("first period reward = %s, want 50", got)
	}
	env.clock.Advance(100)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 55 {
		t.Fatalf("second period reward = %s, want 55", got)
	}

	sh, ok, err := env.engine.Stakeholder(env.user)
	if err != nil || !ok {
		t.Fatalf("stakeholder: ok=%v err=%v", ok, err)
	}
	if sh.StakingBalance.Int64() != 605 {
		t.Fatalf("balance = %s, want 605", sh.StakingBalance)
	}
	total, err := env.engine.TotalStake()
	if err != nil {
		t.Fatalf("total stake: %v", err)
	}
	if total.Int64() != 605 {
		t.Fatalf("total stake = %s, want 605", total)
	}
}

func TestCompoundFractionalPeriodCarriesOver(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// 1.5 periods elapse: only the whole period settles, the half carries.
	env.clock.Advance(150)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 50 {
		t.Fatalf("reward at 1.5 periods = %s, want 50", got)
	}
	sh, _, err := env.engine.Stakeholder(env.user)
	if err != nil {
		t.Fatalf("stakeholder: %v", err)
	}
	if sh.InterestDate != 1100 {
		t.Fatalf("cursor = %d, want 1100", sh.InterestDate)
	}

	// The carried half plus another half completes the second period.
	env.clock.Advance(50)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 55 {
		t.Fatalf("reward after carry = %s, want 55", got)
	}
}

func TestCompoundDeferredStakeMergesAfterFirstBoundary(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(100), true); err != nil {
		t.Fatalf("instant stake: %v", err)
	}
	env.clock.Advance(10)
	if err := env.engine.Stake(env.user, big.NewInt(100), false); err != nil {
		t.Fatalf("deferred stake: %v", err)
	}

	// The period in flight accrues on the original 100 only.
	env.clock.Advance(90)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 10 {
		t.Fatalf("first reward = %s, want 10", got)
	}
	sh, _, err := env.engine.Stakeholder(env.user)
	if err != nil {
		t.Fatalf("stakeholder: %v", err)
	}
	if sh.StakingBalance.Int64() != 210 {
		t.Fatalf("merged balance = %s, want 210", sh.StakingBalance)
	}
	if sh.NewStake.Sign() != 0 {
		t.Fatalf("pending stake not cleared: %s", sh.NewStake)
	}

	env.clock.Advance(100)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 21 {
		t.Fatalf("second reward = %s, want 21", got)
	}
}

func TestCompoundClaimWithdrawPaysOut(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.clock.Advance(100)

	before := env.ledger.BalanceOf(env.user)
	if got := mustClaim(t, env.engine, env.user, true); got.Int64() != 50 {
		t.Fatalf("reward = %s, want 50", got)
	}
	after := env.ledger.BalanceOf(env.user)
	if diff := new(big.Int).Sub(after, before); diff.Int64() != 50 {
		t.Fatalf("payout = %s, want 50", diff)
	}

	sh, _, err := env.engine.Stakeholder(env.user)
	if err != nil {
		t.Fatalf("stakeholder: %v", err)
	}
	if sh.StakingBalance.Int64() != 500 {
		t.Fatalf("principal changed: %s", sh.StakingBalance)
	}
}

func TestCompoundWithdrawCooldown(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}

	env.clock.Advance(49)
	if _, err := env.engine.WithdrawFunds(env.user, big.NewInt(100)); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("one second early: got %v, want ErrCooldownActive", err)
	}
	env.clock.Advance(1)
	if _, err := env.engine.WithdrawFunds(env.user, big.NewInt(100)); err != nil {
		t.Fatalf("at cooldown boundary: %v", err)
	}
}

func TestCompoundWithdrawCapsAndResets(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.clock.Advance(50)

	withdrawn, err := env.engine.WithdrawFunds(env.user, big.NewInt(600))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Int64() != 500 {
		t.Fatalf("withdrawn = %s, want cap at 500", withdrawn)
	}

	sh, _, err := env.engine.Stakeholder(env.user)
	if err != nil {
		t.Fatalf("stakeholder: %v", err)
	}
	if sh.StakingBalance.Sign() != 0 {
		t.Fatalf("balance = %s after drain", sh.StakingBalance)
	}
	if sh.IsStaking() {
		t.Fatal("drained account still marked staking")
	}
	total, err := env.engine.TotalStake()
	if err != nil {
		t.Fatalf("total stake: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("total stake = %s after drain", total)
	}

	if _, err := env.engine.WithdrawFunds(env.user, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("withdraw from drained account: got %v", err)
	}
}

func TestCompoundConservationAcrossAccounts(t *testing.T) {
	env := newCompoundEnv(t)
	other := testAddr(0x02)
	if err := env.ledger.Mint(other, big.NewInt(10000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.ledger.Approve(other, env.module, big.NewInt(10000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := env.engine.Stake(env.user, big.NewInt(5000), true); err != nil {
		t.Fatalf("stake user: %v", err)
	}
	if err := env.engine.Stake(other, big.NewInt(3000), true); err != nil {
		t.Fatalf("stake other: %v", err)
	}
	deposits := big.NewInt(8000)

	cursor := func(addr [20]byte) uint64 {
		sh, ok, err := env.engine.Stakeholder(addr)
		if err != nil || !ok {
			t.Fatalf("stakeholder: ok=%v err=%v", ok, err)
		}
		return sh.InterestDate
	}
	userCursor, otherCursor := cursor(env.user), cursor(other)

	// Two 10% periods: 5000 -> 6050 and 3000 -> 3630. The first reward
	// compounds, the second is paid out.
	env.clock.Advance(200)
	rewardUser := mustClaim(t, env.engine, env.user, false)
	if rewardUser.Int64() != 1050 {
		t.Fatalf("user reward = %s, want 1050", rewardUser)
	}
	rewardOther := mustClaim(t, env.engine, other, true)
	if rewardOther.Int64() != 630 {
		t.Fatalf("other reward = %s, want 630", rewardOther)
	}
	paidOut := new(big.Int).Set(rewardOther)

	if c := cursor(env.user); c < userCursor {
		t.Fatalf("user cursor moved backwards: %d -> %d", userCursor, c)
	} else {
		userCursor = c
	}
	if c := cursor(other); c < otherCursor {
		t.Fatalf("other cursor moved backwards: %d -> %d", otherCursor, c)
	}

	reconcile := func() {
		t.Helper()
		sum := big.NewInt(0)
		for _, addr := range [][20]byte{env.user, other} {
			sh, ok, err := env.engine.Stakeholder(addr)
			if err != nil || !ok {
				t.Fatalf("stakeholder: ok=%v err=%v", ok, err)
			}
			sum.Add(sum, sh.TotalBalance())
		}
		total, err := env.engine.TotalStake()
		if err != nil {
			t.Fatalf("total stake: %v", err)
		}
		if total.Cmp(sum) != 0 {
			t.Fatalf("total stake %s != sum of balances %s", total, sum)
		}
		settled := new(big.Int).Add(rewardUser, rewardOther)
		expected := new(big.Int).Add(deposits, settled)
		expected.Sub(expected, paidOut)
		if sum.Cmp(expected) != 0 {
			t.Fatalf("balances %s != deposits %s + rewards %s - paid out %s", sum, deposits, settled, paidOut)
		}
	}
	reconcile()

	withdrawn, err := env.engine.WithdrawFunds(env.user, big.NewInt(2000))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	paidOut.Add(paidOut, withdrawn)
	reconcile()

	if c := cursor(env.user); c < userCursor {
		t.Fatalf("user cursor moved backwards after withdrawal: %d -> %d", userCursor, c)
	}
	// Every token left the module account or never entered it.
	moduleBalance := env.ledger.BalanceOf(env.module)
	if want := new(big.Int).Sub(deposits, paidOut); moduleBalance.Cmp(want) != 0 {
		t.Fatalf("module balance = %s, want %s", moduleBalance, want)
	}
}

func TestCompoundStakeWithoutAllowance(t *testing.T) {
	env := newCompoundEnv(t)
	stranger := testAddr(0x09)
	if err := env.ledger.Mint(stranger, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := env.engine.Stake(stranger, big.NewInt(100), true)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("got %v, want ErrInsufficientAllowance", err)
	}
	if _, ok, _ := env.engine.Stakeholder(stranger); ok {
		t.Fatal("failed stake persisted a stakeholder record")
	}
}

func TestCompoundStakeBeyondBalance(t *testing.T) {
	env := newCompoundEnv(t)
	// The allowance covers the request but the balance does not.
	if err := env.ledger.Approve(env.user, env.module, big.NewInt(20000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err := env.engine.Stake(env.user, big.NewInt(15000), true)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("short balance misreported as allowance failure: %v", err)
	}
}

func TestCompoundInstantWeightChange(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	sig := env.signWeight(t, env.user, 5)
	if err := env.engine.UpdateWeight(env.user, 5, sig, true); err != nil {
		t.Fatalf("update weight: %v", err)
	}

	// Base 100 plus 5 * 10 extra: 15% per period.
	env.clock.Advance(100)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 75 {
		t.Fatalf("weighted reward = %s, want 75", got)
	}

	p, err := env.store.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.MaxWeight != 5 {
		t.Fatalf("max weight = %d, want 5", p.MaxWeight)
	}
}

func TestCompoundDeferredWeightChange(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.clock.Advance(10)
	sig := env.signWeight(t, env.user, 5)
	if err := env.engine.UpdateWeight(env.user, 5, sig, false); err != nil {
		t.Fatalf("update weight: %v", err)
	}

	// The period in flight still earns at the old weight.
	env.clock.Advance(90)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 50 {
		t.Fatalf("first reward = %s, want 50", got)
	}
	env.clock.Advance(100)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 82 {
		t.Fatalf("second reward = %s, want floor(550*0.15)=82", got)
	}
}

func TestCompoundWeightChangeBadSignature(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	// Signature covers weight 5 but weight 6 is requested.
	sig := env.signWeight(t, env.user, 5)
	if err := env.engine.UpdateWeight(env.user, 6, sig, true); err != ErrInvalidSignature {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}
}

func TestWithdrawRemainingFundsOwnerOnly(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	// Surplus on the module account beyond the staked total.
	if err := env.ledger.Mint(env.module, big.NewInt(1000)); err != nil {
		t.Fatalf("mint surplus: %v", err)
	}

	if _, err := env.engine.WithdrawRemainingFunds(env.user, big.NewInt(100)); err != ErrNotOwner {
		t.Fatalf("non-owner sweep: got %v, want ErrNotOwner", err)
	}

	withdrawn, err := env.engine.WithdrawRemainingFunds(env.owner, big.NewInt(2000))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if withdrawn.Int64() != 1000 {
		t.Fatalf("swept = %s, want cap at surplus 1000", withdrawn)
	}
	if got := env.ledger.BalanceOf(env.module); got.Int64() != 500 {
		t.Fatalf("module balance = %s, staked funds were touched", got)
	}
}

func TestUpdateRateScaleRescalesNumerators(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.UpdateRateScale(env.owner, big.NewInt(1000000)); err != nil {
		t.Fatalf("update scale: %v", err)
	}
	p, err := env.store.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.BaseRate.Int64() != 100000 {
		t.Fatalf("base rate = %s, want 100000", p.BaseRate)
	}
	if p.ExtraRatePerWeight.Int64() != 10000 {
		t.Fatalf("extra rate = %s, want 10000", p.ExtraRatePerWeight)
	}

	// Effective accrual is unchanged.
	if err := env.engine.Stake(env.user, big.NewInt(500), true); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.clock.Advance(100)
	if got := mustClaim(t, env.engine, env.user, false); got.Int64() != 50 {
		t.Fatalf("reward after rescale = %s, want 50", got)
	}
}

func TestAdminSettersRejectNonOwner(t *testing.T) {
	env := newCompoundEnv(t)
	if err := env.engine.UpdateBaseRate(env.user, big.NewInt(1)); err != ErrNotOwner {
		t.Fatalf("base rate: got %v", err)
	}
	if err := env.engine.UpdateCooldown(env.user, 10); err != ErrNotOwner {
		t.Fatalf("cooldown: got %v", err)
	}
	if err := env.engine.UpdateSignatureAddress(env.user, testAddr(0x11)); err != ErrNotOwner {
		t.Fatalf("signature address: got %v", err)
	}
	if err := env.engine.UpdateCompoundPeriod(env.owner, 0); err != ErrInvalidParameter {
		t.Fatalf("zero period: got %v", err)
	}
}
