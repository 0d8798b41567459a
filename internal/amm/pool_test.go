package amm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/brianvoe/gofakeit/v7"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/ledger"
	"github.com/elys-network/credmarket/internal/roles"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

const (
	testAsset    = "cred/phd-physics"
	testStable   = "ustable"
	testTreasury = "treasury"
	testAdmin    = "ops"
)

func testParams() types.MarketParameters {
	return types.MarketParameters{
		StableDenom:         testStable,
		CreditDecimals:      18,
		StableDecimals:      6,
		SwapFeeBp:           30,
		ProtocolFeeShareBp:  1667,
		MinimumLiquidity:    sdkmath.NewInt(1000),
		RetentionSeconds:    90 * 24 * 3600,
		ReputationWindow:    30 * 24 * 3600,
		StabilityMinSamples: 30,
		MaxBatchSize:        100,
	}
}

type fixture struct {
	ledger   *ledger.MemoryLedger
	factory  *Factory
	recorder *events.Recorder
	roles    *roles.Registry
	now      int64
}

func newFixture(t *testing.T, l ledger.Ledger, mem *ledger.MemoryLedger) *fixture {
	t.Helper()
	fx := &fixture{ledger: mem, recorder: &events.Recorder{}, roles: roles.NewRegistry(), now: 1_000}
	fx.roles.Grant(roles.Admin, testAdmin)
	f, err := NewFactory(l, testParams(),
		WithEmitter(fx.recorder),
		WithNowFunc(func() int64 { return fx.now }),
		WithTreasury(testTreasury),
		WithRoles(fx.roles),
	)
	require.NoError(t, err)
	fx.factory = f
	return fx
}

func newMemoryFixture(t *testing.T) *fixture {
	mem := ledger.NewMemoryLedger()
	return newFixture(t, mem, mem)
}

func (fx *fixture) fund(t *testing.T, account string, credit, stable int64) {
	t.Helper()
	require.NoError(t, fx.ledger.Mint(account, testAsset, sdkmath.NewInt(credit)))
	require.NoError(t, fx.ledger.Mint(account, testStable, sdkmath.NewInt(stable)))
}

func (fx *fixture) balance(t *testing.T, account, denom string) int64 {
	t.Helper()
	bal, err := fx.ledger.Balance(context.Background(), account, denom)
	require.NoError(t, err)
	return bal.Int64()
}

// scenarioPool creates the 100,000 credit / 10,000 stable pool owned by "creator".
func (fx *fixture) scenarioPool(t *testing.T) *PoolManager {
	t.Helper()
	fx.fund(t, "creator", 100_000, 10_000)
	pm, _, err := fx.factory.CreatePool(context.Background(), "creator", testAsset, sdkmath.NewInt(100_000), sdkmath.NewInt(10_000))
	require.NoError(t, err)
	return pm
}

func TestSwapStableInScenario(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	fx.fund(t, "trader", 0, 1_000)

	priceBefore, err := pm.SpotPrice()
	require.NoError(t, err)

	out, err := pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(1000), sdkmath.NewInt(9000), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9066), out.Int64())

	snap := pm.Snapshot()
	assert.Equal(t, int64(90_934), snap.ReserveCredit.Int64())
	assert.Equal(t, int64(10_997), snap.ReserveStable.Int64(), "fee stays outside the reserves")
	assert.Equal(t, int64(3), snap.AccumulatedFeesStable.Int64())
	assert.True(t, snap.ProtocolFeesStable.IsZero())

	priceAfter, err := pm.SpotPrice()
	require.NoError(t, err)
	assert.True(t, priceAfter.GT(priceBefore), "credit price must rise after buying credit")

	assert.Equal(t, int64(9066), fx.balance(t, "trader", testAsset))
	assert.Equal(t, int64(0), fx.balance(t, "trader", testStable))
	require.NoError(t, pm.VerifyInvariants(context.Background()))

	swaps := fx.recorder.OfKind(types.KindSwap)
	require.Len(t, swaps, 1)
	assert.Equal(t, "trader", swaps[0].Participant)
	assert.Equal(t, "10000", swaps[0].Before["reserve_stable"])
	assert.Equal(t, "10997", swaps[0].After["reserve_stable"])
	assert.Equal(t, "9066", swaps[0].Amounts["amount_out"])
}

func TestSwapRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(fx *fixture, pm *PoolManager)
		side    types.Side
		amount  int64
		minOut  int64
		expiry  int64
		wantErr error
	}{
		{name: "slippage", side: types.SideStable, amount: 1000, minOut: 9067, wantErr: ErrSlippage},
		{name: "deadline", side: types.SideStable, amount: 1000, expiry: 999, wantErr: ErrDeadlineExpired},
		{name: "zero amount", side: types.SideStable, amount: 0, wantErr: ErrInvalidAmount},
		{name: "bad side", side: types.Side("usd"), amount: 1000, wantErr: ErrInvalidSide},
		{name: "output rounds to zero", side: types.SideCredit, amount: 1, wantErr: ErrInvalidAmount},
		{name: "insufficient balance", side: types.SideStable, amount: 5000, wantErr: ledger.ErrInsufficientBalance},
		{
			name: "inactive",
			setup: func(fx *fixture, pm *PoolManager) {
				_ = pm.SetActive(context.Background(), testAdmin, false)
			},
			side: types.SideStable, amount: 1000, wantErr: ErrPoolInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newMemoryFixture(t)
			pm := fx.scenarioPool(t)
			fx.fund(t, "trader", 10, 1_000)
			if tt.setup != nil {
				tt.setup(fx, pm)
			}
			before := pm.Snapshot()

			_, err := pm.Swap(context.Background(), "trader", tt.side, sdkmath.NewInt(tt.amount), sdkmath.NewInt(tt.minOut), tt.expiry)
			require.ErrorIs(t, err, tt.wantErr)

			after := pm.Snapshot()
			assert.True(t, before.ReserveCredit.Equal(after.ReserveCredit))
			assert.True(t, before.ReserveStable.Equal(after.ReserveStable))
			assert.Equal(t, int64(1_000), fx.balance(t, "trader", testStable))
			assert.Empty(t, fx.recorder.OfKind(types.KindSwap))
		})
	}
}

func TestOversizedAmountsAreRejected(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	ctx := context.Background()
	huge := utils.MaxAmount.MulRaw(1 << 40)

	require.NotPanics(t, func() {
		_, err := pm.QuoteAmountOut(types.SideStable, huge)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = pm.Swap(ctx, "trader", types.SideStable, huge, sdkmath.ZeroInt(), 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = pm.Deposit(ctx, "lp", huge, huge, sdkmath.ZeroInt(), 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
	assert.Equal(t, types.KindValidation, Kind(ErrInvalidAmount))
	require.NoError(t, pm.VerifyInvariants(ctx))
}

func TestQuotesMatchExecution(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)

	quoted, err := pm.QuoteAmountOut(types.SideStable, sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(9066), quoted.Int64())

	need, err := pm.QuoteAmountIn(types.SideCredit, sdkmath.NewInt(9066))
	require.NoError(t, err)
	fx.fund(t, "trader", 0, need.Int64())

	out, err := pm.Swap(context.Background(), "trader", types.SideStable, need, sdkmath.NewInt(9066), 0)
	require.NoError(t, err)
	assert.True(t, out.GTE(sdkmath.NewInt(9066)))
}

func TestDepositUsesReserveRatio(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	fx.fund(t, "lp", 10_000, 5_000)

	shares, err := pm.Deposit(context.Background(), "lp", sdkmath.NewInt(10_000), sdkmath.NewInt(5_000), sdkmath.NewInt(3000), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3162), shares.Int64())

	assert.Equal(t, int64(0), fx.balance(t, "lp", testAsset))
	assert.Equal(t, int64(4_000), fx.balance(t, "lp", testStable), "only the matching stable amount is pulled")

	pos, ok := pm.Position("lp")
	require.True(t, ok)
	assert.Equal(t, int64(3162), pos.Shares.Int64())
	assert.Equal(t, int64(1_000), pos.StableDeposited.Int64())
	assert.Equal(t, fx.now, pos.LastDepositTime)

	snap := pm.Snapshot()
	assert.Equal(t, int64(31622+3162), snap.TotalShares.Int64())
	require.NoError(t, pm.VerifyInvariants(context.Background()))
}

func TestDepositRejections(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	fx.fund(t, "lp", 10_000, 5_000)
	ctx := context.Background()

	_, err := pm.Deposit(ctx, "lp", sdkmath.NewInt(10_000), sdkmath.NewInt(5_000), sdkmath.NewInt(3163), 0)
	assert.ErrorIs(t, err, ErrSlippage)

	_, err = pm.Deposit(ctx, "lp", sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrZeroShares)

	_, err = pm.Deposit(ctx, "lp", sdkmath.NewInt(10_000), sdkmath.NewInt(5_000), sdkmath.ZeroInt(), fx.now-1)
	assert.ErrorIs(t, err, ErrDeadlineExpired)

	_, err = pm.Deposit(ctx, types.LockedOwner, sdkmath.NewInt(10_000), sdkmath.NewInt(5_000), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	_, err = pm.Deposit(ctx, "lp", sdkmath.NewInt(0), sdkmath.NewInt(5_000), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Empty(t, fx.recorder.OfKind(types.KindDeposit))
}

func TestWithdrawAllLeavesLockedMinimum(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)

	pos, ok := pm.Position("creator")
	require.True(t, ok)
	credit, stable, err := pm.Withdraw(context.Background(), "creator", pos.Shares, sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(96_837), credit.Int64())
	assert.Equal(t, int64(9_683), stable.Int64())

	snap := pm.Snapshot()
	assert.Equal(t, int64(1000), snap.TotalShares.Int64())
	lockedCredit := utils.MulDiv(sdkmath.NewInt(1000), sdkmath.NewInt(100_000), sdkmath.NewInt(31622))
	lockedStable := utils.MulDiv(sdkmath.NewInt(1000), sdkmath.NewInt(10_000), sdkmath.NewInt(31622))
	assert.True(t, snap.ReserveCredit.GTE(lockedCredit))
	assert.True(t, snap.ReserveStable.GTE(lockedStable))
	assert.True(t, snap.ReserveCredit.LTE(lockedCredit.AddRaw(1)))

	after, _ := pm.Position("creator")
	assert.True(t, after.Shares.IsZero())
	assert.True(t, after.CreditDeposited.IsZero())
	require.NoError(t, pm.VerifyInvariants(context.Background()))
}

func TestWithdrawRejections(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	ctx := context.Background()

	_, _, err := pm.Withdraw(ctx, "nobody", sdkmath.NewInt(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	_, _, err = pm.Withdraw(ctx, "creator", sdkmath.NewInt(30_623), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = pm.Withdraw(ctx, "creator", sdkmath.NewInt(1000), sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrSlippage)

	_, _, err = pm.Withdraw(ctx, types.LockedOwner, sdkmath.NewInt(1000), sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	assert.Equal(t, int64(31622), pm.Snapshot().TotalShares.Int64())
}

func TestFeesAccrueToProvidersAndProtocol(t *testing.T) {
	fx := newMemoryFixture(t)
	fx.fund(t, "creator", 1_000_000_000, 1_000_000_000)
	pm, _, err := fx.factory.CreatePool(context.Background(), "creator", testAsset, sdkmath.NewInt(1_000_000_000), sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)
	fx.fund(t, "trader", 0, 1_000_000)

	_, err = pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)

	snap := pm.Snapshot()
	assert.Equal(t, int64(500), snap.ProtocolFeesStable.Int64())
	assert.Equal(t, int64(2500), snap.AccumulatedFeesStable.Int64())

	pending, err := pm.PendingFees("creator")
	require.NoError(t, err)
	creatorPos, _ := pm.Position("creator")
	expected := utils.MulDiv(creatorPos.Shares, snap.FeeGrowthStable, FeeGrowthPrecision)
	assert.True(t, pending.Stable.Equal(expected))
	assert.True(t, pending.Stable.LTE(sdkmath.NewInt(2500)))
	assert.True(t, pending.Credit.IsZero())

	claimed, err := pm.ClaimFees(context.Background(), "creator")
	require.NoError(t, err)
	assert.True(t, claimed.Stable.Equal(expected))
	_, err = pm.ClaimFees(context.Background(), "creator")
	assert.ErrorIs(t, err, ErrNoFees)

	distributed, err := pm.DistributeProtocolFees(context.Background(), "keeper")
	require.NoError(t, err)
	assert.Equal(t, int64(500), distributed.Stable.Int64())
	assert.Equal(t, int64(500), fx.balance(t, testTreasury, testStable))
	_, err = pm.DistributeProtocolFees(context.Background(), "keeper")
	assert.ErrorIs(t, err, ErrNoFees)

	require.NoError(t, pm.VerifyInvariants(context.Background()))
}

func TestFeesFollowHoldingPeriod(t *testing.T) {
	fx := newMemoryFixture(t)
	fx.fund(t, "creator", 1_000_000_000, 1_000_000_000)
	pm, _, err := fx.factory.CreatePool(context.Background(), "creator", testAsset, sdkmath.NewInt(1_000_000_000), sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)
	fx.fund(t, "trader", 0, 2_000_000)
	ctx := context.Background()

	_, err = pm.Swap(ctx, "trader", types.SideStable, sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)

	// A provider joining after the first trade earns nothing from it.
	fx.fund(t, "late", 1_000_000_000, 1_000_000_000)
	_, err = pm.Deposit(ctx, "late", sdkmath.NewInt(500_000_000), sdkmath.NewInt(500_000_000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	pending, err := pm.PendingFees("late")
	require.NoError(t, err)
	assert.True(t, pending.IsZero())

	_, err = pm.Swap(ctx, "trader", types.SideStable, sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	pending, err = pm.PendingFees("late")
	require.NoError(t, err)
	assert.True(t, pending.Stable.IsPositive())

	_, err = pm.ClaimFees(ctx, "nobody")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestCumulativePriceAdvances(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	start := pm.Snapshot()
	assert.True(t, start.CumulativePriceCredit.IsZero())

	fx.now += 600
	fx.fund(t, "trader", 0, 1000)
	_, err := pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)

	end := pm.Snapshot()
	assert.Equal(t, fx.now, end.LastUpdateTime)
	twap, err := TWAPFromCumulative(start.CumulativePriceCredit, start.LastUpdateTime, end.CumulativePriceCredit, end.LastUpdateTime)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", twap.String(), "reserves before the swap priced credit at 0.1")
	assert.Equal(t, "10000000000000000000", end.CumulativePriceStable.QuoRaw(600).String())
}

type failingLedger struct {
	*ledger.MemoryLedger
	failFrom string
	failures int
}

func (f *failingLedger) Transfer(ctx context.Context, from, to, denom string, amount sdkmath.Int) error {
	if from == f.failFrom && f.failures > 0 {
		f.failures--
		return errors.New("ledger unavailable")
	}
	return f.MemoryLedger.Transfer(ctx, from, to, denom, amount)
}

func TestFailedOutputTransferRefundsInput(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	fl := &failingLedger{MemoryLedger: mem}
	fx := newFixture(t, fl, mem)
	pm := fx.scenarioPool(t)
	fx.fund(t, "trader", 0, 1000)
	before := pm.Snapshot()

	fl.failFrom, fl.failures = PoolAccount(testAsset), 1
	_, err := pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
	require.ErrorIs(t, err, ErrSettlementFailed)

	assert.Equal(t, int64(1000), fx.balance(t, "trader", testStable), "input is refunded")
	assert.Equal(t, int64(0), fx.balance(t, "trader", testAsset))
	after := pm.Snapshot()
	assert.True(t, before.ReserveStable.Equal(after.ReserveStable))
	assert.True(t, before.ReserveCredit.Equal(after.ReserveCredit))
	assert.Equal(t, uint64(0), after.PendingTrades)
}

func TestFailedSecondInputRefundsFirst(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	require.NoError(t, fx.ledger.Mint("lp", testAsset, sdkmath.NewInt(10_000)))

	_, err := pm.Deposit(context.Background(), "lp", sdkmath.NewInt(10_000), sdkmath.NewInt(1_000), sdkmath.ZeroInt(), 0)
	require.ErrorIs(t, err, ErrSettlementFailed)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, int64(10_000), fx.balance(t, "lp", testAsset), "credit pulled first is refunded")
	_, ok := pm.Position("lp")
	assert.False(t, ok)
	require.NoError(t, pm.VerifyInvariants(context.Background()))
	assert.Empty(t, fx.recorder.OfKind(types.KindSwap))
}

func TestReentrantCallIsRejected(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	fx.fund(t, "trader", 0, 2000)

	var innerErr error
	fx.ledger.SetTransferHook(func(ctx context.Context, from, to string, coin sdk.Coin) error {
		if from == "trader" && innerErr == nil {
			_, innerErr = pm.Swap(ctx, "trader", types.SideStable, sdkmath.NewInt(500), sdkmath.ZeroInt(), 0)
		}
		return nil
	})

	_, err := pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, ErrReentrant)
	assert.Len(t, fx.recorder.OfKind(types.KindSwap), 1)
}

func TestReentrantCallWithFreshContextIsRejected(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	fx.fund(t, "trader", 0, 2000)

	var innerErr error
	fx.ledger.SetTransferHook(func(_ context.Context, from, to string, coin sdk.Coin) error {
		if from == "trader" && innerErr == nil {
			_, innerErr = pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(500), sdkmath.ZeroInt(), 0)
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("outer swap blocked on the nested call")
	}
	require.ErrorIs(t, innerErr, ErrReentrant)
	assert.Len(t, fx.recorder.OfKind(types.KindSwap), 1)

	// The flag is cleared once the settlement finishes.
	fx.ledger.SetTransferHook(nil)
	_, err := pm.Swap(context.Background(), "trader", types.SideStable, sdkmath.NewInt(500), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
}

func TestAdminParameterChanges(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	ctx := context.Background()

	err := pm.SetSwapFee(ctx, "mallory", 100)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, pm.SetSwapFee(ctx, testAdmin, 100))
	require.ErrorIs(t, pm.SetSwapFee(ctx, testAdmin, 10_000), ErrInvalidFee)
	require.NoError(t, pm.SetProtocolFeeShare(ctx, testAdmin, 0))
	require.ErrorIs(t, pm.SetProtocolFeeShare(ctx, testAdmin, 10_001), ErrInvalidFee)

	snap := pm.Snapshot()
	assert.Equal(t, uint32(100), snap.SwapFeeBp)
	assert.Equal(t, uint32(0), snap.ProtocolFeeShareBp)

	updates := fx.recorder.OfKind(types.KindPoolUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, "30", updates[0].Before["swap_fee_bp"])
	assert.Equal(t, "100", updates[0].After["swap_fee_bp"])
}

func TestTakeVolumeResetsCounters(t *testing.T) {
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	fx.fund(t, "trader", 5000, 1000)
	ctx := context.Background()

	_, err := pm.Swap(ctx, "trader", types.SideStable, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	_, err = pm.Swap(ctx, "trader", types.SideCredit, sdkmath.NewInt(5000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)

	volume, trades, err := pm.TakeVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), trades)
	assert.True(t, volume.GT(sdkmath.NewInt(1000)))

	volume, trades, err = pm.TakeVolume(ctx)
	require.NoError(t, err)
	assert.True(t, volume.IsZero())
	assert.Zero(t, trades)
}

func TestRandomSwapsNeverDecreaseProduct(t *testing.T) {
	faker := gofakeit.New(7)
	fx := newMemoryFixture(t)
	fx.fund(t, "creator", 1_000_000_000_000, 50_000_000_000)
	pm, _, err := fx.factory.CreatePool(context.Background(), "creator", testAsset, sdkmath.NewInt(1_000_000_000_000), sdkmath.NewInt(50_000_000_000))
	require.NoError(t, err)
	fx.fund(t, "trader", 10_000_000_000_000, 10_000_000_000_000)

	for i := 0; i < 200; i++ {
		before := pm.Snapshot()
		side := types.SideCredit
		amount := int64(faker.IntRange(1_000, 20_000_000_000))
		if faker.Bool() {
			side = types.SideStable
			amount = int64(faker.IntRange(1_000, 1_000_000_000))
		}
		_, err := pm.Swap(context.Background(), "trader", side, sdkmath.NewInt(amount), sdkmath.ZeroInt(), 0)
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidAmount, "iteration %d", i)
			continue
		}
		after := pm.Snapshot()
		require.True(t, utils.ProductGTE(after.ReserveCredit, after.ReserveStable, before.ReserveCredit, before.ReserveStable),
			"iteration %d: product decreased", i)
	}
	require.NoError(t, pm.VerifyInvariants(context.Background()))
}

func TestRandomLiquiditySequenceKeepsShareSum(t *testing.T) {
	faker := gofakeit.New(11)
	fx := newMemoryFixture(t)
	pm := fx.scenarioPool(t)
	owners := []string{"lp-a", "lp-b", "lp-c"}
	for _, owner := range owners {
		fx.fund(t, owner, 10_000_000, 1_000_000)
	}
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		owner := owners[faker.IntRange(0, len(owners)-1)]
		if faker.Bool() {
			credit := sdkmath.NewInt(int64(faker.IntRange(100, 50_000)))
			stable := sdkmath.NewInt(int64(faker.IntRange(10, 5_000)))
			_, err := pm.Deposit(ctx, owner, credit, stable, sdkmath.ZeroInt(), 0)
			if err != nil {
				require.ErrorIs(t, err, ErrZeroShares)
			}
		} else if pos, ok := pm.Position(owner); ok && pos.Shares.IsPositive() {
			shares := sdkmath.NewInt(int64(faker.IntRange(1, int(pos.Shares.Int64()))))
			_, _, err := pm.Withdraw(ctx, owner, shares, sdkmath.ZeroInt(), sdkmath.ZeroInt(), 0)
			if err != nil {
				require.ErrorIs(t, err, ErrInvalidAmount)
			}
		}

		sum := sdkmath.ZeroInt()
		for _, pos := range pm.Positions() {
			sum = sum.Add(pos.Shares)
		}
		require.True(t, sum.Equal(pm.Snapshot().TotalShares), "iteration %d", i)
	}
	require.NoError(t, pm.VerifyInvariants(ctx))
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		err  error
		kind types.ErrorKind
	}{
		{ErrInvalidAmount, types.KindValidation},
		{ErrDeadlineExpired, types.KindValidation},
		{ErrUnauthorized, types.KindUnauthorized},
		{ErrPoolNotFound, types.KindNotFound},
		{ErrPoolExists, types.KindConflict},
		{ErrReentrant, types.KindConflict},
		{ErrSlippage, types.KindInvariant},
		{ErrInvariantViolated, types.KindInvariant},
		{ErrNoFees, types.KindInsufficient},
		{ledger.ErrInsufficientBalance, types.KindInsufficient},
		{errors.New("other"), types.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.err.Error(), " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
		})
	}
}
