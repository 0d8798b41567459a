package amm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/ledger"
	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/roles"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

// PoolAccount is the ledger account holding a pool's reserves and unpaid fees.
func PoolAccount(asset string) string {
	return "pool/" + asset
}

// PoolManager owns one reserve pair. Operations on the same pool are serialized by
// opMu; readers only ever see committed state through stateMu. settling is set
// while ledger transfers run, so a call that arrives from inside a transfer fails
// instead of waiting on opMu.
type PoolManager struct {
	opMu     sync.Mutex
	stateMu  sync.RWMutex
	settling atomic.Bool

	pool      *types.Pool
	positions map[string]*types.Position

	ledger   ledger.Ledger
	emitter  events.Emitter
	roles    *roles.Registry
	nowFn    func() int64
	account  string
	treasury string
	logger   zerolog.Logger
}

func newPoolManager(pool *types.Pool, positions map[string]*types.Position, deps managerDeps) *PoolManager {
	if positions == nil {
		positions = make(map[string]*types.Position)
	}
	return &PoolManager{
		pool:      pool,
		positions: positions,
		ledger:    deps.ledger,
		emitter:   deps.emitter,
		roles:     deps.roles,
		nowFn:     deps.nowFn,
		account:   PoolAccount(pool.Asset),
		treasury:  deps.treasury,
		logger:    logger.GetForComponent("pool_manager").With().Str("asset", pool.Asset).Logger(),
	}
}

type managerDeps struct {
	ledger   ledger.Ledger
	emitter  events.Emitter
	roles    *roles.Registry
	nowFn    func() int64
	treasury string
}

// Asset returns the pool key.
func (m *PoolManager) Asset() string {
	return m.pool.Asset
}

// begin marks ctx with this pool and takes the operation lock. Calls carrying the
// mark, or arriving while a settlement is in flight, are rejected.
func (m *PoolManager) begin(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	guarded, err := enterPool(ctx, m.pool.Asset)
	if err == nil && m.settling.Load() {
		err = fmt.Errorf("%w: pool %s is settling", ErrReentrant, m.pool.Asset)
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("Rejected re-entrant pool operation")
		return nil, nil, err
	}
	m.opMu.Lock()
	return guarded, m.opMu.Unlock, nil
}

func (m *PoolManager) current() *types.Pool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.pool.Clone()
}

func (m *PoolManager) currentPosition(owner string) (*types.Position, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	pos, ok := m.positions[owner]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

func (m *PoolManager) commit(pool *types.Pool, positions ...*types.Position) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.pool = pool
	for _, pos := range positions {
		m.positions[pos.Owner] = pos
	}
}

func (m *PoolManager) checkDeadline(deadline int64) (int64, error) {
	now := m.nowFn()
	if deadline > 0 && now > deadline {
		return now, fmt.Errorf("%w: now %d, deadline %d", ErrDeadlineExpired, now, deadline)
	}
	return now, nil
}

// settle runs the transfers and undoes the completed ones if any of them fails.
func (m *PoolManager) settle(ctx context.Context, steps func(s *settlement) error) error {
	m.settling.Store(true)
	defer m.settling.Store(false)

	s := &settlement{ledger: m.ledger}
	if err := steps(s); err != nil {
		if rbErr := s.rollback(ctx); rbErr != nil {
			m.logger.Error().Err(rbErr).Msg("Failed to roll back partial settlement")
			return errors.Join(fmt.Errorf("%w: %w", ErrSettlementFailed, err), rbErr)
		}
		return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}
	return nil
}

// Swap sells amountIn of sideIn for the other side. amountOut must be at least
// minAmountOut. The constant product of the reserves, excluding fees, is checked
// after the trade.
func (m *PoolManager) Swap(ctx context.Context, trader string, sideIn types.Side, amountIn, minAmountOut sdkmath.Int, deadline int64) (sdkmath.Int, error) {
	if err := validateParticipant(trader); err != nil {
		return sdkmath.Int{}, err
	}
	if !sideIn.Valid() {
		return sdkmath.Int{}, fmt.Errorf("%w: %q", ErrInvalidSide, sideIn)
	}
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.Int{}, ErrInvalidAmount
	}
	minAmountOut = utils.OrZero(minAmountOut)
	if minAmountOut.IsNegative() {
		return sdkmath.Int{}, ErrInvalidAmount
	}

	ctx, release, err := m.begin(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer release()

	now, err := m.checkDeadline(deadline)
	if err != nil {
		return sdkmath.Int{}, err
	}
	before := m.current()
	if !before.IsActive {
		return sdkmath.Int{}, ErrPoolInactive
	}

	pool := before.Clone()
	sideOut := sideIn.Other()
	reserveIn, reserveOut := pool.Reserve(sideIn), pool.Reserve(sideOut)

	amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut, pool.SwapFeeBp)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if amountOut.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: output rounds to zero", ErrInvalidAmount)
	}
	if amountOut.LT(minAmountOut) {
		return sdkmath.Int{}, fmt.Errorf("%w: out %s < min %s", ErrSlippage, amountOut, minAmountOut)
	}

	fee, protocolFee, providerFee := SplitFee(amountIn, pool.SwapFeeBp, pool.ProtocolFeeShareBp)
	newReserveIn := reserveIn.Add(amountIn).Sub(fee)
	newReserveOut := reserveOut.Sub(amountOut)
	if !utils.ProductGTE(newReserveIn, newReserveOut, reserveIn, reserveOut) {
		m.logger.Error().
			Str("reserveIn", reserveIn.String()).
			Str("reserveOut", reserveOut.String()).
			Str("newReserveIn", newReserveIn.String()).
			Str("newReserveOut", newReserveOut.String()).
			Msg("Swap would decrease the constant product")
		return sdkmath.Int{}, ErrInvariantViolated
	}

	accrueCumulative(pool, now)
	pool.SetReserve(sideIn, newReserveIn)
	pool.SetReserve(sideOut, newReserveOut)
	addFees(pool, sideIn, protocolFee, providerFee)
	if sideIn == types.SideStable {
		pool.PendingVolume = pool.PendingVolume.Add(amountIn)
	} else {
		pool.PendingVolume = pool.PendingVolume.Add(amountOut)
	}
	pool.PendingTrades++

	err = m.settle(ctx, func(s *settlement) error {
		if err := s.move(ctx, trader, m.account, pool.Denom(sideIn), amountIn); err != nil {
			return err
		}
		return s.move(ctx, m.account, trader, pool.Denom(sideOut), amountOut)
	})
	if err != nil {
		return sdkmath.Int{}, err
	}
	m.commit(pool)

	rec := m.record(types.KindSwap, trader, now, before, pool)
	rec.Amounts["side_in"] = string(sideIn)
	rec.Amounts["amount_in"] = amountIn.String()
	rec.Amounts["amount_out"] = amountOut.String()
	rec.Amounts["fee"] = fee.String()
	rec.Amounts["protocol_fee"] = protocolFee.String()
	m.emitter.Emit(rec)

	m.logger.Info().
		Str("trader", trader).
		Str("sideIn", string(sideIn)).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Str("fee", fee.String()).
		Msg("Swap executed")
	return amountOut, nil
}

// Deposit adds liquidity at the current reserve ratio. Only the amounts that match
// the ratio are pulled from the owner.
func (m *PoolManager) Deposit(ctx context.Context, owner string, creditIn, stableIn, minShares sdkmath.Int, deadline int64) (sdkmath.Int, error) {
	if err := validateParticipant(owner); err != nil {
		return sdkmath.Int{}, err
	}
	if creditIn.IsNil() || stableIn.IsNil() || !creditIn.IsPositive() || !stableIn.IsPositive() {
		return sdkmath.Int{}, ErrInvalidAmount
	}
	if err := checkBound("credit", creditIn); err != nil {
		return sdkmath.Int{}, err
	}
	if err := checkBound("stable", stableIn); err != nil {
		return sdkmath.Int{}, err
	}
	minShares = utils.OrZero(minShares)

	ctx, release, err := m.begin(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer release()

	now, err := m.checkDeadline(deadline)
	if err != nil {
		return sdkmath.Int{}, err
	}
	before := m.current()
	if !before.IsActive {
		return sdkmath.Int{}, ErrPoolInactive
	}
	pool := before.Clone()

	creditUsed, stableUsed := OptimalDeposit(creditIn, stableIn, pool.ReserveCredit, pool.ReserveStable)
	shares := SharesForDeposit(creditUsed, stableUsed, pool.ReserveCredit, pool.ReserveStable, pool.TotalShares)
	if !shares.IsPositive() {
		return sdkmath.Int{}, ErrZeroShares
	}
	if shares.LT(minShares) {
		return sdkmath.Int{}, fmt.Errorf("%w: shares %s < min %s", ErrSlippage, shares, minShares)
	}

	pos, ok := m.currentPosition(owner)
	if !ok {
		pos = types.NewPosition(pool.Asset, owner)
	}
	accrueCumulative(pool, now)
	settlePositionFees(pool, pos)
	pos.Shares = pos.Shares.Add(shares)
	pos.CreditDeposited = pos.CreditDeposited.Add(creditUsed)
	pos.StableDeposited = pos.StableDeposited.Add(stableUsed)
	pos.LastDepositTime = now
	resetFeeDebt(pool, pos)

	pool.ReserveCredit = pool.ReserveCredit.Add(creditUsed)
	pool.ReserveStable = pool.ReserveStable.Add(stableUsed)
	pool.TotalShares = pool.TotalShares.Add(shares)

	err = m.settle(ctx, func(s *settlement) error {
		if err := s.move(ctx, owner, m.account, pool.Credit.Denom, creditUsed); err != nil {
			return err
		}
		return s.move(ctx, owner, m.account, pool.Stable.Denom, stableUsed)
	})
	if err != nil {
		return sdkmath.Int{}, err
	}
	m.commit(pool, pos)

	rec := m.record(types.KindDeposit, owner, now, before, pool)
	rec.Amounts["credit"] = creditUsed.String()
	rec.Amounts["stable"] = stableUsed.String()
	rec.Amounts["shares"] = shares.String()
	m.emitter.Emit(rec)

	m.logger.Info().
		Str("owner", owner).
		Str("credit", creditUsed.String()).
		Str("stable", stableUsed.String()).
		Str("shares", shares.String()).
		Msg("Liquidity deposited")
	return shares, nil
}

// Withdraw burns shares and returns both reserves pro-rata. Withdrawals remain
// possible on an inactive pool.
func (m *PoolManager) Withdraw(ctx context.Context, owner string, shares, minCredit, minStable sdkmath.Int, deadline int64) (sdkmath.Int, sdkmath.Int, error) {
	if err := validateParticipant(owner); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, ErrInvalidAmount
	}
	minCredit, minStable = utils.OrZero(minCredit), utils.OrZero(minStable)

	ctx, release, err := m.begin(ctx)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	defer release()

	now, err := m.checkDeadline(deadline)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	pos, ok := m.currentPosition(owner)
	if !ok {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s", ErrPositionNotFound, owner)
	}
	if pos.Shares.LT(shares) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: has %s, requested %s", ErrInsufficientShares, pos.Shares, shares)
	}

	before := m.current()
	pool := before.Clone()
	creditOut, stableOut := WithdrawAmounts(shares, pool.ReserveCredit, pool.ReserveStable, pool.TotalShares)
	if creditOut.LT(minCredit) || stableOut.LT(minStable) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: out %s/%s below min %s/%s", ErrSlippage, creditOut, stableOut, minCredit, minStable)
	}
	if creditOut.IsZero() && stableOut.IsZero() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: withdrawal rounds to zero", ErrInvalidAmount)
	}

	accrueCumulative(pool, now)
	settlePositionFees(pool, pos)
	pos.CreditDeposited = pos.CreditDeposited.Sub(utils.MulDiv(pos.CreditDeposited, shares, pos.Shares))
	pos.StableDeposited = pos.StableDeposited.Sub(utils.MulDiv(pos.StableDeposited, shares, pos.Shares))
	pos.Shares = pos.Shares.Sub(shares)
	resetFeeDebt(pool, pos)

	pool.ReserveCredit = pool.ReserveCredit.Sub(creditOut)
	pool.ReserveStable = pool.ReserveStable.Sub(stableOut)
	pool.TotalShares = pool.TotalShares.Sub(shares)

	err = m.settle(ctx, func(s *settlement) error {
		if err := s.move(ctx, m.account, owner, pool.Credit.Denom, creditOut); err != nil {
			return err
		}
		return s.move(ctx, m.account, owner, pool.Stable.Denom, stableOut)
	})
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	m.commit(pool, pos)

	rec := m.record(types.KindWithdraw, owner, now, before, pool)
	rec.Amounts["credit"] = creditOut.String()
	rec.Amounts["stable"] = stableOut.String()
	rec.Amounts["shares"] = shares.String()
	m.emitter.Emit(rec)

	m.logger.Info().
		Str("owner", owner).
		Str("shares", shares.String()).
		Str("credit", creditOut.String()).
		Str("stable", stableOut.String()).
		Msg("Liquidity withdrawn")
	return creditOut, stableOut, nil
}

// ClaimFees pays out the provider fees accrued by owner's position.
func (m *PoolManager) ClaimFees(ctx context.Context, owner string) (types.FeeAmounts, error) {
	if err := validateParticipant(owner); err != nil {
		return types.FeeAmounts{}, err
	}
	ctx, release, err := m.begin(ctx)
	if err != nil {
		return types.FeeAmounts{}, err
	}
	defer release()

	now := m.nowFn()
	pos, ok := m.currentPosition(owner)
	if !ok {
		return types.FeeAmounts{}, fmt.Errorf("%w: %s", ErrPositionNotFound, owner)
	}
	before := m.current()
	pool := before.Clone()

	settlePositionFees(pool, pos)
	owed := types.FeeAmounts{Credit: pos.PendingCredit, Stable: pos.PendingStable}
	if owed.IsZero() {
		if pos.Shares.IsZero() {
			return types.FeeAmounts{}, fmt.Errorf("%w: %s holds no shares", ErrInsufficientShares, owner)
		}
		return types.FeeAmounts{}, ErrNoFees
	}
	pos.PendingCredit, pos.PendingStable = sdkmath.ZeroInt(), sdkmath.ZeroInt()
	pos.FeesClaimedCredit = pos.FeesClaimedCredit.Add(owed.Credit)
	pos.FeesClaimedStable = pos.FeesClaimedStable.Add(owed.Stable)
	resetFeeDebt(pool, pos)
	pool.AccumulatedFeesCredit = pool.AccumulatedFeesCredit.Sub(owed.Credit)
	pool.AccumulatedFeesStable = pool.AccumulatedFeesStable.Sub(owed.Stable)

	err = m.settle(ctx, func(s *settlement) error {
		if err := s.move(ctx, m.account, owner, pool.Credit.Denom, owed.Credit); err != nil {
			return err
		}
		return s.move(ctx, m.account, owner, pool.Stable.Denom, owed.Stable)
	})
	if err != nil {
		return types.FeeAmounts{}, err
	}
	m.commit(pool, pos)

	rec := m.record(types.KindFeesClaimed, owner, now, before, pool)
	rec.Amounts["credit"] = owed.Credit.String()
	rec.Amounts["stable"] = owed.Stable.String()
	m.emitter.Emit(rec)

	m.logger.Info().
		Str("owner", owner).
		Str("credit", owed.Credit.String()).
		Str("stable", owed.Stable.String()).
		Msg("Fees claimed")
	return owed, nil
}

// DistributeProtocolFees sends the accrued protocol share to the treasury.
func (m *PoolManager) DistributeProtocolFees(ctx context.Context, caller string) (types.FeeAmounts, error) {
	if err := validateParticipant(caller); err != nil {
		return types.FeeAmounts{}, err
	}
	if m.treasury == "" {
		return types.FeeAmounts{}, fmt.Errorf("%w: treasury not configured", ErrInvalidParticipant)
	}
	ctx, release, err := m.begin(ctx)
	if err != nil {
		return types.FeeAmounts{}, err
	}
	defer release()

	now := m.nowFn()
	before := m.current()
	pool := before.Clone()
	owed := types.FeeAmounts{Credit: pool.ProtocolFeesCredit, Stable: pool.ProtocolFeesStable}
	if owed.IsZero() {
		return types.FeeAmounts{}, ErrNoFees
	}
	pool.ProtocolFeesCredit, pool.ProtocolFeesStable = sdkmath.ZeroInt(), sdkmath.ZeroInt()

	err = m.settle(ctx, func(s *settlement) error {
		if err := s.move(ctx, m.account, m.treasury, pool.Credit.Denom, owed.Credit); err != nil {
			return err
		}
		return s.move(ctx, m.account, m.treasury, pool.Stable.Denom, owed.Stable)
	})
	if err != nil {
		return types.FeeAmounts{}, err
	}
	m.commit(pool)

	rec := m.record(types.KindProtocolFees, caller, now, before, pool)
	rec.Amounts["credit"] = owed.Credit.String()
	rec.Amounts["stable"] = owed.Stable.String()
	rec.Amounts["treasury"] = m.treasury
	m.emitter.Emit(rec)

	m.logger.Info().
		Str("treasury", m.treasury).
		Str("credit", owed.Credit.String()).
		Str("stable", owed.Stable.String()).
		Msg("Protocol fees distributed")
	return owed, nil
}

// SetActive enables or disables swaps and deposits.
func (m *PoolManager) SetActive(ctx context.Context, caller string, active bool) error {
	return m.updateParams(ctx, caller, "is_active", func(p *types.Pool) error {
		p.IsActive = active
		return nil
	})
}

// SetSwapFee changes the swap fee charged on future trades.
func (m *PoolManager) SetSwapFee(ctx context.Context, caller string, feeBp uint32) error {
	return m.updateParams(ctx, caller, "swap_fee_bp", func(p *types.Pool) error {
		if feeBp >= utils.BasisPoints {
			return fmt.Errorf("%w: swap fee %d", ErrInvalidFee, feeBp)
		}
		p.SwapFeeBp = feeBp
		return nil
	})
}

// SetProtocolFeeShare changes the share of future fees routed to the treasury.
func (m *PoolManager) SetProtocolFeeShare(ctx context.Context, caller string, shareBp uint32) error {
	return m.updateParams(ctx, caller, "protocol_fee_share_bp", func(p *types.Pool) error {
		if shareBp > utils.BasisPoints {
			return fmt.Errorf("%w: protocol share %d", ErrInvalidFee, shareBp)
		}
		p.ProtocolFeeShareBp = shareBp
		return nil
	})
}

func (m *PoolManager) updateParams(ctx context.Context, caller, field string, apply func(p *types.Pool) error) error {
	if !m.roles.HasRole(roles.Admin, caller) {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller)
	}
	_, release, err := m.begin(ctx)
	if err != nil {
		return err
	}
	defer release()

	before := m.current()
	pool := before.Clone()
	if err := apply(pool); err != nil {
		return err
	}
	m.commit(pool)

	rec := m.record(types.KindPoolUpdated, caller, m.nowFn(), before, pool)
	rec.Before[field] = paramValue(before, field)
	rec.After[field] = paramValue(pool, field)
	m.emitter.Emit(rec)

	m.logger.Info().
		Str("caller", caller).
		Str("field", field).
		Str("value", paramValue(pool, field)).
		Msg("Pool parameter updated")
	return nil
}

// TakeVolume returns the stable volume and swap count since the previous call and
// resets both counters.
func (m *PoolManager) TakeVolume(ctx context.Context) (sdkmath.Int, uint64, error) {
	_, release, err := m.begin(ctx)
	if err != nil {
		return sdkmath.Int{}, 0, err
	}
	defer release()

	pool := m.current()
	volume, trades := utils.OrZero(pool.PendingVolume), pool.PendingTrades
	pool.PendingVolume = sdkmath.ZeroInt()
	pool.PendingTrades = 0
	m.commit(pool)
	return volume, trades, nil
}

// Snapshot returns a copy of the committed pool state.
func (m *PoolManager) Snapshot() types.Pool {
	return *m.current()
}

// Position returns owner's position, if any.
func (m *PoolManager) Position(owner string) (types.Position, bool) {
	pos, ok := m.currentPosition(owner)
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Positions returns every position sorted by owner, including the locked minimum.
func (m *PoolManager) Positions() []types.Position {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// SpotPrice returns the current price of one whole credit unit in stable, 1e18 fixed point.
func (m *PoolManager) SpotPrice() (sdkmath.Int, error) {
	p := m.current()
	return SpotPrice(p.ReserveCredit, p.ReserveStable, p.Credit.Decimals, p.Stable.Decimals)
}

// QuoteAmountOut previews a swap of amountIn without executing it.
func (m *PoolManager) QuoteAmountOut(sideIn types.Side, amountIn sdkmath.Int) (sdkmath.Int, error) {
	if !sideIn.Valid() {
		return sdkmath.Int{}, fmt.Errorf("%w: %q", ErrInvalidSide, sideIn)
	}
	p := m.current()
	return GetAmountOut(amountIn, p.Reserve(sideIn), p.Reserve(sideIn.Other()), p.SwapFeeBp)
}

// QuoteAmountIn returns the input of the other side needed to receive amountOut of sideOut.
func (m *PoolManager) QuoteAmountIn(sideOut types.Side, amountOut sdkmath.Int) (sdkmath.Int, error) {
	if !sideOut.Valid() {
		return sdkmath.Int{}, fmt.Errorf("%w: %q", ErrInvalidSide, sideOut)
	}
	p := m.current()
	return GetAmountIn(amountOut, p.Reserve(sideOut.Other()), p.Reserve(sideOut), p.SwapFeeBp)
}

// PendingFees returns the fees owner could claim right now.
func (m *PoolManager) PendingFees(owner string) (types.FeeAmounts, error) {
	pos, ok := m.currentPosition(owner)
	if !ok {
		return types.FeeAmounts{}, fmt.Errorf("%w: %s", ErrPositionNotFound, owner)
	}
	settlePositionFees(m.current(), pos)
	return types.FeeAmounts{Credit: pos.PendingCredit, Stable: pos.PendingStable}, nil
}

// VerifyInvariants checks share accounting and that the pool account holds at least
// its reserves plus all unpaid fees.
func (m *PoolManager) VerifyInvariants(ctx context.Context) error {
	m.stateMu.RLock()
	pool := m.pool.Clone()
	sum := sdkmath.ZeroInt()
	for _, pos := range m.positions {
		sum = sum.Add(pos.Shares)
	}
	m.stateMu.RUnlock()

	var errs []error
	if !sum.Equal(pool.TotalShares) {
		errs = append(errs, fmt.Errorf("%w: position shares %s != total %s", ErrInvariantViolated, sum, pool.TotalShares))
	}
	owedCredit := pool.ReserveCredit.Add(pool.AccumulatedFeesCredit).Add(pool.ProtocolFeesCredit)
	owedStable := pool.ReserveStable.Add(pool.AccumulatedFeesStable).Add(pool.ProtocolFeesStable)
	for _, check := range []struct {
		denom string
		owed  sdkmath.Int
	}{{pool.Credit.Denom, owedCredit}, {pool.Stable.Denom, owedStable}} {
		bal, err := m.ledger.Balance(ctx, m.account, check.denom)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if bal.LT(check.owed) {
			errs = append(errs, fmt.Errorf("%w: %s balance %s below owed %s", ErrInvariantViolated, check.denom, bal, check.owed))
		}
	}
	return errors.Join(errs...)
}

func (m *PoolManager) record(kind types.ChangeKind, participant string, now int64, before, after *types.Pool) types.ChangeRecord {
	rec := events.NewRecord(kind, participant, now)
	rec.Asset = after.Asset
	rec.Before = reserveValues(before)
	rec.After = reserveValues(after)
	return rec
}

func reserveValues(p *types.Pool) map[string]string {
	return map[string]string{
		"reserve_credit": p.ReserveCredit.String(),
		"reserve_stable": p.ReserveStable.String(),
		"total_shares":   p.TotalShares.String(),
	}
}

func paramValue(p *types.Pool, field string) string {
	switch field {
	case "is_active":
		return fmt.Sprintf("%t", p.IsActive)
	case "swap_fee_bp":
		return fmt.Sprintf("%d", p.SwapFeeBp)
	case "protocol_fee_share_bp":
		return fmt.Sprintf("%d", p.ProtocolFeeShareBp)
	default:
		return ""
	}
}

func validateParticipant(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || id == types.LockedOwner || strings.HasPrefix(id, "pool/") {
		return fmt.Errorf("%w: %q", ErrInvalidParticipant, id)
	}
	return nil
}

// accrueCumulative advances both price accumulators to now using the reserves
// in effect since the last update.
func accrueCumulative(p *types.Pool, now int64) {
	if now <= p.LastUpdateTime {
		return
	}
	elapsed := now - p.LastUpdateTime
	p.CumulativePriceCredit = p.CumulativePriceCredit.Add(CumulativeDelta(p.ReserveCredit, p.ReserveStable, elapsed))
	p.CumulativePriceStable = p.CumulativePriceStable.Add(CumulativeDelta(p.ReserveStable, p.ReserveCredit, elapsed))
	p.LastUpdateTime = now
}

func addFees(p *types.Pool, side types.Side, protocolFee, providerFee sdkmath.Int) {
	growth := utils.MulDiv(providerFee, FeeGrowthPrecision, p.TotalShares)
	if side == types.SideCredit {
		p.ProtocolFeesCredit = p.ProtocolFeesCredit.Add(protocolFee)
		p.AccumulatedFeesCredit = p.AccumulatedFeesCredit.Add(providerFee)
		p.FeeGrowthCredit = p.FeeGrowthCredit.Add(growth)
		return
	}
	p.ProtocolFeesStable = p.ProtocolFeesStable.Add(protocolFee)
	p.AccumulatedFeesStable = p.AccumulatedFeesStable.Add(providerFee)
	p.FeeGrowthStable = p.FeeGrowthStable.Add(growth)
}

// settlePositionFees moves fees earned at the current share balance into pending.
func settlePositionFees(p *types.Pool, pos *types.Position) {
	earnedCredit := utils.MulDiv(pos.Shares, p.FeeGrowthCredit, FeeGrowthPrecision)
	earnedStable := utils.MulDiv(pos.Shares, p.FeeGrowthStable, FeeGrowthPrecision)
	pos.PendingCredit = pos.PendingCredit.Add(earnedCredit.Sub(pos.FeeDebtCredit))
	pos.PendingStable = pos.PendingStable.Add(earnedStable.Sub(pos.FeeDebtStable))
	pos.FeeDebtCredit, pos.FeeDebtStable = earnedCredit, earnedStable
}

func resetFeeDebt(p *types.Pool, pos *types.Position) {
	pos.FeeDebtCredit = utils.MulDiv(pos.Shares, p.FeeGrowthCredit, FeeGrowthPrecision)
	pos.FeeDebtStable = utils.MulDiv(pos.Shares, p.FeeGrowthStable, FeeGrowthPrecision)
}

func defaultNow() int64 {
	return time.Now().Unix()
}
