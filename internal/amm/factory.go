package amm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/ledger"
	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/roles"
	"github.com/elys-network/credmarket/internal/types"
)

// Option configures a Factory.
type Option func(*Factory)

// WithEmitter routes change records of every pool to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(f *Factory) {
		if emitter != nil {
			f.deps.emitter = emitter
		}
	}
}

// WithNowFunc overrides the clock, used for deterministic tests.
func WithNowFunc(now func() int64) Option {
	return func(f *Factory) {
		if now != nil {
			f.deps.nowFn = now
		}
	}
}

// WithTreasury sets the account receiving protocol fees.
func WithTreasury(account string) Option {
	return func(f *Factory) {
		f.deps.treasury = strings.TrimSpace(account)
	}
}

// WithRoles sets the registry used for admin checks.
func WithRoles(registry *roles.Registry) Option {
	return func(f *Factory) {
		if registry != nil {
			f.deps.roles = registry
		}
	}
}

// Factory creates pools, keeps exactly one per asset and records who created each.
type Factory struct {
	mu         sync.RWMutex
	pools      map[string]*PoolManager
	provenance map[string]types.PoolProvenance
	order      []string
	reserved   map[string]struct{}

	params types.MarketParameters
	deps   managerDeps
	logger zerolog.Logger
}

// NewFactory validates params and returns an empty factory.
func NewFactory(l ledger.Ledger, params types.MarketParameters, opts ...Option) (*Factory, error) {
	if l == nil {
		return nil, fmt.Errorf("amm: ledger is required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("amm: invalid market parameters: %w", err)
	}
	f := &Factory{
		pools:      make(map[string]*PoolManager),
		provenance: make(map[string]types.PoolProvenance),
		reserved:   make(map[string]struct{}),
		params:     params,
		deps: managerDeps{
			ledger:  l,
			emitter: events.NoopEmitter{},
			roles:   roles.NewRegistry(),
			nowFn:   defaultNow,
		},
		logger: logger.GetForComponent("pool_factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Params returns the market parameters new pools are created with.
func (f *Factory) Params() types.MarketParameters {
	return f.params
}

// CreatePool opens the pool for asset funded by creator. The returned amount is the
// liquidity credited to creator; MinimumLiquidity shares stay locked forever.
func (f *Factory) CreatePool(ctx context.Context, creator, asset string, credit, stable sdkmath.Int) (*PoolManager, sdkmath.Int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateParticipant(creator); err != nil {
		return nil, sdkmath.Int{}, err
	}
	asset = strings.TrimSpace(asset)
	if err := f.validateAsset(asset); err != nil {
		return nil, sdkmath.Int{}, err
	}
	total, minted, err := InitialLiquidity(credit, stable, f.params.MinimumLiquidity)
	if err != nil {
		return nil, sdkmath.Int{}, err
	}
	if err := f.reserve(asset); err != nil {
		return nil, sdkmath.Int{}, err
	}
	defer f.release(asset)

	now := f.deps.nowFn()
	zero := sdkmath.ZeroInt()
	pool := &types.Pool{
		Asset:                 asset,
		Credit:                types.Token{Denom: asset, Decimals: f.params.CreditDecimals},
		Stable:                types.Token{Denom: f.params.StableDenom, Decimals: f.params.StableDecimals},
		ReserveCredit:         credit,
		ReserveStable:         stable,
		TotalShares:           total,
		LastUpdateTime:        now,
		CumulativePriceCredit: zero,
		CumulativePriceStable: zero,
		AccumulatedFeesCredit: zero,
		AccumulatedFeesStable: zero,
		ProtocolFeesCredit:    zero,
		ProtocolFeesStable:    zero,
		FeeGrowthCredit:       zero,
		FeeGrowthStable:       zero,
		SwapFeeBp:             f.params.SwapFeeBp,
		ProtocolFeeShareBp:    f.params.ProtocolFeeShareBp,
		IsActive:              true,
		CreatedAt:             now,
		PendingVolume:         zero,
	}

	owner := types.NewPosition(asset, creator)
	owner.Shares = minted
	owner.CreditDeposited = credit
	owner.StableDeposited = stable
	owner.LastDepositTime = now
	locked := types.NewPosition(asset, types.LockedOwner)
	locked.Shares = f.params.MinimumLiquidity
	locked.LastDepositTime = now

	pm := newPoolManager(pool, map[string]*types.Position{
		creator:           owner,
		types.LockedOwner: locked,
	}, f.deps)

	err = pm.settle(ctx, func(s *settlement) error {
		if err := s.move(ctx, creator, pm.account, pool.Credit.Denom, credit); err != nil {
			return err
		}
		return s.move(ctx, creator, pm.account, pool.Stable.Denom, stable)
	})
	if err != nil {
		return nil, sdkmath.Int{}, err
	}

	f.mu.Lock()
	prov := types.PoolProvenance{Asset: asset, Creator: creator, CreatedAt: now, Index: len(f.order)}
	f.pools[asset] = pm
	f.provenance[asset] = prov
	f.order = append(f.order, asset)
	f.mu.Unlock()

	rec := events.NewRecord(types.KindPoolCreated, creator, now)
	rec.Asset = asset
	rec.After = reserveValues(pool)
	rec.Amounts["credit"] = credit.String()
	rec.Amounts["stable"] = stable.String()
	rec.Amounts["liquidity"] = minted.String()
	rec.Amounts["locked"] = f.params.MinimumLiquidity.String()
	f.deps.emitter.Emit(rec)

	f.logger.Info().
		Str("asset", asset).
		Str("creator", creator).
		Str("credit", credit.String()).
		Str("stable", stable.String()).
		Str("liquidity", minted.String()).
		Int("index", prov.Index).
		Msg("Pool created")
	return pm, minted, nil
}

// Restore registers a pool rebuilt from persisted state. No transfers are made.
func (f *Factory) Restore(pool types.Pool, positions []types.Position, prov types.PoolProvenance) error {
	if pool.Asset == "" || pool.Asset != prov.Asset {
		return fmt.Errorf("%w: snapshot asset %q does not match provenance %q", ErrInvalidAsset, pool.Asset, prov.Asset)
	}
	byOwner := make(map[string]*types.Position, len(positions))
	for i := range positions {
		pos := positions[i]
		if pos.Asset != pool.Asset {
			return fmt.Errorf("%w: position of %s belongs to %s", ErrInvalidAsset, pos.Owner, pos.Asset)
		}
		byOwner[pos.Owner] = &pos
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pools[pool.Asset]; exists {
		return fmt.Errorf("%w: %s", ErrPoolExists, pool.Asset)
	}
	restored := pool
	f.pools[pool.Asset] = newPoolManager(&restored, byOwner, f.deps)
	f.provenance[pool.Asset] = prov
	f.order = append(f.order, pool.Asset)
	f.logger.Info().Str("asset", pool.Asset).Int("positions", len(byOwner)).Msg("Pool restored")
	return nil
}

// Pool returns the manager for asset.
func (f *Factory) Pool(asset string) (*PoolManager, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pm, ok := f.pools[strings.TrimSpace(asset)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, asset)
	}
	return pm, nil
}

// Pools returns every pool in creation order.
func (f *Factory) Pools() []*PoolManager {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*PoolManager, 0, len(f.order))
	for _, asset := range f.order {
		out = append(out, f.pools[asset])
	}
	return out
}

// Provenance returns the creation record of asset.
func (f *Factory) Provenance(asset string) (types.PoolProvenance, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	prov, ok := f.provenance[asset]
	return prov, ok
}

func (f *Factory) validateAsset(asset string) error {
	if err := sdk.ValidateDenom(asset); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}
	if asset == f.params.StableDenom {
		return fmt.Errorf("%w: %s is the stable asset", ErrInvalidAsset, asset)
	}
	return nil
}

func (f *Factory) reserve(asset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pools[asset]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, asset)
	}
	if _, ok := f.reserved[asset]; ok {
		return fmt.Errorf("%w: %s is being created", ErrPoolExists, asset)
	}
	f.reserved[asset] = struct{}{}
	return nil
}

func (f *Factory) release(asset string) {
	f.mu.Lock()
	delete(f.reserved, asset)
	f.mu.Unlock()
}
