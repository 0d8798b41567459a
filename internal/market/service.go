package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/amm"
	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/ledger"
	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/oracle"
	"github.com/elys-network/credmarket/internal/roles"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

var (
	ErrUnauthorized       = errors.New("market: caller not authorized")
	ErrInvalidCredential  = errors.New("market: invalid credential id")
	ErrCredentialNotFound = errors.New("market: credential is not linked")
)

// Config holds the collaborators and identities a Service is built from.
type Config struct {
	Ledger   ledger.Ledger
	Params   types.MarketParameters
	Emitter  events.Emitter
	NowFn    func() int64
	Admins   []string
	Updaters []string
	Treasury string
}

// Service owns every pool, the oracle and the credential links. It is the only
// object the API and the updater talk to.
type Service struct {
	ledger  ledger.Ledger
	factory *amm.Factory
	oracle  *oracle.Oracle
	roles   *roles.Registry
	emitter events.Emitter
	nowFn   func() int64
	logger  zerolog.Logger

	linksMu sync.RWMutex
	links   map[string]string
}

// NewService validates cfg and wires the factory and oracle onto one role registry
// and one emitter.
func NewService(cfg Config) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("market: ledger is required")
	}
	if len(cfg.Admins) == 0 {
		return nil, fmt.Errorf("market: at least one admin is required")
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}

	registry := roles.NewRegistry()
	for _, admin := range cfg.Admins {
		if strings.TrimSpace(admin) == "" {
			return nil, fmt.Errorf("market: empty admin id")
		}
		registry.Grant(roles.Admin, strings.TrimSpace(admin))
	}
	for _, updater := range cfg.Updaters {
		if strings.TrimSpace(updater) != "" {
			registry.Grant(roles.Updater, strings.TrimSpace(updater))
		}
	}

	factory, err := amm.NewFactory(cfg.Ledger, cfg.Params,
		amm.WithEmitter(emitter),
		amm.WithNowFunc(cfg.NowFn),
		amm.WithRoles(registry),
		amm.WithTreasury(cfg.Treasury),
	)
	if err != nil {
		return nil, err
	}
	o, err := oracle.New(cfg.Params,
		oracle.WithEmitter(emitter),
		oracle.WithNowFunc(cfg.NowFn),
		oracle.WithRoles(registry),
	)
	if err != nil {
		return nil, err
	}

	now := cfg.NowFn
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	s := &Service{
		ledger:  cfg.Ledger,
		factory: factory,
		oracle:  o,
		roles:   registry,
		emitter: emitter,
		nowFn:   now,
		logger:  logger.GetForComponent("market_service"),
		links:   make(map[string]string),
	}
	s.logger.Info().
		Strs("admins", registry.Members(roles.Admin)).
		Strs("updaters", registry.Members(roles.Updater)).
		Str("stableDenom", cfg.Params.StableDenom).
		Msg("Market service created")
	return s, nil
}

// Factory exposes the pool factory.
func (s *Service) Factory() *amm.Factory { return s.factory }

// Oracle exposes the price and reputation oracle.
func (s *Service) Oracle() *oracle.Oracle { return s.oracle }

// Params returns the market parameters.
func (s *Service) Params() types.MarketParameters { return s.factory.Params() }

// IsAdmin reports whether id holds the admin role.
func (s *Service) IsAdmin(id string) bool { return s.roles.HasRole(roles.Admin, id) }

// --- Pools ---

// CreatePool opens the pool for asset funded by caller.
func (s *Service) CreatePool(ctx context.Context, caller, asset string, credit, stable sdkmath.Int) (sdkmath.Int, error) {
	_, minted, err := s.factory.CreatePool(ctx, caller, asset, credit, stable)
	return minted, err
}

// Deposit adds liquidity to the pool of asset.
func (s *Service) Deposit(ctx context.Context, caller, asset string, credit, stable, minShares sdkmath.Int, deadline int64) (sdkmath.Int, error) {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return pm.Deposit(ctx, caller, credit, stable, minShares, deadline)
}

// Withdraw burns shares of caller in the pool of asset.
func (s *Service) Withdraw(ctx context.Context, caller, asset string, shares, minCredit, minStable sdkmath.Int, deadline int64) (sdkmath.Int, sdkmath.Int, error) {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return pm.Withdraw(ctx, caller, shares, minCredit, minStable, deadline)
}

// Swap trades amountIn of sideIn against the pool of asset.
func (s *Service) Swap(ctx context.Context, caller, asset string, sideIn types.Side, amountIn, minOut sdkmath.Int, deadline int64) (sdkmath.Int, error) {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return pm.Swap(ctx, caller, sideIn, amountIn, minOut, deadline)
}

// ClaimFees pays out the fees earned by caller in the pool of asset.
func (s *Service) ClaimFees(ctx context.Context, caller, asset string) (types.FeeAmounts, error) {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return types.FeeAmounts{}, err
	}
	return pm.ClaimFees(ctx, caller)
}

// DistributeProtocolFees sends the protocol share of the pool of asset to the treasury.
func (s *Service) DistributeProtocolFees(ctx context.Context, caller, asset string) (types.FeeAmounts, error) {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return types.FeeAmounts{}, err
	}
	return pm.DistributeProtocolFees(ctx, caller)
}

// SetPoolActive pauses or resumes swaps and deposits on the pool of asset.
func (s *Service) SetPoolActive(ctx context.Context, caller, asset string, active bool) error {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return err
	}
	return pm.SetActive(ctx, caller, active)
}

// SetPoolFees changes the swap fee and protocol fee share of the pool of asset.
// A nil value leaves that parameter unchanged.
func (s *Service) SetPoolFees(ctx context.Context, caller, asset string, swapFeeBp, protocolShareBp *uint32) error {
	pm, err := s.factory.Pool(asset)
	if err != nil {
		return err
	}
	if protocolShareBp != nil && *protocolShareBp > utils.BasisPoints {
		return fmt.Errorf("%w: protocol share %d", amm.ErrInvalidFee, *protocolShareBp)
	}
	if swapFeeBp != nil {
		if err := pm.SetSwapFee(ctx, caller, *swapFeeBp); err != nil {
			return err
		}
	}
	if protocolShareBp != nil {
		return pm.SetProtocolFeeShare(ctx, caller, *protocolShareBp)
	}
	return nil
}

// Pool returns the manager of asset.
func (s *Service) Pool(asset string) (*amm.PoolManager, error) {
	return s.factory.Pool(asset)
}

// Pools returns snapshots of every pool in creation order.
func (s *Service) Pools() []types.Pool {
	managers := s.factory.Pools()
	out := make([]types.Pool, 0, len(managers))
	for _, pm := range managers {
		out = append(out, pm.Snapshot())
	}
	return out
}

// --- Oracle ---

// UpdatePrice records one sample for asset.
func (s *Service) UpdatePrice(caller string, update types.PriceUpdate) error {
	return s.oracle.UpdatePrice(caller, update.Asset, update.Price, update.Volume, update.Liquidity)
}

// BatchUpdatePrices records one sample per element, all or nothing.
func (s *Service) BatchUpdatePrices(caller string, updates []types.PriceUpdate) error {
	return s.oracle.ApplyUpdates(caller, updates)
}

// GetTWAP returns the TWAP of asset over window seconds.
func (s *Service) GetTWAP(asset string, window int64) (sdkmath.Int, error) {
	return s.oracle.GetTWAP(asset, window)
}

// --- Credentials ---

// LinkCredential binds credentialID to the pool asset that prices it. Only admins may
// call it and the pool must exist.
func (s *Service) LinkCredential(caller, credentialID, asset string) error {
	if !s.roles.HasRole(roles.Admin, caller) {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller)
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return ErrInvalidCredential
	}
	if _, err := s.factory.Pool(asset); err != nil {
		return err
	}

	s.linksMu.Lock()
	previous, existed := s.links[credentialID]
	s.links[credentialID] = asset
	s.linksMu.Unlock()

	rec := events.NewRecord(types.KindCredentialLinked, caller, s.nowFn())
	rec.Asset = asset
	rec.Credential = credentialID
	if existed {
		rec.Before["asset"] = previous
	}
	rec.After["asset"] = asset
	s.emitter.Emit(rec)

	s.logger.Info().Str("credential", credentialID).Str("asset", asset).Msg("Credential linked")
	return nil
}

// RestoreLink rebinds a persisted credential link without checks or records.
func (s *Service) RestoreLink(credentialID, asset string) {
	s.linksMu.Lock()
	s.links[credentialID] = asset
	s.linksMu.Unlock()
}

// LinkedAsset returns the asset credentialID is bound to.
func (s *Service) LinkedAsset(credentialID string) (string, error) {
	s.linksMu.RLock()
	defer s.linksMu.RUnlock()
	asset, ok := s.links[credentialID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	return asset, nil
}

// Links returns every credential link keyed by credential id.
func (s *Service) Links() map[string]string {
	s.linksMu.RLock()
	defer s.linksMu.RUnlock()
	out := make(map[string]string, len(s.links))
	for k, v := range s.links {
		out[k] = v
	}
	return out
}

// LinkedCredentials returns the credential ids bound to asset, sorted.
func (s *Service) LinkedCredentials(asset string) []string {
	s.linksMu.RLock()
	defer s.linksMu.RUnlock()
	var out []string
	for credential, linked := range s.links {
		if linked == asset {
			out = append(out, credential)
		}
	}
	sort.Strings(out)
	return out
}

// UpdateReputationScore recomputes the score of credentialID from the market data of
// its linked asset.
func (s *Service) UpdateReputationScore(caller, credentialID string) (types.ReputationRecord, error) {
	asset, err := s.LinkedAsset(credentialID)
	if err != nil {
		return types.ReputationRecord{}, err
	}
	return s.oracle.UpdateReputationScore(caller, credentialID, asset)
}

// GetReputationScore returns the latest record of credentialID.
func (s *Service) GetReputationScore(credentialID string) (types.ReputationRecord, error) {
	return s.oracle.GetReputationScore(credentialID)
}

// GetReputationRanking returns the rank of credentialID and the number of ranked credentials.
func (s *Service) GetReputationRanking(credentialID string) (int, int, error) {
	return s.oracle.GetReputationRanking(credentialID)
}

// GetTopCredentials returns the best limit credentials.
func (s *Service) GetTopCredentials(limit int) []types.RankEntry {
	return s.oracle.GetTopCredentials(limit)
}

// Kind classifies an error returned by any market operation.
func Kind(err error) types.ErrorKind {
	switch {
	case err == nil:
		return types.KindUnknown
	case errors.Is(err, ErrUnauthorized):
		return types.KindUnauthorized
	case errors.Is(err, ErrCredentialNotFound):
		return types.KindNotFound
	case errors.Is(err, ErrInvalidCredential):
		return types.KindValidation
	}
	if kind := amm.Kind(err); kind != types.KindUnknown {
		return kind
	}
	return oracle.Kind(err)
}

// Snapshot captures every pool, oracle series, reputation record and credential link.
func (s *Service) Snapshot() types.MarketSnapshot {
	snap := types.MarketSnapshot{
		Links:   s.Links(),
		TakenAt: s.nowFn(),
	}
	for _, pm := range s.factory.Pools() {
		prov, _ := s.factory.Provenance(pm.Asset())
		snap.Pools = append(snap.Pools, types.PoolSnapshot{
			Pool:       pm.Snapshot(),
			Positions:  pm.Positions(),
			Provenance: prov,
		})
	}
	for _, asset := range s.oracle.Assets() {
		snap.Series = append(snap.Series, types.SeriesSnapshot{
			Asset:   asset,
			Samples: s.oracle.History(asset, 0, 0),
			Buckets: s.oracle.Buckets(asset),
		})
	}
	snap.Reputations = s.oracle.Reputations()
	snap.Ranking = s.oracle.GetTopCredentials(0)
	return snap
}

// Restore rebuilds an empty service from snapshot. No ledger transfers are made.
func (s *Service) Restore(snapshot types.MarketSnapshot) error {
	for _, p := range snapshot.Pools {
		if err := s.factory.Restore(p.Pool, p.Positions, p.Provenance); err != nil {
			return fmt.Errorf("market: restore pool %s: %w", p.Pool.Asset, err)
		}
	}
	for _, series := range snapshot.Series {
		s.oracle.RestoreSeries(series.Asset, series.Samples, series.Buckets)
	}
	s.oracle.RestoreReputations(snapshot.Reputations, snapshot.Ranking)
	for credential, asset := range snapshot.Links {
		s.RestoreLink(credential, asset)
	}
	s.logger.Info().
		Int("pools", len(snapshot.Pools)).
		Int("series", len(snapshot.Series)).
		Int("reputations", len(snapshot.Reputations)).
		Int("links", len(snapshot.Links)).
		Msg("Market restored from snapshot")
	return nil
}

// Minter creates balances. *ledger.MemoryLedger implements it.
type Minter interface {
	Mint(account, denom string, amount sdkmath.Int) error
}

// Mint funds account with amount of denom. Only admins may mint.
func (s *Service) Mint(caller string, minter Minter, account, denom string, amount sdkmath.Int) error {
	if !s.IsAdmin(caller) {
		return fmt.Errorf("%w: %s cannot mint", ErrUnauthorized, caller)
	}
	if utils.ExceedsMax(amount) {
		return fmt.Errorf("%w: mint of %s exceeds %s", amm.ErrInvalidAmount, amount, utils.MaxAmount)
	}
	if err := minter.Mint(account, denom, amount); err != nil {
		return fmt.Errorf("%w: %w", amm.ErrInvalidAmount, err)
	}
	s.logger.Info().Str("caller", caller).Str("account", account).Str("denom", denom).Str("amount", amount.String()).Msg("Balance minted")
	return nil
}

// Balance returns the ledger balance of account in denom.
func (s *Service) Balance(ctx context.Context, account, denom string) (sdkmath.Int, error) {
	return s.ledger.Balance(ctx, account, denom)
}

// ReconcilePoolAccounts mints whatever each pool account is missing to cover its
// reserves and unpaid fees, then verifies every pool. Used after Restore when the
// ledger itself is not persisted.
func (s *Service) ReconcilePoolAccounts(ctx context.Context, minter Minter) error {
	var errs []error
	for _, pm := range s.factory.Pools() {
		p := pm.Snapshot()
		account := amm.PoolAccount(p.Asset)
		owed := map[string]sdkmath.Int{
			p.Credit.Denom: p.ReserveCredit.Add(p.AccumulatedFeesCredit).Add(p.ProtocolFeesCredit),
			p.Stable.Denom: p.ReserveStable.Add(p.AccumulatedFeesStable).Add(p.ProtocolFeesStable),
		}
		for denom, amount := range owed {
			bal, err := s.ledger.Balance(ctx, account, denom)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if bal.GTE(amount) {
				continue
			}
			if err := minter.Mint(account, denom, amount.Sub(bal)); err != nil {
				errs = append(errs, fmt.Errorf("market: fund %s %s: %w", account, denom, err))
			}
		}
		if err := pm.VerifyInvariants(ctx); err != nil {
			errs = append(errs, fmt.Errorf("market: pool %s: %w", p.Asset, err))
		}
	}
	return errors.Join(errs...)
}
