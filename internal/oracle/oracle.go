package oracle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/analyzer"
	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/roles"
	"github.com/elys-network/credmarket/internal/types"
	"github.com/elys-network/credmarket/internal/utils"
)

const (
	secondsPerHour = 3600
	secondsPerDay  = 24 * secondsPerHour
)

// Option configures an Oracle.
type Option func(*Oracle)

// WithEmitter routes change records to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(o *Oracle) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}

// WithNowFunc overrides the clock, used for deterministic tests.
func WithNowFunc(now func() int64) Option {
	return func(o *Oracle) {
		if now != nil {
			o.nowFn = now
		}
	}
}

// WithRoles sets the registry holding the admin and updater roles.
func WithRoles(registry *roles.Registry) Option {
	return func(o *Oracle) {
		if registry != nil {
			o.roles = registry
		}
	}
}

// assetSeries is the per-asset history. Its mutex serializes writers of one asset.
type assetSeries struct {
	mu      sync.RWMutex
	samples []types.PriceSample
	buckets []types.HourBucket
	stats   types.MarketStats
}

// Oracle ingests price samples from authorized updaters and derives TWAPs,
// rolling statistics and credential reputation scores from them.
type Oracle struct {
	mu     sync.RWMutex
	series map[string]*assetSeries

	repMu       sync.RWMutex
	reputations map[string]types.ReputationRecord
	ranking     *analyzer.RankingIndex

	params  types.MarketParameters
	roles   *roles.Registry
	emitter events.Emitter
	nowFn   func() int64
	logger  zerolog.Logger
}

// New validates params and returns an empty oracle.
func New(params types.MarketParameters, opts ...Option) (*Oracle, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("oracle: invalid market parameters: %w", err)
	}
	o := &Oracle{
		series:      make(map[string]*assetSeries),
		reputations: make(map[string]types.ReputationRecord),
		ranking:     analyzer.NewRankingIndex(),
		params:      params,
		roles:       roles.NewRegistry(),
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		logger:      logger.GetForComponent("oracle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// GrantUpdater adds id to the updater allow-list. Only admins may call it.
func (o *Oracle) GrantUpdater(admin, id string) error {
	return o.changeUpdater(admin, id, true)
}

// RevokeUpdater removes id from the updater allow-list. Only admins may call it.
func (o *Oracle) RevokeUpdater(admin, id string) error {
	return o.changeUpdater(admin, id, false)
}

func (o *Oracle) changeUpdater(admin, id string, grant bool) error {
	if !o.roles.HasRole(roles.Admin, admin) {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, admin)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty updater id", ErrUnauthorized)
	}
	kind := types.KindUpdaterGranted
	changed := false
	if grant {
		changed = o.roles.Grant(roles.Updater, id)
	} else {
		kind = types.KindUpdaterRevoked
		changed = o.roles.Revoke(roles.Updater, id)
	}
	if !changed {
		return nil
	}
	rec := events.NewRecord(kind, admin, o.nowFn())
	rec.Amounts["updater"] = id
	o.emitter.Emit(rec)
	o.logger.Info().Str("admin", admin).Str("updater", id).Bool("granted", grant).Msg("Updater role changed")
	return nil
}

// Updaters lists the authorized updaters.
func (o *Oracle) Updaters() []string {
	return o.roles.Members(roles.Updater)
}

// UpdatePrice records one sample for asset at the current time.
func (o *Oracle) UpdatePrice(caller, asset string, price, volume, liquidity sdkmath.Int) error {
	return o.BatchUpdatePrices(caller, []string{asset}, []sdkmath.Int{price}, []sdkmath.Int{volume}, []sdkmath.Int{liquidity})
}

// BatchUpdatePrices records one sample per element. The batch is validated as a
// whole before anything is written.
func (o *Oracle) BatchUpdatePrices(caller string, assets []string, prices, volumes, liquidities []sdkmath.Int) error {
	if len(assets) != len(prices) || len(assets) != len(volumes) || len(assets) != len(liquidities) {
		return fmt.Errorf("%w: assets=%d prices=%d volumes=%d liquidities=%d",
			ErrBatchLengthMismatch, len(assets), len(prices), len(volumes), len(liquidities))
	}
	updates := make([]types.PriceUpdate, len(assets))
	for i := range assets {
		updates[i] = types.PriceUpdate{Asset: assets[i], Price: prices[i], Volume: volumes[i], Liquidity: liquidities[i]}
	}
	return o.ApplyUpdates(caller, updates)
}

// ApplyUpdates is BatchUpdatePrices over structured elements.
func (o *Oracle) ApplyUpdates(caller string, updates []types.PriceUpdate) error {
	if !o.roles.HasRole(roles.Updater, caller) {
		o.logger.Warn().Str("caller", caller).Msg("Rejected price update from unauthorized caller")
		return fmt.Errorf("%w: %s is not an updater", ErrUnauthorized, caller)
	}
	if len(updates) == 0 {
		return ErrEmptyBatch
	}
	if len(updates) > o.params.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(updates), o.params.MaxBatchSize)
	}

	normalized := make([]types.PriceUpdate, len(updates))
	for i, u := range updates {
		n, err := normalizeUpdate(u)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		normalized[i] = n
	}

	now := o.nowFn()
	locked := o.lockSeries(normalized)
	defer func() {
		for _, s := range locked {
			s.mu.Unlock()
		}
	}()

	for i, u := range normalized {
		s := locked[u.Asset]
		if n := len(s.samples); n > 0 && s.samples[n-1].Timestamp > now {
			return fmt.Errorf("element %d: %w: %s latest %d, now %d", i, ErrOutOfOrder, u.Asset, s.samples[n-1].Timestamp, now)
		}
	}

	// Every sample is computed before any series is touched.
	samples := make([]types.PriceSample, len(normalized))
	tails := make(map[string]types.PriceSample, len(locked))
	for asset, s := range locked {
		if n := len(s.samples); n > 0 {
			tails[asset] = s.samples[n-1]
		}
	}
	for i, u := range normalized {
		prev, ok := tails[u.Asset]
		samples[i] = nextSample(u, now, prev, ok)
		tails[u.Asset] = samples[i]
	}

	for i, sample := range samples {
		u := normalized[i]
		s := locked[u.Asset]
		s.append(sample, u.Trades, o.params.RetentionSeconds)

		rec := events.NewRecord(types.KindPriceUpdated, caller, now)
		rec.Asset = u.Asset
		rec.After = map[string]string{"price": sample.Price.String(), "cumulative_price": sample.CumulativePrice.String()}
		rec.Amounts["volume"] = sample.Volume.String()
		rec.Amounts["liquidity"] = sample.Liquidity.String()
		rec.Amounts["trades"] = strconv.FormatUint(u.Trades, 10)
		o.emitter.Emit(rec)

		o.logger.Debug().
			Str("asset", u.Asset).
			Str("price", sample.Price.String()).
			Str("volume", sample.Volume.String()).
			Str("liquidity", sample.Liquidity.String()).
			Uint64("trades", u.Trades).
			Int("samples", len(s.samples)).
			Msg("Price sample recorded")
	}
	return nil
}

// lockSeries creates missing series and write-locks every series touched by
// updates in a stable order.
func (o *Oracle) lockSeries(updates []types.PriceUpdate) map[string]*assetSeries {
	names := make([]string, 0, len(updates))
	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if !seen[u.Asset] {
			seen[u.Asset] = true
			names = append(names, u.Asset)
		}
	}
	sort.Strings(names)

	o.mu.Lock()
	out := make(map[string]*assetSeries, len(names))
	for _, name := range names {
		s, ok := o.series[name]
		if !ok {
			s = &assetSeries{stats: emptyStats(name)}
			o.series[name] = s
		}
		out[name] = s
	}
	o.mu.Unlock()

	for _, name := range names {
		out[name].mu.Lock()
	}
	return out
}

func (o *Oracle) getSeries(asset string) (*assetSeries, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.series[asset]
	return s, ok
}

// nextSample builds the sample for u at now, extending the cumulative price of prev.
func nextSample(u types.PriceUpdate, now int64, prev types.PriceSample, hasPrev bool) types.PriceSample {
	cumulative := sdkmath.ZeroInt()
	if hasPrev {
		cumulative = prev.CumulativePrice.Add(prev.Price.MulRaw(now - prev.Timestamp))
	}
	return types.PriceSample{
		Asset:           u.Asset,
		Price:           u.Price,
		Timestamp:       now,
		CumulativePrice: cumulative,
		Volume:          u.Volume,
		Liquidity:       u.Liquidity,
	}
}

// append stores sample, adds its volume and trades to the hour index, prunes history
// older than retention and refreshes the 24h statistics. Callers hold s.mu.
func (s *assetSeries) append(sample types.PriceSample, trades uint64, retention int64) {
	s.samples = append(s.samples, sample)

	now := sample.Timestamp
	hourStart := now - now%secondsPerHour
	if n := len(s.buckets); n > 0 && s.buckets[n-1].HourStart == hourStart {
		s.buckets[n-1].Volume = s.buckets[n-1].Volume.Add(sample.Volume)
		s.buckets[n-1].Trades += trades
	} else {
		s.buckets = append(s.buckets, types.HourBucket{Asset: sample.Asset, HourStart: hourStart, Volume: sample.Volume, Trades: trades})
	}

	s.prune(now - retention)
	s.refreshStats(now)
}

func (s *assetSeries) prune(cutoff int64) {
	i := sort.Search(len(s.samples), func(i int) bool { return s.samples[i].Timestamp >= cutoff })
	if i > 0 {
		s.samples = append([]types.PriceSample(nil), s.samples[i:]...)
	}
	j := sort.Search(len(s.buckets), func(j int) bool { return s.buckets[j].HourStart >= cutoff })
	if j > 0 {
		s.buckets = append([]types.HourBucket(nil), s.buckets[j:]...)
	}
}

// refreshStats recomputes the rolling 24h aggregates. Volume and trade counts come
// from the 24 most recent hour buckets; price extremes from the samples of the
// last 24 hours.
func (s *assetSeries) refreshStats(now int64) {
	stats := emptyStats(s.stats.Asset)
	stats.UpdatedAt = now

	firstHour := now - now%secondsPerHour - 23*secondsPerHour
	for _, b := range s.buckets {
		if b.HourStart >= firstHour {
			stats.Volume24h = stats.Volume24h.Add(b.Volume)
			stats.Trades24h += b.Trades
		}
	}

	dayStart := now - secondsPerDay
	opened := false
	for _, sm := range s.samples {
		if sm.Timestamp < dayStart {
			continue
		}
		if !opened {
			stats.Open24h, stats.High24h, stats.Low24h = sm.Price, sm.Price, sm.Price
			opened = true
		}
		if sm.Price.GT(stats.High24h) {
			stats.High24h = sm.Price
		}
		if sm.Price.LT(stats.Low24h) {
			stats.Low24h = sm.Price
		}
	}
	if n := len(s.samples); n > 0 {
		stats.LastPrice = s.samples[n-1].Price
		stats.Liquidity = s.samples[n-1].Liquidity
	}
	s.stats = stats
}

// GetTWAP returns the time-weighted average price of asset over the last window
// seconds, or ErrInsufficientData.
func (o *Oracle) GetTWAP(asset string, window int64) (sdkmath.Int, error) {
	s, ok := o.getSeries(asset)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: no samples for %s", ErrInsufficientData, asset)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	twap, err := analyzer.CalculateTWAP(s.samples, o.nowFn(), window)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s over %ds", err, asset, window)
	}
	return twap, nil
}

// Volatility returns the percentage standard deviation of asset prices over the
// last window seconds, in basis points.
func (o *Oracle) Volatility(asset string, window int64) (uint64, error) {
	s, ok := o.getSeries(asset)
	if !ok {
		return 0, fmt.Errorf("%w: no samples for %s", ErrInsufficientData, asset)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analyzer.CalculateVolatility(analyzer.WindowPrices(s.samples, o.nowFn(), window))
}

// UpdateReputationScore recomputes the score of credentialID from the market data
// of asset and moves it in the ranking. Updaters and admins may call it.
func (o *Oracle) UpdateReputationScore(caller, credentialID, asset string) (types.ReputationRecord, error) {
	if !o.roles.HasRole(roles.Updater, caller) && !o.roles.HasRole(roles.Admin, caller) {
		return types.ReputationRecord{}, fmt.Errorf("%w: %s may not recompute scores", ErrUnauthorized, caller)
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return types.ReputationRecord{}, ErrInvalidCredential
	}
	if err := sdk.ValidateDenom(asset); err != nil {
		return types.ReputationRecord{}, fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}

	now := o.nowFn()
	record := types.ReputationRecord{
		CredentialID: credentialID,
		Asset:        asset,
		LastUpdated:  now,
		TWAP30d:      sdkmath.ZeroInt(),
	}

	inputs, err := o.scoreInputs(asset, now)
	switch {
	case err == nil && inputs.TWAP.IsPositive():
		breakdown := analyzer.CalculateReputationScore(inputs, o.params)
		record.Score = breakdown.Score
		record.TWAP30d = inputs.TWAP
		record.LogComponent = breakdown.LogComponent
		record.VolumeWeight = breakdown.VolumeWeight
		record.LiquidityMultiplier = breakdown.LiquidityMultiplier
		record.StabilityBonus = breakdown.StabilityBonus
	case err == nil, isInsufficient(err):
		o.logger.Debug().Str("credential", credentialID).Str("asset", asset).Msg("No TWAP in window, score is zero")
	default:
		return types.ReputationRecord{}, err
	}

	o.repMu.Lock()
	previous, existed := o.reputations[credentialID]
	o.reputations[credentialID] = record
	rank := o.ranking.Update(credentialID, record.Score)
	o.repMu.Unlock()

	rec := events.NewRecord(types.KindReputationUpdated, caller, now)
	rec.Asset = asset
	rec.Credential = credentialID
	if existed {
		rec.Before["score"] = fmt.Sprintf("%d", previous.Score)
	}
	rec.After["score"] = fmt.Sprintf("%d", record.Score)
	rec.After["rank"] = fmt.Sprintf("%d", rank)
	rec.Amounts["twap_30d"] = record.TWAP30d.String()
	o.emitter.Emit(rec)

	o.logger.Info().
		Str("credential", credentialID).
		Str("asset", asset).
		Uint64("score", record.Score).
		Int("rank", rank).
		Msg("Reputation score updated")
	return record, nil
}

func (o *Oracle) scoreInputs(asset string, now int64) (types.ScoreInputs, error) {
	s, ok := o.getSeries(asset)
	if !ok {
		return types.ScoreInputs{}, ErrInsufficientData
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	twap, err := analyzer.CalculateTWAP(s.samples, now, o.params.ReputationWindow)
	if err != nil {
		return types.ScoreInputs{}, err
	}
	return types.ScoreInputs{
		TWAP:      twap,
		Volume24h: s.stats.Volume24h,
		Liquidity: s.stats.Liquidity,
		Prices:    analyzer.WindowPrices(s.samples, now, o.params.ReputationWindow),
	}, nil
}

// GetReputationScore returns the latest record of credentialID.
func (o *Oracle) GetReputationScore(credentialID string) (types.ReputationRecord, error) {
	o.repMu.RLock()
	defer o.repMu.RUnlock()
	rec, ok := o.reputations[credentialID]
	if !ok {
		return types.ReputationRecord{}, fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	return rec, nil
}

// GetReputationRanking returns the 1-based rank of credentialID and the number of
// ranked credentials.
func (o *Oracle) GetReputationRanking(credentialID string) (rank, total int, err error) {
	rank, total, ok := o.ranking.Rank(credentialID)
	if !ok {
		return 0, total, fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}
	return rank, total, nil
}

// GetTopCredentials returns the best limit credentials.
func (o *Oracle) GetTopCredentials(limit int) []types.RankEntry {
	return o.ranking.Top(limit)
}

// Reputations returns every record sorted by credential id.
func (o *Oracle) Reputations() []types.ReputationRecord {
	o.repMu.RLock()
	defer o.repMu.RUnlock()
	out := make([]types.ReputationRecord, 0, len(o.reputations))
	for _, rec := range o.reputations {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CredentialID < out[j].CredentialID })
	return out
}

// LatestSample returns the newest sample of asset.
func (o *Oracle) LatestSample(asset string) (types.PriceSample, bool) {
	s, ok := o.getSeries(asset)
	if !ok {
		return types.PriceSample{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return types.PriceSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// History returns the samples of asset with timestamps in [from, to], oldest first.
// A zero to means no upper bound.
func (o *Oracle) History(asset string, from, to int64) []types.PriceSample {
	s, ok := o.getSeries(asset)
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PriceSample, 0)
	for _, sm := range s.samples {
		if sm.Timestamp >= from && (to == 0 || sm.Timestamp <= to) {
			out = append(out, sm)
		}
	}
	return out
}

// Buckets returns the hour index of asset, oldest first.
func (o *Oracle) Buckets(asset string) []types.HourBucket {
	s, ok := o.getSeries(asset)
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.HourBucket(nil), s.buckets...)
}

// Stats returns the rolling 24h aggregates of asset.
func (o *Oracle) Stats(asset string) (types.MarketStats, bool) {
	s, ok := o.getSeries(asset)
	if !ok {
		return types.MarketStats{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, true
}

// Assets lists every asset with a series, sorted.
func (o *Oracle) Assets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.series))
	for asset := range o.series {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// RestoreSeries loads persisted history for asset, replacing any existing series.
// samples and buckets must be sorted oldest first.
func (o *Oracle) RestoreSeries(asset string, samples []types.PriceSample, buckets []types.HourBucket) {
	s := &assetSeries{
		samples: append([]types.PriceSample(nil), samples...),
		buckets: append([]types.HourBucket(nil), buckets...),
		stats:   emptyStats(asset),
	}
	if n := len(s.samples); n > 0 {
		s.refreshStats(s.samples[n-1].Timestamp)
	}
	o.mu.Lock()
	o.series[asset] = s
	o.mu.Unlock()
}

// RestoreReputations loads persisted records and the leaderboard order.
func (o *Oracle) RestoreReputations(records []types.ReputationRecord, ranking []types.RankEntry) {
	o.repMu.Lock()
	defer o.repMu.Unlock()
	o.reputations = make(map[string]types.ReputationRecord, len(records))
	for _, rec := range records {
		o.reputations[rec.CredentialID] = rec
	}
	o.ranking.Load(ranking)
}

func normalizeUpdate(u types.PriceUpdate) (types.PriceUpdate, error) {
	u.Asset = strings.TrimSpace(u.Asset)
	if err := sdk.ValidateDenom(u.Asset); err != nil {
		return u, fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}
	if u.Price.IsNil() || !u.Price.IsPositive() {
		return u, fmt.Errorf("%w: %s", ErrInvalidPrice, u.Asset)
	}
	if utils.ExceedsMax(u.Price) {
		return u, fmt.Errorf("%w: %s price above %s", ErrInvalidPrice, u.Asset, utils.MaxAmount)
	}
	u.Volume = utils.OrZero(u.Volume)
	u.Liquidity = utils.OrZero(u.Liquidity)
	if u.Volume.IsNegative() || u.Liquidity.IsNegative() {
		return u, fmt.Errorf("%w: %s", ErrInvalidQuantity, u.Asset)
	}
	if utils.ExceedsMax(u.Volume) || utils.ExceedsMax(u.Liquidity) {
		return u, fmt.Errorf("%w: %s volume or liquidity above %s", ErrInvalidQuantity, u.Asset, utils.MaxAmount)
	}
	return u, nil
}

func emptyStats(asset string) types.MarketStats {
	zero := sdkmath.ZeroInt()
	return types.MarketStats{
		Asset:     asset,
		Volume24h: zero,
		High24h:   zero,
		Low24h:    zero,
		Open24h:   zero,
		LastPrice: zero,
		Liquidity: zero,
	}
}

func isInsufficient(err error) bool {
	return Kind(err) == types.KindInsufficient
}
