package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/types"
)

func testParams() types.MarketParameters {
	return types.MarketParameters{
		StableDenom:         "ustable",
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

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "credmarket", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=credmarket sslmode=disable", cfg.DSN())
}

func TestNilStoreReportsNotInitialized(t *testing.T) {
	var s *Store
	ctx := context.Background()
	assert.ErrorIs(t, s.Ping(ctx), ErrNotInitialized)
	assert.ErrorIs(t, s.EnsureSchema(ctx), ErrNotInitialized)
	assert.ErrorIs(t, s.InsertChangeRecords(ctx, nil), ErrNotInitialized)
	_, err := s.IncrementCycleNumber(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.CurrentCycleNumber(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.LoadMarketSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	s.Close()
}

func TestParseNumeric(t *testing.T) {
	v, err := parseNumeric("120000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "120000000000000000", v.String())

	_, err = parseNumeric("1.5")
	assert.Error(t, err)
	assert.Equal(t, "0", intOrZero(sdkmath.Int{}))
}

func TestDecodeMarketParameters(t *testing.T) {
	raw, err := json.Marshal(testParams())
	require.NoError(t, err)
	params, err := decodeMarketParameters(raw)
	require.NoError(t, err)
	assert.Equal(t, testParams().MinimumLiquidity.String(), params.MinimumLiquidity.String())

	bad := testParams()
	bad.MaxBatchSize = 0
	raw, err = json.Marshal(bad)
	require.NoError(t, err)
	_, err = decodeMarketParameters(raw)
	assert.Error(t, err)
}

func TestChangeValuesCodec(t *testing.T) {
	encoded, err := encodeValues(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", encoded)

	decoded, err := decodeValues([]byte(`{"reserve_credit":"100"}`))
	require.NoError(t, err)
	assert.Equal(t, "100", decoded["reserve_credit"])

	empty, err := decodeValues(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 10, clampLimit(0))
	assert.Equal(t, 50, clampLimit(50))
}

// openTestStore connects to the database named by CREDMARKET_TEST_DATABASE_URL.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CREDMARKET_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CREDMARKET_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	s := NewStore(db)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(s.Close)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, version, err := s.SaveMarketParameters(ctx, "default", testParams(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	loaded, err := s.LoadActiveMarketParameters(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, testParams().SwapFeeBp, loaded.SwapFeeBp)

	n, err := s.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	current, err := s.CurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, current)

	zero := sdkmath.ZeroInt()
	pool := types.Pool{
		Asset: "cred/a", ReserveCredit: sdkmath.NewInt(100), ReserveStable: sdkmath.NewInt(10), TotalShares: sdkmath.NewInt(31),
		CumulativePriceCredit: zero, CumulativePriceStable: zero, AccumulatedFeesCredit: zero, AccumulatedFeesStable: zero,
		ProtocolFeesCredit: zero, ProtocolFeesStable: zero, FeeGrowthCredit: zero, FeeGrowthStable: zero, PendingVolume: zero,
		IsActive: true,
	}
	pos := types.NewPosition("cred/a", "creator")
	pos.Shares = sdkmath.NewInt(31)
	snap := types.MarketSnapshot{
		Pools: []types.PoolSnapshot{{Pool: pool, Positions: []types.Position{*pos}, Provenance: types.PoolProvenance{Asset: "cred/a", Creator: "creator"}}},
		Series: []types.SeriesSnapshot{{
			Asset:   "cred/a",
			Samples: []types.PriceSample{{Asset: "cred/a", Price: sdkmath.NewInt(5), Timestamp: 10, CumulativePrice: zero, Volume: zero, Liquidity: zero}},
			Buckets: []types.HourBucket{{Asset: "cred/a", HourStart: 0, Volume: zero, Trades: 1}},
		}},
		Reputations: []types.ReputationRecord{{CredentialID: "c1", Asset: "cred/a", Score: 7, TWAP30d: sdkmath.NewInt(5)}},
		Ranking:     []types.RankEntry{{CredentialID: "c1", Score: 7, Rank: 1}},
		Links:       map[string]string{"c1": "cred/a"},
	}
	require.NoError(t, s.SaveMarketSnapshot(ctx, snap))

	back, err := s.LoadMarketSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, back.Pools, 1)
	assert.Equal(t, "31", back.Pools[0].Pool.TotalShares.String())
	require.Len(t, back.Series, 1)
	assert.Equal(t, "5", back.Series[0].Samples[0].Price.String())
	assert.Equal(t, "cred/a", back.Links["c1"])
	require.Len(t, back.Ranking, 1)

	rec := events.NewRecord(types.KindSwap, "trader", 42)
	rec.ID = uuid.NewString()
	rec.Asset = "cred/a"
	rec.Amounts["in"] = "10"
	require.NoError(t, s.InsertChangeRecords(ctx, []types.ChangeRecord{rec, rec}))
	changes, err := s.GetRecentChanges(ctx, types.KindSwap, "", 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "10", changes[0].Amounts["in"])

	_, err = s.SaveCycleReport(ctx, types.CycleReport{CycleID: uuid.NewString(), CycleNumber: 1, StartedAt: time.Now(), Failures: []string{"x"}})
	require.NoError(t, err)
	cycles, err := s.GetRecentCycles(ctx, 5)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"x"}, cycles[0].Failures)

	summary, err := s.GetMarketSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pools)
	assert.Equal(t, 1, summary.FailedCycles)
}
