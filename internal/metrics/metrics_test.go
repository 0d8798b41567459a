package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/types"
)

func swapRecord(asset string, side types.Side, in, out string) types.ChangeRecord {
	rec := events.NewRecord(types.KindSwap, "trader", 100)
	rec.Asset = asset
	rec.Amounts["side_in"] = string(side)
	rec.Amounts["amount_in"] = in
	rec.Amounts["amount_out"] = out
	return rec
}

func TestCollectorCountsSwapVolumeOnStableSide(t *testing.T) {
	c := NewCollector(18, 6)

	c.Emit(swapRecord("cred/alice", types.SideStable, "2500000", "9000000000000000000"))
	c.Emit(swapRecord("cred/alice", types.SideCredit, "1000000000000000000", "1500000"))

	assert.InDelta(t, 4.0, testutil.ToFloat64(c.swapVolume.WithLabelValues("cred/alice")), 1e-9)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.changeRecords.WithLabelValues(string(types.KindSwap))))
}

func TestCollectorTracksOracleAndReputation(t *testing.T) {
	c := NewCollector(18, 6)

	price := events.NewRecord(types.KindPriceUpdated, "feeder", 100)
	price.Asset = "cred/bob"
	price.After["price"] = "120000000000000000"
	price.Amounts["liquidity"] = "20000000"
	c.Emit(price)

	score := events.NewRecord(types.KindReputationUpdated, "feeder", 100)
	score.Credential = "bob-mba"
	score.After["score"] = "640"
	score.After["rank"] = "2"
	c.Emit(score)

	assert.InDelta(t, 0.12, testutil.ToFloat64(c.spotPrice.WithLabelValues("cred/bob")), 1e-12)
	assert.InDelta(t, 20.0, testutil.ToFloat64(c.poolLiquidity.WithLabelValues("cred/bob")), 1e-12)
	assert.Equal(t, 640.0, testutil.ToFloat64(c.reputation.WithLabelValues("bob-mba")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.reputationRank.WithLabelValues("bob-mba")))
}

func TestCollectorSplitsProtocolFees(t *testing.T) {
	c := NewCollector(18, 6)

	rec := events.NewRecord(types.KindProtocolFees, "anyone", 100)
	rec.Asset = "cred/alice"
	rec.Amounts["credit"] = "500000000000000000"
	rec.Amounts["stable"] = "250000"
	c.Emit(rec)

	assert.InDelta(t, 0.5, testutil.ToFloat64(c.protocolFees.WithLabelValues("cred/alice", "credit")), 1e-12)
	assert.InDelta(t, 0.25, testutil.ToFloat64(c.protocolFees.WithLabelValues("cred/alice", "stable")), 1e-12)
}

func TestCollectorIgnoresMalformedAmounts(t *testing.T) {
	c := NewCollector(18, 6)

	c.Emit(swapRecord("cred/alice", types.SideStable, "not-a-number", "1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.changeRecords.WithLabelValues(string(types.KindSwap))))
	assert.Zero(t, testutil.ToFloat64(c.swapVolume.WithLabelValues("cred/alice")))
}

func TestObserveCycle(t *testing.T) {
	c := NewCollector(18, 6)

	c.ObserveCycle(types.CycleReport{Duration: 200 * time.Millisecond})
	c.ObserveCycle(types.CycleReport{Duration: time.Second, Failures: []string{"a", "b"}})

	assert.Equal(t, 2, testutil.CollectAndCount(c.cycleDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycleFailures))
}

func TestRouterServesRegistry(t *testing.T) {
	c := NewCollector(18, 6)
	c.SetJournalDropped(7)

	rr := httptest.NewRecorder()
	c.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "credmarket_journal_dropped_records 7"), body)
}
