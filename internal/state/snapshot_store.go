// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support

	"github.com/elys-network/credmarket/internal/types"
)

// SaveMarketSnapshot replaces the persisted market with snapshot in one transaction.
func (s *Store) SaveMarketSnapshot(ctx context.Context, snapshot types.MarketSnapshot) (err error) {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	for _, p := range snapshot.Pools {
		if err = savePool(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, series := range snapshot.Series {
		if err = saveSeries(ctx, tx, series); err != nil {
			return err
		}
	}
	if err = saveReputations(ctx, tx, snapshot.Reputations, snapshot.Ranking); err != nil {
		return err
	}
	for credential, asset := range snapshot.Links {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credential_links (credential_id, asset) VALUES ($1, $2)
			ON CONFLICT (credential_id) DO UPDATE SET asset = EXCLUDED.asset;`, credential, asset)
		if err != nil {
			return fmt.Errorf("failed to save link of %s: %w", credential, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Int("pools", len(snapshot.Pools)).
		Int("series", len(snapshot.Series)).
		Int("reputations", len(snapshot.Reputations)).
		Int("links", len(snapshot.Links)).
		Int64("taken_at", snapshot.TakenAt).
		Msg("Market snapshot saved to database")
	return nil
}

func savePool(ctx context.Context, tx *sql.Tx, p types.PoolSnapshot) error {
	state, err := json.Marshal(p.Pool)
	if err != nil {
		return fmt.Errorf("failed to marshal pool %s: %w", p.Pool.Asset, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pools (asset, creator, creation_index, created_at, reserve_credit, reserve_stable, total_shares, is_active, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		ON CONFLICT (asset) DO UPDATE SET
			reserve_credit = EXCLUDED.reserve_credit,
			reserve_stable = EXCLUDED.reserve_stable,
			total_shares = EXCLUDED.total_shares,
			is_active = EXCLUDED.is_active,
			state = EXCLUDED.state,
			updated_at = CURRENT_TIMESTAMP;`,
		p.Pool.Asset, p.Provenance.Creator, p.Provenance.Index, p.Provenance.CreatedAt,
		p.Pool.ReserveCredit.String(), p.Pool.ReserveStable.String(), p.Pool.TotalShares.String(),
		p.Pool.IsActive, state,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool %s: %w", p.Pool.Asset, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE asset = $1;`, p.Pool.Asset); err != nil {
		return fmt.Errorf("failed to clear positions of %s: %w", p.Pool.Asset, err)
	}
	for _, pos := range p.Positions {
		posState, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("failed to marshal position %s/%s: %w", pos.Asset, pos.Owner, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO positions (asset, owner, shares, state) VALUES ($1, $2, $3, $4);`,
			pos.Asset, pos.Owner, pos.Shares.String(), posState)
		if err != nil {
			return fmt.Errorf("failed to save position %s/%s: %w", pos.Asset, pos.Owner, err)
		}
	}
	return nil
}

// saveSeries rewrites the retained history of one asset with two array inserts.
func saveSeries(ctx context.Context, tx *sql.Tx, series types.SeriesSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM price_samples WHERE asset = $1;`, series.Asset); err != nil {
		return fmt.Errorf("failed to clear samples of %s: %w", series.Asset, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hour_buckets WHERE asset = $1;`, series.Asset); err != nil {
		return fmt.Errorf("failed to clear buckets of %s: %w", series.Asset, err)
	}

	if n := len(series.Samples); n > 0 {
		seqs := make([]int64, n)
		ts := make([]int64, n)
		prices := make([]string, n)
		cumulative := make([]string, n)
		volumes := make([]string, n)
		liquidity := make([]string, n)
		for i, sm := range series.Samples {
			seqs[i] = int64(i)
			ts[i] = sm.Timestamp
			prices[i] = sm.Price.String()
			cumulative[i] = intOrZero(sm.CumulativePrice)
			volumes[i] = intOrZero(sm.Volume)
			liquidity[i] = intOrZero(sm.Liquidity)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_samples (asset, sample_seq, ts, price, cumulative_price, volume, liquidity)
			SELECT $1::varchar, * FROM unnest($2::int[], $3::bigint[], $4::numeric[], $5::numeric[], $6::numeric[], $7::numeric[]);`,
			series.Asset, pq.Array(seqs), pq.Array(ts), pq.Array(prices), pq.Array(cumulative), pq.Array(volumes), pq.Array(liquidity),
		)
		if err != nil {
			return fmt.Errorf("failed to save samples of %s: %w", series.Asset, err)
		}
	}

	if n := len(series.Buckets); n > 0 {
		hours := make([]int64, n)
		volumes := make([]string, n)
		trades := make([]int64, n)
		for i, b := range series.Buckets {
			hours[i] = b.HourStart
			volumes[i] = intOrZero(b.Volume)
			trades[i] = int64(b.Trades)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO hour_buckets (asset, hour_start, volume, trades)
			SELECT $1::varchar, * FROM unnest($2::bigint[], $3::numeric[], $4::bigint[]);`,
			series.Asset, pq.Array(hours), pq.Array(volumes), pq.Array(trades),
		)
		if err != nil {
			return fmt.Errorf("failed to save buckets of %s: %w", series.Asset, err)
		}
	}
	return nil
}

func saveReputations(ctx context.Context, tx *sql.Tx, records []types.ReputationRecord, ranking []types.RankEntry) error {
	ranks := make(map[string]int, len(ranking))
	for _, e := range ranking {
		ranks[e.CredentialID] = e.Rank
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reputation_records;`); err != nil {
		return fmt.Errorf("failed to clear reputation records: %w", err)
	}
	for _, rec := range records {
		components, err := json.Marshal(reputationComponents{
			LogComponent:        rec.LogComponent,
			VolumeWeight:        rec.VolumeWeight,
			LiquidityMultiplier: rec.LiquidityMultiplier,
			StabilityBonus:      rec.StabilityBonus,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal components of %s: %w", rec.CredentialID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reputation_records (credential_id, asset, score, rank, last_updated, twap_30d, components)
			VALUES ($1, $2, $3, $4, $5, $6, $7);`,
			rec.CredentialID, rec.Asset, rec.Score, ranks[rec.CredentialID], rec.LastUpdated, intOrZero(rec.TWAP30d), components,
		)
		if err != nil {
			return fmt.Errorf("failed to save reputation of %s: %w", rec.CredentialID, err)
		}
	}
	return nil
}

type reputationComponents struct {
	LogComponent        uint64 `json:"log_component"`
	VolumeWeight        uint64 `json:"volume_weight"`
	LiquidityMultiplier uint64 `json:"liquidity_multiplier"`
	StabilityBonus      uint64 `json:"stability_bonus"`
}

// LoadMarketSnapshot reads back everything SaveMarketSnapshot wrote. Pools come
// back in creation order and the ranking in leaderboard order.
func (s *Store) LoadMarketSnapshot(ctx context.Context) (types.MarketSnapshot, error) {
	if s == nil || s.db == nil {
		return types.MarketSnapshot{}, ErrNotInitialized
	}
	snap := types.MarketSnapshot{Links: make(map[string]string)}

	pools, err := s.loadPools(ctx)
	if err != nil {
		return snap, err
	}
	snap.Pools = pools

	series, err := s.loadSeries(ctx)
	if err != nil {
		return snap, err
	}
	snap.Series = series

	records, ranking, err := s.loadReputations(ctx)
	if err != nil {
		return snap, err
	}
	snap.Reputations, snap.Ranking = records, ranking

	rows, err := s.db.QueryContext(ctx, `SELECT credential_id, asset FROM credential_links;`)
	if err != nil {
		return snap, fmt.Errorf("failed to query credential links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var credential, asset string
		if err := rows.Scan(&credential, &asset); err != nil {
			return snap, fmt.Errorf("failed to scan credential link: %w", err)
		}
		snap.Links[credential] = asset
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	s.logger.Info().
		Int("pools", len(snap.Pools)).
		Int("series", len(snap.Series)).
		Int("reputations", len(snap.Reputations)).
		Msg("Market snapshot loaded from database")
	return snap, nil
}

func (s *Store) loadPools(ctx context.Context) ([]types.PoolSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset, creator, creation_index, created_at, state FROM pools ORDER BY creation_index;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var out []types.PoolSnapshot
	for rows.Next() {
		var p types.PoolSnapshot
		var state []byte
		if err := rows.Scan(&p.Provenance.Asset, &p.Provenance.Creator, &p.Provenance.Index, &p.Provenance.CreatedAt, &state); err != nil {
			return nil, fmt.Errorf("failed to scan pool row: %w", err)
		}
		if err := json.Unmarshal(state, &p.Pool); err != nil {
			return nil, fmt.Errorf("failed to decode pool %s: %w", p.Provenance.Asset, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		positions, err := s.loadPositions(ctx, out[i].Pool.Asset)
		if err != nil {
			return nil, err
		}
		out[i].Positions = positions
	}
	return out, nil
}

func (s *Store) loadPositions(ctx context.Context, asset string) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM positions WHERE asset = $1 ORDER BY owner;`, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions of %s: %w", asset, err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		var pos types.Position
		if err := json.Unmarshal(state, &pos); err != nil {
			return nil, fmt.Errorf("failed to decode position of %s: %w", asset, err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *Store) loadSeries(ctx context.Context) ([]types.SeriesSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, ts, price::text, cumulative_price::text, volume::text, liquidity::text
		FROM price_samples ORDER BY asset, sample_seq;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query price samples: %w", err)
	}
	defer rows.Close()

	var out []types.SeriesSnapshot
	index := make(map[string]int)
	for rows.Next() {
		var sm types.PriceSample
		var price, cumulative, volume, liquidity string
		if err := rows.Scan(&sm.Asset, &sm.Timestamp, &price, &cumulative, &volume, &liquidity); err != nil {
			return nil, fmt.Errorf("failed to scan price sample: %w", err)
		}
		if sm.Price, err = parseNumeric(price); err != nil {
			return nil, err
		}
		if sm.CumulativePrice, err = parseNumeric(cumulative); err != nil {
			return nil, err
		}
		if sm.Volume, err = parseNumeric(volume); err != nil {
			return nil, err
		}
		if sm.Liquidity, err = parseNumeric(liquidity); err != nil {
			return nil, err
		}
		i, ok := index[sm.Asset]
		if !ok {
			i = len(out)
			index[sm.Asset] = i
			out = append(out, types.SeriesSnapshot{Asset: sm.Asset})
		}
		out[i].Samples = append(out[i].Samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bucketRows, err := s.db.QueryContext(ctx, `SELECT asset, hour_start, volume::text, trades FROM hour_buckets ORDER BY asset, hour_start;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hour buckets: %w", err)
	}
	defer bucketRows.Close()
	for bucketRows.Next() {
		var b types.HourBucket
		var volume string
		var trades int64
		if err := bucketRows.Scan(&b.Asset, &b.HourStart, &volume, &trades); err != nil {
			return nil, fmt.Errorf("failed to scan hour bucket: %w", err)
		}
		if b.Volume, err = parseNumeric(volume); err != nil {
			return nil, err
		}
		b.Trades = uint64(trades)
		i, ok := index[b.Asset]
		if !ok {
			i = len(out)
			index[b.Asset] = i
			out = append(out, types.SeriesSnapshot{Asset: b.Asset})
		}
		out[i].Buckets = append(out[i].Buckets, b)
	}
	return out, bucketRows.Err()
}

func (s *Store) loadReputations(ctx context.Context) ([]types.ReputationRecord, []types.RankEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, asset, score, rank, last_updated, twap_30d::text, components
		FROM reputation_records ORDER BY rank, credential_id;`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query reputation records: %w", err)
	}
	defer rows.Close()

	var records []types.ReputationRecord
	var ranking []types.RankEntry
	for rows.Next() {
		var rec types.ReputationRecord
		var rank int
		var twap string
		var raw []byte
		if err := rows.Scan(&rec.CredentialID, &rec.Asset, &rec.Score, &rank, &rec.LastUpdated, &twap, &raw); err != nil {
			return nil, nil, fmt.Errorf("failed to scan reputation record: %w", err)
		}
		if rec.TWAP30d, err = parseNumeric(twap); err != nil {
			return nil, nil, err
		}
		var c reputationComponents
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, nil, fmt.Errorf("failed to decode components of %s: %w", rec.CredentialID, err)
		}
		rec.LogComponent, rec.VolumeWeight = c.LogComponent, c.VolumeWeight
		rec.LiquidityMultiplier, rec.StabilityBonus = c.LiquidityMultiplier, c.StabilityBonus
		records = append(records, rec)
		ranking = append(ranking, types.RankEntry{CredentialID: rec.CredentialID, Score: rec.Score, Rank: rank})
	}
	return records, ranking, rows.Err()
}

// SaveCycleReport appends one updater cycle to cycle_reports.
func (s *Store) SaveCycleReport(ctx context.Context, report types.CycleReport) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	var reportID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cycle_reports (cycle_id, cycle_number, started_at, duration_ms, pools, samples, scored, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING report_id;`,
		report.CycleID, report.CycleNumber, report.StartedAt, report.Duration.Milliseconds(),
		report.Pools, report.Samples, report.Scored, pq.Array(report.Failures),
	).Scan(&reportID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle report: %w", err)
	}

	s.logger.Info().
		Int64("report_id", reportID).
		Int("cycle_number", report.CycleNumber).
		Int("samples", report.Samples).
		Int("failures", len(report.Failures)).
		Msg("Cycle report saved to database")
	return reportID, nil
}

// parseNumeric converts the text form of an integral NUMERIC column.
func parseNumeric(text string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(text)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integral numeric %q", text)
	}
	return v, nil
}

func intOrZero(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
