package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/elys-network/credmarket/internal/types"
)

// MarketSummary represents high-level market statistics for dashboards.
type MarketSummary struct {
	Pools         int    `json:"pools"`
	ActivePools   int    `json:"active_pools"`
	RankedCreds   int    `json:"ranked_credentials"`
	Samples       int64  `json:"samples"`
	ChangeRecords int64  `json:"change_records"`
	TotalCycles   int    `json:"total_cycles"`
	FailedCycles  int    `json:"failed_cycles"`
	LastCycleAt   string `json:"last_cycle_at,omitempty"`
}

// InsertChangeRecords writes records in one statement. Duplicate ids are ignored so
// a retried flush is harmless.
func (s *Store) InsertChangeRecords(ctx context.Context, records []types.ChangeRecord) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	if len(records) == 0 {
		return nil
	}

	n := len(records)
	ids := make([]string, n)
	kinds := make([]string, n)
	assets := make([]string, n)
	credentials := make([]string, n)
	participants := make([]string, n)
	before := make([]string, n)
	after := make([]string, n)
	amounts := make([]string, n)
	ts := make([]int64, n)
	for i, rec := range records {
		ids[i] = rec.ID
		kinds[i] = string(rec.Kind)
		assets[i] = rec.Asset
		credentials[i] = rec.Credential
		participants[i] = rec.Participant
		ts[i] = rec.Timestamp
		var err error
		if before[i], err = encodeValues(rec.Before); err != nil {
			return err
		}
		if after[i], err = encodeValues(rec.After); err != nil {
			return err
		}
		if amounts[i], err = encodeValues(rec.Amounts); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO change_records (record_id, kind, asset, credential_id, participant, before_values, after_values, amounts, ts)
		SELECT id, kind, NULLIF(asset, ''), NULLIF(credential, ''), participant, before::jsonb, after::jsonb, amounts::jsonb, ts
		FROM unnest($1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[], $8::text[], $9::bigint[])
			AS r(id, kind, asset, credential, participant, before, after, amounts, ts)
		ON CONFLICT (record_id) DO NOTHING;`,
		pq.Array(ids), pq.Array(kinds), pq.Array(assets), pq.Array(credentials), pq.Array(participants),
		pq.Array(before), pq.Array(after), pq.Array(amounts), pq.Array(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %d change records: %w", n, err)
	}
	s.logger.Debug().Int("records", n).Msg("Change records written")
	return nil
}

// GetRecentChanges returns the newest change records, optionally of one kind and asset.
func (s *Store) GetRecentChanges(ctx context.Context, kind types.ChangeKind, asset string, limit int) ([]types.ChangeRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id::text, kind, COALESCE(asset, ''), COALESCE(credential_id, ''), participant,
		       before_values, after_values, amounts, ts
		FROM change_records
		WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR asset = $2)
		ORDER BY ts DESC, recorded_at DESC
		LIMIT $3;`, string(kind), asset, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query recent change records")
		return nil, fmt.Errorf("failed to query change records: %w", err)
	}
	defer rows.Close()

	var out []types.ChangeRecord
	for rows.Next() {
		var rec types.ChangeRecord
		var kindText string
		var before, after, amounts []byte
		if err := rows.Scan(&rec.ID, &kindText, &rec.Asset, &rec.Credential, &rec.Participant, &before, &after, &amounts, &rec.Timestamp); err != nil {
			s.logger.Error().Err(err).Msg("Failed to scan change record row")
			continue
		}
		rec.Kind = types.ChangeKind(kindText)
		if rec.Before, err = decodeValues(before); err != nil {
			return nil, err
		}
		if rec.After, err = decodeValues(after); err != nil {
			return nil, err
		}
		if rec.Amounts, err = decodeValues(amounts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecentCycles retrieves recent updater cycles, newest first.
func (s *Store) GetRecentCycles(ctx context.Context, limit int) ([]types.CycleReport, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id::text, cycle_number, started_at, duration_ms, pools, samples, scored, failures
		FROM cycle_reports
		ORDER BY started_at DESC
		LIMIT $1;`, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleReport
	for rows.Next() {
		var c types.CycleReport
		var durationMs int64
		if err := rows.Scan(&c.CycleID, &c.CycleNumber, &c.StartedAt, &durationMs, &c.Pools, &c.Samples, &c.Scored, pq.Array(&c.Failures)); err != nil {
			s.logger.Error().Err(err).Msg("Failed to scan cycle row")
			continue
		}
		c.Duration = time.Duration(durationMs) * time.Millisecond
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// GetMarketSummary aggregates counts across the persisted tables.
func (s *Store) GetMarketSummary(ctx context.Context) (*MarketSummary, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}

	summary := &MarketSummary{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pools),
			(SELECT COUNT(*) FROM pools WHERE is_active),
			(SELECT COUNT(*) FROM reputation_records),
			(SELECT COUNT(*) FROM price_samples),
			(SELECT COUNT(*) FROM change_records),
			(SELECT COUNT(*) FROM cycle_reports),
			(SELECT COUNT(*) FROM cycle_reports WHERE cardinality(failures) > 0),
			COALESCE((SELECT to_char(MAX(started_at), 'YYYY-MM-DD"T"HH24:MI:SSOF') FROM cycle_reports), '');`,
	).Scan(&summary.Pools, &summary.ActivePools, &summary.RankedCreds, &summary.Samples,
		&summary.ChangeRecords, &summary.TotalCycles, &summary.FailedCycles, &summary.LastCycleAt)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate market summary: %w", err)
	}
	return summary, nil
}

func encodeValues(values map[string]string) (string, error) {
	if values == nil {
		values = map[string]string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode change values: %w", err)
	}
	return string(raw), nil
}

func decodeValues(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode change values: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}
