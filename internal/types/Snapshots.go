/*

This file contains the persisted views of the market: the full restorable
snapshot and the per-cycle report written by the updater.

*/

package types

import "time"

// PoolSnapshot is one pool with every position and its creation record.
type PoolSnapshot struct {
	Pool       Pool           `json:"pool"`
	Positions  []Position     `json:"positions"`
	Provenance PoolProvenance `json:"provenance"`
}

// SeriesSnapshot is the retained oracle history of one asset.
type SeriesSnapshot struct {
	Asset   string        `json:"asset"`
	Samples []PriceSample `json:"samples"`
	Buckets []HourBucket  `json:"buckets"`
}

// MarketSnapshot holds everything needed to rebuild a market after a restart.
type MarketSnapshot struct {
	Pools       []PoolSnapshot     `json:"pools"` // Creation order
	Series      []SeriesSnapshot   `json:"series"`
	Reputations []ReputationRecord `json:"reputations"`
	Ranking     []RankEntry        `json:"ranking"` // Leaderboard order
	Links       map[string]string  `json:"links"`   // Credential id to asset
	TakenAt     int64              `json:"taken_at"`
}

// CycleReport summarises one updater cycle.
type CycleReport struct {
	CycleID     string        `json:"cycle_id"`
	CycleNumber int           `json:"cycle_number"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Pools       int           `json:"pools"`    // Active pools inspected
	Samples     int           `json:"samples"`  // Samples accepted by the oracle
	Scored      int           `json:"scored"`   // Credentials recomputed
	Failures    []string      `json:"failures"` // One line per failed asset or credential
}

// Succeeded reports whether the cycle finished without any failure.
func (r CycleReport) Succeeded() bool {
	return len(r.Failures) == 0
}
