/*

This file contains the credential leaderboard. Entries are kept sorted by score
descending; among equal scores the least recently updated credential ranks first.

*/

package analyzer

import (
	"sort"
	"sync"

	"github.com/elys-network/credmarket/internal/types"
)

type rankKey struct {
	id    string
	score uint64
	seq   uint64
}

func (a rankKey) before(b rankKey) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.seq < b.seq
}

// RankingIndex is an order-preserving leaderboard with one entry per credential.
// Readers never observe a partially applied update.
type RankingIndex struct {
	mu      sync.RWMutex
	entries []rankKey
	byID    map[string]rankKey
	seq     uint64
}

// NewRankingIndex returns an empty index.
func NewRankingIndex() *RankingIndex {
	return &RankingIndex{byID: make(map[string]rankKey)}
}

// Update moves id to its new score, directly before the first entry with a strictly
// lower score. It returns the new 1-based rank.
func (r *RankingIndex) Update(id string, score uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[id]; ok {
		pos := r.search(old)
		r.entries = append(r.entries[:pos], r.entries[pos+1:]...)
	}
	r.seq++
	key := rankKey{id: id, score: score, seq: r.seq}
	pos := r.search(key)
	r.entries = append(r.entries, rankKey{})
	copy(r.entries[pos+1:], r.entries[pos:])
	r.entries[pos] = key
	r.byID[id] = key
	return pos + 1
}

// Rank returns the 1-based rank of id and the number of ranked credentials.
func (r *RankingIndex) Rank(id string) (rank, total int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byID[id]
	if !ok {
		return 0, len(r.entries), false
	}
	return r.search(key) + 1, len(r.entries), true
}

// Top returns up to limit entries from the head of the leaderboard. A non-positive
// limit returns every entry.
func (r *RankingIndex) Top(limit int) []types.RankEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]types.RankEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = types.RankEntry{CredentialID: r.entries[i].id, Score: r.entries[i].score, Rank: i + 1}
	}
	return out
}

// Len returns the number of ranked credentials.
func (r *RankingIndex) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Load replaces the index with entries given in leaderboard order.
func (r *RankingIndex) Load(entries []types.RankEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
	r.byID = make(map[string]rankKey, len(entries))
	r.seq = 0
	for _, e := range entries {
		if _, dup := r.byID[e.CredentialID]; dup {
			continue
		}
		r.seq++
		key := rankKey{id: e.CredentialID, score: e.Score, seq: r.seq}
		r.entries = append(r.entries, key)
		r.byID[e.CredentialID] = key
	}
	sort.SliceStable(r.entries, func(i, j int) bool { return r.entries[i].before(r.entries[j]) })
}

// search returns the position of key, or where it would be inserted.
func (r *RankingIndex) search(key rankKey) int {
	return sort.Search(len(r.entries), func(i int) bool {
		return !r.entries[i].before(key)
	})
}
