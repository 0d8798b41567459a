package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/elys-network/credmarket/internal/types"
)

// Emitter broadcasts change records to downstream sinks (journal, metrics, tests).
type Emitter interface {
	Emit(types.ChangeRecord)
}

// NoopEmitter discards every record. It is the default for components that are
// constructed without a sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(types.ChangeRecord) {}

// MultiEmitter fans a record out to several sinks in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(rec types.ChangeRecord) {
	for _, e := range m {
		if e != nil {
			e.Emit(rec)
		}
	}
}

// Recorder keeps every emitted record in memory.
type Recorder struct {
	mu      sync.Mutex
	records []types.ChangeRecord
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(rec types.ChangeRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []types.ChangeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ChangeRecord, len(r.records))
	copy(out, r.records)
	return out
}

// OfKind returns the recorded records with the given kind.
func (r *Recorder) OfKind(kind types.ChangeKind) []types.ChangeRecord {
	var out []types.ChangeRecord
	for _, rec := range r.Records() {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Reset drops all recorded records.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// NewRecord returns a record with a fresh id and empty value maps.
func NewRecord(kind types.ChangeKind, participant string, timestamp int64) types.ChangeRecord {
	return types.ChangeRecord{
		ID:          uuid.NewString(),
		Kind:        kind,
		Participant: participant,
		Before:      map[string]string{},
		After:       map[string]string{},
		Amounts:     map[string]string{},
		Timestamp:   timestamp,
	}
}
