package state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/credmarket/internal/logger"
	"github.com/elys-network/credmarket/internal/types"
)

// RecordWriter persists a batch of change records. *Store implements it.
type RecordWriter interface {
	InsertChangeRecords(ctx context.Context, records []types.ChangeRecord) error
}

// JournalOptions tunes the buffering of a Journal.
type JournalOptions struct {
	BufferSize    int           // Records queued before Emit starts dropping
	BatchSize     int           // Records per insert
	FlushInterval time.Duration // Upper bound on how long a record waits in a partial batch
	WriteTimeout  time.Duration
}

func (o JournalOptions) withDefaults() JournalOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 4096
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// Journal is an events.Emitter that persists change records from a background
// goroutine, so pool and oracle operations never wait on the database. When the
// buffer is full records are dropped and counted.
type Journal struct {
	writer RecordWriter
	opts   JournalOptions
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan types.ChangeRecord
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewJournal starts the background writer.
func NewJournal(writer RecordWriter, opts JournalOptions) *Journal {
	opts = opts.withDefaults()
	j := &Journal{
		writer: writer,
		opts:   opts,
		logger: logger.GetForComponent("change_journal"),
		queue:  make(chan types.ChangeRecord, opts.BufferSize),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

// Emit queues rec without blocking.
func (j *Journal) Emit(rec types.ChangeRecord) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.queue <- rec:
	default:
		if j.dropped.Add(1)%100 == 1 {
			j.logger.Warn().Str("kind", string(rec.Kind)).Uint64("dropped", j.dropped.Load()).Msg("Journal buffer full, dropping change record")
		}
	}
}

// Close flushes queued records and stops the writer.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()
	<-j.done
	j.logger.Info().
		Uint64("written", j.written.Load()).
		Uint64("dropped", j.dropped.Load()).
		Uint64("failed", j.failed.Load()).
		Msg("Change journal closed")
}

// Written, Dropped and Failed report record counters.
func (j *Journal) Written() uint64 { return j.written.Load() }
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }
func (j *Journal) Failed() uint64 { return j.failed.Load() }

func (j *Journal) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]types.ChangeRecord, 0, j.opts.BatchSize)
	for {
		select {
		case rec, ok := <-j.queue:
			if !ok {
				j.flush(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= j.opts.BatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flush(batch []types.ChangeRecord) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.opts.WriteTimeout)
	defer cancel()
	if err := j.writer.InsertChangeRecords(ctx, batch); err != nil {
		j.failed.Add(uint64(len(batch)))
		j.logger.Error().Err(err).Int("records", len(batch)).Msg("Failed to persist change records")
		return
	}
	j.written.Add(uint64(len(batch)))
}
