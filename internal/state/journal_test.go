package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/credmarket/internal/events"
	"github.com/elys-network/credmarket/internal/types"
)

type memoryWriter struct {
	mu      sync.Mutex
	batches [][]types.ChangeRecord
	fail    bool
	block   chan struct{}
}

func (w *memoryWriter) InsertChangeRecords(_ context.Context, records []types.ChangeRecord) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("database down")
	}
	w.batches = append(w.batches, append([]types.ChangeRecord(nil), records...))
	return nil
}

func (w *memoryWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestJournalFlushesOnBatchSizeAndClose(t *testing.T) {
	w := &memoryWriter{}
	j := NewJournal(w, JournalOptions{BatchSize: 2, FlushInterval: time.Hour})
	for i := 0; i < 5; i++ {
		j.Emit(events.NewRecord(types.KindSwap, "trader", int64(i)))
	}
	j.Close()

	assert.Equal(t, 5, w.count())
	assert.Equal(t, uint64(5), j.Written())
	assert.Zero(t, j.Dropped())
	require.GreaterOrEqual(t, len(w.batches), 3)
	assert.Len(t, w.batches[0], 2)

	j.Emit(events.NewRecord(types.KindSwap, "late", 9))
	assert.Equal(t, uint64(1), j.Dropped(), "records after close are dropped")
	j.Close()
}

func TestJournalFlushesOnInterval(t *testing.T) {
	w := &memoryWriter{}
	j := NewJournal(w, JournalOptions{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	defer j.Close()

	j.Emit(events.NewRecord(types.KindDeposit, "lp", 1))
	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestJournalDropsWhenFull(t *testing.T) {
	w := &memoryWriter{block: make(chan struct{})}
	j := NewJournal(w, JournalOptions{BufferSize: 1, BatchSize: 1, FlushInterval: time.Hour})

	for i := 0; i < 10; i++ {
		j.Emit(events.NewRecord(types.KindSwap, "trader", int64(i)))
	}
	assert.Greater(t, j.Dropped(), uint64(0))
	close(w.block)
	j.Close()
	assert.Equal(t, uint64(10), j.Written()+j.Dropped())
}

func TestJournalCountsFailedWrites(t *testing.T) {
	w := &memoryWriter{fail: true}
	j := NewJournal(w, JournalOptions{BatchSize: 10, FlushInterval: time.Hour})
	j.Emit(events.NewRecord(types.KindSwap, "trader", 1))
	j.Emit(events.NewRecord(types.KindSwap, "trader", 2))
	j.Close()
	assert.Equal(t, uint64(2), j.Failed())
	assert.Zero(t, j.Written())
}
