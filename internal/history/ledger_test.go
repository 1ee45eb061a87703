package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(n int) RunRecord {
	return RunRecord{ID: fmt.Sprintf("run-%d", n), Status: StatusSuccess, Details: "1/1 steps succeeded"}
}

func TestLedger_NewestFirst(t *testing.T) {
	l := NewLedger()

	l.Record(record(1))
	l.Record(record(2))
	l.Record(record(3))

	got := l.List()
	require.Len(t, got, 3)
	assert.Equal(t, "run-3", got[0].ID)
	assert.Equal(t, "run-2", got[1].ID)
	assert.Equal(t, "run-1", got[2].ID)
}

func TestLedger_EleventhInsertionEvictsOldest(t *testing.T) {
	l := NewLedger()
	for i := 1; i <= Capacity; i++ {
		l.Record(record(i))
	}
	require.Equal(t, Capacity, l.Len())

	l.Record(record(11))

	got := l.List()
	require.Len(t, got, Capacity)
	assert.Equal(t, "run-11", got[0].ID)
	assert.Equal(t, "run-2", got[Capacity-1].ID)
	for _, rec := range got {
		assert.NotEqual(t, "run-1", rec.ID)
	}
}

func TestLedger_ListIsSnapshot(t *testing.T) {
	l := NewLedger()
	l.Record(record(1))

	got := l.List()
	got[0].ID = "mutated"

	assert.Equal(t, "run-1", l.List()[0].ID)
}

func TestLedger_ConcurrentRecordNeverExceedsCapacity(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Record(record(n))
			_ = l.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, Capacity, l.Len())
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "2026-03-04 05:06:07", FormatTimestamp(ts))
}
