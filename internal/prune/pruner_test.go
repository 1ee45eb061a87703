package prune

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// removalMode controls how the fake directory reacts to Remove.
type removalMode int

const (
	removeConfirmed removalMode = iota // confirmation dialog acknowledged
	removeSilently                     // entry disappears, no confirmation
	removeIgnored                      // nothing happens
)

type fakeDirectory struct {
	mu        sync.Mutex
	entries   []Entry
	mode      removalMode
	listErr   error
	removeErr error

	Listed  int
	Removed []string
}

func (d *fakeDirectory) List(_ context.Context) ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Listed++
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out, nil
}

func (d *fakeDirectory) Remove(_ context.Context, entry Entry) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removeErr != nil {
		return false, d.removeErr
	}
	if d.mode == removeIgnored {
		return false, nil
	}
	for i, e := range d.entries {
		if e.ID == entry.ID {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			break
		}
	}
	d.Removed = append(d.Removed, entry.ID)
	return d.mode == removeConfirmed, nil
}

func (d *fakeDirectory) Removable(_ context.Context, entry Entry) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.ID == entry.ID {
			return e.Removable, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) remaining() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

func newTestPruner() *Pruner {
	log, _ := test.NewNullLogger()
	return NewPruner(clockwork.NewFakeClock(), 0, log)
}

// sessions builds n removable entries with distinct timestamps, shuffled so
// the newest is not last in listing order.
func sessions(n int) []Entry {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (i*7 + 3) % n
		out = append(out, Entry{
			ID:        fmt.Sprintf("s%02d", idx),
			CreatedAt: base.Add(time.Duration(idx) * time.Hour).Format(CreatedAtLayout),
			Removable: true,
		})
	}
	return out
}

func TestPrune_ConvergesToNewest(t *testing.T) {
	for _, n := range []int{2, 3, 5, 10, 15} {
		for _, mode := range []removalMode{removeConfirmed, removeSilently} {
			t.Run(fmt.Sprintf("n=%d/mode=%d", n, mode), func(t *testing.T) {
				dir := &fakeDirectory{entries: sessions(n), mode: mode}
				newestID := fmt.Sprintf("s%02d", n-1)

				res, err := newTestPruner().Prune(context.Background(), dir)

				require.NoError(t, err)
				assert.Equal(t, n-1, res.Deleted)
				remaining := dir.remaining()
				require.Len(t, remaining, 1)
				assert.Equal(t, newestID, remaining[0].ID)
				assert.NotContains(t, dir.Removed, newestID)
			})
		}
	}
}

func TestPrune_RemovesOldestFirst(t *testing.T) {
	dir := &fakeDirectory{entries: sessions(4), mode: removeConfirmed}

	_, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"s00", "s01", "s02"}, dir.Removed)
}

func TestPrune_SingleOrNoSession(t *testing.T) {
	for _, n := range []int{0, 1} {
		dir := &fakeDirectory{entries: sessions(n)}

		res, err := newTestPruner().Prune(context.Background(), dir)

		require.NoError(t, err)
		assert.Equal(t, Result{Deleted: 0, Iterations: 1}, res)
		assert.Empty(t, dir.Removed)
	}
}

func TestPrune_UnparseableEntriesAreNeverRemovedNorCounted(t *testing.T) {
	entries := append(sessions(3),
		Entry{ID: "garbage-1", CreatedAt: "yesterday", Removable: true},
		Entry{ID: "garbage-2", CreatedAt: "2026-13-45 99:99:99", Removable: true},
	)
	dir := &fakeDirectory{entries: entries, mode: removeConfirmed}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.NotContains(t, dir.Removed, "garbage-1")
	assert.NotContains(t, dir.Removed, "garbage-2")

	var ids []string
	for _, e := range dir.remaining() {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"s02", "garbage-1", "garbage-2"}, ids)
}

func TestPrune_FewerThanTwoParseable(t *testing.T) {
	dir := &fakeDirectory{entries: []Entry{
		{ID: "a", CreatedAt: "2026-05-01 08:00:00", Removable: true},
		{ID: "b", CreatedAt: "not a date", Removable: true},
	}}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	assert.Empty(t, dir.Removed)
}

func TestPrune_SkipsCandidatesWithoutRemovalAction(t *testing.T) {
	entries := sessions(3)
	for i := range entries {
		if entries[i].ID == "s00" {
			entries[i].Removable = false
		}
	}
	dir := &fakeDirectory{entries: entries, mode: removeConfirmed}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{"s01"}, dir.Removed)
	assert.Len(t, dir.remaining(), 2)
}

func TestPrune_UnverifiedRemovalStops(t *testing.T) {
	dir := &fakeDirectory{entries: sessions(5), mode: removeIgnored}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, dir.remaining(), 5)
}

func TestPrune_RemoveErrorStops(t *testing.T) {
	dir := &fakeDirectory{entries: sessions(3), removeErr: errors.New("element not found")}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 1, dir.Listed)
}

func TestPrune_ListErrorIsReturned(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("timeout")}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.Error(t, err)
	assert.Equal(t, 1, res.Iterations)
}

func TestPrune_BoundedByMaxIterations(t *testing.T) {
	n := MaxIterations + 10
	dir := &fakeDirectory{entries: sessions(n), mode: removeConfirmed}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, MaxIterations, res.Iterations)
	assert.Equal(t, MaxIterations, res.Deleted)
	assert.Len(t, dir.remaining(), n-MaxIterations)
}

func TestPrune_RefetchesEveryIteration(t *testing.T) {
	dir := &fakeDirectory{entries: sessions(4), mode: removeSilently}

	res, err := newTestPruner().Prune(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 4, dir.Listed)
	assert.Equal(t, 4, res.Iterations)
}

func TestPrune_WaitsSettleDelayOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	log, _ := test.NewNullLogger()
	p := NewPruner(clock, 5*time.Second, log)
	dir := &fakeDirectory{entries: sessions(2), mode: removeConfirmed}

	done := make(chan Result, 1)
	go func() {
		res, _ := p.Prune(context.Background(), dir)
		done <- res
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(5 * time.Second)

	select {
	case res := <-done:
		assert.Equal(t, 1, res.Deleted)
		assert.Equal(t, 2, res.Iterations)
	case <-time.After(2 * time.Second):
		t.Fatal("prune did not finish after settle delay elapsed")
	}
}
