package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tanq16/hlsget/internal/store"
	"github.com/tanq16/hlsget/internal/types"
)

// countingStore records how often each id is written.
type countingStore struct {
	*store.Memory
	mu      sync.Mutex
	upserts map[int64]int
	fail    bool
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory(), upserts: make(map[int64]int)}
}

func (c *countingStore) Upsert(ctx context.Context, job types.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("disk full")
	}
	c.upserts[job.ID]++
	return c.Memory.Upsert(ctx, job)
}

func (c *countingStore) count(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upserts[id]
}

func newTracker(t *testing.T, st store.Store) *Tracker {
	t.Helper()
	tr, err := New(context.Background(), st, Options{FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestSeedFromStore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	st.Upsert(ctx, types.Job{ID: 1, Status: types.StatusInProgress})
	st.Upsert(ctx, types.Job{ID: 2, Status: types.StatusPausedNoNetwork})

	tr := newTracker(t, st)
	snap := tr.Snapshot()
	if len(snap) != 2 || snap[0].ID != 2 || snap[1].ID != 1 {
		t.Fatalf("expected seeded jobs [2 1], got %+v", snap)
	}
}

func TestAddJobIdempotent(t *testing.T) {
	st := newCountingStore()
	tr := newTracker(t, st)
	ctx := context.Background()

	added, err := tr.AddJob(ctx, types.Job{ID: 9, FileName: "first.ts"})
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = tr.AddJob(ctx, types.Job{ID: 9, FileName: "second.ts"})
	if err != nil || added {
		t.Fatalf("second add should be a no-op: added=%v err=%v", added, err)
	}
	job, _ := tr.Get(9)
	if job.FileName != "first.ts" {
		t.Errorf("existing job was overwritten: %q", job.FileName)
	}
	if n := st.count(9); n != 1 {
		t.Errorf("expected 1 store write, got %d", n)
	}
}

func TestAddJobStoreFailureRollsBack(t *testing.T) {
	st := newCountingStore()
	st.fail = true
	tr := newTracker(t, st)
	if _, err := tr.AddJob(context.Background(), types.Job{ID: 3}); err == nil {
		t.Fatal("expected error from failing store")
	}
	if _, ok := tr.Get(3); ok {
		t.Error("job should not stay tracked after failed persist")
	}
}

func TestUpdateProgressMonotonic(t *testing.T) {
	tr := newTracker(t, store.NewMemory())
	tr.AddJob(context.Background(), types.Job{ID: 1})
	var last uint64
	for _, d := range []uint64{0, 100, 250, 250, 900, 1000} {
		if err := tr.UpdateProgress(1, d, 1000); err != nil {
			t.Fatal(err)
		}
		job, _ := tr.Get(1)
		if job.DownloadedBytes < last {
			t.Fatalf("progress decreased from %d to %d", last, job.DownloadedBytes)
		}
		if job.DownloadedBytes > job.TotalBytes {
			t.Fatalf("downloaded %d exceeds total %d", job.DownloadedBytes, job.TotalBytes)
		}
		last = job.DownloadedBytes
	}
	tr.UpdateProgress(1, 1200, 1000)
	job, _ := tr.Get(1)
	if job.TotalBytes != 1200 {
		t.Errorf("expected total clamped up to 1200, got %d", job.TotalBytes)
	}
}

func TestUpdateUnknownJob(t *testing.T) {
	tr := newTracker(t, store.NewMemory())
	if err := tr.UpdateStatus(42, types.StatusFailed); !errors.Is(err, types.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSubscribeGetsLatest(t *testing.T) {
	tr := newTracker(t, store.NewMemory())
	tr.AddJob(context.Background(), types.Job{ID: 1})
	ch, cancel := tr.Subscribe()
	defer cancel()

	for i := uint64(1); i <= 5; i++ {
		tr.UpdateProgress(1, i*10, 100)
	}
	snap := <-ch
	if len(snap) != 1 || snap[0].DownloadedBytes != 50 {
		t.Fatalf("expected latest snapshot with 50 bytes, got %+v", snap)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected no queued snapshot, got %+v", extra)
	default:
	}
}

func TestFlushWritesOnlyChanged(t *testing.T) {
	st := newCountingStore()
	tr := newTracker(t, st)
	ctx := context.Background()
	tr.AddJob(ctx, types.Job{ID: 1})
	tr.AddJob(ctx, types.Job{ID: 2})

	tr.UpdateProgress(1, 10, 100)
	if err := tr.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if st.count(1) != 2 || st.count(2) != 1 {
		t.Fatalf("expected writes {1:2, 2:1}, got {1:%d, 2:%d}", st.count(1), st.count(2))
	}
	tr.Flush(ctx)
	if st.count(1) != 2 {
		t.Errorf("unchanged job written again")
	}
	stored, _ := st.Get(ctx, 1)
	if stored.DownloadedBytes != 10 {
		t.Errorf("store holds %d bytes, expected 10", stored.DownloadedBytes)
	}
}

func TestFlushPersistsCursorOnlyChange(t *testing.T) {
	st := newCountingStore()
	tr := newTracker(t, st)
	ctx := context.Background()
	tr.AddJob(ctx, types.Job{ID: 1, Status: types.StatusInProgress})
	tr.UpdateProgress(1, 400, 1000)
	tr.Flush(ctx)
	before := st.count(1)

	cursor := types.Cursor{BytesOnDisk: 400, CompletedSegments: 3}
	if err := tr.SetCursor(1, cursor); err != nil {
		t.Fatal(err)
	}
	if err := tr.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if st.count(1) != before+1 {
		t.Fatalf("cursor change not flushed: %d writes, expected %d", st.count(1), before+1)
	}
	stored, _ := st.Get(ctx, 1)
	if stored.Cursor != cursor {
		t.Errorf("store holds cursor %+v, expected %+v", stored.Cursor, cursor)
	}
}

func TestFlushRetriesAfterFailure(t *testing.T) {
	st := newCountingStore()
	tr := newTracker(t, st)
	ctx := context.Background()
	tr.AddJob(ctx, types.Job{ID: 1})
	tr.UpdateStatus(1, types.StatusSucceeded)

	st.mu.Lock()
	st.fail = true
	st.mu.Unlock()
	if err := tr.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	st.mu.Lock()
	st.fail = false
	st.mu.Unlock()
	if err := tr.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	stored, _ := st.Get(ctx, 1)
	if stored.Status != types.StatusSucceeded {
		t.Errorf("expected succeeded in store after retry, got %v", stored.Status)
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st)
	tr.interval = time.Hour
	tr.AddJob(context.Background(), types.Job{ID: 1})
	tr.UpdateStatus(1, types.StatusPausedByUser)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	stored, _ := st.Get(context.Background(), 1)
	if stored.Status != types.StatusPausedByUser {
		t.Errorf("expected final flush to persist paused status, got %v", stored.Status)
	}
}

func TestRemoveJob(t *testing.T) {
	st := store.NewMemory()
	tr := newTracker(t, st)
	ctx := context.Background()
	tr.AddJob(ctx, types.Job{ID: 1})
	if err := tr.RemoveJob(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Get(1); ok {
		t.Error("job still tracked")
	}
	if _, err := st.Get(ctx, 1); !errors.Is(err, types.ErrJobNotFound) {
		t.Error("job still stored")
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	tr := newTracker(t, store.NewMemory())
	tr.AddJob(context.Background(), types.Job{ID: 1, Status: types.StatusInProgress})
	tr.UpdateStatus(1, types.StatusPausedByUser)
	swapped, err := tr.CompareAndSetStatus(1, types.StatusInProgress, types.StatusFailed)
	if err != nil || swapped {
		t.Fatalf("expected no swap from paused job: swapped=%v err=%v", swapped, err)
	}
	if job, _ := tr.Get(1); job.Status != types.StatusPausedByUser {
		t.Errorf("status changed to %v", job.Status)
	}
	swapped, _ = tr.CompareAndSetStatus(1, types.StatusPausedByUser, types.StatusInProgress)
	if !swapped {
		t.Error("expected swap from paused to in-progress")
	}
}
