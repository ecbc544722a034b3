package bufferpool

import (
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	"DaemonIndex/types"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

type fakeWAL struct {
	flushed uint64
	current uint64
	syncs   int
}

func (w *fakeWAL) GetFlushedLSN() uint64 { return w.flushed }
func (w *fakeWAL) Sync() error {
	w.syncs++
	w.flushed = w.current
	return nil
}

func newTestPool(t *testing.T, capacity int) (*BufferPool, *diskmanager.DiskManager) {
	t.Helper()
	dm, err := diskmanager.NewDiskManager(diskmanager.Options{})
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	if _, err := dm.OpenFileWithID(filepath.Join(t.TempDir(), "bp.idx"), 1); err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	t.Cleanup(func() { dm.CloseAll() })
	return NewBufferPool(capacity, dm, nil), dm
}

func TestBufferPoolPinAndEvict(t *testing.T) {
	bp, _ := newTestPool(t, 2)

	p1, err := bp.NewPage(1, types.PageTypeIndex)
	if err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}
	p1.Data[100] = 7
	p2, err := bp.NewPage(1, types.PageTypeIndex)
	if err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}

	// both pinned: a third page cannot get a frame
	if _, err := bp.NewPage(1, types.PageTypeIndex); !errors.Is(err, ErrAllPinned) {
		t.Fatalf("expected ErrAllPinned, got %v", err)
	}

	if err := bp.UnpinPage(p1.ID, true); err != nil {
		t.Fatalf("Failed to unpin: %v", err)
	}
	p3, err := bp.NewPage(1, types.PageTypeIndex)
	if err != nil {
		t.Fatalf("Failed to create page after unpin: %v", err)
	}
	if bp.GetPage(p1.ID) != nil {
		t.Errorf("expected page %d to be evicted", p1.ID)
	}

	// reload the evicted dirty page from disk
	bp.UnpinPage(p2.ID, false)
	bp.UnpinPage(p3.ID, false)
	again, err := bp.FetchPage(p1.ID)
	if err != nil {
		t.Fatalf("Failed to fetch evicted page: %v", err)
	}
	if again.Data[100] != 7 {
		t.Errorf("data mismatch after eviction: expected 7, got %d", again.Data[100])
	}

	stats := bp.GetStats()
	if stats.Evictions < 2 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %s", stats)
	}
}

func TestFlushForcesLog(t *testing.T) {
	bp, dm := newTestPool(t, 4)
	wal := &fakeWAL{current: 10}
	bp.SetWALManager(wal)

	pg, err := bp.NewPage(1, types.PageTypeIndex)
	if err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}
	pg.LSN = 10
	bp.UnpinPage(pg.ID, true)

	if err := bp.FlushAllPages(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if wal.syncs != 1 {
		t.Errorf("expected one log force, got %d", wal.syncs)
	}
	if dm.Stats().Writes != 1 {
		t.Errorf("expected one page write, got %d", dm.Stats().Writes)
	}
	if bp.GetStats().DirtyPages != 0 {
		t.Errorf("expected no dirty pages after flush")
	}
}

func TestDropFilePages(t *testing.T) {
	bp, _ := newTestPool(t, 8)
	var ids []int64
	for i := 0; i < 3; i++ {
		pg, err := bp.NewPage(1, types.PageTypeIndex)
		if err != nil {
			t.Fatalf("Failed to create page: %v", err)
		}
		ids = append(ids, pg.ID)
		bp.UnpinPage(pg.ID, true)
	}
	if err := bp.DropFilePages(1, 1); err != nil {
		t.Fatalf("Failed to drop pages: %v", err)
	}
	if bp.Size() != 1 || bp.GetPage(ids[0]) == nil {
		t.Errorf("expected only page 0 to remain, size=%d", bp.Size())
	}
}
