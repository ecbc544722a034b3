package bufferpool

import (
	"fmt"

	"DaemonIndex/storage_engine/page"

	"github.com/dustin/go-humanize"
)

// GetStats returns current buffer pool statistics
func (bp *BufferPool) GetStats() BufferPoolStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	stats := BufferPoolStats{
		TotalPages: len(bp.pages),
		Capacity:   bp.capacity,
		Hits:       bp.hits,
		Misses:     bp.misses,
		Evictions:  bp.evictions,
	}
	if total := bp.hits + bp.misses; total > 0 {
		stats.HitRate = float64(bp.hits) / float64(total)
	}

	for _, page := range bp.pages {
		page.RLock()
		if page.PinCount > 0 {
			stats.PinnedPages++
		}
		if page.IsDirty {
			stats.DirtyPages++
		}
		page.RUnlock()
	}

	return stats
}

func (s BufferPoolStats) String() string {
	return fmt.Sprintf("pages=%d/%d (%s) pinned=%d dirty=%d hits=%d misses=%d evictions=%d hitRate=%.2f",
		s.TotalPages, s.Capacity, humanize.IBytes(uint64(s.TotalPages)*page.PageSize),
		s.PinnedPages, s.DirtyPages, s.Hits, s.Misses, s.Evictions, s.HitRate)
}

// Size returns the current number of pages in the buffer pool
func (bp *BufferPool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pages)
}

// GetPage returns a cached frame without loading it, or nil.
func (bp *BufferPool) GetPage(pageID int64) *page.Page {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.pages[pageID]
}

// LatchedPages counts frames whose latch is currently held. Used by tests
// to check that operations release every latch they take.
func (bp *BufferPool) LatchedPages() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	n := 0
	for _, pg := range bp.pages {
		if pg.IsLatched() {
			n++
		}
	}
	return n
}
