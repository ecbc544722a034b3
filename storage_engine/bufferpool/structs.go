package bufferpool

import (
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	"DaemonIndex/storage_engine/page"
	"sync"

	"go.uber.org/zap"
)

// ############################################# BUFFER POOL #############################################

// BufferPool manages cached index pages in memory with LRU eviction
type BufferPool struct {
	pages       map[int64]*page.Page // pageID -> Page
	capacity    int
	diskManager *diskmanager.DiskManager
	walManager  WALFlusher
	accessOrder []int64 // LRU tracking: most recently used at end
	logger      *zap.Logger
	mu          sync.Mutex

	hits      int64
	misses    int64
	evictions int64
}

// Stats returns buffer pool statistics
type BufferPoolStats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
	Hits        int64
	Misses      int64
	Evictions   int64
	HitRate     float64
}

// small interface so bufferpool doesn't import the whole wal package
type WALFlusher interface {
	GetFlushedLSN() uint64
	Sync() error
}
