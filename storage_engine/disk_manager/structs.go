package diskmanager

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// ############################################# FILE DESCRIPTOR ###########################################

type PageKey struct {
	FileID   uint32
	LocalNum int64
}

// FileDescriptor represents an open container file managed by the disk manager
type FileDescriptor struct {
	FileID     uint32
	FilePath   string
	File       *os.File
	NextPageID int64 // Next available page ID within this file
	Locked     bool  // holds an exclusive flock on the file
	mu         sync.RWMutex
}

// ############################################# DISK MANAGER #############################################

// DiskManager manages all disk I/O operations and file handles
type DiskManager struct {
	files         map[uint32]*FileDescriptor // fileID -> file descriptor
	globalPageMap map[int64]uint32           // globalPageID -> fileID mapping
	localToGlobal map[PageKey]int64          // (fileID, localNum) → globalPageID
	mu            sync.RWMutex

	// clean page images keyed by global page id, read-through and
	// write-through; nil when disabled
	cache     *ristretto.Cache[int64, []byte]
	lockFiles bool
	logger    *zap.Logger

	reads        atomic.Int64
	writes       atomic.Int64
	cacheHits    atomic.Int64
	bytesWritten atomic.Int64
}

// Options configures a DiskManager.
type Options struct {
	CacheBytes int64 // page image cache budget, 0 disables the cache
	LockFiles  bool  // take an exclusive flock on every opened container
	Logger     *zap.Logger
}

// DiskStats is a snapshot of I/O counters.
type DiskStats struct {
	Reads        int64
	Writes       int64
	CacheHits    int64
	BytesWritten int64
	OpenFiles    int
	TotalPages   int64
}
