package container

import (
	"DaemonIndex/storage_engine/bufferpool"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	"DaemonIndex/storage_engine/page"
	"DaemonIndex/types"
	"sync"

	"go.uber.org/zap"
)

// LogWriter is the part of the WAL a container writes page changes to.
type LogWriter interface {
	AppendOperation(op *types.Operation) (uint64, error)
}

// Container is one index file: an arena of pages addressed by local page
// number. Pages are only touched through a PageHandle, which owns the page
// latch until Release.
type Container struct {
	fileID      uint32
	bufferPool  *bufferpool.BufferPool
	diskManager *diskmanager.DiskManager
	wal         LogWriter
	logger      *zap.Logger

	allocMu sync.Mutex
}

// PageHandle is a latched, pinned page. Release unlatches and unpins it and
// may be called any number of times.
type PageHandle struct {
	c        *Container
	pg       *page.Page
	pageNo   int64
	dirty    bool
	released bool
}
