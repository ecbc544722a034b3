package container

import (
	"DaemonIndex/logging"
	"DaemonIndex/storage_engine/bufferpool"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	// ErrWouldWait is returned by the NOWAIT page getters when the latch is
	// held by somebody else.
	ErrWouldWait   = errors.New("page latch not available without waiting")
	ErrCorruptPage = errors.New("corrupt index page")
)

func Open(fileID uint32, bp *bufferpool.BufferPool, dm *diskmanager.DiskManager, wal LogWriter, logger *zap.Logger) *Container {
	return &Container{
		fileID:      fileID,
		bufferPool:  bp,
		diskManager: dm,
		wal:         wal,
		logger:      logging.OrNop(logger).Named("container").With(zap.Uint32("fileID", fileID)),
	}
}

func (c *Container) FileID() uint32 {
	return c.fileID
}

// NumPages is the number of pages allocated in the file.
func (c *Container) NumPages() (int64, error) {
	return c.diskManager.NumPages(c.fileID)
}

// GetPage pins pageNo and waits for its latch.
func (c *Container) GetPage(pageNo int64) (*PageHandle, error) {
	pg, err := c.bufferPool.FetchPage(c.diskManager.GetGlobalPageID(c.fileID, pageNo))
	if err != nil {
		return nil, errors.Wrapf(err, "container %d: get page %d", c.fileID, pageNo)
	}
	pg.Latch()
	h := &PageHandle{c: c, pg: pg, pageNo: pageNo}
	if err := h.verify(); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

// GetPageNoWait is GetPage that gives up with ErrWouldWait instead of
// waiting for the latch.
func (c *Container) GetPageNoWait(pageNo int64) (*PageHandle, error) {
	pg, err := c.bufferPool.FetchPage(c.diskManager.GetGlobalPageID(c.fileID, pageNo))
	if err != nil {
		return nil, errors.Wrapf(err, "container %d: get page %d", c.fileID, pageNo)
	}
	if !pg.TryLatch() {
		c.bufferPool.UnpinPage(pg.ID, false)
		return nil, ErrWouldWait
	}
	h := &PageHandle{c: c, pg: pg, pageNo: pageNo}
	if err := h.verify(); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

// AddPage allocates a new, latched, empty index page. The allocation is
// logged under tx; a nil tx means the caller logs the work itself.
func (c *Container) AddPage(tx *txn.Transaction) (*PageHandle, error) {
	c.allocMu.Lock()
	pg, err := c.bufferPool.NewPage(c.fileID, types.PageTypeIndex)
	c.allocMu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "container %d: add page", c.fileID)
	}

	// fresh frames are not reachable by anyone else yet
	pg.Latch()
	pageNo := c.diskManager.GetLocalPageID(pg.ID)
	h := &PageHandle{c: c, pg: pg, pageNo: pageNo}

	h.beforeChange(tx)
	InitIndexPage(pg, pageNo)
	if err := h.logged(tx, &types.Operation{Type: types.OpPageAllocate}); err != nil {
		h.Release()
		return nil, err
	}
	c.logger.Debug("page added", zap.Int64("pageNo", pageNo))
	return h, nil
}

// Truncate drops every page from keep on, without writing them. No page at
// or beyond keep may be pinned.
func (c *Container) Truncate(keep int64) error {
	c.allocMu.Lock()
	defer c.allocMu.Unlock()

	if err := c.bufferPool.DropFilePages(c.fileID, keep); err != nil {
		return errors.Wrapf(err, "container %d: truncate", c.fileID)
	}
	return c.diskManager.TruncateFile(c.fileID, keep)
}

// Flush writes the container's dirty pages and syncs the file. The caller
// must hold no latch on the container's pages.
func (c *Container) Flush() error {
	if err := c.bufferPool.FlushFile(c.fileID); err != nil {
		return errors.Wrapf(err, "container %d: flush", c.fileID)
	}
	return c.diskManager.SyncFile(c.fileID)
}

// LogOperation appends a container-level record, such as the single
// record written for a bulk load.
func (c *Container) LogOperation(tx *txn.Transaction, op *types.Operation) (uint64, error) {
	if c.wal == nil {
		return 0, nil
	}
	op.FileID = c.fileID
	if tx != nil {
		op.TxnID = tx.ID
		op.Internal = tx.Internal
	}
	lsn, err := c.wal.AppendOperation(op)
	if err != nil {
		return 0, errors.Wrapf(err, "container %d: log %s", c.fileID, op.Type)
	}
	return lsn, nil
}
