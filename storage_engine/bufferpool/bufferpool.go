package bufferpool

import (
	"DaemonIndex/logging"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	"DaemonIndex/storage_engine/page"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file is the main file of the bufferpool
The buffer pool works on LRU based caching mechanism
and holds access to disk manager for flushing the pages in the cache onto the disk
similarly if page not found in the cache, disk manager loads the page from the disk and adds in the cache for future access

Pages are identified by globalPageID.

A page is never written ahead of its log: before a dirty page whose LSN is
beyond the WAL's flushed LSN goes to disk, the WAL is forced.
Pinned pages are never evicted; a latched page is always pinned.
*/

var ErrAllPinned = errors.New("all pages are pinned, cannot evict")

// NewBufferPool creates a new buffer pool with the given capacity
func NewBufferPool(capacity int, diskManager *diskmanager.DiskManager, logger *zap.Logger) *BufferPool {
	return &BufferPool{
		pages:       make(map[int64]*page.Page, capacity),
		capacity:    capacity,
		diskManager: diskManager,
		accessOrder: make([]int64, 0, capacity),
		logger:      logging.OrNop(logger).Named("bufferpool"),
	}
}

func (bp *BufferPool) SetWALManager(wal WALFlusher) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.walManager = wal
}

// FetchPage retrieves a page from the buffer pool, loading from disk if necessary
// Returns the page with pin count incremented
func (bp *BufferPool) FetchPage(pageID int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	// Check if page is in buffer pool
	if pg, exists := bp.pages[pageID]; exists {
		bp.hits++
		bp.updateAccessOrder(pageID)
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		return pg, nil
	}

	bp.misses++
	bp.logger.Debug("miss, loading from disk", zap.Int64("pageID", pageID))
	if bp.diskManager == nil {
		return nil, errors.New("disk manager not set")
	}

	pg, err := bp.diskManager.ReadPage(pageID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read page %d from disk", pageID)
	}

	// Add to buffer pool (may trigger eviction)
	if err := bp.addPage(pg); err != nil {
		return nil, errors.Wrap(err, "failed to add page to buffer pool")
	}

	pg.Lock()
	pg.PinCount++
	pg.Unlock()

	return pg, nil
}

// NewPage asks the DiskManager for the next available page ID for the given
// file, constructs a blank Page struct entirely in RAM, marks it dirty so
// the BufferPool will eventually flush it, and pins it for the caller.
func (bp *BufferPool) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.diskManager == nil {
		return nil, errors.New("disk manager not set")
	}

	// make room before allocating so a full pool does not leak a page id
	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLRU(); err != nil {
			return nil, errors.Wrap(err, "failed to add new page to buffer pool")
		}
	}

	pageID, err := bp.diskManager.AllocatePage(fileID, pageType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate page")
	}

	pg := diskmanager.NewPage(pageID, fileID, pageType)
	pg.IsDirty = true // New pages are dirty by default
	pg.PinCount = 1

	if err := bp.addPage(pg); err != nil {
		return nil, errors.Wrap(err, "failed to add new page to buffer pool")
	}

	return pg, nil
}

// UnpinPage decrements the pin count for a page
func (bp *BufferPool) UnpinPage(pageID int64, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	page, exists := bp.pages[pageID]
	if !exists {
		return errors.Newf("page %d not in buffer pool", pageID)
	}

	page.Lock()
	defer page.Unlock()

	if page.PinCount > 0 {
		page.PinCount--
	}

	if isDirty {
		page.IsDirty = true
	}

	return nil
}

// FlushPage writes a specific page to disk if dirty. The page is latched
// for the duration of the write; the caller must not hold its latch.
func (bp *BufferPool) FlushPage(pageID int64) error {
	bp.mu.Lock()
	pg, exists := bp.pages[pageID]
	bp.mu.Unlock()

	if !exists {
		return errors.Newf("page %d not in buffer pool", pageID)
	}

	pg.Latch()
	defer pg.Unlatch()
	return bp.writeIfDirty(pg)
}

// FlushAllPages writes all dirty pages to disk. The caller must not hold
// any page latch.
func (bp *BufferPool) FlushAllPages() error {
	return bp.flushMatching(func(*page.Page) bool { return true })
}

// FlushFile writes the dirty pages of one container.
func (bp *BufferPool) FlushFile(fileID uint32) error {
	return bp.flushMatching(func(pg *page.Page) bool { return pg.FileID == fileID })
}

func (bp *BufferPool) flushMatching(match func(*page.Page) bool) error {
	bp.mu.Lock()
	if bp.diskManager == nil {
		bp.mu.Unlock()
		return errors.New("disk manager not set")
	}
	snapshot := make([]*page.Page, 0, len(bp.pages))
	for _, pg := range bp.pages {
		if match(pg) {
			snapshot = append(snapshot, pg)
		}
	}
	bp.mu.Unlock()

	flushed := 0
	for _, pg := range snapshot {
		pg.Latch()
		wrote, err := bp.writeIfDirtyCounted(pg)
		pg.Unlatch()
		if err != nil {
			return err
		}
		if wrote {
			flushed++
		}
	}
	bp.logger.Debug("flushed pages", zap.Int("flushed", flushed), zap.Int("examined", len(snapshot)))
	return nil
}

func (bp *BufferPool) writeIfDirty(pg *page.Page) error {
	_, err := bp.writeIfDirtyCounted(pg)
	return err
}

func (bp *BufferPool) writeIfDirtyCounted(pg *page.Page) (bool, error) {
	pg.Lock()
	defer pg.Unlock()

	if !pg.IsDirty {
		return false, nil
	}
	if err := bp.forceLogFor(pg); err != nil {
		return false, err
	}
	if err := bp.diskManager.WritePage(pg); err != nil {
		return false, errors.Wrapf(err, "failed to flush page %d", pg.ID)
	}
	pg.IsDirty = false
	return true, nil
}

// forceLogFor makes sure the log covers the page before it is written.
func (bp *BufferPool) forceLogFor(pg *page.Page) error {
	if bp.walManager == nil {
		return nil
	}
	flushedLSN := bp.walManager.GetFlushedLSN()
	if pg.LSN <= flushedLSN {
		return nil
	}
	bp.logger.Debug("forcing log before page write",
		zap.Int64("pageID", pg.ID), zap.Uint64("pageLSN", pg.LSN), zap.Uint64("flushedLSN", flushedLSN))
	if err := bp.walManager.Sync(); err != nil {
		return errors.Wrapf(err, "cannot flush page %d: log force failed", pg.ID)
	}
	return nil
}

// addPage adds a page to the buffer pool, evicting if necessary
// Assumes lock is already held
func (bp *BufferPool) addPage(page *page.Page) error {
	// If page already in pool, just update access order
	if _, exists := bp.pages[page.ID]; exists {
		bp.updateAccessOrder(page.ID)
		return nil
	}

	// If at capacity, evict LRU page
	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLRU(); err != nil {
			return errors.Wrap(err, "failed to evict page")
		}
	}

	bp.pages[page.ID] = page
	bp.updateAccessOrder(page.ID)

	return nil
}

// evictLRU evicts the least recently used unpinned page
// Assumes lock is already held
func (bp *BufferPool) evictLRU() error {
	for i := 0; i < len(bp.accessOrder); i++ {
		pageID := bp.accessOrder[i]
		page, exists := bp.pages[pageID]

		if !exists {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			i--
			continue
		}

		page.Lock()
		if page.PinCount > 0 {
			page.Unlock()
			continue
		}

		if page.IsDirty && bp.diskManager != nil {
			if err := bp.forceLogFor(page); err != nil {
				page.Unlock()
				return err
			}
			if err := bp.diskManager.WritePage(page); err != nil {
				page.Unlock()
				return errors.Wrapf(err, "failed to write page %d during eviction", pageID)
			}
			page.IsDirty = false
		}
		page.Unlock()

		bp.logger.Debug("evict", zap.Int64("pageID", pageID))
		bp.evictions++
		delete(bp.pages, pageID)
		bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
		return nil
	}

	return ErrAllPinned
}

// updateAccessOrder moves a page to the end of access order (most recently used)
// Assumes lock is already held
func (bp *BufferPool) updateAccessOrder(pageID int64) {
	for i, id := range bp.accessOrder {
		if id == pageID {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			break
		}
	}
	bp.accessOrder = append(bp.accessOrder, pageID)
}

// DropFilePages discards, without writing, every cached page of fileID
// whose local page number is >= fromLocal. Used before truncating a file
// and when an index is dropped.
func (bp *BufferPool) DropFilePages(fileID uint32, fromLocal int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for pageID, pg := range bp.pages {
		if pg.FileID != fileID || pageID&0xFFFFFFFF < fromLocal {
			continue
		}
		pg.Lock()
		pinned := pg.PinCount > 0
		pg.Unlock()
		if pinned {
			return errors.Newf("cannot drop pinned page %d", pageID)
		}
		delete(bp.pages, pageID)
	}

	kept := bp.accessOrder[:0]
	for _, id := range bp.accessOrder {
		if _, ok := bp.pages[id]; ok {
			kept = append(kept, id)
		}
	}
	bp.accessOrder = kept
	return nil
}
