package diskmanager

import (
	"DaemonIndex/logging"
	"DaemonIndex/storage_engine/page"
	"DaemonIndex/types"
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

/*
This is main file for disk manager
It owns:
File descriptors (os.File) of every index container
Reading/writing raw bytes at specific offsets (ReadAt, WriteAt)
Page allocation (tracking NextPageID per file)
The globalPageID ↔ (fileID, localPage) mapping
Page checksums and the clean page image cache

Page ID encoding:
globalPageID = int64(fileID) << 32 | localPageNum
This makes global IDs deterministic, same result on every restart regardless of file load order.

Bufferpool on Page hits return the pages, but if page miss occurs then it is disk manager which creates/writes the page at the offset
*/

var (
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	ErrFileLocked       = errors.New("container file is locked by another process")
)

func NewDiskManager(opts Options) (*DiskManager, error) {
	dm := &DiskManager{
		files:         make(map[uint32]*FileDescriptor),
		globalPageMap: make(map[int64]uint32),
		localToGlobal: make(map[PageKey]int64),
		lockFiles:     opts.LockFiles,
		logger:        logging.OrNop(opts.Logger).Named("disk"),
	}

	if opts.CacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
			NumCounters: max(opts.CacheBytes/page.PageSize*10, 1024),
			MaxCost:     opts.CacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create page image cache")
		}
		dm.cache = cache
	}

	return dm, nil
}

func NewPage(pageID int64, fileID uint32, pageType types.PageType) *page.Page {
	return &page.Page{
		ID:       pageID,
		FileID:   fileID,
		Data:     make([]byte, page.PageSize),
		IsDirty:  false,
		PinCount: 0,
		PageType: pageType,
	}
}

// OpenFileWithID opens (creating if needed) a container file under the
// catalog's stable file id.
func (dm *DiskManager) OpenFileWithID(filePath string, catalogFileID uint32) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	// Already open, return existing.
	for id, fd := range dm.files {
		if fd.FilePath == filePath {
			return id, nil
		}
	}
	if _, taken := dm.files[catalogFileID]; taken {
		return 0, errors.Newf("file id %d already in use", catalogFileID)
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open file %s", filePath)
	}

	locked := false
	if dm.lockFiles {
		if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			file.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return 0, errors.Wrapf(ErrFileLocked, "%s", filePath)
			}
			return 0, errors.Wrapf(err, "failed to lock file %s", filePath)
		}
		locked = true
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, errors.Wrapf(err, "failed to stat file %s", filePath)
	}

	numPages := stat.Size() / int64(page.PageSize)

	fd := &FileDescriptor{
		FileID:     catalogFileID,
		FilePath:   filePath,
		File:       file,
		NextPageID: numPages,
		Locked:     locked,
	}
	dm.files[catalogFileID] = fd

	for local := int64(0); local < numPages; local++ {
		dm.registerLocked(catalogFileID, local)
	}

	dm.logger.Debug("opened container",
		zap.String("path", filePath),
		zap.Uint32("fileID", catalogFileID),
		zap.Int64("pages", numPages))

	return catalogFileID, nil
}

// ReadPage reads a page from the image cache or from disk, verifying its
// checksum.
func (dm *DiskManager) ReadPage(globalPageID int64) (*page.Page, error) {
	dm.mu.RLock()
	fileID, exists := dm.globalPageMap[globalPageID]
	fd, open := dm.files[fileID]
	dm.mu.RUnlock()

	if !exists {
		return nil, errors.Newf("page %d not found in global page map", globalPageID)
	}
	if !open {
		return nil, errors.Newf("file %d not found", fileID)
	}

	pg := NewPage(globalPageID, fileID, types.PageTypeUnknown)

	if dm.cache != nil {
		if img, ok := dm.cache.Get(globalPageID); ok && len(img) == page.PageSize {
			copy(pg.Data, img)
			dm.cacheHits.Add(1)
			restoreHeader(pg)
			return pg, nil
		}
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()

	if fd.File == nil {
		return nil, errors.Newf("file %d is closed", fileID)
	}

	// Calculate local page offset within the file
	localPageID := dm.getLocalPageID(globalPageID)
	offset := localPageID * int64(page.PageSize)

	n, err := fd.File.ReadAt(pg.Data, offset)
	if err != nil && n == 0 {
		// allocated but never flushed: a blank page
		if localPageID < fd.NextPageID {
			return pg, nil
		}
		return nil, errors.Wrapf(err, "failed to read page %d from file %d", localPageID, fileID)
	}
	dm.reads.Add(1)

	// Pad with zeros if partial read
	for i := n; i < page.PageSize; i++ {
		pg.Data[i] = 0
	}

	if !isZeroPage(pg.Data) {
		if want, got := storedChecksum(pg.Data), pageChecksum(pg.Data); want != got {
			return nil, errors.Wrapf(ErrChecksumMismatch,
				"page %d of file %d: stored %x computed %x", localPageID, fileID, want, got)
		}
	}

	restoreHeader(pg)
	dm.cachePut(globalPageID, pg.Data)
	return pg, nil
}

// WritePage stamps the common header and checksum and writes the page to disk
func (dm *DiskManager) WritePage(pg *page.Page) error {
	dm.mu.RLock()
	fd, exists := dm.files[pg.FileID]
	dm.mu.RUnlock()

	if !exists {
		return errors.Newf("file %d not found", pg.FileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return errors.Newf("file %d is closed", pg.FileID)
	}

	if len(pg.Data) != page.PageSize {
		return errors.Newf("page data size %d does not match page size %d", len(pg.Data), page.PageSize)
	}

	stampHeader(pg)

	// Calculate local page offset within the file
	localPageID := dm.getLocalPageID(pg.ID)
	offset := localPageID * int64(page.PageSize)

	if _, err := fd.File.WriteAt(pg.Data, offset); err != nil {
		return errors.Wrapf(err, "failed to write page %d to file %d", localPageID, pg.FileID)
	}
	dm.writes.Add(1)
	dm.bytesWritten.Add(int64(len(pg.Data)))

	// Update next page ID if we wrote beyond current end
	if localPageID >= fd.NextPageID {
		fd.NextPageID = localPageID + 1
	}

	dm.cachePut(pg.ID, pg.Data)
	pg.IsDirty = false
	return nil
}

// AllocatePage reserves the next available page ID for a file and updates
// internal counters. It does NOT write anything to disk, that is the
// BufferPool's responsibility when it later flushes the dirty page.
func (dm *DiskManager) AllocatePage(fileID uint32, pageType types.PageType) (int64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return 0, errors.Newf("file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if fd.File == nil {
		return 0, errors.Newf("file %d is closed", fileID)
	}

	localPageNum := fd.NextPageID
	fd.NextPageID++

	return dm.registerLocked(fileID, localPageNum), nil
}

// TruncateFile drops every page at or beyond keepPages. Used to undo a
// failed bulk load; the buffer pool must already have dropped the frames.
func (dm *DiskManager) TruncateFile(fileID uint32, keepPages int64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return errors.Newf("file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if err := fd.File.Truncate(keepPages * int64(page.PageSize)); err != nil {
		return errors.Wrapf(err, "failed to truncate file %d", fileID)
	}
	for local := keepPages; local < fd.NextPageID; local++ {
		key := PageKey{FileID: fileID, LocalNum: local}
		if gid, ok := dm.localToGlobal[key]; ok {
			delete(dm.globalPageMap, gid)
			delete(dm.localToGlobal, key)
			if dm.cache != nil {
				dm.cache.Del(gid)
			}
		}
	}
	fd.NextPageID = keepPages
	return nil
}

func (dm *DiskManager) registerLocked(fileID uint32, localPageNum int64) int64 {
	globalPageID := int64(fileID)<<32 | localPageNum
	dm.globalPageMap[globalPageID] = fileID
	dm.localToGlobal[PageKey{FileID: fileID, LocalNum: localPageNum}] = globalPageID
	return globalPageID
}

// getLocalPageID converts a global page ID to a local page ID within a file
func (dm *DiskManager) getLocalPageID(globalPageID int64) int64 {
	return globalPageID & 0xFFFFFFFF
}

func (dm *DiskManager) GetGlobalPageID(fileID uint32, localPageNum int64) int64 {
	return int64(fileID)<<32 | localPageNum
}

func (dm *DiskManager) GetLocalPageID(globalPageID int64) int64 {
	return globalPageID & 0xFFFFFFFF
}

// NumPages returns the number of allocated pages of a file.
func (dm *DiskManager) NumPages(fileID uint32) (int64, error) {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return 0, errors.Newf("file %d not found", fileID)
	}
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	return fd.NextPageID, nil
}

// SyncFile forces one container's data to stable storage.
func (dm *DiskManager) SyncFile(fileID uint32) error {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return errors.Newf("file %d not found", fileID)
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return syncFile(fd)
}

// Sync flushes all file buffers to disk
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	for _, fd := range dm.files {
		fd.mu.Lock()
		err := syncFile(fd)
		fd.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// CloseFile syncs, unlocks and closes a specific file
func (dm *DiskManager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return errors.Newf("file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if err := dm.closeLocked(fd); err != nil {
		return err
	}
	delete(dm.files, fileID)
	return nil
}

// RemoveFile closes a file and deletes it from disk.
func (dm *DiskManager) RemoveFile(fileID uint32) error {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return errors.Newf("file %d not found", fileID)
	}
	path := fd.FilePath
	if err := dm.CloseFile(fileID); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

// CloseAll closes all open files
func (dm *DiskManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var lastErr error
	for fileID, fd := range dm.files {
		fd.mu.Lock()
		if err := dm.closeLocked(fd); err != nil {
			lastErr = err
		}
		fd.mu.Unlock()
		delete(dm.files, fileID)
	}
	if dm.cache != nil {
		dm.cache.Close()
		dm.cache = nil
	}
	return lastErr
}

func (dm *DiskManager) closeLocked(fd *FileDescriptor) error {
	if fd.File == nil {
		return nil // Already closed
	}
	if err := syncFile(fd); err != nil {
		return err
	}
	if fd.Locked {
		_ = unix.Flock(int(fd.File.Fd()), unix.LOCK_UN)
		fd.Locked = false
	}
	if err := fd.File.Close(); err != nil {
		return errors.Wrap(err, "failed to close file")
	}
	fd.File = nil

	for local := int64(0); local < fd.NextPageID; local++ {
		key := PageKey{FileID: fd.FileID, LocalNum: local}
		if gid, ok := dm.localToGlobal[key]; ok {
			delete(dm.globalPageMap, gid)
			delete(dm.localToGlobal, key)
			if dm.cache != nil {
				dm.cache.Del(gid)
			}
		}
	}
	return nil
}

// TotalPages returns the total number of pages across all files
func (dm *DiskManager) TotalPages() int64 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	total := int64(0)
	for _, fd := range dm.files {
		total += fd.NextPageID
	}
	return total
}

func syncFile(fd *FileDescriptor) error {
	if fd.File == nil {
		return nil
	}
	if err := unix.Fdatasync(int(fd.File.Fd())); err != nil {
		return errors.Wrapf(err, "failed to sync file %d", fd.FileID)
	}
	return nil
}

// stampHeader writes the in-memory header fields and the checksum.
func stampHeader(pg *page.Page) {
	binary.LittleEndian.PutUint64(pg.Data[types.PageLSNOffset:], pg.LSN)
	pg.Data[types.PageTypeOffset] = byte(pg.PageType)
	binary.LittleEndian.PutUint64(pg.Data[types.PageVersionOffset:], pg.Version())
	binary.LittleEndian.PutUint64(pg.Data[types.PageRepositionOffset:], pg.RepositionVersion())
	binary.LittleEndian.PutUint64(pg.Data[types.PageChecksumOffset:], pageChecksum(pg.Data))
}

func restoreHeader(pg *page.Page) {
	pg.LSN = binary.LittleEndian.Uint64(pg.Data[types.PageLSNOffset:])
	pg.PageType = types.PageType(pg.Data[types.PageTypeOffset])
	pg.SetVersion(binary.LittleEndian.Uint64(pg.Data[types.PageVersionOffset:]))
	pg.SetRepositionVersion(binary.LittleEndian.Uint64(pg.Data[types.PageRepositionOffset:]))
}
