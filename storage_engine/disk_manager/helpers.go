package diskmanager

import (
	"DaemonIndex/types"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
)

// pageChecksum hashes the whole page except the checksum field itself.
func pageChecksum(data []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(data[:types.PageChecksumOffset])
	_, _ = d.Write(data[types.PageChecksumOffset+8:])
	return d.Sum64()
}

func storedChecksum(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data[types.PageChecksumOffset:])
}

func isZeroPage(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func (dm *DiskManager) cachePut(globalPageID int64, data []byte) {
	if dm.cache == nil {
		return
	}
	// drop the old image first so a rejected Set can never leave it behind
	dm.cache.Del(globalPageID)
	img := make([]byte, len(data))
	copy(img, data)
	dm.cache.Set(globalPageID, img, int64(len(img)))
}

// Stats returns a snapshot of the I/O counters.
func (dm *DiskManager) Stats() DiskStats {
	dm.mu.RLock()
	open := len(dm.files)
	dm.mu.RUnlock()

	return DiskStats{
		Reads:        dm.reads.Load(),
		Writes:       dm.writes.Load(),
		CacheHits:    dm.cacheHits.Load(),
		BytesWritten: dm.bytesWritten.Load(),
		OpenFiles:    open,
		TotalPages:   dm.TotalPages(),
	}
}

func (s DiskStats) String() string {
	return fmt.Sprintf("files=%d pages=%d (%s) reads=%d cacheHits=%d writes=%d written=%s",
		s.OpenFiles, s.TotalPages, humanize.IBytes(uint64(s.TotalPages)*types.PageSize),
		s.Reads, s.CacheHits, s.Writes, humanize.IBytes(uint64(s.BytesWritten)))
}
