package wal_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

/*
A segment is one append-only log file, wal_<id as 16 hex digits>.log.
Append only hands bytes to the OS; Sync (fdatasync) makes everything
appended so far durable. Recovery truncates a torn tail off the last
segment so later appends directly follow the last valid record.
*/

func segmentFileName(segmentID uint64) string {
	return fmt.Sprintf("wal_%016x.log", segmentID)
}

// parseSegmentFileName returns the id of a segment file, or false when name
// is not one.
func parseSegmentFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, "wal_") || !strings.HasSuffix(name, ".log") {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "wal_"), ".log"), 16, 64)
	return id, err == nil
}

func InitializeWALSegment(segmentId uint64, basePath string) *WALSegment {
	return &WALSegment{
		SegmentId: segmentId,
		FilePath:  filepath.Join(basePath, segmentFileName(segmentId)),
	}
}

func (ws *WALSegment) Open() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		return nil
	}

	file, err := os.OpenFile(ws.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to open segment %s", ws.FilePath)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to stat segment %s", ws.FilePath)
	}

	ws.File = file
	ws.Size = stat.Size()
	return nil
}

// Append writes one encoded record and returns the bytes written.
func (ws *WALSegment) Append(data []byte) (int, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return 0, errors.Newf("segment %d not open", ws.SegmentId)
	}
	n, err := ws.File.Write(data)
	ws.Size += int64(n)
	if err != nil {
		return n, errors.Wrapf(err, "failed to append to segment %d", ws.SegmentId)
	}
	return n, nil
}

// Truncate cuts the segment back to size bytes and syncs it.
func (ws *WALSegment) Truncate(size int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return errors.Newf("segment %d not open", ws.SegmentId)
	}
	if err := ws.File.Truncate(size); err != nil {
		return errors.Wrapf(err, "failed to truncate segment %d", ws.SegmentId)
	}
	ws.Size = size
	return unix.Fdatasync(int(ws.File.Fd()))
}

func (ws *WALSegment) Sync() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return errors.Newf("segment %d not open", ws.SegmentId)
	}
	return unix.Fdatasync(int(ws.File.Fd()))
}

func (ws *WALSegment) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return nil
	}
	err := ws.File.Close()
	ws.File = nil
	return err
}

// IsFull reports whether the segment reached SegmentSize.
func (ws *WALSegment) IsFull() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.Size >= SegmentSize
}
