package wal_manager

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"slices"

	"DaemonIndex/logging"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*

WAL Segment File
────────────────────────────────────
| Record | Record | Record | ...   |
────────────────────────────────────

Each Record:
─────────────────────────────────────────────────
| LSN (8) | LEN (4) | CHECKSUM (4) | DATA (LEN) |
─────────────────────────────────────────────────

	RecordHeaderSize = 16
	SegmentSize      = 16 * 1024 * 1024

DATA is a JSON encoded types.Operation. The index layer appends one record per
page change and per transaction boundary; commit forces the log. Page LSNs
are stamped from the returned LSN so the buffer pool can force the log
before writing a page. A torn record at the tail of the last segment ends
the log.
*/

var ErrCorruptRecord = errors.New("corrupt WAL record")

func OpenWAL(directory string, logger *zap.Logger) (*WALManager, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create WAL directory %s", directory)
	}

	wal := &WALManager{
		Directory: directory,
		Segments:  make(map[uint64]*WALSegment),
		logger:    logging.OrNop(logger).Named("wal"),
	}

	// recover existing ones
	if err := wal.recoverWALEntries(); err != nil {
		return nil, err
	}

	if wal.CurrSegment == nil {
		if err := wal.createNewSegment(); err != nil {
			return nil, err
		}
	}

	return wal, nil
}

// recover existing wal entries
// updates the current lsn and current segment number
// set the segmentId to segment mapping
func (w *WALManager) recoverWALEntries() error {
	files, err := filepath.Glob(filepath.Join(w.Directory, "wal_*.log"))
	if err != nil {
		return err
	}

	var segmentIDs []uint64
	for _, file := range files {
		if segmentID, ok := parseSegmentFileName(filepath.Base(file)); ok {
			segmentIDs = append(segmentIDs, segmentID)
		}
	}

	if len(segmentIDs) == 0 {
		return nil
	}

	slices.Sort(segmentIDs)

	maxLSN := uint64(0)
	for i, segmentID := range segmentIDs {
		segment := InitializeWALSegment(segmentID, w.Directory)
		if err := segment.Open(); err != nil {
			return err
		}
		w.Segments[segmentID] = segment

		validEnd, err := scanSegment(segment.FilePath, func(lsn uint64, _ []byte) error {
			if lsn > maxLSN {
				maxLSN = lsn
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to scan segment %d", segmentID)
		}
		if validEnd < segment.Size && i == len(segmentIDs)-1 {
			w.logger.Warn("truncating torn log tail",
				zap.Uint64("segment", segmentID),
				zap.Int64("validBytes", validEnd),
				zap.Int64("size", segment.Size))
			if err := segment.Truncate(validEnd); err != nil {
				return err
			}
		}
	}

	lastSegmentID := segmentIDs[len(segmentIDs)-1]
	w.CurrSegment = w.Segments[lastSegmentID]
	w.CurrentLSN = maxLSN
	w.FlushedLSN = maxLSN

	w.logger.Info("recovered log",
		zap.Int("segments", len(segmentIDs)),
		zap.Uint64("lastLSN", maxLSN))

	return nil
}

func (w *WALManager) createNewSegment() error {
	segmentID := uint64(0)
	for id := range w.Segments {
		if id >= segmentID {
			segmentID = id + 1
		}
	}
	segment := InitializeWALSegment(segmentID, w.Directory)

	if err := segment.Open(); err != nil {
		return err
	}

	w.Segments[segmentID] = segment
	w.CurrSegment = segment
	return nil
}

// ReplayFromLSN calls applyFunc for every record with LSN >= startLSN in
// log order.
func (wm *WALManager) ReplayFromLSN(startLSN uint64, applyFunc func(lsn uint64, op *types.Operation) error) error {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	var segmentIDs []uint64
	for id := range wm.Segments {
		segmentIDs = append(segmentIDs, id)
	}
	slices.Sort(segmentIDs)

	for _, segmentID := range segmentIDs {
		segment := wm.Segments[segmentID]
		_, err := scanSegment(segment.FilePath, func(lsn uint64, data []byte) error {
			if lsn < startLSN {
				return nil
			}
			op, err := types.DecodeOperation(data)
			if err != nil {
				return errors.Wrapf(err, "failed to decode operation at LSN %d", lsn)
			}
			return applyFunc(lsn, op)
		})
		if err != nil {
			return errors.Wrapf(err, "failed to replay segment %d", segmentID)
		}
	}

	return nil
}

// scanSegment walks the records of one segment file and returns the offset
// just past the last complete record. A torn record ends the walk.
func scanSegment(path string, fn func(lsn uint64, data []byte) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var validEnd int64
	header := make([]byte, RecordHeaderSize)
	for {
		if _, err := io.ReadFull(file, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return validEnd, nil
			}
			return validEnd, err
		}

		rec := WALRecord{
			LSN:      binary.BigEndian.Uint64(header[0:8]),
			Checksum: binary.BigEndian.Uint32(header[12:16]),
		}
		rec.Data = make([]byte, binary.BigEndian.Uint32(header[8:12]))
		if _, err := io.ReadFull(file, rec.Data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return validEnd, nil
			}
			return validEnd, err
		}

		if !rec.Validate() {
			return validEnd, errors.Wrapf(ErrCorruptRecord, "checksum mismatch at LSN %d", rec.LSN)
		}

		if err := fn(rec.LSN, rec.Data); err != nil {
			return validEnd, err
		}
		validEnd += int64(RecordHeaderSize + len(rec.Data))
	}
}

func (wm *WALManager) Close() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	for _, seg := range wm.Segments {
		if seg.File == nil {
			continue
		}
		if err := seg.Sync(); err != nil {
			return err
		}
		if err := seg.Close(); err != nil {
			return err
		}
	}
	wm.FlushedLSN = wm.CurrentLSN
	return nil
}

// AppendOperation appends one record and returns its LSN. The record is
// not durable until Sync.
func (wm *WALManager) AppendOperation(op *types.Operation) (uint64, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	data := op.Encode()

	wm.CurrentLSN++
	lsn := wm.CurrentLSN

	record := &WALRecord{
		LSN:      lsn,
		Data:     data,
		Checksum: recordChecksum(lsn, data),
	}

	if wm.CurrSegment.IsFull() {
		// the old segment must be durable before records land in the next one
		if err := wm.CurrSegment.Sync(); err != nil {
			return 0, err
		}
		wm.FlushedLSN = lsn - 1
		if err := wm.createNewSegment(); err != nil {
			return 0, err
		}
	}

	if _, err := wm.CurrSegment.Append(record.Encode()); err != nil {
		return 0, errors.Wrap(err, "failed to append WAL record")
	}

	return lsn, nil
}

// Sync forces every appended record to disk.
func (wm *WALManager) Sync() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.FlushedLSN == wm.CurrentLSN {
		return nil
	}
	if err := wm.CurrSegment.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync WAL")
	}
	wm.FlushedLSN = wm.CurrentLSN
	return nil
}

func (wm *WALManager) GetFlushedLSN() uint64 {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.FlushedLSN
}

func (wm *WALManager) GetCurrentLSN() uint64 {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.CurrentLSN
}
