package container

import (
	"DaemonIndex/storage_engine/page"
	"DaemonIndex/types"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

/*
This file contains standalone functions operating on *page.Page for index
page record operations. They assume the caller holds the page latch.

Index page binary layout (all values little-endian):

	Offset  Size  Field
	──────────────────────────────────────────────────────
	0       8     LSN             uint64   stamped by DiskManager on write
	8       1     PageType        uint8
	9       8     Checksum        uint64   xxhash of the page
	17      8     Version         uint64
	25      8     RepositionAfter uint64
	33      4     FileID          uint32
	37      4     PageNo          uint32   local page number
	41      2     RecordEndPtr    uint16   first free byte after last record
	43      2     SlotCount       uint16   slots in use, control row included
	45      2     DeletedCount    uint16   slots carrying the deleted flag
	──────────────────────────────────────────────────────
	47            IndexHeaderSize

Slotted layout, same shape as a heap page:

	[ header 47B ][ records → ][ free space ][ ← slot dir ]

Unlike a heap page the slot directory is ORDERED: slot i holds the i-th row
of the page in key order, so inserting at slot i shifts slots i.. up by one
and purging slot i shifts the later ones down. Record bytes are never
moved by an insert; space left behind by purges and updates is garbage
until compact() runs.

A slot entry is 6 bytes: [ Offset uint16 ][ Length uint16 ][ Flags uint16 ]
*/
const (
	idxOffFileID       = types.PageCommonHeader     // uint32 (4)
	idxOffPageNo       = types.PageCommonHeader + 4 // uint32 (4)
	idxOffRecordEndPtr = types.PageCommonHeader + 8 // uint16 (2)
	idxOffSlotCount    = types.PageCommonHeader + 10
	idxOffDeletedCount = types.PageCommonHeader + 12

	IndexHeaderSize = types.PageCommonHeader + 14

	SlotSize = 6

	slotFlagDeleted uint16 = 1
)

var (
	ErrNoSpace         = errors.New("not enough space on page")
	ErrSlotOutOfRange  = errors.New("slot out of range")
	ErrNotIndexPage    = errors.New("page is not an index page")
	ErrRecordTooLarge  = errors.New("record larger than a page can hold")
	MaxRecordSize      = page.PageSize - IndexHeaderSize - 2*SlotSize
	errInvalidSlotData = errors.New("slot points outside the record area")
)

// InitIndexPage stamps a fresh index-page header into pg.Data.
func InitIndexPage(pg *page.Page, pageNo int64) {
	for i := types.PageCommonHeader; i < page.PageSize; i++ {
		pg.Data[i] = 0
	}
	pg.PageType = types.PageTypeIndex
	pg.Data[types.PageTypeOffset] = byte(types.PageTypeIndex)
	binary.LittleEndian.PutUint32(pg.Data[idxOffFileID:], pg.FileID)
	binary.LittleEndian.PutUint32(pg.Data[idxOffPageNo:], uint32(pageNo))
	setRecordEndPtr(pg, IndexHeaderSize)
	setSlotCount(pg, 0)
	setDeletedCount(pg, 0)
}

// IsIndexPage reports whether pg carries an initialised index header.
func IsIndexPage(pg *page.Page) bool {
	return pg.PageType == types.PageTypeIndex && getRecordEndPtr(pg) >= IndexHeaderSize
}

// ─────────────────────────────────────────────────────────────────────────────
// Record operations
// ─────────────────────────────────────────────────────────────────────────────

// insertAt places data as the new slot i, shifting slots i.. up by one.
func insertAt(pg *page.Page, i int, data []byte, deleted bool) error {
	n := slotCount(pg)
	if i < 0 || i > n {
		return errors.Wrapf(ErrSlotOutOfRange, "insert at %d (count=%d)", i, n)
	}
	if len(data) > MaxRecordSize {
		return errors.Wrapf(ErrRecordTooLarge, "%d bytes", len(data))
	}
	need := len(data) + SlotSize
	if contiguousFree(pg) < need {
		if totalFree(pg) < need {
			return errors.Wrapf(ErrNoSpace, "need %d bytes, %d free", need, totalFree(pg))
		}
		compact(pg)
	}

	offset := getRecordEndPtr(pg)
	copy(pg.Data[offset:], data)
	setRecordEndPtr(pg, offset+uint16(len(data)))

	// slots i..n-1 move one entry toward the records
	if i < n {
		src := pg.Data[slotByteOffset(n-1) : slotByteOffset(i)+SlotSize]
		dst := pg.Data[slotByteOffset(n):slotByteOffset(i)]
		copy(dst, src)
	}
	flags := uint16(0)
	if deleted {
		flags = slotFlagDeleted
		setDeletedCount(pg, getDeletedCount(pg)+1)
	}
	writeSlot(pg, i, offset, uint16(len(data)), flags)
	setSlotCount(pg, n+1)
	return nil
}

// purgeAt removes slots i..i+count-1, shifting later slots down.
func purgeAt(pg *page.Page, i, count int) error {
	n := slotCount(pg)
	if i < 0 || count < 0 || i+count > n {
		return errors.Wrapf(ErrSlotOutOfRange, "purge %d rows at %d (count=%d)", count, i, n)
	}
	if count == 0 {
		return nil
	}
	deleted := 0
	for s := i; s < i+count; s++ {
		if isDeleted(pg, s) {
			deleted++
		}
	}
	if i+count < n {
		src := pg.Data[slotByteOffset(n-1) : slotByteOffset(i+count)+SlotSize]
		dst := pg.Data[slotByteOffset(n-1-count) : slotByteOffset(i)+SlotSize]
		copy(dst, src)
	}
	for s := n - count; s < n; s++ {
		writeSlot(pg, s, 0, 0, 0)
	}
	setSlotCount(pg, n-count)
	setDeletedCount(pg, getDeletedCount(pg)-uint16(deleted))
	if slotCount(pg) == 0 {
		setRecordEndPtr(pg, IndexHeaderSize)
	}
	return nil
}

// updateAt replaces the record of slot i, keeping its flags.
func updateAt(pg *page.Page, i int, data []byte) error {
	if i < 0 || i >= slotCount(pg) {
		return errors.Wrapf(ErrSlotOutOfRange, "update at %d (count=%d)", i, slotCount(pg))
	}
	offset, length, flags := readSlot(pg, i)
	if len(data) <= int(length) {
		copy(pg.Data[offset:], data)
		writeSlot(pg, i, offset, uint16(len(data)), flags)
		return nil
	}

	// old bytes become garbage; they count as free once compacted
	extra := len(data) - int(length)
	if contiguousFree(pg) < len(data) {
		if totalFree(pg) < extra {
			return errors.Wrapf(ErrNoSpace, "update needs %d more bytes", extra)
		}
		writeSlot(pg, i, offset, 0, flags)
		compact(pg)
	}
	newOffset := getRecordEndPtr(pg)
	copy(pg.Data[newOffset:], data)
	setRecordEndPtr(pg, newOffset+uint16(len(data)))
	writeSlot(pg, i, newOffset, uint16(len(data)), flags)
	return nil
}

func setDeleted(pg *page.Page, i int, deleted bool) (changed bool, err error) {
	if i < 0 || i >= slotCount(pg) {
		return false, errors.Wrapf(ErrSlotOutOfRange, "delete at %d (count=%d)", i, slotCount(pg))
	}
	offset, length, flags := readSlot(pg, i)
	was := flags&slotFlagDeleted != 0
	if was == deleted {
		return false, nil
	}
	if deleted {
		flags |= slotFlagDeleted
		setDeletedCount(pg, getDeletedCount(pg)+1)
	} else {
		flags &^= slotFlagDeleted
		setDeletedCount(pg, getDeletedCount(pg)-1)
	}
	writeSlot(pg, i, offset, length, flags)
	return true, nil
}

func record(pg *page.Page, i int) ([]byte, error) {
	if i < 0 || i >= slotCount(pg) {
		return nil, errors.Wrapf(ErrSlotOutOfRange, "fetch slot %d (count=%d)", i, slotCount(pg))
	}
	offset, length, _ := readSlot(pg, i)
	if int(offset) < IndexHeaderSize || int(offset)+int(length) > int(getRecordEndPtr(pg)) {
		return nil, errors.Wrapf(errInvalidSlotData, "slot %d offset %d length %d", i, offset, length)
	}
	return pg.Data[offset : offset+length], nil
}

// compact rewrites the live records contiguously after the header.
func compact(pg *page.Page) {
	n := slotCount(pg)
	buf := make([]byte, 0, page.PageSize)
	type entry struct{ off, length, flags uint16 }
	entries := make([]entry, n)
	for i := 0; i < n; i++ {
		offset, length, flags := readSlot(pg, i)
		start := IndexHeaderSize + len(buf)
		buf = append(buf, pg.Data[offset:offset+length]...)
		entries[i] = entry{uint16(start), length, flags}
	}
	copy(pg.Data[IndexHeaderSize:], buf)
	end := IndexHeaderSize + len(buf)
	for j := end; j < slotByteOffset(n-1); j++ {
		pg.Data[j] = 0
	}
	setRecordEndPtr(pg, uint16(end))
	for i, e := range entries {
		writeSlot(pg, i, e.off, e.length, e.flags)
	}
}
