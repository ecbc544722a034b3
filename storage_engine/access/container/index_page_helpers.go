package container

import (
	"DaemonIndex/storage_engine/page"
	"encoding/binary"
)

// ─────────────────────────────────────────────────────────────────────────────
// Header accessors
// ─────────────────────────────────────────────────────────────────────────────

func getFileID(pg *page.Page) uint32 {
	return binary.LittleEndian.Uint32(pg.Data[idxOffFileID:])
}

func getPageNo(pg *page.Page) int64 {
	return int64(binary.LittleEndian.Uint32(pg.Data[idxOffPageNo:]))
}

func getRecordEndPtr(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[idxOffRecordEndPtr:])
}
func setRecordEndPtr(pg *page.Page, v uint16) {
	binary.LittleEndian.PutUint16(pg.Data[idxOffRecordEndPtr:], v)
}

func slotCount(pg *page.Page) int {
	return int(binary.LittleEndian.Uint16(pg.Data[idxOffSlotCount:]))
}
func setSlotCount(pg *page.Page, n int) {
	binary.LittleEndian.PutUint16(pg.Data[idxOffSlotCount:], uint16(n))
}

func getDeletedCount(pg *page.Page) uint16 {
	return binary.LittleEndian.Uint16(pg.Data[idxOffDeletedCount:])
}
func setDeletedCount(pg *page.Page, n uint16) {
	binary.LittleEndian.PutUint16(pg.Data[idxOffDeletedCount:], n)
}

// ─────────────────────────────────────────────────────────────────────────────
// Free space
// ─────────────────────────────────────────────────────────────────────────────

// contiguousFree is the gap between the last record and the slot
// directory.
func contiguousFree(pg *page.Page) int {
	slotRegionStart := page.PageSize - slotCount(pg)*SlotSize
	free := slotRegionStart - int(getRecordEndPtr(pg))
	if free < 0 {
		return 0
	}
	return free
}

// totalFree counts garbage left by purges and updates as free.
func totalFree(pg *page.Page) int {
	n := slotCount(pg)
	used := IndexHeaderSize + n*SlotSize
	for i := 0; i < n; i++ {
		_, length, _ := readSlot(pg, i)
		used += int(length)
	}
	return page.PageSize - used
}

// ─────────────────────────────────────────────────────────────────────────────
// Slot directory
// ─────────────────────────────────────────────────────────────────────────────

// slotByteOffset returns the byte offset in Data where slot i begins.
//
//	slot 0: bytes 4090–4095
//	slot i: PageSize - (i+1)*SlotSize
func slotByteOffset(i int) int {
	return page.PageSize - (i+1)*SlotSize
}

func readSlot(pg *page.Page, i int) (offset, length, flags uint16) {
	base := slotByteOffset(i)
	return binary.LittleEndian.Uint16(pg.Data[base:]),
		binary.LittleEndian.Uint16(pg.Data[base+2:]),
		binary.LittleEndian.Uint16(pg.Data[base+4:])
}

func writeSlot(pg *page.Page, i int, offset, length, flags uint16) {
	base := slotByteOffset(i)
	binary.LittleEndian.PutUint16(pg.Data[base:], offset)
	binary.LittleEndian.PutUint16(pg.Data[base+2:], length)
	binary.LittleEndian.PutUint16(pg.Data[base+4:], flags)
}

func isDeleted(pg *page.Page, i int) bool {
	_, _, flags := readSlot(pg, i)
	return flags&slotFlagDeleted != 0
}
