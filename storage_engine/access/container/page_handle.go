package container

import (
	"DaemonIndex/storage_engine/page"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

/*
Every change through a PageHandle follows the same steps while the latch
is held:

 1. an internal transaction saves the page's before-image
 2. the page bytes are changed
 3. the change is appended to the WAL and the page LSN is advanced
 4. the page version is bumped (and, when rows can have left the page,
    the reposition marker is set)

A nil transaction skips 1 and 3; bulk load uses that and logs once.
*/

// Release unlatches and unpins the page. Safe to call more than once.
func (h *PageHandle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.pg.Unlatch()
	h.c.bufferPool.UnpinPage(h.pg.ID, h.dirty)
}

func (h *PageHandle) Released() bool {
	return h.released
}

func (h *PageHandle) PageNumber() int64 {
	return h.pageNo
}

func (h *PageHandle) Container() *Container {
	return h.c
}

// Page exposes the frame, for diagnostics and before-images.
func (h *PageHandle) Page() *page.Page {
	return h.pg
}

func (h *PageHandle) Version() uint64 {
	return h.pg.Version()
}

func (h *PageHandle) SetRepositionNeeded() {
	h.pg.SetRepositionNeeded()
}

func (h *PageHandle) IsRepositionNeeded(v uint64) bool {
	return h.pg.IsRepositionNeeded(v)
}

// RecordCount counts every slot, the control row included.
func (h *PageHandle) RecordCount() int {
	return slotCount(h.pg)
}

func (h *PageHandle) NonDeletedRecordCount() int {
	return slotCount(h.pg) - int(getDeletedCount(h.pg))
}

func (h *PageHandle) IsDeletedAtSlot(slot int) bool {
	if slot < 0 || slot >= slotCount(h.pg) {
		return false
	}
	return isDeleted(h.pg, slot)
}

// FetchFromSlot returns a copy of the record bytes.
func (h *PageHandle) FetchFromSlot(slot int) ([]byte, error) {
	data, err := record(h.pg, slot)
	if err != nil {
		return nil, h.wrap(err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// FetchRowFromSlot decodes the record at slot.
func (h *PageHandle) FetchRowFromSlot(slot int) (types.Row, error) {
	data, err := record(h.pg, slot)
	if err != nil {
		return nil, h.wrap(err)
	}
	row, err := types.DecodeRow(data)
	if err != nil {
		return nil, h.wrap(err)
	}
	return row, nil
}

// FetchFieldFromSlot decodes one column of the record at slot.
func (h *PageHandle) FetchFieldFromSlot(slot, col int) (types.Value, error) {
	data, err := record(h.pg, slot)
	if err != nil {
		return types.Value{}, h.wrap(err)
	}
	v, err := types.DecodeColumn(data, col)
	if err != nil {
		return types.Value{}, h.wrap(err)
	}
	return v, nil
}

// SpaceForInsert reports whether a record of size bytes fits, counting
// space a compaction would recover.
func (h *PageHandle) SpaceForInsert(size int) bool {
	return size <= MaxRecordSize && totalFree(h.pg) >= size+SlotSize
}

// FreeSpace is the space a compaction would leave for new records and
// their slots.
func (h *PageHandle) FreeSpace() int {
	return totalFree(h.pg)
}

// InsertAtSlot stores row as the new slot, shifting later slots up.
// Returns ErrNoSpace (wrapped) when the page cannot take it.
func (h *PageHandle) InsertAtSlot(tx *txn.Transaction, slot int, row types.Row, deleted bool) error {
	data := types.EncodeRow(row)
	if !h.SpaceForInsert(len(data)) {
		return errors.Wrapf(ErrNoSpace, "page %d: insert of %d bytes at slot %d", h.pageNo, len(data), slot)
	}
	h.beforeChange(tx)
	if err := insertAt(h.pg, slot, data, deleted); err != nil {
		return h.wrap(err)
	}
	return h.logged(tx, &types.Operation{Type: types.OpIndexInsert, Slot: slot, Deleted: deleted, RowData: data})
}

// DeleteAtSlot sets or clears the deleted mark of a row. Returns false
// when the mark already had the requested value.
func (h *PageHandle) DeleteAtSlot(tx *txn.Transaction, slot int, deleted bool) (bool, error) {
	if slot < 0 || slot >= slotCount(h.pg) {
		return false, h.wrap(errors.Wrapf(ErrSlotOutOfRange, "delete mark at %d", slot))
	}
	if isDeleted(h.pg, slot) == deleted {
		return false, nil
	}
	h.beforeChange(tx)
	if _, err := setDeleted(h.pg, slot, deleted); err != nil {
		return false, h.wrap(err)
	}
	return true, h.logged(tx, &types.Operation{Type: types.OpIndexDeleteMark, Slot: slot, Deleted: deleted})
}

// PurgeAtSlot physically removes count rows starting at slot.
func (h *PageHandle) PurgeAtSlot(tx *txn.Transaction, slot, count int) error {
	h.beforeChange(tx)
	if err := purgeAt(h.pg, slot, count); err != nil {
		return h.wrap(err)
	}
	if err := h.logged(tx, &types.Operation{Type: types.OpIndexPurge, Slot: slot, Count: count}); err != nil {
		return err
	}
	h.pg.SetRepositionNeeded()
	return nil
}

// UpdateAtSlot replaces the whole row at slot, keeping its deleted mark.
func (h *PageHandle) UpdateAtSlot(tx *txn.Transaction, slot int, row types.Row) error {
	data := types.EncodeRow(row)
	h.beforeChange(tx)
	if err := updateAt(h.pg, slot, data); err != nil {
		return h.wrap(err)
	}
	return h.logged(tx, &types.Operation{Type: types.OpIndexUpdate, Slot: slot, RowData: data})
}

// UpdateFieldAtSlot replaces one column of the row at slot.
func (h *PageHandle) UpdateFieldAtSlot(tx *txn.Transaction, slot, col int, v types.Value) error {
	row, err := h.FetchRowFromSlot(slot)
	if err != nil {
		return err
	}
	if col < 0 || col >= len(row) {
		return h.wrap(errors.Newf("column %d out of range (%d columns)", col, len(row)))
	}
	row[col] = v
	return h.UpdateAtSlot(tx, slot, row)
}

// CopyAndPurge moves count rows starting at srcSlot to dest, inserting
// them at destSlot.., then purges them here. Deleted marks travel with
// the rows.
func (h *PageHandle) CopyAndPurge(tx *txn.Transaction, dest *PageHandle, srcSlot, count, destSlot int) error {
	if srcSlot < 0 || count <= 0 || srcSlot+count > slotCount(h.pg) {
		return h.wrap(errors.Wrapf(ErrSlotOutOfRange, "copy %d rows from %d", count, srcSlot))
	}
	h.beforeChange(tx)
	dest.beforeChange(tx)

	for i := 0; i < count; i++ {
		data, err := record(h.pg, srcSlot+i)
		if err != nil {
			return h.wrap(err)
		}
		if err := insertAt(dest.pg, destSlot+i, data, isDeleted(h.pg, srcSlot+i)); err != nil {
			return dest.wrap(err)
		}
	}
	if err := dest.logged(tx, &types.Operation{Type: types.OpIndexCopyAndPurge, Slot: destSlot, Count: count, DestPage: h.pageNo}); err != nil {
		return err
	}
	if err := purgeAt(h.pg, srcSlot, count); err != nil {
		return h.wrap(err)
	}
	if err := h.logged(tx, &types.Operation{Type: types.OpIndexCopyAndPurge, Slot: srcSlot, Count: count, DestPage: dest.pageNo, DestSlot: destSlot}); err != nil {
		return err
	}
	h.pg.SetRepositionNeeded()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// internals
// ─────────────────────────────────────────────────────────────────────────────

func (h *PageHandle) verify() error {
	if !IsIndexPage(h.pg) {
		return errors.Mark(errors.Newf("container %d page %d: type %s", h.c.fileID, h.pageNo, h.pg.PageType), ErrNotIndexPage)
	}
	if getFileID(h.pg) != h.c.fileID || getPageNo(h.pg) != h.pageNo {
		return errors.Mark(errors.Newf("container %d page %d: header names container %d page %d",
			h.c.fileID, h.pageNo, getFileID(h.pg), getPageNo(h.pg)), ErrCorruptPage)
	}
	return nil
}

func (h *PageHandle) beforeChange(tx *txn.Transaction) {
	if tx != nil {
		tx.CaptureBeforeImage(h.pg)
	}
}

func (h *PageHandle) logged(tx *txn.Transaction, op *types.Operation) error {
	h.dirty = true
	var lsn uint64
	if tx != nil {
		op.PageNo = h.pageNo
		var err error
		lsn, err = h.c.LogOperation(tx, op)
		if err != nil {
			return err
		}
	}
	h.pg.Lock()
	h.pg.IsDirty = true
	if lsn > h.pg.LSN {
		h.pg.LSN = lsn
	}
	h.pg.Unlock()
	h.pg.BumpVersion()
	return nil
}

func (h *PageHandle) wrap(err error) error {
	if errors.Is(err, errInvalidSlotData) || errors.Is(err, types.ErrCorruptRecord) {
		err = errors.Mark(err, ErrCorruptPage)
	}
	return errors.Wrapf(err, "container %d page %d", h.c.fileID, h.pageNo)
}
