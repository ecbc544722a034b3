package txn

import (
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	"DaemonIndex/storage_engine/page"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Before the transaction gets completed, it is not sure whether it will
actually be committed or rolled back.

User transactions keep UndoLog, a list of logical changes replayed in
reverse on abort. Internal transactions keep a copy of every page the
first time they change it after a commit; abort copies them back.
*/

// Owner is the lock space of the transaction.
func (tx *Transaction) Owner() lockmgr.Owner {
	return tx.owner
}

func (tx *Transaction) IsActive() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.State == TxnActive
}

// RecordUndo adds a logical change to the transaction's undo log.
func (tx *Transaction) RecordUndo(rec UndoRecord) {
	if tx.Internal {
		return
	}
	tx.mu.Lock()
	tx.UndoLog = append(tx.UndoLog, rec)
	tx.mu.Unlock()
}

// CaptureBeforeImage saves pg's contents the first time an internal
// transaction changes it. The caller holds pg's latch.
func (tx *Transaction) CaptureBeforeImage(pg *page.Page) {
	if !tx.Internal {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.imaged[pg.ID] {
		return
	}
	data := make([]byte, len(pg.Data))
	copy(data, pg.Data)
	tx.beforeImages = append(tx.beforeImages, beforeImage{pg: pg, data: data, lsn: pg.LSN})
	tx.imaged[pg.ID] = true
}

// HoldUntilEnd keeps r until the transaction commits or aborts.
func (tx *Transaction) HoldUntilEnd(r Releaser) {
	tx.mu.Lock()
	tx.held = append(tx.held, r)
	tx.mu.Unlock()
}

// AddPostCommitWork queues w to run after the transaction commits.
func (tx *Transaction) AddPostCommitWork(w PostCommitWork) {
	tx.mu.Lock()
	tx.postCommit = append(tx.postCommit, w)
	tx.mu.Unlock()
}

// PendingPostCommit is the number of jobs waiting for commit.
func (tx *Transaction) PendingPostCommit() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.postCommit)
}

func (tx *Transaction) restoreBeforeImages() {
	tx.mu.Lock()
	images := tx.beforeImages
	tx.beforeImages = nil
	clear(tx.imaged)
	tx.mu.Unlock()

	for i := len(images) - 1; i >= 0; i-- {
		img := images[i]
		img.pg.Lock()
		copy(img.pg.Data, img.data)
		img.pg.LSN = img.lsn
		img.pg.IsDirty = true
		img.pg.Unlock()
		// rows moved back, saved positions must search again
		img.pg.SetRepositionNeeded()
	}
}

// runUndo replays the undo log in reverse. The first failure is returned
// after the rest of the log has been tried.
func (tm *TxnManager) runUndo(tx *Transaction) error {
	tx.mu.Lock()
	log := tx.UndoLog
	tx.UndoLog = nil
	tx.mu.Unlock()

	var first error
	for i := len(log) - 1; i >= 0; i-- {
		rec := log[i]
		h := tm.undoHandler(rec.FileID)
		if h == nil {
			if first == nil {
				first = errors.Newf("no undo handler for container %d", rec.FileID)
			}
			continue
		}
		if err := h.Undo(tx, rec); err != nil {
			tm.logger.Error("undo failed",
				zap.Uint64("txnID", tx.ID), zap.Stringer("kind", rec.Kind), zap.Error(err))
			if first == nil {
				first = errors.Wrapf(err, "%s in container %d", rec.Kind, rec.FileID)
			}
		}
	}
	return first
}
