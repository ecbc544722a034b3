package txn

import (
	"DaemonIndex/logging"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	"DaemonIndex/types"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Transaction manager manages the BEGIN, COMMIT, ABORT of user transactions
and the short internal transactions the index uses for splits and purges.

Commit order for a user transaction:
 1. OpTxnCommit is appended to the WAL and, with SyncOnCommit, forced
 2. held page handles are released
 3. all locks are released
 4. post-commit work is queued for the worker pool
*/

var ErrTxnNotActive = errors.New("transaction is not active")

func NewTxnManager(locks *lockmgr.LockManager, wal LogWriter, opts Options) (*TxnManager, error) {
	if locks == nil {
		return nil, errors.New("txn manager needs a lock manager")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	tm := &TxnManager{
		nextID:       1,
		activeTxns:   make(map[uint64]*Transaction),
		locks:        locks,
		wal:          wal,
		opts:         opts,
		undoHandlers: make(map[uint32]UndoHandler),
		work:         make(chan PostCommitWork, opts.QueueSize),
		logger:       logging.OrNop(opts.Logger).Named("txn"),
	}
	for i := 0; i < opts.Workers; i++ {
		tm.workerWG.Add(1)
		go tm.runWorker()
	}
	return tm, nil
}

// Locks returns the lock manager transactions lock through.
func (tm *TxnManager) Locks() *lockmgr.LockManager {
	return tm.locks
}

// Begin starts a new user transaction and registers it as active.
func (tm *TxnManager) Begin(isolation Isolation) (*Transaction, error) {
	if isolation == 0 {
		isolation = Serializable
	}
	return tm.begin(isolation, nil)
}

// BeginInternal starts an internal transaction working for parent. It has
// its own lock space, so nothing it locks conflicts with parent's locks
// in the lock manager's eyes except through real incompatibility.
func (tm *TxnManager) BeginInternal(parent *Transaction) (*Transaction, error) {
	return tm.begin(Serializable, parent)
}

func (tm *TxnManager) begin(isolation Isolation, parent *Transaction) (*Transaction, error) {
	// Use atomic increment to safely issue txn IDs from multiple goroutines.
	txnID := atomic.AddUint64(&tm.nextID, 1) - 1

	tx := &Transaction{
		ID:        txnID,
		State:     TxnActive,
		Isolation: isolation,
		Internal:  parent != nil,
		Parent:    parent,
		owner:     lockmgr.Owner(txnID),
		mgr:       tm,
	}
	if tx.Internal {
		tx.imaged = make(map[int64]bool)
	}

	if err := tm.log(tx, types.OpTxnBegin); err != nil {
		return nil, err
	}

	tm.mu.Lock()
	tm.activeTxns[txnID] = tx
	tm.mu.Unlock()

	tm.logger.Debug("begin", zap.Uint64("txnID", txnID), zap.Bool("internal", tx.Internal))
	return tx, nil
}

// Commit makes the work of tx permanent. A user transaction ends here. An
// internal transaction stays usable for the next unit of work until
// Destroy.
func (tm *TxnManager) Commit(tx *Transaction) error {
	tx.mu.Lock()
	if tx.State != TxnActive {
		state := tx.State
		tx.mu.Unlock()
		return errors.Wrapf(ErrTxnNotActive, "commit of transaction %d (%s)", tx.ID, state)
	}
	tx.mu.Unlock()

	if err := tm.log(tx, types.OpTxnCommit); err != nil {
		return err
	}
	if tm.wal != nil && tm.opts.SyncOnCommit && !tx.Internal {
		if err := tm.wal.Sync(); err != nil {
			return errors.Wrapf(err, "commit of transaction %d: log force failed", tx.ID)
		}
	}

	tx.mu.Lock()
	held := tx.held
	work := tx.postCommit
	tx.held = nil
	tx.postCommit = nil
	tx.beforeImages = nil
	if tx.Internal {
		clear(tx.imaged)
	} else {
		tx.State = TxnCommitted
		tx.UndoLog = nil
	}
	tx.mu.Unlock()

	releaseAll(held)
	tm.locks.ReleaseAll(tx.owner)

	if !tx.Internal {
		tm.forget(tx.ID)
	}
	for _, w := range work {
		tm.enqueue(w)
	}

	tm.logger.Debug("commit", zap.Uint64("txnID", tx.ID), zap.Bool("internal", tx.Internal))
	return nil
}

// Abort rolls tx back. User transactions are undone logically through the
// registered undo handlers, internal transactions by restoring page
// before-images. For an internal transaction the caller must still hold
// the latches of every page changed since the last commit.
func (tm *TxnManager) Abort(tx *Transaction) error {
	tx.mu.Lock()
	if tx.State != TxnActive {
		tx.mu.Unlock()
		return nil
	}
	tx.mu.Unlock()

	var undoErr error
	if tx.Internal {
		tx.restoreBeforeImages()
	} else {
		undoErr = tm.runUndo(tx)
	}

	logErr := tm.log(tx, types.OpTxnAbort)

	tx.mu.Lock()
	held := tx.held
	tx.held = nil
	tx.postCommit = nil
	tx.beforeImages = nil
	tx.UndoLog = nil
	tx.State = TxnAborted
	tx.mu.Unlock()

	releaseAll(held)
	tm.locks.ReleaseAll(tx.owner)
	tm.forget(tx.ID)

	tm.logger.Debug("abort", zap.Uint64("txnID", tx.ID), zap.Bool("internal", tx.Internal))
	if undoErr != nil {
		return undoErr
	}
	return logErr
}

// Destroy ends an internal transaction. Work done since its last commit is
// rolled back.
func (tm *TxnManager) Destroy(tx *Transaction) error {
	if tx == nil {
		return nil
	}
	tx.mu.Lock()
	pending := tx.State == TxnActive && (len(tx.beforeImages) > 0 || len(tx.held) > 0)
	tx.mu.Unlock()

	if pending {
		return tm.Abort(tx)
	}

	tx.mu.Lock()
	if tx.State == TxnActive {
		tx.State = TxnCommitted
	}
	tx.mu.Unlock()
	tm.locks.ReleaseAll(tx.owner)
	tm.forget(tx.ID)
	return nil
}

// RegisterUndoHandler installs the logical undo for one index container.
func (tm *TxnManager) RegisterUndoHandler(fileID uint32, h UndoHandler) {
	tm.undoMu.Lock()
	defer tm.undoMu.Unlock()
	tm.undoHandlers[fileID] = h
}

func (tm *TxnManager) UnregisterUndoHandler(fileID uint32) {
	tm.undoMu.Lock()
	defer tm.undoMu.Unlock()
	delete(tm.undoHandlers, fileID)
}

func (tm *TxnManager) undoHandler(fileID uint32) UndoHandler {
	tm.undoMu.RLock()
	defer tm.undoMu.RUnlock()
	return tm.undoHandlers[fileID]
}

// GetTransaction returns the transaction with the given ID, or nil if not found.
func (tm *TxnManager) GetTransaction(txnID uint64) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.activeTxns[txnID]
}

// IsActive returns true if the given txnID is currently active.
func (tm *TxnManager) IsActive(txnID uint64) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, exists := tm.activeTxns[txnID]
	return exists
}

// ActiveTransactions returns a snapshot of all currently active transactions.
// Used by checkpoint to know which transactions are in-flight.
func (tm *TxnManager) ActiveTransactions() []*Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	txns := make([]*Transaction, 0, len(tm.activeTxns))
	for _, txn := range tm.activeTxns {
		txns = append(txns, txn)
	}
	return txns
}

// WaitForPostCommit blocks until every queued post-commit job has run.
func (tm *TxnManager) WaitForPostCommit() {
	tm.workWG.Wait()
}

// Close drains the post-commit queue and stops the workers.
func (tm *TxnManager) Close() {
	tm.mu.Lock()
	if tm.closed {
		tm.mu.Unlock()
		return
	}
	tm.closed = true
	tm.mu.Unlock()

	tm.workWG.Wait()
	close(tm.work)
	tm.workerWG.Wait()
}

func (tm *TxnManager) forget(txnID uint64) {
	tm.mu.Lock()
	delete(tm.activeTxns, txnID)
	tm.mu.Unlock()
}

func (tm *TxnManager) log(tx *Transaction, opType types.OperationType) error {
	if tm.wal == nil {
		return nil
	}
	_, err := tm.wal.AppendOperation(&types.Operation{
		Type:     opType,
		TxnID:    tx.ID,
		Internal: tx.Internal,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to log %s for transaction %d", opType, tx.ID)
	}
	return nil
}

func releaseAll(held []Releaser) {
	for i := len(held) - 1; i >= 0; i-- {
		held[i].Release()
	}
}
