package storageengine

import (
	txn "DaemonIndex/storage_engine/transaction_manager"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Transaction boundaries. The transaction manager writes the BEGIN, COMMIT
and ABORT records itself; commit forces the log when syncOnCommit is set.
Controllers and scans opened by the engine are always closed before the
statement returns, so commit and abort never find one still open.
*/

func (se *StorageEngine) BeginTransaction(isolation txn.Isolation) (*txn.Transaction, error) {
	if err := se.RequireDatabase(); err != nil {
		return nil, err
	}
	tx, err := se.TxnManager.Begin(isolation)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	return tx, nil
}

func (se *StorageEngine) CommitTransaction(tx *txn.Transaction) error {
	if err := se.RequireDatabase(); err != nil {
		return err
	}
	if tx == nil {
		return errors.New("no active transaction")
	}
	if err := se.TxnManager.Commit(tx); err != nil {
		return err
	}
	se.logger.Debug("transaction committed", zap.Uint64("txnID", tx.ID))
	return nil
}

// AbortTransaction undoes every index change of tx and releases its
// locks.
func (se *StorageEngine) AbortTransaction(tx *txn.Transaction) error {
	if err := se.RequireDatabase(); err != nil {
		return err
	}
	if tx == nil {
		return errors.New("no active transaction")
	}
	if err := se.TxnManager.Abort(tx); err != nil {
		return errors.Wrapf(err, "rollback of transaction %d", tx.ID)
	}
	se.logger.Debug("transaction aborted", zap.Uint64("txnID", tx.ID))
	return nil
}
