package executor

import (
	txn "DaemonIndex/storage_engine/transaction_manager"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
)

/*
This file contains the automatic transactions, used when the user runs a
data command without an explicit BEGIN/COMMIT/ROLLBACK.
*/

// inTransaction runs fn in the current transaction, or in an automatic one
// that commits when fn succeeds and rolls back when it fails.
func (vm *VM) inTransaction(fn func(tx *txn.Transaction) error) error {
	if vm.currentTxn != nil && !vm.autoTxn {
		return fn(vm.currentTxn)
	}
	if err := vm.autoTransactionBegin(); err != nil {
		return err
	}
	if err := fn(vm.currentTxn); err != nil {
		return multierr.Append(err, vm.autoTransactionAbort())
	}
	return vm.autoTransactionCommit()
}

// autoTransactionBegin starts an implicit transaction for a single statement.
func (vm *VM) autoTransactionBegin() error {
	tx, err := vm.storageEngine.BeginTransaction(vm.defaultIsolation)
	if err != nil {
		return errors.Wrap(err, "failed to begin txn")
	}
	vm.currentTxn = tx
	vm.autoTxn = true
	return nil
}

// autoTransactionCommit commits an implicit transaction.
func (vm *VM) autoTransactionCommit() error {
	if !vm.autoTxn || vm.currentTxn == nil {
		return errors.New("autoTransactionCommit: no active transaction")
	}
	tx := vm.currentTxn
	vm.currentTxn = nil
	vm.autoTxn = false
	return vm.storageEngine.CommitTransaction(tx)
}

// autoTransactionAbort undoes an implicit transaction after its statement
// failed.
func (vm *VM) autoTransactionAbort() error {
	tx := vm.currentTxn
	vm.currentTxn = nil
	vm.autoTxn = false
	if tx == nil {
		return nil
	}
	return vm.storageEngine.AbortTransaction(tx)
}

// Close rolls back an open explicit transaction.
func (vm *VM) Close() error {
	if vm.currentTxn == nil {
		return nil
	}
	tx := vm.currentTxn
	vm.currentTxn = nil
	vm.autoTxn = false
	return vm.storageEngine.AbortTransaction(tx)
}
