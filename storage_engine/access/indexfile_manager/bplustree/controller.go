package bplus

import (
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Controller is a tree opened for row changes by one transaction.
type Controller struct {
	t     *BTree
	tx    *txn.Transaction
	p     *lockPolicy
	mode  OpenMode
	level LockLevel

	closed bool
}

// OpenController takes the table lock for level and mode and returns a
// controller for tx.
func (t *BTree) OpenController(tx *txn.Transaction, level LockLevel, mode OpenMode) (*Controller, error) {
	if t.closed.Load() {
		return nil, ErrControllerClosed
	}
	p, err := t.newLockPolicy(tx, level, mode)
	if err != nil {
		return nil, err
	}
	return &Controller{t: t, tx: tx, p: p, mode: mode, level: level}, nil
}

// Insert adds row, a full leaf row ending with its row location. A key
// that is already present is reported as InsertDuplicate, not as an error.
func (c *Controller) Insert(row types.Row) (InsertResult, error) {
	if err := c.writable(); err != nil {
		return InsertOK, err
	}
	if err := c.t.conglom.validateRow(row); err != nil {
		return InsertOK, err
	}
	res, err := c.t.doIns(c.tx, c.p, row, c.mode.has(OpenBaseRowLocked))
	if err != nil {
		return InsertOK, errors.Wrapf(err, "insert into %s", c.t.conglom.Name)
	}
	return res, nil
}

// Delete marks the index row equal to row deleted. Returns false when
// there is no such live row.
func (c *Controller) Delete(row types.Row) (bool, error) {
	if err := c.writable(); err != nil {
		return false, err
	}
	if err := c.t.conglom.validateRow(row); err != nil {
		return false, err
	}
	deleted, err := c.t.doDelete(c.tx, c.p, row)
	if err != nil {
		return false, errors.Wrapf(err, "delete from %s", c.t.conglom.Name)
	}
	return deleted, nil
}

// Fetch finds the first live row whose leading columns equal key and
// copies it into row.
func (c *Controller) Fetch(key, row types.Row) (bool, error) {
	if c.closed {
		return false, ErrControllerClosed
	}
	s, err := c.t.OpenScan(c.tx, c.level, c.mode&^OpenHoldCursor, ScanSpec{
		StartKey: key,
		StopKey:  key,
	})
	if err != nil {
		return false, err
	}
	defer s.Close()
	return s.FetchNext(row)
}

// LockRow locks a base-table row in the controller's transaction.
func (c *Controller) LockRow(rowLoc types.RowPointer, mode lockmgr.Mode, wait bool) (bool, error) {
	if c.closed {
		return false, ErrControllerClosed
	}
	return c.p.lockRowLocation(rowLoc, mode, wait)
}

// UnlockRowAfterRead drops a read-committed read lock taken with LockRow.
func (c *Controller) UnlockRowAfterRead(rowLoc types.RowPointer) {
	c.p.unlockScanRecordAfterRead(rowLoc)
}

// Replace is not supported: an index row is changed by delete and insert.
func (c *Controller) Replace(types.RowPointer, types.Row) error {
	return errors.Wrap(ErrUnimplementedFeature, "replace")
}

// FetchByLocation is not supported: index rows have no stable location.
func (c *Controller) FetchByLocation(types.RowPointer, types.Row) error {
	return errors.Wrap(ErrUnimplementedFeature, "fetch by location")
}

// DeleteByLocation is not supported, see FetchByLocation.
func (c *Controller) DeleteByLocation(types.RowPointer) error {
	return errors.Wrap(ErrUnimplementedFeature, "delete by location")
}

// Close ends the controller. Locks stay with the transaction.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.t.logger.Debug("controller closed", zap.Uint64("txnID", c.tx.ID))
	return nil
}

func (c *Controller) writable() error {
	if c.closed {
		return ErrControllerClosed
	}
	if !c.p.forUpdate {
		return ErrNotForUpdate
	}
	return nil
}
