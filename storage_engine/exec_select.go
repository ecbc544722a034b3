package storageengine

import (
	"io"

	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const scanBatch = 64

func (se *StorageEngine) scanSpec(schema types.IndexSchema, req ScanRequest) (bplus.ScanSpec, error) {
	var spec bplus.ScanSpec
	var err error
	if len(req.From) > 0 {
		if spec.StartKey, err = keyValues(schema, req.From, true); err != nil {
			return spec, errors.Wrap(err, "start key")
		}
		spec.StartOp = types.OpGreaterOrEquals
		if req.FromExclusive {
			spec.StartOp = types.OpGreaterThan
		}
	}
	if len(req.To) > 0 {
		if spec.StopKey, err = keyValues(schema, req.To, true); err != nil {
			return spec, errors.Wrap(err, "stop key")
		}
		spec.StopOp = types.OpGreaterThan
		if req.ToExclusive {
			spec.StopOp = types.OpGreaterOrEquals
		}
	}
	spec.Qualifiers, err = qualifiers(schema, req.Where)
	return spec, err
}

// Scan returns the live rows of a key range in index order.
func (se *StorageEngine) Scan(tx *txn.Transaction, indexName string, req ScanRequest) ([]types.Row, bplus.ScanInfo, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return nil, bplus.ScanInfo{}, err
	}
	spec, err := se.scanSpec(schema, req)
	if err != nil {
		return nil, bplus.ScanInfo{}, err
	}

	scan, err := tree.OpenScan(tx, bplus.LockRecord, 0, spec)
	if err != nil {
		return nil, bplus.ScanInfo{}, err
	}
	defer scan.Close()

	var out []types.Row
	batch := make([]types.Row, scanBatch)
	for {
		want := len(batch)
		if req.Limit > 0 && req.Limit-len(out) < want {
			want = req.Limit - len(out)
		}
		n, err := scan.FetchNextGroup(batch[:want], nil)
		if err != nil {
			return out, scan.Info(), err
		}
		for _, row := range batch[:n] {
			out = append(out, row.Clone())
		}
		if n < want || (req.Limit > 0 && len(out) >= req.Limit) {
			break
		}
	}

	info := scan.Info()
	se.logger.Debug("scan", zap.String("index", indexName), zap.Int("rows", len(out)), zap.Stringer("info", info))
	return out, info, nil
}

// DeleteWhere deletes every live row of a key range through an update
// scan and returns how many it deleted.
func (se *StorageEngine) DeleteWhere(tx *txn.Transaction, indexName string, req ScanRequest) (int, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return 0, err
	}
	spec, err := se.scanSpec(schema, req)
	if err != nil {
		return 0, err
	}

	scan, err := tree.OpenScan(tx, bplus.LockRecord, bplus.OpenForUpdate|bplus.OpenUseUpdateLocks, spec)
	if err != nil {
		return 0, err
	}
	defer scan.Close()

	deleted := 0
	for req.Limit <= 0 || deleted < req.Limit {
		ok, err := scan.Next()
		if err != nil {
			return deleted, err
		}
		if !ok {
			break
		}
		done, err := scan.Delete()
		if err != nil {
			return deleted, err
		}
		if done {
			deleted++
		}
	}
	return deleted, nil
}

// Max returns the highest live row whose first column is not NULL and
// that passes where.
func (se *StorageEngine) Max(tx *txn.Transaction, indexName string, where [][]Predicate) (types.Row, bool, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return nil, false, err
	}
	quals, err := qualifiers(schema, where)
	if err != nil {
		return nil, false, err
	}

	scan, err := tree.OpenMaxScan(tx, bplus.LockRecord, 0, quals)
	if err != nil {
		return nil, false, err
	}
	defer scan.Close()

	row := tree.Conglomerate().TemplateRow()
	ok, err := scan.FetchMax(row)
	if err != nil || !ok {
		return nil, false, err
	}
	return row, true, nil
}

// CheckIndex runs the consistency check of an index once queued
// post-commit work has finished.
func (se *StorageEngine) CheckIndex(indexName string) (bplus.CheckReport, error) {
	_, tree, err := se.index(indexName)
	if err != nil {
		return bplus.CheckReport{}, err
	}
	se.TxnManager.WaitForPostCommit()
	return tree.CheckConsistency()
}

// InspectIndex writes a page by page dump of an index to w.
func (se *StorageEngine) InspectIndex(indexName string, w io.Writer) error {
	_, tree, err := se.index(indexName)
	if err != nil {
		return err
	}
	se.TxnManager.WaitForPostCommit()
	return tree.Inspect(w)
}

// IndexStats returns the operation counters of an index.
func (se *StorageEngine) IndexStats(indexName string) (bplus.Stats, error) {
	_, tree, err := se.index(indexName)
	if err != nil {
		return bplus.Stats{}, err
	}
	return tree.Stats(), nil
}

// Stats returns the counters of the shared components.
func (se *StorageEngine) Stats() (EngineStats, error) {
	if err := se.RequireDatabase(); err != nil {
		return EngineStats{}, err
	}
	active := 0
	for _, tx := range se.TxnManager.ActiveTransactions() {
		if !tx.Internal {
			active++
		}
	}
	return EngineStats{
		Database:   se.currDb,
		BufferPool: se.BufferPool.GetStats(),
		Disk:       se.DiskManager.Stats(),
		Locks:      se.LockManager.Stats(),
		WALLSN:     se.WalManager.GetCurrentLSN(),
		Flushed:    se.WalManager.GetFlushedLSN(),
		ActiveTxns: active,
	}, nil
}
