package storageengine

import (
	"fmt"

	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Insert adds one row to an index. A duplicate key is reported through
// the result, not as an error.
func (se *StorageEngine) Insert(tx *txn.Transaction, indexName string, kr KeyRow) (bplus.InsertResult, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return bplus.InsertOK, err
	}
	row, err := leafRow(schema, kr)
	if err != nil {
		return bplus.InsertOK, err
	}

	c, err := tree.OpenController(tx, bplus.LockRecord, bplus.OpenForUpdate)
	if err != nil {
		return bplus.InsertOK, err
	}
	defer c.Close()

	res, err := c.Insert(row)
	if err != nil {
		return res, err
	}
	se.logger.Debug("insert", zap.String("index", indexName), zap.Stringer("row", row), zap.Stringer("result", res))
	return res, nil
}

// Delete marks the row with the given key and location deleted. It
// returns false when the index holds no such live row.
func (se *StorageEngine) Delete(tx *txn.Transaction, indexName string, kr KeyRow) (bool, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return false, err
	}
	row, err := leafRow(schema, kr)
	if err != nil {
		return false, err
	}

	c, err := tree.OpenController(tx, bplus.LockRecord, bplus.OpenForUpdate)
	if err != nil {
		return false, err
	}
	defer c.Close()
	return c.Delete(row)
}

// Load bulk loads rows, which must be in index order, into an empty
// index.
func (se *StorageEngine) Load(tx *txn.Transaction, indexName string, rows []KeyRow) (int64, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return 0, err
	}
	leafRows := make([]types.Row, 0, len(rows))
	for _, kr := range rows {
		row, err := leafRow(schema, kr)
		if err != nil {
			return 0, err
		}
		leafRows = append(leafRows, row)
	}
	return se.load(tx, indexName, tree, bplus.NewSliceRowSource(leafRows))
}

// LoadRange bulk loads count generated rows whose key columns all hold
// from, from+1 and so on.
func (se *StorageEngine) LoadRange(tx *txn.Transaction, indexName string, from, count int64) (int64, error) {
	schema, tree, err := se.index(indexName)
	if err != nil {
		return 0, err
	}
	src, err := newRangeSource(schema, from, count)
	if err != nil {
		return 0, err
	}
	return se.load(tx, indexName, tree, src)
}

func (se *StorageEngine) load(tx *txn.Transaction, indexName string, tree *bplus.BTree, src bplus.RowSource) (int64, error) {
	n, err := tree.Load(tx, src)
	if err != nil {
		return 0, errors.Wrapf(err, "load %s", indexName)
	}
	se.logger.Info("index loaded", zap.String("index", indexName), zap.Int64("rows", n))
	return n, nil
}

// rangeSource generates the rows of LoadRange in index order.
type rangeSource struct {
	schema  types.IndexSchema
	kinds   []types.Kind
	next    int64
	step    int64
	remains int64
}

func newRangeSource(schema types.IndexSchema, from, count int64) (*rangeSource, error) {
	if count < 0 {
		return nil, errors.Newf("row count must not be negative, got %d", count)
	}
	kinds, ok := schema.KeyKinds()
	if !ok {
		return nil, errors.Newf("index %s has a column of unknown type", schema.IndexName)
	}
	for i, k := range kinds[:len(kinds)-1] {
		if k != types.KindInt && k != types.KindFloat && k != types.KindString {
			return nil, errors.Newf("cannot generate values for column %s of type %s", schema.Columns[i].Name, k)
		}
		if k == types.KindString && from < 0 {
			return nil, errors.Newf("generated strings of column %s need a range starting at 0 or above", schema.Columns[i].Name)
		}
	}

	src := &rangeSource{schema: schema, kinds: kinds, next: from, step: 1, remains: count}
	// only the first column decides the order, the others never tie-break
	if schema.Columns[0].Descending {
		src.next = from + count - 1
		src.step = -1
	}
	return src, nil
}

func (s *rangeSource) Next() (types.Row, bool, error) {
	if s.remains == 0 {
		return nil, false, nil
	}
	i := s.next
	s.next += s.step
	s.remains--

	key := make(types.Row, len(s.kinds)-1)
	for col := range key {
		switch s.kinds[col] {
		case types.KindInt:
			key[col] = types.IntValue(i)
		case types.KindFloat:
			key[col] = types.FloatValue(float64(i))
		case types.KindString:
			key[col] = types.StringValue(fmt.Sprintf("%012d", i))
		}
	}
	return append(key, types.PointerValue(defaultLocation(s.schema, key))), true, nil
}
