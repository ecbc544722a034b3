package executor

import (
	"DaemonIndex/command_parser/parser"
	storageengine "DaemonIndex/storage_engine"
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func keyRow(r parser.RowLiteral) storageengine.KeyRow {
	kr := storageengine.KeyRow{Values: r.Values}
	if r.At != nil {
		kr.At = &types.RowPointer{PageNumber: r.At.Page, SlotIndex: r.At.Slot}
	}
	return kr
}

func predicates(where [][]parser.Predicate) [][]storageengine.Predicate {
	if len(where) == 0 {
		return nil
	}
	out := make([][]storageengine.Predicate, len(where))
	for i, group := range where {
		for _, p := range group {
			out[i] = append(out[i], storageengine.Predicate{
				Column: p.Column,
				Op:     p.Op,
				Value:  p.Value,
				Negate: p.Negate,
			})
		}
	}
	return out
}

func scanRequest(rc parser.RangeClause) storageengine.ScanRequest {
	return storageengine.ScanRequest{
		From:          rc.From,
		FromExclusive: rc.FromExclusive,
		To:            rc.To,
		ToExclusive:   rc.ToExclusive,
		Where:         predicates(rc.Where),
		Limit:         rc.Limit,
	}
}

// ExecuteInsert inserts every row of s. Duplicates are reported and
// skipped; they do not fail the statement.
func (vm *VM) ExecuteInsert(tx *txn.Transaction, s *parser.InsertStmt) error {
	inserted, duplicates := 0, 0
	for _, r := range s.Rows {
		res, err := vm.storageEngine.Insert(tx, s.Index, keyRow(r))
		if err != nil {
			return err
		}
		if res == bplus.InsertDuplicate {
			duplicates++
			vm.printf("duplicate key (%s) skipped\n", joinValues(r.Values))
			continue
		}
		inserted++
	}
	vm.printf("%d row(s) inserted", inserted)
	if duplicates > 0 {
		vm.printf(", %d duplicate(s)", duplicates)
	}
	vm.printf("\n")
	return nil
}

func (vm *VM) ExecuteDelete(tx *txn.Transaction, s *parser.DeleteStmt) error {
	if s.Row != nil {
		ok, err := vm.storageEngine.Delete(tx, s.Index, keyRow(*s.Row))
		if err != nil {
			return err
		}
		if !ok {
			vm.printf("0 row(s) deleted\n")
			return nil
		}
		vm.printf("1 row(s) deleted\n")
		return nil
	}
	n, err := vm.storageEngine.DeleteWhere(tx, s.Index, scanRequest(*s.Range))
	if err != nil {
		return err
	}
	vm.printf("%d row(s) deleted\n", n)
	return nil
}

func (vm *VM) ExecuteScan(tx *txn.Transaction, s *parser.ScanStmt) error {
	schema, err := vm.storageEngine.CatalogManager.GetIndexSchema(s.Index)
	if err != nil {
		return err
	}
	rows, info, err := vm.storageEngine.Scan(tx, s.Index, scanRequest(s.RangeClause))
	if err != nil {
		return err
	}
	vm.printRows(schema, rows)
	vm.printf("(%s row(s); %s)\n", humanize.Comma(int64(len(rows))), info)
	return nil
}

func (vm *VM) ExecuteMax(tx *txn.Transaction, s *parser.MaxStmt) error {
	schema, err := vm.storageEngine.CatalogManager.GetIndexSchema(s.Index)
	if err != nil {
		return err
	}
	row, ok, err := vm.storageEngine.Max(tx, s.Index, predicates(s.Where))
	if err != nil {
		return err
	}
	if !ok {
		vm.printf("(no row)\n")
		return nil
	}
	vm.printRows(schema, []types.Row{row})
	return nil
}

func (vm *VM) ExecuteLoad(tx *txn.Transaction, s *parser.LoadStmt) error {
	var n int64
	var err error
	if s.Generate {
		n, err = vm.storageEngine.LoadRange(tx, s.Index, s.From, s.Count)
	} else {
		rows := make([]storageengine.KeyRow, len(s.Rows))
		for i, r := range s.Rows {
			rows[i] = keyRow(r)
		}
		n, err = vm.storageEngine.Load(tx, s.Index, rows)
	}
	if err != nil {
		return err
	}
	vm.logger.Debug("load finished", zap.String("index", s.Index), zap.Int64("rows", n))
	vm.printf("%s row(s) loaded\n", humanize.Comma(n))
	return nil
}

func (vm *VM) ExecuteStats(s *parser.StatsStmt) error {
	if s.Index != "" {
		stats, err := vm.storageEngine.IndexStats(s.Index)
		if err != nil {
			return err
		}
		vm.printIndexStats(s.Index, stats)
		return nil
	}
	stats, err := vm.storageEngine.Stats()
	if err != nil {
		return err
	}
	vm.printEngineStats(stats)
	return nil
}
