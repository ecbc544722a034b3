package executor

/*
The VM executes parsed shell commands against the storage engine.

 VM - Orchestrates commands, does NOT touch pages itself
     ↓
     ├─→ Catalog - index schemas and file ids
     ├─→ B-tree - index rows, scans, splits
     └─→ TxnManager / WAL - transaction boundaries

Data commands outside BEGIN ... COMMIT run in an automatic transaction of
their own.
*/

import (
	"fmt"
	"io"
	"os"

	"DaemonIndex/command_parser/parser"
	"DaemonIndex/logging"
	storageengine "DaemonIndex/storage_engine"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	ErrTxnInProgress = errors.New("a transaction is already in progress")
	ErrNoTxn         = errors.New("no active transaction")
)

func NewVM(se *storageengine.StorageEngine, out io.Writer, logger *zap.Logger) *VM {
	if out == nil {
		out = os.Stdout
	}
	return &VM{
		storageEngine:    se,
		out:              out,
		logger:           logging.OrNop(logger).Named("vm"),
		defaultIsolation: txn.ReadCommitted,
	}
}

// ExecuteLine parses and executes one command.
func (vm *VM) ExecuteLine(line string) error {
	stmt, err := parser.Parse(line)
	if err != nil {
		return err
	}
	return vm.Execute(stmt)
}

func (vm *VM) Execute(stmt parser.Statement) error {
	se := vm.storageEngine

	switch s := stmt.(type) {
	case *parser.CreateDatabaseStmt:
		if err := se.CreateDatabase(s.DbName); err != nil {
			return err
		}
		vm.printf("Created database %s\n", s.DbName)
		return nil

	case *parser.ShowDatabasesStmt:
		databases, err := se.ShowDatabases()
		if err != nil {
			return err
		}
		vm.printf("Databases:\n")
		for _, db := range databases {
			vm.printf("  - %s\n", db)
		}
		return nil

	case *parser.UseDatabaseStmt:
		if vm.currentTxn != nil {
			return errors.Wrap(ErrTxnInProgress, "commit or roll back before switching databases")
		}
		if err := se.UseDatabase(s.DbName); err != nil {
			return err
		}
		vm.printf("Switched to database: %s\n", s.DbName)
		return nil

	case *parser.CreateIndexStmt:
		return vm.ExecuteCreateIndex(s)

	case *parser.DropIndexStmt:
		if vm.currentTxn != nil {
			return errors.Wrap(ErrTxnInProgress, "commit or roll back before dropping an index")
		}
		if err := se.DropIndex(s.Name); err != nil {
			return err
		}
		vm.printf("Dropped index %s\n", s.Name)
		return nil

	case *parser.ShowIndexesStmt:
		schemas, err := se.ListIndexes()
		if err != nil {
			return err
		}
		vm.printIndexes(schemas)
		return nil

	case *parser.InsertStmt:
		return vm.inTransaction(func(tx *txn.Transaction) error { return vm.ExecuteInsert(tx, s) })

	case *parser.DeleteStmt:
		return vm.inTransaction(func(tx *txn.Transaction) error { return vm.ExecuteDelete(tx, s) })

	case *parser.ScanStmt:
		return vm.inTransaction(func(tx *txn.Transaction) error { return vm.ExecuteScan(tx, s) })

	case *parser.MaxStmt:
		return vm.inTransaction(func(tx *txn.Transaction) error { return vm.ExecuteMax(tx, s) })

	case *parser.LoadStmt:
		return vm.inTransaction(func(tx *txn.Transaction) error { return vm.ExecuteLoad(tx, s) })

	case *parser.CheckStmt:
		report, err := se.CheckIndex(s.Index)
		if err != nil {
			return err
		}
		vm.printf("%s: ok, %s\n", s.Index, report)
		return nil

	case *parser.StatsStmt:
		return vm.ExecuteStats(s)

	case *parser.BeginStmt:
		return vm.ExecuteBegin(s)

	case *parser.CommitStmt:
		if vm.currentTxn == nil {
			return ErrNoTxn
		}
		id := vm.currentTxn.ID
		if err := se.CommitTransaction(vm.currentTxn); err != nil {
			return err
		}
		vm.currentTxn = nil
		vm.printf("Transaction %d committed\n", id)
		return nil

	case *parser.RollbackStmt:
		if vm.currentTxn == nil {
			return ErrNoTxn
		}
		id := vm.currentTxn.ID
		err := se.AbortTransaction(vm.currentTxn)
		vm.currentTxn = nil
		if err != nil {
			return err
		}
		vm.printf("Transaction %d rolled back\n", id)
		return nil

	case *parser.CheckpointStmt:
		if err := se.SaveCheckpoint(); err != nil {
			return err
		}
		vm.printf("Checkpoint saved\n")
		return nil

	case *parser.ShowLogStmt:
		summary, err := se.ScanLog()
		if err != nil {
			return err
		}
		vm.printLogSummary(summary)
		return nil

	case *parser.HelpStmt:
		vm.printf("%s", helpText)
		return nil
	}
	return errors.Newf("unsupported statement %T", stmt)
}

// ExecuteBegin starts an explicit transaction.
func (vm *VM) ExecuteBegin(s *parser.BeginStmt) error {
	if vm.currentTxn != nil {
		return ErrTxnInProgress
	}
	iso := vm.defaultIsolation
	switch s.Isolation {
	case "uncommitted":
		iso = txn.ReadUncommitted
	case "committed":
		iso = txn.ReadCommitted
	case "repeatable":
		iso = txn.RepeatableRead
	case "serializable":
		iso = txn.Serializable
	}
	tx, err := vm.storageEngine.BeginTransaction(iso)
	if err != nil {
		return err
	}
	vm.currentTxn = tx
	vm.printf("Transaction %d started (%s)\n", tx.ID, tx.Isolation)
	return nil
}

func (vm *VM) ExecuteCreateIndex(s *parser.CreateIndexStmt) error {
	schema := types.IndexSchema{
		IndexName:                s.Name,
		BaseTable:                s.Table,
		Unique:                   s.Unique && !s.UniqueNulls,
		UniqueWithDuplicateNulls: s.UniqueNulls,
		MaxRowsPerPage:           s.MaxRows,
	}
	for _, c := range s.Columns {
		if _, ok := types.ParseKind(c.Type); !ok {
			return errors.Newf("column %s: unknown type %s", c.Name, c.Type)
		}
		schema.Columns = append(schema.Columns, types.ColumnDef{Name: c.Name, Type: c.Type, Descending: c.Descending})
	}

	created, err := vm.storageEngine.CreateIndex(schema)
	if err != nil {
		return err
	}
	vm.printf("Created index %s on %s (file %d)\n", created.IndexName, created.BaseTable, created.IndexFileID)
	return nil
}

func (vm *VM) printf(format string, args ...any) {
	fmt.Fprintf(vm.out, format, args...)
}
