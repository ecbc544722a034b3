package executor

import (
	"fmt"
	"strings"

	storageengine "DaemonIndex/storage_engine"
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/types"

	"github.com/dustin/go-humanize"
)

const cellWidth = 20

func (vm *VM) PrintLine(cells []string) {
	for i, cell := range cells {
		fmt.Fprintf(vm.out, "%-*s", cellWidth, cell)
		if i < len(cells)-1 {
			fmt.Fprint(vm.out, "| ")
		}
	}
	fmt.Fprintln(vm.out)
}

func (vm *VM) PrintSeparator(count int) {
	if count > 0 {
		fmt.Fprintln(vm.out, strings.Repeat("-", (cellWidth+2)*count-2))
	}
}

// printRows prints leaf rows under the index's column names, the row
// location last.
func (vm *VM) printRows(schema types.IndexSchema, rows []types.Row) {
	header := make([]string, 0, len(schema.Columns)+1)
	for _, c := range schema.Columns {
		header = append(header, c.Name)
	}
	header = append(header, "location")
	vm.PrintLine(header)
	vm.PrintSeparator(len(header))
	for _, row := range rows {
		vm.PrintLine(storageengine.FormatRow(row))
	}
}

func (vm *VM) printIndexes(schemas []types.IndexSchema) {
	if len(schemas) == 0 {
		vm.printf("(no indexes)\n")
		return
	}
	vm.PrintLine([]string{"index", "table", "columns", "kind"})
	vm.PrintSeparator(4)
	for _, s := range schemas {
		cols := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = c.Name + " " + strings.ToLower(c.Type)
			if c.Descending {
				cols[i] += " desc"
			}
		}
		kind := "non-unique"
		switch {
		case s.UniqueWithDuplicateNulls:
			kind = "unique nulls"
		case s.Unique:
			kind = "unique"
		}
		vm.PrintLine([]string{s.IndexName, s.BaseTable, strings.Join(cols, ", "), kind})
	}
}

func (vm *VM) printIndexStats(name string, s bplus.Stats) {
	vm.printf("%s:\n", name)
	vm.printf("  inserts %s, duplicates %s, undeletes %s, deletes %s\n",
		humanize.Comma(s.Inserts), humanize.Comma(s.Duplicates), humanize.Comma(s.Undeletes), humanize.Comma(s.Deletes))
	vm.printf("  splits %s, root grows %s, restarts %s\n",
		humanize.Comma(s.Splits), humanize.Comma(s.RootGrows), humanize.Comma(s.Restarts))
	vm.printf("  reclaims %s purging %s row(s), %s row(s) loaded, %s max scan yields\n",
		humanize.Comma(s.Reclaims), humanize.Comma(s.RowsPurged), humanize.Comma(s.RowsLoaded), humanize.Comma(s.MaxScanYields))
}

func (vm *VM) printEngineStats(s storageengine.EngineStats) {
	vm.printf("database %s, %d active transaction(s)\n", s.Database, s.ActiveTxns)
	vm.printf("  buffer pool: %s\n", s.BufferPool)
	vm.printf("  disk:        %s\n", s.Disk)
	vm.printf("  locks:       %d object(s), %d waiter(s), %d wait(s), %d timeout(s), %d deadlock(s)\n",
		s.Locks.Objects, s.Locks.Waiters, s.Locks.Waits, s.Locks.Timeouts, s.Locks.Deadlocks)
	vm.printf("  log:         lsn %d, flushed %d\n", s.WALLSN, s.Flushed)
}

func (vm *VM) printLogSummary(s storageengine.LogSummary) {
	vm.printf("%s record(s) since LSN %d: %d commit(s), %d abort(s)\n",
		humanize.Comma(int64(s.Records)), s.FromLSN, s.Committed, s.Aborted)
	for op := types.OpIndexInsert; op <= types.OpIndexLoad; op++ {
		if n := s.ByType[op]; n > 0 {
			vm.printf("  %-16s %s\n", op, humanize.Comma(int64(n)))
		}
	}
	if len(s.Unfinished) > 0 {
		vm.printf("  unfinished transactions: %v\n", s.Unfinished)
	}
}

func joinValues(values []string) string {
	return strings.Join(values, ", ")
}

const helpText = `Commands:
  create database <name> | show databases | use <name>
  create index <name> on <table> (<col> <type> [desc], ...) [unique [nulls]] [maxrows <n>]
  drop index <name> | show indexes
  insert <index> (<v>, ...) [at <page>:<slot>] [, ...]
  delete <index> (<v>, ...) [at <page>:<slot>]
  delete <index> [from (<v>, ...) [exclusive]] [to (<v>, ...) [exclusive]] [where ...] [limit <n>]
  scan <index> [from (<v>, ...) [exclusive]] [to (<v>, ...) [exclusive]] [where ...] [limit <n>]
  max <index> [where ...]
  load <index> range <from> <count> | load <index> (<v>, ...) [at <page>:<slot>] [, ...]
  check <index> | stats [<index>]
  begin [read uncommitted|read committed|repeatable read|serializable] | commit | rollback
  checkpoint | show log | help | exit
where: <col> <op> <value> [and ...], with (<pred> or <pred>) groups and not
`
