// Structure of the B+ Tree
/*
Container (one index file, pages by local page number)
 ├── page 0: root, always. A leaf while the tree has one level, a branch after
 │           the first growRoot.
 ├── branch pages: slot 0 control row, slots 1.. branch rows
 │      branch row = leaf-row columns of the first row of the child + child page
 └── leaf pages:   slot 0 control row, slots 1.. leaf rows
        leaf row   = key columns + row location (the row's base-table pointer)

- rows on a page are in ascending order per the declared column directions
- leaf rows may carry a deleted mark, they are only purged by an internal
  transaction that can lock the row exclusively without waiting
- pages on the same level are linked with left/right sibling pointers
- latches are taken top-down and left-to-right only; a move to the left
  sibling never waits for the latch
*/
package bplus

import (
	"sync/atomic"
	"time"

	"DaemonIndex/storage_engine/access/container"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"go.uber.org/zap"
)

const (
	rootPageID  int64 = 0
	invalidPage int64 = -1

	controlSlot = 0
	firstSlot   = 1
)

// search positioning for keys that are a prefix of an index row
const (
	positionLeftOfPartialKeyMatch  = 1
	positionRightOfPartialKeyMatch = -1
)

type splitFlag uint8

const (
	splitFirstOnPage splitFlag = 1 << iota
	splitLastOnPage
	splitFirstInTable
	splitLastInTable
)

// Options configure an open tree.
type Options struct {
	// MaxScanRetryWait is how long a max scan sleeps after failing to latch a
	// left sibling without waiting.
	MaxScanRetryWait time.Duration
	// Debug turns on order checks during bulk load and consistency checks
	// after splits.
	Debug  bool
	Logger *zap.Logger
}

// BTree is an open index: the descriptor, the container holding its pages
// and the managers every operation on it goes through.
type BTree struct {
	conglom   *Conglomerate
	container *container.Container
	txns      *txn.TxnManager
	locks     *lockmgr.LockManager
	opts      Options
	logger    *zap.Logger

	stats  treeStats
	closed atomic.Bool
}

type treeStats struct {
	inserts       atomic.Int64
	duplicates    atomic.Int64
	undeletes     atomic.Int64
	deletes       atomic.Int64
	splits        atomic.Int64
	rootGrows     atomic.Int64
	reclaims      atomic.Int64
	rowsPurged    atomic.Int64
	restarts      atomic.Int64
	rowsLoaded    atomic.Int64
	maxScanYields atomic.Int64
}

// Stats is a snapshot of the tree's counters.
type Stats struct {
	Inserts       int64
	Duplicates    int64
	Undeletes     int64
	Deletes       int64
	Splits        int64
	RootGrows     int64
	Reclaims      int64
	RowsPurged    int64
	Restarts      int64
	RowsLoaded    int64
	MaxScanYields int64
}

// controlRow is the decoded slot 0 of a tree page together with the latched
// page it was read from. Setters write through to the page.
type controlRow struct {
	page         *container.PageHandle
	level        int
	isRoot       bool
	leftSibling  int64
	rightSibling int64
	leftChild    int64 // branches only
}

type leafNode struct {
	controlRow
}

type branchNode struct {
	controlRow
}

// node is a latched tree page, either *leafNode or *branchNode.
type node interface {
	cr() *controlRow
	release()
	splitFor(t *BTree, itx *txn.Transaction, parent *branchNode, splitRow types.Row, flag splitFlag) (int64, error)
}

// searchParams carries one search down the tree and its result.
type searchParams struct {
	searchKey         types.Row
	partialKeyMatchOp int

	resultSlot  int
	resultExact bool
}

// InsertResult is the logical outcome of an insert.
type InsertResult uint8

const (
	InsertOK InsertResult = iota
	InsertDuplicate
)

func (r InsertResult) String() string {
	if r == InsertDuplicate {
		return "duplicate"
	}
	return "ok"
}

// dupResult is the outcome of comparing an insert against its neighbours
// in an almost-unique index.
type dupResult uint8

const (
	noMatch dupResult = iota
	matchFound
	// rescanRequired: a latch had to be given up. No latch is held on
	// return and the insert must search again.
	rescanRequired
)

// retryDecision is what a lock or cursor step tells the loop driving it.
type retryDecision uint8

const (
	// decisionContinue: nothing was released, carry on.
	decisionContinue retryDecision = iota
	// decisionRestart: latches were released; search again or reposition.
	decisionRestart
	// decisionDone: there is nothing more to visit.
	decisionDone
)

func (d retryDecision) String() string {
	switch d {
	case decisionContinue:
		return "continue"
	case decisionRestart:
		return "restart"
	case decisionDone:
		return "done"
	}
	return "?"
}
