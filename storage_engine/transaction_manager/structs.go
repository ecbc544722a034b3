package txn

import (
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	"DaemonIndex/storage_engine/page"
	"DaemonIndex/types"
	"sync"

	"go.uber.org/zap"
)

type TxnState uint8

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	}
	return "unknown"
}

type Isolation uint8

const (
	ReadUncommitted Isolation = iota + 1
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "read uncommitted"
	case ReadCommitted:
		return "read committed"
	case RepeatableRead:
		return "repeatable read"
	case Serializable:
		return "serializable"
	}
	return "unknown"
}

/*
Transaction is either a user transaction or an internal (system) one.

A user transaction owns logical locks and undoes its index changes
logically: the undo handler re-finds each key by search, because splits
may have moved the row since it was changed.

An internal transaction does structural work (split, purge) on behalf of a
user transaction. It has its own lock space, keeps before-images of every
page it touches so Abort can put them back, and can Commit several times
before it is destroyed, once per unit of structural work.
*/
type Transaction struct {
	ID        uint64
	State     TxnState
	Isolation Isolation
	Internal  bool
	Parent    *Transaction

	owner lockmgr.Owner
	mgr   *TxnManager

	// Logical UNDO support (user transactions)
	UndoLog []UndoRecord

	// Physical UNDO support (internal transactions)
	beforeImages []beforeImage
	imaged       map[int64]bool

	held       []Releaser
	postCommit []PostCommitWork
	mu         sync.Mutex
}

type UndoKind uint8

const (
	// UndoInsert reverses an insert by marking the row deleted.
	UndoInsert UndoKind = iota + 1
	// UndoDelete reverses a delete by clearing the deleted mark.
	UndoDelete
	// UndoResurrect reverses an undelete-in-place: the row is marked
	// deleted again and gets its old row location back.
	UndoResurrect
)

func (k UndoKind) String() string {
	switch k {
	case UndoInsert:
		return "undo-insert"
	case UndoDelete:
		return "undo-delete"
	case UndoResurrect:
		return "undo-resurrect"
	}
	return "undo-?"
}

type UndoRecord struct {
	Kind      UndoKind
	FileID    uint32
	Row       []byte           // encoded leaf row as it is after the change
	OldRowLoc types.RowPointer // UndoResurrect only
}

// UndoHandler applies logical undo for one index container.
type UndoHandler interface {
	Undo(tx *Transaction, rec UndoRecord) error
}

type beforeImage struct {
	pg   *page.Page
	data []byte
	lsn  uint64
}

// Releaser is anything a transaction can hold until it ends, typically a
// latched page handle.
type Releaser interface {
	Release()
}

// PostCommitWork runs on a worker goroutine after the transaction that
// queued it commits. Work queued by an aborted transaction is discarded.
type PostCommitWork struct {
	Name string
	Run  func() error
}

// LogWriter is the part of the WAL the transaction manager needs.
type LogWriter interface {
	AppendOperation(op *types.Operation) (uint64, error)
	Sync() error
}

type Options struct {
	SyncOnCommit bool
	Workers      int
	QueueSize    int
	Logger       *zap.Logger
}

type TxnManager struct {
	nextID     uint64
	activeTxns map[uint64]*Transaction // all currently active transactions
	mu         sync.RWMutex

	locks *lockmgr.LockManager
	wal   LogWriter
	opts  Options

	undoMu       sync.RWMutex
	undoHandlers map[uint32]UndoHandler

	work     chan PostCommitWork
	workWG   sync.WaitGroup // queued but unfinished work
	workerWG sync.WaitGroup
	closed   bool

	logger *zap.Logger
}
