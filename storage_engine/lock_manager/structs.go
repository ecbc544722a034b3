package lockmgr

import (
	"DaemonIndex/types"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Owner identifies a lock space, one per transaction (internal
// transactions get their own).
type Owner uint64

type Mode uint8

const (
	// row modes
	ModeShared Mode = iota + 1
	ModeUpdate
	ModeExclusive
	ModeInsertPrevKey
	// ModeSharedReadCommitted is the shared lock of a read-committed
	// reader. It does not protect the gap after the row.
	ModeSharedReadCommitted

	// table modes
	ModeIntentShared
	ModeIntentExclusive
	ModeTableShared
	ModeTableExclusive
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "S"
	case ModeUpdate:
		return "U"
	case ModeExclusive:
		return "X"
	case ModeInsertPrevKey:
		return "IP"
	case ModeSharedReadCommitted:
		return "SR"
	case ModeIntentShared:
		return "IS"
	case ModeIntentExclusive:
		return "IX"
	case ModeTableShared:
		return "TS"
	case ModeTableExclusive:
		return "TX"
	default:
		return "?"
	}
}

// Duration controls how long a granted lock is kept.
type Duration uint8

const (
	// DurationInstant waits until the lock is grantable and releases it at
	// once.
	DurationInstant Duration = iota
	// DurationCommit keeps the lock until ReleaseAll.
	DurationCommit
	// DurationManual keeps the lock until Unlock or ReleaseAll.
	DurationManual
)

type KeyKind uint8

const (
	KeyRow KeyKind = iota
	KeyTable
	// KeyPreviousToFirst stands for the position before the first row of
	// an index, locked when a scan or insert has no previous row.
	KeyPreviousToFirst
)

// Key names one lockable object: a base-table row, a table, or the
// previous-to-first-key handle of a table.
type Key struct {
	ContainerID uint32
	Kind        KeyKind
	Row         types.RowPointer
}

func RowKey(containerID uint32, row types.RowPointer) Key {
	return Key{ContainerID: containerID, Kind: KeyRow, Row: row}
}

func TableKey(containerID uint32) Key {
	return Key{ContainerID: containerID, Kind: KeyTable}
}

func PreviousToFirstKey(containerID uint32) Key {
	return Key{ContainerID: containerID, Kind: KeyPreviousToFirst}
}

func (k Key) String() string {
	switch k.Kind {
	case KeyTable:
		return fmt.Sprintf("table(%d)", k.ContainerID)
	case KeyPreviousToFirst:
		return fmt.Sprintf("prevkey(%d)", k.ContainerID)
	default:
		return fmt.Sprintf("row(%d,%s)", k.ContainerID, k.Row)
	}
}

type holding struct {
	counts map[Mode]int
}

type waiter struct {
	owner   Owner
	mode    Mode
	ready   chan struct{}
	granted bool
	record  bool // keep the lock once granted (not instant)
}

type lockEntry struct {
	holders map[Owner]*holding
	waiters []*waiter
}

type LockManager struct {
	locks   map[Key]*lockEntry
	owned   map[Owner]map[Key]struct{}
	waiting map[Owner]*waitFor
	timeout time.Duration

	deadlockCheck bool
	logger        *zap.Logger
	mu            sync.Mutex

	waits     int64
	timeouts  int64
	deadlocks int64
}

type waitFor struct {
	key  Key
	mode Mode
}

// Stats is a snapshot of lock manager counters.
type Stats struct {
	Objects   int
	Waiters   int
	Waits     int64
	Timeouts  int64
	Deadlocks int64
}
