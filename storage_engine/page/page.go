package page

import (
	"DaemonIndex/types"
	"sync"
	"sync/atomic"
)

const (
	PageSize      = types.PageSize
	PageLSNOffset = types.PageLSNOffset // first 8 bytes of every page = LSN
)

/*
Page is one buffer pool frame.

Two different mutual-exclusion mechanisms live on a frame:

  - mu guards frame bookkeeping (PinCount, IsDirty) and is only taken by the
    buffer pool for a few instructions.
  - latch guards the page contents. It is exclusive, held by whichever
    goroutine is reading or changing the records on the page, and is always
    taken top-down in the tree. TryLatch is the NOWAIT variant.

version is bumped on every change to the page contents. repositionAfter
records the version at which rows last moved off the page (purge, split,
copy-and-purge); a cursor that saved its position at version v must
re-search when repositionAfter > v.
*/

type Page struct {
	ID       int64
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	LSN      uint64 // in-memory, set by the container on every logged change
	mu       sync.RWMutex

	latch           sync.Mutex
	latched         atomic.Bool
	version         atomic.Uint64
	repositionAfter atomic.Uint64
}

func (p *Page) Lock() {
	p.mu.Lock()
}

func (p *Page) Unlock() {
	p.mu.Unlock()
}

func (p *Page) RLock() {
	p.mu.RLock()
}

func (p *Page) RUnlock() {
	p.mu.RUnlock()
}

// Latch waits for the exclusive page latch.
func (p *Page) Latch() {
	p.latch.Lock()
	p.latched.Store(true)
}

// TryLatch acquires the page latch only if it is free.
func (p *Page) TryLatch() bool {
	if !p.latch.TryLock() {
		return false
	}
	p.latched.Store(true)
	return true
}

func (p *Page) Unlatch() {
	p.latched.Store(false)
	p.latch.Unlock()
}

func (p *Page) IsLatched() bool {
	return p.latched.Load()
}

// Version is the current content version of the page.
func (p *Page) Version() uint64 {
	return p.version.Load()
}

// BumpVersion records a change to the page contents. Caller holds the latch.
func (p *Page) BumpVersion() uint64 {
	return p.version.Add(1)
}

// SetVersion restores a version counter read back from disk.
func (p *Page) SetVersion(v uint64) {
	p.version.Store(v)
}

// SetRepositionNeeded marks that rows may have left the page as of the
// current version.
func (p *Page) SetRepositionNeeded() {
	p.repositionAfter.Store(p.BumpVersion())
}

// IsRepositionNeeded reports whether a position saved at version v can no
// longer be trusted by slot.
func (p *Page) IsRepositionNeeded(v uint64) bool {
	return p.repositionAfter.Load() > v
}

// RepositionVersion is the version at which rows last moved off the page.
func (p *Page) RepositionVersion() uint64 {
	return p.repositionAfter.Load()
}

// SetRepositionVersion restores the reposition marker read back from disk.
func (p *Page) SetRepositionVersion(v uint64) {
	p.repositionAfter.Store(v)
}
