package types

const (
	PageSize = 4096 // 4KB page

	// Every page type shares the first 33 bytes: LSN (8), page type (1),
	// checksum (8), content version (8), reposition version (8). The disk
	// manager stamps all of them on write and restores them on read.
	PageLSNOffset        = 0
	PageTypeOffset       = 8
	PageChecksumOffset   = 9
	PageVersionOffset    = 17
	PageRepositionOffset = 25
	PageCommonHeader     = 33
)

type PageType uint8

const (
	PageTypeUnknown PageType = iota
	PageTypeIndex
	PageTypeFree
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeIndex:
		return "index"
	case PageTypeFree:
		return "free"
	default:
		return "unknown"
	}
}
