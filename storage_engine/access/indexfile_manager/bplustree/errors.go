package bplus

import "github.com/cockroachdb/errors"

var (
	// ErrNoSpaceForKey means a row cannot be stored even on a page holding
	// the minimum number of rows. Splitting further would not help.
	ErrNoSpaceForKey = errors.New("no space for key on an index page")

	// ErrUnimplementedFeature is returned by the operations an index
	// controller deliberately does not support (replace, fetch or delete by
	// row location).
	ErrUnimplementedFeature = errors.New("operation not supported on a btree index")

	ErrScanNotPositioned = errors.New("scan is not positioned on a row")
	ErrScanClosed        = errors.New("scan is closed")
	ErrControllerClosed  = errors.New("index controller is closed")
	ErrRowNotFound       = errors.New("index row not found")
	ErrRowNotQualified   = errors.New("current row does not qualify")
	ErrNotForUpdate      = errors.New("index opened read-only")
	ErrInvalidRow        = errors.New("row does not match the index columns")
	ErrLoadNotEmpty      = errors.New("bulk load needs an empty index")
	ErrLoadOutOfOrder    = errors.New("bulk load input is not in ascending order")

	// errPageKindMismatch is returned when a page that was expected to be a
	// leaf turned out to be a branch (or the reverse), e.g. because the root
	// grew while the caller held no latch.
	errPageKindMismatch = errors.New("page kind mismatch")
)
