package evbuffer

import "errors"

// Sentinel errors returned by evbuffer operations. The core reports every
// failure as a single sentinel per spec; callers compare with errors.Is.
var (
	// ErrFrozen is returned when a mutation would cross a frozen barrier
	// (front-frozen prepend/drain, back-frozen append/reserve/commit).
	ErrFrozen = errors.New("evbuffer: buffer frozen in that direction")

	// ErrAlloc is returned when a heap segment allocation fails.
	ErrAlloc = errors.New("evbuffer: allocation failed")

	// ErrInvalidArgument covers negative sizes, out-of-range positions,
	// self-transfers, unbalanced Unfreeze, and similar argument violations.
	ErrInvalidArgument = errors.New("evbuffer: invalid argument")

	// ErrCommitExceedsReservation is returned when CommitSpace is called
	// with more bytes than were handed out by ReserveSpace.
	ErrCommitExceedsReservation = errors.New("evbuffer: commit exceeds reservation")

	// ErrNoReservation is returned when CommitSpace is called without a
	// preceding, still-valid ReserveSpace.
	ErrNoReservation = errors.New("evbuffer: commit without reservation")

	// ErrNotFound is returned by Search/Readln when no match exists.
	ErrNotFound = errors.New("evbuffer: not found")

	// ErrForeignCallbackRemoval is returned when a callback dispatch
	// attempts to remove a handle other than its own.
	ErrForeignCallbackRemoval = errors.New("evbuffer: callback may not remove another callback")

	// ErrClosed is returned by ReadFromFD, WriteToFD, AddFile and
	// AddFileSegment on a buffer that has been freed. A FileSegment has no
	// freed state of its own; using one whose fd is already closed is not
	// detected.
	ErrClosed = errors.New("evbuffer: use after free")
)
