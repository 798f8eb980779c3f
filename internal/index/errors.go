package index

import "errors"

// Error kinds surfaced by the index's public operations. Callers should match on these
// with errors.Is; operations wrap them with fmt.Errorf("...: %w", ...) for context.
var (
	// ErrInvalidOffset is returned by Append when the offset is not strictly greater
	// than the index's current last offset.
	ErrInvalidOffset = errors.New("index: offset is not strictly increasing")

	// ErrOffsetOverflow is returned by Append when offset-baseOffset does not fit in
	// 32 bits. The caller must roll the segment.
	ErrOffsetOverflow = errors.New("index: offset exceeds relative range")

	// ErrIndexFull is returned by Append when the index has no remaining slots. The
	// caller must roll the segment.
	ErrIndexFull = errors.New("index: no remaining entry slots")

	// ErrCorruptIndex is returned by SanityCheck when the on-disk structure is
	// inconsistent with the index's structural invariants.
	ErrCorruptIndex = errors.New("index: structural corruption detected")

	// ErrIOFailure wraps an underlying file or mapping failure.
	ErrIOFailure = errors.New("index: I/O failure")

	// ErrClosed is returned by any operation attempted after Close, and by any
	// mutating operation attempted while the index is read-only (sealed).
	ErrClosed = errors.New("index: operation not permitted in current state")
)
