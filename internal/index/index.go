// Package index implements the sparse offset index: a fixed-size, memory-mapped array
// of 8-byte entries mapping logical message offsets to physical byte positions within a
// log segment, searched by a cache-friendly binary search.
//
// OffsetIndex is the controller; region.go and search.go are
// the pieces it composes and hold no state of their own beyond the mapping and the
// comparison helpers.
package index

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OffsetIndex maps absolute message offsets to physical byte positions in the paired
// segment file.
type OffsetIndex struct {
	mu sync.Mutex

	region     *region
	baseOffset int64
	maxEntries int
	entries    int
	lastOffset int64
	closed     bool

	logger *zap.Logger
}

// OpenOffsetIndex opens or creates the index file at path for the segment with the given
// baseOffset. maxIndexSize bounds the writable file's pre-allocated size. Pass
// writable=false to open a previously sealed index for read-only serving.
func OpenOffsetIndex(path string, baseOffset int64, maxIndexSize uint64, writable bool) (*OffsetIndex, error) {
	r, length, err := openRegion(path, maxIndexSize, offsetEntrySize, writable)
	if err != nil {
		return nil, err
	}

	idx := &OffsetIndex{
		region:     r,
		baseOffset: baseOffset,
		maxEntries: int(length / offsetEntrySize),
		logger:     zap.L().Named("index").With(zap.String("file", path)),
	}

	if idx.maxEntries > 0 {
		idx.entries = scanValidOffsetPrefix(r.bytes(), idx.maxEntries)
	}
	idx.lastOffset = baseOffset
	if idx.entries > 0 {
		idx.lastOffset = baseOffset + int64(relOffsetAt(r.bytes(), idx.entries-1))
	}

	entriesInUse.WithLabelValues(path).Set(float64(idx.entries))
	return idx, nil
}

// scanValidOffsetPrefix infers how many leading entries are valid on open: an entry is
// valid iff it is strictly greater than the previous entry, or it is slot 0 with a
// non-zero position.
func scanValidOffsetPrefix(buf []byte, maxEntries int) int {
	if maxEntries == 0 {
		return 0
	}
	rel0, pos0 := relOffsetAt(buf, 0), positionAt(buf, 0)
	if rel0 == 0 && pos0 == 0 {
		return 0
	}
	count := 1
	prevRel := rel0
	for count < maxEntries {
		rel := relOffsetAt(buf, count)
		if rel <= prevRel {
			break
		}
		prevRel = rel
		count++
	}
	return count
}

func (idx *OffsetIndex) warmSlots(entries int) int {
	return warmSlotsFor(entries, offsetEntrySize)
}

// snapshot returns the live prefix of the mapping and the entry count it was taken at,
// per the buffer-snapshot discipline: a lock-protected copy of the cursor bounds so a
// concurrent append afterward cannot perturb an in-flight search.
func (idx *OffsetIndex) snapshot() ([]byte, int) {
	if !idx.region.writable {
		// Sealed: bookkeeping is immutable, so readers may skip the lock entirely.
		return idx.region.bytes()[:idx.entries*offsetEntrySize], idx.entries
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.region.bytes()[:idx.entries*offsetEntrySize], idx.entries
}

// Lookup returns the entry for the greatest offset <= targetOffset, or (baseOffset, 0)
// if no such entry exists. Returns ErrClosed once the index has been closed.
func (idx *OffsetIndex) Lookup(targetOffset int64) (offset int64, position int64, err error) {
	if idx.closed {
		return 0, 0, fmt.Errorf("%w: lookup", ErrClosed)
	}
	start := time.Now()
	buf, entries := idx.snapshot()
	rel := targetOffset - idx.baseOffset
	slot := largestLowerBoundSlot(entries, func(i int) int64 { return int64(relOffsetAt(buf, i)) }, rel, idx.warmSlots(entries))
	lookupDuration.WithLabelValues(idx.region.name()).Observe(time.Since(start).Seconds())
	if slot < 0 {
		return idx.baseOffset, 0, nil
	}
	return idx.baseOffset + int64(relOffsetAt(buf, slot)), int64(positionAt(buf, slot)), nil
}

// FetchUpperBoundOffset returns the entry with the smallest position >=
// startPosition+fetchSize, or ok=false if no such entry exists.
func (idx *OffsetIndex) FetchUpperBoundOffset(startPosition int64, fetchSize int64) (offset int64, position int64, ok bool, err error) {
	if idx.closed {
		return 0, 0, false, fmt.Errorf("%w: fetchUpperBoundOffset", ErrClosed)
	}
	start := time.Now()
	buf, entries := idx.snapshot()
	targetPosition := startPosition + fetchSize
	slot := smallestUpperBoundSlot(entries, func(i int) int64 { return int64(positionAt(buf, i)) }, targetPosition, idx.warmSlots(entries))
	lookupDuration.WithLabelValues(idx.region.name()).Observe(time.Since(start).Seconds())
	if slot < 0 {
		return 0, 0, false, nil
	}
	return idx.baseOffset + int64(relOffsetAt(buf, slot)), int64(positionAt(buf, slot)), true, nil
}

// Entries returns the number of live entries.
func (idx *OffsetIndex) Entries() (int, error) {
	if idx.closed {
		return 0, fmt.Errorf("%w: entries", ErrClosed)
	}
	_, entries := idx.snapshot()
	return entries, nil
}

// LastOffset returns the absolute offset of the last live entry, or baseOffset if empty.
func (idx *OffsetIndex) LastOffset() (int64, error) {
	if idx.closed {
		return 0, fmt.Errorf("%w: lastOffset", ErrClosed)
	}
	if !idx.region.writable {
		return idx.lastOffset, nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.lastOffset, nil
}

// Entry returns the nth live entry, for diagnostics and tests. n must be in [0, entries).
func (idx *OffsetIndex) Entry(n int) (offset int64, position int64, err error) {
	if idx.closed {
		return 0, 0, fmt.Errorf("%w: entry", ErrClosed)
	}
	buf, entries := idx.snapshot()
	if n < 0 || n >= entries {
		return 0, 0, fmt.Errorf("index: slot %d out of range [0,%d)", n, entries)
	}
	return idx.baseOffset + int64(relOffsetAt(buf, n)), int64(positionAt(buf, n)), nil
}

// Append writes a new entry for offset at position.
func (idx *OffsetIndex) Append(offset int64, position int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path := idx.region.name()
	if idx.closed || !idx.region.writable {
		appendsTotal.WithLabelValues(path, "closed").Inc()
		return fmt.Errorf("%w: append", ErrClosed)
	}
	if idx.entries >= idx.maxEntries {
		appendsTotal.WithLabelValues(path, "full").Inc()
		return fmt.Errorf("%w: %d entries already used", ErrIndexFull, idx.entries)
	}
	if idx.entries > 0 && offset <= idx.lastOffset {
		appendsTotal.WithLabelValues(path, "invalid_offset").Inc()
		return fmt.Errorf("%w: offset %d does not exceed last offset %d", ErrInvalidOffset, offset, idx.lastOffset)
	}
	rel := offset - idx.baseOffset
	if rel < 0 || rel > 0xFFFFFFFF {
		appendsTotal.WithLabelValues(path, "overflow").Inc()
		return fmt.Errorf("%w: offset %d relative to base %d", ErrOffsetOverflow, offset, idx.baseOffset)
	}

	putOffsetEntry(idx.region.bytes(), idx.entries, uint32(rel), uint32(position))
	idx.entries++
	idx.lastOffset = offset

	appendsTotal.WithLabelValues(path, "ok").Inc()
	entriesInUse.WithLabelValues(path).Set(float64(idx.entries))
	return nil
}

// Truncate removes all entries.
func (idx *OffsetIndex) Truncate() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || !idx.region.writable {
		return fmt.Errorf("%w: truncate", ErrClosed)
	}
	idx.entries = 0
	idx.lastOffset = idx.baseOffset
	entriesInUse.WithLabelValues(idx.region.name()).Set(0)
	return nil
}

// TruncateTo removes entries with absolute offset >= offset.
func (idx *OffsetIndex) TruncateTo(offset int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || !idx.region.writable {
		return fmt.Errorf("%w: truncateTo", ErrClosed)
	}

	buf := idx.region.bytes()
	rel := offset - idx.baseOffset
	slot := largestLowerBoundSlot(idx.entries, func(i int) int64 { return int64(relOffsetAt(buf, i)) }, rel, idx.warmSlots(idx.entries))

	var newCount int
	switch {
	case slot < 0:
		newCount = 0
	case int64(relOffsetAt(buf, slot)) == rel:
		newCount = slot
	default:
		newCount = slot + 1
	}

	idx.entries = newCount
	idx.lastOffset = idx.baseOffset
	if newCount > 0 {
		idx.lastOffset = idx.baseOffset + int64(relOffsetAt(buf, newCount-1))
	}
	entriesInUse.WithLabelValues(idx.region.name()).Set(float64(idx.entries))
	return nil
}

// SanityCheck verifies the index's structural invariants, returning ErrCorruptIndex if
// any are violated.
func (idx *OffsetIndex) SanityCheck() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("%w: sanityCheck", ErrClosed)
	}

	mappedLen := len(idx.region.bytes())
	if mappedLen%offsetEntrySize != 0 {
		idx.logger.Error("index file length is not a multiple of the entry size", zap.Int("length", mappedLen))
		return fmt.Errorf("%w: length %d is not a multiple of %d", ErrCorruptIndex, mappedLen, offsetEntrySize)
	}
	if idx.entries > 0 && idx.lastOffset < idx.baseOffset {
		idx.logger.Error("last offset precedes base offset", zap.Int64("lastOffset", idx.lastOffset), zap.Int64("baseOffset", idx.baseOffset))
		return fmt.Errorf("%w: lastOffset %d < baseOffset %d", ErrCorruptIndex, idx.lastOffset, idx.baseOffset)
	}

	buf := idx.region.bytes()
	var prevRel int64 = -1
	for i := 0; i < idx.entries; i++ {
		rel := int64(relOffsetAt(buf, i))
		if rel <= prevRel {
			idx.logger.Error("live prefix is not strictly increasing", zap.Int("slot", i))
			return fmt.Errorf("%w: slot %d is not strictly increasing", ErrCorruptIndex, i)
		}
		prevRel = rel
	}
	return nil
}

// Flush forces the mapping's dirty pages to disk. Best-effort: a failure is logged, not
// returned as fatal to the caller's control flow, though the error is still returned so
// a caller that cares can act on it.
func (idx *OffsetIndex) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("%w: flush", ErrClosed)
	}
	if err := idx.region.flush(); err != nil {
		idx.logger.Warn("flush failed", zap.Error(err))
		return err
	}
	return nil
}

// MakeReadOnly seals the index: flushes, trims the file to its live length, and
// transitions it to read-only.
func (idx *OffsetIndex) MakeReadOnly() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || !idx.region.writable {
		return fmt.Errorf("%w: makeReadOnly", ErrClosed)
	}
	if err := idx.region.seal(uint64(idx.entries) * offsetEntrySize); err != nil {
		return err
	}
	idx.maxEntries = idx.entries
	return nil
}

// Close flushes a writable index and releases its file handle. The mapping is not
// unmapped; after Close every operation returns ErrClosed instead of touching it.
// Idempotent.
func (idx *OffsetIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.region.close()
}

// Name returns the backing file's path.
func (idx *OffsetIndex) Name() string {
	return idx.region.name()
}
