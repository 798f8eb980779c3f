package index

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// timeEntrySize is the on-disk width of one time-index entry: an 8-byte timestamp key
// followed by a 4-byte relative offset value, both big-endian. TimeIndex is the sibling
// variant sharing the region manager and search engine with OffsetIndex through a
// different entry shape (8-byte key + 4-byte value).
const timeEntrySize = 12

func timestampAt(buf []byte, slot int) int64 {
	base := slot * timeEntrySize
	return int64(binary.BigEndian.Uint64(buf[base : base+8]))
}

func timeRelOffsetAt(buf []byte, slot int) uint32 {
	base := slot * timeEntrySize
	return binary.BigEndian.Uint32(buf[base+8 : base+12])
}

func putTimeEntry(buf []byte, slot int, timestamp int64, relOffset uint32) {
	base := slot * timeEntrySize
	binary.BigEndian.PutUint64(buf[base:base+8], uint64(timestamp))
	binary.BigEndian.PutUint32(buf[base+8:base+12], relOffset)
}

// TimeIndex maps message timestamps to absolute offsets, keyed by timestamp instead of
// by offset. It otherwise obeys the same lifecycle, locking, and search shape as
// OffsetIndex, just over a 12-byte entry and with timestamp as the sort key instead of
// offset.
type TimeIndex struct {
	mu sync.Mutex

	region     *region
	baseOffset int64
	maxEntries int
	entries    int
	lastStamp  int64
	closed     bool

	logger *zap.Logger
}

// OpenTimeIndex opens or creates a time index file, mirroring OpenOffsetIndex.
func OpenTimeIndex(path string, baseOffset int64, maxIndexSize uint64, writable bool) (*TimeIndex, error) {
	r, length, err := openRegion(path, maxIndexSize, timeEntrySize, writable)
	if err != nil {
		return nil, err
	}

	idx := &TimeIndex{
		region:     r,
		baseOffset: baseOffset,
		maxEntries: int(length / timeEntrySize),
		logger:     zap.L().Named("time_index").With(zap.String("file", path)),
	}

	if idx.maxEntries > 0 {
		idx.entries = scanValidTimePrefix(r.bytes(), idx.maxEntries)
	}
	if idx.entries > 0 {
		idx.lastStamp = timestampAt(r.bytes(), idx.entries-1)
	}
	return idx, nil
}

// scanValidTimePrefix applies the same open-time inference rule as
// scanValidOffsetPrefix, adapted to a timestamp key: an entry is valid
// iff its timestamp is strictly greater than the previous entry's, or it is slot 0 with
// a non-zero relative offset.
func scanValidTimePrefix(buf []byte, maxEntries int) int {
	if maxEntries == 0 {
		return 0
	}
	stamp0, off0 := timestampAt(buf, 0), timeRelOffsetAt(buf, 0)
	if stamp0 == 0 && off0 == 0 {
		return 0
	}
	count := 1
	prevStamp := stamp0
	for count < maxEntries {
		stamp := timestampAt(buf, count)
		if stamp <= prevStamp {
			break
		}
		prevStamp = stamp
		count++
	}
	return count
}

func (idx *TimeIndex) warmSlots(entries int) int {
	return warmSlotsFor(entries, timeEntrySize)
}

func (idx *TimeIndex) snapshot() ([]byte, int) {
	if !idx.region.writable {
		return idx.region.bytes()[:idx.entries*timeEntrySize], idx.entries
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.region.bytes()[:idx.entries*timeEntrySize], idx.entries
}

// Lookup returns the offset of the entry with the greatest timestamp <= target, and
// whether such an entry exists.
func (idx *TimeIndex) Lookup(target int64) (offset int64, ok bool, err error) {
	if idx.closed {
		return 0, false, fmt.Errorf("%w: lookup", ErrClosed)
	}
	buf, entries := idx.snapshot()
	slot := largestLowerBoundSlot(entries, func(i int) int64 { return timestampAt(buf, i) }, target, idx.warmSlots(entries))
	if slot < 0 {
		return 0, false, nil
	}
	return idx.baseOffset + int64(timeRelOffsetAt(buf, slot)), true, nil
}

// Append records that offset was the first message at or after timestamp.
func (idx *TimeIndex) Append(timestamp int64, offset int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed || !idx.region.writable {
		return fmt.Errorf("%w: append", ErrClosed)
	}
	if idx.entries >= idx.maxEntries {
		return fmt.Errorf("%w: %d entries already used", ErrIndexFull, idx.entries)
	}
	if idx.entries > 0 && timestamp <= idx.lastStamp {
		return fmt.Errorf("%w: timestamp %d does not exceed last timestamp %d", ErrInvalidOffset, timestamp, idx.lastStamp)
	}
	rel := offset - idx.baseOffset
	if rel < 0 || rel > 0xFFFFFFFF {
		return fmt.Errorf("%w: offset %d relative to base %d", ErrOffsetOverflow, offset, idx.baseOffset)
	}

	putTimeEntry(idx.region.bytes(), idx.entries, timestamp, uint32(rel))
	idx.entries++
	idx.lastStamp = timestamp
	return nil
}

// TruncateTo removes entries with timestamp >= target, mirroring OffsetIndex.TruncateTo.
func (idx *TimeIndex) TruncateTo(target int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || !idx.region.writable {
		return fmt.Errorf("%w: truncateTo", ErrClosed)
	}

	buf := idx.region.bytes()
	slot := largestLowerBoundSlot(idx.entries, func(i int) int64 { return timestampAt(buf, i) }, target, idx.warmSlots(idx.entries))

	var newCount int
	switch {
	case slot < 0:
		newCount = 0
	case timestampAt(buf, slot) == target:
		newCount = slot
	default:
		newCount = slot + 1
	}

	idx.entries = newCount
	idx.lastStamp = 0
	if newCount > 0 {
		idx.lastStamp = timestampAt(buf, newCount-1)
	}
	return nil
}

// SanityCheck mirrors OffsetIndex.SanityCheck over the timestamp-keyed prefix.
func (idx *TimeIndex) SanityCheck() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("%w: sanityCheck", ErrClosed)
	}

	mappedLen := len(idx.region.bytes())
	if mappedLen%timeEntrySize != 0 {
		idx.logger.Error("time index file length is not a multiple of the entry size", zap.Int("length", mappedLen))
		return fmt.Errorf("%w: length %d is not a multiple of %d", ErrCorruptIndex, mappedLen, timeEntrySize)
	}

	buf := idx.region.bytes()
	var prevStamp int64 = -1
	for i := 0; i < idx.entries; i++ {
		stamp := timestampAt(buf, i)
		if stamp <= prevStamp {
			idx.logger.Error("live prefix is not strictly increasing", zap.Int("slot", i))
			return fmt.Errorf("%w: slot %d is not strictly increasing", ErrCorruptIndex, i)
		}
		prevStamp = stamp
	}
	return nil
}

// Flush forces dirty pages to disk; a failure is logged and also returned.
func (idx *TimeIndex) Flush() error {
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

// MakeReadOnly seals the time index, mirroring OffsetIndex.MakeReadOnly.
func (idx *TimeIndex) MakeReadOnly() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || !idx.region.writable {
		return fmt.Errorf("%w: makeReadOnly", ErrClosed)
	}
	if err := idx.region.seal(uint64(idx.entries) * timeEntrySize); err != nil {
		return err
	}
	idx.maxEntries = idx.entries
	return nil
}

// Close flushes a writable time index and releases its file handle. The mapping is not
// unmapped; after Close every operation returns ErrClosed instead of touching it.
// Idempotent.
func (idx *TimeIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.region.close()
}
