package log

import (
	"fmt"
	"os"
	"path"

	"github.com/brinewave/logindex/internal/index"
)

// segment owns one store and one index.OffsetIndex, so the log's directory roller only
// ever has to talk to a segment, never to a store or an index file directly.
//
// The base and next offsets are needed to see what offset to append new records under
// and to calculate the relative offsets for the index entries.
type segment struct {
	store                  *store
	index                  *index.OffsetIndex
	baseOffset, nextOffset uint64
	config                 Config
}

// newSegment is called when there's a need to add a new segment, such as when the current
// active segment hits its max size.
func newSegment(dir string, baseOffset uint64, c Config) (*segment, error) {
	s := &segment{baseOffset: baseOffset, config: c}

	storeFile, err := os.OpenFile(path.Join(dir, fmt.Sprintf("%d%s", baseOffset, ".store")),
		os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644,
	)
	if err != nil {
		return nil, err
	}
	if s.store, err = newStore(storeFile); err != nil {
		return nil, err
	}

	indexPath := path.Join(dir, fmt.Sprintf("%d%s", baseOffset, ".index"))
	if s.index, err = index.OpenOffsetIndex(indexPath, int64(baseOffset), c.Segment.MaxIndexBytes, true); err != nil {
		return nil, err
	}

	entries, err := s.index.Entries()
	if err != nil {
		return nil, err
	}
	if entries == 0 && s.store.size > 0 {
		// The index cannot tell a first entry of (baseOffset, 0) from its zeroed
		// pre-allocated tail, so rebuild it from the store's length-prefixed records.
		size := make([]byte, lenWidth)
		for pos, off := uint64(0), baseOffset; pos < s.store.size; off++ {
			if _, err := s.store.File.ReadAt(size, int64(pos)); err != nil {
				return nil, err
			}
			if err := s.index.Append(int64(off), int64(pos)); err != nil {
				return nil, err
			}
			entries++
			pos += lenWidth + enc.Uint64(size)
		}
	}
	if entries == 0 {
		s.nextOffset = baseOffset
	} else {
		last, err := s.index.LastOffset()
		if err != nil {
			return nil, err
		}
		s.nextOffset = uint64(last) + 1
	}

	return s, nil
}

// Append writes the record to the segment and returns the newly appended record's offset.
func (s *segment) Append(record *Record) (offset uint64, err error) {
	cur := s.nextOffset
	record.Offset = cur

	_, pos, err := s.store.AppendRecord(record)
	if err != nil {
		return 0, err
	}

	if err = s.index.Append(int64(cur), int64(pos)); err != nil {
		return 0, err
	}

	s.nextOffset++

	return cur, nil
}

// Read returns the record for the given absolute offset. Every Append writes one index
// entry, so the segment's index is dense: a hit must land on exactly off.
func (s *segment) Read(off uint64) (*Record, error) {
	foundOffset, pos, err := s.index.Lookup(int64(off))
	if err != nil {
		return nil, err
	}
	entries, err := s.index.Entries()
	if err != nil {
		return nil, err
	}
	if entries == 0 || foundOffset != int64(off) {
		return nil, fmt.Errorf("log: offset %d not found in segment starting at %d", off, s.baseOffset)
	}

	return s.store.ReadRecord(uint64(pos), off)
}

// IsMaxed returns whether the segment has reached its max size,
// either by writing too much to the store or the index.
func (s *segment) IsMaxed() bool {
	entries, err := s.index.Entries()
	if err != nil {
		return true
	}
	return s.store.size >= s.config.Segment.MaxStoreBytes ||
		uint64(entries)*8 >= s.config.Segment.MaxIndexBytes
}

// Close closes the segment by calling the close methods of index and then store.
func (s *segment) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.store.Close()
}

// Remove closes the segment and removes the index and store files.
func (s *segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.index.Name()); err != nil {
		return err
	}
	if err := os.Remove(s.store.Name()); err != nil {
		return err
	}
	return nil
}

// nearestMultiple returns the nearest and lesser multiple of k in j.
//
// for example nearestMultiple(9, 4) == 8. We take the lesser multiple to
// make sure we stay under the user's disk capacity.
func nearestMultiple(j, k uint64) uint64 {
	if j >= 0 {
		return (j / k) * k
	}
	return ((j - k + 1) / k) * k
}
