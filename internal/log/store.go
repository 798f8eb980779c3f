package log

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"
)

var (
	// enc defines the encoding that we persist record lengths in
	enc = binary.BigEndian
)

const (
	// lenWidth defines the number of bytes used to store the record's length
	lenWidth = 8
)

// store is the segment's length-prefixed append-only record file. Unlike a generic
// byte-blob store, it encodes and decodes directly against Record: a segment has nothing
// else to persist, so there's no opaque-payload layer worth keeping between them.
type store struct {
	*os.File
	mu   sync.Mutex
	buf  *bufio.Writer
	size uint64
}

// newStore creates a store for the given file
func newStore(f *os.File) (*store, error) {
	fileInfo, err := os.Stat(f.Name())
	if err != nil {
		return nil, err
	}
	size := uint64(fileInfo.Size())
	return &store{
		File: f,
		mu:   sync.Mutex{},
		buf:  bufio.NewWriter(f),
		size: size,
	}, nil
}

// AppendRecord persists record.Value to the store.
//
// It returns the number of bytes written, the position where the store holds the
// record in its file and an error if any occurred. The record's Offset is the segment's
// bookkeeping, not the store's; only the payload is written here.
func (s *store) AppendRecord(record *Record) (n uint64, pos uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos = s.size

	// writing the length of the log record first
	if err = binary.Write(s.buf, enc, uint64(len(record.Value))); err != nil {
		return 0, 0, err
	}

	// writing the log record
	w, err := s.buf.Write(record.Value)
	if err != nil {
		return 0, 0, err
	}

	w += lenWidth
	s.size += uint64(w)

	return uint64(w), pos, err
}

// ReadRecord returns the record stored at the given position, stamped with offset — the
// absolute offset the caller already resolved via the segment's index. Flushes any
// buffered writes first, since a record just appended may not have reached the file yet.
func (s *store) ReadRecord(pos uint64, offset uint64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// flush any outstanding content in the buffered writer
	if err := s.buf.Flush(); err != nil {
		return nil, err
	}

	// reading the size of the record
	size := make([]byte, lenWidth)
	if _, err := s.File.ReadAt(size, int64(pos)); err != nil {
		return nil, err
	}

	// reading the record
	value := make([]byte, enc.Uint64(size))
	if _, err := s.File.ReadAt(value, int64(pos+lenWidth)); err != nil {
		return nil, err
	}

	return &Record{Offset: offset, Value: value}, nil
}

// Close flushes any buffered data and close the underlying file
func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buf.Flush(); err != nil {
		return err
	}

	return s.File.Close()
}
