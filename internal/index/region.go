package index

import (
	"fmt"
	"os"

	"github.com/tysonmote/gommap"
)

// region owns one backing file and the memory-mapped view over it. It knows nothing
// about entry layout or search semantics; OffsetIndex and TimeIndex both sit on top of
// it, giving it an entrySize only so it can round file lengths to whole entries.
type region struct {
	file     *os.File
	mmap     gommap.MMap
	writable bool
}

// openRegion opens (or creates) path and memory-maps it.
//
// If writable and the file is smaller than the largest multiple of entrySize not
// exceeding maxSize, it is grown to that size before mapping. If the
// file already exists and is not an exact multiple of entrySize, it is mapped as-is —
// that mismatch is a corruption signal for SanityCheck to report, not for Open to mask.
//
// Returns the region and the mapped length in bytes.
func openRegion(path string, maxSize uint64, entrySize int, writable bool) (*region, uint64, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open %s: %v", ErrIOFailure, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %v", ErrIOFailure, path, err)
	}
	length := uint64(fi.Size())

	if writable {
		target := (maxSize / uint64(entrySize)) * uint64(entrySize)
		if length < target {
			if err := f.Truncate(int64(target)); err != nil {
				_ = f.Close()
				return nil, 0, fmt.Errorf("%w: truncate %s: %v", ErrIOFailure, path, err)
			}
			length = target
		}
	}

	if length == 0 {
		// Nothing to map; gommap.Map rejects a zero-length mapping, and a read-only
		// index with no entries has nothing to serve anyway.
		return &region{file: f, mmap: gommap.MMap{}, writable: writable}, 0, nil
	}

	prot := gommap.PROT_READ
	if writable {
		prot |= gommap.PROT_WRITE
	}
	m, err := gommap.Map(f.Fd(), prot, gommap.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: mmap %s: %v", ErrIOFailure, path, err)
	}

	return &region{file: f, mmap: m, writable: writable}, length, nil
}

// bytes returns the full mapped region. Callers bound it to the live prefix themselves;
// the region has no notion of logical entry count.
func (r *region) bytes() []byte {
	return r.mmap
}

func (r *region) name() string {
	return r.file.Name()
}

// flush forces the mapping's dirty pages to disk. Best-effort: a flush failure is logged
// by the caller, not fatal, so this just reports the error.
func (r *region) flush() error {
	if !r.writable || len(r.mmap) == 0 {
		return nil
	}
	if err := r.mmap.Sync(gommap.MS_SYNC); err != nil {
		return fmt.Errorf("%w: sync mapping of %s: %v", ErrIOFailure, r.file.Name(), err)
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync file %s: %v", ErrIOFailure, r.file.Name(), err)
	}
	return nil
}

// seal flushes, truncates the backing file to liveLength, and transitions the region
// to read-only. The existing mapping is kept rather than unmapped and remapped: gommap
// exposes no remap primitive, so the file is truncated after the mapping was created
// without ever remapping it. Every subsequent read goes through a []byte slice bounded to
// liveLength by the caller (OffsetIndex/TimeIndex track entries themselves), so the
// untruncated tail of the mapping is simply never addressed again.
func (r *region) seal(liveLength uint64) error {
	if err := r.flush(); err != nil {
		return err
	}
	if err := r.file.Truncate(int64(liveLength)); err != nil {
		return fmt.Errorf("%w: truncate %s: %v", ErrIOFailure, r.file.Name(), err)
	}
	r.writable = false
	return nil
}

// close flushes (if writable) and releases the file handle. Idempotent at the caller's
// discretion; calling close twice on the same region is not itself guarded here.
func (r *region) close() error {
	if r.writable {
		if err := r.flush(); err != nil {
			return err
		}
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIOFailure, r.file.Name(), err)
	}
	return nil
}
