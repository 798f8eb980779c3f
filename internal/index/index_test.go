package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func indexFileName(baseOffset int64) string {
	return fmt.Sprintf("%020d.index", baseOffset)
}

func newTestIndex(t *testing.T, baseOffset int64, maxIndexSize uint64) *OffsetIndex {
	t.Helper()
	path := filepath.Join(t.TempDir(), indexFileName(baseOffset))
	idx, err := OpenOffsetIndex(path, baseOffset, maxIndexSize, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestEmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)

	offset, position, err := idx.Lookup(100)
	require.NoError(t, err)
	require.Equal(t, int64(50), offset)
	require.Equal(t, int64(0), position)

	_, _, ok, err := idx.FetchUpperBoundOffset(0, 1024)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSingleAppend(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 128))

	offset, position, err := idx.Lookup(55)
	require.NoError(t, err)
	require.Equal(t, int64(55), offset)
	require.Equal(t, int64(128), position)

	offset, position, err = idx.Lookup(60)
	require.NoError(t, err)
	require.Equal(t, int64(55), offset)
	require.Equal(t, int64(128), position)

	offset, position, err = idx.Lookup(54)
	require.NoError(t, err)
	require.Equal(t, int64(50), offset)
	require.Equal(t, int64(0), position)
}

func TestMonotonicGrowth(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))

	offset, position, err := idx.Lookup(80)
	require.NoError(t, err)
	require.Equal(t, int64(70), offset)
	require.Equal(t, int64(4096), position)

	offset, position, err = idx.Lookup(95)
	require.NoError(t, err)
	require.Equal(t, int64(95), offset)
	require.Equal(t, int64(8192), position)

	offset, position, err = idx.Lookup(200)
	require.NoError(t, err)
	require.Equal(t, int64(95), offset)
	require.Equal(t, int64(8192), position)
}

func TestInvalidAppend(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))

	err := idx.Append(70, 12000)
	require.ErrorIs(t, err, ErrInvalidOffset)

	offset, position, err := idx.Lookup(95)
	require.NoError(t, err)
	require.Equal(t, int64(95), offset)
	require.Equal(t, int64(8192), position)
}

func TestTruncateToExactHit(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))

	require.NoError(t, idx.TruncateTo(70))
	require.Equal(t, 1, idx.entries)
	require.Equal(t, int64(55), idx.lastOffset)

	offset, position, err := idx.Lookup(90)
	require.NoError(t, err)
	require.Equal(t, int64(55), offset)
	require.Equal(t, int64(0), position)
}

func TestTruncateToMissBetweenEntries(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))

	require.NoError(t, idx.TruncateTo(80))
	require.Equal(t, 2, idx.entries)
	require.Equal(t, int64(70), idx.lastOffset)
}

func TestTruncateToIsIdempotent(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))

	require.NoError(t, idx.TruncateTo(80))
	first := idx.entries
	firstLast := idx.lastOffset

	require.NoError(t, idx.TruncateTo(80))
	require.Equal(t, first, idx.entries)
	require.Equal(t, firstLast, idx.lastOffset)
}

func TestSealRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), indexFileName(50))
	idx, err := OpenOffsetIndex(path, 50, 1024, true)
	require.NoError(t, err)
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))

	require.NoError(t, idx.MakeReadOnly())
	require.NoError(t, idx.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(24), fi.Size())

	reopened, err := OpenOffsetIndex(path, 50, 1024, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	require.Equal(t, 3, reopened.entries)

	offset, position, err := reopened.Lookup(72)
	require.NoError(t, err)
	require.Equal(t, int64(70), offset)
	require.Equal(t, int64(4096), position)
}

func TestOverflow(t *testing.T) {
	idx := newTestIndex(t, 0, 1024)
	err := idx.Append(1<<32, 0)
	require.ErrorIs(t, err, ErrOffsetOverflow)
}

func TestCorruptLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), indexFileName(0))
	require.NoError(t, os.WriteFile(path, make([]byte, 13), 0644))

	idx, err := OpenOffsetIndex(path, 0, 1024, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	err = idx.SanityCheck()
	require.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestIndexFull(t *testing.T) {
	idx := newTestIndex(t, 0, offsetEntrySize*2)
	require.NoError(t, idx.Append(0, 0))
	require.NoError(t, idx.Append(1, 8))
	err := idx.Append(2, 16)
	require.ErrorIs(t, err, ErrIndexFull)
}

func TestAppendAfterCloseFails(t *testing.T) {
	idx := newTestIndex(t, 0, 1024)
	require.NoError(t, idx.Close())
	require.ErrorIs(t, idx.Append(1, 0), ErrClosed)
}

func TestMakeReadOnlyThenAppendFails(t *testing.T) {
	idx := newTestIndex(t, 0, 1024)
	require.NoError(t, idx.Append(1, 0))
	require.NoError(t, idx.MakeReadOnly())
	require.ErrorIs(t, idx.Append(2, 8), ErrClosed)
}

// TestConcurrentReadersDuringAppend runs one writer against many concurrent readers and
// checks that no reader ever observes a slot beyond its own snapshot's entry count.
func TestConcurrentReadersDuringAppend(t *testing.T) {
	idx := newTestIndex(t, 0, 1024*offsetEntrySize)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _, _ = idx.Lookup(500)
					_, _, _, _ = idx.FetchUpperBoundOffset(0, 64)
				}
			}
		}()
	}

	for i := int64(0); i < 500; i++ {
		require.NoError(t, idx.Append(i, i*4))
	}
	close(stop)
	wg.Wait()

	offset, position, err := idx.Lookup(250)
	require.NoError(t, err)
	require.Equal(t, int64(250), offset)
	require.Equal(t, int64(1000), position)
}

func TestReadersFailAfterClose(t *testing.T) {
	idx := newTestIndex(t, 50, 1024)
	require.NoError(t, idx.Append(55, 128))
	require.NoError(t, idx.Close())

	_, _, err := idx.Lookup(55)
	require.ErrorIs(t, err, ErrClosed)

	_, _, _, err = idx.FetchUpperBoundOffset(0, 1024)
	require.ErrorIs(t, err, ErrClosed)

	_, err = idx.Entries()
	require.ErrorIs(t, err, ErrClosed)

	_, err = idx.LastOffset()
	require.ErrorIs(t, err, ErrClosed)

	_, _, err = idx.Entry(0)
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, idx.SanityCheck(), ErrClosed)
	require.ErrorIs(t, idx.Flush(), ErrClosed)
}
