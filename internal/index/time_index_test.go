package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTimeIndex(t *testing.T, baseOffset int64, maxIndexSize uint64) *TimeIndex {
	t.Helper()
	path := filepath.Join(t.TempDir(), "00000000000000000100.timeindex")
	idx, err := OpenTimeIndex(path, baseOffset, maxIndexSize, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestTimeIndexEmptyLookup(t *testing.T) {
	idx := newTestTimeIndex(t, 100, 1024)
	_, ok, err := idx.Lookup(1000)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTimeIndexAppendAndLookup(t *testing.T) {
	idx := newTestTimeIndex(t, 100, 1024)
	require.NoError(t, idx.Append(1000, 100))
	require.NoError(t, idx.Append(2000, 103))
	require.NoError(t, idx.Append(3000, 107))

	offset, ok, err := idx.Lookup(2500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(103), offset)

	offset, ok, err = idx.Lookup(3000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(107), offset)

	_, ok, err = idx.Lookup(500)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTimeIndexNonIncreasingTimestampRejected(t *testing.T) {
	idx := newTestTimeIndex(t, 100, 1024)
	require.NoError(t, idx.Append(1000, 100))
	require.ErrorIs(t, idx.Append(1000, 101), ErrInvalidOffset)
	require.ErrorIs(t, idx.Append(900, 101), ErrInvalidOffset)
}

func TestTimeIndexTruncateTo(t *testing.T) {
	idx := newTestTimeIndex(t, 100, 1024)
	require.NoError(t, idx.Append(1000, 100))
	require.NoError(t, idx.Append(2000, 103))
	require.NoError(t, idx.Append(3000, 107))

	require.NoError(t, idx.TruncateTo(2000))
	require.Equal(t, 1, idx.entries)

	offset, ok, err := idx.Lookup(2500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), offset)
}

func TestTimeIndexSealRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000000000000000100.timeindex")
	idx, err := OpenTimeIndex(path, 100, 1024, true)
	require.NoError(t, err)
	require.NoError(t, idx.Append(1000, 100))
	require.NoError(t, idx.Append(2000, 103))
	require.NoError(t, idx.MakeReadOnly())
	require.NoError(t, idx.Close())

	reopened, err := OpenTimeIndex(path, 100, 1024, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	offset, ok, err := reopened.Lookup(1500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), offset)
}

func TestTimeIndexLookupAfterCloseFails(t *testing.T) {
	idx := newTestTimeIndex(t, 100, 1024)
	require.NoError(t, idx.Append(1000, 100))
	require.NoError(t, idx.Close())

	_, _, err := idx.Lookup(1000)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, idx.SanityCheck(), ErrClosed)
	require.ErrorIs(t, idx.Flush(), ErrClosed)
}
