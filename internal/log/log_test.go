package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogAppendReadAcrossSegments(t *testing.T) {
	dir := t.TempDir()

	c := Config{}
	c.Segment.MaxStoreBytes = 32
	c.Segment.MaxIndexBytes = 1024

	l, err := NewLog(dir, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	for i := 0; i < 5; i++ {
		off, err := l.Append(&Record{Value: []byte("hello world")})
		require.NoError(t, err)
		require.Equal(t, uint64(i), off)
	}

	require.Greater(t, len(l.segments), 1)

	for i := uint64(0); i < 5; i++ {
		got, err := l.Read(i)
		require.NoError(t, err)
		require.Equal(t, []byte("hello world"), got.Value)
	}

	_, err = l.Read(5)
	require.Error(t, err)
}

func TestLogReopenRecoversSegments(t *testing.T) {
	dir := t.TempDir()

	c := Config{}
	c.Segment.MaxStoreBytes = 1024
	c.Segment.MaxIndexBytes = 1024

	l, err := NewLog(dir, c)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Append(&Record{Value: []byte("hello world")})
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	reopened, err := NewLog(dir, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Read(2)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got.Value)
}

func TestLogReset(t *testing.T) {
	dir := t.TempDir()

	c := Config{}
	c.Segment.MaxStoreBytes = 1024
	c.Segment.MaxIndexBytes = 1024

	l, err := NewLog(dir, c)
	require.NoError(t, err)

	_, err = l.Append(&Record{Value: []byte("hello world")})
	require.NoError(t, err)

	require.NoError(t, l.Reset())

	_, err = l.Read(0)
	require.Error(t, err)
}
