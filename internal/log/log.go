package log

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/brinewave/logindex/internal/index"
)

// Log consists of a list of segments and a pointer to the active segment to append writes
// to. The directory is where we store the segments.
type Log struct {
	mu            sync.RWMutex
	Dir           string
	Config        Config
	activeSegment *segment
	segments      []*segment
}

// NewLog takes in the data directory and configuration and creates a new Log instance.
func NewLog(dir string, c Config) (*Log, error) {
	if c.Segment.MaxStoreBytes == 0 {
		c.Segment.MaxStoreBytes = 1024
	}
	if c.Segment.MaxIndexBytes == 0 {
		c.Segment.MaxIndexBytes = 1024
	}
	if c.Index.WarmBytes > 0 {
		index.SetWarmBytes(int(c.Index.WarmBytes))
	}

	l := &Log{
		Dir:    dir,
		Config: c,
	}

	return l, l.setup()
}

// NewLogFromFile loads Config from a YAML file before constructing the Log, for callers
// that describe segment/index tuning on disk rather than building a Config in code.
func NewLogFromFile(dir, configPath string) (*Log, error) {
	c, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return NewLog(dir, c)
}

// newSegment creates a new segment and appends it to the log's slice of segments.
func (l *Log) newSegment(off uint64) error {
	s, err := newSegment(l.Dir, off, l.Config)
	if err != nil {
		return err
	}

	l.segments = append(l.segments, s)
	l.activeSegment = s
	return nil
}

func (l *Log) setup() error {
	files, err := os.ReadDir(l.Dir)
	if err != nil {
		return err
	}

	baseOffsetSet := make(map[uint64]struct{})
	for _, file := range files {
		offStr := strings.TrimSuffix(file.Name(), path.Ext(file.Name()))
		off, err := strconv.ParseUint(offStr, 10, 64)
		if err != nil {
			continue
		}
		baseOffsetSet[off] = struct{}{}
	}

	baseOffsets := make([]uint64, 0, len(baseOffsetSet))
	for off := range baseOffsetSet {
		baseOffsets = append(baseOffsets, off)
	}
	sort.Slice(baseOffsets, func(i, j int) bool { return baseOffsets[i] < baseOffsets[j] })

	for _, off := range baseOffsets {
		if err = l.newSegment(off); err != nil {
			return err
		}
	}

	if l.segments == nil {
		if err = l.newSegment(l.Config.Segment.InitialOffset); err != nil {
			return err
		}
	}

	return nil
}

// Append appends a record to the log.
func (l *Log) Append(record *Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	off, err := l.activeSegment.Append(record)
	if err != nil {
		return 0, err
	}

	if l.activeSegment.IsMaxed() {
		err = l.newSegment(off + 1)
	}

	return off, err
}

// Read reads the record stored at the given offset.
func (l *Log) Read(off uint64) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s *segment
	for _, curSegment := range l.segments {
		if curSegment.baseOffset <= off && off < curSegment.nextOffset {
			s = curSegment
			break
		}
	}

	if s == nil || s.nextOffset <= off {
		return nil, fmt.Errorf("log: offset out of range: %d", off)
	}

	return s.Read(off)
}

// Close iterates over the segments and closes them.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.segments {
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Remove closes the log and then removes its data.
func (l *Log) Remove() error {
	if err := l.Close(); err != nil {
		return err
	}

	return os.RemoveAll(l.Dir)
}

// Reset removes the log and then creates a new log to replace it.
func (l *Log) Reset() error {
	if err := l.Remove(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return err
	}
	l.segments = nil
	l.activeSegment = nil

	return l.setup()
}
