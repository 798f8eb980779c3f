package index

import "encoding/binary"

// offsetEntrySize is the on-disk width of one offset-index entry: a 4-byte relative
// offset followed by a 4-byte physical position, both big-endian.
const offsetEntrySize = 8

func relOffsetAt(buf []byte, slot int) uint32 {
	base := slot * offsetEntrySize
	return binary.BigEndian.Uint32(buf[base : base+4])
}

func positionAt(buf []byte, slot int) uint32 {
	base := slot * offsetEntrySize
	return binary.BigEndian.Uint32(buf[base+4 : base+8])
}

func putOffsetEntry(buf []byte, slot int, relOffset, position uint32) {
	base := slot * offsetEntrySize
	binary.BigEndian.PutUint32(buf[base:base+4], relOffset)
	binary.BigEndian.PutUint32(buf[base+4:base+8], position)
}
