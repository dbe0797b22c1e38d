package artifact

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Weight index wire layout, all little-endian:
//
//	u32 entry count
//	per entry:
//	  u16 name length, name bytes
//	  u8  dtype, u8 rank, rank x u32 dims
//	  u64 offset (relative to the weight data section), u64 size

func encodeIndex(entries []IndexEntry) []byte {
	size := 4
	for i := range entries {
		size += 2 + len(entries[i].Name) + 1 + 1 + 4*len(entries[i].Shape) + 8 + 8
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	for i := range entries {
		e := &entries[i]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Name)))
		buf = append(buf, e.Name...)
		buf = append(buf, e.DType, uint8(len(e.Shape)))
		for _, d := range e.Shape {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(d))
		}
		buf = binary.LittleEndian.AppendUint64(buf, e.Offset)
		buf = binary.LittleEndian.AppendUint64(buf, e.Size)
	}
	return buf
}

// DecodeIndex parses a weight index section payload.
func DecodeIndex(data []byte) ([]IndexEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: weight index too short", ErrCorruptFile)
	}
	count := binary.LittleEndian.Uint32(data[:4])
	off := 4

	entries := make([]IndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("%w: weight index entry %d truncated", ErrCorruptFile, i)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
		off += 2
		if off+nameLen+2 > len(data) {
			return nil, fmt.Errorf("%w: weight index entry %d truncated", ErrCorruptFile, i)
		}
		name := string(data[off : off+nameLen])
		off += nameLen

		dtype := data[off]
		rank := int(data[off+1])
		off += 2
		if off+4*rank+16 > len(data) {
			return nil, fmt.Errorf("%w: weight index entry %d truncated", ErrCorruptFile, i)
		}
		shape := make([]int, rank)
		for j := range shape {
			dim := binary.LittleEndian.Uint32(data[off : off+4])
			if dim > math.MaxInt32 {
				return nil, fmt.Errorf("%w: weight index entry %d dim out of range", ErrCorruptFile, i)
			}
			shape[j] = int(dim)
			off += 4
		}
		offset := binary.LittleEndian.Uint64(data[off : off+8])
		size := binary.LittleEndian.Uint64(data[off+8 : off+16])
		off += 16

		entries = append(entries, IndexEntry{
			Name:   name,
			DType:  dtype,
			Shape:  shape,
			Offset: offset,
			Size:   size,
		})
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: weight index trailing bytes", ErrCorruptFile)
	}
	return entries, nil
}
