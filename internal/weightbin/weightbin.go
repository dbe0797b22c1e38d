// Package weightbin persists the converter's output set as one
// little-endian binary file per tensor.
//
// File layout: magic "LWB\0", dtype byte, rank byte, name length
// (uint16), rank uint32 dims, the tensor name, then the payload.
// Float tensors store raw float32 bits; integer tensors store int8 or
// int32 depending on range; 4-bit tensors marked for packing store two
// codes per byte, low nibble first.
package weightbin

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/RishanR/mediapipe-fydp/pkg/convert"
)

// FileExt is the weight file extension the artifact generator globs
// for.
const FileExt = ".bin"

const magic = "LWB\x00"

// Payload dtypes.
const (
	DTypeF32 uint8 = 0
	DTypeI8  uint8 = 1
	DTypeI32 uint8 = 2
	DTypeI4  uint8 = 3 // packed two per byte
)

func init() {
	convert.RegisterWriter(convert.WriterWeightBins, func(p convert.WriterParams) (convert.Writer, error) {
		if p.OutputDir == "" {
			return nil, fmt.Errorf("weightbin: output directory required")
		}
		return NewWriter(p.OutputDir), nil
	})
}

// Writer writes weight files into a directory.
type Writer struct {
	dir string
}

// NewWriter writes weight files into dir, which must exist.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteVariables writes one file per entry, in sorted name order.
func (w *Writer) WriteVariables(entries map[string]convert.Entry) error {
	for _, name := range convert.SortedNames(entries) {
		if err := writeEntry(filepath.Join(w.dir, FileName(name)), name, entries[name]); err != nil {
			return fmt.Errorf("weightbin: write %q: %w", name, err)
		}
	}
	return nil
}

// FileName maps a tensor name to its weight filename. Path separators
// in tensor names must not create directories.
func FileName(name string) string {
	name = strings.ReplaceAll(name, "/", ".")
	return strings.ReplaceAll(name, string(os.PathSeparator), ".") + FileExt
}

func writeEntry(path, name string, e convert.Entry) error {
	var (
		dtype   uint8
		shape   []int
		payload []byte
	)
	switch {
	case e.Floats != nil:
		dtype = DTypeF32
		shape = e.Floats.Shape
		payload = encodeFloats(e.Floats.Data)
	case e.Ints != nil && e.Pack:
		dtype = DTypeI4
		shape = e.Ints.Shape
		payload = packNibbles(e.Ints.Data)
	case e.Ints != nil:
		shape = e.Ints.Shape
		dtype, payload = encodeInts(e.Ints.Data)
	default:
		return fmt.Errorf("empty entry")
	}

	if len(shape) > 255 {
		return fmt.Errorf("rank %d too large", len(shape))
	}
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("name too long")
	}

	header := make([]byte, 0, 8+4*len(shape)+len(name))
	header = append(header, magic...)
	header = append(header, dtype, uint8(len(shape)))
	header = binary.LittleEndian.AppendUint16(header, uint16(len(name)))
	for _, d := range shape {
		if d < 0 || d > math.MaxUint32 {
			return fmt.Errorf("invalid dimension %d", d)
		}
		header = binary.LittleEndian.AppendUint32(header, uint32(d))
	}
	header = append(header, name...)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encodeFloats(data []float32) []byte {
	out := make([]byte, 0, 4*len(data))
	for _, v := range data {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// encodeInts narrows to int8 when every value fits, int32 otherwise
// (zero-points at 8 bits exceed the int8 range).
func encodeInts(data []int32) (uint8, []byte) {
	fits := true
	for _, v := range data {
		if v < math.MinInt8 || v > math.MaxInt8 {
			fits = false
			break
		}
	}
	if fits {
		out := make([]byte, len(data))
		for i, v := range data {
			out[i] = byte(int8(v))
		}
		return DTypeI8, out
	}
	out := make([]byte, 0, 4*len(data))
	for _, v := range data {
		out = binary.LittleEndian.AppendUint32(out, uint32(v))
	}
	return DTypeI32, out
}

// packNibbles stores two 4-bit codes per byte, low nibble first. Codes
// may be signed or unsigned; only their low 4 bits are kept.
func packNibbles(data []int32) []byte {
	out := make([]byte, (len(data)+1)/2)
	for i, v := range data {
		nib := byte(v) & 0x0F
		if i%2 == 0 {
			out[i/2] = nib
		} else {
			out[i/2] |= nib << 4
		}
	}
	return out
}

// Record is a parsed weight file.
type Record struct {
	Name    string
	DType   uint8
	Shape   []int
	Payload []byte
}

// Elems returns the element count implied by the record's shape.
func (r Record) Elems() int {
	n := 1
	for _, d := range r.Shape {
		n *= d
	}
	return n
}

// ReadFile parses a weight file written by Writer.
func ReadFile(path string) (Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	if len(b) < 8 || string(b[:4]) != magic {
		return Record{}, fmt.Errorf("weightbin: %s: bad magic", path)
	}
	dtype := b[4]
	rank := int(b[5])
	nameLen := int(binary.LittleEndian.Uint16(b[6:8]))
	off := 8
	if len(b) < off+4*rank+nameLen {
		return Record{}, fmt.Errorf("weightbin: %s: truncated header", path)
	}
	shape := make([]int, rank)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
	}
	name := string(b[off : off+nameLen])
	off += nameLen
	return Record{Name: name, DType: dtype, Shape: shape, Payload: b[off:]}, nil
}
