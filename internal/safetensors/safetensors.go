// Package safetensors reads safetensors checkpoints and turns them
// into quantization actions for the converter.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// IndexFile is the standard Hugging Face sharded safetensors index
// filename.
const IndexFile = "model.safetensors.index.json"

// A defensive cap; real-world headers are typically in the KBs.
const maxHeaderSize = 256 << 20

// TensorInfo describes one tensor payload. Start/End are offsets
// relative to the owning file's data region (End exclusive).
type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is the parsed header of a single .safetensors file.
type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of a single .safetensors file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headerLen, err := readU64(f)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read header length: %w", err)
	}
	if headerLen > maxHeaderSize {
		return nil, fmt.Errorf("safetensors: header too large (%d bytes): %s", headerLen, path)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("safetensors: read header: %w", err)
	}

	// The header is a JSON map keyed by tensor name, plus an optional
	// "__metadata__" entry.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("safetensors: parse header: %w", err)
	}
	delete(raw, "__metadata__")

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("safetensors: parse tensor %q: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[0] < 0 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("safetensors: tensor %q: invalid data_offsets", name)
		}
		if len(th.Shape) == 0 {
			return nil, fmt.Errorf("safetensors: tensor %q: empty shape", name)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &File{
		Path:      path,
		DataStart: int64(8 + headerLen),
		Tensors:   tensors,
	}, nil
}

// ReadTensor reads the raw tensor bytes.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: tensor not found: %s", name)
	}
	buf := make([]byte, t.End-t.Start)

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(buf, f.DataStart+t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: read tensor %q: %w", name, err)
	}
	return buf, t, nil
}

// ReadTensorF32 reads a tensor and decodes F32/F16/BF16 payloads to
// float32.
func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}
	out, err := decodeF32(raw, info.DType, n)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}
	return out, info, nil
}

// Model is a unified view over a single safetensors file or a sharded
// checkpoint described by model.safetensors.index.json.
type Model struct {
	BasePath string
	files    map[string]*File // shard filename -> parsed file
	tensors  map[string]*File // tensor name -> owning shard
}

// OpenModel opens a single .safetensors file, a directory containing
// IndexFile, or a directory containing exactly one *.safetensors file.
func OpenModel(path string) (*Model, error) {
	if path == "" {
		return nil, fmt.Errorf("safetensors: empty path")
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !st.IsDir() {
		sf, err := Open(path)
		if err != nil {
			return nil, err
		}
		m := &Model{
			BasePath: path,
			files:    map[string]*File{filepath.Base(path): sf},
			tensors:  make(map[string]*File, len(sf.Tensors)),
		}
		for name := range sf.Tensors {
			m.tensors[name] = sf
		}
		return m, nil
	}

	idxPath := filepath.Join(path, IndexFile)
	if _, err := os.Stat(idxPath); err == nil {
		return openIndexModel(path, idxPath)
	}
	single, err := findSingleInDir(path)
	if err != nil {
		return nil, err
	}
	return OpenModel(single)
}

type index struct {
	WeightMap map[string]string `json:"weight_map"`
}

func openIndexModel(dir, idxPath string) (*Model, error) {
	b, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, err
	}
	var idx index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("safetensors: parse index: %w", err)
	}
	if len(idx.WeightMap) == 0 {
		return nil, fmt.Errorf("safetensors: index has empty weight_map: %s", idxPath)
	}

	files := make(map[string]*File)
	tensors := make(map[string]*File, len(idx.WeightMap))
	for name, shard := range idx.WeightMap {
		if shard == "" {
			return nil, fmt.Errorf("safetensors: invalid shard name for tensor %q", name)
		}
		sf, ok := files[shard]
		if !ok {
			sf, err = Open(filepath.Join(dir, shard))
			if err != nil {
				return nil, err
			}
			files[shard] = sf
		}
		if _, ok := sf.Tensors[name]; !ok {
			return nil, fmt.Errorf("safetensors: tensor %q not found in shard %q", name, shard)
		}
		tensors[name] = sf
	}
	return &Model{BasePath: dir, files: files, tensors: tensors}, nil
}

func findSingleInDir(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".safetensors") {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("safetensors: no .safetensors file and no %s in %s", IndexFile, dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("safetensors: found %d .safetensors files but no %s in %s", len(matches), IndexFile, dir)
	}
}

// SortedTensorNames returns all tensor names in lexical order.
func (m *Model) SortedTensorNames() []string {
	names := make([]string, 0, len(m.tensors))
	for name := range m.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns the metadata for a tensor.
func (m *Model) TensorInfo(name string) (TensorInfo, bool) {
	sf, ok := m.tensors[name]
	if !ok {
		return TensorInfo{}, false
	}
	return sf.Tensors[name], true
}

// ReadTensorF32 reads and decodes a tensor by name.
func (m *Model) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	sf, ok := m.tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: tensor not found: %s", name)
	}
	return sf.ReadTensorF32(name)
}

func decodeF32(raw []byte, dtype string, n int) ([]float32, error) {
	switch dtype {
	case "F32":
		if len(raw) != n*4 {
			return nil, fmt.Errorf("invalid F32 data size %d for %d elements", len(raw), n)
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "F16":
		if len(raw) != n*2 {
			return nil, fmt.Errorf("invalid F16 data size %d for %d elements", len(raw), n)
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = fp16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, nil
	case "BF16":
		if len(raw) != n*2 {
			return nil, fmt.Errorf("invalid BF16 data size %d for %d elements", len(raw), n)
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
