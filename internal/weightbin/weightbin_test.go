package weightbin

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/RishanR/mediapipe-fydp/pkg/convert"
	"github.com/RishanR/mediapipe-fydp/pkg/tensor"
)

func mustFloat32(t *testing.T, shape []int, data []float32) *tensor.Float32 {
	t.Helper()
	v, err := tensor.NewFloat32(shape, data)
	if err != nil {
		t.Fatalf("NewFloat32: %v", err)
	}
	return v
}

func mustInt32(t *testing.T, shape []int, data []int32) *tensor.Int32 {
	t.Helper()
	v, err := tensor.NewInt32(shape, data)
	if err != nil {
		t.Fatalf("NewInt32: %v", err)
	}
	return v
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &Writer{dir: dir}
	entries := map[string]convert.Entry{
		"w":                 {Ints: mustInt32(t, []int{2, 2}, []int32{-128, 127, 0, 5})},
		"w_quantized_scale": {Floats: mustFloat32(t, []int{2}, []float32{0.5, 0.25})},
		"w_quantized_zp":    {Ints: mustInt32(t, []int{2}, []int32{200, 3})},
	}
	if err := w.WriteVariables(entries); err != nil {
		t.Fatalf("WriteVariables: %v", err)
	}

	codes, err := ReadFile(filepath.Join(dir, "w.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if codes.Name != "w" || codes.DType != DTypeI8 {
		t.Fatalf("codes record = %q dtype %d", codes.Name, codes.DType)
	}
	if codes.Elems() != 4 || len(codes.Payload) != 4 {
		t.Fatalf("codes payload %d bytes for %d elems", len(codes.Payload), codes.Elems())
	}
	if int8(codes.Payload[0]) != -128 || int8(codes.Payload[1]) != 127 {
		t.Fatalf("codes payload = %v", codes.Payload)
	}

	scales, err := ReadFile(filepath.Join(dir, "w_quantized_scale.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if scales.DType != DTypeF32 {
		t.Fatalf("scale dtype = %d", scales.DType)
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(scales.Payload))
	if got != 0.5 {
		t.Fatalf("scale[0] = %v, want 0.5", got)
	}

	// 200 does not fit int8, so zero-points widen to int32.
	zps, err := ReadFile(filepath.Join(dir, "w_quantized_zp.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if zps.DType != DTypeI32 {
		t.Fatalf("zp dtype = %d, want int32", zps.DType)
	}
	if v := int32(binary.LittleEndian.Uint32(zps.Payload)); v != 200 {
		t.Fatalf("zp[0] = %d, want 200", v)
	}
}

func TestNibblePacking(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &Writer{dir: dir}
	entries := map[string]convert.Entry{
		"q4": {Ints: mustInt32(t, []int{1, 5}, []int32{1, 2, 15, 0, 7}), Pack: true},
	}
	if err := w.WriteVariables(entries); err != nil {
		t.Fatalf("WriteVariables: %v", err)
	}

	rec, err := ReadFile(filepath.Join(dir, "q4.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if rec.DType != DTypeI4 {
		t.Fatalf("dtype = %d, want packed int4", rec.DType)
	}
	// Low nibble first: (1,2) (15,0) (7,-).
	want := []byte{0x21, 0x0F, 0x07}
	if len(rec.Payload) != len(want) {
		t.Fatalf("payload = %v, want %v", rec.Payload, want)
	}
	for i := range want {
		if rec.Payload[i] != want[i] {
			t.Fatalf("payload[%d] = %#x, want %#x", i, rec.Payload[i], want[i])
		}
	}
}

func TestSignedNibblePacking(t *testing.T) {
	t.Parallel()

	// Signed codes keep only their low four bits: -1 packs as 0xF.
	got := packNibbles([]int32{-1, -8})
	if got[0] != 0x8F {
		t.Fatalf("packed byte = %#x, want 0x8f", got[0])
	}
}

func TestFileNameSanitizesSeparators(t *testing.T) {
	t.Parallel()

	got := FileName("params/lm/softmax/logits_ffn/w")
	if got != "params.lm.softmax.logits_ffn.w.bin" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestReadFileRejectsBadMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, []byte("NOPE1234"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected bad magic error")
	}
}
