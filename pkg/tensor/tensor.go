// Package tensor provides the small dense tensor types the converter
// quantizes and writes. Data is row-major; shapes are immutable once
// constructed.
package tensor

import "fmt"

// Float32 is a dense n-dimensional float32 tensor.
type Float32 struct {
	Shape []int
	Data  []float32
}

// Int32 is a dense n-dimensional int32 tensor.
//
// Quantized codes of every bit width in [2,8] fit in int32, so the
// executor carries all integer outputs in this one type and leaves
// narrowing to the writer boundary.
type Int32 struct {
	Shape []int
	Data  []int32
}

// NewFloat32 wraps data in a tensor of the given shape.
func NewFloat32(shape []int, data []float32) (*Float32, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("tensor: shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Float32{Shape: cloneShape(shape), Data: data}, nil
}

// NewInt32 wraps data in a tensor of the given shape.
func NewInt32(shape []int, data []int32) (*Int32, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("tensor: shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Int32{Shape: cloneShape(shape), Data: data}, nil
}

func (t *Float32) Rank() int { return len(t.Shape) }
func (t *Float32) Len() int  { return len(t.Data) }

func (t *Int32) Rank() int { return len(t.Shape) }
func (t *Int32) Len() int  { return len(t.Data) }

// Clone returns a deep copy.
func (t *Float32) Clone() *Float32 {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Float32{Shape: cloneShape(t.Shape), Data: data}
}

// Clone returns a deep copy.
func (t *Int32) Clone() *Int32 {
	data := make([]int32, len(t.Data))
	copy(data, t.Data)
	return &Int32{Shape: cloneShape(t.Shape), Data: data}
}

// AxisDims factors shape around axis into (outer, dim, inner) extents.
// An element at slice index i along axis sits at flat offset
// o*dim*inner + i*inner + j for o in [0,outer) and j in [0,inner).
func AxisDims(shape []int, axis int) (outer, dim, inner int, err error) {
	if axis < 0 || axis >= len(shape) {
		return 0, 0, 0, fmt.Errorf("tensor: axis %d out of range for rank %d", axis, len(shape))
	}
	outer, inner = 1, 1
	for _, d := range shape[:axis] {
		outer *= d
	}
	dim = shape[axis]
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	return outer, dim, inner, nil
}

// Elems returns the element count implied by shape.
func Elems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func checkShape(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("tensor: empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("tensor: invalid dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	return n, nil
}

func cloneShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
