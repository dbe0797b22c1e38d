package tensor

import "testing"

func TestNewFloat32(t *testing.T) {
	t.Parallel()

	v, err := NewFloat32([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewFloat32: %v", err)
	}
	if v.Rank() != 2 || v.Len() != 6 {
		t.Fatalf("got rank=%d len=%d, want 2 and 6", v.Rank(), v.Len())
	}

	if _, err := NewFloat32([]int{2, 3}, []float32{1, 2}); err == nil {
		t.Fatal("expected error for element count mismatch")
	}
	if _, err := NewFloat32(nil, nil); err == nil {
		t.Fatal("expected error for empty shape")
	}
	if _, err := NewFloat32([]int{2, 0}, nil); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	v, err := NewInt32([]int{2, 2}, []int32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewInt32: %v", err)
	}
	c := v.Clone()
	c.Data[0] = 99
	c.Shape[0] = 99
	if v.Data[0] != 1 || v.Shape[0] != 2 {
		t.Fatalf("clone aliases original: %v %v", v.Data, v.Shape)
	}
}

func TestAxisDims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shape             []int
		axis              int
		outer, dim, inner int
	}{
		{[]int{4, 6}, 0, 1, 4, 6},
		{[]int{4, 6}, 1, 4, 6, 1},
		{[]int{2, 3, 5}, 1, 2, 3, 5},
		{[]int{7}, 0, 1, 7, 1},
	}
	for _, tc := range tests {
		outer, dim, inner, err := AxisDims(tc.shape, tc.axis)
		if err != nil {
			t.Fatalf("AxisDims(%v, %d): %v", tc.shape, tc.axis, err)
		}
		if outer != tc.outer || dim != tc.dim || inner != tc.inner {
			t.Errorf("AxisDims(%v, %d) = (%d,%d,%d), want (%d,%d,%d)",
				tc.shape, tc.axis, outer, dim, inner, tc.outer, tc.dim, tc.inner)
		}
	}

	if _, _, _, err := AxisDims([]int{2, 3}, 2); err == nil {
		t.Fatal("expected error for axis out of range")
	}
	if _, _, _, err := AxisDims([]int{2, 3}, -1); err == nil {
		t.Fatal("expected error for negative axis")
	}
}
