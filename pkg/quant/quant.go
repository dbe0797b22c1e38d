// Package quant implements per-axis scale/zero-point quantization of
// float32 tensors at bit widths 2 through 8.
//
// Every index along the chosen axis gets an independent scale (and, for
// asymmetric quantization, an independent zero-point); the remaining
// axes are reduced jointly. Rounding is round-half-away-from-zero
// (math.Round) everywhere, followed by clamping to the representable
// range. Per-slice reductions run sequentially so results are
// bit-reproducible regardless of caller parallelism.
package quant

import (
	"fmt"
	"math"

	"github.com/RishanR/mediapipe-fydp/pkg/tensor"
)

const (
	// MinBits and MaxBits bound the supported quantization widths.
	MinBits = 2
	MaxBits = 8

	// degenerateScale replaces the quantization step of a constant
	// slice (max == min), where the computed step would be zero. The
	// whole slice collapses to its zero code, so the exact value only
	// has to be positive.
	degenerateScale = 1e-7
)

// Result is the quantized representation of one tensor.
//
// Values has the input's shape. Scale, and ZeroPoint when asymmetric,
// are 1-D with one element per index along the quantized axis.
//
// Symmetric codes are signed integers in [-(2^(bits-1)-1), 2^(bits-1)-1]
// and dequantize as code*scale. Asymmetric codes are stored in signed
// offset-binary form: the unsigned code in [0, 2^bits-1] minus
// 2^(bits-1). Zero-points are unsigned codes in [0, 2^bits-1], and a
// value dequantizes as (code + 2^(bits-1) - zeroPoint) * scale.
type Result struct {
	Values    *tensor.Int32
	Scale     *tensor.Float32
	ZeroPoint *tensor.Int32 // nil for symmetric quantization
	Bits      int
}

// Symmetric reports whether the result carries no zero-point.
func (r Result) Symmetric() bool { return r.ZeroPoint == nil }

// Quantize quantizes v along axis at the given bit width.
func Quantize(v *tensor.Float32, axis int, symmetric bool, bits int) (Result, error) {
	if v == nil || len(v.Data) == 0 {
		return Result{}, fmt.Errorf("quant: empty tensor")
	}
	if bits < MinBits || bits > MaxBits {
		return Result{}, fmt.Errorf("quant: bits must be in [%d,%d], got %d", MinBits, MaxBits, bits)
	}
	outer, dim, inner, err := tensor.AxisDims(v.Shape, axis)
	if err != nil {
		return Result{}, fmt.Errorf("quant: shape %v has no axis %d", v.Shape, axis)
	}

	codes := make([]int32, len(v.Data))
	scales := make([]float32, dim)
	var zps []int32
	if !symmetric {
		zps = make([]int32, dim)
	}

	half := int32(1) << (bits - 1)    // 2^(b-1)
	maxCode := (int32(1) << bits) - 1 // unsigned limit, asymmetric
	symBound := float64(half - 1)     // symmetric limit

	for i := 0; i < dim; i++ {
		lo, hi := sliceMinMax(v.Data, i, dim, inner, outer)

		if symmetric {
			bound := math.Max(math.Abs(lo), math.Abs(hi))
			scale := bound / symBound
			if scale == 0 {
				scale = degenerateScale
			}
			scales[i] = float32(scale)
			eachSliceElem(i, dim, inner, outer, func(idx int) {
				c := math.Round(float64(v.Data[idx]) / scale)
				codes[idx] = clamp(int32(c), -(half - 1), half-1)
			})
			continue
		}

		scale := (hi - lo) / float64(maxCode)
		if hi == lo {
			// Constant slice: every code collapses to the zero-point so
			// the slice dequantizes to exactly zero.
			scale = degenerateScale
			zp := clamp(int32(math.Round(-lo/scale)), 0, maxCode)
			scales[i] = float32(scale)
			zps[i] = zp
			eachSliceElem(i, dim, inner, outer, func(idx int) {
				codes[idx] = zp - half
			})
			continue
		}
		zp := clamp(int32(math.Round(-lo/scale)), 0, maxCode)
		scales[i] = float32(scale)
		zps[i] = zp
		eachSliceElem(i, dim, inner, outer, func(idx int) {
			c := int32(math.Round(float64(v.Data[idx])/scale)) + zp
			codes[idx] = clamp(c, 0, maxCode) - half
		})
	}

	res := Result{Bits: bits}
	res.Values = &tensor.Int32{Shape: append([]int(nil), v.Shape...), Data: codes}
	res.Scale = &tensor.Float32{Shape: []int{dim}, Data: scales}
	if !symmetric {
		res.ZeroPoint = &tensor.Int32{Shape: []int{dim}, Data: zps}
	}
	return res, nil
}

// Dequantize reconstructs the float tensor r was produced from, up to
// one quantization step per element. axis must match the Quantize call.
func Dequantize(r Result, axis int) (*tensor.Float32, error) {
	if r.Values == nil || r.Scale == nil {
		return nil, fmt.Errorf("quant: incomplete result")
	}
	_, dim, inner, err := tensor.AxisDims(r.Values.Shape, axis)
	if err != nil {
		return nil, err
	}
	if r.Scale.Len() != dim {
		return nil, fmt.Errorf("quant: scale length %d does not match axis extent %d", r.Scale.Len(), dim)
	}
	half := int32(1) << (r.Bits - 1)

	out := make([]float32, len(r.Values.Data))
	for idx, code := range r.Values.Data {
		i := (idx / inner) % dim
		scale := float64(r.Scale.Data[i])
		if r.ZeroPoint == nil {
			out[idx] = float32(float64(code) * scale)
		} else {
			out[idx] = float32(float64(code+half-r.ZeroPoint.Data[i]) * scale)
		}
	}
	return &tensor.Float32{Shape: append([]int(nil), r.Values.Shape...), Data: out}, nil
}

// UpdateToUint4 remaps an asymmetric 4-bit result from signed to
// unsigned storage by adding 8 to every code and to the zero-point,
// leaving the scale unchanged. The input is not modified.
func UpdateToUint4(r Result) (Result, error) {
	if r.Bits != 4 || r.ZeroPoint == nil {
		return Result{}, fmt.Errorf("quant: uint4 remap needs an asymmetric 4-bit result")
	}
	values := r.Values.Clone()
	for i := range values.Data {
		values.Data[i] += 8
	}
	zp := r.ZeroPoint.Clone()
	for i := range zp.Data {
		zp.Data[i] += 8
	}
	return Result{Values: values, Scale: r.Scale, ZeroPoint: zp, Bits: r.Bits}, nil
}

func sliceMinMax(data []float32, i, dim, inner, outer int) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for o := 0; o < outer; o++ {
		base := o*dim*inner + i*inner
		for j := 0; j < inner; j++ {
			v := float64(data[base+j])
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

func eachSliceElem(i, dim, inner, outer int, fn func(idx int)) {
	for o := 0; o < outer; o++ {
		base := o*dim*inner + i*inner
		for j := 0; j < inner; j++ {
			fn(base + j)
		}
	}
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
