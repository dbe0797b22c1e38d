// Package convert turns checkpoint tensors into a quantized,
// backend-specific weight representation.
//
// A loader (registered per checkpoint format) produces an ordered list
// of quantization actions; Apply executes them into a named output set;
// a writer (registered per writer tag) persists the set as weight
// files; a generator (registered per backend) combines the weight files
// into the final deployable artifact. Convert sequences the stages.
package convert

import "github.com/RishanR/mediapipe-fydp/pkg/tensor"

// Suffixes appended to an action's target name for the quantization
// metadata entries in the output set.
const (
	ScaleSuffix     = "_quantized_scale"
	ZeroPointSuffix = "_quantized_zp"
)

// Action describes the quantization of one tensor.
type Action struct {
	// TargetName is the destination key in the output set. It must be
	// unique across the action list.
	TargetName string

	// Value is the source-precision tensor.
	Value *tensor.Float32

	// Axis, when non-nil, selects the axis whose indices receive
	// independent scales. Nil means the value is copied through
	// unmodified with no quantization metadata.
	Axis *int

	// Bits is the quantization width in [2,8]. Ignored when Axis is
	// nil.
	Bits int
}

// Entry is one named tensor in the executor's output set. Exactly one
// of Floats and Ints is set: unquantized values and scales are float,
// quantized codes and zero-points are integer.
type Entry struct {
	Floats *tensor.Float32
	Ints   *tensor.Int32

	// Pack marks 4-bit codes the writer stores two per byte.
	Pack bool
}
