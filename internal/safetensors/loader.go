package safetensors

import (
	"fmt"
	"strings"

	"github.com/RishanR/mediapipe-fydp/pkg/convert"
	"github.com/RishanR/mediapipe-fydp/pkg/tensor"
)

func init() {
	convert.RegisterLoader("safetensors", func(p convert.LoaderParams) (convert.Loader, error) {
		if p.CkptPath == "" {
			return nil, fmt.Errorf("safetensors: checkpoint path required")
		}
		return &ActionLoader{params: p}, nil
	})
}

// ActionLoader maps checkpoint tensors onto quantization actions using
// the run's per-group bit widths. Tensor names are visited in lexical
// order so the action list is deterministic.
type ActionLoader struct {
	params convert.LoaderParams
}

// LoadToActions reads every tensor and pairs it with its quantization
// request.
func (l *ActionLoader) LoadToActions() ([]convert.Action, error) {
	m, err := OpenModel(l.params.CkptPath)
	if err != nil {
		return nil, err
	}

	names := m.SortedTensorNames()
	actions := make([]convert.Action, 0, len(names))
	for _, name := range names {
		data, info, err := m.ReadTensorF32(name)
		if err != nil {
			return nil, err
		}
		t, err := tensor.NewFloat32(info.Shape, data)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		a := convert.Action{TargetName: name, Value: t}
		if bits, ok := l.groupBits(name, info.Shape); ok {
			axis := 0
			a.Axis = &axis
			a.Bits = bits
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// groupBits picks the bit width for a tensor, or reports that it passes
// through unquantized. Norm weights, biases, and sub-2D tensors are
// never quantized.
func (l *ActionLoader) groupBits(name string, shape []int) (int, bool) {
	if len(shape) < 2 {
		return 0, false
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".bias") ||
		strings.Contains(lower, "norm") ||
		strings.Contains(lower, "ln_") {
		return 0, false
	}
	if strings.Contains(lower, "embed") {
		return l.params.EmbeddingBits, true
	}
	for _, marker := range []string{"attn", "attention", "q_proj", "k_proj", "v_proj", "o_proj"} {
		if strings.Contains(lower, marker) {
			return l.params.AttentionBits, true
		}
	}
	// Remaining linear weights travel with the feedforward group.
	return l.params.FeedforwardBits, true
}
