package convert

import (
	"fmt"
	"sort"

	"github.com/RishanR/mediapipe-fydp/pkg/quant"
)

// Apply executes actions in order and returns the output set keyed by
// derived tensor name.
//
// Each quantized action emits its codes under the target name, its
// scales under target+ScaleSuffix, and (asymmetric only) its
// zero-points under target+ZeroPointSuffix. Actions without an axis
// copy their value through under the target name alone. The backend's
// adapter is resolved once up front, so an unsupported backend tag
// fails before any tensor is touched.
func Apply(actions []Action, backend Backend, symmetric bool) (map[string]Entry, error) {
	adapter, err := adapterFor(backend)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Entry, 2*len(actions))
	put := func(name string, e Entry) error {
		if _, ok := out[name]; ok {
			return fmt.Errorf("convert: output name collision on %q", name)
		}
		out[name] = e
		return nil
	}

	for _, a := range actions {
		if a.Value == nil {
			return nil, fmt.Errorf("convert: action %q has no tensor value", a.TargetName)
		}
		if a.Axis == nil {
			if err := put(a.TargetName, Entry{Floats: a.Value}); err != nil {
				return nil, err
			}
			continue
		}

		res, err := quant.Quantize(a.Value, *a.Axis, symmetric, a.Bits)
		if err != nil {
			return nil, fmt.Errorf("convert: quantize %q: %w", a.TargetName, err)
		}
		if !symmetric {
			res, err = adapter(res)
			if err != nil {
				return nil, fmt.Errorf("convert: adapt %q for %s: %w", a.TargetName, backend, err)
			}
		}

		pack := a.Bits == 4
		if err := put(a.TargetName, Entry{Ints: res.Values, Pack: pack}); err != nil {
			return nil, err
		}
		if err := put(a.TargetName+ScaleSuffix, Entry{Floats: res.Scale}); err != nil {
			return nil, err
		}
		if res.ZeroPoint != nil {
			if err := put(a.TargetName+ZeroPointSuffix, Entry{Ints: res.ZeroPoint}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SortedNames returns the entry names in lexical order. Writers iterate
// this for reproducible output.
func SortedNames(entries map[string]Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
