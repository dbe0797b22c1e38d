package convert

import (
	"fmt"
	"sync"

	"github.com/RishanR/mediapipe-fydp/pkg/quant"
)

// Backend identifies the target inference runtime.
type Backend string

const (
	BackendXNNPack Backend = "xnnpack"
	BackendMLDrift Backend = "ml_drift"
)

// Adapter post-processes one quantized tensor for a backend. It runs
// after the primitive quantization step on the asymmetric path and must
// return the input unchanged for combinations it has no rule for.
type Adapter func(r quant.Result) (quant.Result, error)

var (
	adapterMu sync.RWMutex
	adapters  = make(map[Backend]Adapter)
)

// RegisterAdapter installs the post-processing hook for a backend.
// Backends without quirks register a pass-through.
func RegisterAdapter(b Backend, a Adapter) {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	adapters[b] = a
}

func adapterFor(b Backend) (Adapter, error) {
	adapterMu.RLock()
	defer adapterMu.RUnlock()
	a, ok := adapters[b]
	if !ok {
		return nil, fmt.Errorf("convert: unsupported backend %q", b)
	}
	return a, nil
}

func init() {
	// xnnpack stores asymmetric 4-bit weights unsigned.
	RegisterAdapter(BackendXNNPack, func(r quant.Result) (quant.Result, error) {
		if r.Symmetric() || r.Bits != 4 {
			return r, nil
		}
		return quant.UpdateToUint4(r)
	})
	RegisterAdapter(BackendMLDrift, func(r quant.Result) (quant.Result, error) {
		return r, nil
	})
}
