package convert

import (
	"fmt"
	"sync"
)

// WriterWeightBins is the writer tag for the per-tensor weight-file
// writer.
const WriterWeightBins = "weight_bins"

// Loader turns a raw checkpoint into an ordered quantization action
// list.
type Loader interface {
	LoadToActions() ([]Action, error)
}

// LoaderParams carries the per-run context a loader is constructed
// with.
type LoaderParams struct {
	CkptPath        string
	Symmetric       bool
	Backend         Backend
	AttentionBits   int
	FeedforwardBits int
	EmbeddingBits   int
	ModelType       string
}

// LoaderFactory builds a Loader for one run.
type LoaderFactory func(LoaderParams) (Loader, error)

// Writer persists the executor's output set as weight files.
type Writer interface {
	WriteVariables(entries map[string]Entry) error
}

// WriterParams carries the context a writer is constructed with.
type WriterParams struct {
	OutputDir string
	Backend   Backend
}

// WriterFactory builds a Writer for one run.
type WriterFactory func(WriterParams) (Writer, error)

// GeneratorParams carries everything an artifact generator needs.
type GeneratorParams struct {
	ModelType      string
	WeightDir      string
	VocabModelFile string
	EmbedVocab     bool
	OutputFile     string
}

// Generator combines written weight files into the final artifact.
type Generator func(GeneratorParams) error

var (
	registryMu sync.RWMutex
	loaders    = make(map[string]LoaderFactory)
	writers    = make(map[string]WriterFactory)
	generators = make(map[Backend]Generator)
)

// RegisterLoader installs a loader factory for a checkpoint format tag.
func RegisterLoader(format string, f LoaderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	loaders[format] = f
}

// RegisterWriter installs a writer factory for a writer tag.
func RegisterWriter(kind string, f WriterFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	writers[kind] = f
}

// RegisterGenerator installs the artifact generator for a backend tag.
func RegisterGenerator(b Backend, g Generator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	generators[b] = g
}

func newLoader(format string, params LoaderParams) (Loader, error) {
	registryMu.RLock()
	f, ok := loaders[format]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("convert: unsupported checkpoint format %q", format)
	}
	return f(params)
}

func newWriter(kind string, params WriterParams) (Writer, error) {
	registryMu.RLock()
	f, ok := writers[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("convert: unsupported writer type %q", kind)
	}
	return f(params)
}

func generatorFor(b Backend) (Generator, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	g, ok := generators[b]
	if !ok {
		return nil, fmt.Errorf("convert: unsupported backend %q", b)
	}
	return g, nil
}
