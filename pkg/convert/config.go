package convert

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultArtifactName is the output artifact filename when none is
// given.
const DefaultArtifactName = "model.tflite"

// Options are the raw settings for one conversion run. Pointer fields
// distinguish "not set" from zero values; unset fields take the
// documented defaults in NewConfig.
type Options struct {
	// InputCkpt is the checkpoint file or directory.
	InputCkpt string
	// CkptFormat selects the registered loader, e.g. "safetensors".
	CkptFormat string
	// ModelType is an opaque model tag carried into the artifact.
	ModelType string
	// Backend is the target runtime tag. Validity is checked where the
	// tag is consumed (executor and generator dispatch), not here.
	Backend string
	// OutputDir receives the weight files. Created if missing; must not
	// be an existing regular file.
	OutputDir string

	// Symmetric selects symmetric quantization. Default true.
	Symmetric *bool

	// Per-group quantization widths. Default 8 each.
	AttentionBits   int
	FeedforwardBits int
	EmbeddingBits   int

	// CombineFileOnly skips load/quantize/write and combines weight
	// files already present in OutputDir.
	CombineFileOnly bool

	// VocabModelFile optionally embeds a vocabulary model in the
	// artifact.
	VocabModelFile string

	// OutputArtifact is the artifact path. Default
	// OutputDir/model.tflite; its parent directory is created if
	// missing.
	OutputArtifact string
}

// Config is a validated, resolved conversion run configuration. Build
// it with NewConfig and treat it as read-only.
type Config struct {
	InputCkpt       string
	CkptFormat      string
	ModelType       string
	Backend         Backend
	OutputDir       string
	Symmetric       bool
	AttentionBits   int
	FeedforwardBits int
	EmbeddingBits   int
	CombineFileOnly bool
	VocabModelFile  string
	OutputArtifact  string
}

// NewConfig validates opts, creates the output directories, and
// resolves defaults.
func NewConfig(opts Options) (*Config, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("convert: OutputDir required")
	}
	if st, err := os.Stat(opts.OutputDir); err == nil && !st.IsDir() {
		return nil, fmt.Errorf("convert: output directory %q points to an existing file", opts.OutputDir)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("convert: create output directory: %w", err)
	}

	artifact := opts.OutputArtifact
	if artifact == "" {
		artifact = filepath.Join(opts.OutputDir, DefaultArtifactName)
	} else if dir := filepath.Dir(artifact); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("convert: create artifact directory: %w", err)
		}
	}

	symmetric := true
	if opts.Symmetric != nil {
		symmetric = *opts.Symmetric
	}

	cfg := &Config{
		InputCkpt:       opts.InputCkpt,
		CkptFormat:      opts.CkptFormat,
		ModelType:       opts.ModelType,
		Backend:         Backend(opts.Backend),
		OutputDir:       opts.OutputDir,
		Symmetric:       symmetric,
		AttentionBits:   defaultBits(opts.AttentionBits),
		FeedforwardBits: defaultBits(opts.FeedforwardBits),
		EmbeddingBits:   defaultBits(opts.EmbeddingBits),
		CombineFileOnly: opts.CombineFileOnly,
		VocabModelFile:  opts.VocabModelFile,
		OutputArtifact:  artifact,
	}
	return cfg, nil
}

func defaultBits(b int) int {
	if b == 0 {
		return 8
	}
	return b
}
