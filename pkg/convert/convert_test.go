package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RishanR/mediapipe-fydp/pkg/quant"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	cfg, err := NewConfig(Options{OutputDir: dir, Backend: "xnnpack"})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("output directory not created: %v", err)
	}
	if cfg.OutputArtifact != filepath.Join(dir, DefaultArtifactName) {
		t.Fatalf("artifact path = %q", cfg.OutputArtifact)
	}
	if !cfg.Symmetric {
		t.Fatal("symmetric should default to true")
	}
	if cfg.AttentionBits != 8 || cfg.FeedforwardBits != 8 || cfg.EmbeddingBits != 8 {
		t.Fatalf("bit widths = %d/%d/%d, want 8 each",
			cfg.AttentionBits, cfg.FeedforwardBits, cfg.EmbeddingBits)
	}
	if cfg.Backend != BackendXNNPack {
		t.Fatalf("backend = %q", cfg.Backend)
	}
}

func TestNewConfigExplicitValues(t *testing.T) {
	t.Parallel()

	symmetric := false
	cfg, err := NewConfig(Options{
		OutputDir:     t.TempDir(),
		Symmetric:     &symmetric,
		AttentionBits: 4,
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Symmetric {
		t.Fatal("explicit symmetric=false ignored")
	}
	if cfg.AttentionBits != 4 || cfg.FeedforwardBits != 8 {
		t.Fatalf("bit widths = %d/%d", cfg.AttentionBits, cfg.FeedforwardBits)
	}
}

func TestNewConfigRejectsFileAsOutputDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := NewConfig(Options{OutputDir: path})
	if err == nil || !strings.Contains(err.Error(), "existing file") {
		t.Fatalf("expected existing-file error, got %v", err)
	}
}

func TestNewConfigRequiresOutputDir(t *testing.T) {
	t.Parallel()

	if _, err := NewConfig(Options{}); err == nil {
		t.Fatal("expected error for missing output dir")
	}
}

func TestNewConfigCreatesArtifactParent(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	artifact := filepath.Join(base, "deep", "nested", "model.bin")
	cfg, err := NewConfig(Options{
		OutputDir:      filepath.Join(base, "out"),
		OutputArtifact: artifact,
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.OutputArtifact != artifact {
		t.Fatalf("artifact path = %q", cfg.OutputArtifact)
	}
	if st, err := os.Stat(filepath.Dir(artifact)); err != nil || !st.IsDir() {
		t.Fatalf("artifact parent not created: %v", err)
	}
}

// fakeLoader feeds a fixed action list into the pipeline.
type fakeLoader struct {
	actions []Action
}

func (l *fakeLoader) LoadToActions() ([]Action, error) { return l.actions, nil }

// recordingWriter captures what the pipeline hands the writer.
type recordingWriter struct {
	entries map[string]Entry
}

func (w *recordingWriter) WriteVariables(entries map[string]Entry) error {
	w.entries = entries
	return nil
}

func TestConvertFullPath(t *testing.T) {
	// Mutates the global registries; test-specific tags keep runs
	// independent but parallel siblings could still race registration.
	backend := Backend("testrt")
	RegisterAdapter(backend, func(r quant.Result) (quant.Result, error) { return r, nil })

	v := mustFloat32(t, []int{2, 2}, []float32{1, -1, 0.5, -0.5})
	RegisterLoader("testfmt", func(p LoaderParams) (Loader, error) {
		if p.AttentionBits != 8 {
			t.Errorf("loader got attention bits %d", p.AttentionBits)
		}
		return &fakeLoader{actions: []Action{
			{TargetName: "w", Value: v, Axis: axis(0), Bits: p.AttentionBits},
		}}, nil
	})

	writer := &recordingWriter{}
	RegisterWriter(WriterWeightBins, func(p WriterParams) (Writer, error) {
		return writer, nil
	})

	var generated GeneratorParams
	RegisterGenerator(backend, func(p GeneratorParams) error {
		generated = p
		return nil
	})

	cfg, err := NewConfig(Options{
		InputCkpt:  "model.safetensors",
		CkptFormat: "testfmt",
		ModelType:  "GEMMA_2B",
		Backend:    string(backend),
		OutputDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if err := Convert(context.Background(), cfg); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if writer.entries == nil {
		t.Fatal("writer never received entries")
	}
	if _, ok := writer.entries["w_quantized_scale"]; !ok {
		t.Fatalf("missing scale entry, got %v", SortedNames(writer.entries))
	}
	if generated.WeightDir != cfg.OutputDir {
		t.Fatalf("generator weight dir = %q, want %q", generated.WeightDir, cfg.OutputDir)
	}
	if generated.OutputFile != cfg.OutputArtifact {
		t.Fatalf("generator output = %q, want %q", generated.OutputFile, cfg.OutputArtifact)
	}
	if generated.ModelType != "GEMMA_2B" || !generated.EmbedVocab {
		t.Fatalf("unexpected generator params: %+v", generated)
	}
}

func TestConvertCombineOnlySkipsLoader(t *testing.T) {
	backend := Backend("combine-rt")
	called := false
	RegisterGenerator(backend, func(p GeneratorParams) error {
		called = true
		return nil
	})

	cfg, err := NewConfig(Options{
		// No loader is registered for this format; combine-only must
		// not care.
		CkptFormat:      "no-such-format",
		Backend:         string(backend),
		OutputDir:       t.TempDir(),
		CombineFileOnly: true,
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if err := Convert(context.Background(), cfg); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !called {
		t.Fatal("generator never invoked")
	}
}

func TestConvertCombineOnlyUnsupportedBackend(t *testing.T) {
	cfg, err := NewConfig(Options{
		Backend:         "no-such-backend",
		OutputDir:       t.TempDir(),
		CombineFileOnly: true,
	})
	if err != nil {
		t.Fatalf("NewConfig accepted the config, as it should: %v", err)
	}
	err = Convert(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported backend") {
		t.Fatalf("expected unsupported backend at dispatch, got %v", err)
	}
}

func TestConvertUnsupportedFormat(t *testing.T) {
	backend := Backend("fmt-rt")
	RegisterAdapter(backend, func(r quant.Result) (quant.Result, error) { return r, nil })

	cfg, err := NewConfig(Options{
		CkptFormat: "no-such-format",
		Backend:    string(backend),
		OutputDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	err = Convert(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported checkpoint format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
