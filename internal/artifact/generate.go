package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/RishanR/mediapipe-fydp/internal/weightbin"
	"github.com/RishanR/mediapipe-fydp/pkg/convert"
)

func init() {
	convert.RegisterGenerator(convert.BackendXNNPack, GenerateXnnpack)
	convert.RegisterGenerator(convert.BackendMLDrift, GenerateMLDrift)
}

// GenerateXnnpack bundles converted weight files into an LMA artifact for
// the CPU runtime.
func GenerateXnnpack(p convert.GeneratorParams) error {
	return generate(p, convert.BackendXNNPack)
}

// GenerateMLDrift bundles converted weight files into an LMA artifact for
// the GPU runtime.
func GenerateMLDrift(p convert.GeneratorParams) error {
	return generate(p, convert.BackendMLDrift)
}

// ModelInfo is the JSON payload of the model info section.
type ModelInfo struct {
	ModelType string `json:"model_type"`
	Backend   string `json:"backend"`
	Major     uint16 `json:"format_major"`
	Minor     uint16 `json:"format_minor"`
}

// IndexEntry describes one weight payload inside the weight data section.
// Offsets are relative to the start of that section.
type IndexEntry struct {
	Name   string
	DType  uint8
	Shape  []int
	Offset uint64
	Size   uint64
}

func generate(p convert.GeneratorParams, backend convert.Backend) error {
	names, err := listWeightFiles(p.WeightDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("artifact: no weight files under %q", p.WeightDir)
	}

	out, err := os.Create(p.OutputFile)
	if err != nil {
		return fmt.Errorf("artifact: create %q: %w", p.OutputFile, err)
	}
	defer out.Close()

	w, err := NewWriter(out)
	if err != nil {
		return err
	}

	info, err := json.Marshal(ModelInfo{
		ModelType: p.ModelType,
		Backend:   string(backend),
		Major:     CurrentMajor,
		Minor:     CurrentMinor,
	})
	if err != nil {
		return fmt.Errorf("artifact: encode model info: %w", err)
	}
	if err := w.WriteSection(SectionModelInfo, info); err != nil {
		return err
	}

	entries, err := writeWeightData(w, names)
	if err != nil {
		return err
	}
	if err := w.WriteSection(SectionWeightIndex, encodeIndex(entries)); err != nil {
		return err
	}

	if p.EmbedVocab && p.VocabModelFile != "" {
		vocab, err := os.ReadFile(p.VocabModelFile)
		if err != nil {
			return fmt.Errorf("artifact: read vocab model: %w", err)
		}
		if err := w.WriteSection(SectionVocabModel, vocab); err != nil {
			return err
		}
	}

	if err := w.Finalise(); err != nil {
		return fmt.Errorf("artifact: finalise %q: %w", p.OutputFile, err)
	}
	return nil
}

// listWeightFiles returns the weight file paths under dir in name order so
// repeated runs produce identical bundles.
func listWeightFiles(dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), weightbin.FileExt) {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: scan weight dir %q: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}

func writeWeightData(w *Writer, paths []string) ([]IndexEntry, error) {
	sw, err := w.BeginSection(SectionWeightData)
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(paths))
	for _, path := range paths {
		rec, err := weightbin.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := sw.Align(sectionAlign); err != nil {
			return nil, err
		}
		offset, err := sw.BytesWritten()
		if err != nil {
			return nil, err
		}
		if _, err := sw.Write(rec.Payload); err != nil {
			return nil, err
		}
		entries = append(entries, IndexEntry{
			Name:   rec.Name,
			DType:  rec.DType,
			Shape:  rec.Shape,
			Offset: offset,
			Size:   uint64(len(rec.Payload)),
		})
	}

	if err := sw.End(); err != nil {
		return nil, err
	}
	return entries, nil
}
