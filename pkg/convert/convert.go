package convert

import (
	"context"
	"fmt"

	"github.com/RishanR/mediapipe-fydp/internal/logger"
)

// Convert runs one checkpoint conversion end to end.
//
// The full path sequences loader, executor, and writer before artifact
// generation; the combine-only path assumes the weight files already
// exist in cfg.OutputDir and invokes the generator directly. Any stage
// failure aborts the run; weight files written before a later failure
// are left in place (combine-only reruns depend on that).
func Convert(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("convert: nil config")
	}
	log := logger.FromContext(ctx)
	log.Info("starting conversion",
		"input", cfg.InputCkpt,
		"format", cfg.CkptFormat,
		"backend", string(cfg.Backend),
		"output_dir", cfg.OutputDir,
		"combine_only", cfg.CombineFileOnly,
	)

	if !cfg.CombineFileOnly {
		loader, err := newLoader(cfg.CkptFormat, LoaderParams{
			CkptPath:        cfg.InputCkpt,
			Symmetric:       cfg.Symmetric,
			Backend:         cfg.Backend,
			AttentionBits:   cfg.AttentionBits,
			FeedforwardBits: cfg.FeedforwardBits,
			EmbeddingBits:   cfg.EmbeddingBits,
			ModelType:       cfg.ModelType,
		})
		if err != nil {
			return err
		}
		actions, err := loader.LoadToActions()
		if err != nil {
			return fmt.Errorf("convert: load actions: %w", err)
		}
		log.Info("loaded quantization actions", "count", len(actions))

		entries, err := Apply(actions, cfg.Backend, cfg.Symmetric)
		if err != nil {
			return err
		}
		log.Info("quantized tensors", "entries", len(entries))

		writer, err := newWriter(WriterWeightBins, WriterParams{
			OutputDir: cfg.OutputDir,
			Backend:   cfg.Backend,
		})
		if err != nil {
			return err
		}
		if err := writer.WriteVariables(entries); err != nil {
			return fmt.Errorf("convert: write weight files: %w", err)
		}
	}

	gen, err := generatorFor(cfg.Backend)
	if err != nil {
		return err
	}
	if err := gen(GeneratorParams{
		ModelType:      cfg.ModelType,
		WeightDir:      cfg.OutputDir,
		VocabModelFile: cfg.VocabModelFile,
		EmbedVocab:     true,
		OutputFile:     cfg.OutputArtifact,
	}); err != nil {
		return fmt.Errorf("convert: generate artifact: %w", err)
	}
	log.Info("wrote artifact", "path", cfg.OutputArtifact)
	return nil
}
