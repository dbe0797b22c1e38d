package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/RishanR/mediapipe-fydp/internal/logger"
	"github.com/RishanR/mediapipe-fydp/pkg/convert"
)

func convertCmd() *cli.Command {
	var (
		inputCkpt       string
		ckptFormat      string
		modelType       string
		backendName     string
		outputDir       string
		symmetric       bool
		attentionBits   int64
		feedforwardBits int64
		embeddingBits   int64
		combineFileOnly bool
		vocabModelFile  string
		outputArtifact  string
	)

	return &cli.Command{
		Name:  "convert",
		Usage: "Convert a checkpoint into a quantized runtime artifact",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "input-ckpt",
				Aliases:     []string{"i"},
				Usage:       "path to the checkpoint (file or directory)",
				Destination: &inputCkpt,
			},
			&cli.StringFlag{
				Name:        "ckpt-format",
				Usage:       "checkpoint format (safetensors)",
				Value:       "safetensors",
				Destination: &ckptFormat,
			},
			&cli.StringFlag{
				Name:        "model-type",
				Usage:       "model architecture identifier recorded in the artifact",
				Destination: &modelType,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "target backend (xnnpack, ml_drift)",
				Value:       "xnnpack",
				Destination: &backendName,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Aliases:     []string{"o"},
				Usage:       "directory for intermediate weight files",
				Destination: &outputDir,
			},
			&cli.BoolFlag{
				Name:        "is-symmetric",
				Usage:       "quantize symmetrically around zero",
				Value:       true,
				Destination: &symmetric,
			},
			&cli.Int64Flag{
				Name:        "attention-quant-bits",
				Usage:       "bit width for attention tensors",
				Value:       8,
				Destination: &attentionBits,
			},
			&cli.Int64Flag{
				Name:        "feedforward-quant-bits",
				Usage:       "bit width for feedforward tensors",
				Value:       8,
				Destination: &feedforwardBits,
			},
			&cli.Int64Flag{
				Name:        "embedding-quant-bits",
				Usage:       "bit width for embedding tensors",
				Value:       8,
				Destination: &embeddingBits,
			},
			&cli.BoolFlag{
				Name:        "combine-file-only",
				Usage:       "skip quantization and bundle existing weight files",
				Destination: &combineFileOnly,
			},
			&cli.StringFlag{
				Name:        "vocab-model-file",
				Usage:       "vocabulary model to embed in the artifact",
				Destination: &vocabModelFile,
			},
			&cli.StringFlag{
				Name:        "output-tflite-file",
				Usage:       "artifact output path (default <output-dir>/model.tflite)",
				Destination: &outputArtifact,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConvertConfig(cmd, LoadConfig(),
				&outputDir, &ckptFormat, &backendName, &symmetric,
				&attentionBits, &feedforwardBits, &embeddingBits)

			cfg, err := convert.NewConfig(convert.Options{
				InputCkpt:       inputCkpt,
				CkptFormat:      ckptFormat,
				ModelType:       modelType,
				Backend:         backendName,
				OutputDir:       outputDir,
				Symmetric:       &symmetric,
				AttentionBits:   int(attentionBits),
				FeedforwardBits: int(feedforwardBits),
				EmbeddingBits:   int(embeddingBits),
				CombineFileOnly: combineFileOnly,
				VocabModelFile:  vocabModelFile,
				OutputArtifact:  outputArtifact,
			})
			if err != nil {
				return err
			}

			log := newLogger()
			ctx = logger.WithContext(ctx, log)
			return convert.Convert(ctx, cfg)
		},
	}
}
