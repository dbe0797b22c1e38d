package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/RishanR/mediapipe-fydp/internal/artifact"
)

func inspectCmd() *cli.Command {
	var (
		artifactPath string
		showWeights  bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Dump the contents of a converted artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "artifact",
				Aliases:     []string{"a"},
				Usage:       "path to the artifact file",
				Destination: &artifactPath,
			},
			&cli.BoolFlag{
				Name:        "weights",
				Usage:       "list every weight index entry",
				Destination: &showWeights,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if artifactPath == "" {
				if cmd.Args().Len() > 0 {
					artifactPath = cmd.Args().First()
				} else {
					return errors.New("inspect: no artifact path given")
				}
			}

			f, err := artifact.Open(artifactPath)
			if err != nil {
				return fmt.Errorf("inspect: open %q: %w", artifactPath, err)
			}
			defer f.Close()

			fmt.Printf("file:     %s\n", artifactPath)
			fmt.Printf("format:   LMA v%d.%d\n", f.Header.Major, f.Header.Minor)
			fmt.Printf("size:     %d bytes\n", f.Header.FileSize)
			fmt.Printf("sections: %d\n", f.Header.SectionCount)
			for i := range f.Sections {
				s := &f.Sections[i]
				fmt.Printf("  %-12s offset=%-10d size=%d\n",
					sectionName(artifact.SectionType(s.Type)), s.Offset, s.Size)
			}

			if info := f.Section(artifact.SectionModelInfo); info != nil {
				fmt.Printf("model info: %s\n", strings.TrimSpace(string(f.SectionData(info))))
			}

			idx := f.Section(artifact.SectionWeightIndex)
			if idx == nil {
				return nil
			}
			entries, err := artifact.DecodeIndex(f.SectionData(idx))
			if err != nil {
				return err
			}
			fmt.Printf("weights:  %d\n", len(entries))
			if showWeights {
				for i := range entries {
					e := &entries[i]
					fmt.Printf("  %-48s dtype=%d shape=%v offset=%d size=%d\n",
						e.Name, e.DType, e.Shape, e.Offset, e.Size)
				}
			}
			return nil
		},
	}
}

func sectionName(t artifact.SectionType) string {
	switch t {
	case artifact.SectionModelInfo:
		return "model_info"
	case artifact.SectionWeightIndex:
		return "weight_index"
	case artifact.SectionWeightData:
		return "weight_data"
	case artifact.SectionVocabModel:
		return "vocab_model"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}
