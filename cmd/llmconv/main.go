package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	// Register the checkpoint loader, weight writer and artifact generators.
	_ "github.com/RishanR/mediapipe-fydp/internal/artifact"
	_ "github.com/RishanR/mediapipe-fydp/internal/safetensors"
	_ "github.com/RishanR/mediapipe-fydp/internal/weightbin"
)

func main() {
	app := &cli.Command{
		Name:  "llmconv",
		Usage: "Convert LLM checkpoints into quantized runtime artifacts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			convertCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
