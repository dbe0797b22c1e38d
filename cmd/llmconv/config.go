package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the llmconv configuration file
// (~/.config/llmconv/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	OutputDir  string `yaml:"output_dir"`
	CkptFormat string `yaml:"ckpt_format"`
	Backend    string `yaml:"backend"`

	// Quantization defaults
	Symmetric       *bool  `yaml:"is_symmetric"`
	AttentionBits   *int64 `yaml:"attention_quant_bits"`
	FeedforwardBits *int64 `yaml:"feedforward_quant_bits"`
	EmbeddingBits   *int64 `yaml:"embedding_quant_bits"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "llmconv", "config.yaml")
}

// applyConvertConfig applies config file defaults to convert command
// variables when the corresponding CLI flag was not explicitly set.
func applyConvertConfig(c *cli.Command, cfg Config,
	outputDir, ckptFormat, backendName *string, symmetric *bool,
	attentionBits, feedforwardBits, embeddingBits *int64,
) {
	if cfg.OutputDir != "" && !c.IsSet("output-dir") {
		*outputDir = cfg.OutputDir
	}
	if cfg.CkptFormat != "" && !c.IsSet("ckpt-format") {
		*ckptFormat = cfg.CkptFormat
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		*backendName = cfg.Backend
	}
	if cfg.Symmetric != nil && !c.IsSet("is-symmetric") {
		*symmetric = *cfg.Symmetric
	}
	if cfg.AttentionBits != nil && !c.IsSet("attention-quant-bits") {
		*attentionBits = *cfg.AttentionBits
	}
	if cfg.FeedforwardBits != nil && !c.IsSet("feedforward-quant-bits") {
		*feedforwardBits = *cfg.FeedforwardBits
	}
	if cfg.EmbeddingBits != nil && !c.IsSet("embedding-quant-bits") {
		*embeddingBits = *cfg.EmbeddingBits
	}
	applyLoggingConfig(c, cfg)
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	applyLoggingConfig(c, cfg)
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or fails to parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
