// Package config loads the YAML configuration and applies environment
// overrides on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"newsroom_writer/dataset"
	"newsroom_writer/features"
	"newsroom_writer/generator"
	"newsroom_writer/llm"
	"newsroom_writer/nn"
	"newsroom_writer/publisher"
	"newsroom_writer/scoring"
)

// DefaultPath is where Load looks when no -config flag is given.
const DefaultPath = "config/config.yaml"

type Config struct {
	LLM       llm.Settings           `yaml:"llm"`
	Paths     Paths                  `yaml:"paths"`
	Writer    generator.WriterConfig `yaml:"writer"`
	Model     ModelConfig            `yaml:"model"`
	Weights   scoring.Weights        `yaml:"weights"`
	Dataset   DatasetConfig          `yaml:"dataset"`
	CMS       publisher.Config       `yaml:"cms"`
	Server    ServerConfig           `yaml:"server"`
	LogLevel  string                 `yaml:"log_level"`
	LogFormat string                 `yaml:"log_format"`
}

// Paths are the on-disk artefacts.
type Paths struct {
	Framework string `yaml:"framework"`
	Weights   string `yaml:"weights"`
	TrainX    string `yaml:"train_x"`
	TrainY    string `yaml:"train_y"`
	Database  string `yaml:"database"`
}

// ModelConfig is the scoring network and its training schedule.
type ModelConfig struct {
	Hidden       []int   `yaml:"hidden"`
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`
	Seed         uint64  `yaml:"seed"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
}

// NN converts the model section to an nn.Config.
func (m ModelConfig) NN() nn.Config {
	cfg := nn.DefaultConfig(features.Size)
	cfg.Hidden = m.Hidden
	cfg.LearningRate = m.LearningRate
	cfg.Momentum = m.Momentum
	cfg.Seed = m.Seed
	return cfg
}

// TrainOptions converts the model section to dataset.TrainOptions.
func (m ModelConfig) TrainOptions() dataset.TrainOptions {
	return dataset.TrainOptions{Model: m.NN(), Epochs: m.Epochs, BatchSize: m.BatchSize}
}

type DatasetConfig struct {
	Feeds    []string `yaml:"feeds"`
	Limit    int      `yaml:"limit"`
	MinChars int      `yaml:"min_chars"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	train := dataset.DefaultTrainOptions()
	return Config{
		LLM: llm.Settings{Provider: "openai", Model: "gpt-4o-mini"},
		Paths: Paths{
			Framework: "intellinews_style_framework.json",
			Weights:   "data/model_weights.npz",
			TrainX:    "data/X.npy",
			TrainY:    "data/y.npy",
			Database:  "data/runs.db",
		},
		Writer: generator.DefaultWriterConfig(),
		Model: ModelConfig{
			Hidden:       train.Model.Hidden,
			LearningRate: train.Model.LearningRate,
			Momentum:     train.Model.Momentum,
			Seed:         train.Model.Seed,
			Epochs:       train.Epochs,
			BatchSize:    train.BatchSize,
		},
		Weights: scoring.DefaultWeights(),
		Dataset: DatasetConfig{
			Feeds:    append([]string(nil), dataset.DefaultFeeds...),
			Limit:    100,
			MinChars: dataset.DefaultMinChars,
		},
		CMS:       publisher.Config{Outbox: "data/outbox"},
		Server:    ServerConfig{Addr: ":8080"},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("OPENAI_API_KEY", &c.LLM.APIKey)
	set("OPENAI_BASE_URL", &c.LLM.BaseURL)
	set("NEWSROOM_LLM_PROVIDER", &c.LLM.Provider)
	set("NEWSROOM_LLM_MODEL", &c.LLM.Model)
	set("CMS_URL", &c.CMS.Endpoint)
	set("CMS_USERNAME", &c.CMS.Username)
	set("CMS_PASSWORD", &c.CMS.Password)
	set("NEWSROOM_LOG_LEVEL", &c.LogLevel)
}

func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Writer.Validate(); err != nil {
		return err
	}
	for _, h := range c.Model.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden layer sizes must be positive, got %v", c.Model.Hidden)
		}
	}
	if c.Model.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.Model.LearningRate)
	}
	if c.Model.Momentum < 0 || c.Model.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1), got %g", c.Model.Momentum)
	}
	if c.Model.Epochs <= 0 || c.Model.BatchSize <= 0 {
		return errors.New("epochs and batch size must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// NewLogger builds the process logger on stderr.
func (c Config) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Options returns the CMS taxonomy names offered to the metadata selector.
func (c Config) Options() generator.Options {
	return generator.Options{
		Countries:    publisher.Names(c.CMS.Countries),
		Publications: publisher.Names(c.CMS.Publications),
		Industries:   publisher.Names(c.CMS.Industries),
	}
}
