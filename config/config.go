// Package config loads codemask settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/dataset"
	"github.com/wbrown/codemask/pipeline"
	"github.com/wbrown/codemask/resources"
	"github.com/wbrown/codemask/tokenizer"
)

const (
	EnvPrefix      = "CODEMASK"
	DefaultName    = "codemask"
	DefaultLogFmt  = "console"
	DefaultLogLvl  = "info"
	DefaultTokKind = tokenizer.WordPiece
)

// Config stores all configuration of the application.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HF        HFConfig        `mapstructure:"hf"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Mask      MaskConfig      `mapstructure:"mask"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HFConfig holds Hugging Face Hub access settings. Token is also read from
// HF_TOKEN.
type HFConfig struct {
	Token  string `mapstructure:"token"`
	HubURL string `mapstructure:"hubUrl"`
}

type DatasetConfig struct {
	Name     string `mapstructure:"name"`
	Config   string `mapstructure:"config"`
	Split    string `mapstructure:"split"`
	Source   string `mapstructure:"source"`
	Output   string `mapstructure:"output"`
	RowsURL  string `mapstructure:"rowsUrl"`
	PageSize int    `mapstructure:"pageSize"`
	CacheDir string `mapstructure:"cacheDir"`
}

// MaskConfig holds the masker tunables. A zero Seed uses the process-wide
// random generator.
type MaskConfig struct {
	Seed         int64    `mapstructure:"seed"`
	Sampling     string   `mapstructure:"sampling"`
	Docstrings   string   `mapstructure:"docstrings"`
	MinRegions   int      `mapstructure:"minRegions"`
	MaxRegions   int      `mapstructure:"maxRegions"`
	MaxAttempts  int      `mapstructure:"maxAttempts"`
	StartMarker  string   `mapstructure:"startMarker"`
	EndMarker    string   `mapstructure:"endMarker"`
	SkipPrefixes []string `mapstructure:"skipPrefixes"`
}

type TokenizerConfig struct {
	Kind      string `mapstructure:"kind"`
	ID        string `mapstructure:"id"`
	CacheDir  string `mapstructure:"cacheDir"`
	CacheSize int    `mapstructure:"cacheSize"`
}

type PipelineConfig struct {
	Input    string `mapstructure:"input"`
	Output   string `mapstructure:"output"`
	Progress bool   `mapstructure:"progress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLvl)
	v.SetDefault("log.format", DefaultLogFmt)

	v.SetDefault("hf.token", "")
	v.SetDefault("hf.hubUrl", resources.DefaultHubURL)

	v.SetDefault("dataset.name", dataset.DefaultDataset)
	v.SetDefault("dataset.config", "")
	v.SetDefault("dataset.split", dataset.DefaultSplit)
	v.SetDefault("dataset.source", string(dataset.SourceParquet))
	v.SetDefault("dataset.output", dataset.DefaultOutput)
	v.SetDefault("dataset.rowsUrl", dataset.DefaultRowsURL)
	v.SetDefault("dataset.pageSize", dataset.DefaultPageSize)
	v.SetDefault("dataset.cacheDir", "")

	v.SetDefault("mask.seed", 0)
	v.SetDefault("mask.sampling", codemask.SamplingRetry.String())
	v.SetDefault("mask.docstrings", codemask.DocstringLines.String())
	v.SetDefault("mask.minRegions", codemask.DefaultMinRegions)
	v.SetDefault("mask.maxRegions", codemask.DefaultMaxRegions)
	v.SetDefault("mask.maxAttempts", codemask.DefaultMaxAttempts)
	v.SetDefault("mask.startMarker", codemask.DefaultStartMarker)
	v.SetDefault("mask.endMarker", codemask.DefaultEndMarker)
	v.SetDefault("mask.skipPrefixes", codemask.DefaultSkipPrefixes)

	v.SetDefault("tokenizer.kind", string(DefaultTokKind))
	v.SetDefault("tokenizer.id", "")
	v.SetDefault("tokenizer.cacheDir", "")
	v.SetDefault("tokenizer.cacheSize", tokenizer.DefaultCacheSize)

	v.SetDefault("pipeline.input", pipeline.DefaultInput)
	v.SetDefault("pipeline.output", pipeline.DefaultOutput)
	v.SetDefault("pipeline.progress", true)
}

// Load
// Reads configuration from `configPath`, or from `codemask.yaml` in the
// working directory when `configPath` is empty and such a file exists.
// Environment variables named CODEMASK_<SECTION>_<KEY> override both, and
// HF_TOKEN sets the Hub token.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultName)
		v.SetConfigType("yaml")
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("hf.token", EnvPrefix+"_HF_TOKEN",
		"HF_TOKEN"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	return cfg, nil
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() (zerolog.Logger, error) {
	return codemask.NewLogger(c.Log.Level, c.Log.Format)
}

// Resolver returns a Hub resolver carrying the configured token.
func (c *Config) Resolver(logger zerolog.Logger) *resources.Resolver {
	resolver := resources.NewResolver(c.HF.Token, logger)
	if c.HF.HubURL != "" {
		resolver.HubURL = c.HF.HubURL
	}
	return resolver
}

// MaskerConfig converts the mask section into a codemask.MaskerConfig.
func (c *Config) MaskerConfig() (codemask.MaskerConfig, error) {
	sampling, err := codemask.ParseSampling(c.Mask.Sampling)
	if err != nil {
		return codemask.MaskerConfig{}, err
	}
	docstrings, err := codemask.ParseDocstringMode(c.Mask.Docstrings)
	if err != nil {
		return codemask.MaskerConfig{}, err
	}
	cfg := codemask.NewMaskerConfig()
	cfg.MinRegions = c.Mask.MinRegions
	cfg.MaxRegions = c.Mask.MaxRegions
	cfg.MaxAttempts = c.Mask.MaxAttempts
	cfg.StartMarker = c.Mask.StartMarker
	cfg.EndMarker = c.Mask.EndMarker
	cfg.SkipPrefixes = append([]string(nil), c.Mask.SkipPrefixes...)
	cfg.Sampling = sampling
	cfg.Docstrings = docstrings
	if c.Mask.Seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(c.Mask.Seed))
	}
	return cfg, nil
}

// TokenizerOptions
// Converts the tokenizer section into tokenizer.Options, registering the
// mask markers as specials.
func (c *Config) TokenizerOptions(resolver *resources.Resolver,
	logger *zerolog.Logger) (tokenizer.Options, error) {
	kind, err := tokenizer.ParseKind(c.Tokenizer.Kind)
	if err != nil {
		return tokenizer.Options{}, err
	}
	return tokenizer.Options{
		Kind:      kind,
		ID:        c.Tokenizer.ID,
		CacheDir:  c.Tokenizer.CacheDir,
		Specials:  []string{c.Mask.StartMarker, c.Mask.EndMarker},
		CacheSize: c.Tokenizer.CacheSize,
		Resolver:  resolver,
		Logger:    logger,
	}, nil
}

// FetchOptions converts the dataset section into dataset.FetchOptions.
func (c *Config) FetchOptions(resolver *resources.Resolver,
	logger *zerolog.Logger) (dataset.FetchOptions, error) {
	source, err := dataset.ParseSource(c.Dataset.Source)
	if err != nil {
		return dataset.FetchOptions{}, err
	}
	return dataset.FetchOptions{
		Dataset:  c.Dataset.Name,
		Config:   c.Dataset.Config,
		Split:    c.Dataset.Split,
		Source:   source,
		CacheDir: c.Dataset.CacheDir,
		RowsURL:  c.Dataset.RowsURL,
		PageSize: c.Dataset.PageSize,
		Resolver: resolver,
		Logger:   logger,
	}, nil
}
