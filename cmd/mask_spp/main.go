package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/rs/zerolog"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/config"
	"github.com/wbrown/codemask/pipeline"
	"github.com/wbrown/codemask/tokenizer"
)

type args struct {
	Config      string `arg:"--config" help:"path to a codemask.yaml file"`
	Input       string `arg:"--input" help:"JSONL path, ** glob or s3:// URI to read"`
	Output      string `arg:"--output" help:"JSONL path or s3:// URI to write"`
	Tokenizer   string `arg:"--tokenizer" help:"wordpiece, bpe or sentencepiece"`
	TokenizerID string `arg:"--tokenizer-id" help:"Hub id, URL or directory of the vocabulary"`
	Seed        *int64 `arg:"--seed" help:"seed for region selection, 0 for unseeded"`
	Sampling    string `arg:"--sampling" help:"retry or exhaustive"`
	Docstrings  string `arg:"--docstrings" help:"line or block"`
	NoProgress  bool   `arg:"--no-progress" help:"do not draw a progress bar"`
}

func (args) Description() string {
	return "Masks random statements of each record's code and tokenizes it."
}

func (a args) apply(cfg *config.Config) {
	if a.Input != "" {
		cfg.Pipeline.Input = a.Input
	}
	if a.Output != "" {
		cfg.Pipeline.Output = a.Output
	}
	if a.Tokenizer != "" {
		cfg.Tokenizer.Kind = a.Tokenizer
	}
	if a.TokenizerID != "" {
		cfg.Tokenizer.ID = a.TokenizerID
	}
	if a.Seed != nil {
		cfg.Mask.Seed = *a.Seed
	}
	if a.Sampling != "" {
		cfg.Mask.Sampling = a.Sampling
	}
	if a.Docstrings != "" {
		cfg.Mask.Docstrings = a.Docstrings
	}
	if a.NoProgress {
		cfg.Pipeline.Progress = false
	}
}

func loadTokenizer(ctx context.Context, cfg *config.Config,
	logger zerolog.Logger) (tokenizer.Tokenizer, error) {
	tokOpts, err := cfg.TokenizerOptions(cfg.Resolver(logger), &logger)
	if err != nil {
		return nil, err
	}
	return tokenizer.New(ctx, tokOpts)
}

func run(ctx context.Context, cfg *config.Config, tok tokenizer.Tokenizer,
	logger zerolog.Logger) (pipeline.RunStats, error) {
	maskerCfg, err := cfg.MaskerConfig()
	if err != nil {
		return pipeline.RunStats{}, err
	}
	masker, err := codemask.NewMasker(maskerCfg)
	if err != nil {
		return pipeline.RunStats{}, err
	}
	return pipeline.Run(ctx, pipeline.Options{
		Input:     cfg.Pipeline.Input,
		Output:    cfg.Pipeline.Output,
		Masker:    masker,
		Tokenizer: tok,
		Progress:  cfg.Pipeline.Progress,
		Logger:    &logger,
	})
}

func main() {
	var a args
	arg.MustParse(&a)
	fallback := codemask.GetLogger()

	cfg, err := config.Load(a.Config)
	if err != nil {
		fallback.Fatal().Err(err).Msg("cannot load configuration")
	}
	a.apply(cfg)
	logger, err := cfg.Logger()
	if err != nil {
		fallback.Fatal().Err(err).Msg("bad log configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	tok, err := loadTokenizer(ctx, cfg, logger)
	if err != nil {
		stop()
		logger.Fatal().Err(err).Msg("cannot load tokenizer")
	}
	if _, err := run(ctx, cfg, tok, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("masking failed")
	}
	fmt.Printf("→ Finished. Wrote %s\n", cfg.Pipeline.Output)
}
