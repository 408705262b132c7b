package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/config"
	"github.com/wbrown/codemask/dataset"
	"github.com/wbrown/codemask/storage"
)

type args struct {
	Config        string `arg:"--config" help:"path to a codemask.yaml file"`
	Dataset       string `arg:"--dataset" help:"Hub dataset id"`
	DatasetConfig string `arg:"--dataset-config" help:"dataset configuration, picked automatically when empty"`
	Split         string `arg:"--split" help:"split to download"`
	Output        string `arg:"--output" help:"JSONL path or s3:// URI to write"`
	Source        string `arg:"--source" help:"parquet or rows"`
}

func (args) Description() string {
	return "Downloads a Hugging Face dataset split as JSON lines."
}

func (a args) apply(cfg *config.Config) {
	if a.Dataset != "" {
		cfg.Dataset.Name = a.Dataset
	}
	if a.DatasetConfig != "" {
		cfg.Dataset.Config = a.DatasetConfig
	}
	if a.Split != "" {
		cfg.Dataset.Split = a.Split
	}
	if a.Output != "" {
		cfg.Dataset.Output = a.Output
	}
	if a.Source != "" {
		cfg.Dataset.Source = a.Source
	}
}

func run(ctx context.Context, cfg *config.Config,
	logger zerolog.Logger) error {
	opts, err := cfg.FetchOptions(cfg.Resolver(logger), &logger)
	if err != nil {
		return err
	}
	var client storage.S3Client
	if storage.IsS3(cfg.Dataset.Output) {
		if client, err = storage.NewS3Client(); err != nil {
			return err
		}
	}
	out, err := storage.Create(ctx, client, cfg.Dataset.Output)
	if err != nil {
		return err
	}
	buffered := bufio.NewWriterSize(out, 1<<20)
	if _, err := dataset.Fetch(ctx, opts, buffered); err != nil {
		out.Discard()
		return err
	}
	if err := buffered.Flush(); err != nil {
		out.Discard()
		return errors.Wrapf(err, "cannot write %s", cfg.Dataset.Output)
	}
	return out.Close()
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
	if err := run(ctx, cfg, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("download failed")
	}
	fmt.Printf("Dataset saved as %s ✅\n", cfg.Dataset.Output)
}
