package main

import (
	"context"
	"os"
	"os/signal"
	"sort"

	"github.com/alexflint/go-arg"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/config"
	"github.com/wbrown/codemask/tokenizer"
)

func main() {
	args := struct {
		Model  string `arg:"--model,required" help:"model URL, path, or huggingface id to fetch"`
		Dest   string `arg:"--dest" help:"where to download the vocabulary to"`
		Kind   string `arg:"--kind" help:"wordpiece, bpe or sentencepiece"`
		Config string `arg:"--config" help:"path to a codemask.yaml file"`
	}{
		Dest: "./",
		Kind: string(tokenizer.WordPiece),
	}
	arg.MustParse(&args)
	fallback := codemask.GetLogger()

	cfg, err := config.Load(args.Config)
	if err != nil {
		fallback.Fatal().Err(err).Msg("cannot load configuration")
	}
	logger, err := cfg.Logger()
	if err != nil {
		fallback.Fatal().Err(err).Msg("bad log configuration")
	}
	kind, err := tokenizer.ParseKind(args.Kind)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad tokenizer kind")
	}
	if err := os.MkdirAll(args.Dest, 0755); err != nil {
		logger.Fatal().Err(err).Msg("cannot create destination")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rsrcs, rsrcErr := cfg.Resolver(logger).ResolveResources(ctx, args.Model,
		args.Dest, tokenizer.Entries(kind))
	if rsrcErr != nil {
		stop()
		logger.Fatal().Err(rsrcErr).Msg("error downloading model resources")
	}
	defer rsrcs.Cleanup()
	names := make([]string, 0, len(rsrcs))
	for name := range rsrcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logger.Info().Str("path", rsrcs[name].Path).
			Int("bytes", len(rsrcs[name].Data)).Msg("resolved")
	}
}
