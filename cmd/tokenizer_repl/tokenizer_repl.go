package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/config"
	"github.com/wbrown/codemask/pipeline"
	"github.com/wbrown/codemask/tokenizer"
)

// A REPL that masks and tokenizes the code typed at the prompt. A literal
// `\n` in the input stands for a line break.

func main() {
	args := struct {
		Config      string `arg:"--config" help:"path to a codemask.yaml file"`
		Tokenizer   string `arg:"--tokenizer" help:"wordpiece, bpe or sentencepiece"`
		TokenizerID string `arg:"--tokenizer-id" help:"Hub id, URL or directory of the vocabulary"`
		Seed        *int64 `arg:"--seed" help:"seed for region selection"`
	}{}
	arg.MustParse(&args)
	fallback := codemask.GetLogger()

	cfg, err := config.Load(args.Config)
	if err != nil {
		fallback.Fatal().Err(err).Msg("cannot load configuration")
	}
	if args.Tokenizer != "" {
		cfg.Tokenizer.Kind = args.Tokenizer
	}
	if args.TokenizerID != "" {
		cfg.Tokenizer.ID = args.TokenizerID
	}
	if args.Seed != nil {
		cfg.Mask.Seed = *args.Seed
	}
	logger, err := cfg.Logger()
	if err != nil {
		fallback.Fatal().Err(err).Msg("bad log configuration")
	}

	maskerCfg, err := cfg.MaskerConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("bad mask configuration")
	}
	masker, err := codemask.NewMasker(maskerCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad mask configuration")
	}
	tokOpts, err := cfg.TokenizerOptions(cfg.Resolver(logger), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad tokenizer configuration")
	}
	tok, err := tokenizer.New(context.Background(), tokOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load tokenizer")
	}
	proc, err := pipeline.NewProcessor(masker, tok)
	if err != nil {
		logger.Fatal().Err(err).Msg("tokenizer cannot hold the markers")
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(">>> ")
		input, err := reader.ReadString('\n')
		if err == io.EOF && input == "" {
			fmt.Println()
			return
		} else if err != nil && err != io.EOF {
			logger.Fatal().Err(err).Msg("cannot read input")
		}
		input = strings.ReplaceAll(strings.TrimRight(input, "\r\n"),
			"\\n", "\n")
		code := codemask.Strip(input)
		if code == "" {
			continue
		}

		rec, _, procErr := proc.Process(code)
		if procErr != nil {
			logger.Error().Err(procErr).Msg("cannot process input")
			continue
		}
		fmt.Println(rec.StatementWithMask)
		fmt.Printf("masked: %q\n", rec.MaskInfo)
		fmt.Printf("%v\n", rec.TokenIDs)
		for _, token := range rec.Tokens {
			fmt.Printf("|%s", token)
		}
		fmt.Printf("\nmarkers at %v\n", rec.MaskTokenPositions)
	}
}
