// Package pipeline masks and tokenizes the `code` field of JSON lines
// records, writing one output record per usable input record.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/wbrown/codemask"
	"github.com/wbrown/codemask/storage"
	"github.com/wbrown/codemask/tokenizer"
	"github.com/wbrown/codemask/types"
)

const (
	DefaultInput  = "spp_train.jsonl"
	DefaultOutput = "masked_and_tokenized.jsonl"
	CodeField     = "code"
)

var (
	ErrMalformedRecord = errors.New("malformed JSON record")
	ErrBadCodeField    = errors.New("code field is not a string")
)

// Options configures a Run.
type Options struct {
	// Input is a local path, a `**` glob of local paths or an s3:// URI.
	Input string
	// Output is a local path or an s3:// URI; it is overwritten.
	Output    string
	Masker    *codemask.Masker
	Tokenizer tokenizer.Tokenizer
	// Progress draws a byte progress bar per input file on ProgressWriter,
	// stderr when unset.
	Progress       bool
	ProgressWriter io.Writer
	// S3 serves s3:// inputs and outputs; nil builds one from the shared AWS
	// configuration when needed.
	S3     storage.S3Client
	Logger *zerolog.Logger
}

// RunStats counts what a Run did.
type RunStats struct {
	Files   int
	Read    int64
	Written int64
	Skipped int64
	// Regions is the total number of masked regions written.
	Regions int64
	// Shortfall counts records masked with fewer regions than requested.
	Shortfall int64
}

// Processor masks and tokenizes single code strings.
type Processor struct {
	masker    *codemask.Masker
	tok       tokenizer.Tokenizer
	markerIDs []int
}

// NewProcessor
// Pairs `masker` with `tok`, checking that the masker's markers are single
// tokens of `tok`.
func NewProcessor(masker *codemask.Masker,
	tok tokenizer.Tokenizer) (*Processor, error) {
	if masker == nil || tok == nil {
		return nil, errors.New("processor needs a masker and a tokenizer")
	}
	start, end := masker.Markers()
	ids, err := tokenizer.MarkerIDs(tok, start, end)
	if err != nil {
		return nil, err
	}
	return &Processor{masker: masker, tok: tok, markerIDs: ids}, nil
}

// Process
// Masks `code` and tokenizes the masked text. `code` is expected to be
// stripped already.
func (p *Processor) Process(code string) (*types.OutputRecord,
	codemask.MaskResult, error) {
	res := p.masker.Mask(code)
	enc, err := p.tok.Tokenize(res.Text)
	if err != nil {
		return nil, res, errors.Wrap(err, "cannot tokenize masked code")
	}
	positions := tokenizer.MarkerPositions(enc.IDs, p.markerIDs...)
	return types.NewOutputRecord(code, res.Text, res.Regions, enc.Tokens,
		enc.IDs, positions), res, nil
}

type runner struct {
	opts   Options
	proc   *Processor
	client storage.S3Client
	enc    *types.Encoder
	logger zerolog.Logger
	stats  RunStats
}

// Run
// Reads every record of opts.Input in order, masks and tokenizes its
// `code`, and writes the results to opts.Output. Records whose `code` is
// missing, null or blank are skipped. A line that is not a JSON object or a
// `code` that is not a string stops the run.
func Run(ctx context.Context, opts Options) (RunStats, error) {
	if opts.Input == "" {
		opts.Input = DefaultInput
	}
	if opts.Output == "" {
		opts.Output = DefaultOutput
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	proc, err := NewProcessor(opts.Masker, opts.Tokenizer)
	if err != nil {
		return RunStats{}, err
	}
	paths, err := storage.Expand(opts.Input)
	if err != nil {
		return RunStats{}, err
	}
	client := opts.S3
	if client == nil && (storage.IsS3(opts.Input) ||
		storage.IsS3(opts.Output)) {
		if client, err = storage.NewS3Client(); err != nil {
			return RunStats{}, err
		}
	}

	out, err := storage.Create(ctx, client, opts.Output)
	if err != nil {
		return RunStats{}, err
	}
	buffered := bufio.NewWriterSize(out, 1<<20)
	r := &runner{
		opts:   opts,
		proc:   proc,
		client: client,
		enc:    types.NewEncoder(buffered),
		logger: logger,
	}
	for _, path := range paths {
		if err := r.runFile(ctx, path); err != nil {
			buffered.Flush()
			out.Discard()
			return r.stats, err
		}
		r.stats.Files++
	}
	if err := buffered.Flush(); err != nil {
		out.Discard()
		return r.stats, errors.Wrapf(err, "cannot write %s", opts.Output)
	}
	if err := out.Close(); err != nil {
		return r.stats, err
	}
	logger.Info().
		Int("files", r.stats.Files).
		Int64("read", r.stats.Read).
		Int64("written", r.stats.Written).
		Int64("skipped", r.stats.Skipped).
		Int64("regions", r.stats.Regions).
		Int64("shortfall", r.stats.Shortfall).
		Str("output", opts.Output).
		Msg("masking complete")
	return r.stats, nil
}

func (r *runner) progress(in *storage.Input) io.Reader {
	if !r.opts.Progress {
		return in
	}
	w := r.opts.ProgressWriter
	if w == nil {
		w = os.Stderr
	}
	bar := progressbar.NewOptions64(in.Size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(filepath.Base(in.Name)),
		progressbar.OptionOnCompletion(func() { io.WriteString(w, "\n") }),
	)
	return io.TeeReader(in, bar)
}

func (r *runner) runFile(ctx context.Context, path string) error {
	in, err := storage.Open(ctx, r.client, path)
	if err != nil {
		return err
	}
	defer in.Close()
	r.logger.Debug().Str("path", path).Int64("size", in.Size).
		Msg("reading input")

	reader := bufio.NewReaderSize(r.progress(in), 1<<20)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return errors.Wrapf(readErr, "%s: cannot read line %d", path,
				lineNo)
		}
		if len(bytes.TrimSpace(line)) > 0 {
			if err := r.record(line); err != nil {
				return errors.Wrapf(err, "%s: line %d", path, lineNo)
			}
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

func (r *runner) record(line []byte) error {
	rec := types.NewRecord()
	if err := json.Unmarshal(line, rec); err != nil {
		return errors.Wrapf(ErrMalformedRecord, "%v", err)
	}
	r.stats.Read++
	code, present, err := rec.String(CodeField)
	if err != nil {
		return errors.Wrapf(ErrBadCodeField, "%v", err)
	}
	code = codemask.Strip(code)
	// A null code counts as missing and is skipped, not fatal.
	if !present || code == "" {
		r.stats.Skipped++
		return nil
	}
	out, res, err := r.proc.Process(code)
	if err != nil {
		return err
	}
	if err := r.enc.Encode(out); err != nil {
		return errors.Wrapf(err, "cannot write %s", r.opts.Output)
	}
	r.stats.Written++
	r.stats.Regions += int64(len(res.Regions))
	if res.Shortfall() {
		r.stats.Shortfall++
		r.logger.Debug().
			Int("target", res.Target).
			Int("masked", len(res.Regions)).
			Str("code", abbreviate(code, 60)).
			Msg("region shortfall")
	}
	return nil
}

func abbreviate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", `\n`)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
