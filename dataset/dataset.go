// Package dataset downloads a split of a Hugging Face Hub dataset and writes
// it as JSON lines.
package dataset

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/wbrown/codemask/resources"
	"github.com/wbrown/codemask/types"
)

// Source names the Hub API a split is read from.
type Source string

const (
	// SourceParquet downloads the split's Parquet export.
	SourceParquet Source = "parquet"
	// SourceRows pages through the datasets-server rows endpoint.
	SourceRows Source = "rows"
)

const (
	DefaultDataset  = "wuyetao/spp"
	DefaultSplit    = "train"
	DefaultOutput   = "spp_train.jsonl"
	DefaultRowsURL  = "https://datasets-server.huggingface.co"
	DefaultPageSize = 100
	preferredConfig = "default"
)

var (
	ErrNoSplit         = errors.New("split not found")
	ErrUnknownSource   = errors.New("unknown dataset source")
	ErrTruncatedSource = errors.New("source returned fewer rows than expected")
)

// ParseSource maps a configuration string to a Source.
func ParseSource(s string) (Source, error) {
	switch source := Source(strings.ToLower(s)); source {
	case "":
		return SourceParquet, nil
	case SourceParquet, SourceRows:
		return source, nil
	}
	return "", errors.Wrapf(ErrUnknownSource, "%q", s)
}

// FetchOptions describes the split to fetch and how.
type FetchOptions struct {
	Dataset string
	// Config is the dataset configuration; empty picks the one holding
	// Split, preferring "default".
	Config string
	Split  string
	Source Source
	// CacheDir holds downloaded Parquet shards. Empty means the user cache
	// directory.
	CacheDir string
	RowsURL  string
	PageSize int
	// Resolver performs the HTTP requests; its Auth is sent as a bearer
	// token and its HubURL is the Hub base.
	Resolver *resources.Resolver
	Logger   *zerolog.Logger
}

// NewFetchOptions returns options for the default dataset split.
func NewFetchOptions() FetchOptions {
	return FetchOptions{
		Dataset:  DefaultDataset,
		Split:    DefaultSplit,
		Source:   SourceParquet,
		RowsURL:  DefaultRowsURL,
		PageSize: DefaultPageSize,
	}
}

// FetchStats summarizes a fetch.
type FetchStats struct {
	Config string
	Rows   int64
	Shards int
}

// rowWriter writes records as JSON lines.
type rowWriter struct {
	enc  *types.Encoder
	rows int64
}

func (w *rowWriter) write(rec *types.Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return errors.Wrap(err, "cannot write record")
	}
	w.rows++
	return nil
}

// Fetch
// Retrieves the split described by `opts` and writes one JSON object per row
// to `w`, keeping the dataset's column order.
func Fetch(ctx context.Context, opts FetchOptions, w io.Writer) (FetchStats,
	error) {
	if opts.Dataset == "" {
		return FetchStats{}, errors.New("no dataset given")
	}
	if opts.Split == "" {
		opts.Split = DefaultSplit
	}
	if opts.RowsURL == "" {
		opts.RowsURL = DefaultRowsURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Resolver == nil {
		opts.Resolver = resources.NewResolver("", logger)
	}
	source, err := ParseSource(string(opts.Source))
	if err != nil {
		return FetchStats{}, err
	}

	out := &rowWriter{enc: types.NewEncoder(w)}
	f := &fetcher{opts: opts, logger: logger, out: out}
	var stats FetchStats
	switch source {
	case SourceRows:
		stats, err = f.fetchRows(ctx)
	default:
		stats, err = f.fetchParquet(ctx)
	}
	stats.Rows = out.rows
	if err != nil {
		return stats, errors.Wrapf(err, "cannot fetch %s/%s",
			opts.Dataset, opts.Split)
	}
	logger.Info().
		Str("dataset", opts.Dataset).
		Str("config", stats.Config).
		Str("split", opts.Split).
		Int64("rows", stats.Rows).
		Msg("fetched dataset split")
	return stats, nil
}

type fetcher struct {
	opts   FetchOptions
	logger zerolog.Logger
	out    *rowWriter
}

// pickConfig chooses a configuration among those holding the split.
func pickConfig(candidates []string) string {
	sort.Strings(candidates)
	for _, config := range candidates {
		if config == preferredConfig {
			return config
		}
	}
	return candidates[0]
}

func (f *fetcher) apiURL(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	return f.opts.Resolver.BaseURL() + "/api/datasets/" + f.opts.Dataset +
		"/" + strings.Join(escaped, "/")
}
