package dataset

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/wbrown/codemask/resources"
	"github.com/wbrown/codemask/types"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/reader"
)

// listShards returns the configuration and Parquet shard URLs of the split.
func (f *fetcher) listShards(ctx context.Context) (string, []string, error) {
	resolver := f.opts.Resolver
	if f.opts.Config != "" {
		var shards []string
		err := resolver.GetJSON(ctx,
			f.apiURL("parquet", f.opts.Config, f.opts.Split), &shards)
		if resources.IsNotFound(err) {
			return "", nil, errors.Wrapf(ErrNoSplit, "%s/%s", f.opts.Config,
				f.opts.Split)
		}
		return f.opts.Config, shards, err
	}

	// config -> split -> shard URLs
	var index map[string]map[string][]string
	if err := resolver.GetJSON(ctx, f.apiURL("parquet"), &index); err != nil {
		return "", nil, err
	}
	candidates := make([]string, 0, len(index))
	for config, splits := range index {
		if _, ok := splits[f.opts.Split]; ok {
			candidates = append(candidates, config)
		}
	}
	if len(candidates) == 0 {
		return "", nil, errors.Wrapf(ErrNoSplit, "%s", f.opts.Split)
	}
	config := pickConfig(candidates)
	return config, index[config][f.opts.Split], nil
}

func (f *fetcher) fetchParquet(ctx context.Context) (FetchStats, error) {
	config, shards, err := f.listShards(ctx)
	if err != nil {
		return FetchStats{}, err
	}
	stats := FetchStats{Config: config, Shards: len(shards)}
	if len(shards) == 0 {
		return stats, errors.Wrapf(ErrNoSplit, "no parquet shards for %s/%s",
			config, f.opts.Split)
	}
	sort.Strings(shards)
	cacheDir, err := resources.CacheDir(f.opts.CacheDir,
		"datasets/"+f.opts.Dataset)
	if err != nil {
		return stats, err
	}

	for idx, shardURL := range shards {
		cut := strings.LastIndex(shardURL, "/")
		if cut < 0 {
			return stats, errors.Errorf("bad shard URL %q", shardURL)
		}
		base, name := shardURL[:cut], shardURL[cut+1:]
		target := filepath.Join(cacheDir,
			config+"-"+f.opts.Split+"-"+name)
		f.logger.Info().Msgf("Resolving shard %d/%d %s", idx+1, len(shards),
			shardURL)
		entry, dlErr := f.opts.Resolver.Download(ctx, base, name, target)
		if dlErr != nil {
			return stats, dlErr
		}
		_, readErr := readParquet(entry.Data, f.out.write, f.logger)
		entry.Close()
		if readErr != nil {
			return stats, errors.Wrapf(readErr, "cannot read %s", name)
		}
	}
	return stats, nil
}

type column struct {
	name   string
	values []interface{}
}

// readParquet
// Decodes every flat column of the Parquet file in `data` and emits one
// record per row with the columns in schema order. Nested columns are
// skipped with a warning.
func readParquet(data []byte, emit func(*types.Record) error,
	logger zerolog.Logger) (int64, error) {
	pr, err := reader.NewParquetColumnReader(
		buffer.NewBufferFileFromBytesNoAlloc(data), 1)
	if err != nil {
		return 0, errors.Wrap(err, "cannot open parquet reader")
	}
	defer pr.ReadStop()

	numRows := pr.GetNumRows()
	sh := pr.SchemaHandler
	columns := make([]column, 0, len(sh.ValueColumns))
	for idx, inPath := range sh.ValueColumns {
		exPath := strings.Split(sh.InPathToExPath[inPath],
			common.PAR_GO_PATH_DELIMITER)
		name := exPath[len(exPath)-1]
		if len(exPath) != 2 {
			logger.Warn().Msgf("skipping nested column %s",
				strings.Join(exPath[1:], "."))
			continue
		}
		var values []interface{}
		if numRows > 0 {
			values, _, _, err = pr.ReadColumnByIndex(int64(idx), numRows)
			if err != nil {
				return 0, errors.Wrapf(err, "cannot read column %s", name)
			}
		}
		if int64(len(values)) != numRows {
			return 0, errors.Wrapf(ErrTruncatedSource,
				"column %s has %d values for %d rows", name, len(values),
				numRows)
		}
		columns = append(columns, column{name: name, values: values})
	}

	for row := int64(0); row < numRows; row++ {
		rec := types.NewRecord()
		for _, col := range columns {
			if err := rec.Set(col.name, col.values[row]); err != nil {
				return row, err
			}
		}
		if err := emit(rec); err != nil {
			return row, err
		}
	}
	return numRows, nil
}
