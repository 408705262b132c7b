package dataset

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/wbrown/codemask/types"
)

type splitsResponse struct {
	Splits []struct {
		Dataset string `json:"dataset"`
		Config  string `json:"config"`
		Split   string `json:"split"`
	} `json:"splits"`
}

type rowsResponse struct {
	Features []struct {
		FeatureIdx int    `json:"feature_idx"`
		Name       string `json:"name"`
	} `json:"features"`
	Rows []struct {
		RowIdx int64           `json:"row_idx"`
		Row    json.RawMessage `json:"row"`
	} `json:"rows"`
	NumRowsTotal int64 `json:"num_rows_total"`
}

func (f *fetcher) rowsURL(endpoint string, query url.Values) string {
	return strings.TrimRight(f.opts.RowsURL, "/") + "/" + endpoint + "?" +
		query.Encode()
}

// resolveConfig finds the configuration holding the split through the
// datasets-server splits endpoint.
func (f *fetcher) resolveConfig(ctx context.Context) (string, error) {
	if f.opts.Config != "" {
		return f.opts.Config, nil
	}
	var splits splitsResponse
	err := f.opts.Resolver.GetJSON(ctx, f.rowsURL("splits",
		url.Values{"dataset": {f.opts.Dataset}}), &splits)
	if err != nil {
		return "", err
	}
	candidates := make([]string, 0, len(splits.Splits))
	for _, split := range splits.Splits {
		if split.Split == f.opts.Split {
			candidates = append(candidates, split.Config)
		}
	}
	if len(candidates) == 0 {
		return "", errors.Wrapf(ErrNoSplit, "%s", f.opts.Split)
	}
	return pickConfig(candidates), nil
}

func (f *fetcher) fetchRows(ctx context.Context) (FetchStats, error) {
	config, err := f.resolveConfig(ctx)
	if err != nil {
		return FetchStats{}, err
	}
	stats := FetchStats{Config: config}

	var offset int64
	for {
		var page rowsResponse
		err := f.opts.Resolver.GetJSON(ctx, f.rowsURL("rows", url.Values{
			"dataset": {f.opts.Dataset},
			"config":  {config},
			"split":   {f.opts.Split},
			"offset":  {strconv.FormatInt(offset, 10)},
			"length":  {strconv.Itoa(f.opts.PageSize)},
		}), &page)
		if err != nil {
			return stats, errors.Wrapf(err, "rows page at offset %d", offset)
		}
		if len(page.Rows) == 0 {
			if offset < page.NumRowsTotal {
				return stats, errors.Wrapf(ErrTruncatedSource,
					"got %d of %d rows", offset, page.NumRowsTotal)
			}
			return stats, nil
		}
		names := make([]string, len(page.Features))
		for idx, feature := range page.Features {
			names[idx] = feature.Name
		}
		for _, row := range page.Rows {
			rec, recErr := orderedRow(row.Row, names)
			if recErr != nil {
				return stats, errors.Wrapf(recErr, "row %d", row.RowIdx)
			}
			if err := f.out.write(rec); err != nil {
				return stats, err
			}
		}
		offset += int64(len(page.Rows))
		if offset%int64(f.opts.PageSize*50) == 0 {
			f.logger.Info().Msgf("Fetched %d / %d rows", offset,
				page.NumRowsTotal)
		}
		if offset >= page.NumRowsTotal {
			return stats, nil
		}
	}
}

// orderedRow decodes a row object and orders its fields by the feature
// list. Fields missing from the feature list follow in row order. Values are
// re-encoded so rows match what the Parquet source writes.
func orderedRow(raw json.RawMessage, names []string) (*types.Record, error) {
	row := types.NewRecord()
	if err := json.Unmarshal(raw, row); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return row, row.Reencode()
	}
	ordered := types.NewRecord()
	for _, name := range names {
		if value, ok := row.Raw(name); ok {
			ordered.SetRaw(name, value)
		}
	}
	for _, key := range row.Keys() {
		if _, ok := ordered.Raw(key); !ok {
			value, _ := row.Raw(key)
			ordered.SetRaw(key, value)
		}
	}
	return ordered, ordered.Reencode()
}
