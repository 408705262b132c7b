package tokenizer

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"github.com/wbrown/codemask/resources"
)

// WordPieceTokenizer is a BERT-style tokenizer with added special tokens.
type WordPieceTokenizer struct {
	t *tk.Tokenizer
}

// tokenizerConfig is the subset of tokenizer_config.json read for vocab.txt
// vocabularies.
type tokenizerConfig struct {
	DoLowerCase *bool `json:"do_lower_case"`
}

func newWordPiece(ctx context.Context,
	opts Options) (*WordPieceTokenizer, error) {
	rsrcs, err := resolve(ctx, opts, Entries(WordPiece))
	if err != nil {
		return nil, err
	}
	defer rsrcs.Cleanup()
	return NewWordPieceFromResources(rsrcs, opts.Specials)
}

// NewWordPieceFromResources
// Builds the tokenizer from `tokenizer.json` when present, else from
// `vocab.txt` with the BERT normalizer and pre-tokenizer, and adds
// `specials` as atomic tokens.
func NewWordPieceFromResources(rsrcs resources.Resources,
	specials []string) (*WordPieceTokenizer, error) {
	var t *tk.Tokenizer
	if entry, ok := rsrcs["tokenizer.json"]; ok {
		loaded, err := pretrained.FromFile(entry.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot load %s", entry.Path)
		}
		t = loaded
	} else if entry, ok := rsrcs["vocab.txt"]; ok {
		lowerCase := true
		if cfgEntry, ok := rsrcs["tokenizer_config.json"]; ok {
			var cfg tokenizerConfig
			if err := json.Unmarshal(cfgEntry.Data, &cfg); err != nil {
				return nil, errors.Wrap(err,
					"cannot unmarshal `tokenizer_config.json`")
			}
			if cfg.DoLowerCase != nil {
				lowerCase = *cfg.DoLowerCase
			}
		}
		model, err := wordpiece.NewWordPieceFromFile(entry.Path, "[UNK]")
		if err != nil {
			return nil, errors.Wrapf(err, "cannot load %s", entry.Path)
		}
		t = tk.NewTokenizer(model)
		t.WithNormalizer(normalizer.NewBertNormalizer(true, true, lowerCase,
			lowerCase))
		t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	} else {
		return nil, errors.New("no `tokenizer.json` or `vocab.txt` resolved")
	}

	added := make([]tk.AddedToken, 0, len(specials))
	for _, special := range specials {
		added = append(added, tk.NewAddedToken(special, true))
	}
	t.AddSpecialTokens(added)
	return &WordPieceTokenizer{t: t}, nil
}

// Tokenize encodes `text` without [CLS]/[SEP].
func (w *WordPieceTokenizer) Tokenize(text string) (*Encoding, error) {
	encoded, err := w.t.EncodeSingle(text, false)
	if err != nil {
		return nil, errors.Wrap(err, "wordpiece encode")
	}
	ids := encoded.GetIds()
	tokens := encoded.GetTokens()
	enc := newEncoding(len(ids))
	for idx, id := range ids {
		enc.append(tokens[idx], id)
	}
	return enc, nil
}

func (w *WordPieceTokenizer) TokenToID(token string) (int, bool) {
	return w.t.TokenToId(token)
}
