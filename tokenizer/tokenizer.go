// Package tokenizer puts subword tokenizers behind one narrow interface and
// registers the mask markers with each of them as atomic tokens.
package tokenizer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/wbrown/codemask/resources"
)

// Encoding is the tokenized form of a text: parallel token strings and ids.
type Encoding struct {
	Tokens []string
	IDs    []int
}

func newEncoding(capacity int) *Encoding {
	return &Encoding{
		Tokens: make([]string, 0, capacity),
		IDs:    make([]int, 0, capacity),
	}
}

func (enc *Encoding) append(token string, id int) {
	enc.Tokens = append(enc.Tokens, token)
	enc.IDs = append(enc.IDs, id)
}

// Tokenizer turns text into subword tokens. Implementations encode without
// adding sequence-level special tokens such as [CLS] or <|endoftext|>.
type Tokenizer interface {
	Tokenize(text string) (*Encoding, error)
	TokenToID(token string) (int, bool)
}

type Kind string

const (
	WordPiece     Kind = "wordpiece"
	BPE           Kind = "bpe"
	SentencePiece Kind = "sentencepiece"
)

var ErrUnknownTokenizer = errors.New("unknown tokenizer kind")

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch kind := Kind(strings.ToLower(s)); kind {
	case "":
		return WordPiece, nil
	case WordPiece, BPE, SentencePiece:
		return kind, nil
	}
	return "", errors.Wrapf(ErrUnknownTokenizer, "%q", s)
}

// DefaultID returns the vocabulary a Kind loads when none is configured.
func DefaultID(kind Kind) string {
	switch kind {
	case BPE:
		return "gpt2"
	case SentencePiece:
		return "t5-small"
	}
	return "bert-base-uncased"
}

// Entries returns the vocabulary files a Kind is built from.
func Entries(kind Kind) resources.ResourceEntryDefs {
	switch kind {
	case BPE:
		return resources.BPEEntries()
	case SentencePiece:
		return resources.SentencePieceEntries()
	}
	return resources.WordPieceEntries()
}

// Options selects and configures a tokenizer backend.
type Options struct {
	Kind Kind
	// ID is a Hub repository id, an HTTP base URL or a local directory.
	ID string
	// CacheDir holds downloaded vocabulary files. Empty means the user
	// cache directory.
	CacheDir string
	// Specials are registered as atomic tokens, typically the markers.
	Specials []string
	// CacheSize bounds the segment cache of splicing backends.
	CacheSize int
	// Resolver fetches vocabulary files; nil means an anonymous Hub
	// resolver.
	Resolver *resources.Resolver
	Logger   *zerolog.Logger
}

const DefaultCacheSize = 8192

// New
// Builds the tokenizer described by `opts` and registers its specials.
func New(ctx context.Context, opts Options) (Tokenizer, error) {
	kind, err := ParseKind(string(opts.Kind))
	if err != nil {
		return nil, err
	}
	if opts.ID == "" {
		opts.ID = DefaultID(kind)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Resolver == nil {
		opts.Resolver = resources.NewResolver("", logger)
	}
	logger.Info().Str("kind", string(kind)).Str("id", opts.ID).
		Msg("loading tokenizer")

	switch kind {
	case BPE:
		return NewBPE(opts.ID, opts.Specials, opts.CacheSize)
	case SentencePiece:
		return newSentencePiece(ctx, opts)
	default:
		return newWordPiece(ctx, opts)
	}
}

func resolve(ctx context.Context, opts Options,
	defs resources.ResourceEntryDefs) (resources.Resources, error) {
	dir, err := resources.CacheDir(opts.CacheDir, opts.ID)
	if err != nil {
		return nil, err
	}
	rsrcs, err := opts.Resolver.ResolveResources(ctx, opts.ID, dir, defs)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve tokenizer `%s`",
			opts.ID)
	}
	return rsrcs, nil
}

// MarkerIDs
// Looks up the id of each marker and checks that it encodes to exactly that
// one token.
func MarkerIDs(tok Tokenizer, markers ...string) ([]int, error) {
	ids := make([]int, 0, len(markers))
	for _, marker := range markers {
		id, ok := tok.TokenToID(marker)
		if !ok {
			return nil, errors.Errorf("marker %q is not in the vocabulary",
				marker)
		}
		enc, err := tok.Tokenize(marker)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot tokenize marker %q", marker)
		}
		if len(enc.IDs) != 1 || enc.IDs[0] != id {
			return nil, errors.Errorf("marker %q is not atomic: %v",
				marker, enc.Tokens)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MarkerPositions
// Returns, in order, the indices of `ids` holding any of `markerIDs`.
func MarkerPositions(ids []int, markerIDs ...int) []int {
	positions := make([]int, 0, 2)
	for idx, id := range ids {
		for _, markerID := range markerIDs {
			if id == markerID {
				positions = append(positions, idx)
				break
			}
		}
	}
	return positions
}
