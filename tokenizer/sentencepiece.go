package tokenizer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

type sentencePieceBackend struct {
	encode func(text string) []int
	pieces []string
	ids    map[string]int
}

func newSentencePiece(ctx context.Context, opts Options) (*Splicing, error) {
	rsrcs, err := resolve(ctx, opts, Entries(SentencePiece))
	if err != nil {
		return nil, err
	}
	defer rsrcs.Cleanup()

	entry, ok := rsrcs["spiece.model"]
	if !ok {
		entry = rsrcs["tokenizer.model"]
	}
	return NewSentencePieceFromModel(entry.Path, entry.Data, opts.Specials,
		opts.CacheSize)
}

// NewSentencePieceFromModel
// Builds a SentencePiece tokenizer from the model file at `path`, whose
// serialized protobuf is `data`.
func NewSentencePieceFromModel(path string, data []byte, specials []string,
	cacheSize int) (*Splicing, error) {
	model := &sentencepiece.ModelProto{}
	if err := proto.Unmarshal(data, model); err != nil {
		return nil, errors.Wrapf(err, "cannot parse sentencepiece model %s",
			path)
	}
	sp, err := sentencepiece.NewSentencepieceFromFile(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load sentencepiece model %s",
			path)
	}
	backend := &sentencePieceBackend{
		encode: func(text string) []int {
			pieceIDs := sp.TokenizeToIDs(text)
			ids := make([]int, len(pieceIDs))
			for idx, id := range pieceIDs {
				ids[idx] = int(id)
			}
			return ids
		},
		pieces: make([]string, 0, len(model.GetPieces())),
		ids:    make(map[string]int, len(model.GetPieces())),
	}
	for idx, piece := range model.GetPieces() {
		backend.pieces = append(backend.pieces, piece.GetPiece())
		if _, dup := backend.ids[piece.GetPiece()]; !dup {
			backend.ids[piece.GetPiece()] = idx
		}
	}
	return newSplicing(backend, specials, cacheSize)
}

func (b *sentencePieceBackend) encodeSegment(text string) (*Encoding, error) {
	ids := b.encode(text)
	enc := newEncoding(len(ids))
	for _, idx := range ids {
		if idx < 0 || idx >= len(b.pieces) {
			return nil, errors.Errorf("sentencepiece id %d out of range", idx)
		}
		enc.append(b.pieces[idx], idx)
	}
	return enc, nil
}

func (b *sentencePieceBackend) lookup(token string) (int, bool) {
	id, ok := b.ids[token]
	return id, ok
}

func (b *sentencePieceBackend) nextID() int {
	return len(b.pieces)
}
