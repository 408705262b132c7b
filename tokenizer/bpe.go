package tokenizer

import (
	"github.com/pkg/errors"
	"github.com/wbrown/gpt_bpe"
)

type bpeBackend struct {
	enc  *gpt_bpe.GPTEncoder
	next int
}

// loadGPTEncoder tries the embedded `<id>-tokenizer` vocabulary first, then
// `id` as a Hub repository or directory.
func loadGPTEncoder(id string) (*gpt_bpe.GPTEncoder, error) {
	if enc, err := gpt_bpe.NewEncoder(id + "-tokenizer"); err == nil {
		return enc, nil
	}
	enc, err := gpt_bpe.NewEncoder(id)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load BPE vocabulary `%s`", id)
	}
	return enc, nil
}

// NewBPE
// Returns a byte-level BPE tokenizer for vocabulary `id` with `specials`
// appended after the last vocabulary id.
func NewBPE(id string, specials []string, cacheSize int) (*Splicing, error) {
	enc, err := loadGPTEncoder(id)
	if err != nil {
		return nil, err
	}
	next := 0
	for _, token := range enc.Encoder {
		if int(token) >= next {
			next = int(token) + 1
		}
	}
	return newSplicing(&bpeBackend{enc: enc, next: next}, specials, cacheSize)
}

func (b *bpeBackend) encodeSegment(text string) (*Encoding, error) {
	tokens := b.enc.Encode(&text)
	enc := newEncoding(len(*tokens))
	for _, token := range *tokens {
		enc.append(string(b.enc.Decoder[token]), int(token))
	}
	return enc, nil
}

func (b *bpeBackend) lookup(token string) (int, bool) {
	if id := b.enc.Get(token); id != nil {
		return int(*id), true
	}
	return 0, false
}

func (b *bpeBackend) nextID() int {
	return b.next
}
