package tokenizer

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/wbrown/codemask"
)

// segmentEncoder is a backend that has no notion of added tokens. The
// splicing tokenizer cuts text around its specials and hands the pieces in
// between to the backend.
type segmentEncoder interface {
	encodeSegment(text string) (*Encoding, error)
	lookup(token string) (int, bool)
	// nextID is the first id past the backend's vocabulary.
	nextID() int
}

// Splicing registers atomic special tokens on top of a segmentEncoder.
type Splicing struct {
	backend    segmentEncoder
	specials   *codemask.RuneNode
	specialIDs map[string]int
	cache      *lru.ARCCache
	// Hits and Misses count segment cache lookups.
	Hits   int
	Misses int
}

func newSplicing(backend segmentEncoder, specials []string,
	cacheSize int) (*Splicing, error) {
	cache, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create segment cache")
	}
	s := &Splicing{
		backend:    backend,
		specialIDs: make(map[string]int, len(specials)),
		cache:      cache,
	}
	next := backend.nextID()
	words := make([]string, 0, len(specials))
	for _, special := range specials {
		if special == "" {
			continue
		}
		if _, seen := s.specialIDs[special]; seen {
			continue
		}
		// Specials already in the vocabulary keep their id.
		id, ok := backend.lookup(special)
		if !ok {
			id = next
			next++
		}
		s.specialIDs[special] = id
		words = append(words, special)
	}
	s.specials = codemask.NewRuneTree(words)
	return s, nil
}

// Tokenize encodes `text`, emitting each special as a single token.
func (s *Splicing) Tokenize(text string) (*Encoding, error) {
	enc := newEncoding(len(text) / 3)
	for _, seg := range s.specials.Split(text) {
		if seg.Word {
			enc.append(seg.Text, s.specialIDs[seg.Text])
			continue
		}
		segEnc, err := s.encodeCached(seg.Text)
		if err != nil {
			return nil, err
		}
		enc.Tokens = append(enc.Tokens, segEnc.Tokens...)
		enc.IDs = append(enc.IDs, segEnc.IDs...)
	}
	return enc, nil
}

func (s *Splicing) encodeCached(text string) (*Encoding, error) {
	if cached, ok := s.cache.Get(text); ok {
		s.Hits++
		return cached.(*Encoding), nil
	}
	s.Misses++
	enc, err := s.backend.encodeSegment(text)
	if err != nil {
		return nil, err
	}
	s.cache.Add(text, enc)
	return enc, nil
}

// TokenToID resolves specials first, then the backend vocabulary.
func (s *Splicing) TokenToID(token string) (int, bool) {
	if id, ok := s.specialIDs[token]; ok {
		return id, true
	}
	return s.backend.lookup(token)
}
