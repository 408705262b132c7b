package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/codemask/resources"
)

// wordBackend splits on spaces and numbers words by first appearance in
// its fixed vocabulary.
type wordBackend struct {
	vocab map[string]int
	calls int
}

func newWordBackend(words ...string) *wordBackend {
	b := &wordBackend{vocab: make(map[string]int, len(words))}
	for idx, word := range words {
		b.vocab[word] = idx
	}
	return b
}

func (b *wordBackend) encodeSegment(text string) (*Encoding, error) {
	b.calls++
	enc := newEncoding(4)
	for _, word := range strings.Fields(text) {
		id, ok := b.vocab[word]
		if !ok {
			return nil, errors.Errorf("unknown word %q", word)
		}
		enc.append(word, id)
	}
	return enc, nil
}

func (b *wordBackend) lookup(token string) (int, bool) {
	id, ok := b.vocab[token]
	return id, ok
}

func (b *wordBackend) nextID() int { return len(b.vocab) }

var markers = []string{"<mstart>", "<mend>"}

func TestSplicingKeepsMarkersAtomic(t *testing.T) {
	backend := newWordBackend("x", "=", "1", "y")
	tok, err := newSplicing(backend, markers, 16)
	require.NoError(t, err)

	enc, err := tok.Tokenize("y = 1\n<mstart> x = 1 <mend>")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"y", "=", "1", "<mstart>", "x", "=", "1", "<mend>"},
		enc.Tokens)
	assert.Equal(t, []int{3, 1, 2, 4, 0, 1, 2, 5}, enc.IDs)

	ids, err := MarkerIDs(tok, markers...)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, ids)
	assert.Equal(t, []int{3, 7}, MarkerPositions(enc.IDs, ids...))
}

func TestSplicingReusesVocabularyIDs(t *testing.T) {
	backend := newWordBackend("a", "<mend>")
	tok, err := newSplicing(backend, append(markers, "<mstart>", ""), 16)
	require.NoError(t, err)
	id, ok := tok.TokenToID("<mend>")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	id, ok = tok.TokenToID("<mstart>")
	assert.True(t, ok)
	assert.Equal(t, 2, id)
	_, ok = tok.TokenToID("missing")
	assert.False(t, ok)
}

func TestSplicingCachesSegments(t *testing.T) {
	backend := newWordBackend("a", "b")
	tok, err := newSplicing(backend, markers, 16)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		enc, err := tok.Tokenize("a b<mstart>a b<mend>")
		require.NoError(t, err)
		assert.Len(t, enc.IDs, 6)
	}
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 1, tok.Misses)
	assert.Equal(t, 5, tok.Hits)
}

func TestSplicingPropagatesErrors(t *testing.T) {
	tok, err := newSplicing(newWordBackend("a"), markers, 16)
	require.NoError(t, err)
	_, err = tok.Tokenize("a zzz")
	assert.Error(t, err)
}

func TestMarkerPositions(t *testing.T) {
	assert.Equal(t, []int{}, MarkerPositions(nil, 1, 2))
	assert.Equal(t, []int{0, 3, 4, 6},
		MarkerPositions([]int{9, 5, 5, 9, 10, 5, 10}, 9, 10))
	assert.Equal(t, []int{}, MarkerPositions([]int{1, 2, 3}))
}

// splitter maps every token to itself but splits markers apart.
type splitter struct{}

func (splitter) Tokenize(text string) (*Encoding, error) {
	return &Encoding{Tokens: []string{"<", "mstart>"}, IDs: []int{1, 2}}, nil
}

func (splitter) TokenToID(token string) (int, bool) { return 7, true }

func TestMarkerIDsRejectsSplitMarkers(t *testing.T) {
	_, err := MarkerIDs(splitter{}, "<mstart>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not atomic")
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, WordPiece, kind)
	kind, err = ParseKind("BPE")
	require.NoError(t, err)
	assert.Equal(t, BPE, kind)
	_, err = ParseKind("unigram")
	assert.True(t, errors.Is(err, ErrUnknownTokenizer))

	assert.Equal(t, "bert-base-uncased", DefaultID(WordPiece))
	assert.Equal(t, "gpt2", DefaultID(BPE))
	assert.Equal(t, "t5-small", DefaultID(SentencePiece))
}

func TestWordPieceFromVocab(t *testing.T) {
	dir := t.TempDir()
	vocab := "[PAD]\n[UNK]\n[CLS]\n[SEP]\nx\n=\n1\nprint\n(\n)\n"
	vocabPath := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(vocabPath, []byte(vocab), 0644))
	entry, err := resources.OpenEntry(vocabPath)
	require.NoError(t, err)
	rsrcs := resources.Resources{"vocab.txt": entry}
	defer rsrcs.Cleanup()

	tok, err := NewWordPieceFromResources(rsrcs, markers)
	require.NoError(t, err)

	ids, err := MarkerIDs(tok, markers...)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	enc, err := tok.Tokenize("<mstart> X = 1 <mend>")
	require.NoError(t, err)
	assert.Equal(t, []string{"<mstart>", "x", "=", "1", "<mend>"},
		enc.Tokens)
	assert.Equal(t, []int{0, 4}, MarkerPositions(enc.IDs, ids...))
	assert.Equal(t, 4, enc.IDs[1])
}
