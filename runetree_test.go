package codemask

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuneTreeHasPrefix(t *testing.T) {
	tree := NewRuneTree(DefaultSkipPrefixes)
	assert.True(t, tree.HasPrefix("# comment"))
	assert.True(t, tree.HasPrefix(`"""Docstring."""`))
	assert.True(t, tree.HasPrefix("'''"))
	assert.False(t, tree.HasPrefix(`""`))
	assert.False(t, tree.HasPrefix("x = '#'"))
	assert.False(t, tree.HasPrefix(""))
	assert.False(t, NewRuneTree(nil).HasPrefix("# comment"))
}

func TestRuneTreeWideFanout(t *testing.T) {
	// More than 10 children at the root switches lookups to the map.
	words := strings.Split("a b c d e f g h i j k l m", " ")
	tree := NewRuneTree(words)
	assert.Nil(t, tree.childsArr)
	for _, w := range words {
		assert.True(t, tree.HasPrefix(w+"xyz"))
	}
	assert.False(t, tree.HasPrefix("z"))
}

func TestRuneTreeSplit(t *testing.T) {
	tree := NewRuneTree([]string{"<mstart>", "<mend>", "<m"})
	segments := tree.Split("x = <mstart> y <mend><mend>z<m")
	assert.Equal(t, []Segment{
		{Text: "x = "},
		{Text: "<mstart>", Word: true},
		{Text: " y "},
		{Text: "<mend>", Word: true},
		{Text: "<mend>", Word: true},
		{Text: "z"},
		{Text: "<m", Word: true},
	}, segments)

	var rebuilt strings.Builder
	for _, seg := range segments {
		rebuilt.WriteString(seg.Text)
	}
	assert.Equal(t, "x = <mstart> y <mend><mend>z<m", rebuilt.String())
}

func TestRuneTreeSplitNoWords(t *testing.T) {
	tree := NewRuneTree([]string{"<mstart>"})
	assert.Equal(t, []Segment{{Text: "héllo <mstar"}},
		tree.Split("héllo <mstar"))
	assert.Empty(t, tree.Split(""))
}
