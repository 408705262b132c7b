package codemask

import "unicode/utf8"

// RuneNode is one node of a rune trie built over a fixed set of words, used
// to match skip prefixes at the start of a line and to cut text around
// marker tokens.
type RuneNode struct {
	rune      rune               // The rune this node represents.
	terminal  bool               // A word ends at this node.
	childs    map[rune]*RuneNode // The child nodes.
	childsArr *[]*RuneNode       // The child nodes in an array, for precedence
}

// Segment is a piece of text produced by RuneNode.Split. Word is true when
// the segment is one of the words the tree was built from.
type Segment struct {
	Text string
	Word bool
}

// NewRuneTree
// Builds a rune trie from the given words. Empty words are ignored.
func NewRuneTree(words []string) *RuneNode {
	runeTree := &RuneNode{
		childs: make(map[rune]*RuneNode, 0),
	}
	for _, word := range words {
		keyRunes := []rune(word)
		keyLen := len(keyRunes)
		node := runeTree
		for i := 0; i < keyLen; i++ {
			r := keyRunes[i]
			childNode, ok := node.childs[r]
			if !ok {
				children := make([]*RuneNode, 0)
				childNode = &RuneNode{
					rune:      r,
					terminal:  i == keyLen-1,
					childs:    make(map[rune]*RuneNode, 0),
					childsArr: &children,
				}
				node.childs[r] = childNode
			} else if i == keyLen-1 {
				childNode.terminal = true
			}
			// Small fan-outs are scanned as a slice, larger ones go
			// through the map.
			if len(node.childs) > 10 {
				node.childsArr = nil
			} else {
				if node.childsArr == nil {
					children := make([]*RuneNode, 0)
					node.childsArr = &children
				}
				if len(node.childs) != len(*node.childsArr) {
					*node.childsArr = append(*node.childsArr, childNode)
				}
			}
			node = childNode
		}
	}
	return runeTree
}

func (node *RuneNode) evaluate(r rune) (*RuneNode, bool) {
	if node.childsArr != nil {
		for _, child := range *node.childsArr {
			if child.rune == r {
				return child, child.terminal
			}
		}
	} else if child, ok := node.childs[r]; ok {
		return child, child.terminal
	}
	return nil, false
}

// Empty reports whether the tree holds no words.
func (root *RuneNode) Empty() bool {
	return root == nil || len(root.childs) == 0
}

// HasPrefix
// Reports whether `s` begins with any word in the tree.
func (root *RuneNode) HasPrefix(s string) bool {
	return root.matchAt(s) > 0
}

// matchAt returns the byte length of the longest word that `s` begins with,
// or 0 when none matches.
func (root *RuneNode) matchAt(s string) int {
	if root.Empty() {
		return 0
	}
	node := root
	longest := 0
	for idx := 0; idx < len(s); {
		r, size := utf8.DecodeRuneInString(s[idx:])
		next, terminal := node.evaluate(r)
		if next == nil {
			break
		}
		idx += size
		if terminal {
			longest = idx
		}
		node = next
	}
	return longest
}

// Split
// Cuts `text` into segments, emitting every leftmost-longest occurrence of a
// word as its own segment. Concatenating the segments yields `text`.
func (root *RuneNode) Split(text string) []Segment {
	segments := make([]Segment, 0, 1)
	start := 0
	for idx := 0; idx < len(text); {
		if n := root.matchAt(text[idx:]); n > 0 {
			if start < idx {
				segments = append(segments, Segment{Text: text[start:idx]})
			}
			segments = append(segments,
				Segment{Text: text[idx : idx+n], Word: true})
			idx += n
			start = idx
			continue
		}
		_, size := utf8.DecodeRuneInString(text[idx:])
		idx += size
	}
	if start < len(text) {
		segments = append(segments, Segment{Text: text[start:]})
	}
	return segments
}
