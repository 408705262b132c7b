package codemask

import (
	"math/rand"
	"strings"

	"github.com/pkg/errors"
)

// Sampling selects how region indices are drawn.
type Sampling int

const (
	// SamplingRetry draws each region independently with a bounded number
	// of attempts; repeated collisions leave the region unfilled.
	SamplingRetry Sampling = iota
	// SamplingExhaustive draws without replacement and always fills
	// min(target, n) regions.
	SamplingExhaustive
)

func (s Sampling) String() string {
	switch s {
	case SamplingRetry:
		return "retry"
	case SamplingExhaustive:
		return "exhaustive"
	}
	return "unknown"
}

// ParseSampling maps "retry" or "exhaustive" to a Sampling.
func ParseSampling(s string) (Sampling, error) {
	switch strings.ToLower(s) {
	case "", "retry":
		return SamplingRetry, nil
	case "exhaustive":
		return SamplingExhaustive, nil
	}
	return SamplingRetry, errors.Errorf("unknown sampling mode %q", s)
}

// ParseDocstringMode maps "line" or "block" to a DocstringMode.
func ParseDocstringMode(s string) (DocstringMode, error) {
	switch strings.ToLower(s) {
	case "", "line", "lines":
		return DocstringLines, nil
	case "block", "blocks":
		return DocstringBlocks, nil
	}
	return DocstringLines, errors.Errorf("unknown docstring mode %q", s)
}

// RandomSource is the source of uniform draws used for region selection.
// *rand.Rand satisfies it.
type RandomSource interface {
	// Intn returns a uniform integer in [0, n).
	Intn(n int) int
}

type globalSource struct{}

func (globalSource) Intn(n int) int { return rand.Intn(n) }

// MaskerConfig holds the tunables of a Masker.
type MaskerConfig struct {
	MinRegions   int
	MaxRegions   int
	MaxAttempts  int
	StartMarker  string
	EndMarker    string
	SkipPrefixes []string
	Sampling     Sampling
	Docstrings   DocstringMode
	// Rand defaults to the process-wide math/rand generator when nil.
	Rand RandomSource
}

// NewMaskerConfig
// Returns a MaskerConfig with the default region bounds, markers and skip
// prefixes.
func NewMaskerConfig() MaskerConfig {
	return MaskerConfig{
		MinRegions:   DefaultMinRegions,
		MaxRegions:   DefaultMaxRegions,
		MaxAttempts:  DefaultMaxAttempts,
		StartMarker:  DefaultStartMarker,
		EndMarker:    DefaultEndMarker,
		SkipPrefixes: append([]string(nil), DefaultSkipPrefixes...),
		Sampling:     SamplingRetry,
		Docstrings:   DocstringLines,
	}
}

// Masker selects random logical lines of a code string and wraps them in
// marker tokens. A Masker is not safe for concurrent use unless its
// RandomSource is.
type Masker struct {
	cfg      MaskerConfig
	prefixes *RuneNode
	rnd      RandomSource
}

// MaskResult is the outcome of masking one code string.
type MaskResult struct {
	// Text is the reconstructed code with markers injected.
	Text string
	// Regions holds the stripped text of each masked line in draw order.
	Regions []string
	// Target is the number of regions that were requested.
	Target int
}

// Shortfall reports whether fewer regions were masked than requested.
func (res MaskResult) Shortfall() bool {
	return len(res.Regions) < res.Target
}

// NewMasker
// Validates `cfg` and returns a Masker for it.
func NewMasker(cfg MaskerConfig) (*Masker, error) {
	if cfg.MinRegions < 0 {
		return nil, errors.Errorf("min regions must be >= 0, got %d",
			cfg.MinRegions)
	}
	if cfg.MaxRegions < cfg.MinRegions {
		return nil, errors.Errorf("max regions (%d) below min regions (%d)",
			cfg.MaxRegions, cfg.MinRegions)
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.Errorf("max attempts must be >= 1, got %d",
			cfg.MaxAttempts)
	}
	if cfg.StartMarker == "" || cfg.EndMarker == "" {
		return nil, errors.New("start and end markers must be non-empty")
	}
	if cfg.StartMarker == cfg.EndMarker {
		return nil, errors.Errorf("start and end markers are both %q",
			cfg.StartMarker)
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = globalSource{}
	}
	return &Masker{
		cfg:      cfg,
		prefixes: NewRuneTree(cfg.SkipPrefixes),
		rnd:      rnd,
	}, nil
}

// Config returns the configuration the Masker was built with.
func (m *Masker) Config() MaskerConfig {
	return m.cfg
}

// Markers returns the start and end markers.
func (m *Masker) Markers() (string, string) {
	return m.cfg.StartMarker, m.cfg.EndMarker
}

func (m *Masker) classifier() *lineClassifier {
	return &lineClassifier{prefixes: m.prefixes, mode: m.cfg.Docstrings}
}

// LogicalLines
// Returns the lines of `code` eligible for masking, stripped, in order.
func (m *Masker) LogicalLines(code string) []string {
	return logicalLines(SplitLines(code), m.classifier())
}

// TargetRegions
// Number of regions requested for `n` logical lines: n/4 clamped to
// [MinRegions, MaxRegions], or 0 when there are no lines.
func (m *Masker) TargetRegions(n int) int {
	if n <= 0 {
		return 0
	}
	target := n / 4
	if target < m.cfg.MinRegions {
		target = m.cfg.MinRegions
	}
	if target > m.cfg.MaxRegions {
		target = m.cfg.MaxRegions
	}
	return target
}

// Wrap surrounds text with the markers, separated by single spaces.
func (m *Masker) Wrap(text string) string {
	return m.cfg.StartMarker + " " + text + " " + m.cfg.EndMarker
}

// Mask
// Picks random logical lines of `code`, wraps them with the markers, and
// rebuilds the code. Skipped lines are kept verbatim, eligible lines keep
// their leading whitespace, and the result is joined with "\n". Code with no
// logical lines is returned unchanged.
func (m *Masker) Mask(code string) MaskResult {
	lines := SplitLines(code)
	skips := m.classifier().classify(lines)

	chunks := make([]string, 0, len(lines))
	for idx, line := range lines {
		if !skips[idx] {
			chunks = append(chunks, Strip(line))
		}
	}
	n := len(chunks)
	if n == 0 {
		return MaskResult{Text: code, Regions: []string{}}
	}

	target := m.TargetRegions(n)
	var picked []int
	switch m.cfg.Sampling {
	case SamplingExhaustive:
		picked = m.drawExhaustive(n, target)
	default:
		picked = m.drawRetry(n, target)
	}

	regions := make([]string, 0, len(picked))
	for _, idx := range picked {
		regions = append(regions, chunks[idx])
		chunks[idx] = m.Wrap(chunks[idx])
	}

	rebuilt := make([]string, len(lines))
	ptr := 0
	for idx, line := range lines {
		if skips[idx] {
			rebuilt[idx] = line
			continue
		}
		rebuilt[idx] = LeadingSpace(line) + chunks[ptr]
		ptr++
	}
	return MaskResult{
		Text:    strings.Join(rebuilt, "\n"),
		Regions: regions,
		Target:  target,
	}
}

// drawRetry gives each region MaxAttempts draws over [0, n); a region whose
// draws all hit already selected indices is dropped.
func (m *Masker) drawRetry(n, target int) []int {
	picked := make([]int, 0, target)
	selected := make(map[int]struct{}, target)
	for region := 0; region < target; region++ {
		for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
			idx := m.rnd.Intn(n)
			if _, ok := selected[idx]; ok {
				continue
			}
			selected[idx] = struct{}{}
			picked = append(picked, idx)
			break
		}
	}
	return picked
}

// drawExhaustive draws min(target, n) distinct indices without replacement.
func (m *Masker) drawExhaustive(n, target int) []int {
	if target > n {
		target = n
	}
	remaining := make([]int, n)
	for idx := range remaining {
		remaining[idx] = idx
	}
	picked := make([]int, 0, target)
	for len(picked) < target {
		j := m.rnd.Intn(len(remaining))
		picked = append(picked, remaining[j])
		last := len(remaining) - 1
		remaining[j] = remaining[last]
		remaining = remaining[:last]
	}
	return picked
}
