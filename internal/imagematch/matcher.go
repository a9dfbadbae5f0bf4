// Package imagematch picks the image file that best represents a product.
package imagematch

import (
	"strings"

	"github.com/Veraticus/catalog-janitor/internal/model"
	"github.com/Veraticus/catalog-janitor/internal/textnorm"
)

// Score ladder, highest first.
const (
	ScoreExact            = 100
	ScoreBasenameContains = 90
	ScoreNameContains     = 85
)

var (
	brandScores = map[int]int{3: 75, 2: 60, 1: 45}
	looseScores = map[int]int{4: 70, 3: 55, 2: 40}
)

// DefaultMinContainLength keeps tiny keys like "tg" from matching by
// containment.
const DefaultMinContainLength = 4

// DefaultThreshold is the minimum score accepted when none is configured.
const DefaultThreshold = 50

// Options configures scoring.
type Options struct {
	Normalizer textnorm.Normalizer
	// Threshold is the minimum accepted score, 0-100.
	Threshold int
	// BrandWordMinLength is the token length counted after a brand prefix.
	BrandWordMinLength int
	// LooseWordMinLength is the token length counted without a brand prefix.
	LooseWordMinLength int
	// MinContainLength is the shortest normalized key that may score by
	// containment (90 or 85). 0 lets any key contain or be contained.
	MinContainLength int
}

// DefaultOptions returns the scoring defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:          DefaultThreshold,
		BrandWordMinLength: textnorm.DefaultMinTokenLength,
		LooseWordMinLength: 4,
		MinContainLength:   DefaultMinContainLength,
	}
}

// Match is an accepted candidate.
type Match struct {
	Candidate Candidate
	Score     int
}

// Matcher scores products against image candidates.
type Matcher struct {
	opts Options
}

// NewMatcher creates a matcher, clamping the threshold into 0-100 and
// filling unset word lengths with defaults.
func NewMatcher(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.BrandWordMinLength <= 0 {
		opts.BrandWordMinLength = def.BrandWordMinLength
	}
	if opts.LooseWordMinLength <= 0 {
		opts.LooseWordMinLength = def.LooseWordMinLength
	}
	if opts.MinContainLength < 0 {
		opts.MinContainLength = 0
	}
	if opts.Threshold < 0 {
		opts.Threshold = 0
	}
	if opts.Threshold > ScoreExact {
		opts.Threshold = ScoreExact
	}
	return &Matcher{opts: opts}
}

// Threshold returns the minimum accepted score.
func (m *Matcher) Threshold() int {
	return m.opts.Threshold
}

// Score rates how well a candidate represents a product, 0 meaning no
// match. A product with a blank name always scores 0.
func (m *Matcher) Score(p model.Product, c Candidate) int {
	n := m.opts.Normalizer
	name := n.Normalize(p.Name)
	base := n.Normalize(c.Basename)
	if name == "" || base == "" {
		return 0
	}

	switch {
	case base == name:
		return ScoreExact
	case len(name) >= m.opts.MinContainLength && strings.Contains(base, name):
		return ScoreBasenameContains
	case len(base) >= m.opts.MinContainLength && strings.Contains(name, base):
		return ScoreNameContains
	}

	if brand := n.Normalize(p.BrandName()); brand != "" && strings.HasPrefix(base, brand) {
		words := m.nameWords(p.Name, m.opts.BrandWordMinLength, brand)
		return ladder(brandScores, countIn(base, words), 3)
	}

	words := m.nameWords(p.Name, m.opts.LooseWordMinLength, "")
	return ladder(looseScores, countIn(base, words), 4)
}

// Best returns the highest scoring available candidate at or above the
// threshold. The first candidate wins a tie. Best does not consume the
// winner.
func (m *Matcher) Best(p model.Product, pool *Pool) *Match {
	var best *Match
	for _, c := range pool.Available(p.ID) {
		score := m.Score(p, c)
		if score == 0 || score < m.opts.Threshold {
			continue
		}
		if best != nil && score <= best.Score {
			continue
		}
		best = &Match{Candidate: c, Score: score}
		if score == ScoreExact {
			break
		}
	}
	return best
}

// nameWords tokenizes a product name, dropping duplicates and tokens that
// are part of the brand.
func (m *Matcher) nameWords(name string, minLen int, brand string) []string {
	tokens := m.opts.Normalizer.Tokenize(name, minLen)
	seen := make(map[string]bool, len(tokens))
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if seen[tok] || (brand != "" && strings.Contains(brand, tok)) {
			continue
		}
		seen[tok] = true
		words = append(words, tok)
	}
	return words
}

func countIn(base string, words []string) int {
	count := 0
	for _, w := range words {
		if strings.Contains(base, w) {
			count++
		}
	}
	return count
}

// ladder maps a word count onto a score table whose top step is capped.
func ladder(scores map[int]int, count, top int) int {
	if count > top {
		count = top
	}
	return scores[count]
}
