package search

import (
	"math"
	"strings"

	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
)

// Scoring model. Per-token scores reward compact, early, gap-free
// matches; multi-token aggregates reward tight overall span and tokens
// appearing in the order they were typed.
const (
	prefixMatchScore    = 80.0
	substringMatchScore = 50.0

	tokenBaseScore     = 40.0
	tokenCompactWeight = 60.0
	tokenStartBonus    = 30.0
	tokenGapPenalty    = 1.5
	gaplessBonus       = 20.0

	matchedTokenBonus   = 18.0
	missingTokenPenalty = 28.0

	aggregateCompactWeight = 90.0
	straySpanPenalty       = 0.6
	inversionPenalty       = 16.0
	orderedBonus           = 10.0
	gapSumPenalty          = 0.7

	nameKindBonus      = 100.0
	pathKindBonus      = 50.0
	extensionKindBonus = 30.0

	// Tokens this short must match gap-free or not at all; subsequence
	// hits on two-character fragments are noise.
	shortTokenMax = 2

	// With this many tokens or more, one may fail to match.
	tolerantTokenCount = 3

	maxLengthPenalty = 10.0
)

// Result is one ranked hit.
type Result struct {
	Entry index.Entry
	Score float64
	Kind  MatchKind
}

// Searcher evaluates queries against an entry slice.
type Searcher struct {
	Options Options
}

// New returns a Searcher with default options.
func New() *Searcher {
	return &Searcher{Options: DefaultOptions()}
}

// Search tokenizes the query, scores every entry, and returns at most
// Options.MaxResults hits, sorted descending by score. Ties keep the
// original entry order so runs are deterministic.
func (s *Searcher) Search(entries []index.Entry, query string) []Result {
	if query == "" {
		return nil
	}
	if !s.Options.CaseSensitive {
		query = strings.ToLower(query)
	}
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil
	}

	keep := s.Options.MaxResults
	if keep < 1 {
		keep = 1
	}
	top := newTopK(keep)

	for i := range entries {
		entry := &entries[i]

		if s.Options.PathSearch {
			if score, ok := s.tokensScore(s.pathKey(entry), tokens); ok {
				top.offer(s.buildResult(entry, score, KindPath), i)
			}
			continue
		}

		if score, ok := s.tokensScore(s.nameKey(entry), tokens); ok {
			top.offer(s.buildResult(entry, score, KindName), i)
			continue
		}
		if score, ok := s.tokensScore(s.pathKey(entry), tokens); ok {
			top.offer(s.buildResult(entry, score, KindPath), i)
		}
	}

	return top.ranked()
}

func (s *Searcher) nameKey(e *index.Entry) string {
	if s.Options.CaseSensitive {
		return e.Name
	}
	return e.NameLower
}

func (s *Searcher) pathKey(e *index.Entry) string {
	if s.Options.CaseSensitive {
		return e.Path
	}
	return e.PathLower
}

func (s *Searcher) buildResult(e *index.Entry, matchScore float64, kind MatchKind) Result {
	score := matchScore
	switch kind {
	case KindName:
		score += nameKindBonus
	case KindPath:
		score += pathKindBonus
	case KindExtension:
		score += extensionKindBonus
	}
	score -= lengthPenalty(len(e.Name))
	return Result{Entry: *e, Score: score, Kind: kind}
}

// lengthPenalty discourages long names from outranking short, tightly
// matching ones. Logarithmic so it saturates instead of dominating.
func lengthPenalty(nameLen int) float64 {
	return math.Min(maxLengthPenalty, 2.2*math.Log1p(float64(nameLen)/4))
}

func (s *Searcher) tokensScore(haystack string, tokens []string) (float64, bool) {
	if len(tokens) == 0 {
		return 0, false
	}
	if s.Options.Fuzzy {
		return fuzzyTokensScore(haystack, tokens)
	}

	total := 0.0
	for _, token := range tokens {
		score, ok := substringScore(haystack, token)
		if !ok {
			return 0, false
		}
		total += score
	}
	return total, true
}

func substringScore(haystack, token string) (float64, bool) {
	if token == "" {
		return 0, false
	}
	if strings.HasPrefix(haystack, token) {
		return prefixMatchScore, true
	}
	if strings.Contains(haystack, token) {
		return substringMatchScore, true
	}
	return 0, false
}

// tokenMatch records where one query token landed on the haystack.
// Positions are rune offsets.
type tokenMatch struct {
	queryIndex int
	first      int
	last       int
	needleLen  int
	score      float64
}

func fuzzyTokensScore(haystack string, tokens []string) (float64, bool) {
	required := len(tokens)
	if required >= tolerantTokenCount {
		required--
	}

	matches := make([]tokenMatch, 0, len(tokens))
	base := 0.0
	missing := 0
	for queryIndex, token := range tokens {
		m, ok := fuzzyTokenMatch(haystack, token, queryIndex)
		if !ok {
			missing++
			continue
		}
		base += m.score
		matches = append(matches, m)
	}
	if len(matches) < required {
		return 0, false
	}

	score := base
	score += float64(len(matches)) * matchedTokenBonus
	score -= float64(missing) * missingTokenPenalty
	if len(matches) < 2 {
		return score, true
	}

	minFirst, maxLast, totalNeedle := matches[0].first, matches[0].last, 0
	for _, m := range matches {
		if m.first < minFirst {
			minFirst = m.first
		}
		if m.last > maxLast {
			maxLast = m.last
		}
		totalNeedle += m.needleLen
	}
	if totalNeedle < 1 {
		totalNeedle = 1
	}
	span := float64(maxLast - minFirst + 1)
	if span < 1 {
		span = 1
	}
	compact := math.Min(float64(totalNeedle)/span, 1)
	score += compact * aggregateCompactWeight
	score -= math.Max(span-float64(totalNeedle), 0) * straySpanPenalty

	// Order tokens by where they landed, then count how far that is
	// from the order they were typed in.
	byPos := make([]tokenMatch, len(matches))
	copy(byPos, matches)
	for i := 1; i < len(byPos); i++ {
		for j := i; j > 0; j-- {
			a, b := byPos[j-1], byPos[j]
			if a.first > b.first || (a.first == b.first && a.queryIndex > b.queryIndex) {
				byPos[j-1], byPos[j] = b, a
			} else {
				break
			}
		}
	}

	inversions := 0
	for i := 0; i < len(byPos); i++ {
		for j := i + 1; j < len(byPos); j++ {
			if byPos[i].queryIndex > byPos[j].queryIndex {
				inversions++
			}
		}
	}
	score -= float64(inversions) * inversionPenalty
	if inversions == 0 {
		score += orderedBonus
	}

	gapSum := 0
	for i := 1; i < len(byPos); i++ {
		if gap := byPos[i].first - (byPos[i-1].last + 1); gap > 0 {
			gapSum += gap
		}
	}
	score -= float64(gapSum) * gapSumPenalty

	return score, true
}

func fuzzyTokenMatch(haystack, token string, queryIndex int) (tokenMatch, bool) {
	if token == "" {
		return tokenMatch{}, false
	}
	m, ok := fuzzyMatch(haystack, token)
	if !ok {
		return tokenMatch{}, false
	}

	needleLen := len([]rune(token))
	if needleLen < 1 {
		needleLen = 1
	}
	span := m.last - m.first + 1
	if span < 1 {
		span = 1
	}
	if needleLen <= shortTokenMax && m.gaps != 0 {
		return tokenMatch{}, false
	}
	if span > needleLen*10+20 {
		return tokenMatch{}, false
	}

	compact := math.Min(float64(needleLen)/float64(span), 1)
	startBonus := tokenStartBonus / (1 + float64(m.first))
	score := tokenBaseScore + compact*tokenCompactWeight + startBonus - float64(m.gaps)*tokenGapPenalty
	if m.gaps == 0 {
		score += gaplessBonus
	}

	return tokenMatch{
		queryIndex: queryIndex,
		first:      m.first,
		last:       m.last,
		needleLen:  needleLen,
		score:      score,
	}, true
}

type fuzzyHit struct {
	first int
	last  int
	gaps  int
}

// fuzzyMatch finds the needle's runes as an in-order subsequence of the
// haystack, greedily taking the earliest occurrence of each rune, and
// tracks the gaps between consecutive hits.
func fuzzyMatch(haystack, needle string) (fuzzyHit, bool) {
	needleRunes := []rune(needle)
	if len(needleRunes) == 0 {
		return fuzzyHit{}, false
	}

	ni := 0
	first := -1
	prev := -1
	gaps := 0
	pos := 0
	for _, c := range haystack {
		i := pos
		pos++
		if c != needleRunes[ni] {
			continue
		}
		if first < 0 {
			first = i
		}
		if prev >= 0 {
			gaps += i - prev - 1
		}
		prev = i
		ni++
		if ni == len(needleRunes) {
			return fuzzyHit{first: first, last: i, gaps: gaps}, true
		}
	}
	return fuzzyHit{}, false
}
