package retriever

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/careline-tw/careline/engine/knowledge"
)

// scoreDenominator normalizes raw hit counts into [0,1]; a handful of
// strong hits saturates the score.
const scoreDenominator = 6.0

// keywordBoost weights hits on the curated keyword field double.
const keywordBoost = 2.0

var stopwords = map[string]struct{}{
	"的": {}, "了": {}, "是": {}, "在": {}, "我": {}, "他": {}, "她": {},
	"也": {}, "有": {}, "和": {}, "就": {}, "都": {}, "很": {}, "會": {},
	"嗎": {}, "呢": {}, "啊": {}, "請": {}, "問": {},
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "to": {}, "of": {},
}

// KeywordScorer scores chunks by token overlap. It is CPU-only and never
// suspends, so the context is unused.
type KeywordScorer struct{}

func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

// Tokenize splits text into han unigrams and bigrams plus lowercased
// latin words, dropping stopwords. Han bigrams carry most of the signal
// for Chinese utterances; unigrams keep recall for single-character
// terms.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var han []rune
	var latin []rune
	flushHan := func() {
		for i := range han {
			tokens = append(tokens, string(han[i]))
			if i+1 < len(han) {
				tokens = append(tokens, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}
	flushLatin := func() {
		if len(latin) > 0 {
			tokens = append(tokens, string(latin))
			latin = latin[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushLatin()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.':
			flushHan()
			latin = append(latin, r)
		default:
			flushHan()
			flushLatin()
		}
	}
	flushHan()
	flushLatin()
	filtered := tokens[:0]
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		filtered = append(filtered, tok)
	}
	return filtered
}

// Score implements Scorer with stopword-filtered token overlap and a
// keyword-field boost.
func (s *KeywordScorer) Score(
	_ context.Context,
	query string,
	candidates []*knowledge.Chunk,
) ([]knowledge.RetrievedChunk, error) {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	results := make([]knowledge.RetrievedChunk, 0, len(candidates))
	for _, chunk := range candidates {
		score, terms := s.scoreChunk(queryTokens, chunk)
		results = append(results, knowledge.RetrievedChunk{
			Chunk:           chunk,
			SimilarityScore: score,
			QueryTerms:      terms,
		})
	}
	return results, nil
}

func (s *KeywordScorer) scoreChunk(queryTokens []string, chunk *knowledge.Chunk) (float64, []string) {
	text := strings.ToLower(chunk.Title + " " + chunk.Content + " " + chunk.DementiaWarning)
	keywordSet := make(map[string]struct{}, len(chunk.Keywords))
	for _, kw := range chunk.Keywords {
		keywordSet[strings.ToLower(kw)] = struct{}{}
	}
	raw := 0.0
	matched := make(map[string]struct{})
	for _, tok := range queryTokens {
		hit := false
		switch {
		case s.matchesKeyword(tok, keywordSet):
			raw += keywordBoost
			hit = true
		// Unigrams only count through the keyword field; content hits on
		// single han characters are noise.
		case len([]rune(tok)) >= 2 && strings.Contains(text, tok):
			raw++
			hit = true
		}
		if hit {
			matched[tok] = struct{}{}
		}
	}
	if raw == 0 {
		return 0, nil
	}
	terms := make([]string, 0, len(matched))
	for tok := range matched {
		terms = append(terms, tok)
	}
	sort.Strings(terms)
	score := raw / scoreDenominator
	if score > 1 {
		score = 1
	}
	return score, terms
}

func (s *KeywordScorer) matchesKeyword(token string, keywordSet map[string]struct{}) bool {
	if _, ok := keywordSet[token]; ok {
		return true
	}
	for kw := range keywordSet {
		if strings.Contains(kw, token) && len([]rune(token)) >= 2 {
			return true
		}
	}
	return false
}
