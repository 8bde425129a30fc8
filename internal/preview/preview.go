// Package preview picks the sentence of a chunk that best matches a question.
package preview

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe    = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "of", "to", "in", "on", "for", "is", "are", "was", "were", "be",
		"it", "this", "that", "what", "which", "how", "why", "when", "do", "does", "i", "you", "with", "as", "by",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Sentences splits text into trimmed sentences. Text without terminators is one sentence.
func Sentences(text string) []string {
	text = spaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	if text == "" {
		return nil
	}
	locs := sentenceRe.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		if t := strings.TrimSpace(text[loc[0]:loc[1]]); t != "" {
			out = append(out, t)
		}
		end = loc[1]
	}
	// trailing fragment without a terminator
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Best returns the sentences of text and the index of the one sharing most tokens with question.
// Ties and no overlap keep the earliest sentence.
func Best(text, question string) (int, []string) {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return -1, nil
	}
	qTokens := toTokenSet(question)
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	return bestIdx, sentences
}

// Snippet returns the best sentence truncated to maxChars runes. maxChars <= 0 disables truncation.
func Snippet(text, question string, maxChars int) string {
	idx, sentences := Best(text, question)
	if idx < 0 {
		return ""
	}
	return Truncate(sentences[idx], maxChars)
}

// Truncate shortens s to at most maxChars runes, marking the cut with an ellipsis.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	if maxChars == 1 {
		return "…"
	}
	return strings.TrimSpace(string(r[:maxChars-1])) + "…"
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := stopwords[t]; stop {
			continue
		}
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range toTokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
