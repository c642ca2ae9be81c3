package store

import (
	"strings"
	"unicode"
)

// Tokenizer turns text into BM25 terms: lowercase, split on anything that
// is not a letter or digit, and drop terms shorter than MinLength.
type Tokenizer struct {
	MinLength int
	StopWords map[string]struct{}

	// SplitIdentifiers also splits camelCase words into their parts.
	SplitIdentifiers bool
}

// NewTokenizer builds a tokenizer from cfg.
func NewTokenizer(cfg BM25Config) *Tokenizer {
	minLen := cfg.MinTokenLength
	if minLen <= 0 {
		minLen = DefaultMinTokenLength
	}
	return &Tokenizer{
		MinLength:        minLen,
		StopWords:        BuildStopWordMap(cfg.StopWords),
		SplitIdentifiers: cfg.SplitIdentifiers,
	}
}

// Tokenize returns terms in text order, with repeats.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	emit := func(w string) {
		w = strings.ToLower(w)
		if len([]rune(w)) < t.MinLength {
			return
		}
		if _, stop := t.StopWords[w]; stop {
			return
		}
		tokens = append(tokens, w)
	}
	for _, w := range words {
		if t.SplitIdentifiers {
			for _, part := range SplitCamelCase(w) {
				emit(part)
			}
			continue
		}
		emit(w)
	}
	return tokens
}

// TermFrequencies counts terms and returns the document length.
func (t *Tokenizer) TermFrequencies(text string) (map[string]int, int) {
	tokens := t.Tokenize(text)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf, len(tokens)
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordMap lowercases stop words into a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
