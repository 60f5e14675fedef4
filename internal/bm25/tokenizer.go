//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are common English words that carry no ranking signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "this": true, "but": true, "they": true, "have": true,
	"had": true, "what": true, "when": true, "where": true, "who": true,
	"which": true, "why": true, "how": true, "not": true, "no": true,
	"so": true, "than": true, "can": true, "i": true, "you": true,
	"we": true, "me": true, "my": true, "your": true, "our": true,
}

// ideographic reports runes that form words on their own; Chinese and
// Japanese text has no spaces between words, so each character is a
// token.
func ideographic(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// Tokenize lowercases text and splits it into letter/digit runs, with
// ideographs emitted one per token. Stop words and single-character
// alphanumeric runs are dropped.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	var (
		tokens []string
		word   strings.Builder
	)
	flush := func() {
		if word.Len() == 0 {
			return
		}
		w := word.String()
		word.Reset()
		if utf8.RuneCountInString(w) < 2 || stopWords[w] {
			return
		}
		tokens = append(tokens, w)
	}

	for _, r := range text {
		switch {
		case ideographic(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// Frequencies counts each token of text.
func Frequencies(text string) map[string]int {
	freqs := make(map[string]int)
	for _, t := range Tokenize(text) {
		freqs[t]++
	}
	return freqs
}
