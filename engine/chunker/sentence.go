package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// sentenceBoundary matches sentence-final punctuation followed by whitespace,
// Unicode separators such as NBSP included.
var sentenceBoundary = regexp.MustCompile(`[.!?][\s\p{Z}]+`)

// span is a byte range into the text it was cut from.
type span struct{ start, end int }

// sentenceSpans returns the trimmed, non-empty sentences of text as byte ranges.
func sentenceSpans(text string) []span {
	var out []span
	add := func(start, end int) {
		for start < end {
			r, n := utf8.DecodeRuneInString(text[start:end])
			if !unicode.IsSpace(r) {
				break
			}
			start += n
		}
		for end > start {
			r, n := utf8.DecodeLastRuneInString(text[start:end])
			if !unicode.IsSpace(r) {
				break
			}
			end -= n
		}
		if start < end {
			out = append(out, span{start, end})
		}
	}
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		add(start, loc[0]+1)
		start = loc[1]
	}
	add(start, len(text))
	return out
}

// SplitSentences splits text on sentence-final punctuation followed by
// whitespace. Empty fragments are dropped.
func SplitSentences(text string) []string {
	spans := sentenceSpans(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = text[s.start:s.end]
	}
	return out
}

// NormalizeWhitespace collapses every whitespace run to a single space and
// trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
