package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/docsearch/engine/domain"
)

// LocateSpan finds text inside raw after whitespace normalisation of both and
// maps the first match back to byte offsets in raw. It returns nil when the
// text does not occur, e.g. when markup splits it.
func LocateSpan(text, raw string) *domain.TextSpan {
	needle := NormalizeWhitespace(text)
	if needle == "" || raw == "" {
		return nil
	}
	hay, offsets := normalizeWithOffsets(raw)
	i := strings.Index(hay, needle)
	if i < 0 {
		return nil
	}
	start := offsets[i]
	end := offsets[i+len(needle)-1] + 1
	return &domain.TextSpan{
		StartChar:    start,
		EndChar:      end,
		OriginalText: raw[start:end],
	}
}

// normalizeWithOffsets is NormalizeWhitespace that also records, for every
// output byte, the byte offset it came from in s.
func normalizeWithOffsets(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s))
	pendingSpace := -1
	for i := 0; i < len(s); {
		r, n := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if b.Len() > 0 && pendingSpace < 0 {
				pendingSpace = i
			}
			i += n
			continue
		}
		if pendingSpace >= 0 {
			b.WriteByte(' ')
			offsets = append(offsets, pendingSpace)
			pendingSpace = -1
		}
		b.WriteString(s[i : i+n])
		for j := 0; j < n; j++ {
			offsets = append(offsets, i+j)
		}
		i += n
	}
	return b.String(), offsets
}
