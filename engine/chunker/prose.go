package chunker

import (
	"strings"

	"github.com/WessleyAI/docsearch/engine/domain"
)

// proseDrafts emits one chunk when text fits the budget, otherwise splits on
// sentence boundaries. Each flushed chunk is tagged has_continuation and the
// next chunk starts with the flushed chunk's last sentences plus the sentence
// that overflowed. The overlap is not capped, so a seeded chunk may exceed the
// budget when its sentences are long.
func (c *Chunker) proseDrafts(text string) []draft {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if c.counter.Count(trimmed) <= c.maxTokens {
		return []draft{proseDraft(trimmed, []span{{0, len(trimmed)}}, false)}
	}

	sentences := sentenceSpans(trimmed)
	var (
		out     []draft
		buf     []span
		running int
	)
	for _, s := range sentences {
		n := c.counter.Count(trimmed[s.start:s.end])
		if running+n > c.maxTokens && len(buf) > 0 {
			out = append(out, proseDraft(trimmed, buf, true))
			buf = append(c.tail(buf), s)
			running = c.counter.Count(joinSpans(trimmed, buf))
			continue
		}
		buf = append(buf, s)
		running += n
	}
	if len(buf) > 0 {
		out = append(out, proseDraft(trimmed, buf, false))
	}
	return out
}

// tail returns a copy of the last overlap sentences of buf.
func (c *Chunker) tail(buf []span) []span {
	k := c.overlap
	if k > len(buf) {
		k = len(buf)
	}
	out := make([]span, k, k+1)
	copy(out, buf[len(buf)-k:])
	return out
}

func proseDraft(text string, spans []span, cont bool) draft {
	meta := map[string]any{}
	if cont {
		meta[domain.MetaHasContinuation] = true
	}
	return draft{
		content:  NormalizeWhitespace(joinSpans(text, spans)),
		original: text[spans[0].start:spans[len(spans)-1].end],
		kind:     domain.ChunkProse,
		meta:     meta,
	}
}

func joinSpans(text string, spans []span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = text[s.start:s.end]
	}
	return strings.Join(parts, " ")
}
