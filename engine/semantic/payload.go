package semantic

import (
	"fmt"
	"sort"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
)

// ChunkPayload builds the stored payload for one chunk: the chunk fields, the
// denormalized page fields and the indexing timestamp.
func ChunkPayload(page domain.Page, c domain.Chunk, indexedAt time.Time) map[string]any {
	spans := make([]any, len(c.TextSpans))
	for i, s := range c.TextSpans {
		spans[i] = map[string]any{
			"start_char":    s.StartChar,
			"end_char":      s.EndChar,
			"original_text": s.OriginalText,
		}
	}
	p := map[string]any{
		FieldChunkID:         c.ChunkID,
		FieldPageID:          page.PageID,
		FieldContent:         c.Content,
		FieldOriginalContent: c.OriginalContent,
		FieldContextPath:     stringsToAny(c.ContextPath),
		FieldChunkType:       string(c.ChunkType),
		FieldTokenCount:      c.TokenCount,
		FieldPosition:        c.PositionInPage,
		FieldHeadingContext:  c.HeadingContext,
		FieldTextSpans:       spans,
		FieldMetadata:        copyMap(c.Metadata),
		FieldSpaceKey:        page.SpaceKey,
		FieldPageTitle:       page.Title,
		FieldPageURL:         page.URL,
		FieldLabels:          stringsToAny(page.Labels),
		FieldVersion:         page.Version,
		FieldUpdatedBy:       page.UpdatedBy,
		FieldParentID:        page.ParentID,
		FieldAncestors:       stringsToAny(page.Ancestors),
		FieldIndexedAt:       indexedAt.UTC().Format(timeLayout),
	}
	if !page.UpdatedAt.IsZero() {
		p[FieldUpdatedAt] = page.UpdatedAt.UTC().Format(timeLayout)
	}
	return p
}

// DecodePage rebuilds the denormalized page view from a payload. Missing
// fields take their zero value.
func DecodePage(p map[string]any) domain.Page {
	page := domain.Page{
		PageID:    str(p, FieldPageID),
		SpaceKey:  str(p, FieldSpaceKey),
		Title:     str(p, FieldPageTitle),
		URL:       str(p, FieldPageURL),
		Labels:    strs(p, FieldLabels),
		Version:   num(p, FieldVersion),
		UpdatedBy: str(p, FieldUpdatedBy),
		ParentID:  str(p, FieldParentID),
		Ancestors: strs(p, FieldAncestors),
	}
	if t, err := time.Parse(timeLayout, str(p, FieldUpdatedAt)); err == nil {
		page.UpdatedAt = t
	}
	return page
}

// DecodeChunk rebuilds a chunk from a payload. An unknown chunk type falls
// back to prose.
func DecodeChunk(p map[string]any) domain.Chunk {
	c := domain.Chunk{
		ChunkID:         str(p, FieldChunkID),
		PageID:          str(p, FieldPageID),
		Content:         str(p, FieldContent),
		OriginalContent: str(p, FieldOriginalContent),
		ContextPath:     strs(p, FieldContextPath),
		ChunkType:       domain.ParseChunkType(str(p, FieldChunkType)),
		TokenCount:      num(p, FieldTokenCount),
		PositionInPage:  num(p, FieldPosition),
		HeadingContext:  str(p, FieldHeadingContext),
		Metadata:        map[string]any{},
	}
	if c.OriginalContent == "" {
		c.OriginalContent = c.Content
	}
	if m, ok := p[FieldMetadata].(map[string]any); ok {
		c.Metadata = m
	}
	if list, ok := p[FieldTextSpans].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			c.TextSpans = append(c.TextSpans, domain.TextSpan{
				StartChar:    num(m, "start_char"),
				EndChar:      num(m, "end_char"),
				OriginalText: str(m, "original_text"),
			})
		}
	}
	return c
}

func str(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func num(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func strs(p map[string]any, key string) []string {
	list, ok := p[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// toValue converts a Go value into a Qdrant payload value. Maps and slices are
// converted recursively; unsupported types are stringified.
func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case []string:
		return toValue(stringsToAny(tv))
	case []any:
		vals := make([]*pb.Value, len(tv))
		for i, item := range tv {
			vals[i] = toValue(item)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case map[string]any:
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: toPayload(tv)}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func toPayload(m map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(m))
	for k, v := range m {
		out[k] = toValue(v)
	}
	return out
}

// fromValue converts a Qdrant payload value back into plain Go values:
// string, bool, int64, float64, []any, map[string]any or nil.
func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, item := range vals {
			out[i] = fromValue(item)
		}
		return out
	case *pb.Value_StructValue:
		return fromPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}

func fromPayload(m map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
