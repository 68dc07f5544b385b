package semantic

import (
	"context"
	"fmt"

	"github.com/WessleyAI/docsearch/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
)

// UpsertChunks replaces every point of page with chunks and returns the number
// inserted. Delete and insert run under a per-page lock so two re-indexes of
// the same page cannot interleave.
func (v *VectorStore) UpsertChunks(ctx context.Context, page domain.Page, chunks []domain.ChunkWithEmbedding) (int, error) {
	if err := domain.ValidatePage(page); err != nil {
		return 0, err
	}
	points := make([]*pb.PointStruct, len(chunks))
	indexedAt := v.now()
	for i, c := range chunks {
		if v.dims > 0 && len(c.Embedding) != v.dims {
			return 0, fmt.Errorf("semantic: chunk %s has %d dims, want %d: %w", c.ChunkID, len(c.Embedding), v.dims, domain.ErrDimensionMismatch)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(c.ChunkID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: toPayload(ChunkPayload(page, c.Chunk, indexedAt)),
		}
	}

	unlock, err := v.locker.Lock(ctx, "page:"+page.PageID)
	if err != nil {
		return 0, fmt.Errorf("semantic: lock page %s: %w", page.PageID, err)
	}
	defer unlock()

	if err := v.deleteByFilter(ctx, pageFilter(page.PageID)); err != nil {
		return 0, fmt.Errorf("semantic: replace page %s: %w", page.PageID, err)
	}
	if len(points) == 0 {
		return 0, nil
	}

	wait := true
	_, err = v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: upsert %d points for page %s: %w", len(points), page.PageID, err)
	}
	v.logger.Debug("upserted page", "page_id", page.PageID, "chunks", len(points), "version", page.Version)
	return len(points), nil
}

// DeletePageChunks removes every point of a page and returns how many there
// were. A page with no points yields 0.
func (v *VectorStore) DeletePageChunks(ctx context.Context, pageID string) (int, error) {
	unlock, err := v.locker.Lock(ctx, "page:"+pageID)
	if err != nil {
		return 0, fmt.Errorf("semantic: lock page %s: %w", pageID, err)
	}
	defer unlock()

	n, err := v.countAndDelete(ctx, pageFilter(pageID))
	if err != nil {
		return 0, fmt.Errorf("semantic: delete page %s: %w", pageID, err)
	}
	return n, nil
}

// DeleteBySpace removes every point of a space and returns how many there were.
func (v *VectorStore) DeleteBySpace(ctx context.Context, spaceKey string) (int, error) {
	n, err := v.countAndDelete(ctx, spaceFilter(spaceKey))
	if err != nil {
		return 0, fmt.Errorf("semantic: delete space %s: %w", spaceKey, err)
	}
	return n, nil
}

func (v *VectorStore) countAndDelete(ctx context.Context, filter *pb.Filter) (int, error) {
	n, err := v.count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := v.deleteByFilter(ctx, filter); err != nil {
		return 0, err
	}
	return n, nil
}

func (v *VectorStore) count(ctx context.Context, filter *pb.Filter) (int, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (v *VectorStore) deleteByFilter(ctx context.Context, filter *pb.Filter) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Search performs cosine k-NN search restricted by params. Results are ordered
// by descending score and none scores below ScoreThreshold.
func (v *VectorStore) Search(ctx context.Context, vector []float32, params SearchParams) ([]Hit, error) {
	if v.dims > 0 && len(vector) != v.dims {
		return nil, fmt.Errorf("semantic: query has %d dims, want %d: %w", len(vector), v.dims, domain.ErrDimensionMismatch)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = domain.DefaultSearchConfig().TopK
	}
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Filter:         buildFilter(params),
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if params.ScoreThreshold > 0 {
		threshold := params.ScoreThreshold
		req.ScoreThreshold = &threshold
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		if params.ScoreThreshold > 0 && r.GetScore() < params.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{
			ID:      pointIDString(r.GetId()),
			Score:   r.GetScore(),
			Payload: fromPayload(r.GetPayload()),
		})
	}
	return hits, nil
}

// GetPageChunks returns every point of a page in no particular order.
func (v *VectorStore) GetPageChunks(ctx context.Context, pageID string) ([]Point, error) {
	var out []Point
	err := v.scroll(ctx, pageFilter(pageID), nil, func(p *pb.RetrievedPoint) bool {
		out = append(out, Point{ID: pointIDString(p.GetId()), Payload: fromPayload(p.GetPayload())})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: get page %s: %w", pageID, err)
	}
	return out, nil
}

// GetPageVersion returns the stored version of a page, or nil when the page
// has no points.
func (v *VectorStore) GetPageVersion(ctx context.Context, pageID string) (*int, error) {
	var version *int
	err := v.scroll(ctx, pageFilter(pageID), []string{FieldVersion}, func(p *pb.RetrievedPoint) bool {
		n := num(fromPayload(p.GetPayload()), FieldVersion)
		version = &n
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: page version %s: %w", pageID, err)
	}
	return version, nil
}

// ListSpaces aggregates chunk and page counts per space, ordered by space key.
func (v *VectorStore) ListSpaces(ctx context.Context) ([]domain.SpaceSummary, error) {
	chunks := map[string]int{}
	pages := map[string]map[string]struct{}{}
	err := v.scroll(ctx, nil, []string{FieldSpaceKey, FieldPageID}, func(p *pb.RetrievedPoint) bool {
		payload := fromPayload(p.GetPayload())
		space := str(payload, FieldSpaceKey)
		chunks[space]++
		if pages[space] == nil {
			pages[space] = map[string]struct{}{}
		}
		pages[space][str(payload, FieldPageID)] = struct{}{}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: list spaces: %w", err)
	}
	out := make([]domain.SpaceSummary, 0, len(chunks))
	for _, space := range sortedKeys(chunks) {
		out = append(out, domain.SpaceSummary{
			SpaceKey:   space,
			ChunkCount: chunks[space],
			PageCount:  len(pages[space]),
		})
	}
	return out, nil
}

// scroll pages through points matching filter, calling fn for each until it
// returns false or the points run out. fields restricts the returned payload;
// nil returns all of it.
func (v *VectorStore) scroll(ctx context.Context, filter *pb.Filter, fields []string, fn func(*pb.RetrievedPoint) bool) error {
	selector := &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
	if len(fields) > 0 {
		selector = &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: fields},
		}}
	}
	limit := uint32(scrollPageSize)
	var offset *pb.PointId
	for {
		resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: v.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    selector,
		})
		if err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			if !fn(p) {
				return nil
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			return nil
		}
	}
}

func pointIDString(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}
