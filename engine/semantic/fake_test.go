package semantic

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// fakeQdrant is an in-memory stand-in for the points and collections services.
// It evaluates keyword filters and ranks by cosine similarity.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	size    uint64
	points  map[string]*pb.PointStruct
	order   []string
	indexes []string

	upserts int
	deletes int
	counts  int

	lastSearch *pb.SearchPoints
	failWith   error
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{points: map[string]*pb.PointStruct{}}
}

func (f *fakeQdrant) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.upserts++
	for _, p := range in.GetPoints() {
		id := p.GetId().GetUuid()
		if _, ok := f.points[id]; !ok {
			f.order = append(f.order, id)
		}
		f.points[id] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakeQdrant) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.deletes++
	filter := in.GetPoints().GetFilter()
	kept := f.order[:0]
	for _, id := range f.order {
		if matches(f.points[id].GetPayload(), filter) {
			delete(f.points, id)
			continue
		}
		kept = append(kept, id)
	}
	f.order = kept
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakeQdrant) Count(_ context.Context, in *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.counts++
	var n uint64
	for _, id := range f.order {
		if matches(f.points[id].GetPayload(), in.GetFilter()) {
			n++
		}
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: n}}, nil
}

func (f *fakeQdrant) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastSearch = in
	var out []*pb.ScoredPoint
	for _, id := range f.order {
		p := f.points[id]
		if !matches(p.GetPayload(), in.GetFilter()) {
			continue
		}
		score := cosine(in.GetVector(), p.GetVectors().GetVector().GetData())
		if in.ScoreThreshold != nil && score < in.GetScoreThreshold() {
			continue
		}
		out = append(out, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if uint64(len(out)) > in.GetLimit() {
		out = out[:in.GetLimit()]
	}
	return &pb.SearchResponse{Result: out}, nil
}

func (f *fakeQdrant) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var ids []string
	for _, id := range f.order {
		if matches(f.points[id].GetPayload(), in.GetFilter()) {
			ids = append(ids, id)
		}
	}
	start := 0
	if off := in.GetOffset().GetUuid(); off != "" {
		for i, id := range ids {
			if id == off {
				start = i
				break
			}
		}
	}
	end := start + int(in.GetLimit())
	resp := &pb.ScrollResponse{}
	if end < len(ids) {
		resp.NextPageOffset = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: ids[end]}}
	} else {
		end = len(ids)
	}
	for _, id := range ids[start:end] {
		p := f.points[id]
		resp.Result = append(resp.Result, &pb.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
	}
	return resp, nil
}

func (f *fakeQdrant) CreateFieldIndex(_ context.Context, in *pb.CreateFieldIndexCollection, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes = append(f.indexes, in.GetFieldName())
	return &pb.PointsOperationResponse{}, nil
}

// fakeCollections adapts fakeQdrant to collectionsAPI.
type fakeCollections struct {
	f       *fakeQdrant
	listErr error
}

func (c fakeCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	resp := &pb.ListCollectionsResponse{}
	if c.f.exists {
		resp.Collections = []*pb.CollectionDescription{{Name: "docs"}}
	}
	return resp, nil
}

func (c fakeCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if !c.f.exists {
		return nil, errors.New("collection not found")
	}
	n := uint64(len(c.f.order))
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{
		Status:      pb.CollectionStatus_Green,
		PointsCount: &n,
		Config: &pb.CollectionConfig{Params: &pb.CollectionParams{
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: c.f.size, Distance: pb.Distance_Cosine},
			}},
		}},
	}}, nil
}

func (c fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.exists = true
	c.f.size = in.GetVectorsConfig().GetParams().GetSize()
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (c fakeCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.exists = false
	c.f.points = map[string]*pb.PointStruct{}
	c.f.order = nil
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func matches(payload map[string]*pb.Value, filter *pb.Filter) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		v := payload[field.GetKey()]
		var want []string
		switch m := field.GetMatch().GetMatchValue().(type) {
		case *pb.Match_Keyword:
			want = []string{m.Keyword}
		case *pb.Match_Keywords:
			want = m.Keywords.GetStrings()
		}
		if !valueIn(v, want) {
			return false
		}
	}
	return true
}

func valueIn(v *pb.Value, want []string) bool {
	var have []string
	if list := v.GetListValue(); list != nil {
		for _, item := range list.GetValues() {
			have = append(have, item.GetStringValue())
		}
	} else {
		have = []string{v.GetStringValue()}
	}
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
