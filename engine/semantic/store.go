// Package semantic owns every Qdrant operation: collection setup, per-page
// chunk replacement, filtered similarity search and reporting.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/lock"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// scrollPageSize bounds each scroll request.
const scrollPageSize = 256

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
	locker      lock.Locker
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithDimensions sets the expected vector size. EnsureCollection sets it too.
func WithDimensions(d int) Option {
	return func(v *VectorStore) { v.dims = d }
}

// WithLocker replaces the in-process per-page lock, e.g. with a Redis lock
// shared by several indexers.
func WithLocker(l lock.Locker) Option {
	return func(v *VectorStore) {
		if l != nil {
			v.locker = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *VectorStore) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock overrides the indexed_at clock.
func WithClock(now func() time.Time) Option {
	return func(v *VectorStore) { v.now = now }
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr, collection string, opts ...Option) (*VectorStore, error) {
	if addr == "" || collection == "" {
		return nil, fmt.Errorf("semantic: address and collection are required: %w", domain.ErrInvalidConfig)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	v := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, opts...)
	v.conn = conn
	return v, nil
}

// NewWithClients creates a VectorStore over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, opts ...Option) *VectorStore {
	v := &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		locker:      lock.NewKeyedMutex(),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Collection returns the collection name.
func (v *VectorStore) Collection() string { return v.collection }

// Dimensions returns the expected vector size, 0 when unknown.
func (v *VectorStore) Dimensions() int { return v.dims }

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection and its payload indexes if they
// don't exist. An existing collection with a different vector size is a
// configuration error.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: vector size %d: %w", dims, domain.ErrInvalidConfig)
	}
	v.dims = dims

	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return v.checkDimensions(ctx, dims)
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}

	fieldType := pb.FieldType_FieldTypeKeyword
	wait := true
	for _, field := range indexedFields {
		_, err := v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: v.collection,
			Wait:           &wait,
			FieldName:      field,
			FieldType:      &fieldType,
		})
		if err != nil {
			return fmt.Errorf("semantic: index field %s: %w", field, err)
		}
	}
	v.logger.Info("created collection", "collection", v.collection, "dims", dims)
	return nil
}

func (v *VectorStore) checkDimensions(ctx context.Context, dims int) error {
	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		return fmt.Errorf("semantic: get collection %s: %w", v.collection, err)
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(dims) {
		return fmt.Errorf("semantic: collection %s has size %d, want %d: %w", v.collection, size, dims, domain.ErrDimensionMismatch)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// GetStats reports the collection's point count and status.
func (v *VectorStore) GetStats(ctx context.Context) (domain.Stats, error) {
	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("semantic: get collection %s: %w", v.collection, err)
	}
	return domain.Stats{
		PointsCount: info.GetResult().GetPointsCount(),
		Status:      strings.ToLower(info.GetResult().GetStatus().String()),
	}, nil
}
