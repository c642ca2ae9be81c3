package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// DefaultQdrantEndpoint is Qdrant's gRPC port on localhost.
const DefaultQdrantEndpoint = "localhost:6334"

// payloadChunkID keeps the caller's id; Qdrant point ids must be UUIDs.
const payloadChunkID = "chunk_id"

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Endpoint string
	APIKey   string
}

// QdrantStore is a VectorStore backed by a Qdrant server.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	logger      *slog.Logger

	mu     sync.RWMutex
	dims   map[string]int
	closed bool
}

var _ ports.VectorStore = (*QdrantStore)(nil)

// NewQdrantStore dials lazily; the first RPC establishes the connection.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultQdrantEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, mcberrors.Transport("could not connect to qdrant", err)
	}
	return newQdrantStore(conn, qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), logger), nil
}

func newQdrantStore(conn *grpc.ClientConn, points qdrant.PointsClient, cols qdrant.CollectionsClient, logger *slog.Logger) *QdrantStore {
	return &QdrantStore{conn: conn, points: points, collections: cols, logger: logger, dims: make(map[string]int)}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// pointID derives a stable UUID from a chunk id.
func pointID(chunkID string) *qdrant.PointId {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID))
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: u.String()}}
}

func classifyGRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Canceled:
		return mcberrors.Cancelled(err)
	case codes.DeadlineExceeded:
		return mcberrors.New(mcberrors.ErrCodeTimeout, "qdrant "+op+" timed out", err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return mcberrors.Transport("qdrant "+op+" failed", err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return mcberrors.Unauthorized("qdrant rejected credentials", err)
	case codes.InvalidArgument:
		return mcberrors.New(mcberrors.ErrCodeInvalidArgument, "qdrant "+op+": "+status.Convert(err).Message(), err)
	default:
		return mcberrors.Internal("qdrant "+op+" failed", err)
	}
}

func (s *QdrantStore) checkOpen() error {
	if s.closed {
		return errClosed("vector store")
	}
	return nil
}

// dimOf returns the collection's size, asking the server on a cache miss.
func (s *QdrantStore) dimOf(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	if err := s.checkOpen(); err != nil {
		s.mu.RUnlock()
		return 0, err
	}
	dim, ok := s.dims[name]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	info, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, mcberrors.CollectionNotFound(name)
		}
		return 0, classifyGRPC("get collection", err)
	}
	size := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if size == 0 {
		return 0, mcberrors.Internal(fmt.Sprintf("qdrant collection %q has no single vector config", name), nil)
	}
	s.mu.Lock()
	s.dims[name] = size
	s.mu.Unlock()
	return size, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if err := checkCollectionArgs(name, dim); err != nil {
		return err
	}
	existing, err := s.dimOf(ctx, name)
	if err == nil {
		if existing != dim {
			return mcberrors.DimensionMismatch(existing, dim)
		}
		return nil
	}
	if mcberrors.GetCode(err) != mcberrors.ErrCodeCollectionNotFound {
		return err
	}

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return classifyGRPC("create collection", err)
	}
	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	s.logger.Info("qdrant_collection_created", slog.String("collection", name), slog.Int("dimensions", dim))
	return nil
}

func toPayload(id string, md map[string]string) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(md)+1)
	for k, v := range md {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	payload[payloadChunkID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: id}}
	return payload
}

// fromPayload splits a payload back into the chunk id and string metadata.
func fromPayload(payload map[string]*qdrant.Value) (string, map[string]string) {
	md := make(map[string]string, len(payload))
	for k, v := range payload {
		if k == payloadChunkID {
			continue
		}
		md[k] = v.GetStringValue()
	}
	return payload[payloadChunkID].GetStringValue(), md
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error {
	dim, err := s.dimOf(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkRecords(records, dim); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: r.Vector}}},
			Payload: toPayload(r.ID, r.Metadata),
		})
	}
	_, err = s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	return classifyGRPC("upsert", err)
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: &qdrant.FieldCondition{
		Key:   key,
		Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
	}}}
}

// serverFilter pushes the exact-match part of f to Qdrant. Prefix and
// case-insensitive matches are applied client side.
func serverFilter(f domain.SearchFilter) *qdrant.Filter {
	if f.Branch == "" {
		return nil
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{keywordCondition(domain.MetaBranch, f.Branch)}}
}

func (s *QdrantStore) Search(ctx context.Context, collection string, query []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	dim, err := s.dimOf(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(query) != dim {
		return nil, mcberrors.DimensionMismatch(dim, len(query))
	}
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	limit := k
	if !filter.IsEmpty() {
		limit = k * 4
	}
	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         query,
		Limit:          uint64(limit),
		Filter:         serverFilter(filter),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, classifyGRPC("search", err)
	}
	results := make([]domain.SearchResult, 0, k)
	for _, hit := range resp.GetResult() {
		id, md := fromPayload(hit.GetPayload())
		if !filter.Match(md) {
			continue
		}
		// Qdrant reports cosine similarity in [-1,1].
		results = append(results, domain.ResultFromMetadata(id, (1+float64(hit.GetScore()))/2, md))
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *QdrantStore) DeleteByFile(ctx context.Context, collection, path string) (int, error) {
	if _, err := s.dimOf(ctx, collection); err != nil {
		return 0, err
	}
	f := &qdrant.Filter{Must: []*qdrant.Condition{keywordCondition(domain.MetaFilePath, path)}}
	n, err := s.count(ctx, collection, f)
	if err != nil || n == 0 {
		return 0, err
	}
	_, err = s.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           proto.Bool(true),
		Points:         &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: f}},
	})
	if err != nil {
		return 0, classifyGRPC("delete", err)
	}
	return n, nil
}

func (s *QdrantStore) GetByIDs(ctx context.Context, collection string, ids []string) ([]domain.VectorRecord, error) {
	if _, err := s.dimOf(ctx, collection); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.VectorRecord{}, nil
	}
	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	resp, err := s.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pids,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, classifyGRPC("get points", err)
	}
	byID := make(map[string]domain.VectorRecord, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		id, md := fromPayload(p.GetPayload())
		byID[id] = domain.VectorRecord{ID: id, Vector: p.GetVectors().GetVector().GetData(), Metadata: md}
	}
	out := make([]domain.VectorRecord, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// scroll pages through every point, stopping after limit when limit > 0.
func (s *QdrantStore) scroll(ctx context.Context, collection string, limit int, withVectors bool, visit func(*qdrant.RetrievedPoint)) error {
	const page = 256
	var offset *qdrant.PointId
	seen := 0
	for {
		req := &qdrant.ScrollPoints{
			CollectionName: collection,
			Limit:          proto.Uint32(page),
			Offset:         offset,
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: withVectors}},
		}
		resp, err := s.points.Scroll(ctx, req)
		if err != nil {
			return classifyGRPC("scroll", err)
		}
		for _, p := range resp.GetResult() {
			visit(p)
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return nil
		}
	}
}

func (s *QdrantStore) ListVectors(ctx context.Context, collection string, limit int) ([]domain.VectorRecord, error) {
	if _, err := s.dimOf(ctx, collection); err != nil {
		return nil, err
	}
	var out []domain.VectorRecord
	err := s.scroll(ctx, collection, 0, true, func(p *qdrant.RetrievedPoint) {
		id, md := fromPayload(p.GetPayload())
		out = append(out, domain.VectorRecord{ID: id, Vector: p.GetVectors().GetVector().GetData(), Metadata: md})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *QdrantStore) ListFilePaths(ctx context.Context, collection string, limit int) ([]string, error) {
	if _, err := s.dimOf(ctx, collection); err != nil {
		return nil, err
	}
	recs := make(map[string]domain.VectorRecord)
	err := s.scroll(ctx, collection, 0, false, func(p *qdrant.RetrievedPoint) {
		id, md := fromPayload(p.GetPayload())
		recs[id] = domain.VectorRecord{ID: id, Metadata: md}
	})
	if err != nil {
		return nil, err
	}
	return filePaths(recs, limit), nil
}

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := s.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, classifyGRPC("collection exists", err)
	}
	return resp.GetResult().GetExists(), nil
}

func (s *QdrantStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.dims, name)
	s.mu.Unlock()
	_, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: name})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return classifyGRPC("drop collection", err)
}

func (s *QdrantStore) count(ctx context.Context, collection string, f *qdrant.Filter) (int, error) {
	resp, err := s.points.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         f,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		return 0, classifyGRPC("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimOf(ctx, collection); err != nil {
		return 0, err
	}
	return s.count(ctx, collection, nil)
}

// Flush is a no-op: upserts wait for the server to apply them.
func (s *QdrantStore) Flush(context.Context, string) error { return nil }

func (s *QdrantStore) ProviderName() string { return ProviderQdrant }

func (s *QdrantStore) Health(ctx context.Context) error {
	s.mu.RLock()
	err := s.checkOpen()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	_, err = s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	return classifyGRPC("health", err)
}

func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
