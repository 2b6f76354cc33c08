// Package qdrant implements vector.Store on the Qdrant gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/vector"
)

// IDKey is the payload key holding the caller's point id.
const IDKey = "id"

// idNamespace seeds the UUIDv5 mapping of string ids; Qdrant only accepts
// UUIDs or unsigned integers as point ids.
var idNamespace = uuid.MustParse("6f1c3f5e-2b8a-4d6e-9a51-7c0f4e8b2d13")

type Store struct {
	conn        *grpc.ClientConn
	client      pb.PointsClient
	collections pb.CollectionsClient
}

// New connects to Qdrant at addr (host:port of the gRPC endpoint).
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		client:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// PointID maps a caller id to the UUID stored in Qdrant. UUID ids pass through.
func PointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(idNamespace, []byte(id)).String()
}

// EnsureCollection implements vector.Store.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim uint64) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return errors.New(errors.CodeVectorStore, "check collection", err).WithContext("collection", name).WithRecoverable(true)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dim,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return errors.New(errors.CodeVectorStore, "create collection", err).WithContext("collection", name)
	}
	return nil
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, collection string, points []vector.Point) error {
	qPoints := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = normalize(v)
		}
		payload[IDKey] = p.ID

		values, err := pb.TryValueMap(payload)
		if err != nil {
			return errors.New(errors.CodeInvalidInput, "encode payload", err).WithContext("id", p.ID)
		}
		qPoints = append(qPoints, &pb.PointStruct{
			Id:      pb.NewIDUUID(PointID(p.ID)),
			Vectors: pb.NewVectorsDense(p.Vector),
			Payload: values,
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qPoints,
	})
	if err != nil {
		return errors.New(errors.CodeVectorStore, "upsert points", err).WithContext("collection", collection).WithRecoverable(true)
	}
	return nil
}

// Search implements vector.Store.
func (s *Store) Search(ctx context.Context, collection string, vec []float32, opts vector.SearchOptions) ([]vector.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(opts.Limit),
		Filter:         toFilter(opts.Filter),
		WithPayload:    pb.NewWithPayload(true),
	}
	if opts.ScoreThreshold > 0 {
		threshold := opts.ScoreThreshold
		req.ScoreThreshold = &threshold
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	resp, err := s.client.Search(ctx, req)
	if err != nil {
		return nil, errors.New(errors.CodeVectorStore, "search points", err).WithContext("collection", collection).WithRecoverable(true)
	}

	results := make([]vector.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := toPoint(r.GetId(), r.GetPayload(), r.GetVectors())
		results = append(results, vector.SearchResult{ID: p.ID, Score: r.GetScore(), Point: p})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Get implements vector.Store.
func (s *Store) Get(ctx context.Context, collection string, ids []string) ([]vector.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pids := make([]*pb.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, pb.NewIDUUID(PointID(id)))
	}
	resp, err := s.client.Get(ctx, &pb.GetPoints{
		CollectionName: collection,
		Ids:            pids,
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, errors.New(errors.CodeVectorStore, "get points", err).WithContext("collection", collection).WithRecoverable(true)
	}
	out := make([]vector.Point, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, toPoint(r.GetId(), r.GetPayload(), r.GetVectors()))
	}
	return out, nil
}

// Scroll implements vector.Store, following page offsets until limit points
// are collected. A limit <= 0 reads the whole collection.
func (s *Store) Scroll(ctx context.Context, collection string, filter vector.Filter, limit int) ([]vector.Point, error) {
	const pageSize = 256
	var (
		out    []vector.Point
		offset *pb.PointId
	)
	for {
		page := uint32(pageSize)
		if limit > 0 && limit-len(out) < pageSize {
			page = uint32(limit - len(out))
		}
		resp, err := s.client.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: collection,
			Filter:         toFilter(filter),
			Offset:         offset,
			Limit:          &page,
			WithPayload:    pb.NewWithPayload(true),
		})
		if err != nil {
			return nil, errors.New(errors.CodeVectorStore, "scroll points", err).WithContext("collection", collection).WithRecoverable(true)
		}
		for _, r := range resp.GetResult() {
			out = append(out, toPoint(r.GetId(), r.GetPayload(), r.GetVectors()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || (limit > 0 && len(out) >= limit) {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func toFilter(f vector.Filter) *pb.Filter {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]*pb.Condition, 0, len(keys))
	for _, k := range keys {
		switch v := f[k].(type) {
		case bool:
			must = append(must, pb.NewMatchBool(k, v))
		case int:
			must = append(must, pb.NewMatchInt(k, int64(v)))
		case int64:
			must = append(must, pb.NewMatchInt(k, v))
		default:
			must = append(must, pb.NewMatchKeyword(k, fmt.Sprint(v)))
		}
	}
	return &pb.Filter{Must: must}
}

func toPoint(id *pb.PointId, payload map[string]*pb.Value, vectors *pb.VectorsOutput) vector.Point {
	p := vector.Point{Payload: make(map[string]any, len(payload))}
	for k, v := range payload {
		p.Payload[k] = fromValue(v)
	}
	if orig, ok := p.Payload[IDKey].(string); ok && orig != "" {
		p.ID = orig
	} else if id.GetUuid() != "" {
		p.ID = id.GetUuid()
	} else {
		p.ID = fmt.Sprintf("%d", id.GetNum())
	}
	if data := vectors.GetVector().GetData(); len(data) > 0 {
		p.Vector = data
	}
	return p
}

func normalize(v any) any {
	switch val := v.(type) {
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out
	}
	return v
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromValue(item)
		}
		return out
	case *pb.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = fromValue(item)
		}
		return out
	}
	return nil
}

var _ vector.Store = (*Store)(nil)
