// Package vectorindex is the pluggable nearest-neighbor capability.
// Callers depend only on the Index interface; the wire protocol to the
// underlying store is not part of the contract.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ExternalID string
	DocID      string
	Distance   float64
	Metadata   map[string]string
}

// Index is the capability every caller (classification, review, check)
// depends on. insert is idempotent by doc_id: re-insertion replaces.
type Index interface {
	Insert(ctx context.Context, docID string, vector []float32, metadata map[string]string) (externalID string, err error)
	Search(ctx context.Context, query []float32, topK int, filter map[string]string) ([]Hit, error)
	Delete(ctx context.Context, docID string) error
	Flush(ctx context.Context) error
}

// QdrantIndex implements Index over the Qdrant gRPC client. The distance
// metric is fixed to L2 (Euclid) at collection creation: these embeddings
// are not pre-normalized, so cosine would conflate magnitude with
// similarity.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
}

// New dials addr and wraps the named collection. Dial errors surface
// immediately since the vector index connection is a process-wide
// singleton — there is no deferred-connect fallback.
func New(addr, collection string, dim int) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial %s: %w", addr, err)
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dim:         dim,
	}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error { return q.conn.Close() }

// EnsureCollection creates the collection with the configured dimension and
// L2 distance if it does not already exist. The dimension is fixed per
// active ModelVersion — callers verify their embedding model's
// dimension matches q.dim before calling Insert/Search.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorindex: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dim),
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %s: %w", q.collection, err)
	}
	return nil
}

// pointID derives a deterministic point id from doc_id so re-insertion
// replaces rather than duplicates.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

// Insert upserts one vector keyed by doc_id.
func (q *QdrantIndex) Insert(ctx context.Context, docID string, vector []float32, metadata map[string]string) (string, error) {
	id := pointID(docID)
	payload := make(map[string]*pb.Value, len(metadata)+1)
	payload["doc_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: docID}}
	for k, v := range metadata {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vectorindex: insert doc %s: %w", docID, err)
	}
	return id, nil
}

// Search runs k-NN search, returning hits in the order Qdrant reports them.
// The collection is created with Euclid, for which Qdrant's reported score
// is the L2 distance itself (lower is closer, closest first); it is copied
// into Hit.Distance unchanged.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, topK int, filter map[string]string) ([]Hit, error) {
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, &pb.Condition{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{Key: k, Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}}},
				},
			})
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		meta := make(map[string]string, len(r.GetPayload()))
		docID := ""
		for k, v := range r.GetPayload() {
			s := v.GetStringValue()
			if k == "doc_id" {
				docID = s
				continue
			}
			meta[k] = s
		}
		hits[i] = Hit{
			ExternalID: r.GetId().GetUuid(),
			DocID:      docID,
			Distance:   float64(r.GetScore()),
			Metadata:   meta,
		}
	}
	return hits, nil
}

// Delete removes every point matching doc_id.
func (q *QdrantIndex) Delete(ctx context.Context, docID string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{
					{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
						Key: "doc_id", Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: docID}},
					}}},
				}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete doc %s: %w", docID, err)
	}
	return nil
}

// Flush is a no-op for Qdrant: Upsert already waits for durability when
// Wait is set, so there is no separate flush RPC to call.
func (q *QdrantIndex) Flush(_ context.Context) error { return nil }
