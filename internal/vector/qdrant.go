package vector

import (
	"context"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// payloadContentKey holds the model summary inside the point payload,
// beside the flat metadata keys.
const payloadContentKey = "content"

// QdrantRepository implements Repository on a Qdrant gRPC endpoint.
type QdrantRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

var _ Repository = (*QdrantRepository)(nil)

// NewQdrant dials Qdrant and returns a repository bound to collection.
func NewQdrant(ctx context.Context, host string, port int, collection string) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the model collection with cosine distance if it
// does not exist yet.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	_, err := r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(Dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.AlreadyExists:
		return nil
	case strings.Contains(err.Error(), "already exists"):
		return nil
	default:
		return fmt.Errorf("create collection %s: %w", r.collection, err)
	}
}

// toPoint converts a Document into the wire point, folding Content and
// Metadata into one flat payload.
func toPoint(d Document) *pb.PointStruct {
	payload := make(map[string]*pb.Value, len(d.Metadata)+1)
	payload[payloadContentKey] = stringValue(d.Content)
	for k, v := range d.Metadata {
		payload[k] = stringValue(v)
	}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
		Payload: payload,
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func (r *QdrantRepository) Upsert(ctx context.Context, docs []Document) error {
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = toPoint(d)
	}
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// fromScored splits a scored point's payload back into Content and
// Metadata.
func fromScored(pt *pb.ScoredPoint) SearchResult {
	res := SearchResult{
		ID:       pt.Id.GetUuid(),
		Score:    pt.Score,
		Metadata: make(map[string]string, len(pt.Payload)),
	}
	for k, v := range pt.Payload {
		if k == payloadContentKey {
			res.Content = v.GetStringValue()
			continue
		}
		res.Metadata[k] = v.GetStringValue()
	}
	return res
}

func (r *QdrantRepository) Search(ctx context.Context, vec []float32, topK int) ([]SearchResult, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.collection, err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = fromScored(pt)
	}
	return results, nil
}

func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}
