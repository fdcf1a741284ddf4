// Package semantic owns every call to the Qdrant vector store. Callers see
// only the typed Match and VectorRecord structs.
package semantic

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Options configures the connection to Qdrant.
type Options struct {
	Addr       string // gRPC address, host:port
	APIKey     string
	TLS        bool
	Collection string
	Namespace  string // payload partition inside the collection
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	namespace   string
}

// New creates a VectorStore connected to Qdrant. The connection is lazy: the
// first RPC is what proves the server is reachable.
func New(opts Options) (*VectorStore, error) {
	transport := insecure.NewCredentials()
	if opts.TLS {
		transport = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(transport)}
	if opts.APIKey != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(apiKeyCreds{key: opts.APIKey, secure: opts.TLS}))
	}

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", opts.Addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  opts.Collection,
		namespace:   opts.Namespace,
	}, nil
}

// NewWithClients builds a VectorStore over pre-built clients. Used in tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection, namespace string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection, namespace: namespace}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Collection returns the configured collection name.
func (v *VectorStore) Collection() string { return v.collection }

// Exists reports whether the collection is present.
func (v *VectorStore) Exists(ctx context.Context) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return true, nil
		}
	}
	return false, nil
}

// Dimension returns the vector size the collection was created with.
func (v *VectorStore) Dimension(ctx context.Context) (int, error) {
	info, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: v.collection})
	if err != nil {
		return 0, fmt.Errorf("semantic: get collection %s: %w", v.collection, err)
	}
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("semantic: collection %s has no single-vector config", v.collection)
	}
	return int(params.GetSize()), nil
}

// Create creates the collection with cosine distance and a keyword index on
// the namespace payload field.
func (v *VectorStore) Create(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: create collection %s: invalid dimension %d", v.collection, dims)
	}
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
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

	wait := true
	_, err = v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: v.collection,
		Wait:           &wait,
		FieldName:      payloadNamespace,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("semantic: index %s.%s: %w", v.collection, payloadNamespace, err)
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

// PointID maps a catalog id to the Qdrant point id used for it. The mapping
// is deterministic per namespace, so re-upserting a record overwrites it.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+id)).String()
}

// Upsert stores records in a single batch and waits for the write to apply.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(v.namespace, r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				payloadBugID:       stringValue(r.ID),
				payloadTitle:       stringValue(r.Title),
				payloadDescription: stringValue(r.Description),
				payloadNamespace:   stringValue(v.namespace),
			},
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Query returns up to topK nearest matches inside the configured namespace,
// best first.
func (v *VectorStore) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	if topK < 1 {
		topK = 1
	}
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if v.namespace != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{fieldMatch(payloadNamespace, v.namespace)}}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	matches := make([]Match, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		m := Match{Score: widenScore(r.GetScore())}
		payload := r.GetPayload()
		m.ID = payload[payloadBugID].GetStringValue()
		if m.ID == "" {
			m.ID = r.GetId().GetUuid()
		}
		m.Title = payload[payloadTitle].GetStringValue()
		m.Description = payload[payloadDescription].GetStringValue()
		matches[i] = m
	}
	return matches, nil
}

// widenScore converts a float32 score to the float64 with the same shortest
// decimal form, so 0.65 stays 0.65 instead of 0.6499999761581421.
func widenScore(s float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(s), 'g', -1, 32), 64)
	if err != nil {
		return float64(s)
	}
	return f
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// apiKeyCreds attaches the Qdrant api-key header to every RPC.
type apiKeyCreds struct {
	key    string
	secure bool
}

func (c apiKeyCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": c.key}, nil
}

func (c apiKeyCreds) RequireTransportSecurity() bool { return c.secure }
