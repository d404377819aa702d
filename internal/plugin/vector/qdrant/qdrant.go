package qdrant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/config"
	registrymigrate "github.com/chirino/coaching-service/internal/registry/migrate"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	collections := pb.NewCollectionsClient(conn)
	name := collectionName(cfg)
	if _, err := collections.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}

	_, err = collections.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(cfg.EmbeddingDimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}

	// Every query filters on user_id.
	wait := true
	_, err = pb.NewPointsClient(conn).CreateFieldIndex(migrateCtx, &pb.CreateFieldIndexCollection{
		CollectionName: name,
		Wait:           &wait,
		FieldName:      "user_id",
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: index user_id: %w", err)
	}
	log.Info("Created Qdrant collection", "name", name, "dimension", cfg.EmbeddingDimensions)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 300, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		points:     pb.NewPointsClient(conn),
		conn:       conn,
		collection: collectionName(cfg),
	}, nil
}

// Store is a VectorStore backed by a single Qdrant collection. Users are
// separated by the user_id payload field.
type Store struct {
	points     pb.PointsClient
	conn       *grpc.ClientConn
	collection string
}

func (s *Store) Name() string { return "qdrant" }

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Insert(ctx context.Context, id uuid.UUID, vector []float32, meta registryvector.Metadata) error {
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				"user_id":    stringValue(meta.UserID),
				"session_id": stringValue(meta.SessionID.String()),
				"turn_id":    stringValue(meta.TurnID.String()),
				"role":       stringValue(meta.Role),
				"created_at": stringValue(meta.CreatedAt.UTC().Format(time.RFC3339Nano)),
			},
		}},
	})
	return err
}

func (s *Store) Nearest(ctx context.Context, vector []float32, k int, filter registryvector.Filter) ([]registryvector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: []string{"turn_id"}},
		}},
		Filter: searchFilter(filter),
	})
	if err != nil {
		return nil, err
	}

	hits := make([]registryvector.Hit, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, err := uuid.Parse(pt.GetId().GetUuid())
		if err != nil {
			log.Warn("Skipping qdrant point with non-uuid id", "id", pt.GetId())
			continue
		}
		h := registryvector.Hit{ID: id, Score: float64(pt.GetScore())}
		if v, ok := pt.GetPayload()["turn_id"]; ok {
			h.TurnID, _ = uuid.Parse(v.GetStringValue())
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	filter := userFilter(userID)
	filter.Must = append(filter.Must, &pb.Condition{
		ConditionOneOf: &pb.Condition_HasId{
			HasId: &pb.HasIdCondition{HasId: []*pb.PointId{
				{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}},
			}},
		},
	})
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	return err
}

func userFilter(userID string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{keywordCondition("user_id", userID)}}
}

func searchFilter(filter registryvector.Filter) *pb.Filter {
	f := userFilter(filter.UserID)
	if filter.SessionID != uuid.Nil {
		f.Must = append(f.Must, keywordCondition("session_id", filter.SessionID.String()))
	}
	return f
}

func keywordCondition(key, value string) *pb.Condition {
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

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func newUint64(v uint64) *uint64 {
	return &v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

// collectionName derives a per-embedding-space name so vectors of different
// models or dimensions never share a collection.
func collectionName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.QdrantCollectionName); name != "" {
		return name
	}
	prefix := strings.TrimSpace(cfg.QdrantCollectionPrefix)
	if prefix == "" {
		prefix = "coaching-service"
	}
	model := "hashed-bow-v1"
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "openai":
		if custom := strings.TrimSpace(cfg.OpenAIEmbeddingModel); custom != "" {
			model = custom
		}
	case "none":
		model = "disabled"
	}
	model = strings.NewReplacer("/", "-", " ", "-", "_", "-").Replace(strings.ToLower(model))
	return fmt.Sprintf("%s_%s-%d", prefix, model, cfg.EmbeddingDimensions)
}
