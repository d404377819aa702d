package qdrant

import (
	"context"
	"testing"

	"github.com/chirino/coaching-service/internal/config"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCollectionName(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Equal(t, "coaching-service_hashed-bow-v1-384", collectionName(&cfg))

	cfg.EmbedType = "openai"
	cfg.EmbeddingDimensions = 1536
	require.Equal(t, "coaching-service_text-embedding-3-small-1536", collectionName(&cfg))

	cfg.QdrantCollectionName = " pinned "
	require.Equal(t, "pinned", collectionName(&cfg))
}

func TestUserFilter(t *testing.T) {
	f := userFilter("alice")
	require.Len(t, f.Must, 1)
	field := f.Must[0].GetField()
	require.Equal(t, "user_id", field.GetKey())
	require.Equal(t, "alice", field.GetMatch().GetKeyword())
}

func TestSearchFilterAddsSession(t *testing.T) {
	require.Len(t, searchFilter(registryvector.Filter{UserID: "alice"}).Must, 1)

	session := uuid.New()
	f := searchFilter(registryvector.Filter{UserID: "alice", SessionID: session})
	require.Len(t, f.Must, 2)
	require.Equal(t, "session_id", f.Must[1].GetField().GetKey())
	require.Equal(t, session.String(), f.Must[1].GetField().GetMatch().GetKeyword())
}

func TestDialOptionsAddsAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Len(t, dialOptions(&cfg), 1)
	cfg.QdrantAPIKey = "secret"
	require.Len(t, dialOptions(&cfg), 2)

	md, err := apiKeyCredentials{apiKey: "secret"}.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, "secret", md["api-key"])
}
