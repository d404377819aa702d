package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/core"
	"github.com/chirino/coaching-service/internal/model"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed stores one remembered user turn in each of two sessions and returns
// the first session's id.
func seed(t *testing.T, dsn, chromemPath string) uuid.UUID {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = dsn
	cfg.ChromemPath = chromemPath
	cfg.Providers = ""
	ctx := config.WithContext(context.Background(), &cfg)
	c, err := core.Build(ctx)
	require.NoError(t, err)
	defer c.Close()

	var first uuid.UUID
	for i, text := range []string{"pricing objections from procurement", "pricing objections from the CFO"} {
		sess, err := c.Store.CreateSession(ctx, registrystore.CreateSessionRequest{UserID: "alice", AIModel: "openai"})
		require.NoError(t, err)
		turn, err := c.Store.AppendTurn(ctx, registrystore.AppendTurnRequest{SessionID: sess.ID, Role: model.RoleUser, Content: text})
		require.NoError(t, err)
		_, err = c.Memory.Upsert(ctx, "alice", turn)
		require.NoError(t, err)
		if i == 0 {
			first = sess.ID
		}
	}
	return first
}

func search(t *testing.T, dsn, chromemPath string, extra ...string) []searchResult {
	t.Helper()
	cmd := Command()
	var out bytes.Buffer
	cmd.Writer = &out
	base := []string{"memory", "search", "--db-kind", "sqlite", "--db-url", dsn,
		"--vector-chromem-path", chromemPath, "--providers", "", "--log-level", "error",
		"--user", "alice", "--query", "pricing objections"}
	require.NoError(t, cmd.Run(context.Background(), append(base, extra...)))

	var results []searchResult
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r searchResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		results = append(results, r)
	}
	return results
}

func TestSearchCanBeScopedToSession(t *testing.T) {
	dir := t.TempDir()
	dsn := fmt.Sprintf("file:%s", filepath.Join(dir, "memory.db"))
	chromemPath := filepath.Join(dir, "vectors")
	session := seed(t, dsn, chromemPath)

	all := search(t, dsn, chromemPath)
	assert.Len(t, all, 2)

	scoped := search(t, dsn, chromemPath, "--session", session.String())
	require.Len(t, scoped, 1)
	assert.Equal(t, session.String(), scoped[0].SessionID)
	assert.Equal(t, "pricing objections from procurement", scoped[0].Text)
}

func TestSearchRejectsBadSessionID(t *testing.T) {
	cmd := Command()
	cmd.Writer = &bytes.Buffer{}
	err := cmd.Run(context.Background(), []string{"memory", "search", "--db-kind", "sqlite",
		"--db-url", "file::memory:", "--providers", "", "--user", "alice", "--query", "x", "--session", "nope"})
	require.ErrorContains(t, err, "invalid session id")
}
