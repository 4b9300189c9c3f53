package arango

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/multinet/internal/store"
)

func openTestWorkspace(t *testing.T) store.Workspace {
	t.Helper()
	url := os.Getenv("TEST_ARANGO_URL")
	if url == "" {
		t.Skip("TEST_ARANGO_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{
		Endpoints: []string{url},
		Username:  os.Getenv("TEST_ARANGO_USER"),
		Password:  os.Getenv("TEST_ARANGO_PASSWORD"),
	})
	require.NoError(t, err)

	name := "test_" + uuid.NewString()[:8]
	require.NoError(t, s.CreateWorkspace(ctx, name))
	t.Cleanup(func() {
		if db, err := s.client.Database(context.Background(), name); err == nil {
			db.Remove(context.Background())
		}
	})

	ws, err := s.Workspace(ctx, name)
	require.NoError(t, err)
	return ws
}

func TestArangoInsertAndRead(t *testing.T) {
	ws := openTestWorkspace(t)
	ctx := context.Background()

	coll, err := ws.CreateCollection(ctx, "people", false)
	require.NoError(t, err)

	metas, err := coll.InsertMany(ctx, []store.Document{{"_key": "a"}, {"_key": "b"}})
	require.NoError(t, err)
	assert.Len(t, metas, 2)

	has, err := coll.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = coll.InsertMany(ctx, []store.Document{{"_key": "c"}, {"_key": "a"}})
	assert.ErrorIs(t, err, store.ErrUniqueConstraint)

	has, err = coll.Has(ctx, "c")
	require.NoError(t, err)
	assert.False(t, has)

	docs, err := coll.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestArangoTransactionAbort(t *testing.T) {
	ws := openTestWorkspace(t)
	ctx := context.Background()

	_, err := ws.CreateCollection(ctx, "nodes", false)
	require.NoError(t, err)
	_, err = ws.CreateCollection(ctx, "links", true)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = ws.RunInTransaction(ctx, []string{"nodes", "links"}, func(ctx context.Context, tx store.Workspace) error {
		nodes, err := tx.Collection(ctx, "nodes")
		if err != nil {
			return err
		}
		if _, err := nodes.InsertMany(ctx, []store.Document{{"_key": "a"}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	nodes, err := ws.Collection(ctx, "nodes")
	require.NoError(t, err)
	has, err := nodes.Has(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)

	infos, err := ws.Collections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []store.CollectionInfo{{Name: "nodes"}, {Name: "links", Edge: true}}, infos)
}

func TestArangoPageAndDeleteCollection(t *testing.T) {
	ws := openTestWorkspace(t)
	ctx := context.Background()

	coll, err := ws.CreateCollection(ctx, "people", false)
	require.NoError(t, err)
	_, err = coll.InsertMany(ctx, []store.Document{{"_key": "a"}, {"_key": "b"}, {"_key": "c"}})
	require.NoError(t, err)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	page, err := coll.Page(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	require.NoError(t, ws.DeleteCollection(ctx, "people"))
	assert.ErrorIs(t, ws.DeleteCollection(ctx, "people"), store.ErrCollectionNotFound)
}
