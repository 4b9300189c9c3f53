package core_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/multinet/internal/config"
	"github.com/JonMunkholm/multinet/internal/core"
	_ "github.com/JonMunkholm/multinet/internal/core/formats"
	"github.com/JonMunkholm/multinet/internal/store"
	"github.com/JonMunkholm/multinet/internal/store/memstore"
)

func newService(t *testing.T) (*core.Service, store.Store) {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.CreateWorkspace(context.Background(), "ws"))
	svc := core.NewService(st, config.UploadConfig{MaxConcurrent: 2, MaxWaitTime: time.Second, Timeout: time.Minute})
	return svc, st
}

func upload(t *testing.T, svc *core.Service, format, table, body string) (*core.UploadResult, error) {
	t.Helper()
	return svc.Upload(context.Background(), core.UploadRequest{
		Format:    format,
		Workspace: "ws",
		Options:   core.BuildOptions{Table: table},
		Body:      []byte(body),
	})
}

func documents(t *testing.T, st store.Store, table string) []store.Document {
	t.Helper()
	ctx := context.Background()
	ws, err := st.Workspace(ctx, "ws")
	require.NoError(t, err)
	coll, err := ws.Collection(ctx, table)
	require.NoError(t, err)
	docs, err := coll.Documents(ctx)
	require.NoError(t, err)
	return docs
}

func TestUpload_CSVNodeTable(t *testing.T) {
	svc, st := newService(t)

	res, err := upload(t, svc, "csv", "people", "_key,name\na,Alice\nb,Bob\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"count": 2}, res.Counts)
	assert.Equal(t, 2, res.Inserted)

	docs := documents(t, st, "people")
	require.Len(t, docs, 2)
	assert.Equal(t, "Alice", docs[0]["name"])
	assert.Equal(t, "people/a", docs[0]["_id"])
}

func TestUpload_CSVEdgeTableCreatesEdgeCollection(t *testing.T) {
	svc, st := newService(t)

	_, err := upload(t, svc, "csv", "knows", "_from,_to\npeople/a,people/b\n")
	require.NoError(t, err)

	tables, err := svc.ListTables(context.Background(), "ws", core.FilterEdge)
	require.NoError(t, err)
	assert.Equal(t, []store.CollectionInfo{{Name: "knows", Edge: true}}, tables)
	assert.Len(t, documents(t, st, "knows"), 1)
}

func TestUpload_ValidationWritesNothing(t *testing.T) {
	svc, _ := newService(t)

	_, err := upload(t, svc, "csv", "people", "_key,val\na,1\na,2\n")
	vf, ok := core.AsValidationFailed(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, []core.Failure{core.DuplicateKey{Key: "a"}}, vf.Failures)

	tables, err := svc.ListTables(context.Background(), "ws", core.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, tables, "no table may be created for a rejected upload")
}

func TestUpload_EmptyKeyRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := upload(t, svc, "csv", "people", "_key,name\n,Alice\n")
	vf, ok := core.AsValidationFailed(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, []core.Failure{core.InvalidRow{Row: 2, Fields: []string{"_key"}}}, vf.Failures)

	_, err = svc.Upload(ctx, core.UploadRequest{
		Format:    "csv",
		Workspace: "ws",
		Options:   core.BuildOptions{Table: "people", KeyField: "id"},
		Body:      []byte("id,name\n1,Alice\n,Bob\n"),
	})
	vf, ok = core.AsValidationFailed(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, []core.Failure{core.InvalidRow{Row: 3, Fields: []string{"id"}}}, vf.Failures)

	tables, err := svc.ListTables(ctx, "ws", core.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestUpload_KindMismatch(t *testing.T) {
	svc, _ := newService(t)

	_, err := upload(t, svc, "csv", "mixed", "_key\na\n")
	require.NoError(t, err)

	_, err = upload(t, svc, "csv", "mixed", "_from,_to\nn/a,n/b\n")
	assert.ErrorIs(t, err, core.ErrCollectionKindMismatch)
}

func TestUpload_SecondTableFailureRollsBack(t *testing.T) {
	svc, st := newService(t)

	_, err := upload(t, svc, "nested_json", "g", `{"node_data":{"_key":"r"},"children":[{"node_data":{"_key":"x"}}]}`)
	require.NoError(t, err)

	// Internal node r2 is written first, then leaf x collides.
	_, err = upload(t, svc, "nested_json", "g", `{"node_data":{"_key":"r2"},"children":[{"node_data":{"_key":"x"}}]}`)
	assert.ErrorIs(t, err, store.ErrUniqueConstraint)

	assert.Len(t, documents(t, st, "g_internal_nodes"), 1)
	assert.Len(t, documents(t, st, "g_leaf_nodes"), 1)
	assert.Len(t, documents(t, st, "g_edges"), 1)
}

func TestUpload_LargeTableInsertsInBatches(t *testing.T) {
	svc, st := newService(t)

	var sb strings.Builder
	sb.WriteString("_key,n\n")
	for i := 0; i < 2500; i++ {
		fmt.Fprintf(&sb, "k%d,%d\n", i, i)
	}

	res, err := upload(t, svc, "csv", "big", sb.String())
	require.NoError(t, err)
	assert.Equal(t, 2500, res.Inserted)
	assert.Len(t, documents(t, st, "big"), 2500)
}

func TestUpload_D3JSON(t *testing.T) {
	svc, st := newService(t)

	res, err := upload(t, svc, "d3_json", "g", `{"nodes":[{"id":"a"},{"id":"b"}],"links":[{"source":"a","target":"b","value":3}]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"nodecount": 2, "edgecount": 1}, res.Counts)

	links := documents(t, st, "g_links")
	require.Len(t, links, 1)
	assert.Equal(t, "g_nodes/a", links[0]["_from"])
	assert.Equal(t, "g_nodes/b", links[0]["_to"])
	assert.NotContains(t, links[0], "source")
}

func TestUpload_NewickSkipsExistingNodes(t *testing.T) {
	svc, st := newService(t)

	res, err := upload(t, svc, "newick", "tree", "(A:1,B:2)R;")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"nodecount": 3, "edgecount": 2}, res.Counts)

	// Same named nodes again: nodes are skipped, edges are appended.
	res, err = upload(t, svc, "newick", "tree", "(A:1,C:2)R;")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	assert.Len(t, documents(t, st, "tree_nodes"), 4)
	assert.Len(t, documents(t, st, "tree_edges"), 4)
}

func TestUpload_NestedJSON(t *testing.T) {
	svc, st := newService(t)

	res, err := upload(t, svc, "nested_json", "g", `{"node_data":{"n":0},"children":[{"node_data":{"n":1}},{"node_data":{"n":2}}]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"edgecount": 2, "int_nodecount": 1, "leaf_nodecount": 2}, res.Counts)
	assert.Len(t, documents(t, st, "g_edges"), 2)
}

func TestUpload_Errors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, core.UploadRequest{Format: "xml", Workspace: "ws"})
	assert.ErrorIs(t, err, core.ErrUnknownFormat)

	_, err = svc.Upload(ctx, core.UploadRequest{Format: "csv", Workspace: "missing", Options: core.BuildOptions{Table: "t"}, Body: []byte("_key\na\n")})
	assert.ErrorIs(t, err, store.ErrWorkspaceNotFound)

	_, err = svc.Upload(ctx, core.UploadRequest{Format: "csv", Workspace: "ws", Options: core.BuildOptions{Table: "t"}, Body: []byte("\xFF\xFE_\x00")})
	var decodeErr *core.DecodeFailed
	assert.ErrorAs(t, err, &decodeErr)
}

func TestValidate_DryRun(t *testing.T) {
	svc, _ := newService(t)

	plan, err := svc.Validate("csv", []byte("id,name\n1,x\n"), core.BuildOptions{Table: "t", KeyField: "id"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"count": 1}, plan.Counts)

	tables, err := svc.ListTables(context.Background(), "ws", core.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestTableDocuments(t *testing.T) {
	svc, _ := newService(t)
	_, err := upload(t, svc, "csv", "people", "_key,name\na,Alice\n")
	require.NoError(t, err)

	docs, edge, err := svc.TableDocuments(context.Background(), "ws", "people")
	require.NoError(t, err)
	assert.False(t, edge)
	assert.Equal(t, []store.Document{{"_key": "a", "name": "Alice"}}, docs)

	_, _, err = svc.TableDocuments(context.Background(), "ws", "nope")
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
}

func TestCreateWorkspace(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateWorkspace(ctx, "other"))
	assert.ErrorIs(t, svc.CreateWorkspace(ctx, "other"), store.ErrWorkspaceExists)
}

func TestParseTableFilter(t *testing.T) {
	for in, want := range map[string]core.TableFilter{"": core.FilterAll, "all": core.FilterAll, "node": core.FilterNode, "edge": core.FilterEdge} {
		got, err := core.ParseTableFilter(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := core.ParseTableFilter("graph")
	assert.ErrorIs(t, err, core.ErrInvalidFilter)
}

func TestHealth(t *testing.T) {
	svc, _ := newService(t)

	assert.False(t, svc.Ready(), "not ready before the first check")
	status := svc.CheckHealth(context.Background())
	assert.True(t, status.Ready)
	assert.True(t, svc.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status = svc.CheckHealth(ctx)
	assert.False(t, status.Ready)
	assert.NotEmpty(t, status.Error)
}

func TestDeleteTable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := upload(t, svc, "csv", "people", "_key,name\na,Alice\n")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTable(ctx, "ws", "people"))
	tables, err := svc.ListTables(ctx, "ws", core.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, tables)

	assert.ErrorIs(t, svc.DeleteTable(ctx, "ws", "people"), store.ErrCollectionNotFound)
	assert.ErrorIs(t, svc.DeleteTable(ctx, "missing", "people"), store.ErrWorkspaceNotFound)

	// The name is free again for a table of the other kind.
	_, err = upload(t, svc, "csv", "people", "_from,_to\nn/a,n/b\n")
	require.NoError(t, err)
}

func TestDeleteWorkspace(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.CreateWorkspace(ctx, "other"))

	names, err := svc.Workspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "ws"}, names)

	require.NoError(t, svc.DeleteWorkspace(ctx, "other"))
	assert.ErrorIs(t, svc.DeleteWorkspace(ctx, "other"), store.ErrWorkspaceNotFound)

	names, err = svc.Workspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws"}, names)
}

func TestTableRows(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var b strings.Builder
	b.WriteString("_key,n\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "k%02d,%d\n", i, i)
	}
	_, err := upload(t, svc, "csv", "nums", b.String())
	require.NoError(t, err)

	tests := []struct {
		name          string
		offset, limit int
		wantLen       int
		wantFirst     string
	}{
		{"default limit", 0, 0, core.DefaultRowLimit, "k00"},
		{"offset", 35, 10, 5, "k35"},
		{"negative offset", -5, 2, 2, "k00"},
		{"past the end", 100, 10, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.TableRows(ctx, "ws", "nums", tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, int64(40), res.Count)
			require.Len(t, res.Rows, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, res.Rows[0]["_key"])
				assert.NotContains(t, res.Rows[0], "_id")
			}
		})
	}

	_, err = svc.TableRows(ctx, "ws", "nope", 0, 10)
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
}
