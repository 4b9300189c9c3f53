// Package arango stores workspaces in ArangoDB, one database per workspace.
//
// Multi-collection writes use stream transactions. A standalone InsertMany
// opens its own single-collection transaction so that a failing document
// never leaves earlier documents of the same batch behind.
package arango

import (
	"context"
	"fmt"
	"sort"
	"strings"

	driver "github.com/arangodb/go-driver"
	arangohttp "github.com/arangodb/go-driver/http"

	"github.com/JonMunkholm/multinet/internal/store"
)

// Config holds the connection settings.
type Config struct {
	Endpoints []string
	Username  string
	Password  string
}

// Store is an ArangoDB-backed store.Store.
type Store struct {
	client driver.Client
}

// Open connects to the ArangoDB cluster described by cfg and checks that
// it answers.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := arangohttp.NewConnection(arangohttp.ConnectionConfig{
		Endpoints: cfg.Endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("arango connection: %w", err)
	}

	clientCfg := driver.ClientConfig{Connection: conn}
	if cfg.Username != "" {
		clientCfg.Authentication = driver.BasicAuthentication(cfg.Username, cfg.Password)
	}
	client, err := driver.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("arango client: %w", err)
	}

	s := &Store{client: client}
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.Version(ctx); err != nil {
		return fmt.Errorf("arango ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) HasWorkspace(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.DatabaseExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check workspace %s: %w", name, err)
	}
	return ok, nil
}

func (s *Store) CreateWorkspace(ctx context.Context, name string) error {
	_, err := s.client.CreateDatabase(ctx, name, nil)
	if driver.IsConflict(err) {
		return fmt.Errorf("%w: %s", store.ErrWorkspaceExists, name)
	}
	if err != nil {
		return fmt.Errorf("create workspace %s: %w", name, err)
	}
	return nil
}

// Workspaces lists every database except _system.
func (s *Store) Workspaces(ctx context.Context) ([]string, error) {
	dbs, err := s.client.Databases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	names := make([]string, 0, len(dbs))
	for _, db := range dbs {
		if db.Name() == "_system" {
			continue
		}
		names = append(names, db.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DeleteWorkspace(ctx context.Context, name string) error {
	db, err := s.client.Database(ctx, name)
	if driver.IsNotFound(err) {
		return fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("open workspace %s: %w", name, err)
	}
	if err := db.Remove(ctx); err != nil {
		return fmt.Errorf("delete workspace %s: %w", name, err)
	}
	return nil
}

func (s *Store) Workspace(ctx context.Context, name string) (store.Workspace, error) {
	ok, err := s.HasWorkspace(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, name)
	}
	db, err := s.client.Database(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open workspace %s: %w", name, err)
	}
	return &workspace{db: db}, nil
}

type workspace struct {
	db   driver.Database
	inTx bool
}

func (w *workspace) Name() string { return w.db.Name() }

func (w *workspace) HasCollection(ctx context.Context, name string) (bool, error) {
	ok, err := w.db.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return ok, nil
}

func (w *workspace) Collection(ctx context.Context, name string) (store.Collection, error) {
	ok, err := w.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	col, err := w.db.Collection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", name, err)
	}
	props, err := col.Properties(ctx)
	if err != nil {
		return nil, fmt.Errorf("table %s properties: %w", name, err)
	}
	return &collection{ws: w, col: col, edge: props.Type == driver.CollectionTypeEdge}, nil
}

func (w *workspace) CreateCollection(ctx context.Context, name string, edge bool) (store.Collection, error) {
	opts := &driver.CreateCollectionOptions{Type: driver.CollectionTypeDocument}
	if edge {
		opts.Type = driver.CollectionTypeEdge
	}
	col, err := w.db.CreateCollection(ctx, name, opts)
	if driver.IsConflict(err) {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionExists, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	return &collection{ws: w, col: col, edge: edge}, nil
}

func (w *workspace) DeleteCollection(ctx context.Context, name string) error {
	col, err := w.db.Collection(ctx, name)
	if driver.IsNotFound(err) {
		return fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("open table %s: %w", name, err)
	}
	if err := col.Remove(ctx); err != nil {
		return fmt.Errorf("delete table %s: %w", name, err)
	}
	return nil
}

func (w *workspace) Collections(ctx context.Context) ([]store.CollectionInfo, error) {
	cols, err := w.db.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	infos := make([]store.CollectionInfo, 0, len(cols))
	for _, col := range cols {
		if strings.HasPrefix(col.Name(), "_") {
			continue
		}
		props, err := col.Properties(ctx)
		if err != nil {
			return nil, fmt.Errorf("table %s properties: %w", col.Name(), err)
		}
		infos = append(infos, store.CollectionInfo{
			Name: col.Name(),
			Edge: props.Type == driver.CollectionTypeEdge,
		})
	}
	return infos, nil
}

func (w *workspace) RunInTransaction(ctx context.Context, write []string, fn func(ctx context.Context, tx store.Workspace) error) error {
	if w.inTx {
		return fn(ctx, w)
	}

	tid, err := w.db.BeginTransaction(ctx, driver.TransactionCollections{Write: write}, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tctx := driver.WithTransactionID(ctx, tid)

	if err := fn(tctx, &workspace{db: w.db, inTx: true}); err != nil {
		if abortErr := w.db.AbortTransaction(ctx, tid, nil); abortErr != nil {
			return fmt.Errorf("%w (abort failed: %v)", err, abortErr)
		}
		return err
	}

	if err := w.db.CommitTransaction(ctx, tid, nil); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type collection struct {
	ws   *workspace
	col  driver.Collection
	edge bool
}

func (c *collection) Name() string { return c.col.Name() }
func (c *collection) IsEdge() bool { return c.edge }

func (c *collection) InsertMany(ctx context.Context, docs []store.Document) ([]store.DocumentMeta, error) {
	if !c.ws.inTx {
		var metas []store.DocumentMeta
		err := c.ws.RunInTransaction(ctx, []string{c.Name()}, func(ctx context.Context, _ store.Workspace) error {
			var err error
			metas, err = c.insert(ctx, docs)
			return err
		})
		return metas, err
	}
	return c.insert(ctx, docs)
}

func (c *collection) insert(ctx context.Context, docs []store.Document) ([]store.DocumentMeta, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	metas, errs, err := c.col.CreateDocuments(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", c.Name(), err)
	}
	if first := errs.FirstNonNil(); first != nil {
		if driver.IsConflict(first) {
			return nil, fmt.Errorf("insert into %s: %v: %w", c.Name(), first, store.ErrUniqueConstraint)
		}
		return nil, fmt.Errorf("insert into %s: %w", c.Name(), first)
	}

	out := make([]store.DocumentMeta, len(metas))
	for i, m := range metas {
		out[i] = store.DocumentMeta{Key: m.Key, ID: string(m.ID)}
	}
	return out, nil
}

func (c *collection) Has(ctx context.Context, key string) (bool, error) {
	ok, err := c.col.DocumentExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check key %s: %w", key, err)
	}
	return ok, nil
}

func (c *collection) Documents(ctx context.Context) ([]store.Document, error) {
	return c.read(ctx, "FOR d IN @@col RETURN d", map[string]interface{}{
		"@col": c.Name(),
	})
}

func (c *collection) Page(ctx context.Context, offset, limit int) ([]store.Document, error) {
	return c.read(ctx, "FOR d IN @@col LIMIT @offset, @limit RETURN d", map[string]interface{}{
		"@col":   c.Name(),
		"offset": offset,
		"limit":  limit,
	})
}

func (c *collection) Count(ctx context.Context) (int64, error) {
	n, err := c.col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

func (c *collection) read(ctx context.Context, query string, bindVars map[string]interface{}) ([]store.Document, error) {
	cursor, err := c.ws.db.Query(ctx, query, bindVars)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Name(), err)
	}
	defer cursor.Close()

	var docs []store.Document
	for {
		var doc store.Document
		_, err := cursor.ReadDocument(ctx, &doc)
		if driver.IsNoMoreDocuments(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.Name(), err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
