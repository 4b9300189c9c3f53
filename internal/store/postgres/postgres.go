// Package postgres stores workspaces and collections in PostgreSQL.
//
// All documents live in one JSONB table keyed by (workspace, collection,
// key). Workspaces and collections are tracked in catalog tables so that
// edge collections keep their kind across restarts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/multinet/internal/store"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS multinet_workspaces (
	name       text PRIMARY KEY,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS multinet_collections (
	workspace text    NOT NULL REFERENCES multinet_workspaces(name) ON DELETE CASCADE,
	name      text    NOT NULL,
	edge      boolean NOT NULL,
	PRIMARY KEY (workspace, name)
);
CREATE TABLE IF NOT EXISTS multinet_documents (
	seq        bigserial,
	workspace  text  NOT NULL,
	collection text  NOT NULL,
	key        text  NOT NULL,
	doc        jsonb NOT NULL,
	PRIMARY KEY (workspace, collection, key),
	FOREIGN KEY (workspace, collection)
		REFERENCES multinet_collections(workspace, name) ON DELETE CASCADE
);`

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
	Begin(context.Context) (pgx.Tx, error)
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Options tune the connection pool. Zero values keep pgxpool defaults.
type Options struct {
	MaxConns int32
	MinConns int32
}

// Open connects to url, verifies the connection and creates the schema.
func Open(ctx context.Context, url string, opts Options) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the catalog and document tables if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) HasWorkspace(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM multinet_workspaces WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check workspace %s: %w", name, err)
	}
	return exists, nil
}

func (s *Store) CreateWorkspace(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO multinet_workspaces (name) VALUES ($1)`, name)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrWorkspaceExists, name)
	}
	if err != nil {
		return fmt.Errorf("create workspace %s: %w", name, err)
	}
	return nil
}

func (s *Store) Workspaces(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM multinet_workspaces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	return names, nil
}

// DeleteWorkspace removes the workspace; its collections and documents go
// with it through ON DELETE CASCADE.
func (s *Store) DeleteWorkspace(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM multinet_workspaces WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, name)
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
	return &workspace{name: name, db: s.pool}, nil
}

type workspace struct {
	name string
	db   DBTX
}

func (w *workspace) Name() string { return w.name }

func (w *workspace) HasCollection(ctx context.Context, name string) (bool, error) {
	_, err := w.lookup(ctx, name)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (w *workspace) lookup(ctx context.Context, name string) (bool, error) {
	var edge bool
	err := w.db.QueryRow(ctx,
		`SELECT edge FROM multinet_collections WHERE workspace = $1 AND name = $2`,
		w.name, name,
	).Scan(&edge)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", name, err)
	}
	return edge, nil
}

func (w *workspace) Collection(ctx context.Context, name string) (store.Collection, error) {
	edge, err := w.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return &collection{ws: w, name: name, edge: edge}, nil
}

func (w *workspace) CreateCollection(ctx context.Context, name string, edge bool) (store.Collection, error) {
	_, err := w.db.Exec(ctx,
		`INSERT INTO multinet_collections (workspace, name, edge) VALUES ($1, $2, $3)`,
		w.name, name, edge,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionExists, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	return &collection{ws: w, name: name, edge: edge}, nil
}

func (w *workspace) DeleteCollection(ctx context.Context, name string) error {
	tag, err := w.db.Exec(ctx,
		`DELETE FROM multinet_collections WHERE workspace = $1 AND name = $2`, w.name, name)
	if err != nil {
		return fmt.Errorf("delete table %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	return nil
}

func (w *workspace) Collections(ctx context.Context) ([]store.CollectionInfo, error) {
	rows, err := w.db.Query(ctx,
		`SELECT name, edge FROM multinet_collections WHERE workspace = $1 ORDER BY name`, w.name)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var infos []store.CollectionInfo
	for rows.Next() {
		var info store.CollectionInfo
		if err := rows.Scan(&info.Name, &info.Edge); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (w *workspace) RunInTransaction(ctx context.Context, write []string, fn func(ctx context.Context, tx store.Workspace) error) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txws := &workspace{name: w.name, db: tx}
	for _, name := range write {
		if _, err := txws.lookup(ctx, name); err != nil {
			return err
		}
	}

	if err := fn(ctx, txws); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type collection struct {
	ws   *workspace
	name string
	edge bool
}

func (c *collection) Name() string { return c.name }
func (c *collection) IsEdge() bool { return c.edge }

func (c *collection) InsertMany(ctx context.Context, docs []store.Document) ([]store.DocumentMeta, error) {
	metas := make([]store.DocumentMeta, len(docs))
	batch := &pgx.Batch{}
	for i, doc := range docs {
		if c.edge {
			if _, ok := doc[store.FieldFrom]; !ok {
				return nil, fmt.Errorf("insert into %s: edge document %d lacks %s", c.name, i, store.FieldFrom)
			}
			if _, ok := doc[store.FieldTo]; !ok {
				return nil, fmt.Errorf("insert into %s: edge document %d lacks %s", c.name, i, store.FieldTo)
			}
		}
		prepared, meta := store.Prepare(c.name, doc)
		payload, err := json.Marshal(prepared)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
		metas[i] = meta
		batch.Queue(
			`INSERT INTO multinet_documents (workspace, collection, key, doc) VALUES ($1, $2, $3, $4::jsonb)`,
			c.ws.name, c.name, meta.Key, string(payload),
		)
	}

	// A nested Begin on a pgx.Tx is a savepoint, so the batch stays atomic
	// both standalone and inside RunInTransaction.
	tx, err := c.ws.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := range docs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("insert into %s: key %q: %w", c.name, metas[i].Key, store.ErrUniqueConstraint)
			}
			return nil, fmt.Errorf("insert into %s: %w", c.name, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", c.name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return metas, nil
}

func (c *collection) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := c.ws.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM multinet_documents WHERE workspace = $1 AND collection = $2 AND key = $3)`,
		c.ws.name, c.name, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check key %s: %w", key, err)
	}
	return exists, nil
}

func (c *collection) Documents(ctx context.Context) ([]store.Document, error) {
	return c.read(ctx,
		`SELECT doc FROM multinet_documents WHERE workspace = $1 AND collection = $2 ORDER BY seq`,
		c.ws.name, c.name,
	)
}

func (c *collection) Page(ctx context.Context, offset, limit int) ([]store.Document, error) {
	return c.read(ctx,
		`SELECT doc FROM multinet_documents WHERE workspace = $1 AND collection = $2 ORDER BY seq OFFSET $3 LIMIT $4`,
		c.ws.name, c.name, offset, limit,
	)
}

func (c *collection) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.ws.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM multinet_documents WHERE workspace = $1 AND collection = $2`,
		c.ws.name, c.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

func (c *collection) read(ctx context.Context, query string, args ...any) ([]store.Document, error) {
	rows, err := c.ws.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.name, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc store.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
