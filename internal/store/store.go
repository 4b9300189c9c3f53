// Package store defines the storage collaborator used by the upload service.
//
// A Store holds named workspaces; a Workspace holds node and edge
// collections of JSON-like documents. Backends live in subpackages:
//
//   - arango: ArangoDB, one database per workspace
//   - postgres: PostgreSQL, documents kept as JSONB rows
//   - memstore: in-process maps, used for development and tests
//
// Documents carry the reserved fields _key, _from and _to the same way
// ArangoDB does. Backends that do not generate keys natively assign a
// random key to documents inserted without one.
package store

import (
	"context"
	"errors"
)

// Reserved document fields.
const (
	FieldKey  = "_key"
	FieldID   = "_id"
	FieldRev  = "_rev"
	FieldFrom = "_from"
	FieldTo   = "_to"
)

var (
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrWorkspaceExists    = errors.New("workspace already exists")
	ErrCollectionNotFound = errors.New("table not found")
	ErrCollectionExists   = errors.New("table already exists")

	// ErrUniqueConstraint is returned when an insert reuses a document key.
	ErrUniqueConstraint = errors.New("unique constraint violated")
)

// Document is a single stored record.
type Document = map[string]any

// DocumentMeta identifies an inserted document.
type DocumentMeta struct {
	Key string `json:"_key"`
	ID  string `json:"_id"`
}

// CollectionInfo describes a collection without opening it.
type CollectionInfo struct {
	Name string `json:"name"`
	Edge bool   `json:"edge"`
}

// Store is the top-level handle for a storage backend.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	HasWorkspace(ctx context.Context, name string) (bool, error)
	CreateWorkspace(ctx context.Context, name string) error

	// Workspace opens an existing workspace. Returns ErrWorkspaceNotFound
	// when it does not exist.
	Workspace(ctx context.Context, name string) (Workspace, error)

	// Workspaces returns the workspace names in sorted order.
	Workspaces(ctx context.Context) ([]string, error)

	// DeleteWorkspace drops a workspace and everything in it. Returns
	// ErrWorkspaceNotFound when it does not exist.
	DeleteWorkspace(ctx context.Context, name string) error

	Close() error
}

// Workspace is a named namespace of collections.
type Workspace interface {
	Name() string

	HasCollection(ctx context.Context, name string) (bool, error)

	// Collection opens an existing collection. Returns ErrCollectionNotFound
	// when it does not exist.
	Collection(ctx context.Context, name string) (Collection, error)

	// CreateCollection creates an empty node collection, or an edge
	// collection when edge is true.
	CreateCollection(ctx context.Context, name string, edge bool) (Collection, error)

	Collections(ctx context.Context) ([]CollectionInfo, error)

	// DeleteCollection drops a collection and its documents. Returns
	// ErrCollectionNotFound when it does not exist.
	DeleteCollection(ctx context.Context, name string) error

	// RunInTransaction runs fn so that every write it performs through tx
	// commits together or not at all. write names the collections fn
	// writes to; they must already exist.
	RunInTransaction(ctx context.Context, write []string, fn func(ctx context.Context, tx Workspace) error) error
}

// Collection is a node or edge collection inside a workspace.
type Collection interface {
	Name() string
	IsEdge() bool

	// InsertMany inserts docs and returns one entry per inserted document.
	// The insert is atomic: on error no document is kept.
	InsertMany(ctx context.Context, docs []Document) ([]DocumentMeta, error)

	// Has reports whether a document with key exists.
	Has(ctx context.Context, key string) (bool, error)

	// Documents returns every document in insertion order.
	Documents(ctx context.Context) ([]Document, error)

	// Page returns at most limit documents in insertion order, skipping
	// the first offset.
	Page(ctx context.Context, offset, limit int) ([]Document, error)

	Count(ctx context.Context) (int64, error)
}
