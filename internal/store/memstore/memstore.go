// Package memstore is an in-process store backend.
//
// Transactions hold the workspace lock for their whole duration and
// restore a snapshot when the callback fails.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/multinet/internal/store"
)

// Store keeps all workspaces in memory.
type Store struct {
	mu         sync.RWMutex
	workspaces map[string]*workspace
}

type workspace struct {
	name string

	mu    sync.Mutex
	colls map[string]*collection
}

type collection struct {
	name  string
	edge  bool
	docs  []store.Document
	index map[string]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{workspaces: make(map[string]*workspace)}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) HasWorkspace(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workspaces[name]
	return ok, nil
}

func (s *Store) CreateWorkspace(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[name]; ok {
		return fmt.Errorf("%w: %s", store.ErrWorkspaceExists, name)
	}
	s.workspaces[name] = &workspace{name: name, colls: make(map[string]*collection)}
	return nil
}

func (s *Store) Workspaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.workspaces))
	for name := range s.workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) DeleteWorkspace(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[name]; !ok {
		return fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, name)
	}
	delete(s.workspaces, name)
	return nil
}

func (s *Store) Workspace(_ context.Context, name string) (store.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrWorkspaceNotFound, name)
	}
	return &workspaceHandle{ws: ws}, nil
}

// workspaceHandle is the store.Workspace view of a workspace. Inside a
// transaction held is true and the lock is already owned by the caller.
type workspaceHandle struct {
	ws   *workspace
	held bool
}

func (h *workspaceHandle) lock() func() {
	if h.held {
		return func() {}
	}
	h.ws.mu.Lock()
	return h.ws.mu.Unlock
}

func (h *workspaceHandle) Name() string { return h.ws.name }

func (h *workspaceHandle) HasCollection(_ context.Context, name string) (bool, error) {
	defer h.lock()()
	_, ok := h.ws.colls[name]
	return ok, nil
}

func (h *workspaceHandle) Collection(_ context.Context, name string) (store.Collection, error) {
	defer h.lock()()
	c, ok := h.ws.colls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	return &collectionHandle{ws: h, name: name, edge: c.edge}, nil
}

func (h *workspaceHandle) CreateCollection(_ context.Context, name string, edge bool) (store.Collection, error) {
	defer h.lock()()
	if _, ok := h.ws.colls[name]; ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionExists, name)
	}
	h.ws.colls[name] = &collection{name: name, edge: edge, index: make(map[string]int)}
	return &collectionHandle{ws: h, name: name, edge: edge}, nil
}

func (h *workspaceHandle) DeleteCollection(_ context.Context, name string) error {
	defer h.lock()()
	if _, ok := h.ws.colls[name]; !ok {
		return fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
	}
	delete(h.ws.colls, name)
	return nil
}

func (h *workspaceHandle) Collections(_ context.Context) ([]store.CollectionInfo, error) {
	defer h.lock()()
	infos := make([]store.CollectionInfo, 0, len(h.ws.colls))
	for _, c := range h.ws.colls {
		infos = append(infos, store.CollectionInfo{Name: c.name, Edge: c.edge})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (h *workspaceHandle) RunInTransaction(ctx context.Context, write []string, fn func(ctx context.Context, tx store.Workspace) error) error {
	if h.held {
		return fn(ctx, h)
	}

	h.ws.mu.Lock()
	defer h.ws.mu.Unlock()

	for _, name := range write {
		if _, ok := h.ws.colls[name]; !ok {
			return fmt.Errorf("%w: %s", store.ErrCollectionNotFound, name)
		}
	}

	snapshot := h.ws.snapshot()
	if err := fn(ctx, &workspaceHandle{ws: h.ws, held: true}); err != nil {
		h.ws.colls = snapshot
		return err
	}
	return nil
}

func (ws *workspace) snapshot() map[string]*collection {
	out := make(map[string]*collection, len(ws.colls))
	for name, c := range ws.colls {
		cp := &collection{
			name:  c.name,
			edge:  c.edge,
			docs:  append([]store.Document(nil), c.docs...),
			index: make(map[string]int, len(c.index)),
		}
		for k, v := range c.index {
			cp.index[k] = v
		}
		out[name] = cp
	}
	return out
}

type collectionHandle struct {
	ws   *workspaceHandle
	name string
	edge bool
}

func (c *collectionHandle) Name() string { return c.name }
func (c *collectionHandle) IsEdge() bool { return c.edge }

// get must be called with the workspace lock held.
func (c *collectionHandle) get() (*collection, error) {
	coll, ok := c.ws.ws.colls[c.name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCollectionNotFound, c.name)
	}
	return coll, nil
}

func (c *collectionHandle) InsertMany(ctx context.Context, docs []store.Document) ([]store.DocumentMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer c.ws.lock()()

	coll, err := c.get()
	if err != nil {
		return nil, err
	}

	prepared := make([]store.Document, len(docs))
	metas := make([]store.DocumentMeta, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		if coll.edge {
			if _, ok := doc[store.FieldFrom]; !ok {
				return nil, fmt.Errorf("insert into %s: edge document %d lacks %s", c.name, i, store.FieldFrom)
			}
			if _, ok := doc[store.FieldTo]; !ok {
				return nil, fmt.Errorf("insert into %s: edge document %d lacks %s", c.name, i, store.FieldTo)
			}
		}
		prepared[i], metas[i] = store.Prepare(c.name, doc)
		key := metas[i].Key
		if _, exists := coll.index[key]; exists || seen[key] {
			return nil, fmt.Errorf("insert into %s: key %q: %w", c.name, key, store.ErrUniqueConstraint)
		}
		seen[key] = true
	}

	for i, doc := range prepared {
		coll.index[metas[i].Key] = len(coll.docs)
		coll.docs = append(coll.docs, doc)
	}
	return metas, nil
}

func (c *collectionHandle) Has(_ context.Context, key string) (bool, error) {
	defer c.ws.lock()()
	coll, err := c.get()
	if err != nil {
		return false, err
	}
	_, ok := coll.index[key]
	return ok, nil
}

func (c *collectionHandle) Documents(ctx context.Context) ([]store.Document, error) {
	return c.Page(ctx, 0, -1)
}

// Page copies up to limit documents starting at offset. A negative limit
// reads to the end.
func (c *collectionHandle) Page(_ context.Context, offset, limit int) ([]store.Document, error) {
	defer c.ws.lock()()
	coll, err := c.get()
	if err != nil {
		return nil, err
	}

	docs := coll.docs[min(max(offset, 0), len(coll.docs)):]
	if limit >= 0 && limit < len(docs) {
		docs = docs[:limit]
	}

	out := make([]store.Document, len(docs))
	for i, doc := range docs {
		cp := make(store.Document, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}

func (c *collectionHandle) Count(_ context.Context) (int64, error) {
	defer c.ws.lock()()
	coll, err := c.get()
	if err != nil {
		return 0, err
	}
	return int64(len(coll.docs)), nil
}
