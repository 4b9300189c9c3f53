package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/multinet/internal/config"
	"github.com/JonMunkholm/multinet/internal/store"
)

// DefaultUploadTimeout bounds a single upload when no timeout is configured.
const DefaultUploadTimeout = 5 * time.Minute

// Service provides the upload pipeline and the workspace queries around it.
type Service struct {
	store         store.Store
	uploadLimiter *UploadLimiter
	uploadTimeout time.Duration

	health atomic.Pointer[HealthStatus]
}

// NewService creates a Service writing to st.
func NewService(st store.Store, cfg config.UploadConfig) *Service {
	limiter := NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime)
	limiter.OnChange(observeLimiter)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}

	return &Service{
		store:         st,
		uploadLimiter: limiter,
		uploadTimeout: timeout,
	}
}

// UploadTimeout returns the per-upload deadline.
func (s *Service) UploadTimeout() time.Duration {
	return s.uploadTimeout
}

// UploadLimiterStatus returns the current upload slot usage.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.uploadLimiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx ends.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.uploadLimiter.WaitForDrain(ctx)
}

// Formats lists the registered upload formats.
func (s *Service) Formats() []FormatInfo {
	defs := All()
	infos := make([]FormatInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// CreateWorkspace creates an empty workspace. Returns
// store.ErrWorkspaceExists when the name is taken.
func (s *Service) CreateWorkspace(ctx context.Context, name string) error {
	if err := s.store.CreateWorkspace(ctx, name); err != nil {
		return fmt.Errorf("create workspace %s: %w", name, err)
	}
	return nil
}

// TableFilter selects which tables ListTables returns.
type TableFilter string

const (
	FilterAll  TableFilter = "all"
	FilterNode TableFilter = "node"
	FilterEdge TableFilter = "edge"
)

// ErrInvalidFilter is returned for an unknown table type filter.
var ErrInvalidFilter = errors.New("invalid parameter: type must be all, node or edge")

// ParseTableFilter parses a filter name. Empty means all.
func ParseTableFilter(s string) (TableFilter, error) {
	switch TableFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterNode, FilterEdge:
		return TableFilter(s), nil
	default:
		return "", ErrInvalidFilter
	}
}

func (f TableFilter) match(c store.CollectionInfo) bool {
	switch f {
	case FilterNode:
		return !c.Edge
	case FilterEdge:
		return c.Edge
	default:
		return true
	}
}

// ListTables returns the workspace's tables matching filter, sorted by name.
func (s *Service) ListTables(ctx context.Context, workspace string, filter TableFilter) ([]store.CollectionInfo, error) {
	ws, err := s.store.Workspace(ctx, workspace)
	if err != nil {
		return nil, err
	}

	all, err := ws.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]store.CollectionInfo, 0, len(all))
	for _, c := range all {
		if filter.match(c) {
			tables = append(tables, c)
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// TableDocuments returns every document in a table with _id and _rev
// removed, and whether the table is an edge table.
func (s *Service) TableDocuments(ctx context.Context, workspace, table string) ([]store.Document, bool, error) {
	ws, err := s.store.Workspace(ctx, workspace)
	if err != nil {
		return nil, false, err
	}

	coll, err := ws.Collection(ctx, table)
	if err != nil {
		return nil, false, err
	}

	docs, err := coll.Documents(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", table, err)
	}

	out := make([]store.Document, len(docs))
	for i, d := range docs {
		out[i] = store.StripSystemFields(d)
	}
	return out, coll.IsEdge(), nil
}
