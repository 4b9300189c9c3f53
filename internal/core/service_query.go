package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/multinet/internal/store"
)

// Row paging limits for TableRows.
const (
	DefaultRowLimit = 30
	MaxRowLimit     = 1000
)

// TableRowsResult is one page of a table.
type TableRowsResult struct {
	Count int64            `json:"count"` // total documents in the table
	Rows  []store.Document `json:"rows"`
}

// Workspaces returns every workspace name in sorted order.
func (s *Service) Workspaces(ctx context.Context) ([]string, error) {
	names, err := s.store.Workspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return names, nil
}

// TableRows returns up to limit documents of a table starting at offset,
// in insertion order, with _id and _rev removed.
//
// A negative offset is treated as 0. A limit outside 1..MaxRowLimit falls
// back to DefaultRowLimit or MaxRowLimit.
func (s *Service) TableRows(ctx context.Context, workspace, table string, offset, limit int) (*TableRowsResult, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	limit = min(limit, MaxRowLimit)

	ws, err := s.store.Workspace(ctx, workspace)
	if err != nil {
		return nil, err
	}
	coll, err := ws.Collection(ctx, table)
	if err != nil {
		return nil, err
	}

	count, err := coll.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	docs, err := coll.Page(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	rows := make([]store.Document, len(docs))
	for i, d := range docs {
		rows[i] = store.StripSystemFields(d)
	}
	return &TableRowsResult{Count: count, Rows: rows}, nil
}
