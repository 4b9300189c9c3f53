package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/multinet/internal/logging"
)

// DeleteTable drops a table and all of its documents.
//
// Returns store.ErrWorkspaceNotFound or store.ErrCollectionNotFound when
// either does not exist. This is also how empty tables left behind by a
// failed upload are removed.
func (s *Service) DeleteTable(ctx context.Context, workspace, table string) error {
	ws, err := s.store.Workspace(ctx, workspace)
	if err != nil {
		return err
	}

	// Row count before delete, for the log line only
	var rows int64
	if coll, err := ws.Collection(ctx, table); err == nil {
		rows, _ = coll.Count(ctx)
	}

	if err := ws.DeleteCollection(ctx, table); err != nil {
		return fmt.Errorf("delete table %s: %w", table, err)
	}

	logging.WithFields(ctx, "workspace", workspace, "table", table).
		With(requestAttrs(ctx)...).
		Info("table deleted", "rows", rows)
	return nil
}

// DeleteWorkspace drops a workspace with every table in it.
func (s *Service) DeleteWorkspace(ctx context.Context, workspace string) error {
	if err := s.store.DeleteWorkspace(ctx, workspace); err != nil {
		return fmt.Errorf("delete workspace %s: %w", workspace, err)
	}

	logging.WithFields(ctx, "workspace", workspace).
		With(requestAttrs(ctx)...).
		Info("workspace deleted")
	return nil
}
