// Package backend opens the storage backend selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/multinet/internal/config"
	"github.com/JonMunkholm/multinet/internal/store"
	"github.com/JonMunkholm/multinet/internal/store/arango"
	"github.com/JonMunkholm/multinet/internal/store/memstore"
	"github.com/JonMunkholm/multinet/internal/store/postgres"
)

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	backend := strings.ToLower(cfg.Backend)

	switch backend {
	case config.BackendArango:
		st, err := arango.Open(ctx, arango.Config{
			Endpoints: splitEndpoints(cfg.URL),
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("open arango store: %w", err)
		}
		slog.Info("store opened", "backend", backend)
		return st, nil

	case config.BackendPostgres:
		st, err := postgres.Open(ctx, cfg.URL, postgres.Options{
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("store opened", "backend", backend, "max_conns", cfg.MaxConns)
		return st, nil

	case config.BackendMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func splitEndpoints(url string) []string {
	var out []string
	for _, ep := range strings.Split(url, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			out = append(out, ep)
		}
	}
	return out
}
