package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/multinet/internal/logging"
	"github.com/JonMunkholm/multinet/internal/store"
)

var (
	// ErrUnknownFormat is returned for a format key nothing registered.
	ErrUnknownFormat = errors.New("unknown upload format")

	// ErrCollectionKindMismatch is returned when an upload targets an
	// existing table of the other kind (node rows into an edge table or
	// the reverse).
	ErrCollectionKindMismatch = errors.New("table kind mismatch")
)

// Validate decodes body and runs the format's validation and transform
// without touching storage. The plan it returns is what Upload would write.
func (s *Service) Validate(format string, body []byte, opts BuildOptions) (*Plan, error) {
	return BuildPlan(format, body, opts)
}

// BuildPlan is Validate without a Service, for offline callers such as the
// command line validator.
func BuildPlan(format string, body []byte, opts BuildOptions) (*Plan, error) {
	def, ok := Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	text, err := DecodeData(body)
	if err != nil {
		return nil, err
	}

	return def.Build(text, opts)
}

// Upload validates req and writes the resulting tables in one transaction.
//
// Returns ErrTooManyUploads if no upload slot frees up in time, a
// *ValidationFailed listing every defect, or a store error. Nothing is
// written unless validation passes for the whole body.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	start := time.Now()

	if _, ok := Get(req.Format); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, req.Format)
	}

	logger := logging.WithFields(ctx,
		"format", req.Format,
		"workspace", req.Workspace,
		"table", req.Options.Table,
	).With(requestAttrs(ctx)...)

	if err := s.uploadLimiter.Acquire(ctx); err != nil {
		recordUpload(req.Format, start, 0, err)
		logger.Warn("upload rejected", "error", err)
		return nil, err
	}
	defer s.uploadLimiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	result, err := s.upload(ctx, req)
	inserted := 0
	if result != nil {
		inserted = result.Inserted
	}
	recordUpload(req.Format, start, inserted, err)

	if err != nil {
		if _, ok := AsValidationFailed(err); ok {
			logger.Info("upload failed validation", "error", err)
		} else {
			logger.Error("upload failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		}
		return nil, err
	}

	result.Duration = time.Since(start)
	logger.Info("upload completed",
		"tables", result.Tables,
		"inserted", result.Inserted,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	plan, err := BuildPlan(req.Format, req.Body, req.Options)
	if err != nil {
		return nil, err
	}

	ws, err := s.store.Workspace(ctx, req.Workspace)
	if err != nil {
		return nil, err
	}

	if err := ensureCollections(ctx, ws, plan); err != nil {
		return nil, err
	}

	inserted := 0
	err = ws.RunInTransaction(ctx, plan.TableNames(), func(ctx context.Context, tx store.Workspace) error {
		inserted = 0
		for _, table := range plan.Tables {
			n, err := insertTable(ctx, tx, table)
			if err != nil {
				return fmt.Errorf("insert into %s: %w", table.Name, err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Format:    req.Format,
		Workspace: req.Workspace,
		Tables:    plan.TableNames(),
		Counts:    plan.Counts,
		Inserted:  inserted,
	}, nil
}

// ensureCollections creates missing tables with the plan's kind and
// rejects existing tables of the other kind. Collections must exist before
// a transaction can name them, so this runs outside it.
func ensureCollections(ctx context.Context, ws store.Workspace, plan *Plan) error {
	for _, table := range plan.Tables {
		exists, err := ws.HasCollection(ctx, table.Name)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table.Name, err)
		}

		if !exists {
			if _, err := ws.CreateCollection(ctx, table.Name, table.Kind.Edge()); err != nil && !errors.Is(err, store.ErrCollectionExists) {
				return fmt.Errorf("create table %s: %w", table.Name, err)
			}
			continue
		}

		coll, err := ws.Collection(ctx, table.Name)
		if err != nil {
			return fmt.Errorf("open table %s: %w", table.Name, err)
		}
		if coll.IsEdge() != table.Kind.Edge() {
			return fmt.Errorf("%w: %s is not a %s table", ErrCollectionKindMismatch, table.Name, table.Kind)
		}
	}
	return nil
}

// insertBatchSize bounds the documents sent in one InsertMany call.
const insertBatchSize = 1000

// insertTable writes one table's records in batches. With SkipExisting,
// records whose key is already stored are left out.
func insertTable(ctx context.Context, tx store.Workspace, table Table) (int, error) {
	coll, err := tx.Collection(ctx, table.Name)
	if err != nil {
		return 0, err
	}

	docs := make([]store.Document, 0, len(table.Records))
	for _, rec := range table.Records {
		if table.SkipExisting && rec.Key != "" {
			exists, err := coll.Has(ctx, rec.Key)
			if err != nil {
				return 0, err
			}
			if exists {
				continue
			}
		}
		docs = append(docs, rec.Document())
	}

	inserted := 0
	for start := 0; start < len(docs); start += insertBatchSize {
		end := min(start+insertBatchSize, len(docs))
		metas, err := coll.InsertMany(ctx, docs[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += len(metas)
	}
	return inserted, nil
}
