// Package selector builds the storage backend a dataset asks for from the
// client handles created at startup.
package selector

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/config"
	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/storage"
	"github.com/pqaidevteam/pqai-db/internal/storage/local"
	"github.com/pqaidevteam/pqai-db/internal/storage/mongo"
	"github.com/pqaidevteam/pqai-db/internal/storage/postgres"
	"github.com/pqaidevteam/pqai-db/internal/storage/s3"
)

// Selector holds shared client handles. A nil handle means that source is
// not available.
type Selector struct {
	ObjectStore s3.ObjectAPI
	Documents   mongo.Opener
	SQL         *sql.DB
}

// Select returns the backend for ds. It performs no I/O beyond what backend
// constructors do (the filesystem backend stats its root, the SQL backend
// creates its table).
func (s *Selector) Select(ctx context.Context, ds config.Dataset) (storage.Backend, error) {
	source, err := storage.ParseSource(ds.Storage)
	if err != nil {
		return nil, errors.Annotatef(err, "dataset %s", ds.Name)
	}

	var backend storage.Backend
	switch source {
	case storage.SourceFilesystem:
		backend, err = local.New(local.Config{RootPath: ds.Root, CreateDirs: true})

	case storage.SourceObjectStore:
		if s.ObjectStore == nil {
			return nil, errors.NotProvisionedf("object store client for dataset %s", ds.Name)
		}
		backend, err = s3.NewBackend(s.ObjectStore, ds.Bucket)

	case storage.SourceDocumentStore:
		if s.Documents == nil {
			return nil, errors.NotProvisionedf("document store session for dataset %s", ds.Name)
		}
		backend, err = mongo.New(s.Documents, ds.Mongo)

	case storage.SourceSQL:
		if s.SQL == nil {
			return nil, errors.NotProvisionedf("database handle for dataset %s", ds.Name)
		}
		var pg *postgres.Backend
		pg, err = postgres.New(s.SQL, ds.Table)
		if err == nil {
			err = pg.EnsureSchema(ctx)
		}
		backend = pg
	}
	if err != nil {
		return nil, errors.Annotatef(err, "dataset %s", ds.Name)
	}

	logging.Info("storage selected",
		zap.String("dataset", ds.Name),
		zap.String("source", string(source)),
		zap.String("backend", backend.Type()))
	return backend, nil
}
