// Package app wires configuration, storage clients and backends into a
// document service.
package app

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/config"
	"github.com/pqaidevteam/pqai-db/internal/documents"
	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/retry"
	"github.com/pqaidevteam/pqai-db/internal/storage"
	"github.com/pqaidevteam/pqai-db/internal/storage/mongo"
	"github.com/pqaidevteam/pqai-db/internal/storage/postgres"
	"github.com/pqaidevteam/pqai-db/internal/storage/s3"
	"github.com/pqaidevteam/pqai-db/internal/storage/selector"
	"github.com/pqaidevteam/pqai-db/internal/thumbnail"
)

// App owns the clients and backends built at startup.
type App struct {
	Service *documents.Service

	backends []storage.Backend
	mongo    *mongo.SessionOpener
	db       *sql.DB
}

// Open connects to every storage source the configuration selects and
// builds the backends. Connections to the document store and SQL database
// are retried with backoff; nothing after startup retries.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	sel := &selector.Selector{}

	if cfg.Uses(storage.SourceObjectStore) {
		client, err := s3.NewClient(ctx, s3.ClientConfig{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Timeout:   cfg.S3.Timeout,
		})
		if err != nil {
			return nil, err
		}
		sel.ObjectStore = client
		logging.Info("object store client ready",
			zap.String("endpoint", cfg.S3.Endpoint),
			zap.String("region", cfg.S3.Region))
	}

	if cfg.Uses(storage.SourceDocumentStore) {
		opener, err := retry.DoWithResult(ctx, retry.StartupConfig(), "mongodb",
			func(context.Context) (*mongo.SessionOpener, error) {
				opener, err := mongo.Dial(cfg.Mongo)
				if errors.Is(err, errors.NotValid) {
					return nil, retry.Permanent(err)
				}
				return opener, err
			})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mongo = opener
		sel.Documents = opener
		logging.Info("document store connected")
	}

	if cfg.Uses(storage.SourceSQL) {
		db, err := retry.DoWithResult(ctx, retry.StartupConfig(), "postgres",
			func(ctx context.Context) (*sql.DB, error) {
				return postgres.Open(ctx, cfg.DatabaseURL)
			})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		sel.SQL = db
		logging.Info("database connected")
	}

	svc := &documents.Service{Resizer: thumbnail.New()}
	targets := map[*config.Dataset]*storage.Backend{
		&cfg.Patents:      &svc.Patents,
		&cfg.Drawings:     &svc.Drawings,
		&cfg.Bibliography: &svc.Bibliography,
	}
	for _, ds := range cfg.Datasets() {
		if !ds.Enabled() {
			continue
		}
		backend, err := sel.Select(ctx, *ds)
		if err != nil {
			a.Close()
			return nil, err
		}
		*targets[ds] = backend
		a.backends = append(a.backends, backend)
	}

	a.Service = svc
	return a, nil
}

// Backend returns the backend serving the named dataset.
func (a *App) Backend(cfg *config.Config, name string) (storage.Backend, error) {
	ds, err := cfg.Dataset(name)
	if err != nil {
		return nil, err
	}
	switch ds {
	case &cfg.Patents:
		return a.Service.Patents, nil
	case &cfg.Drawings:
		return a.Service.Drawings, nil
	}
	if a.Service.Bibliography == nil {
		return nil, documents.ErrDatasetNotConfigured
	}
	return a.Service.Bibliography, nil
}

// Close releases backends and shared clients.
func (a *App) Close() {
	for _, b := range a.backends {
		if err := b.Close(); err != nil {
			logging.Warn("backend close failed", zap.String("backend", b.Type()), zap.Error(err))
		}
	}
	if a.mongo != nil {
		a.mongo.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
