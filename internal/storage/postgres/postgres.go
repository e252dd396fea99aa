// Package postgres provides a storage backend that keeps objects as rows of a
// PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/metrics"
	"github.com/pqaidevteam/pqai-db/internal/storage"
)

// DefaultTable is used when no table is configured.
const DefaultTable = "storage_objects"

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Annotate(err, "open database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "ping database")
	}
	return db, nil
}

// Backend implements storage.Backend on a (key, data) table.
type Backend struct {
	db    *sql.DB
	table string

	getQuery    string
	listQuery   string
	existsQuery string
	deleteQuery string
	putQuery    string
}

var _ storage.Backend = (*Backend)(nil)

// New creates a backend over table, which EnsureSchema can create.
func New(db *sql.DB, table string) (*Backend, error) {
	if db == nil {
		return nil, errors.NotValidf("nil database handle")
	}
	if table == "" {
		table = DefaultTable
	}
	t := pq.QuoteIdentifier(table)
	return &Backend{
		db:          db,
		table:       table,
		getQuery:    `SELECT data FROM ` + t + ` WHERE key = $1`,
		listQuery:   `SELECT key FROM ` + t + ` WHERE key LIKE $1 ORDER BY key LIMIT $2`,
		existsQuery: `SELECT EXISTS (SELECT 1 FROM ` + t + ` WHERE key = $1)`,
		deleteQuery: `DELETE FROM ` + t + ` WHERE key = $1`,
		putQuery: `INSERT INTO ` + t + ` (key, data) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`,
	}, nil
}

// EnsureSchema creates the backing table if it does not exist.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+pq.QuoteIdentifier(b.table)+` (
		key  TEXT PRIMARY KEY,
		data BYTEA NOT NULL
	)`)
	if err != nil {
		return errors.Annotatef(err, "create table %s", b.table)
	}
	logging.Debug("storage table ready", zap.String("table", b.table))
	return nil
}

// Get returns the data stored under key.
func (b *Backend) Get(ctx context.Context, key string) (data []byte, err error) {
	defer observe("get", time.Now(), &err)

	err = b.db.QueryRowContext(ctx, b.getQuery, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("key %q", key)
	}
	if err != nil {
		return nil, annotate(err, "get %s", key)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// List returns up to storage.ListCap keys starting with prefix, in key order.
func (b *Backend) List(ctx context.Context, prefix string) (listing storage.Listing, err error) {
	defer observe("list", time.Now(), &err)

	rows, err := b.db.QueryContext(ctx, b.listQuery, escapeLike(prefix)+"%", storage.ListCap+1)
	if err != nil {
		return storage.Listing{}, annotate(err, "list %s", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return storage.Listing{}, errors.Annotate(err, "scan key")
		}
		listing.Keys = append(listing.Keys, key)
	}
	if err := rows.Err(); err != nil {
		return storage.Listing{}, annotate(err, "list %s", prefix)
	}

	if len(listing.Keys) > storage.ListCap {
		listing.Keys = listing.Keys[:storage.ListCap]
		listing.Truncated = true
		metrics.RecordListTruncated("postgres")
	}
	return listing, nil
}

// Exists reports whether a row exists for key.
func (b *Backend) Exists(ctx context.Context, key string) (ok bool, err error) {
	defer observe("exists", time.Now(), &err)

	if err := b.db.QueryRowContext(ctx, b.existsQuery, key).Scan(&ok); err != nil {
		return false, annotate(err, "exists %s", key)
	}
	return ok, nil
}

// Remove deletes the row for key. A missing key is a no-op.
func (b *Backend) Remove(ctx context.Context, key string) (err error) {
	defer observe("remove", time.Now(), &err)

	if _, err := b.db.ExecContext(ctx, b.deleteQuery, key); err != nil {
		return annotate(err, "delete %s", key)
	}
	return nil
}

// Put inserts or replaces the row for key.
func (b *Backend) Put(ctx context.Context, key string, data []byte) (err error) {
	defer observe("put", time.Now(), &err)

	if data == nil {
		data = []byte{}
	}
	if _, err := b.db.ExecContext(ctx, b.putQuery, key, data); err != nil {
		return annotate(err, "put %s", key)
	}
	return nil
}

// Type returns "postgres".
func (b *Backend) Type() string { return "postgres" }

// Close is a no-op; the database handle is shared and closed by its owner.
func (b *Backend) Close() error { return nil }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE wildcards so prefix matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// annotate adds the PostgreSQL error code, when there is one, to the message.
func annotate(err error, format string, args ...interface{}) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errors.Annotatef(err, format+" (sqlstate %s)", append(args, pqErr.Code)...)
	}
	return errors.Annotatef(err, format, args...)
}

func observe(op string, start time.Time, err *error) {
	success := *err == nil || storage.IsNotFound(*err)
	metrics.RecordStorageOperation("postgres", op, time.Since(start), success)
}
