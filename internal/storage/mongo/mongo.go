// Package mongo provides a document-store backend. Each key maps to a single
// document in a collection, addressed by the value of an identifying field.
// Document content crosses the Backend boundary as a JSON object.
package mongo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/metrics"
	"github.com/pqaidevteam/pqai-db/internal/storage"
)

// DefaultField is the identifying field used when none is configured.
const DefaultField = "publicationNumber"

// Collection is the subset of collection operations the backend needs.
// Every method reports a missing document with mgo.ErrNotFound.
type Collection interface {
	FindOne(selector bson.M) (bson.M, error)
	FindField(selector bson.M, field string, limit int) ([]string, error)
	Upsert(selector bson.M, doc bson.M) (*mgo.ChangeInfo, error)
	Remove(selector bson.M) error
}

// Opener hands out a collection for one operation. The returned func
// releases whatever the collection holds.
type Opener interface {
	Open(db, coll string) (Collection, func())
}

// Config describes one dataset stored in a collection.
type Config struct {
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Field      string `yaml:"field"`
	// KeyPrefix and KeySuffix are trimmed from keys to produce field values
	// and re-applied to values returned by List.
	KeyPrefix string `yaml:"key_prefix"`
	KeySuffix string `yaml:"key_suffix"`
}

// Backend implements storage.Backend on a document collection.
type Backend struct {
	opener Opener
	cfg    Config
}

var _ storage.Backend = (*Backend)(nil)

// New creates a document-store backend.
func New(opener Opener, cfg Config) (*Backend, error) {
	if opener == nil {
		return nil, errors.NotValidf("nil document store session")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.NotValidf("document store dataset without database or collection")
	}
	if cfg.Field == "" {
		cfg.Field = DefaultField
	}
	return &Backend{opener: opener, cfg: cfg}, nil
}

func (b *Backend) value(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, b.cfg.KeyPrefix), b.cfg.KeySuffix)
}

func (b *Backend) key(value string) string {
	return b.cfg.KeyPrefix + value + b.cfg.KeySuffix
}

// Get returns the document for key as compact JSON, without _id or the
// identifying field.
func (b *Backend) Get(_ context.Context, key string) (data []byte, err error) {
	defer observe("get", time.Now(), &err)

	coll, closer := b.opener.Open(b.cfg.Database, b.cfg.Collection)
	defer closer()

	doc, err := coll.FindOne(bson.M{b.cfg.Field: b.value(key)})
	if err == mgo.ErrNotFound || (err == nil && doc == nil) {
		return nil, errors.NotFoundf("key %q", key)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "find %s", key)
	}

	delete(doc, "_id")
	delete(doc, b.cfg.Field)
	data, err = json.Marshal(doc)
	if err != nil {
		return nil, errors.Annotatef(err, "encode %s", key)
	}
	return data, nil
}

// List matches the identifying field against prefix case-insensitively and
// returns at most storage.ListCap keys.
func (b *Backend) List(_ context.Context, prefix string) (listing storage.Listing, err error) {
	defer observe("list", time.Now(), &err)

	coll, closer := b.opener.Open(b.cfg.Database, b.cfg.Collection)
	defer closer()

	pattern := "^" + regexp.QuoteMeta(strings.TrimPrefix(prefix, b.cfg.KeyPrefix))
	selector := bson.M{b.cfg.Field: bson.RegEx{Pattern: pattern, Options: "i"}}
	values, err := coll.FindField(selector, b.cfg.Field, storage.ListCap+1)
	if err != nil {
		return storage.Listing{}, errors.Annotatef(err, "list %s", prefix)
	}

	if len(values) > storage.ListCap {
		values = values[:storage.ListCap]
		listing.Truncated = true
		metrics.RecordListTruncated("mongodb")
		logging.Warn("document store listing truncated",
			zap.String("collection", b.cfg.Collection),
			zap.String("prefix", prefix))
	}
	listing.Keys = make([]string, 0, len(values))
	for _, v := range values {
		listing.Keys = append(listing.Keys, b.key(v))
	}
	return listing, nil
}

// Exists reports whether a document with key's field value exists.
func (b *Backend) Exists(_ context.Context, key string) (ok bool, err error) {
	defer observe("exists", time.Now(), &err)

	coll, closer := b.opener.Open(b.cfg.Database, b.cfg.Collection)
	defer closer()

	doc, err := coll.FindOne(bson.M{b.cfg.Field: b.value(key)})
	if err == mgo.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Annotatef(err, "find %s", key)
	}
	return doc != nil, nil
}

// Remove deletes the document for key. A missing document is a no-op.
func (b *Backend) Remove(_ context.Context, key string) (err error) {
	defer observe("remove", time.Now(), &err)

	coll, closer := b.opener.Open(b.cfg.Database, b.cfg.Collection)
	defer closer()

	err = coll.Remove(bson.M{b.cfg.Field: b.value(key)})
	if err != nil && err != mgo.ErrNotFound {
		return errors.Annotatef(err, "remove %s", key)
	}
	return nil
}

// Put upserts data, which must be a JSON object, under key.
func (b *Backend) Put(_ context.Context, key string, data []byte) (err error) {
	defer observe("put", time.Now(), &err)

	doc, ok := decodeObject(data)
	if !ok {
		return errors.NotValidf("payload for %q (not a JSON object)", key)
	}
	value := b.value(key)
	doc[b.cfg.Field] = value

	coll, closer := b.opener.Open(b.cfg.Database, b.cfg.Collection)
	defer closer()

	info, err := coll.Upsert(bson.M{b.cfg.Field: value}, doc)
	if err != nil {
		return errors.Annotatef(err, "upsert %s", key)
	}
	if info == nil {
		return errors.Trace(storage.ErrWriteNotAcknowledged)
	}
	return nil
}

// Type returns "mongodb".
func (b *Backend) Type() string { return "mongodb" }

// Close is a no-op; the session is shared across datasets and closed by its owner.
func (b *Backend) Close() error { return nil }

// decodeObject parses a single JSON object. Integers that fit in int64 are
// stored as int64 so they survive the round trip exactly; other numbers
// become float64.
func decodeObject(data []byte) (bson.M, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc bson.M
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	convertNumbers(doc)
	return doc, true
}

func convertNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		for k, e := range t {
			t[k] = convertNumbers(e)
		}
	case map[string]interface{}:
		for k, e := range t {
			t[k] = convertNumbers(e)
		}
	case []interface{}:
		for i, e := range t {
			t[i] = convertNumbers(e)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	}
	return v
}

func observe(op string, start time.Time, err *error) {
	success := *err == nil || storage.IsNotFound(*err)
	metrics.RecordStorageOperation("mongodb", op, time.Since(start), success)
}
