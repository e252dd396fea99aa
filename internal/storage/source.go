package storage

import (
	"strings"

	"github.com/juju/errors"
)

// Source names a storage medium.
type Source string

const (
	SourceFilesystem    Source = "filesystem"
	SourceObjectStore   Source = "object-store"
	SourceDocumentStore Source = "document-store"
	SourceSQL           Source = "sql"
)

var sourceAliases = map[string]Source{
	"filesystem":     SourceFilesystem,
	"local":          SourceFilesystem,
	"localstorage":   SourceFilesystem,
	"object-store":   SourceObjectStore,
	"s3":             SourceObjectStore,
	"document-store": SourceDocumentStore,
	"mongodb":        SourceDocumentStore,
	"mongo":          SourceDocumentStore,
	"sql":            SourceSQL,
	"postgres":       SourceSQL,
}

// ParseSource normalizes a storage source token. Matching ignores case and
// surrounding space; unknown tokens yield ErrUnknownStorageSource.
func ParseSource(token string) (Source, error) {
	if s, ok := sourceAliases[strings.ToLower(strings.TrimSpace(token))]; ok {
		return s, nil
	}
	return "", errors.Annotatef(ErrUnknownStorageSource, "%q", token)
}
