package storage

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	cases := map[string]Source{
		"local":          SourceFilesystem,
		"LocalStorage":   SourceFilesystem,
		" filesystem ":   SourceFilesystem,
		"s3":             SourceObjectStore,
		"object-store":   SourceObjectStore,
		"mongodb":        SourceDocumentStore,
		"MONGO":          SourceDocumentStore,
		"document-store": SourceDocumentStore,
		"postgres":       SourceSQL,
		"sql":            SourceSQL,
	}
	for token, want := range cases {
		got, err := ParseSource(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got, token)
	}
}

func TestParseSourceUnknown(t *testing.T) {
	for _, token := range []string{"", "gcs", "redis", "s4"} {
		_, err := ParseSource(token)
		assert.True(t, errors.Is(err, ErrUnknownStorageSource), token)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(errors.NotFoundf("key %q", "a")))
	assert.True(t, IsNotFound(errors.Annotate(errors.NotFoundf("key"), "get")))
	assert.False(t, IsNotFound(errors.New("connection refused")))
	assert.False(t, IsNotFound(nil))
}
