package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := New(Config{RootPath: t.TempDir(), CreateDirs: true})
	require.NoError(t, err)
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	data := make([]byte, 43060)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, b.Put(ctx, "images/07654321-1.tif", data))

	got, err := b.Get(ctx, "images/07654321-1.tif")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// No temp files are left next to the object.
	entries, err := os.ReadDir(filepath.Join(b.Root(), "images"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutOverwrites(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "patents/US1.json", []byte(`{"v":1}`)))
	require.NoError(t, b.Put(ctx, "patents/US1.json", []byte(`{"v":2}`)))

	got, err := b.Get(ctx, "patents/US1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))
}

func TestGetMissing(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Get(context.Background(), "patents/US0.json")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestRemoveTwiceReportsNotFound(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "patents/US1.json", []byte(`{}`)))

	ok, err := b.Exists(ctx, "patents/US1.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Remove(ctx, "patents/US1.json"))
	err = b.Remove(ctx, "patents/US1.json")
	assert.True(t, errors.Is(err, errors.NotFound))

	ok, err = b.Exists(ctx, "patents/US1.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveDirectory(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Join(b.Root(), "images"), 0755))

	err := b.Remove(context.Background(), "images")
	assert.True(t, errors.Is(err, errors.NotValid))

	ok, err := b.Exists(context.Background(), "images")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")
}

func TestListFiltersLastSegment(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	for n := 1; n <= 8; n++ {
		require.NoError(t, b.Put(ctx, fmt.Sprintf("images/07654321-%d.tif", n), []byte("x")))
	}
	require.NoError(t, b.Put(ctx, "images/07654322-1.tif", []byte("x")))

	listing, err := b.List(ctx, "images/07654321-")
	require.NoError(t, err)
	assert.Len(t, listing.Keys, 8)
	assert.Contains(t, listing.Keys, "07654321-8.tif")
	assert.False(t, listing.Truncated)

	listing, err = b.List(ctx, "images/")
	require.NoError(t, err)
	assert.Len(t, listing.Keys, 9)

	listing, err = b.List(ctx, "images")
	require.NoError(t, err)
	assert.Len(t, listing.Keys, 9)
}

func TestListMissingDirectory(t *testing.T) {
	b := newTestBackend(t)
	listing, err := b.List(context.Background(), "images/US1-")
	require.NoError(t, err)
	assert.Empty(t, listing.Keys)
}

func TestKeysStayUnderRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "data")
	b, err := New(Config{RootPath: root, CreateDirs: true})
	require.NoError(t, err)
	ctx := context.Background()

	outside := filepath.Join(parent, "escaped.json")
	require.NoError(t, os.WriteFile(outside, []byte(`{"secret":true}`), 0644))

	for _, key := range []string{
		"patents/../../escaped.json",
		"../escaped.json",
		"/etc/passwd",
	} {
		err := b.Put(ctx, key, []byte(`{}`))
		assert.True(t, errors.Is(err, errors.NotValid), "put %s: %v", key, err)

		_, err = b.Get(ctx, key)
		assert.True(t, errors.Is(err, errors.NotValid), "get %s: %v", key, err)

		_, err = b.Exists(ctx, key)
		assert.True(t, errors.Is(err, errors.NotValid), "exists %s: %v", key, err)

		err = b.Remove(ctx, key)
		assert.True(t, errors.Is(err, errors.NotValid), "remove %s: %v", key, err)
	}

	_, err = b.List(ctx, "../")
	assert.True(t, errors.Is(err, errors.NotValid), "list: %v", err)

	data, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, `{"secret":true}`, string(data))
	_, err = os.Stat(filepath.Join(parent, "etc"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.Is(err, errors.NotValid))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = New(Config{RootPath: file})
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = New(Config{RootPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	b, err := New(Config{RootPath: filepath.Join(t.TempDir(), "created"), CreateDirs: true})
	require.NoError(t, err)
	assert.Equal(t, "local", b.Type())
}
