package documents

import (
	"context"
	"errors"
	"fmt"
	"testing"

	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqaidevteam/pqai-db/internal/storage"
	"github.com/pqaidevteam/pqai-db/internal/storage/local"
)

// memBackend is a map-backed storage.Backend whose Remove of a missing key is
// a no-op, like the remote backends.
type memBackend struct {
	objects map[string][]byte
	err     error
	extra   []string
}

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, jujuerrors.NotFoundf("key %q", key)
	}
	return data, nil
}

func (m *memBackend) List(_ context.Context, prefix string) (storage.Listing, error) {
	if m.err != nil {
		return storage.Listing{}, m.err
	}
	var l storage.Listing
	for k := range m.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			l.Keys = append(l.Keys, k)
		}
	}
	l.Keys = append(l.Keys, m.extra...)
	return l, nil
}

func (m *memBackend) Exists(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memBackend) Remove(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.objects, key)
	return nil
}

func (m *memBackend) Put(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = data
	return nil
}

func (m *memBackend) Type() string { return "memory" }
func (m *memBackend) Close() error { return nil }

type stubResizer struct {
	err error
	w   int
	h   int
}

func (r *stubResizer) Resize(data []byte, w, h int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.w, r.h = w, h
	return append([]byte("thumb:"), data...), nil
}

func newTestService(t *testing.T) (*Service, *memBackend, *memBackend) {
	t.Helper()
	patents, drawings := newMemBackend(), newMemBackend()
	return &Service{Patents: patents, Drawings: drawings, Resizer: &stubResizer{}}, patents, drawings
}

func TestGetDocument(t *testing.T) {
	svc, patents, _ := newTestService(t)
	patents.objects["patents/US7654321B2.json"] = []byte(`{"publicationNumber":"US7654321B2","title":"Widget"}`)

	doc, err := svc.GetDocument(context.Background(), "US7654321B2")
	require.NoError(t, err)
	assert.Equal(t, "US7654321B2", doc["publicationNumber"])

	_, err = svc.GetDocument(context.Background(), "US0000000B1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestGetDocumentStorageFailure(t *testing.T) {
	svc, patents, _ := newTestService(t)
	patents.err = errors.New("connection reset")

	_, err := svc.GetDocument(context.Background(), "US7654321B2")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrDocumentNotFound)
}

func TestGetDocumentCorruptRecord(t *testing.T) {
	svc, patents, _ := newTestService(t)
	patents.objects["patents/US1.json"] = []byte(`[1,2,3]`)

	_, err := svc.GetDocument(context.Background(), "US1")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestListDrawingsSortedNumerically(t *testing.T) {
	svc, _, drawings := newTestService(t)
	for _, n := range []int{10, 2, 1, 8, 3, 9, 4, 5, 6, 7} {
		drawings.objects[fmt.Sprintf("images/07654321-%d.tif", n)] = []byte("x")
	}

	got, err := svc.ListDrawings(context.Background(), "US7654321B2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got.Numbers)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, got.Strings())
	assert.False(t, got.Truncated)
}

func TestListDrawingsOnFilesystem(t *testing.T) {
	fs, err := local.New(local.Config{RootPath: t.TempDir(), CreateDirs: true})
	require.NoError(t, err)
	svc := &Service{Patents: fs, Drawings: fs, Resizer: &stubResizer{}}
	ctx := context.Background()

	for n := 1; n <= 8; n++ {
		require.NoError(t, svc.PutDrawing(ctx, "US7654321B2", n, []byte("tiff")))
	}

	got, err := svc.ListDrawings(ctx, "US7654321B2")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, got.Strings())

	removed, err := svc.DeleteDrawings(ctx, "US7654321B2")
	require.NoError(t, err)
	assert.Equal(t, 8, removed)

	_, err = svc.ListDrawings(ctx, "US7654321B2")
	assert.ErrorIs(t, err, ErrDrawingsNotFound)
}

func TestDeleteDrawingsCountsEachDrawingOnce(t *testing.T) {
	fs, err := local.New(local.Config{RootPath: t.TempDir(), CreateDirs: true})
	require.NoError(t, err)
	svc := &Service{Patents: fs, Drawings: fs, Resizer: &stubResizer{}}
	ctx := context.Background()

	// A stray copy in a subdirectory lists drawing 2 a second time.
	require.NoError(t, fs.Put(ctx, "images/07654321-1.tif", []byte("1")))
	require.NoError(t, fs.Put(ctx, "images/07654321-2.tif", []byte("2")))
	require.NoError(t, fs.Put(ctx, "images/old/07654321-2.tif", []byte("2")))

	drawings, err := svc.ListDrawings(ctx, "US7654321B2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, drawings.Numbers)

	removed, err := svc.DeleteDrawings(ctx, "US7654321B2")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestUnsafeIdentifiersAddressNothing(t *testing.T) {
	svc, patents, drawings := newTestService(t)
	svc.Bibliography = newMemBackend()
	ctx := context.Background()

	for _, id := range []string{"../../escaped", "..", "a/b", `..\escaped`, ""} {
		_, err := svc.GetDocument(ctx, id)
		assert.ErrorIs(t, err, ErrDocumentNotFound, id)
		assert.ErrorIs(t, svc.PutDocument(ctx, id, []byte(`{}`)), ErrDocumentNotFound, id)
		assert.ErrorIs(t, svc.DeleteDocument(ctx, id), ErrDocumentNotFound, id)
		_, err = svc.GetBibliography(ctx, id)
		assert.ErrorIs(t, err, ErrDocumentNotFound, id)

		_, err = svc.ListDrawings(ctx, id)
		assert.ErrorIs(t, err, ErrDrawingsNotFound, id)
		assert.ErrorIs(t, svc.PutDrawing(ctx, id, 1, []byte("x")), ErrDrawingNotFound, id)
		_, err = svc.GetDrawing(ctx, id, 1)
		assert.ErrorIs(t, err, ErrDrawingNotFound, id)
	}
	// Application-length ids are embedded verbatim in drawing keys.
	long := "../../../escapedimg"
	assert.ErrorIs(t, svc.PutDrawing(ctx, long, 1, []byte("x")), ErrDrawingNotFound)

	assert.Empty(t, patents.objects)
	assert.Empty(t, drawings.objects)
}

func TestListDrawingsErrors(t *testing.T) {
	svc, _, drawings := newTestService(t)
	ctx := context.Background()

	_, err := svc.ListDrawings(ctx, "US7654321B2")
	assert.ErrorIs(t, err, ErrDrawingsNotFound)

	_, err = svc.ListDrawings(ctx, "NODIGITS")
	assert.ErrorIs(t, err, ErrDrawingsNotFound)

	drawings.objects["images/07654321-1.tif"] = []byte("x")
	drawings.extra = []string{"images/07654321-cover.tif"}
	_, err = svc.ListDrawings(ctx, "US7654321B2")
	assert.ErrorIs(t, err, ErrMalformedKey)

	drawings.err = errors.New("timeout")
	_, err = svc.ListDrawings(ctx, "US7654321B2")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestGetDrawing(t *testing.T) {
	svc, _, drawings := newTestService(t)
	drawings.objects["images/US20130091450A1-2.tif"] = []byte("drawing-2")
	ctx := context.Background()

	data, err := svc.GetDrawing(ctx, "US20130091450A1", 2)
	require.NoError(t, err)
	assert.Equal(t, "drawing-2", string(data))

	_, err = svc.GetDrawing(ctx, "US20130091450A1", 3)
	assert.ErrorIs(t, err, ErrDrawingNotFound)

	for _, n := range []int{0, -1} {
		_, err = svc.GetDrawing(ctx, "US20130091450A1", n)
		assert.ErrorIs(t, err, ErrInvalidDrawingNumber)
	}
}

func TestGetThumbnail(t *testing.T) {
	svc, _, drawings := newTestService(t)
	drawings.objects["images/07654321-1.tif"] = []byte("tiff")
	ctx := context.Background()

	thumb, err := svc.GetThumbnail(ctx, "US7654321B2", 1, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "thumb:tiff", string(thumb))
	resizer := svc.Resizer.(*stubResizer)
	assert.Equal(t, 100, resizer.w)
	assert.Equal(t, 100, resizer.h)

	_, err = svc.GetThumbnail(ctx, "US7654321B2", 1, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = svc.GetThumbnail(ctx, "US7654321B2", 0, 100, 100)
	assert.ErrorIs(t, err, ErrInvalidDrawingNumber)

	resizer.err = errors.New("unknown format")
	_, err = svc.GetThumbnail(ctx, "US7654321B2", 1, 100, 100)
	assert.ErrorIs(t, err, ErrImageProcessing)
}

func TestPutDocument(t *testing.T) {
	svc, patents, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.PutDocument(ctx, "US1", []byte(`{"title":"x"}`)))
	assert.Contains(t, patents.objects, "patents/US1.json")

	for _, bad := range []string{`[]`, `null`, `{`, `"s"`} {
		assert.ErrorIs(t, svc.PutDocument(ctx, "US1", []byte(bad)), ErrMalformedPayload, bad)
	}
}

func TestDeleteDocumentNormalizesMissing(t *testing.T) {
	ctx := context.Background()

	// Remote-style backend: Remove of a missing key succeeds.
	svc, patents, _ := newTestService(t)
	patents.objects["patents/US1.json"] = []byte(`{}`)
	require.NoError(t, svc.DeleteDocument(ctx, "US1"))
	assert.ErrorIs(t, svc.DeleteDocument(ctx, "US1"), ErrDocumentNotFound)

	// Filesystem backend: Remove of a missing key is NotFound.
	fs, err := local.New(local.Config{RootPath: t.TempDir(), CreateDirs: true})
	require.NoError(t, err)
	svc = &Service{Patents: fs, Drawings: fs}
	require.NoError(t, svc.PutDocument(ctx, "US1", []byte(`{}`)))
	require.NoError(t, svc.DeleteDocument(ctx, "US1"))
	assert.ErrorIs(t, svc.DeleteDocument(ctx, "US1"), ErrDocumentNotFound)
}

func TestDeleteDrawing(t *testing.T) {
	svc, _, drawings := newTestService(t)
	drawings.objects["images/07654321-1.tif"] = []byte("x")
	ctx := context.Background()

	require.NoError(t, svc.DeleteDrawing(ctx, "US7654321B2", 1))
	assert.ErrorIs(t, svc.DeleteDrawing(ctx, "US7654321B2", 1), ErrDrawingNotFound)
	assert.ErrorIs(t, svc.DeleteDrawing(ctx, "US7654321B2", 0), ErrInvalidDrawingNumber)
}

func TestGetBibliography(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetBibliography(ctx, "US1")
	assert.ErrorIs(t, err, ErrDatasetNotConfigured)

	bib := newMemBackend()
	bib.objects["bibliography/US1.json"] = []byte(`{"citations":["US2"]}`)
	svc.Bibliography = bib

	doc, err := svc.GetBibliography(ctx, "US1")
	require.NoError(t, err)
	assert.Equal(t, []any{"US2"}, doc["citations"])

	_, err = svc.GetBibliography(ctx, "US3")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
