// Package documents serves patent records and drawings from storage backends.
// It translates backend errors into the sentinels below; callers never see
// backend-specific failures.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/keys"
	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/storage"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDrawingsNotFound     = errors.New("no drawings found")
	ErrDrawingNotFound      = errors.New("drawing not found")
	ErrInvalidDrawingNumber = errors.New("drawing number must be a positive integer")
	ErrInvalidDimensions    = errors.New("thumbnail dimensions must be positive")
	ErrImageProcessing      = errors.New("image processing failed")
	ErrMalformedKey         = errors.New("malformed drawing key in storage")
	ErrMalformedPayload     = errors.New("document must be a JSON object")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrDatasetNotConfigured = errors.New("dataset not configured")
)

// Resizer scales image bytes to exact dimensions.
type Resizer interface {
	Resize(data []byte, w, h int) ([]byte, error)
}

// Service implements document, drawing and thumbnail retrieval.
// Bibliography may be nil when that dataset is not configured.
type Service struct {
	Patents      storage.Backend
	Drawings     storage.Backend
	Bibliography storage.Backend
	Resizer      Resizer
}

// Drawings lists the drawing numbers available for a document.
type Drawings struct {
	Numbers   []int
	Truncated bool
}

// Strings returns the drawing numbers in decimal form.
func (d Drawings) Strings() []string {
	out := make([]string, len(d.Numbers))
	for i, n := range d.Numbers {
		out[i] = strconv.Itoa(n)
	}
	return out
}

func unavailable(ctx context.Context, op, key string, err error) error {
	logging.WithContext(ctx).Error("storage operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
	return fmt.Errorf("%w: %s %s", ErrStorageUnavailable, op, key)
}

// recordKey builds the key of a JSON record. Identifiers that are not a
// plain name address no record.
func recordKey(docID string, build func(string) string) (string, error) {
	if err := keys.CheckIdentifier(docID); err != nil {
		return "", fmt.Errorf("%w: %q", ErrDocumentNotFound, docID)
	}
	return build(docID), nil
}

// GetDocument returns the decoded JSON record of docID.
func (s *Service) GetDocument(ctx context.Context, docID string) (map[string]any, error) {
	key, err := recordKey(docID, keys.DocumentKey)
	if err != nil {
		return nil, err
	}
	data, err := s.Patents.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
		}
		return nil, unavailable(ctx, "get", key, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, unavailable(ctx, "decode", key, fmt.Errorf("stored record is not a JSON object: %v", err))
	}
	return doc, nil
}

// PutDocument stores data, which must be a JSON object, as the record of docID.
func (s *Service) PutDocument(ctx context.Context, docID string, data []byte) error {
	key, err := recordKey(docID, keys.DocumentKey)
	if err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return ErrMalformedPayload
	}

	if err := s.Patents.Put(ctx, key, data); err != nil {
		return unavailable(ctx, "put", key, err)
	}
	return nil
}

// DeleteDocument removes the record of docID. A missing record is reported
// as ErrDocumentNotFound regardless of backend.
func (s *Service) DeleteDocument(ctx context.Context, docID string) error {
	key, err := recordKey(docID, keys.DocumentKey)
	if err != nil {
		return err
	}
	return s.remove(ctx, s.Patents, key, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID))
}

func (s *Service) remove(ctx context.Context, b storage.Backend, key string, missing error) error {
	ok, err := b.Exists(ctx, key)
	if err != nil {
		return unavailable(ctx, "exists", key, err)
	}
	if !ok {
		return missing
	}
	if err := b.Remove(ctx, key); err != nil {
		if storage.IsNotFound(err) {
			return missing
		}
		return unavailable(ctx, "remove", key, err)
	}
	return nil
}

// ListDrawings returns the drawing numbers of docID in ascending order.
func (s *Service) ListDrawings(ctx context.Context, docID string) (Drawings, error) {
	prefix, err := keys.DrawingPrefix(docID)
	if err != nil {
		return Drawings{}, fmt.Errorf("%w: %s", ErrDrawingsNotFound, docID)
	}

	listing, err := s.Drawings.List(ctx, prefix)
	if err != nil {
		return Drawings{}, unavailable(ctx, "list", prefix, err)
	}
	if len(listing.Keys) == 0 {
		return Drawings{}, fmt.Errorf("%w: %s", ErrDrawingsNotFound, docID)
	}

	numbers := make([]int, 0, len(listing.Keys))
	for _, key := range listing.Keys {
		n, err := keys.DrawingNumber(key)
		if err != nil {
			logging.WithContext(ctx).Error("unparseable drawing key",
				zap.String("doc_id", docID),
				zap.String("key", key))
			return Drawings{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	// The same drawing can be listed twice (filesystem listings match by
	// substring across subdirectories).
	numbers = slices.Compact(numbers)

	return Drawings{Numbers: numbers, Truncated: listing.Truncated}, nil
}

func drawingKey(docID string, n int) (string, error) {
	if n < 1 {
		return "", ErrInvalidDrawingNumber
	}
	key, err := keys.DrawingKey(docID, n)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDrawingNotFound, docID)
	}
	return key, nil
}

// GetDrawing returns the raw bytes of drawing n of docID.
func (s *Service) GetDrawing(ctx context.Context, docID string, n int) ([]byte, error) {
	key, err := drawingKey(docID, n)
	if err != nil {
		return nil, err
	}
	data, err := s.Drawings.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s #%d", ErrDrawingNotFound, docID, n)
		}
		return nil, unavailable(ctx, "get", key, err)
	}
	return data, nil
}

// GetThumbnail returns drawing n of docID resized to exactly w x h.
func (s *Service) GetThumbnail(ctx context.Context, docID string, n, w, h int) ([]byte, error) {
	if w < 1 || h < 1 {
		return nil, ErrInvalidDimensions
	}
	data, err := s.GetDrawing(ctx, docID, n)
	if err != nil {
		return nil, err
	}
	thumb, err := s.Resizer.Resize(data, w, h)
	if err != nil {
		logging.WithContext(ctx).Warn("thumbnail failed",
			zap.String("doc_id", docID),
			zap.Int("n", n),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrImageProcessing, err)
	}
	return thumb, nil
}

// PutDrawing stores data as drawing n of docID.
func (s *Service) PutDrawing(ctx context.Context, docID string, n int, data []byte) error {
	key, err := drawingKey(docID, n)
	if err != nil {
		return err
	}
	if err := s.Drawings.Put(ctx, key, data); err != nil {
		return unavailable(ctx, "put", key, err)
	}
	return nil
}

// DeleteDrawing removes drawing n of docID.
func (s *Service) DeleteDrawing(ctx context.Context, docID string, n int) error {
	key, err := drawingKey(docID, n)
	if err != nil {
		return err
	}
	return s.remove(ctx, s.Drawings, key, fmt.Errorf("%w: %s #%d", ErrDrawingNotFound, docID, n))
}

// DeleteDrawings removes every listed drawing of docID and returns how many
// were removed.
func (s *Service) DeleteDrawings(ctx context.Context, docID string) (int, error) {
	drawings, err := s.ListDrawings(ctx, docID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, n := range drawings.Numbers {
		key, err := keys.DrawingKey(docID, n)
		if err != nil {
			return removed, fmt.Errorf("%w: %s", ErrDrawingsNotFound, docID)
		}
		if err := s.Drawings.Remove(ctx, key); err != nil && !storage.IsNotFound(err) {
			return removed, unavailable(ctx, "remove", key, err)
		}
		removed++
	}
	return removed, nil
}

// GetBibliography returns the bibliography record of docID.
func (s *Service) GetBibliography(ctx context.Context, docID string) (map[string]any, error) {
	if s.Bibliography == nil {
		return nil, fmt.Errorf("%w: bibliography", ErrDatasetNotConfigured)
	}
	key, err := recordKey(docID, keys.BibliographyKey)
	if err != nil {
		return nil, err
	}
	data, err := s.Bibliography.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("%w: bibliography of %s", ErrDocumentNotFound, docID)
		}
		return nil, unavailable(ctx, "get", key, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, unavailable(ctx, "decode", key, fmt.Errorf("stored record is not a JSON object: %v", err))
	}
	return doc, nil
}
