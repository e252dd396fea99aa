package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pqaidevteam/pqai-db/internal/documents"
	"github.com/pqaidevteam/pqai-db/internal/metrics"
	"github.com/pqaidevteam/pqai-db/internal/thumbnail"
	"github.com/pqaidevteam/pqai-db/pkg/protocol"
)

// ─── Documents ──────────────────────────────────────────────────────────────

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.GetDocument(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if err := s.docs.PutDocument(r.Context(), r.PathValue("doc_id"), body); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "created"})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.DeleteDocument(r.Context(), r.PathValue("doc_id")); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Status: "deleted"})
}

func (s *Server) handleGetBibliography(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.GetBibliography(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, doc)
}

// ─── Drawings ───────────────────────────────────────────────────────────────

// drawingNumber parses the {n} path segment. Non-numeric values are treated
// like out-of-range numbers: the drawing does not exist.
func drawingNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 {
		return 0, documents.ErrInvalidDrawingNumber
	}
	return n, nil
}

func (s *Server) handleListDrawings(w http.ResponseWriter, r *http.Request) {
	drawings, err := s.docs.ListDrawings(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.DrawingsResponse{
		Drawings:  drawings.Strings(),
		Truncated: drawings.Truncated,
	})
}

func (s *Server) handleGetDrawing(w http.ResponseWriter, r *http.Request) {
	n, err := drawingNumber(r)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	data, err := s.docs.GetDrawing(r.Context(), r.PathValue("doc_id"), n)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	metrics.RecordDrawingServed(len(data))
	s.sendImage(w, data)
}

func (s *Server) handlePutDrawing(w http.ResponseWriter, r *http.Request) {
	n, err := drawingNumber(r)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if err := s.docs.PutDrawing(r.Context(), r.PathValue("doc_id"), n, body); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "created"})
}

func (s *Server) handleDeleteDrawing(w http.ResponseWriter, r *http.Request) {
	n, err := drawingNumber(r)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	if err := s.docs.DeleteDrawing(r.Context(), r.PathValue("doc_id"), n); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Status: "deleted"})
}

func (s *Server) handleDeleteDrawings(w http.ResponseWriter, r *http.Request) {
	removed, err := s.docs.DeleteDrawings(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.DeleteDrawingsResponse{Deleted: removed})
}

// ─── Thumbnails ─────────────────────────────────────────────────────────────

// dimension parses an optional thumbnail size parameter.
func dimension(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > thumbnail.MaxDimension {
		return 0, false
	}
	return v, true
}

func (s *Server) handleGetThumbnail(w http.ResponseWriter, r *http.Request) {
	n, err := drawingNumber(r)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	width, okW := dimension(r, "w", thumbnail.DefaultWidth)
	height, okH := dimension(r, "h", thumbnail.DefaultHeight)
	if !okW || !okH {
		s.sendError(w, http.StatusBadRequest,
			"w and h must be integers between 1 and "+strconv.Itoa(thumbnail.MaxDimension))
		return
	}

	start := time.Now()
	data, err := s.docs.GetThumbnail(r.Context(), r.PathValue("doc_id"), n, width, height)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			metrics.RecordThumbnail(time.Since(start), false)
		}
		s.sendServiceError(w, r, err)
		return
	}
	metrics.RecordThumbnail(time.Since(start), true)
	s.sendImage(w, data)
}
