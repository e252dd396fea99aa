// Package api implements the HTTP API over the document service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/documents"
	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/metrics"
	"github.com/pqaidevteam/pqai-db/pkg/protocol"
)

// DefaultMaxUploadSize limits POST bodies when no limit is configured.
const DefaultMaxUploadSize = 50 << 20

// Collections under which documents are addressable; all three are equivalent.
var collections = []string{"patents", "documents", "docs"}

// Server is the document HTTP server.
type Server struct {
	docs          *documents.Service
	maxUploadSize int64
}

// NewServer creates a server over svc. A maxUploadSize <= 0 uses DefaultMaxUploadSize.
func NewServer(svc *documents.Service, maxUploadSize int64) *Server {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Server{docs: svc, maxUploadSize: maxUploadSize}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	for _, c := range collections {
		base := "/" + c + "/{doc_id}"
		mux.HandleFunc("GET "+base, s.handleGetDocument)
		mux.HandleFunc("POST "+base, s.handlePutDocument)
		mux.HandleFunc("DELETE "+base, s.handleDeleteDocument)

		mux.HandleFunc("GET "+base+"/drawings", s.handleListDrawings)
		mux.HandleFunc("DELETE "+base+"/drawings", s.handleDeleteDrawings)
		mux.HandleFunc("GET "+base+"/drawings/{n}", s.handleGetDrawing)
		mux.HandleFunc("POST "+base+"/drawings/{n}", s.handlePutDrawing)
		mux.HandleFunc("DELETE "+base+"/drawings/{n}", s.handleDeleteDrawing)

		mux.HandleFunc("GET "+base+"/thumbnails/{n}", s.handleGetThumbnail)
		mux.HandleFunc("GET "+base+"/bibliography", s.handleGetBibliography)
	}

	// Metrics sits inside logging so it sees the request the mux routed,
	// including the matched pattern.
	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, documents.ErrDocumentNotFound),
		errors.Is(err, documents.ErrDrawingsNotFound),
		errors.Is(err, documents.ErrDrawingNotFound),
		errors.Is(err, documents.ErrInvalidDrawingNumber),
		errors.Is(err, documents.ErrDatasetNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, documents.ErrInvalidDimensions),
		errors.Is(err, documents.ErrMalformedPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed", zap.Error(err))
		switch {
		case errors.Is(err, documents.ErrImageProcessing):
			msg = documents.ErrImageProcessing.Error()
		case errors.Is(err, documents.ErrMalformedKey):
			msg = documents.ErrMalformedKey.Error()
		default:
			msg = documents.ErrStorageUnavailable.Error()
		}
	}
	s.sendError(w, code, msg)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendImage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", protocol.ContentTypeTIFF)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// readBody reads a request body bounded by the upload limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		s.sendError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	return data, true
}
