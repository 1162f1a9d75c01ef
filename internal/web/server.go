// Package web serves the JSON dashboard API over the sync engine.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"dsync-go/internal/dsync"
	"dsync-go/internal/fs"
)

// maxUploadMemory is the multipart size kept in memory before spilling to
// temp files.
const maxUploadMemory = 32 << 20

const shutdownTimeout = 5 * time.Second

// Engine is the part of dsync.Engine the API needs.
type Engine interface {
	SyncDir() string
	Catalog() *dsync.Catalog
	UploadFile(ctx context.Context, absPath string) (*dsync.UploadResult, error)
	MarkDeleted(ctx context.Context, relPath string) error
	FetchFile(ctx context.Context, relPath string) ([]byte, *dsync.FileManifest, error)
}

var _ Engine = (*dsync.Engine)(nil)

// Upload states reported by /api/upload-status.
const (
	UploadRunning = "uploading"
	UploadDone    = "uploaded"
	UploadSkipped = "skipped"
	UploadFailed  = "failed"
)

// UploadState is the last known state of a file posted to /api/upload.
type UploadState struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Server routes API requests to an Engine.
type Server struct {
	engine  Engine
	metrics http.Handler
	logger  dsync.Logger

	mu      sync.Mutex
	uploads map[string]*UploadState
	order   []string
}

// NewServer creates the API. metrics may be nil, in which case /metrics is
// not routed.
func NewServer(engine Engine, metrics http.Handler, logger dsync.Logger) *Server {
	if logger == nil {
		logger = dsync.NewNopLogger()
	}
	return &Server{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		uploads: make(map[string]*UploadState),
	}
}

type handlerFunc func(r *http.Request) any

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func errorResponse(code int, format string, args ...any) *ErrorResponse {
	return &ErrorResponse{Code: code, Message: fmt.Sprintf(format, args...)}
}

// rawResponse is written as is instead of JSON.
type rawResponse struct {
	filename string
	data     []byte
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	rtr := mux.NewRouter()
	rtr.Handle("/api/files", s.wrap(s.listFiles)).Methods(http.MethodGet)
	rtr.Handle("/api/upload", s.wrap(s.upload)).Methods(http.MethodPost)
	rtr.Handle("/api/upload-status", s.wrap(s.uploadStatus)).Methods(http.MethodGet)
	rtr.Handle("/api/delete/{path:.+}", s.wrap(s.deleteFile)).Methods(http.MethodPost)
	rtr.Handle("/download/{path:.+}", s.wrap(s.download)).Methods(http.MethodGet)
	if s.metrics != nil {
		rtr.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return rtr
}

func (s *Server) wrap(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := h(r)
		switch v := res.(type) {
		case *rawResponse:
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", v.filename))
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(v.data); err != nil {
				s.logger.Warn("writing download response failed", "error", err)
			}
			return
		case *ErrorResponse:
			s.logger.Warn("api request failed", "method", r.Method, "path", r.URL.Path, "code", v.Code, "error", v.Message)
			writeJSON(w, v.Code, v)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) listFiles(r *http.Request) any {
	return s.engine.Catalog()
}

func (s *Server) upload(r *http.Request) any {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid multipart body: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return errorResponse(http.StatusBadRequest, "missing form field \"file\"")
	}
	defer file.Close()

	name := path.Base(filepath.ToSlash(header.Filename))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return errorResponse(http.StatusBadRequest, "invalid file name %q", header.Filename)
	}
	if strings.HasSuffix(name, ".crdownload") {
		return errorResponse(http.StatusBadRequest, "partial downloads are not accepted")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "reading upload: %v", err)
	}
	abs := filepath.Join(s.engine.SyncDir(), name)
	if err := fs.WriteFileAtomic(abs, data, 0644); err != nil {
		return errorResponse(http.StatusInternalServerError, "saving upload: %v", err)
	}

	s.setUpload(&UploadState{Path: name, Status: UploadRunning})
	res, err := s.engine.UploadFile(r.Context(), abs)
	if err != nil {
		s.setUpload(&UploadState{Path: name, Status: UploadFailed, Error: err.Error()})
		return errorResponse(http.StatusInternalServerError, "uploading %s: %v", name, err)
	}
	state := &UploadState{Path: name, Status: UploadDone}
	if res.Skipped {
		state.Status = UploadSkipped
	}
	s.setUpload(state)
	return state
}

func (s *Server) setUpload(state *UploadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[state.Path]; !ok {
		s.order = append(s.order, state.Path)
	}
	s.uploads[state.Path] = state
}

func (s *Server) uploadStatus(r *http.Request) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]UploadState, 0, len(s.order))
	for _, p := range s.order {
		states = append(states, *s.uploads[p])
	}
	return states
}

func (s *Server) deleteFile(r *http.Request) any {
	relPath := mux.Vars(r)["path"]
	if err := s.engine.MarkDeleted(r.Context(), relPath); err != nil {
		if errors.Is(err, dsync.ErrNotFound) {
			return errorResponse(http.StatusNotFound, "%s is not tracked", relPath)
		}
		return errorResponse(http.StatusInternalServerError, "deleting %s: %v", relPath, err)
	}
	return map[string]string{"path": relPath, "status": "deleted"}
}

func (s *Server) download(r *http.Request) any {
	relPath := mux.Vars(r)["path"]
	data, _, err := s.engine.FetchFile(r.Context(), relPath)
	switch {
	case errors.Is(err, dsync.ErrNotFound):
		return errorResponse(http.StatusNotFound, "%s is not tracked", relPath)
	case errors.Is(err, dsync.ErrGone):
		return errorResponse(http.StatusGone, "%s was deleted", relPath)
	case err != nil:
		return errorResponse(http.StatusInternalServerError, "downloading %s: %v", relPath, err)
	}
	return &rawResponse{filename: path.Base(relPath), data: data}
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving api: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	return nil
}
