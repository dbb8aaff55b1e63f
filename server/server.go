// Package server implements the merge endpoint: it accepts an ordered
// multipart upload of PDF files and answers with the merged document.
//
// Uploads are spooled to per-request temporary files in a billy filesystem
// and removed once the response has been written.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/lvillar/pdfmerge"
	"github.com/lvillar/pdfmerge/pageops"
)

// sniffLen is how much of each upload is inspected to confirm it is a PDF.
const sniffLen = 512

// Server serves the merge endpoint.
type Server struct {
	engine   pageops.Engine
	spool    billy.Filesystem
	maxSize  int64
	maxFiles int
	origin   string
	logger   *slog.Logger
}

// Option is a functional option for configuring a Server via New.
type Option func(*Server)

// WithSpool sets the filesystem uploads are spooled to. By default uploads
// are kept in memory.
func WithSpool(fs billy.Filesystem) Option {
	return func(s *Server) {
		if fs != nil {
			s.spool = fs
		}
	}
}

// WithMaxFileSize sets the largest accepted part in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithMaxFiles caps the number of parts in one request. Zero means no cap.
func WithMaxFiles(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.maxFiles = n
		}
	}
}

// WithAllowedOrigin sets the CORS allowed origin. The default is "*".
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server that merges with engine.
func New(engine pageops.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		spool:   memfs.New(),
		maxSize: pdfmerge.MaxFileSize,
		origin:  "*",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pdfmerge.MergePath, s.handleMerge)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.cors(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upload is one spooled part.
type upload struct {
	name string
	path string
	file billy.File
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.logger.With("remote", r.RemoteAddr)

	uploads, status, err := s.spoolParts(r)
	defer s.cleanup(uploads)
	if err != nil {
		log.Warn("rejecting merge request", "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "No PDF files provided")
		return
	}
	if len(uploads) < pdfmerge.MinFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("At least %d PDF files are required", pdfmerge.MinFiles))
		return
	}

	inputs := make([]io.ReadSeeker, len(uploads))
	for i, u := range uploads {
		if _, err := u.file.Seek(0, io.SeekStart); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		inputs[i] = u.file
	}

	var out bytes.Buffer
	if err := s.engine.Merge(r.Context(), &out, inputs...); err != nil {
		log.Error("merge failed", "files", len(uploads), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", pdfmerge.MediaTypePDF)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pdfmerge.MergedFileName))
	w.Header().Set("Content-Length", fmt.Sprint(out.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := out.WriteTo(w); err != nil {
		log.Warn("writing merged document", "error", err)
		return
	}
	log.Info("merged", "files", len(uploads), "bytes", out.Len(), "elapsed", time.Since(start))
}

// spoolParts streams every file part of the pdfs field into the spool, in
// request order. On error it returns the parts spooled so far, for cleanup,
// together with the HTTP status to answer with.
func (s *Server) spoolParts(r *http.Request) ([]upload, int, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("No PDF files provided")
	}

	var uploads []upload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return uploads, http.StatusOK, nil
		}
		if err != nil {
			return uploads, http.StatusBadRequest, fmt.Errorf("Malformed upload: %v", err)
		}
		if part.FormName() != pdfmerge.FieldName || part.FileName() == "" {
			part.Close()
			continue
		}
		if s.maxFiles > 0 && len(uploads) >= s.maxFiles {
			part.Close()
			return uploads, http.StatusBadRequest, fmt.Errorf("At most %d PDF files can be merged at once", s.maxFiles)
		}

		u, status, err := s.spoolPart(part)
		part.Close()
		if err != nil {
			return uploads, status, err
		}
		uploads = append(uploads, u)
	}
}

func (s *Server) spoolPart(part *multipart.Part) (upload, int, error) {
	name := part.FileName()
	f, err := util.TempFile(s.spool, ".", "upload-")
	if err != nil {
		return upload{}, http.StatusInternalServerError, fmt.Errorf("Could not store %s", name)
	}
	u := upload{name: name, path: f.Name(), file: f}

	n, err := io.Copy(f, io.LimitReader(part, s.maxSize+1))
	if err != nil {
		s.cleanup([]upload{u})
		return upload{}, http.StatusBadRequest, fmt.Errorf("Could not read %s", name)
	}
	if n > s.maxSize {
		s.cleanup([]upload{u})
		return upload{}, http.StatusRequestEntityTooLarge, fmt.Errorf("%s exceeds the %s size limit", name, pdfmerge.FormatLimit(s.maxSize))
	}

	head := make([]byte, sniffLen)
	hn, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		s.cleanup([]upload{u})
		return upload{}, http.StatusInternalServerError, fmt.Errorf("Could not read %s", name)
	}
	if !mimetype.Detect(head[:hn]).Is(pdfmerge.MediaTypePDF) {
		s.cleanup([]upload{u})
		return upload{}, http.StatusBadRequest, fmt.Errorf("%s is not a PDF file", name)
	}
	return u, http.StatusOK, nil
}

func (s *Server) cleanup(uploads []upload) {
	for _, u := range uploads {
		if err := u.file.Close(); err != nil {
			s.logger.Warn("closing spooled upload", "path", u.path, "error", err)
		}
		if err := s.spool.Remove(u.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("removing spooled upload", "path", u.path, "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
