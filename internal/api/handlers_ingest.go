package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/labeler"
	"github.com/dgallion1/entlabel/internal/parser"
	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/store"
)

type createRequest struct {
	ID       string                              `json:"id"`
	Title    string                              `json:"title"`
	Text     string                              `json:"text"`
	Mode     labeler.Mode                        `json:"mode"`
	Entities []entity.Entity[labeler.EntityData] `json:"entities"`
}

// handleCreateDocument opens a new session from a JSON body or from an
// uploaded file, and schedules it to be saved.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if !s.readUpload(w, r, &req) {
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.Mode != "" && !req.Mode.Valid() {
		jsonError(w, fmt.Sprintf("unknown mode %q", req.Mode), http.StatusBadRequest)
		return
	}

	if strings.ContainsAny(req.ID, `/\`) {
		jsonError(w, "document id must not contain path separators", http.StatusBadRequest)
		return
	}

	// The id check and the cache insert happen under one lock.
	s.loadMu.Lock()
	if req.ID != "" {
		if err := s.checkUnused(r.Context(), req.ID); err != nil {
			s.loadMu.Unlock()
			if errors.Is(err, errDocumentExists) {
				jsonError(w, fmt.Sprintf("document %q already exists", req.ID), http.StatusConflict)
				return
			}
			s.log.Error("failed to check document id", "doc_id", req.ID, "error", err)
			jsonError(w, "failed to check document id", http.StatusInternalServerError)
			return
		}
	}
	sess, rejected := labeler.NewSession(req.ID, req.Text, req.Entities, req.Mode)
	sess.SetTitle(req.Title)
	s.sessions.Put(sess)
	s.loadMu.Unlock()

	s.logRejections(sess.ID(), rejected)
	s.persist(sess)

	writeJSON(w, http.StatusCreated, map[string]any{
		"document": sess.Snapshot(),
		"rejected": rejections(rejected),
	})
}

var errDocumentExists = errors.New("document already exists")

// checkUnused returns errDocumentExists when id names an open session or a
// stored document.
func (s *Server) checkUnused(ctx context.Context, id string) error {
	if _, ok := s.sessions.Get(id); ok {
		return errDocumentExists
	}
	_, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return errDocumentExists
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

// readUpload fills req from a multipart form carrying a "file" part. It
// writes the error response itself and reports whether to continue.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, req *createRequest) bool {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return false
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = s.cfg.PDFFallbackPdftotext
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return false
	}

	start := time.Now()
	src, err := p.Parse(bytes.NewReader(data), filename)
	s.stats.Since(stats.OpImport, start)
	if err != nil {
		s.log.Warn("import failed", "filename", filename, "error", err)
		jsonError(w, "failed to parse file: "+err.Error(), http.StatusUnprocessableEntity)
		return false
	}

	req.ID = r.FormValue("doc_id")
	req.Title = r.FormValue("title")
	if req.Title == "" {
		req.Title = src.Title
	}
	req.Text = src.Text()
	req.Mode = labeler.Mode(r.FormValue("mode"))
	s.log.Info("document imported", "filename", filename, "bytes", len(data), "lines", len(src.Lines))
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
