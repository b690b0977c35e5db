package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/entlabel/internal/doctree"
	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/labeler"
	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/store"
)

type session = labeler.Session[labeler.EntityData]

// loadSession returns the open session for id, opening it from the store
// when it is not cached.
func (s *Server) loadSession(ctx context.Context, id string) (*session, error) {
	if sess, ok := s.sessions.Get(id); ok {
		return sess, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if sess, ok := s.sessions.Get(id); ok {
		return sess, nil
	}

	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, rejected := labeler.NewSession(doc.ID, doc.Text, doc.Entities, doc.Mode)
	sess.SetTitle(doc.Title)
	s.logRejections(doc.ID, rejected)
	s.sessions.Put(sess)
	return sess, nil
}

// persist schedules the current state of sess to be saved.
func (s *Server) persist(sess *session) {
	snap := sess.Snapshot()
	doc := &store.Document{
		ID:        snap.ID,
		Title:     snap.Title,
		Text:      snap.Text,
		Entities:  snap.Entities,
		Mode:      snap.Mode,
		UpdatedAt: snap.UpdatedAt,
	}
	if err := s.saver.Submit(doc); err != nil {
		s.log.Error("failed to schedule save", "doc_id", doc.ID, "error", err)
	}
}

func (s *Server) logRejections(docID string, rejected []*entity.RejectedError) {
	for _, r := range rejected {
		s.log.Warn("entity rejected", "doc_id", docID, "entity_id", r.ID, "error", r.Err, "conflict_id", r.ConflictID)
	}
}

// sessionFromRequest loads the session named by the docID URL parameter,
// writing an error response when it cannot.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session, bool) {
	docID := chi.URLParam(r, "docID")
	sess, err := s.loadSession(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("failed to load document", "doc_id", docID, "error", err)
		jsonError(w, "failed to load document", http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

// writeSessionError maps session errors to HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	var rej *entity.RejectedError
	switch {
	case errors.As(err, &rej):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":     err.Error(),
			"rejection": rejections([]*entity.RejectedError{rej})[0],
		})
	case errors.Is(err, labeler.ErrReadOnly), errors.Is(err, labeler.ErrWrongMode):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, labeler.ErrNoSelection):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	docs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to list documents", "error", err)
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, map[string]any{
			"id":           d.ID,
			"title":        d.Title,
			"mode":         d.Mode,
			"entity_count": len(d.Entities),
			"content_hash": d.ContentHash,
			"updated_at":   d.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleDeleteDocument closes the session and removes the stored document.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	_, open := s.sessions.Get(docID)
	s.sessions.Delete(docID)
	s.saver.Cancel(docID)

	err := s.store.Delete(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) && !open {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Error("failed to delete document", "doc_id", docID, "error", err)
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setTextRequest struct {
	Text  string  `json:"text"`
	Title *string `json:"title"`
}

func (s *Server) handleSetText(w http.ResponseWriter, r *http.Request) {
	var req setTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := sess.SetText(req.Text); err != nil {
		writeSessionError(w, err)
		return
	}
	if req.Title != nil {
		sess.SetTitle(*req.Title)
	}
	s.persist(sess)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type setModeRequest struct {
	// Mode is the target mode. Empty toggles.
	Mode labeler.Mode `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Mode != "" && !req.Mode.Valid() {
		jsonError(w, fmt.Sprintf("unknown mode %q", req.Mode), http.StatusBadRequest)
		return
	}
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	target := req.Mode
	if target == "" {
		target = labeler.ModeLabel
		if sess.Mode() == labeler.ModeLabel {
			target = labeler.ModeEditText
		}
	}

	var rejected []*entity.RejectedError
	start := time.Now()
	switch target {
	case labeler.ModeLabel:
		rejected = sess.ToLabel()
		s.stats.Since(stats.OpRender, start)
	case labeler.ModeEditText:
		sess.ToEditText()
	}
	s.logRejections(sess.ID(), rejected)
	s.persist(sess)

	writeJSON(w, http.StatusOK, map[string]any{
		"document": sess.Snapshot(),
		"rejected": rejections(rejected),
	})
}

type selectionRequest struct {
	Anchor doctree.Point `json:"anchor"`
	Focus  doctree.Point `json:"focus"`
}

func (s *Server) handleSnap(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	sel, err := sess.Snap(req.Anchor, req.Focus)
	s.stats.Since(stats.OpSnap, start)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

type addEntityRequest struct {
	Anchor doctree.Point `json:"anchor"`
	Focus  doctree.Point `json:"focus"`
	// Name labels the entity directly. OptionID picks it from the catalog
	// instead and wins when both are set.
	Name     string `json:"name"`
	OptionID string `json:"option_id"`
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var req addEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	name := req.Name
	if req.OptionID != "" {
		opt, ok := s.catalog.Get(req.OptionID)
		if !ok {
			jsonError(w, fmt.Sprintf("unknown catalog option %q", req.OptionID), http.StatusBadRequest)
			return
		}
		name = opt.Name
	}
	if name == "" {
		jsonError(w, "name or option_id is required", http.StatusBadRequest)
		return
	}
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	e, err := sess.LabelWith(req.Anchor, req.Focus, func(sel labeler.Selection) labeler.EntityData {
		return labeler.EntityData{Name: name, Text: sel.Text}
	})
	s.stats.Since(stats.OpLabel, start)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	s.persist(sess)

	writeJSON(w, http.StatusCreated, map[string]any{
		"entity":   e,
		"document": sess.Snapshot(),
	})
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	if !sess.Unlabel(chi.URLParam(r, "entityID")) {
		jsonError(w, "entity not found", http.StatusNotFound)
		return
	}
	s.persist(sess)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSaveStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	snap, ok := s.saver.Status(docID)
	if !ok {
		jsonError(w, "no save recorded for document", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
