package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/labeler"
	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/token"
)

type tokenizeRequest struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
}

func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Start < 0 {
		jsonError(w, "start must not be negative", http.StatusBadRequest)
		return
	}

	lines, next := token.TokenizeLines(token.SplitLines(req.Text), req.Start)
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":       lines,
		"token_count": next - req.Start,
		"next_index":  next,
	})
}

type renderRequest struct {
	Text     string                              `json:"text"`
	Entities []entity.Entity[labeler.EntityData] `json:"entities"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	overlapping := entity.HasOverlap(s.log, req.Entities)
	res := labeler.Render(req.Text, req.Entities)
	s.stats.Since(stats.OpRender, start)

	writeJSON(w, http.StatusOK, map[string]any{
		"tree":        res.Tree,
		"entities":    nonNilEntities(res.Accepted),
		"rejected":    rejections(res.Rejected),
		"overlaps":    overlapping,
		"token_count": res.TokenCount,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": s.catalog.Search(r.URL.Query().Get("q"), limit),
	})
}

// rejection is the wire form of an entity that failed to resolve.
type rejection struct {
	ID              string `json:"id"`
	StartTokenIndex int    `json:"start_token_index"`
	TokenLength     int    `json:"token_length"`
	Reason          string `json:"reason"`
	ConflictID      string `json:"conflict_id,omitempty"`
}

func rejections(errs []*entity.RejectedError) []rejection {
	out := make([]rejection, 0, len(errs))
	for _, e := range errs {
		out = append(out, rejection{
			ID:              e.ID,
			StartTokenIndex: e.Start,
			TokenLength:     e.Length,
			Reason:          rejectionReason(e.Err),
			ConflictID:      e.ConflictID,
		})
	}
	return out
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, entity.ErrSpanOutOfRange):
		return "out_of_range"
	case errors.Is(err, entity.ErrOverlapRejected):
		return "overlap"
	case errors.Is(err, entity.ErrDuplicateID):
		return "duplicate_id"
	default:
		return err.Error()
	}
}

func nonNilEntities(entities []entity.Entity[labeler.EntityData]) []entity.Entity[labeler.EntityData] {
	if entities == nil {
		return []entity.Entity[labeler.EntityData]{}
	}
	return entities
}
