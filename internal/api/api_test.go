package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/entlabel/internal/catalog"
	"github.com/dgallion1/entlabel/internal/config"
	"github.com/dgallion1/entlabel/internal/labeler"
	"github.com/dgallion1/entlabel/internal/persist"
	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/store"
)

const testKey = "test-key"

type harness struct {
	srv   *Server
	store store.Store
	saver *persist.Saver
}

func newHarness(t *testing.T, st store.Store) *harness {
	t.Helper()
	if st == nil {
		sqlite, err := store.OpenSQLite(":memory:")
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { sqlite.Close() })
		st = sqlite
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	latency := stats.New(time.Hour)
	saver := persist.NewSaver(persist.Config{Debounce: 10 * time.Millisecond, Workers: 1}, st, latency, log)
	saver.Start(context.Background())
	t.Cleanup(saver.Stop)

	cfg := config.Config{APIKey: testKey, SessionTTL: time.Hour, MaxUploadBytes: 1 << 20}
	cat := catalog.FromNames([]string{"Person", "Place"})
	return &harness{srv: NewServer(st, saver, cat, latency, log, cfg), store: st, saver: saver}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func point(offset int, path ...int) map[string]any {
	return map[string]any{"path": path, "offset": offset}
}

type docResponse struct {
	Document labeler.Snapshot[labeler.EntityData] `json:"document"`
	Rejected []rejection                          `json:"rejected"`
}

func TestHealth_NoAuth(t *testing.T) {
	h := newHarness(t, nil)
	w := httptest.NewRecorder()
	h.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestAuth_RejectsMissingAndWrongKey(t *testing.T) {
	h := newHarness(t, nil)
	for _, auth := range []string{"", "Bearer wrong", "Basic " + testKey} {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		h.srv.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: expected 401, got %d", auth, w.Code)
		}
	}
}

func TestTokenize(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodPost, "/api/tokenize", map[string]any{"text": "OK test\nthis", "start": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[struct {
		Lines      [][]map[string]any `json:"lines"`
		TokenCount int                `json:"token_count"`
		NextIndex  int                `json:"next_index"`
	}](t, w)
	if len(got.Lines) != 2 || got.TokenCount != 4 || got.NextIndex != 7 {
		t.Errorf("unexpected tokenize result %+v", got)
	}

	w = h.do(t, http.MethodPost, "/api/tokenize", map[string]any{"text": "x", "start": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative start, got %d", w.Code)
	}
}

func TestRender_ReportsRejections(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodPost, "/api/render", map[string]any{
		"text": "OK test this",
		"entities": []map[string]any{
			{"id": "e1", "start_token_index": 2, "token_length": 1},
			{"id": "e2", "start_token_index": 2, "token_length": 3},
			{"id": "e3", "start_token_index": 7, "token_length": 1},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[struct {
		Rejected   []rejection `json:"rejected"`
		Overlaps   bool        `json:"overlaps"`
		TokenCount int         `json:"token_count"`
	}](t, w)
	if got.TokenCount != 5 {
		t.Errorf("expected 5 tokens, got %d", got.TokenCount)
	}
	if !got.Overlaps {
		t.Error("expected overlaps to be reported")
	}
	reasons := map[string]string{}
	for _, r := range got.Rejected {
		reasons[r.ID] = r.Reason
	}
	if reasons["e2"] != "overlap" || reasons["e3"] != "out_of_range" {
		t.Errorf("unexpected rejections %+v", got.Rejected)
	}
}

func TestDocument_LabelingFlow(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(t, http.MethodPost, "/api/documents", map[string]any{"title": "demo", "text": "OK test this"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	doc := decode[docResponse](t, w).Document
	if doc.Mode != labeler.ModeLabel || doc.TokenCount != 5 {
		t.Fatalf("unexpected document %+v", doc)
	}
	base := "/api/documents/" + doc.ID

	w = h.do(t, http.MethodPost, base+"/snap", map[string]any{"anchor": point(1, 0, 2, 0), "focus": point(2, 0, 2, 0)})
	sel := decode[labeler.Selection](t, w)
	if w.Code != http.StatusOK || sel.StartTokenIndex != 2 || sel.TokenLength != 1 || sel.Text != "test" {
		t.Errorf("unexpected snap %d %+v", w.Code, sel)
	}

	w = h.do(t, http.MethodPost, base+"/entities", map[string]any{
		"anchor": point(1, 0, 2, 0), "focus": point(2, 0, 2, 0), "option_id": "person",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	added := decode[struct {
		Entity struct {
			ID   string             `json:"id"`
			Data labeler.EntityData `json:"data"`
		} `json:"entity"`
	}](t, w).Entity
	if added.Data.Name != "Person" || added.Data.Text != "test" {
		t.Errorf("unexpected entity data %+v", added.Data)
	}

	// "test this" overlaps the new entity.
	w = h.do(t, http.MethodPost, base+"/entities", map[string]any{
		"anchor": point(0, 0, 2, 0, 0), "focus": point(1, 0, 4, 0), "name": "Other",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for overlap, got %d: %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodPost, base+"/entities", map[string]any{
		"anchor": point(0, 0, 0, 0), "focus": point(0, 0, 0, 0), "option_id": "nope",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown option, got %d", w.Code)
	}

	w = h.do(t, http.MethodPut, base+"/text", map[string]any{"text": "changed"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 editing in label mode, got %d", w.Code)
	}

	w = h.do(t, http.MethodPost, base+"/mode", nil)
	if got := decode[docResponse](t, w).Document; got.Mode != labeler.ModeEditText || got.Text != "OK test this" {
		t.Errorf("expected EditText with unchanged text, got %+v", got)
	}

	w = h.do(t, http.MethodPost, base+"/snap", map[string]any{"anchor": point(0, 0, 0), "focus": point(1, 0, 0)})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 snapping in EditText mode, got %d", w.Code)
	}

	w = h.do(t, http.MethodPost, base+"/mode", map[string]any{"mode": "Label"})
	if got := decode[docResponse](t, w).Document; len(got.Entities) != 1 {
		t.Errorf("expected entity kept after unchanged round trip, got %+v", got.Entities)
	}

	w = h.do(t, http.MethodDelete, base+"/entities/"+added.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	w = h.do(t, http.MethodDelete, base+"/entities/"+added.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for removed entity, got %d", w.Code)
	}

	h.do(t, http.MethodPost, base+"/mode", map[string]any{"mode": "EditText"})
	w = h.do(t, http.MethodPut, base+"/text", map[string]any{"text": "hello world"})
	if got := decode[labeler.Snapshot[labeler.EntityData]](t, w); w.Code != http.StatusOK || got.Text != "hello world" {
		t.Errorf("unexpected set text %d %+v", w.Code, got)
	}

	w = h.do(t, http.MethodPost, base+"/mode", map[string]any{"mode": "Bogus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", w.Code)
	}
}

func TestDocument_SavedAndReopened(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodPost, "/api/documents", map[string]any{
		"id":       "doc-1",
		"title":    "saved",
		"text":     "Ada Lovelace wrote notes",
		"entities": []map[string]any{{"id": "e1", "start_token_index": 0, "token_length": 3, "data": map[string]string{"name": "Person"}}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	h.saver.Flush()

	stored, err := h.store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("expected stored document: %v", err)
	}
	if stored.Title != "saved" || len(stored.Entities) != 1 {
		t.Errorf("unexpected stored document %+v", stored)
	}

	w = h.do(t, http.MethodGet, "/api/documents/doc-1/save", nil)
	if snap := decode[persist.JobSnapshot](t, w); snap.Status != persist.StatusSaved {
		t.Errorf("expected saved status, got %+v", snap)
	}

	// A second server over the same store opens the document from storage.
	other := newHarness(t, h.store)
	w = other.do(t, http.MethodGet, "/api/documents/doc-1", nil)
	got := decode[labeler.Snapshot[labeler.EntityData]](t, w)
	if w.Code != http.StatusOK || got.Text != "Ada Lovelace wrote notes" || len(got.Entities) != 1 {
		t.Errorf("unexpected reopened document %d %+v", w.Code, got)
	}

	w = h.do(t, http.MethodGet, "/api/documents", nil)
	list := decode[struct {
		Documents []map[string]any `json:"documents"`
	}](t, w)
	if len(list.Documents) != 1 || list.Documents[0]["id"] != "doc-1" {
		t.Errorf("unexpected list %+v", list)
	}

	w = h.do(t, http.MethodDelete, "/api/documents/doc-1", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	w = h.do(t, http.MethodGet, "/api/documents/doc-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
	w = h.do(t, http.MethodDelete, "/api/documents/doc-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", w.Code)
	}
}

func TestDocument_CreateRejectsTakenOrNestedID(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodPost, "/api/documents", map[string]any{"id": "doc1", "text": "original"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodPost, "/api/documents", map[string]any{"id": "doc1", "text": "clobber"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for an open id, got %d", w.Code)
	}
	h.saver.Flush()

	// A server that only has the stored copy refuses the id too.
	other := newHarness(t, h.store)
	w = other.do(t, http.MethodPost, "/api/documents", map[string]any{"id": "doc1", "text": "clobber"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a stored id, got %d", w.Code)
	}

	stored, err := h.store.Get(context.Background(), "doc1")
	if err != nil || stored.Text != "original" {
		t.Errorf("expected stored text %q, got %+v (%v)", "original", stored, err)
	}

	for _, id := range []string{"a/b", `a\b`} {
		w = h.do(t, http.MethodPost, "/api/documents", map[string]any{"id": id, "text": "x"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", id, w.Code)
		}
	}
}

func TestDocument_Upload(t *testing.T) {
	h := newHarness(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "../notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("first line\nsecond line"))
	mw.WriteField("mode", "EditText")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.srv.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	doc := decode[docResponse](t, w).Document
	if doc.Title != "notes" || doc.Text != "first line\nsecond line" || doc.Mode != labeler.ModeEditText {
		t.Errorf("unexpected imported document %+v", doc)
	}
}

func TestDocument_UploadRejectsUnknownType(t *testing.T) {
	h := newHarness(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "image.png")
	fw.Write([]byte("png"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCatalogSearch(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(t, http.MethodGet, "/api/catalog?q=pla", nil)
	got := decode[struct {
		Matches []catalog.Match `json:"matches"`
	}](t, w)
	if len(got.Matches) == 0 || got.Matches[0].Option.Name != "Place" {
		t.Errorf("expected Place first, got %+v", got.Matches)
	}

	w = h.do(t, http.MethodGet, "/api/catalog?limit=x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, http.MethodPost, "/api/render", map[string]any{"text": "a b"})
	w := h.do(t, http.MethodGet, "/api/stats", nil)
	got := decode[struct {
		Operations map[string]stats.Snapshot `json:"operations"`
	}](t, w)
	if got.Operations[stats.OpRender].Count != 1 {
		t.Errorf("expected one render sample, got %+v", got.Operations)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"notes.txt", "notes.txt"},
		{"../../etc/passwd", "passwd"},
		{`C:\docs\report.pdf`, "report.pdf"},
		{"", "unnamed"},
		{"a..b.md", "a_b.md"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
	if strings.Contains(sanitizeFilename("x/../y"), "/") {
		t.Error("expected no path separators")
	}
}
