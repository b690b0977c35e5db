package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/entlabel/internal/catalog"
	"github.com/dgallion1/entlabel/internal/config"
	"github.com/dgallion1/entlabel/internal/labeler"
	"github.com/dgallion1/entlabel/internal/persist"
	"github.com/dgallion1/entlabel/internal/stats"
	"github.com/dgallion1/entlabel/internal/store"
)

// Server is the HTTP API server for entlabel.
type Server struct {
	router   chi.Router
	sessions *labeler.SessionStore[labeler.EntityData]
	store    store.Store
	saver    *persist.Saver
	catalog  *catalog.Catalog
	stats    *stats.Stats
	log      *slog.Logger
	cfg      config.Config

	// loadMu serializes creating sessions and opening them from the store.
	loadMu sync.Mutex
}

// NewServer creates and configures the HTTP server.
func NewServer(st store.Store, saver *persist.Saver, cat *catalog.Catalog, latency *stats.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: labeler.NewSessionStore[labeler.EntityData](cfg.SessionTTL),
		store:    st,
		saver:    saver,
		catalog:  cat,
		stats:    latency,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/tokenize", s.handleTokenize)
		r.Post("/api/render", s.handleRender)
		r.Get("/api/catalog", s.handleCatalog)
		r.Get("/api/stats", s.handleStats)

		r.Post("/api/documents", s.handleCreateDocument)
		r.Get("/api/documents", s.handleListDocuments)
		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Delete("/", s.handleDeleteDocument)
			r.Put("/text", s.handleSetText)
			r.Post("/mode", s.handleSetMode)
			r.Post("/snap", s.handleSnap)
			r.Post("/entities", s.handleAddEntity)
			r.Delete("/entities/{entityID}", s.handleRemoveEntity)
			r.Get("/save", s.handleSaveStatus)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
