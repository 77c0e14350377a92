// Package server wires the import API: storage, pipeline, middleware,
// and routes.
package server

import (
	"fmt"
	"net/http"

	"github.com/conciliar/ofximport/internal/handlers"
	"github.com/conciliar/ofximport/internal/middleware"
	"github.com/conciliar/ofximport/internal/ofx"
	"github.com/conciliar/ofximport/internal/pipeline"
	"github.com/conciliar/ofximport/internal/rules"
	"github.com/conciliar/ofximport/internal/store"
	"github.com/conciliar/ofximport/internal/streaming"
)

// Config holds everything the server needs at startup.
type Config struct {
	DBPath    string
	RulesPath string // empty = embedded keyword table
	AuthToken string // empty = no auth
	Origin    string // CORS origin, empty = any
	ParseOpts ofx.Options
}

// Server is the import API server.
type Server struct {
	store  *store.SQLite
	mux    *http.ServeMux
	origin string
}

// New opens the database, loads the keyword rules, and builds routes.
func New(cfg Config) (*Server, error) {
	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var engine *rules.Engine
	if cfg.RulesPath != "" {
		engine, err = rules.LoadFromFile(cfg.RulesPath)
	} else {
		engine, err = rules.LoadEmbedded()
	}
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	s := &Server{
		store:  st,
		mux:    http.NewServeMux(),
		origin: cfg.Origin,
	}
	s.setupRoutes(cfg, engine)

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, engine *rules.Engine) {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", handlers.HealthCheck)

	importer := pipeline.NewImporter(s.store, engine, cfg.ParseOpts)
	hub := streaming.NewHub()
	importHandler := handlers.NewImportHandlers(importer, hub)
	auth := middleware.NewAuthMiddleware(cfg.AuthToken)

	s.mux.Handle("POST /api/import/preview", auth.RequireAuth(http.HandlerFunc(importHandler.Preview)))
	s.mux.Handle("POST /api/import/commit", auth.RequireAuth(http.HandlerFunc(importHandler.Commit)))
	s.mux.Handle("GET /api/import/stream/{session}", auth.RequireAuth(http.HandlerFunc(importHandler.Stream)))
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.origin)(s.mux)
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.store.Close()
}
