// Package api exposes the application over a JSON HTTP API consumed by
// the desktop frontend.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/qbox-labs/qbox/internal/ai"
	"github.com/qbox-labs/qbox/internal/config"
	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/files"
	"github.com/qbox-labs/qbox/internal/metadata"
	"github.com/qbox-labs/qbox/internal/s3files"
	"github.com/qbox-labs/qbox/internal/source"
	"github.com/qbox-labs/qbox/internal/store"
)

// Server is the JSON API server.
type Server struct {
	host string
	port int

	store    *store.Store
	session  *engine.Session
	executor *engine.Executor
	sources  *source.Manager
	files    *files.Service
	s3       *s3files.Service
	meta     *metadata.Service
	aiCfg    config.AIConfig
	logger   *slog.Logger

	// newAIClient lets tests substitute the model client.
	newAIClient func(baseURL, apiKey, model string) ai.Client
}

// Config holds server dependencies.
type Config struct {
	Host     string
	Port     int
	Store    *store.Store
	Session  *engine.Session
	Sources  *source.Manager
	Files    *files.Service
	S3       *s3files.Service
	Metadata *metadata.Service
	AI       config.AIConfig
	Logger   *slog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		host:     cfg.Host,
		port:     cfg.Port,
		store:    cfg.Store,
		session:  cfg.Session,
		executor: engine.NewExecutor(cfg.Session),
		sources:  cfg.Sources,
		files:    cfg.Files,
		s3:       cfg.S3,
		meta:     cfg.Metadata,
		aiCfg:    cfg.AI,
		logger:   logger,
		newAIClient: func(baseURL, apiKey, model string) ai.Client {
			return &ai.OpenAIClient{BaseURL: baseURL, APIKey: apiKey, Model: model}
		},
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/reset", s.handleReset)

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/", s.handleCreateConnection)
			r.Post("/test", s.handleTestConnection)
			r.Get("/{id}", s.handleGetConnection)
			r.Put("/{id}", s.handleUpdateConnection)
			r.Delete("/{id}", s.handleDeleteConnection)
			r.Post("/{id}/reconnect", s.handleReconnectConnection)
			r.Get("/{id}/metadata", s.handleConnectionMetadata)
			r.Get("/{id}/tables/{schema}/{table}", s.handleTableDetails)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Get("/", s.handleListQueries)
			r.Post("/", s.handleCreateQuery)
			r.Get("/{id}", s.handleGetQuery)
			r.Delete("/{id}", s.handleDeleteQuery)
			r.Patch("/{id}/sql", s.handleUpdateQuerySQL)
			r.Get("/{id}/selections", s.handleListSelections)
			r.Post("/{id}/selections", s.handleAddSelection)
			r.Delete("/{id}/selections/{selectionID}", s.handleRemoveSelection)
			r.Get("/{id}/chat", s.handleListChat)
			r.Post("/{id}/chat", s.handleChat)
			r.Delete("/{id}/chat", s.handleClearChat)
			r.Post("/{id}/generate", s.handleGenerate)
			r.Post("/{id}/execute", s.handleExecute)
			r.Get("/{id}/history", s.handleHistory)
		})

		r.Route("/files", func(r chi.Router) {
			r.Post("/upload", s.handleUploadFile)
			r.Get("/", s.handleListFiles)
			r.Get("/{id}", s.handleGetFile)
			r.Get("/{id}/metadata", s.handleFileMetadata)
			r.Get("/{id}/sheets", s.handleFileSheets)
			r.Delete("/{id}", s.handleDeleteFile)
		})

		r.Route("/s3", func(r chi.Router) {
			r.Get("/{connectionID}/files", s.handleS3List)
			r.Get("/{connectionID}/files/metadata", s.handleS3FileMetadata)
			r.Post("/{connectionID}/views", s.handleS3CreateView)
			r.Delete("/views/{viewName}", s.handleS3DropView)
		})

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("starting api server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down api server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReset closes the engine session (dropping every attachment in one
// step), wipes stored records, and deletes uploaded files.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.files.PurgeAll(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.session.Close(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Reset(); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("application data reset")
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}
