// Package server is the local library service: the HTTP API the gallery
// client reads from and patches, backed by the SQLite library store.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

const shutdownTimeout = 10 * time.Second

// Store is the part of the library store the service needs
type Store interface {
	List(ctx context.Context, tags []string) ([]library.Image, error)
	Get(ctx context.Context, id string) (*library.Image, error)
	Update(ctx context.Context, id string, patch library.Patch) (*library.Image, error)
	TagCounts(ctx context.Context) (library.TagCounts, error)
	Stats(ctx context.Context, topN int) (library.Stats, error)
}

// Options configures the service
type Options struct {
	ThumbnailsDir string // served under /thumbnails/, empty disables
	TopTags       int    // number of tags in the stats summary
}

// Server serves the library API
type Server struct {
	store  Store
	hub    *Hub
	opts   Options
	log    logrus.FieldLogger
	router chi.Router
}

// New creates the service and its routes
func New(store Store, opts Options, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.TopTags <= 0 {
		opts.TopTags = 10
	}
	log = log.WithField("component", "server")

	s := &Server{
		store: store,
		hub:   NewHub(log),
		opts:  opts,
		log:   log,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(instrument(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/images", s.handleListImages)
		r.Get("/image/{id}", s.handleGetImage)
		r.Patch("/image/{id}", s.handlePatchImage)
		r.Get("/tags", s.handleTags)
		r.Get("/stats", s.handleStats)
		r.Handle("/events", s.hub)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if s.opts.ThumbnailsDir != "" {
		r.Handle("/thumbnails/*", http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(s.opts.ThumbnailsDir))))
	}
	return r
}

// Handler returns the HTTP handler of the service
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Library service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down library service")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("library service failed: %w", err)
		}
		return nil
	}

	// close websocket clients first; Shutdown does not wait for hijacked connections
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down library service: %w", err)
	}
	s.log.Info("Library service stopped")
	return nil
}
