package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medbrief/newsroom/internal/logger"
	"github.com/medbrief/newsroom/internal/pubmed"
	"github.com/medbrief/newsroom/internal/storage"
	"github.com/medbrief/newsroom/internal/story"
)

// Options carries everything the web server needs.
type Options struct {
	Addr     string
	Store    *storage.DB
	PubMed   *pubmed.Client
	Stories  *story.Generator
	Sessions *SessionManager
	Log      logger.Logger

	// Now overrides the clock stamped on curator searches. Defaults to epoch
	// seconds from the wall clock.
	Now func() float64
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http *http.Server
	log  logger.Logger
}

// NewServer builds the newsroom HTTP server: router, middleware, and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}

	h, err := newHandlers(opts)
	if err != nil {
		return nil, err
	}

	static, err := staticAssets()
	if err != nil {
		return nil, fmt.Errorf("loading static assets: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Log))
	r.Use(metricsMiddleware())

	// Public site
	r.Get("/", h.handleGallery)
	r.Get("/story/{pmid}", h.handleStory)
	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// Session endpoints stay outside the auth gate.
	r.Get("/admin/login", h.handleLoginForm)
	r.Post("/admin/login", h.handleLoginSubmit)
	r.Post("/admin/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/admin", h.handleAdminRoot)
		r.Get("/admin/search", h.handleAdminSearch)
		r.Post("/admin/generate", h.handleGenerate)
		r.Get("/admin/artifact/{pmid}", h.handleAdminArtifact)
		r.Get("/admin/gallery", h.handleAdminGallery)
		r.Post("/admin/publish", h.handlePublish)
		r.Post("/admin/feature", h.handleFeature)
		r.Post("/admin/unpublish", h.handleUnpublish)
	})

	s := &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation holds the response open while the LLM works, so the
		// write timeout must outlast story.DefaultTimeout.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{http: s, log: opts.Log}, nil
}

func newHandlers(opts Options) (*handlers, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}

	return &handlers{
		store:    opts.Store,
		pubmed:   opts.PubMed,
		stories:  opts.Stories,
		sessions: opts.Sessions,
		log:      opts.Log,
		tmpl:     tmpl,
		now:      now,
		started:  time.Now(),
		css:      staticVersion("styles.css"),
		js:       staticVersion("app.js"),
	}, nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the HTTP server and blocks until shutdown or error.
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server within the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
