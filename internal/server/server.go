// Package server exposes a task over HTTP: CFG images, source listings
// and statistic data for the browser front end.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/l3aro/obviews/internal/log"
	"github.com/l3aro/obviews/pkg/cache"
	"github.com/l3aro/obviews/pkg/layout"
	"github.com/l3aro/obviews/pkg/render"
	"github.com/l3aro/obviews/pkg/task"
)

const (
	// ShutdownTimeout bounds the wait for in-flight requests on stop.
	ShutdownTimeout = 5 * time.Second

	contentMsgpack = "application/msgpack"
	contentDOT     = "text/vnd.graphviz"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Options configure a Server.
type Options struct {
	Application string
	Task        *task.Task
	Layout      layout.Layout
	Palette     *render.Palette
	// DefaultViews are enabled when a request names none.
	DefaultViews []string
	// CacheSize is the number of rendered artifacts kept; 0 disables
	// the limit.
	CacheSize int
	Logger    log.Logger
}

// Server serves one task.
type Server struct {
	app          string
	task         *task.Task
	layout       layout.Layout
	palette      *render.Palette
	defaultViews []string
	cache        *cache.LRUCache
	logger       log.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// New returns a server for opts.Task.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Palette == nil {
		opts.Palette = render.DefaultPalette()
	}
	if opts.Application == "" {
		opts.Application = "obviews"
	}
	return &Server{
		app:          opts.Application,
		task:         opts.Task,
		layout:       opts.Layout,
		palette:      opts.Palette,
		defaultViews: opts.DefaultViews,
		cache: cache.New(cache.Options{
			MaxSize: opts.CacheSize,
			OnEvict: func(key string, a cache.Artifact) {
				opts.Logger.Debug("rendering evicted", "key", key, "bytes", a.Size())
			},
		}),
		logger:  opts.Logger,
		stopped: make(chan struct{}),
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/cfgs", s.handleCFGs)
	mux.HandleFunc("GET /api/function/{id}", s.handleFunction)
	mux.HandleFunc("GET /api/source/{path...}", s.handleSource)
	mux.HandleFunc("GET /api/source-stat", s.handleSourceStat)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/{id}", s.handleStat)
	mux.HandleFunc("GET /api/callgraph", s.handleCallGraph)
	mux.HandleFunc("GET /api/cache", s.handleCache)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheReset)
	mux.HandleFunc("/api/stop", s.handleStop)
	return s.withCommonHeaders(mux)
}

func (s *Server) withCommonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Stopped is closed once a stop was requested.
func (s *Server) Stopped() <-chan struct{} {
	return s.stopped
}

// Stop requests the server to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Serve answers requests on l until ctx is done or a stop is requested.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	s.logger.Info("server started", "addr", l.Addr().String(), "task", s.task.Name)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	case <-s.stopped:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// ListenAndServe listens on addr, then calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}
