package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/bft-labs/dripfeed/internal/adapters/fs"
	"github.com/bft-labs/dripfeed/internal/adapters/serial"
	"github.com/bft-labs/dripfeed/internal/app"
	"github.com/bft-labs/dripfeed/internal/observer"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// DefaultMaxUploadBytes caps the size of an uploaded program.
const DefaultMaxUploadBytes = 256 << 20

// Config holds HTTP server settings.
type Config struct {
	ListenAddr     string
	PublicDir      string
	MaxUploadBytes int64
	Events         observer.Config
}

// Server is the dripfeed HTTP front end.
type Server struct {
	cfg       Config
	manager   *app.Manager
	prober    *app.Prober
	uploads   *fs.UploadStore
	listPorts func() ([]serial.PortInfo, error)
	logger    log.Logger
	mux       *http.ServeMux
}

// New creates a server. Sessions started through it run on manager.
func New(cfg Config, manager *app.Manager, prober *app.Prober, uploads *fs.UploadStore, logger log.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		manager:   manager,
		prober:    prober,
		uploads:   uploads,
		listPorts: serial.ListPorts,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	if s.cfg.PublicDir != "" {
		s.mux.Handle("GET /", gzhttp.GzipHandler(http.FileServer(http.Dir(s.cfg.PublicDir))))
	}
	s.mux.HandleFunc("GET /com-ports", s.handlePorts)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /drip-feed", s.handleDripFeed)
	s.mux.HandleFunc("POST /test-baud-rate", s.handleProbe)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancelSession)
}

// Handler returns the request router wrapped in access logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves until ctx is done, then shuts the listener down
// gracefully. Running sessions are not touched; stop them through the
// manager.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("server listening", log.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", rec.status),
			log.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
