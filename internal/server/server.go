// Package server exposes the listing, streaming and tunnel services over
// HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/listing"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/stream"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Lister lists folders
type Lister interface {
	List(ctx context.Context, reqCtx *types.RequestContext, req listing.ListRequest) (*types.ListingPage, error)
}

// Streamer opens object byte streams
type Streamer interface {
	Open(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*stream.Stream, error)
}

// Relayer performs authenticated passthrough GETs
type Relayer interface {
	Relay(ctx context.Context, reqCtx *types.RequestContext, rawURL string, w http.ResponseWriter) (int64, error)
}

// Options configures the HTTP server
type Options struct {
	ListenAddr      string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server is the gateway HTTP server
type Server struct {
	opts     Options
	lister   Lister
	streamer Streamer
	relayer  Relayer
	logger   logging.Logger
	mux      chi.Router
}

// New builds the router and registers every route
func New(opts Options, lister Lister, streamer Streamer, relayer Relayer, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		opts:     opts,
		lister:   lister,
		streamer: streamer,
		relayer:  relayer,
		logger:   logger,
		mux:      chi.NewRouter(),
	}

	s.mux.Use(
		middleware.Recoverer,
		s.traceMiddleware,
		s.accessLogMiddleware,
		corsMiddleware(opts.CORSOrigins),
	)

	s.mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	s.mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	s.mux.Get("/list", s.handleList)
	s.mux.Get("/list/", s.handleList)
	s.mux.Get("/list/{folderId}", s.handleList)
	s.mux.Get("/fetch/{fileId}", s.handleFetch)
	s.mux.Get("/tunnel", s.handleTunnel)
	s.mux.Get("/health", s.handleHealth)
	s.mux.Get("/version", s.handleVersion)

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	s.logger.Info("Gateway listening", logging.F("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

// ListenAndServe listens on the configured address and calls Serve
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
