package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-michi/michi"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	maxHeaderBytes    = 1 << 20
	readTimeout       = 30 * time.Second
	readHeaderTimeout = 5 * time.Second
	// writes wait up to the lock timeout before they start
	writeTimeout     = 90 * time.Second
	DefaultRateLimit = time.Second / 5
	DefaultRateBurst = 20
)

// HTTPServer serves the adapter over HTTP/1.1 and cleartext HTTP/2.
type HTTPServer struct {
	Server *http.Server
	Router *michi.Router

	middleware  []func(http.Handler) http.Handler
	h2cHandler  http.Handler
	routesAdded bool
}

func NewHTTPServer(addr string) *HTTPServer {
	router := michi.NewRouter()
	h2cHandler := h2c.NewHandler(router, &http2.Server{})

	server := &http.Server{
		Addr:              addr,
		Handler:           h2cHandler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	return &HTTPServer{
		Server:     server,
		Router:     router,
		middleware: []func(http.Handler) http.Handler{},
		h2cHandler: h2cHandler,
	}
}

// Use adds middleware to the server. The first middleware is the outermost.
func (s *HTTPServer) Use(mw ...func(http.Handler) http.Handler) {
	if s.routesAdded {
		panic("cannot add middleware after routes are registered")
	}
	s.middleware = append(s.middleware, mw...)
	s.Server.Handler = applyMiddleware(s.h2cHandler, s.middleware...)
}

// Mount registers the adapter routes of h.
func (s *HTTPServer) Mount(h *Handler) {
	s.routesAdded = true
	h.Register(s.Router)
}

// ServeHTTP implements the http.Handler interface
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Server.Handler.ServeHTTP(w, r)
}

// Serve accepts connections on l until Shutdown is called.
func (s *HTTPServer) Serve(l net.Listener) error {
	slog.Info("listening", "addr", l.Addr().String())
	if err := s.Server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *HTTPServer) ListenAndServe() error {
	l, err := net.Listen("tcp", s.Server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown gracefully stops the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	slog.Debug("shutting down server")
	if err := s.Server.Shutdown(ctx); err != nil {
		slog.Error("error shutting down server", "error", err)
		return err
	}
	return nil
}

func applyMiddleware(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
