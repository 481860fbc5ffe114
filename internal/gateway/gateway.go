// Package gateway serves a buckets.Provider over HTTP.
//
// Read routes are open; routes that change buckets, settings or files
// require one of the configured tokens in the X-Buckets-Token header.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cloudbuckets/internal/buckets"
	"cloudbuckets/internal/config"

	"github.com/rs/zerolog"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverReadTimeout       = 5 * time.Minute
	serverWriteTimeout      = 5 * time.Minute
	serverIdleTimeout       = 60 * time.Second
	serverMaxHeaderBytes    = 1 << 20
	serverShutdownTimeout   = 5 * time.Second
)

// maxUploadBytes matches the largest object S3 accepts in a single PUT.
const maxUploadBytes int64 = 5 << 30

type Server struct {
	provider  buckets.Provider
	log       zerolog.Logger
	addr      string
	tokens    writeTokens
	maxUpload int64
	mu        sync.Mutex
	handler   http.Handler
}

func New(p buckets.Provider, log zerolog.Logger) *Server {
	s := &Server{
		provider:  p,
		log:       log.With().Str("component", "gateway").Logger(),
		addr:      config.DefaultGatewayListen,
		maxUpload: maxUploadBytes,
	}
	s.handler = s.newHandler()
	return s
}

func (s *Server) SetAddress(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr != "" {
		s.addr = addr
	}
}

// SetAuthToken sets the accepted write tokens. Several tokens may be given
// separated by commas so that a new token can be rolled out before the old
// one is retired.
func (s *Server) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = parseWriteTokens(token)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled and then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	srv := s.newHTTPServer()
	s.log.Info().Str("addr", srv.Addr).Str("provider", s.provider.ID()).Msg("gateway listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown")
		}
	}()

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("gateway stopped")
	return nil
}

func (s *Server) newHTTPServer() *http.Server {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()

	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
		MaxHeaderBytes:    serverMaxHeaderBytes,
	}
}
