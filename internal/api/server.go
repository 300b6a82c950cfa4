package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultListenAddress = "127.0.0.1:8089"

type Server struct {
	server *http.Server
}

type Option func(*Server)

func NewServer(handler http.Handler, options ...Option) *Server {
	srv := &Server{
		server: &http.Server{
			Addr:              DefaultListenAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	for _, opt := range options {
		opt(srv)
	}
	return srv
}

func WithAddress(address string) Option {
	return func(srv *Server) {
		if address != "" {
			srv.server.Addr = address
		}
	}
}

// Start serves until Stop is called. A clean stop returns nil.
func (s *Server) Start() error {
	log.Info().Str("op", "api/server").Msgf("Starting HTTP API on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	log.Info().Str("op", "api/server").Msgf("Stopping HTTP API on %s", s.server.Addr)
	return s.server.Shutdown(ctx)
}
