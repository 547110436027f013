// Package httpapi is the storefront's HTTP edge: cookie handling, the
// session endpoints, and the middleware chain guarding pages.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgavrilenko/shopkeeper/internal/logging"
	"github.com/dgavrilenko/shopkeeper/internal/server/services"
)

type Server struct {
	address string
	service *services.SessionService
	logger  logging.Logger
}

func NewServer(address string, service *services.SessionService, logger logging.Logger) *Server {
	return &Server{
		address: address,
		service: service,
		logger:  logger.With("module", "http_server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
