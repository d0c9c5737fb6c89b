// Package web is the registry's HTTP surface: the cargo registry web API,
// the sparse index and the token/administration endpoints. It is a thin
// facade over the services layer and carries no business rules of its own.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/logging"
	"github.com/dmitrijs2005/cargohold/internal/server/services"
)

type Server struct {
	address string
	logger  logging.Logger
	auth    *services.AuthService
	crates  *services.CratesService
	tokens  *services.TokensService
	stats   *services.StatsService
	users   *services.UsersService
}

func NewServer(address string, l logging.Logger, as *services.AuthService, cs *services.CratesService,
	ts *services.TokensService, ss *services.StatsService, us *services.UsersService) *Server {
	return &Server{
		address: address,
		logger:  l.With("module", "web_server"),
		auth:    as,
		crates:  cs,
		tokens:  ts,
		stats:   ss,
		users:   us,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Sparse index. config.json is public so clients can discover the
	// registry; the per-crate files require authentication.
	mux.HandleFunc("GET /index/config.json", s.handleIndexConfig)
	mux.Handle("GET /index/{path...}", s.authenticated(s.handleIndexFile))

	// Cargo web API.
	mux.Handle("PUT /api/v1/crates/new", s.authenticated(s.handlePublish))
	mux.Handle("GET /api/v1/crates", s.authenticated(s.handleSearch))
	mux.Handle("GET /api/v1/crates/{crate}", s.authenticated(s.handleCrateInfo))
	mux.Handle("GET /api/v1/crates/{crate}/{version}/download", s.authenticated(s.handleDownload))
	mux.Handle("DELETE /api/v1/crates/{crate}/{version}/yank", s.authenticated(s.handleYank))
	mux.Handle("PUT /api/v1/crates/{crate}/{version}/unyank", s.authenticated(s.handleUnyank))
	mux.Handle("POST /api/v1/crates/{crate}/{version}/checkdeps", s.authenticated(s.handleCheckDeps))
	mux.Handle("GET /api/v1/crates/{crate}/owners", s.authenticated(s.handleListOwners))
	mux.Handle("PUT /api/v1/crates/{crate}/owners", s.authenticated(s.handleAddOwners))
	mux.Handle("DELETE /api/v1/crates/{crate}/owners", s.authenticated(s.handleRemoveOwners))

	// Token management.
	mux.Handle("GET /api/v1/tokens", s.authenticated(s.handleListUserTokens))
	mux.Handle("POST /api/v1/tokens", s.authenticated(s.handleCreateUserToken))
	mux.Handle("DELETE /api/v1/tokens/{id}", s.authenticated(s.handleRevokeUserToken))
	mux.Handle("GET /api/v1/admin/tokens", s.authenticated(s.handleListGlobalTokens))
	mux.Handle("POST /api/v1/admin/tokens", s.authenticated(s.handleCreateGlobalToken))
	mux.Handle("DELETE /api/v1/admin/tokens/{id}", s.authenticated(s.handleRevokeGlobalToken))

	// Administration.
	mux.Handle("GET /api/v1/admin/users", s.authenticated(s.handleListUsers))
	mux.Handle("POST /api/v1/admin/users", s.authenticated(s.handleCreateUser))
	mux.Handle("PATCH /api/v1/admin/users/{id}", s.authenticated(s.handleUpdateUser))

	// Statistics and health.
	mux.Handle("GET /api/v1/stats", s.authenticated(s.handleStats))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
