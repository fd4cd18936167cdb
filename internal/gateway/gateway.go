// ABOUTME: Gateway orchestrator that builds components from config and runs the HTTP server
// ABOUTME: Manages store, provider registry, chat service and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/omnichat/gateway/internal/auth"
	"github.com/omnichat/gateway/internal/chat"
	"github.com/omnichat/gateway/internal/config"
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/search"
	"github.com/omnichat/gateway/internal/store"
)

// Gateway owns the HTTP server and every component behind it.
type Gateway struct {
	config     *config.Config
	store      store.Store
	providers  *provider.Registry
	chat       *chat.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates the SQLite store, preferring OMNICHAT_DB_PATH over config.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("OMNICHAT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway with all components wired from config.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := provider.NewRegistryFromConfig(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("building provider registry: %w", err)
	}

	searchClient := search.New(cfg.Search.Endpoint, cfg.Search.MaxSnippets, cfg.Search.Timeout, logger)
	chatService := chat.New(s, registry, searchClient, logger, cfg.Chat.MaxContextTurns, cfg.Chat.PageSize)

	g := &Gateway{
		config:    cfg,
		store:     s,
		providers: registry,
		chat:      chatService,
		logger:    logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	g.registerAPIRoutes(mux, auth.HTTPMiddleware(verifier))
	logger.Info("HTTP auth middleware enabled", "providers", registry.Labels())

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// registerAPIRoutes registers all authenticated API routes.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	handle("POST /api/conversations", g.handleStartConversation)
	handle("GET /api/conversations", g.handleListConversations)
	handle("GET /api/conversations/{id}/exchanges", g.handleGetExchanges)
	handle("POST /api/conversations/{id}/messages", g.handleContinueConversation)
	handle("POST /api/conversations/{id}/branch", g.handleBranchConversation)
	handle("PATCH /api/conversations/{id}", g.handleRenameConversation)
	handle("DELETE /api/conversations/{id}", g.handleDeleteConversation)
	handle("PUT /api/messages/{id}", g.handleEditMessage)
	handle("GET /api/providers", g.handleListProviders)
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one provider is configured.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	labels := g.providers.Labels()
	if len(labels) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no providers configured"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d providers)", len(labels))
}
