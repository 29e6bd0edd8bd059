package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/taskpin/taskpin/internal/asana"
	"github.com/taskpin/taskpin/internal/auth"
	"github.com/taskpin/taskpin/internal/cache"
	"github.com/taskpin/taskpin/internal/config"
	"github.com/taskpin/taskpin/internal/instrumentation"
	"github.com/taskpin/taskpin/internal/netcheck"
	"github.com/taskpin/taskpin/internal/router"
	"github.com/taskpin/taskpin/internal/storage"
	"github.com/taskpin/taskpin/internal/suggest"
)

// ServerContext assembles the daemon's components from configuration and
// owns their shared lifecycle.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    *config.Config
	logger *slog.Logger

	kv      storage.KV
	tokens  *storage.TokenStore
	auth    *auth.Manager
	api     *asana.Client
	cache   *cache.Cache
	suggest *suggest.Client
	router  *router.Router
	instr   *instrumentation.Provider

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext wires up storage, auth, the API client, the cache, the
// suggester and the message router. The instrumentation provider may be
// nil when metrics are disabled.
func NewServerContext(ctx context.Context, cfg *config.Config, logger *slog.Logger, instr *instrumentation.Provider) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	kv, err := storage.NewFileKV(cfg.StoragePath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	online := netcheck.NewChecker(cfg.ProbeAddr).Online

	tokens := storage.NewTokenStore(kv, logger)

	authManager, err := auth.NewManager(auth.ManagerConfig{
		OAuth: auth.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		TokenStore: tokens,
		HTTPClient: httpClient,
		Online:     online,
		Logger:     logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating auth manager: %w", err)
	}

	apiClient, err := asana.NewClient(asana.ClientConfig{
		BaseURL:    cfg.APIBaseURL,
		Tokens:     authManager,
		HTTPClient: httpClient,
		Online:     online,
		Logger:     logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	responseCache := cache.New(kv, logger)
	if instr != nil && instr.Enabled() {
		responseCache.SetObserver(instr.Metrics())
		authManager.SetMetrics(instr.Metrics())
		apiClient.SetMetrics(instr.Metrics())
	}

	suggester := suggest.NewClient(suggest.Config{
		Endpoint:   cfg.SuggestEndpoint,
		APIKey:     cfg.SuggestAPIKey,
		HTTPClient: httpClient,
		Online:     online,
		Logger:     logger,
	})

	r := router.New(logger)
	if instr != nil && instr.Enabled() {
		r.SetMetrics(instr.Metrics())
	}
	router.RegisterHandlers(r, router.Services{
		Auth:    authManager,
		API:     apiClient,
		Cache:   responseCache,
		Suggest: suggester,
	})

	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger,
		kv:      kv,
		tokens:  tokens,
		auth:    authManager,
		api:     apiClient,
		cache:   responseCache,
		suggest: suggester,
		router:  r,
		instr:   instr,
	}, nil
}

// Context returns the lifecycle context shared by the components.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Auth returns the OAuth session manager.
func (sc *ServerContext) Auth() *auth.Manager {
	return sc.auth
}

// Router returns the message router.
func (sc *ServerContext) Router() *router.Router {
	return sc.router
}

// Cache returns the response cache.
func (sc *ServerContext) Cache() *cache.Cache {
	return sc.cache
}

// Instrumentation returns the instrumentation provider, which may be nil.
func (sc *ServerContext) Instrumentation() *instrumentation.Provider {
	return sc.instr
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the shared context and waits for in-flight background
// cache refreshes to finish. Safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()
	sc.cache.Wait()
	return nil
}
