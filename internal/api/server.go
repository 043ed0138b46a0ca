// Package api serves the loaded intrinsics catalog over HTTP and pushes
// reload notifications over a websocket.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/cache"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/catalog"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/host"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
)

// Server is the REST API over a catalog store.
type Server struct {
	cfg       Config
	store     *catalog.Store
	host      *host.Host
	hub       *Hub
	responses *cache.ResponseCache
	started   time.Time
}

// New creates a server. A nil h means the running CPU.
func New(cfg Config, store *catalog.Store, h *host.Host) *Server {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultConfig().MaxPageSize
	}
	if h == nil {
		h = host.Detect()
	}
	s := &Server{
		cfg:       cfg,
		store:     store,
		host:      h,
		hub:       NewHub(),
		responses: cache.NewResponseCache(responseEntries, cfg.CacheTTL),
		started:   time.Now(),
	}
	store.OnLoad(s.catalogLoaded)
	return s
}

// catalogLoaded drops cached listings and notifies websocket clients.
func (s *Server) catalogLoaded(info catalog.Info) {
	s.responses.Invalidate()
	s.hub.Broadcast(eventFor(EventCatalogReloaded, info))
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = securityHeaders(s.setupRoutes())

	if s.cfg.RateLimitRequests > 0 {
		limiter := NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: s.cfg.RateLimitRequests,
			BurstSize:         s.cfg.RateLimitBurst,
		})
		handler = limiter.Middleware(handler)
	}

	handler = corsMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// Serve runs the API on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(ctx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	mode := "permissive"
	if len(s.cfg.AllowedOrigins) > 0 {
		mode = "restricted"
	}
	logging.SecurityEvent("cors_configured", "api", "mode", mode,
		"allowed_origins_count", len(s.cfg.AllowedOrigins))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}

// ListenAndServe listens on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Port,
		"websocket_protocol", "ws",
		"data_path", s.cfg.DataPath)
	return s.Serve(ctx, ln)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/meta", s.handleMeta)
	mux.HandleFunc("/intrinsics", s.handleIntrinsics)
	mux.HandleFunc("/intrinsics/", s.handleIntrinsicByID)
	mux.HandleFunc("/technologies", s.handleTechnologies)
	mux.HandleFunc("/categories", s.handleCategories)
	mux.HandleFunc("/return-types", s.handleReturnTypes)
	mux.HandleFunc("/reload", s.handleReload)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}
