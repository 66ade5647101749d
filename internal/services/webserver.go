package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/handlers"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/middleware"

	"github.com/ternarybob/arbor"
)

// webServer provides the HTTP API surface for the analyzer
type webServer struct {
	config      *common.Config
	server      *http.Server
	logger      arbor.ILogger
	apiHandlers *handlers.APIHandlers
	wsHub       *handlers.WebSocketHub
	running     bool
	startTime   time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg *common.Config, sessions interfaces.SessionProvider, fetcher interfaces.TicketFetcher, analyzer interfaces.TicketAnalyzer, storage interfaces.Storage, logger arbor.ILogger) (interfaces.WebService, error) {
	mux := http.NewServeMux()

	// Create WebSocket hub first (needed by API handlers)
	wsHub := handlers.NewWebSocketHub(logger)

	apiHandlers := handlers.NewAPIHandlers(cfg, sessions, fetcher, analyzer, storage, logger, wsHub)

	ws := &webServer{
		config:      cfg,
		logger:      logger,
		apiHandlers: apiHandlers,
		wsHub:       wsHub,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Analyzer.Port),
			Handler: mux,
		},
	}

	// Create middleware chain
	logMiddleware := middleware.Logging(logger)
	corsMiddleware := middleware.CORS
	requestIDMiddleware := middleware.RequestID
	limiter := middleware.NewRateLimiter(cfg.Analyzer.RateLimitPerSecond, cfg.Analyzer.RateLimitBurst)

	chain := func(handler http.HandlerFunc) http.HandlerFunc {
		return requestIDMiddleware(logMiddleware(corsMiddleware(limiter.Limit(handler))))
	}

	// Register API endpoints with middleware
	mux.HandleFunc("/", chain(apiHandlers.StatusHandler))
	mux.HandleFunc("/health", chain(apiHandlers.HealthHandler))
	mux.HandleFunc("/version", chain(apiHandlers.VersionHandler))
	mux.HandleFunc("/api/login", chain(apiHandlers.LoginHandler))
	mux.HandleFunc("/api/set-cookies", chain(apiHandlers.SetCookiesHandler))
	mux.HandleFunc("/api/tickets", chain(apiHandlers.TicketsHandler))
	mux.HandleFunc("/api/tickets/fresh", chain(apiHandlers.FreshTicketsHandler))
	mux.HandleFunc("/api/tickets/summary", chain(apiHandlers.SummaryHandler))

	// Register WebSocket endpoint
	mux.HandleFunc("/ws", corsMiddleware(wsHub.WebSocketHandler))

	return ws, nil
}

// Start starts the web server
func (ws *webServer) Start(ctx context.Context) error {
	ws.running = true
	ws.startTime = time.Now()

	go func() {
		ws.logger.Info().Int("port", ws.config.Analyzer.Port).Msg("Starting web server")
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error().Err(err).Msg("Web server error")
		}
	}()
	return nil
}

// Stop stops the web server
func (ws *webServer) Stop() error {
	ws.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws.logger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// IsRunning returns true if the web server is running
func (ws *webServer) IsRunning() bool {
	return ws.running
}
