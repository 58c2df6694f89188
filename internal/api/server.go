// Package api is the thin, read-only HTTP surface a dashboard polls: every
// handler reads from Store (internal/persistence) and nothing else. It
// never places orders, never touches the venue, and never blocks a trading
// cycle — an outage here has no effect on the orchestrator.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/persistence"
)

// Store is the subset of *persistence.DB the dashboard reads from.
type Store interface {
	HealthCheck(ctx context.Context) error
	LatestAccountSnapshot(ctx context.Context) (persistence.AccountSnapshotView, error)
	RecentBotOperations(ctx context.Context, limit int) ([]domain.BotOperation, error)
	RecentTrades(ctx context.Context, symbol string, limit int) ([]domain.TradeRecord, error)
	LatestScreening(ctx context.Context) (persistence.ScreeningView, error)
	UsageSince(ctx context.Context, since time.Time) (persistence.UsageSummary, error)
}

// Config holds the listener and CORS settings.
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowOrigins   []string
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"http://localhost:5173"}
	}
}

// Server is the dashboard's read-only HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	store      Store
	cfg        Config
	log        *logging.Logger
}

// NewServer builds a Server bound to store and ready to Start.
func NewServer(store Store, cfg Config, log *logging.Logger) *Server {
	cfg.applyDefaults()

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{router: router, store: store, cfg: cfg, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/account", s.handleAccount)
		api.GET("/positions", s.handlePositions)
		api.GET("/operations", s.handleOperations)
		api.GET("/trades", s.handleTrades)
		api.GET("/screener/latest", s.handleScreeningLatest)
		api.GET("/usage", s.handleUsage)
	}
}

// Start runs the HTTP server until the process exits or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.WithField("addr", addr).Info("api: dashboard server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleAccount(c *gin.Context) {
	snap, err := s.store.LatestAccountSnapshot(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, snap)
}

func (s *Server) handlePositions(c *gin.Context) {
	snap, err := s.store.LatestAccountSnapshot(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, snap.Positions)
}

func (s *Server) handleOperations(c *gin.Context) {
	ops, err := s.store.RecentBotOperations(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, ops)
}

func (s *Server) handleTrades(c *gin.Context) {
	symbol := c.Query("symbol")
	trades, err := s.store.RecentTrades(c.Request.Context(), symbol, queryLimit(c, 100))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleScreeningLatest(c *gin.Context) {
	screening, err := s.store.LatestScreening(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, screening)
}

func (s *Server) handleUsage(c *gin.Context) {
	hours := 24
	if h, err := strconv.Atoi(c.Query("hours")); err == nil && h > 0 {
		hours = h
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	summary, err := s.store.UsageSince(c.Request.Context(), since)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, summary)
}

func queryLimit(c *gin.Context, def int) int {
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= 1000 {
		return n
	}
	return def
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": true, "message": message})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
