package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/accrual"
	"github.com/thereal-osas/broker-sub006/internal/auth"
	"github.com/thereal-osas/broker-sub006/internal/cache"
	"github.com/thereal-osas/broker-sub006/internal/database"
	"github.com/thereal-osas/broker-sub006/internal/events"
	"github.com/thereal-osas/broker-sub006/internal/referral"
	"github.com/thereal-osas/broker-sub006/internal/withdrawal"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	config       ServerConfig
	repo         *database.Repository
	balances     *cache.BalanceCache
	lastRuns     *cache.RunSummaryCache
	eventBus     *events.EventBus
	authService  *auth.Service
	jwtManager   *auth.JWTManager
	withdrawals  *withdrawal.Service
	orchestrator *accrual.Orchestrator
	referrals    *referral.Service
	rateLimiter  *RateLimiter
	logger       zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	balances *cache.BalanceCache,
	lastRuns *cache.RunSummaryCache,
	eventBus *events.EventBus,
	authService *auth.Service,
	jwtManager *auth.JWTManager,
	withdrawals *withdrawal.Service,
	orchestrator *accrual.Orchestrator,
	referrals *referral.Service,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	if allowsAnyOrigin(config.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		config:       config,
		repo:         repo,
		balances:     balances,
		lastRuns:     lastRuns,
		eventBus:     eventBus,
		authService:  authService,
		jwtManager:   jwtManager,
		withdrawals:  withdrawals,
		orchestrator: orchestrator,
		referrals:    referrals,
		rateLimiter:  NewRateLimiter(120, time.Minute),
		logger:       logger.With().Str("component", "api").Logger(),
	}

	server.setupRoutes()

	InitWebSocket(eventBus, server.logger)

	return server
}

// allowsAnyOrigin reports whether the configured origins amount to the
// wildcard. Credentials are only allowed with an explicit origin list.
func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// rateLimitMiddleware rate limits requests by endpoint path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests to this endpoint",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	authHandlers := auth.NewHandlers(s.authService)
	authGroup := s.router.Group("/api/auth")
	authGroup.POST("/register", authHandlers.Register)
	authGroup.POST("/login", authHandlers.Login)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	api.Use(auth.Middleware(s.jwtManager))
	{
		api.GET("/balance", s.handleGetBalance)
		api.GET("/transactions", s.handleGetTransactions)

		api.POST("/investments", s.handleFundInvestment)
		api.GET("/investments", s.handleListInvestments)
		api.POST("/trades", s.handleFundTrade)
		api.GET("/trades", s.handleListTrades)
		api.GET("/contracts/:id", s.handleGetContract)

		api.POST("/withdrawals", s.handleCreateWithdrawal)
		api.GET("/withdrawals", s.handleListWithdrawals)

		api.GET("/ws", s.handleWebSocket)
	}

	admin := s.router.Group("/api/admin")
	admin.Use(auth.Middleware(s.jwtManager))
	admin.Use(auth.AdminOnly())
	{
		admin.POST("/distribute", s.handleDistribute)
		admin.GET("/distribution-runs", s.handleListRuns)
		admin.GET("/distribution-runs/last", s.handleLastRun)
		admin.GET("/withdrawals", s.handleAdminListWithdrawals)
		admin.PUT("/withdrawals/:id", s.handleAdminWithdrawal)
		admin.POST("/balance", s.handleAdminAdjustBalance)
	}
}

// buildHTTPServer assembles the http.Server from the configured
// timeouts, falling back to defaults when unset.
func (s *Server) buildHTTPServer() *http.Server {
	readTimeout := s.config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := s.config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = s.buildHTTPServer()

	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
