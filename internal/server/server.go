// Package server wires the HTTP server with all routes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/edutrack/edutrack/internal/auth"
	"github.com/edutrack/edutrack/internal/config"
	"github.com/edutrack/edutrack/internal/logging"
	"github.com/edutrack/edutrack/internal/metrics"
	"github.com/edutrack/edutrack/internal/notify"
	"github.com/edutrack/edutrack/internal/payment"
	"github.com/edutrack/edutrack/internal/paystack"
	"github.com/edutrack/edutrack/internal/plan"
	"github.com/edutrack/edutrack/internal/ratelimit"
	"github.com/edutrack/edutrack/internal/schedule"
	"github.com/edutrack/edutrack/internal/school"
	"github.com/edutrack/edutrack/internal/security"
	"github.com/edutrack/edutrack/internal/settings"
	"github.com/edutrack/edutrack/internal/signup"
	"github.com/edutrack/edutrack/internal/subscription"
	"github.com/edutrack/edutrack/internal/tenancy"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg *config.Config

	schools       school.Store
	users         auth.Store
	plans         plan.Store
	payments      payment.Store
	subscriptions subscription.Store

	gateway     *paystack.Client
	subService  *subscription.Service
	sweeper     *subscription.Sweeper
	scheduler   *schedule.Scheduler
	issuer      *auth.TokenIssuer
	resolver    *settings.Resolver
	credLimiter *ratelimit.Limiter

	db      *sql.DB // nil if using in-memory
	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		schoolStore := school.NewPostgresStore(db)
		userStore := auth.NewPostgresStore(db)
		planStore := plan.NewPostgresStore(db)
		paymentStore := payment.NewPostgresStore(db)
		subStore := subscription.NewPostgresStore(db)
		for name, migrate := range map[string]func(context.Context) error{
			"school":       schoolStore.Migrate,
			"user":         userStore.Migrate,
			"plan":         planStore.Migrate,
			"payment":      paymentStore.Migrate,
			"subscription": subStore.Migrate,
		} {
			if err := migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate store", "store", name, "error", err)
			}
		}
		s.schools = schoolStore
		s.users = userStore
		s.plans = planStore
		s.payments = paymentStore
		s.subscriptions = subStore
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.schools = school.NewMemoryStore()
		s.users = auth.NewMemoryStore()
		s.plans = plan.NewMemoryStore()
		paymentStore := payment.NewMemoryStore()
		s.payments = paymentStore
		s.subscriptions = subscription.NewMemoryStore(paymentStore)
	}

	// Ensure the default catalogue exists.
	if err := plan.Seed(ctx, s.plans); err != nil {
		s.logger.Warn("failed to seed plan catalogue", "error", err)
	}

	s.gateway = paystack.New(paystack.Config{
		BaseURL:       cfg.PaystackBaseURL,
		SecretKey:     cfg.PaystackSecretKey,
		WebhookSecret: cfg.PaystackWebhookSecret,
		Timeout:       cfg.GatewayTimeout,
	}, s.logger)

	var notifier subscription.Notifier = notify.Nop{}
	if cfg.NotifyURL != "" {
		notifier = notify.NewClient(cfg.NotifyURL, cfg.NotifySecret, s.logger)
		s.logger.Info("notifications enabled", "url", cfg.NotifyURL)
	}

	s.subService = subscription.NewService(
		s.subscriptions, s.payments, s.plans, s.schools, s.logger,
		subscription.WithNotifier(notifier),
		subscription.WithWarningWindow(time.Duration(cfg.WarningWindowDays)*24*time.Hour),
		subscription.WithDemoCode(cfg.DemoSchoolCode),
	)
	s.sweeper = subscription.NewSweeper(s.subService, s.logger)
	s.scheduler = schedule.New(s.logger)
	s.issuer = auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	s.resolver = settings.NewResolver(nil)
	s.credLimiter = ratelimit.New(ratelimit.CredentialConfig())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	s.router.Use(cors.New(corsCfg))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	authHandler := auth.NewHandler(s.users, s.issuer, s.logger)
	planHandler := plan.NewHandler(s.plans)
	schoolHandler := school.NewHandler(s.schools, s.resolver)
	paymentHandler := payment.NewHandler(s.payments)
	signupHandler := signup.NewHandler(signup.NewService(
		s.schools, s.users, s.plans, s.payments, s.gateway, s.cfg.BaseURL, s.logger))
	subHandler := subscription.NewHandler(s.subService, s.gateway, s.logger, subscription.HandlerConfig{
		DashboardPath: s.resolver.Resolve("dashboard_path", nil),
		PricingPath:   s.resolver.Resolve("pricing_path", nil),
	})

	// Payment gateway ingress: signature-checked, not token-checked.
	subHandler.RegisterPublicRoutes(s.router)

	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.issuer))

	// PUBLIC ROUTES (no auth required). Signup and login take one
	// password guess or tenant creation per request, so they get the
	// strict limiter.
	public := v1.Group("")
	public.Use(s.credLimiter.Middleware())
	signupHandler.RegisterPublicRoutes(public)
	authHandler.RegisterPublicRoutes(public)
	planHandler.RegisterRoutes(v1)

	// PROTECTED ROUTES (require a session token)
	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	{
		authHandler.RegisterRoutes(protected)
		signupHandler.RegisterRoutes(protected)
		paymentHandler.RegisterRoutes(protected)

		// Billing and status stay reachable for lapsed schools: this is
		// how they get back in.
		protected.GET("/subscription/status", subHandler.Status)
		protected.POST("/subscription/cancel",
			auth.RequireCan(auth.ActionManageBilling), subHandler.Cancel)

		schoolAdmin := protected.Group("")
		schoolAdmin.Use(auth.RequireCan(auth.ActionManageSchool))
		schoolHandler.RegisterRoutes(schoolAdmin)
	}

	// PRODUCT ROUTES (require an active subscription on top of auth)
	app := v1.Group("/app")
	app.Use(auth.RequireAuth(), subscription.RequireActive(s.subService))
	{
		app.GET("/overview", s.overviewHandler)
	}

	// OPERATOR ROUTES (platform staff only)
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAuth(), auth.RequireCan(auth.ActionManagePlatform))
	{
		schoolHandler.RegisterOperatorRoutes(admin)
		planHandler.RegisterOperatorRoutes(admin)
	}
}

// overviewHandler is the dashboard landing payload: the school, its
// subscription summary, and resolved settings in one response.
func (s *Server) overviewHandler(c *gin.Context) {
	scope, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	schoolID, _ := scope.School()
	if schoolID == "" {
		// Operators land here through the bypass; there is no single
		// school to summarize.
		c.JSON(http.StatusOK, gin.H{"operator": true})
		return
	}

	sc, err := s.schools.Get(c.Request.Context(), schoolID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	status, err := s.subService.Status(c.Request.Context(), schoolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	resolved := make(map[string]string)
	for _, key := range settings.Keys() {
		resolved[key] = s.resolver.Resolve(key, sc.Settings)
	}
	c.JSON(http.StatusOK, gin.H{
		"school":       sc,
		"subscription": status,
		"settings":     resolved,
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start the expiry sweep. One run immediately so a restart does not
	// leave lapsed subscriptions active for a whole interval.
	go s.sweeper.Run(ctx)
	s.scheduler.Schedule("subscription-sweep", s.cfg.SweepInterval, s.sweeper.Run)

	if s.db != nil {
		s.scheduler.Schedule("db-metrics", 15*time.Second, func(context.Context) {
			stats := s.db.Stats()
			metrics.DBOpenConnections.Set(float64(stats.OpenConnections))
			metrics.DBInUseConnections.Set(float64(stats.InUse))
		})
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.scheduler.Stop()
	s.credLimiter.Stop()
	s.logger.Info("scheduler stopped")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
