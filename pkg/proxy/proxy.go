package proxy

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/halcyon-labs/persona-proxy/internal/api"
	"github.com/halcyon-labs/persona-proxy/internal/config"
	"github.com/halcyon-labs/persona-proxy/internal/gateway"
	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/providers"
	"github.com/halcyon-labs/persona-proxy/internal/services/cache"
	"github.com/halcyon-labs/persona-proxy/internal/services/database"
	"github.com/halcyon-labs/persona-proxy/internal/services/history"
	"github.com/halcyon-labs/persona-proxy/internal/services/middleware"
	"github.com/halcyon-labs/persona-proxy/internal/services/persona"
	"github.com/halcyon-labs/persona-proxy/internal/utils"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Proxy represents a persona-proxy server instance
type Proxy struct {
	config *config.Config
	app    *fiber.App
	redis  *redis.Client
	db     *database.DB
}

// New creates a new Proxy instance with the given configuration
func New(cfg *config.Config) *Proxy {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}
	return &Proxy{config: cfg}
}

// Run starts the proxy server and blocks until shutdown
func (p *Proxy) Run() error {
	setupLogLevel(p.config)

	port := p.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	p.app = createFiberApp(p.config)

	if err := p.initializeInfrastructure(); err != nil {
		return err
	}
	if p.redis != nil {
		defer func() {
			if err := p.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}
	if p.db != nil {
		defer func() {
			if err := p.db.Close(); err != nil {
				fiberlog.Errorf("Failed to close database connection: %v", err)
			}
		}()
	}

	setupMiddleware(p.app, p.config)

	if err := p.setupRoutes(); err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	fmt.Printf("persona-proxy starting on %s\n", listenAddr)
	fmt.Printf("   Persona: %s\n", p.config.Persona.Name)
	fmt.Printf("   Environment: %s\n", p.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := p.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	if err := p.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

// initializeInfrastructure connects the optional redis and database backends.
// Both are feature gates, not hard dependencies: without redis there is no
// response cache, without a database no conversation history.
func (p *Proxy) initializeInfrastructure() error {
	if p.config.Cache.Enabled {
		client, err := createRedisClient(p.config.Cache)
		if err != nil {
			return err
		}
		p.redis = client
	} else {
		fiberlog.Info("Redis not configured - response cache disabled")
	}

	if p.config.Database != nil {
		db, err := database.New(*p.config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		fiberlog.Infof("Database connected (%s)", db.DriverName())
		p.db = db
	} else {
		fiberlog.Info("Database not configured - conversation history disabled")
	}

	return nil
}

// setupRoutes builds the gateway with its collaborators and registers the
// HTTP surface.
func (p *Proxy) setupRoutes() error {
	registry, err := gateway.NewRegistry(p.config.Providers)
	if err != nil {
		return err
	}

	limiter := gateway.NewRateLimiter(
		p.config.Gateway.MaxConcurrency,
		time.Duration(p.config.Gateway.MinSpacingMs)*time.Millisecond,
		gateway.SystemClock(),
	)
	retry := gateway.RetryPolicy{
		InitialDelay: time.Duration(p.config.Gateway.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(p.config.Gateway.MaxBackoffMs) * time.Millisecond,
	}

	adapters := make(map[string]providers.Adapter, len(p.config.Providers))
	for _, providerCfg := range p.config.Providers {
		adapters[providerCfg.Name] = providers.ForConfig(providerCfg)
	}

	gw := gateway.New(registry, limiter, retry, adapters)

	personaSvc, err := persona.New(p.config.Persona, utils.NewBufferPool())
	if err != nil {
		return fmt.Errorf("failed to build persona service: %w", err)
	}

	var responseCache *cache.ResponseCache
	if p.redis != nil {
		ttl := time.Duration(p.config.Cache.TTLSeconds) * time.Second
		responseCache = cache.New(p.redis, ttl)
	}

	var historyStore *history.Store
	if p.db != nil {
		historyStore, err = history.NewStore(p.db)
		if err != nil {
			return fmt.Errorf("failed to initialize history store: %w", err)
		}
	}

	chatHandler := api.NewChatHandler(gw, personaSvc, historyStore, responseCache)
	providersHandler := api.NewProvidersHandler(gw)
	healthHandler := api.NewHealthHandler(p.redis, p.db)

	authMiddleware := middleware.NewAuthMiddleware(p.config.Auth)
	p.app.Use(authMiddleware.Authenticate())

	v1 := p.app.Group("/v1")
	v1.Post("/chat", chatHandler.Chat)
	v1.Get("/providers", providersHandler.List)

	p.app.Get("/health", healthHandler.HealthCheck)

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "persona-proxy v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		CaseSensitive:     true,
		ServerHeader:      "persona-proxy",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(requestid.New())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID",
		AllowMethods:  "GET, POST, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
	}))
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(cfg models.CacheConfig) (*redis.Client, error) {
	opt := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 10,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	fiberlog.Info("Redis connection established successfully")
	return client, nil
}
