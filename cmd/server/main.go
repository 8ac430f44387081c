package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/auth"
	"github.com/prospectlens/api/internal/cache"
	"github.com/prospectlens/api/internal/client"
	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/handler"
	"github.com/prospectlens/api/internal/logger"
	"github.com/prospectlens/api/internal/middleware"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/service"
	"github.com/prospectlens/api/internal/store"
	"github.com/prospectlens/api/internal/worker"
	"github.com/prospectlens/api/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	st := store.New(redisClient, store.WithRetention(cfg.Sessions.Retention))
	if err := st.Ping(ctx); err != nil {
		log.Warn("Redis not available", zap.Error(err))
	}
	resultCache := cache.New(redisClient, cfg.Cache.LocalTTL, log)

	validate := validator.New()

	llmClient := client.NewLLMClient(&cfg.LLM)
	provider := research.NewProvider(llmClient, log)

	// R2 is optional; exports answer 503 without it.
	var objects client.ObjectStore
	if cfg.R2.Configured() {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn("R2 client not initialized", zap.Error(err))
		} else {
			objects = r2Client
		}
	} else {
		log.Info("R2 storage not configured, exports disabled")
	}

	sessions := service.NewSessionService(st, cfg.Sessions, log)
	queue := service.NewJobQueue(st)
	dossiers := service.NewDossierStep(sessions, st, queue, provider, log)
	advantages := service.NewAdvantageService(sessions, st, queue, resultCache, provider, cfg.Cache, log)
	discovery := service.NewDiscoveryService(sessions, st, queue, resultCache, provider, cfg.Cache, log)
	plans := service.NewAccountPlanService(sessions, st, provider, log)
	exports := service.NewExportService(sessions, objects, cfg.R2.SignedURLExpiry, log)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	var dispatcher service.Dispatcher
	var inline *service.InlineDispatcher
	switch cfg.Executor.DispatchMode {
	case config.DispatchQueue:
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = service.NewQueueDispatcher(asynqClient, cfg.Executor.TaskTimeout)
		srv := startWorkerServer(cfg, redisOpt, dossiers, log)
		defer srv.Shutdown()
	default:
		inline = service.NewInlineDispatcher(dossiers, cfg.Executor.TaskTimeout, log)
		dispatcher = inline
	}
	log.Info("Job dispatch configured", zap.String("mode", cfg.Executor.DispatchMode))
	executor := service.NewExecutor(sessions, queue, st, dossiers, advantages, dispatcher, cfg.Executor, log)

	var apiAuth fiber.Handler
	if cfg.Gateway.Enabled {
		log.Info("Gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware()
	} else {
		verifiers := []auth.TokenVerifier{auth.NewLegacyVerifier(cfg.JWT.Secret)}
		if cfg.Zitadel.Issuer != "" {
			jwksVerifier, err := auth.NewJWKSVerifier(ctx, &cfg.Zitadel)
			if err != nil {
				log.Warn("JWKS verifier not initialized", zap.Error(err))
			} else {
				verifiers = append([]auth.TokenVerifier{jwksVerifier}, verifiers...)
			}
		}
		apiAuth = middleware.NewAuthMiddleware(auth.Compact(verifiers...)).Authenticate()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":    st.Ping(c.Context()) == nil,
				"llm":      !provider.IsMock(),
				"r2":       objects != nil,
				"auth":     cfg.Gateway.Enabled || cfg.JWT.Secret != "" || cfg.Zitadel.Issuer != "",
				"dispatch": cfg.Executor.DispatchMode,
			},
		})
	})

	handler.RegisterRoutes(app, handler.Routes{
		Auth:     apiAuth,
		Limits:   middleware.NewRateLimiter(redisClient, cfg.RateLimit, log),
		Sessions: handler.NewSessionHandler(sessions, executor, validate, log),
		Research: handler.NewResearchHandler(discovery, advantages, dossiers, plans, validate, log),
		Export:   handler.NewExportHandler(exports, log),
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("Server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("Server starting", zap.String("addr", addr), zap.Bool("mockResearch", provider.IsMock()))
	if err := app.Listen(addr); err != nil {
		log.Error("Server error", zap.Error(err))
	}

	// Detached dossier research still running in this process gets to finish
	// so its jobs do not sit until the stale threshold.
	if inline != nil {
		inline.Wait()
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, runner service.TaskRunner, log *zap.Logger) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn", "warning":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	concurrency := cfg.Executor.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			service.QueueResearch: 1,
		},
		Logger:   log.Named("asynq").Sugar(),
		LogLevel: asynqLogLevel,
	})

	mux := asynq.NewServeMux()
	worker.NewDossierWorker(runner, log.Named("worker")).Register(mux)

	if err := srv.Start(mux); err != nil {
		log.Error("Asynq worker failed to start", zap.Error(err))
	}
	return srv
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	return response.Error(c, code, response.CodeServiceError, message, nil)
}
