package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/auth"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/gateway"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/logging"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/metrics"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/session"

	_ "github.com/bizmatters/agent-builder/codegen-orchestrator/docs" // swagger docs
)

// @title Codegen Orchestrator API
// @version 1.0
// @description Conversation-driven code generation sessions.
// @description
// @description A session refines an implementation approach with the user, then generates code
// @description remotely and iterates on the generated files turn by turn.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	cfg := config.Load(zap.NewNop())

	logger, err := logging.New(logging.Options{
		Level:    cfg.Log.Level,
		FilePath: cfg.Log.FilePath,
		JSON:     cfg.Log.JSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	tp, err := initTracer()
	if err != nil {
		logger.Fatal("failed to initialize tracer", zap.Error(err))
	}

	jwtManager, err := auth.NewJWTManager(cfg.App.JWTSecret)
	if err != nil {
		logger.Fatal("failed to initialize JWT manager", zap.Error(err))
	}

	generationMetrics, err := metrics.NewGenerationMetrics()
	if err != nil {
		logger.Fatal("failed to initialize metrics", zap.Error(err))
	}

	// Endpoint map is resolved once here and shared by every session.
	endpoints := config.NewResolver(logger).Endpoints()
	client := orchestration.NewClient(endpoints, logger)

	conv := session.NewConversation(session.Conversation{
		Invoker:       client,
		Params:        cfg.Generation,
		WorkspaceRoot: cfg.App.WorkspaceRoot,
		Endpoints:     endpoints,
		Poller:        polling.New(cfg.Polling.MaxAttempts, cfg.Polling.Interval, logger),
		Metrics:       generationMetrics,
		Logger:        logger,
	})

	store := gateway.NewStore(cfg.App.SessionTTL, logger)
	driver := gateway.NewDriver(conv, store, logger)
	handler := gateway.NewHandler(driver, store, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(structuredLoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		if !client.Available() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "code generation functions unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "sessions": store.Len()})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.Use(auth.RequireAuth(jwtManager, logger))
	api.POST("/auth/refresh", auth.RefreshHandler(jwtManager, cfg.App.TokenTTL, logger))

	sessions := api.Group("")
	sessions.Use(auth.RequireRole(auth.RoleDeveloper))
	handler.RegisterRoutes(sessions)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting codegen orchestrator API",
			zap.String("port", cfg.App.Port),
			zap.String("endpoint", endpoints.Endpoint),
			zap.String("workspace_root", cfg.App.WorkspaceRoot),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := driver.Shutdown(ctx); err != nil {
		logger.Error("sessions did not stop in time", zap.Error(err))
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("failed to flush traces", zap.Error(err))
	}

	logger.Info("server exited")
}

func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

func structuredLoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if userID := c.GetString(auth.UserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.Info("request", fields...)
	}
}
