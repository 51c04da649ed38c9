package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"social-realtime/internal/auth"
	"social-realtime/internal/config"
	"social-realtime/internal/db"
	grpcserver "social-realtime/internal/grpc"
	"social-realtime/internal/handlers"
	"social-realtime/internal/logging"
	"social-realtime/internal/middleware"
	"social-realtime/internal/observability"
	"social-realtime/internal/rabbitmq"
	"social-realtime/internal/ratelimit"
	"social-realtime/internal/repositories"
	"social-realtime/internal/telemetry"
	"social-realtime/internal/tracing"
	"social-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to init tracing")
	}

	database, err := db.Connect(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	mode, reason := rabbitmq.Mode(publisher)
	logging.Info().Str("mode", mode).Str("noop_reason", reason).Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, telemetry.AuditRoutingKey, cfg.Tracing.ServiceName, cfg.Environment)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logging.Warn().Err(err).Msg("redis unreachable, send limiter will fail open until it recovers")
		}
	}
	limiter := ratelimit.New(redisClient, cfg.RateLimit.SendLimit, cfg.RateLimit.SendWindow)
	if local, ok := limiter.(*ratelimit.LocalLimiter); ok {
		go local.RunCleanup(ctx, time.Minute)
	}

	tokens := auth.NewManager(auth.Config{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, TTL: cfg.JWT.TTL})
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	if count, err := messageRepo.CountMessages(ctx); err == nil {
		logging.Info().Int64("messages", count).Msg("message store ready")
	}

	hub := ws.NewHub(ws.NewPresence())
	router := ws.NewRouter(hub, messageRepo, userRepo, limiter)
	history := ws.NewHistoryFetcher(messageRepo, userRepo)

	messageHandler := handlers.NewMessageHandler(messageRepo, userRepo, router, history, audit)
	presenceHandler := handlers.NewPresenceHandler(hub)
	healthHandler := handlers.NewHealthHandler(database)
	chatWS := ws.NewChatWebSocketHandler(hub, router, history, tokens, ws.HandlerOptions{
		OperationTimeout: cfg.WS.OperationTimeout,
		AllowedOrigins:   cfg.WS.AllowedOrigins,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/healthz", healthHandler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/chat", chatWS.Handle)

	api := engine.Group("/api", middleware.AuthMiddleware(tokens, userRepo))
	api.GET("/messages/chats", messageHandler.ListChats)
	api.GET("/messages/:user_id", messageHandler.GetConversation)
	api.POST("/messages/send", messageHandler.SendMessage)
	api.GET("/presence/online", presenceHandler.Online)

	handlers.RegisterDebugRoutes(engine, tokens, userRepo, audit, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	healthServer := grpcserver.NewHealthServer(database)
	go healthServer.Watch(ctx, 15*time.Second)
	grpcListener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to listen for grpc")
	}
	go func() {
		logging.Info().Str("port", cfg.Server.GRPCPort).Msg("grpc health server listening")
		if err := healthServer.Serve(grpcListener); err != nil {
			logging.Error().Err(err).Msg("grpc server error")
		}
	}()

	go func() {
		logging.Info().Str("port", cfg.Server.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown failed")
	}
	healthServer.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("tracing shutdown failed")
	}
}
