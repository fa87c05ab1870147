package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"conversation-service/internal/auth"
	"conversation-service/internal/config"
	"conversation-service/internal/db"
	"conversation-service/internal/gateway"
	"conversation-service/internal/handlers"
	"conversation-service/internal/ingest"
	"conversation-service/internal/middleware"
	"conversation-service/internal/observability"
	"conversation-service/internal/rabbitmq"
	"conversation-service/internal/realtime"
	"conversation-service/internal/repositories"
	"conversation-service/internal/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, "conversation-service", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	eventPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer eventPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(eventPublisher, "audit.conversation", "conversation-service", cfg.Environment)
	observability.SetPublisher(eventPublisher)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	credentialRepo := repositories.NewCredentialRepo(database)

	credentialService := auth.NewService(credentialRepo, auditEmitter, auth.Config{
		TTL:     cfg.CredentialTTL,
		MaxUses: cfg.CredentialUses,
	})
	tokenIssuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)

	normalizer := ingest.NewNormalizer(conversationRepo, messageRepo)
	gatewayClient := gateway.NewClient(cfg.GatewayURL)

	hub := realtime.NewHub(realtime.Config{
		MaxConnections: cfg.HubMaxConnections,
		QueueSize:      cfg.HubQueueSize,
		DedupWindow:    cfg.HubDedupWindow,
	})
	defer hub.Close()

	ingestHandler := handlers.NewIngestHandler(normalizer, messageRepo, hub)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, normalizer, gatewayClient, hub)
	sessionHandler := handlers.NewSessionHandler(credentialService, tokenIssuer, auditEmitter)
	wsHandler := realtime.NewWebSocketHandler(hub, credentialService, conversationRepo)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("conversation-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(tokenIssuer)

	router.POST("/auth/sessions", sessionHandler.CreateSession)
	router.POST("/auth/sessions/refresh", sessionHandler.RefreshSession)
	router.DELETE("/auth/sessions/:credential_id", authMiddleware, sessionHandler.DeleteSession)
	router.DELETE("/auth/subjects/:subject/sessions", authMiddleware, sessionHandler.DeleteAllSessions)

	router.POST("/events/messages", ingestHandler.HandleMessageEvent)
	router.POST("/events/statuses", ingestHandler.HandleStatusEvent)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.GET("/conversations/:key/messages", authMiddleware, conversationHandler.GetConversationMessages)
	router.POST("/conversations/:key/messages", authMiddleware, conversationHandler.SendMessage)
	router.PATCH("/conversations/:key/assignee", authMiddleware, conversationHandler.SetAssignee)
	router.PATCH("/conversations/:key/status", authMiddleware, conversationHandler.SetStatus)
	router.POST("/conversations/:key/read", authMiddleware, conversationHandler.MarkRead)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
