package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"

	"schoolpay/docs"

	"schoolpay/internal/auth"
	"schoolpay/internal/cache"
	"schoolpay/internal/config"
	"schoolpay/internal/db"
	"schoolpay/internal/gateway"
	"schoolpay/internal/handler"
	"schoolpay/internal/model"
	"schoolpay/internal/receipt"
	"schoolpay/internal/repository"
	"schoolpay/internal/router"
	"schoolpay/internal/service"
)

// @title School Payment Service API
// @version 1.0
// @description Payment reconciliation service for school fees: gateway order creation, payment verification, webhook ingestion, refunds, and PDF receipts.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e := echo.New()
	e.Use(middleware.RequestID())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	// Run migrations for all models
	if err := gormDB.AutoMigrate(
		&model.PaymentOrder{},
		&model.ReceiptLog{},
		&model.WebhookEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// Initialize repositories
	orderRepo := repository.NewPaymentOrderRepository(gormDB)
	receiptRepo := repository.NewReceiptLogRepository(gormDB)
	eventRepo := repository.NewWebhookEventRepository(gormDB)

	// Initialize gateway client and receipt pipeline
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	pdfGenerator, err := receipt.NewPDFGenerator()
	if err != nil {
		log.Fatalf("receipt template: %v", err)
	}
	receiptStore, err := receipt.NewStore(cfg.ReceiptDir)
	if err != nil {
		log.Fatalf("receipt store: %v", err)
	}

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize services
	authService := service.NewAuthService(jwtService, tokenStore, cfg.AdminEmail, cfg.AdminPasswordHash)
	receiptService := service.NewReceiptService(receiptRepo, pdfGenerator, receiptStore)
	paymentService := service.NewPaymentService(orderRepo, gatewayClient, receiptService, cacheClient, cfg.GatewayKeySecret, cfg.Currency)
	webhookService := service.NewWebhookService(eventRepo, orderRepo, receiptService, cfg.GatewayWebhookSecret, cfg.WebhookMaxRetries, cfg.WebhookSweepBatch)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	paymentHandler := handler.NewPaymentHandler(paymentService, webhookService)
	receiptHandler := handler.NewReceiptHandler(receiptService)

	// Register routes
	router.Register(e, cfg, authHandler, paymentHandler, receiptHandler)

	// Schedule the webhook retry sweep
	c := cron.New()
	if _, err := c.AddFunc(cfg.WebhookSweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := webhookService.RetrySweep(ctx); err != nil {
			log.Printf("webhook retry sweep: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule retry sweep: %v", err)
	}
	c.Start()
	defer c.Stop()

	addr := ":" + cfg.ServerPort
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server start: %v", err)
	}
}
