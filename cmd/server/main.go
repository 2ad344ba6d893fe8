package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/banking/riskguard/internal/api"
	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/crypto"
	"github.com/banking/riskguard/internal/events"
	"github.com/banking/riskguard/internal/fraud"
	"github.com/banking/riskguard/internal/repository/elasticsearch"
	"github.com/banking/riskguard/internal/repository/postgres"
	"github.com/banking/riskguard/internal/repository/s3"
	"github.com/banking/riskguard/internal/scoring"
	"github.com/banking/riskguard/internal/service"
	"github.com/banking/riskguard/internal/workflow"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Info("Starting Risk Assessment Service...")

	// 3. Crypto / Security
	protector, err := crypto.NewFieldProtector(
		cfg.Encryption.FieldKeysBase64,
		cfg.Encryption.CurrentKeyVersion,
		cfg.Encryption.AuditHMACSecret,
	)
	if err != nil {
		sugar.Fatalf("Failed to initialize field protector: %v", err)
	}

	// 4. Scoring engine and fraud rules (config is validated here; a bad
	// policy never serves a single request)
	aggregator, err := scoring.NewAggregator(cfg.Scoring)
	if err != nil {
		sugar.Fatalf("Invalid scoring configuration: %v", err)
	}

	detector, err := fraud.NewDetector(cfg.Fraud, logger)
	if err != nil {
		sugar.Fatalf("Invalid fraud configuration: %v", err)
	}

	machine := workflow.NewMachine()

	// 5. Repositories
	dossierRepo, err := postgres.NewDossierRepository(cfg.Database, protector)
	if err != nil {
		sugar.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer dossierRepo.Close()

	auditRepo := postgres.NewAuditRepository(dossierRepo)

	esRepo, err := elasticsearch.NewSearchRepository(cfg.Elasticsearch)
	if err != nil {
		sugar.Warnf("Failed to connect to Elasticsearch: %v (search disabled)", err)
		esRepo = nil
	}

	s3Repo, err := s3.NewArchiveRepository(context.Background(), cfg.S3)
	if err != nil {
		sugar.Fatalf("Failed to initialize S3 repository: %v", err)
	}

	// 6. Service
	var index service.SearchIndex
	if esRepo != nil {
		index = esRepo
	}
	assessments := service.NewAssessmentService(
		dossierRepo, auditRepo, index, s3Repo,
		aggregator, detector, machine, protector,
		cfg.Scoring, logger,
	)

	// 7. Kafka Consumer
	consumer, err := events.NewDossierConsumer(cfg.Kafka, assessments, logger)
	if err != nil {
		sugar.Fatalf("Failed to create Kafka consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sugar.Info("Starting Kafka consumer loop...")
		if err := consumer.Start(ctx); err != nil {
			sugar.Errorf("Kafka consumer failed: %v", err)
		}
	}()
	defer consumer.Close()

	// 8. API Server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	assessmentHandler := api.NewAssessmentHandler(assessments, esRepo)

	apiGroup := e.Group("/risk")

	// Security: JWT authentication on the assessment API
	keyData, err := os.ReadFile(cfg.Auth.JWTPublicKeyPath)
	var signingKey interface{}
	if err == nil {
		signingKey, err = jwt.ParseRSAPublicKeyFromPEM(keyData)
		if err != nil {
			sugar.Warnf("Failed to parse JWT public key: %v", err)
		}
	} else {
		sugar.Warnf("JWT public key not found at %s: %v", cfg.Auth.JWTPublicKeyPath, err)
	}

	if signingKey != nil {
		jwtConfig := echojwt.Config{
			SigningKey:    signingKey,
			SigningMethod: "RS256",
			NewClaimsFunc: func(c echo.Context) jwt.Claims {
				return new(jwt.MapClaims)
			},
		}
		apiGroup.Use(echojwt.WithConfig(jwtConfig))
		sugar.Info("JWT Authentication enabled for /risk/*")
	} else {
		sugar.Warn("JWT Authentication DISABLED - Missing Public Key (Security Risk)")
	}

	assessmentHandler.RegisterRoutes(apiGroup)

	// Health Check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start Server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Shutting down the server: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sugar.Info("Shutting down service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		sugar.Fatal(err)
	}
}
