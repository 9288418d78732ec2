package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carpschool/access-api/internal/application/ratelimit"
	"github.com/carpschool/access-api/internal/config"
	"github.com/carpschool/access-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/carpschool/access-api/internal/infrastructure/jwt"
	"github.com/carpschool/access-api/internal/infrastructure/smtp"
	"github.com/carpschool/access-api/internal/infrastructure/sns"
	transporthttp "github.com/carpschool/access-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// SNS audit publisher (optional — graceful fallback).
	var audit sns.AuditPublisher
	if p, err := sns.NewPublisher(cfg); err == nil {
		audit = p
	} else {
		log.Printf("WARN: SNS audit publisher not available: %v", err)
	}

	rateLimitRepo := dynamo.NewRateLimitRepo(dynamoClient, cfg.DynamoTables.RateLimits)

	// Process-local admission limiter for read channels, mirrored durably.
	admission := ratelimit.NewEphemeral(ratelimit.EphemeralDeps{
		Store:         rateLimitRepo,
		SweepInterval: cfg.AdmissionSweepInterval,
		FlushInterval: cfg.AdmissionFlushInterval,
		Retention:     cfg.AdmissionRetention,
	})
	admission.Start(context.Background())
	defer admission.Stop()

	deps := &transporthttp.Deps{
		AccountRepo:     dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts),
		InstitutionRepo: dynamo.NewInstitutionRepo(dynamoClient, cfg.DynamoTables.Institutions),
		ChallengeRepo:   dynamo.NewChallengeRepo(dynamoClient, cfg.DynamoTables.Challenges),
		RateLimitRepo:   rateLimitRepo,
		CaptchaRepo:     dynamo.NewCaptchaRepo(dynamoClient, cfg.DynamoTables.Captchas),
		Mailer:          smtp.NewMailer(),
		Audit:           audit,
		JWTProvider:     jwtProvider,
		Admission:       admission,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
