package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"notewise/internal/app"
	"notewise/internal/config"
	"notewise/internal/ratelimit"
	"notewise/internal/server"
	"notewise/internal/usertoken"
	"notewise/internal/util"
	"notewise/pkg/ai"
	"notewise/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.TokenSecret,
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
		objects = minioStore
	}

	generator := ai.NewGenerator(ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey), cfg.AIModel)

	appCore, err := app.New(app.Config{
		Generator:      generator,
		Objects:        objects,
		PostgresDSN:    cfg.DatabaseURL,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var limiter server.Limiter
	if cfg.GeneratePerMinute > 0 {
		l, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "notewise:ratelimit", cfg.GeneratePerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		limiter = l
	}

	httpServer, err := server.New(server.Config{
		App:             appCore,
		TokenVerifier:   tokenVerifier,
		GenerateLimiter: limiter,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("notewise server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
