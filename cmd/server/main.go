package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio/internal/app"
	"portfolio/internal/config"
	"portfolio/internal/server"
	"portfolio/internal/util"
	"portfolio/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	profileTTL, err := config.ParseDuration("profileCacheTTL", cfg.ProfileCacheTTL)
	if err != nil {
		log.Fatalf("failed to parse profile cache TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var minioOpts *storage.MinioOptions
	if cfg.Minio.Endpoint != "" {
		minioOpts = &storage.MinioOptions{
			Endpoint:      cfg.Minio.Endpoint,
			AccessKey:     cfg.Minio.AccessKey,
			SecretKey:     cfg.Minio.SecretKey,
			Bucket:        cfg.Minio.Bucket,
			UseSSL:        cfg.Minio.UseSSL,
			PublicBaseURL: cfg.Minio.PublicURL,
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:     cfg.DatabaseURL,
		JWTSecret:       cfg.JWTSecret,
		SessionTTL:      sessionTTL,
		JWTIssuer:       cfg.JWTIssuer,
		JWTAudience:     cfg.JWTAudience,
		AdminEmails:     cfg.AdminEmails,
		RedisAddr:       cfg.RedisAddr,
		RedisPassword:   cfg.RedisPassword,
		ProfileCacheTTL: profileTTL,
		Minio:           minioOpts,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	httpServer := server.New(server.Config{
		App:            appCore,
		AllowedOrigins: config.SplitList(cfg.FrontendURL),
		TrustedProxies: trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "images", appCore.ImagesEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
		return
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
