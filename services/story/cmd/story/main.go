package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storybloom/internal/ratelimit"
	"storybloom/internal/usertoken"
	"storybloom/internal/util"
	"storybloom/services/story/internal/app"
	"storybloom/services/story/internal/config"
	"storybloom/services/story/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	warmupInterval, err := config.ParseInterval(cfg.WarmupInterval)
	if err != nil {
		log.Fatalf("failed to parse warmup interval: %v", err)
	}
	storyDeadline, err := config.ParseInterval(cfg.StoryDeadline)
	if err != nil {
		log.Fatalf("failed to parse story deadline: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.JWKSURL,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:          cfg.DatabaseURL,
		MinioEndpoint:        cfg.MinioEndpoint,
		MinioAccessKey:       cfg.MinioAccessKey,
		MinioSecretKey:       cfg.MinioSecretKey,
		MinioBucket:          cfg.MinioBucket,
		MinioPublicBaseURL:   cfg.MinioPublicBaseURL,
		MinioUseSSL:          cfg.MinioUseSSL,
		GeminiAPIKey:         cfg.GeminiAPIKey,
		HuggingFaceAPIKey:    cfg.HuggingFaceAPIKey,
		EncryptionPassphrase: cfg.EncryptionPassphrase,
		EncryptionSalt:       cfg.EncryptionSalt,
		FreeStoryLimit:       cfg.FreeStoryLimit,
		WarmupInterval:       warmupInterval,
		StoryDeadline:        storyDeadline,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var createLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		ratePerMinute := cfg.CreateRatePerMinute
		if ratePerMinute <= 0 {
			ratePerMinute = 5
		}
		createLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "storybloom:ratelimit:create", ratePerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
		CreateLimiter: createLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: story creation legitimately runs for minutes
		// when image models warm up; the pipeline carries its own
		// per-story deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("story server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
