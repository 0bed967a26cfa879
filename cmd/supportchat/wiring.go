package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/go-support-chat/internal/application/chat"
	"github.com/go-support-chat/internal/config"
	"github.com/go-support-chat/internal/infrastructure/anchor"
	"github.com/go-support-chat/internal/infrastructure/dynamo"
	"github.com/go-support-chat/internal/infrastructure/gateway"
	jwtinfra "github.com/go-support-chat/internal/infrastructure/jwt"
	s3infra "github.com/go-support-chat/internal/infrastructure/s3"
	"github.com/go-support-chat/internal/infrastructure/ticketapi"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

type app struct {
	controller *chat.Controller
	gateway    *gateway.Client
	identity   *jwtinfra.Provider
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.LogLevel))
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newAnchorStore(ctx context.Context, cfg *config.Config) (chat.AnchorStore, error) {
	switch cfg.AnchorBackend {
	case config.AnchorBackendDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewAnchorRepo(client, cfg.DynamoTables.Anchors, cfg.ClientID, cfg.AnchorKey), nil
	case config.AnchorBackendFile:
		return anchor.NewFileStore(cfg.AnchorPath, cfg.AnchorKey), nil
	}
	return nil, fmt.Errorf("unknown anchor backend %q", cfg.AnchorBackend)
}

func newTranscriptArchive(ctx context.Context, cfg *config.Config) (*s3infra.TranscriptArchive, error) {
	if cfg.TranscriptBucket == "" {
		return nil, nil
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3infra.NewTranscriptArchive(client, cfg.TranscriptBucket), nil
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	identity, err := jwtinfra.NewProvider(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, err
	}
	if cfg.BearerToken != "" {
		if _, err := identity.Login(cfg.BearerToken); err != nil {
			log.Printf("WARN: SUPPORT_TOKEN rejected, continuing anonymously: %v", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst)
	}
	api := ticketapi.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, identity, limiter)

	gw := gateway.NewClient(gateway.Config{
		URL:                  cfg.GatewayURL,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectInterval: cfg.MaxReconnectInterval,
		HandshakeTimeout:     cfg.HTTPTimeout,
	}, identity)

	anchors, err := newAnchorStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := chat.Deps{
		API:     api,
		Gateway: gw,
		Anchors: anchors,
		Auth:    identity,
		Options: chat.Options{PinTimeout: cfg.PinTimeout, SuccessFlash: cfg.SuccessFlash},
	}
	archive, err := newTranscriptArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		deps.Transcripts = archive
	}

	ctrl := chat.NewController(deps)
	gw.SetHandler(ctrl)
	return &app{controller: ctrl, gateway: gw, identity: identity}, nil
}
