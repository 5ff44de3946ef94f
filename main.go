package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cppla/geopost/config"
	"github.com/cppla/geopost/models"
	"github.com/cppla/geopost/realtime"
	"github.com/cppla/geopost/repositories"
	"github.com/cppla/geopost/routes"
	"github.com/cppla/geopost/services"
	"github.com/cppla/geopost/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db, err := config.InitDatabase(cfg, utils.Logger, models.All()...)
	if err != nil {
		utils.Sugar.Fatalf("database initialization failed: %v", err)
	}

	tokens, err := utils.NewTokenService(cfg.SecretKey, time.Duration(cfg.TokenTTLDays)*24*time.Hour)
	if err != nil {
		utils.Sugar.Fatalf("token service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	broadcaster, closeRelay, err := newBroadcaster(ctx, cfg, hub)
	if err != nil {
		utils.Sugar.Fatalf("realtime relay (%s): %v", cfg.BroadcastBackend, err)
	}

	posts := services.NewPostService(repositories.NewPostRepository(db), broadcaster)
	r := routes.SetupRouter(routes.Deps{
		Config: cfg,
		DB:     db,
		Users:  services.NewUserDirectory(repositories.NewUserRepository(db), tokens),
		Posts:  posts,
		Tokens: tokens,
		Hub:    hub,
	})

	srv := utils.NewServer(":"+cfg.AppPort, r, time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	// Hijacked websocket connections are not tracked by http.Server, close them explicitly.
	srv.OnShutdown(hub.Close)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}

	posts.Wait()
	closeRelay()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	utils.Logger.Info("server exited")
}

// newBroadcaster builds the configured realtime fan-out and a func releasing its connections.
func newBroadcaster(ctx context.Context, cfg config.AppConfig, hub *realtime.Hub) (realtime.Broadcaster, func(), error) {
	switch cfg.BroadcastBackend {
	case config.BroadcastRedis:
		client, err := utils.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		b, err := realtime.NewRedisBroadcaster(ctx, client, cfg.RedisChannel, hub)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		utils.Logger.Info("realtime relay ready", zap.String("backend", "redis"), zap.String("channel", cfg.RedisChannel))
		return b, func() {
			_ = b.Close()
			_ = client.Close()
		}, nil

	case config.BroadcastNATS:
		conn, err := nats.Connect(cfg.NATSURL,
			nats.Name("geopost"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				utils.Sugar.Warnw("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				utils.Sugar.Infow("nats reconnected", "url", c.ConnectedUrl())
			}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		b, err := realtime.NewNATSBroadcaster(conn, cfg.NATSSubject, hub)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		utils.Logger.Info("realtime relay ready", zap.String("backend", "nats"), zap.String("subject", cfg.NATSSubject))
		return b, func() {
			_ = b.Close()
			conn.Close()
		}, nil

	default:
		return realtime.NewLocalBroadcaster(hub), func() {}, nil
	}
}
