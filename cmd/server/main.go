// Package main runs the clip share backend: the upload HTTP surface plus the
// background upload orchestrator and YouTube token refresher.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ddclipshare/backend/config"
	"github.com/ddclipshare/backend/internal/auth"
	"github.com/ddclipshare/backend/internal/channels"
	"github.com/ddclipshare/backend/internal/discord"
	"github.com/ddclipshare/backend/internal/jobs"
	"github.com/ddclipshare/backend/internal/middleware"
	"github.com/ddclipshare/backend/internal/sessions"
	"github.com/ddclipshare/backend/internal/uploads"
	"github.com/ddclipshare/backend/internal/worker"
	"github.com/ddclipshare/backend/internal/youtube"
	"github.com/ddclipshare/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionStore := sessions.NewStore(rdb.Client, cfg.Session.TTL, logger)
	ledger := jobs.NewLedger()

	ytCfg := youtube.Config{
		ClientID:      cfg.YouTube.ClientID,
		ClientSecret:  cfg.YouTube.ClientSecret,
		RefreshToken:  cfg.YouTube.RefreshToken,
		PrivacyStatus: cfg.YouTube.PrivacyStatus,
	}
	ytClient := youtube.NewClient(ytCfg, logger)
	notifier := discord.NewNotifier(cfg.Discord.BotToken, logger)

	orchestrator := worker.New(ledger, ytClient, notifier,
		cfg.Worker.Tick, cfg.Worker.BackoffBase, cfg.Worker.BackoffCap, logger)
	refresher := youtube.NewRefresher(ytCfg,
		cfg.Worker.RefreshWarmup, cfg.Worker.RefreshInterval, cfg.YouTube.TokenNotePath, logger)

	go orchestrator.Run(ctx)
	go refresher.Run(ctx)

	oauthCfg := discord.OAuthConfig(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.RedirectURL)
	authHandler := auth.NewHandler(oauthCfg, sessionStore, logger)
	uploadHandler := uploads.NewHandler(ledger, sessionStore, cfg.Upload.TempDir, cfg.Upload.MaxFileBytes, logger)
	channelHandler := channels.NewHandler(notifier, cfg.Discord.GuildID, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.MaxMultipartMemory = 32 << 20

	api := router.Group("/api")
	{
		api.GET("/auth/session", authHandler.Session)
		api.POST("/auth/discord/callback", authHandler.DiscordCallback)
		api.POST("/auth/logout", authHandler.Logout)

		api.POST("/videos/upload", uploadHandler.Upload)
		api.GET("/videos/:id/status", uploadHandler.Status)

		api.GET("/discord/channels", channelHandler.List)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
