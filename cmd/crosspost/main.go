package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/apiserver"
	"github.com/crosspost-io/crosspost/internal/auth/jwt"
	"github.com/crosspost-io/crosspost/internal/common/config"
	"github.com/crosspost-io/crosspost/internal/engine"
	"github.com/crosspost-io/crosspost/internal/history"
	"github.com/crosspost-io/crosspost/internal/oauth"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
	"github.com/crosspost-io/crosspost/internal/router"
	"github.com/crosspost-io/crosspost/internal/social"
	"github.com/crosspost-io/crosspost/internal/storage"
	"github.com/crosspost-io/crosspost/pkg/logger"
	"github.com/crosspost-io/crosspost/pkg/metrics"
	"github.com/crosspost-io/crosspost/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of crosspost",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crosspost version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "crosspost",
		Short: "Social media OAuth broker and workflow router",
		Long:  `crosspost brokers OAuth connections to social platforms, publishes content across them, and routes mixed requests between research and social workflows`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() *config.Config {
	if configPath != "" {
		cfg, path, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Failed to load configuration from %s: %v\n", path, err)
			os.Exit(1)
		}
		return cfg
	}
	return config.LoadDefault()
}

func run() {
	cfg := loadConfig()

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	store, err := storage.NewStore(log, &cfg.Storage)
	if err != nil {
		log.Fatal("failed to initialize token storage", zap.Error(err))
	}

	manager, err := oauth.NewManager(log, cfg, store)
	if err != nil {
		log.Fatal("failed to initialize OAuth manager", zap.Error(err))
	}

	hist, err := history.NewStore(log, &cfg.History)
	if err != nil {
		log.Fatal("failed to open post history database", zap.Error(err))
	}

	m := metrics.New(cfg.Metrics)
	limiters := ratelimit.NewRegistry(log)
	socialServer := social.NewServer(log, manager, limiters, hist,
		social.WithObserver(m.PlatformCall))

	rt := router.New(log, m)
	eng := engine.New(log, rt,
		engine.KeywordSummarizer{},
		engine.NewSocialPublisher(log, socialServer),
		socialServer)

	jwtService, err := jwt.NewService(jwt.Config{
		SecretKey: cfg.Server.JWTSecret,
		Duration:  cfg.Server.JWTDuration,
	})
	if err != nil {
		log.Fatal("invalid JWT configuration", zap.Error(err))
	}

	api := apiserver.NewServer(log, jwtService, manager, socialServer, eng, rt, m)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Handler(),
	}

	go func() {
		log.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n, err := store.CleanupExpired(sweepCtx); err != nil {
					log.Warn("storage cleanup failed", zap.Error(err))
				} else if n > 0 {
					log.Info("removed expired storage entries", zap.Int("count", n))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
