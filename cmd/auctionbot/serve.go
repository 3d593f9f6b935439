package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jensholdgaard/squad-auction/internal/api"
	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/bot"
	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/config"
	"github.com/jensholdgaard/squad-auction/internal/health"
	"github.com/jensholdgaard/squad-auction/internal/leader"
	"github.com/jensholdgaard/squad-auction/internal/publish"
	"github.com/jensholdgaard/squad-auction/internal/squad"
	"github.com/jensholdgaard/squad-auction/internal/store"
	"github.com/jensholdgaard/squad-auction/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auction bot and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return serve(cmd.Context(), configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Log)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
		tp.Logger = telemetry.NewConsoleLogger(os.Stderr, cfg.Log.Level)
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	var seed *squad.Snapshot
	if cfg.Auction.SeedFile != "" {
		if seed, err = store.ReadSeed(cfg.Auction.SeedFile); err != nil {
			return fmt.Errorf("reading seed: %w", err)
		}
	}

	publisher := publish.New(cfg.Kafka, logger, tp.TracerProvider)
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error("publisher close error", slog.Any("error", closeErr))
		}
	}()

	mgr, err := auction.NewManager(cfg.Auction.ID, repos, publisher, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating auction manager: %w", err)
	}

	var checkers []health.Checker
	if repos.Ping != nil {
		checkers = append(checkers, health.Checker{Name: "database", Check: repos.Ping})
	}
	healthHandler := health.NewHandler(clk, checkers...)

	// The HTTP server runs on all replicas; followers answer 503.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(mgr, healthHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// lead is the work only the leader runs. State is recovered on every
	// acquisition because a previous leader may have accepted bids.
	lead := func(ctx context.Context) error {
		if recoverErr := mgr.Recover(ctx, seed); recoverErr != nil {
			return fmt.Errorf("recovering auction: %w", recoverErr)
		}

		var discordBot *bot.Bot
		if cfg.Discord.Token == "" {
			logger.WarnContext(ctx, "no discord token configured, serving the HTTP API only")
		} else {
			b, botErr := bot.New(cfg.Discord, mgr, logger, tp.TracerProvider)
			if botErr != nil {
				return fmt.Errorf("creating bot: %w", botErr)
			}
			if botErr = b.Start(ctx); botErr != nil {
				return fmt.Errorf("starting bot: %w", botErr)
			}
			discordBot = b
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctionbot is running",
			slog.String("version", version),
			slog.String("auction_id", cfg.Auction.ID),
		)

		<-ctx.Done()

		healthHandler.SetReady(false)
		if discordBot != nil {
			if stopErr := discordBot.Stop(); stopErr != nil {
				logger.Error("bot shutdown error", slog.Any("error", stopErr))
			}
		}
		return nil
	}

	var leadErr error

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership")

		onLeading := func(ctx context.Context) {
			if err := lead(ctx); err != nil {
				logger.ErrorContext(ctx, "leader startup failed", slog.Any("error", err))
				cancel()
			}
		}
		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, onLeading, func() {
			logger.Info("lost leadership, shutting down")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		leadErr = lead(ctx)
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return leadErr
}
