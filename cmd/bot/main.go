package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"community_bot/internal/bot"
	"community_bot/internal/config"
	"community_bot/internal/countdown"
	"community_bot/internal/discord"
	"community_bot/internal/events"
	"community_bot/internal/scheduler"
	"community_bot/internal/storage"
	"community_bot/internal/telemetry"
	"community_bot/internal/timed"
)

const (
	serviceName    = "community-bot"
	serviceVersion = "1.0.0"
	readyTimeout   = 60 * time.Second
	stopTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bot failed", "error", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel is called above
	}
	log.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("close database", "error", err)
		}
	}()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discord.Intents
	dg.State.MaxMessageCount = 500
	dg.ShouldRetryOnRateLimit = true
	client := discord.NewClient(dg)

	// Shutdown stops the scheduler before closing the gateway.
	closeGateway := func() {}
	defer func() { closeGateway() }()

	sched := scheduler.New(log.With("component", "scheduler"))
	sched.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			log.Warn("stop scheduler", "error", err)
		}
	}()

	reg := events.NewRegistry(log.With("component", "events"))

	mgr := timed.NewManager(store, client, sched, log.With("component", "timed"))
	votes := timed.NewVoteFilter(store, client, log.With("component", "votes"))
	events.Handle(reg, votes.OnReactionAdded)

	b, err := bot.New(cfg, store, client, mgr, reg, log.With("component", "bot"))
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	b.Register(reg)

	ready := make(chan struct{})
	var readyOnce sync.Once
	events.Handle(reg, func(_ context.Context, ev events.Ready) error {
		readyOnce.Do(func() {
			log.Info("gateway ready", "user", ev.Self.Username, "user_id", ev.Self.ID)
			close(ready)
		})
		return nil
	})
	discord.Bind(ctx, dg, client, reg)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	closeGateway = func() {
		if err := dg.Close(); err != nil {
			log.Warn("close gateway", "error", err)
		}
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return nil
	case <-time.After(readyTimeout):
		return errors.New("gateway did not become ready")
	}

	if err := mgr.Recover(ctx); err != nil {
		return fmt.Errorf("recover timed items: %w", err)
	}

	refresher := countdown.New(store, client, log.With("component", "countdown"))
	refresher.SetTickInterval(cfg.CountdownInterval)
	go refresher.Run(ctx)

	if cfg.MetricsAddr != "" {
		go telemetry.Serve(ctx, cfg.MetricsAddr, log)
	}

	log.Info("bot started", "prefix", cfg.CommandPrefix, "driver", cfg.Database.Driver)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func openStore(cfg *config.Config) (*storage.SQL, error) {
	if cfg.Database.Driver == config.DriverPostgres {
		store, err := storage.NewPostgres(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.NewSQLite(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Database.Path, err)
	}
	return store, nil
}
