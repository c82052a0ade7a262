package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"confbot/bot/handlers"
	"confbot/bot/store"
	"confbot/core/bootstrap"
	"confbot/core/buildinfo"
	coreconfig "confbot/core/config"
	"confbot/core/logger"
	coretelegram "confbot/core/telegram"
	tgmiddleware "confbot/core/telegram/middleware"

	"github.com/joho/godotenv"
	"log/slog"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("confbot: %v", err)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return err
	}

	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() { _ = boot.DB.Close() }()

	st := store.NewPostgres(boot.DB)
	bot := handlers.New(cfg, st)

	reg := coretelegram.NewRegistry()
	bot.RegisterCommands(reg)

	var middlewares []coretelegram.Middleware
	if cfg.Moderation.FloodIntervalMS > 0 {
		middlewares = append(middlewares, coretelegram.Middleware{
			Name: "flood_guard",
			Use: tgmiddleware.FloodGuardMiddleware(tgmiddleware.FloodOptions{
				Interval: time.Duration(cfg.Moderation.FloodIntervalMS) * time.Millisecond,
				Exclude:  map[string]struct{}{"callback": {}},
			}),
		})
	}

	startedAt := time.Now()
	runOpts := coretelegram.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      bot.Routes(reg),
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			bot.Outbox().Bind(rt.Bot)
			logger.L.With("component", "app").Info("app ready",
				slog.String("event", "ready"),
				slog.String("payload", buildinfo.Version),
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			logger.L.With("component", "app").Info("shutting down...",
				slog.String("event", "shutdown"),
			)
			return nil
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return coretelegram.RunTelegram(ctx, runOpts)
}
