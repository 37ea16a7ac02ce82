// Package app wires the relay together and runs the bot alongside the health
// endpoint until the process is told to stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"linkrelay/internal/batch"
	"linkrelay/internal/config"
	"linkrelay/internal/download"
	"linkrelay/internal/health"
	"linkrelay/internal/logging"
	"linkrelay/internal/prefs"
	"linkrelay/internal/stats"
	"linkrelay/internal/telegram"
	"linkrelay/internal/userdir"
)

type App struct {
	cfg     *config.Config
	log     logging.Logger
	updates func(ctx context.Context) <-chan tgbotapi.Update
	users   userdir.Directory
	bot     *telegram.Bot
	health  *health.Server
}

// New validates cfg for serving and builds every component. Configuration
// problems are reported before anything touches the network.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := cfg.ValidateForServe(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		log.Warn(ctx, w)
	}

	staging, err := cfg.EnsureDownloadDir()
	if err != nil {
		return nil, err
	}
	if n, err := download.CleanStaging(staging); err != nil {
		log.Warn(ctx, "cleaning staging directory", "dir", staging, "error", err)
	} else if n > 0 {
		log.Info(ctx, "removed leftover staged files", "dir", staging, "count", n)
	}

	engine, err := download.NewYTDLP(cfg.YTDLPPath, cfg.ExternalDownloader)
	if err != nil {
		return nil, err
	}

	usersPath, err := cfg.UsersPath()
	if err != nil {
		return nil, err
	}
	users, err := userdir.Open(ctx, cfg.DatabaseURL, usersPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening user directory: %w", err)
	}

	api, err := telegram.Connect(cfg.BotToken, cfg.APIEndpoint, log)
	if err != nil {
		users.Close()
		return nil, err
	}
	botName := api.Self.UserName
	log.Info(ctx, "authorized on telegram", "bot", botName)

	fetcher := download.NewFetcher(engine, download.Options{
		Dir:              staging,
		Alternates:       cfg.AlternateExtensions,
		DefaultReferer:   cfg.DefaultReferer,
		ProgressInterval: cfg.ProgressInterval.Duration,
	}, log.With("component", "fetcher"))

	counters := stats.New()
	transport := telegram.NewTransport(api, staging, log.With("component", "transport"))

	orchestrator := batch.New(
		fetcher,
		transport,
		stats.NewRecorder(counters, users, log),
		batch.Captioner{Default: cfg.DefaultCaption, Developer: cfg.DeveloperName, BotName: botName},
		batch.Options{
			Delay:     cfg.BatchDelay.Duration,
			MaxLinks:  cfg.MaxLinksPerBatch,
			SizeLimit: cfg.MaxFileSize,
		},
		log.With("component", "batch"),
	)

	bot := telegram.NewBot(telegram.Deps{
		Transport: transport,
		Runner:    orchestrator,
		Prober:    fetcher,
		Prefs:     prefs.NewStore(cfg.DefaultQuality()),
		Pending:   prefs.NewPending(),
		Users:     users,
		Counters:  counters,
	}, telegram.Settings{
		BotName:        botName,
		OwnerID:        cfg.OwnerID,
		Authorized:     cfg.IsAuthorized,
		Developer:      cfg.DeveloperName,
		Support:        cfg.SupportContact,
		StagingDir:     staging,
		BroadcastDelay: cfg.BroadcastDelay.Duration,
	}, log.With("component", "bot"))

	a := &App{
		cfg: cfg,
		log: log,
		updates: func(ctx context.Context) <-chan tgbotapi.Update {
			return telegram.Updates(ctx, api)
		},
		users: users,
		bot:   bot,
	}
	if cfg.HealthAddr != "" {
		a.health = health.New(cfg.HealthAddr, counters, users, log.With("component", "health"))
	}
	return a, nil
}

// Run blocks until SIGINT/SIGTERM, a component fails, or the update stream
// ends. In-flight batches see the cancelled context and stop after their
// current step.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.bot.Run(gctx, a.updates(gctx))
		if err == nil && gctx.Err() == nil {
			a.log.Warn(gctx, "update stream closed, stopping")
		}
		// Nothing else is worth serving without the bot.
		cancel()
		return err
	})

	if a.health != nil {
		g.Go(func() error {
			return a.health.Run(gctx)
		})
	}

	err := g.Wait()
	a.log.Info(context.Background(), "shutting down")

	if closeErr := a.users.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("closing user directory: %w", closeErr))
	}
	return err
}
