package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"korabot/internal/agent"
	"korabot/internal/bus"
	"korabot/internal/channel"
	"korabot/internal/config"
	"korabot/internal/domain"
	"korabot/internal/imagehost"
	"korabot/internal/memory"
	"korabot/internal/provider"
	"korabot/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Run the bot on every enabled transport",
		Long:    "Starts the enabled channels (Telegram, WhatsApp Cloud, WhatsApp linked device), the HTTP server and the dispatch loop. Press Ctrl+C to stop.",
		RunE:    runServe,
	}
}

// routerDeps are the pieces buildRouter needs beyond config.
type routerDeps struct {
	store       memory.Store
	fetchers    map[string]domain.MediaFetcher
	botUsername string
}

// buildRouter wires the providers, image host and handlers from config.
func buildRouter(cfg *config.Config, deps routerDeps) (*agent.Router, error) {
	factory := provider.NewFactory(cfg.AI, logger)
	textProv, err := factory.Get(provider.RoleText)
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}
	imageProv, err := factory.Get(provider.RoleImage)
	if err != nil {
		return nil, fmt.Errorf("image provider: %w", err)
	}

	var host domain.ImageHost
	if cfg.ImageHost.APIKey != "" {
		host = imagehost.New(cfg.ImageHost, logger)
	} else {
		logger.Warn("image host API key not set; analyses will not include a link")
	}

	prefix := cfg.General.CommandPrefix
	commands := agent.NewCommands(agent.CommandsConfig{Prefix: prefix, History: deps.store})

	text := agent.NewTextHandler(agent.TextHandlerConfig{
		Provider: textProv,
		History:  deps.store,
		Prompt:   agent.NewPromptBuilder(cfg.AI.SystemInstruction),
		Model:    factory.Model(provider.RoleText),
		Logger:   logger,
	})
	attachment := agent.NewAttachmentHandler(agent.AttachmentHandlerConfig{
		Fetchers:  deps.fetchers,
		Host:      host,
		Provider:  imageProv,
		Model:     factory.Model(provider.RoleImage),
		Prompt:    cfg.AI.AnalysisPrompt,
		EchoMedia: cfg.ImageHost.EchoMedia,
		Logger:    logger,
	})

	return agent.NewRouter(agent.RouterConfig{
		Prefix:      prefix,
		BotUsername: deps.botUsername,
		Commands:    commands,
		Text:        text,
		Attachment:  attachment,
		History:     deps.store,
		Logger:      logger,
	}), nil
}

func newLoop(cfg *config.Config, router *agent.Router, b domain.MessageBus, store memory.Store) *agent.Loop {
	sweepEvery, _ := cfg.History.SweepInterval()
	var limiter *agent.RateLimiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter = agent.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}
	return agent.NewLoop(agent.LoopConfig{
		Router:      router,
		Bus:         b,
		Sweeper:     store,
		SweepEvery:  sweepEvery,
		RateLimiter: limiter,
		Concurrency: cfg.General.MaxConcurrentMessages,
		Logger:      logger,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.RequireTransport(cfg); err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := memory.Open(ctx, cfg.History, logger)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	messageBus := bus.New(100, logger)

	var (
		channels []domain.Channel
		mounts   []server.Mountable
		fetchers = make(map[string]domain.MediaFetcher)
		botName  = cfg.Channels.Telegram.BotUsername
	)

	if cfg.Channels.Telegram.Enabled {
		tg := channel.NewTelegram(channel.TelegramChannelConfig{Config: cfg.Channels.Telegram, Logger: logger})
		if err := tg.Connect(); err != nil {
			return err
		}
		if botName == "" {
			botName = tg.Username()
		}
		channels = append(channels, tg)
		fetchers[tg.Name()] = tg
	}
	if cfg.Channels.WhatsApp.Enabled {
		wa := channel.NewWhatsApp(channel.WhatsAppChannelConfig{Config: cfg.Channels.WhatsApp, Logger: logger})
		channels = append(channels, wa)
		mounts = append(mounts, wa)
		fetchers[wa.Name()] = wa
	}
	if cfg.Channels.WhatsMeow.Enabled {
		wm := channel.NewWhatsMeow(channel.WhatsMeowChannelConfig{Config: cfg.Channels.WhatsMeow, Logger: logger})
		channels = append(channels, wm)
		fetchers[wm.Name()] = wm
	}

	router, err := buildRouter(cfg, routerDeps{store: store, fetchers: fetchers, botUsername: botName})
	if err != nil {
		return err
	}
	loop := newLoop(cfg, router, messageBus, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
				stop()
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			Addr:     cfg.Server.Addr,
			Metrics:  cfg.Server.Metrics,
			Channels: names,
			Health:   map[string]server.HealthFunc{"history": store.Ping},
			Mounts:   mounts,
			Logger:   logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("http server error", "err", err)
				stop()
			}
		}()
	}

	logger.Info("korabot started. Press Ctrl+C to stop.", "version", version, "channels", names)

	<-ctx.Done()
	logger.Info("shutting down...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
		for _, ch := range channels {
			_ = ch.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot in the terminal",
		Long:  "Runs the same router as serve against stdin/stdout. No messaging transport is needed.",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLog, err := setupLogger(config.GeneralConfig{LogLevel: "warn", LogFile: cfg.General.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := memory.Open(ctx, cfg.History, logger)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	messageBus := bus.New(10, logger)
	defer messageBus.Close()

	router, err := buildRouter(cfg, routerDeps{store: store})
	if err != nil {
		return err
	}
	loop := newLoop(cfg, router, messageBus, store)
	go loop.Run(ctx)

	cli := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cli.Start(ctx, messageBus)
}
