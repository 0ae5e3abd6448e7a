package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"korabot/internal/config"
	"korabot/internal/memory"
	"korabot/internal/provider"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config, provider and history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			factory := provider.NewFactory(cfg.AI, logger)
			for _, role := range []string{provider.RoleText, provider.RoleImage} {
				mc := factory.Model(role)
				p, err := factory.Get(role)
				if err != nil {
					logger.Info("provider", "role", role, "provider", mc.Provider, "err", err)
					continue
				}
				herr := p.Healthy(ctx)
				logger.Info("provider", "role", role, "provider", p.Name(), "model", mc.Model, "healthy", herr == nil, "err", herr)
			}

			store, err := memory.Open(ctx, cfg.History, logger)
			if err != nil {
				logger.Info("history", "driver", cfg.History.Driver, "ok", false, "err", err)
				return nil
			}
			defer store.Close()
			logger.Info("history", "driver", cfg.History.Driver, "ok", store.Ping(ctx) == nil)

			ch := cfg.Channels
			logger.Info("channels",
				"telegram", ch.Telegram.Enabled,
				"whatsapp", ch.WhatsApp.Enabled,
				"whatsmeow", ch.WhatsMeow.Enabled,
			)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or prune conversation history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [sender-id]",
		Short: "Print a sender's remembered messages from the last 24 hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			store, err := memory.Open(ctx, cfg.History, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Entries(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("(no messages in the last 24 hours)")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s\n", e.Timestamp.Local().Format(time.DateTime), e.Text)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete history older than 24 hours now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			store, err := memory.Open(ctx, cfg.History, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Sweep(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d expired entries\n", n)
			return nil
		},
	})

	return cmd
}
